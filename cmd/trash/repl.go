package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/trashdsl/vm"
)

// runREPL starts an interactive read-eval-print loop on stdio.
func runREPL(env *vm.Environment, opts options) {
	fmt.Println("trashdsl REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Println()
	repl(env, opts, os.Stdin, os.Stdout, true)
	fmt.Println()
}

// repl reads programs from in and evaluates each against env. Functions
// declared in one input stay callable from later ones; local variables do
// not survive between inputs.
func repl(env *vm.Environment, opts options, in io.Reader, out io.Writer, prompt bool) {
	scanner := bufio.NewScanner(in)
	lineBuffer := strings.Builder{}

	eval := func() {
		input := strings.TrimSpace(lineBuffer.String())
		lineBuffer.Reset()
		if input == "" {
			return
		}
		if err := runProgram(env, opts, "main", input, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}

	for {
		if prompt {
			if lineBuffer.Len() == 0 {
				fmt.Fprint(out, ">> ")
			} else {
				fmt.Fprint(out, ".. ")
			}
		}

		if !scanner.Scan() {
			break
		}

		line := scanner.Text()

		// Handle exit
		if lineBuffer.Len() == 0 && (line == "exit" || line == "quit") {
			break
		}

		// Handle REPL commands (start with ':')
		if lineBuffer.Len() == 0 && strings.HasPrefix(line, ":") {
			handleREPLCommand(env, &opts, line, out)
			continue
		}

		// Empty line executes accumulated input
		if line == "" {
			eval()
			continue
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)

		// A line ending in '.' completes a statement; run it right away
		if strings.HasSuffix(strings.TrimSpace(line), ".") {
			eval()
		}
	}

	// Run whatever is left when input ends
	eval()
}

// handleREPLCommand handles REPL meta-commands.
func handleREPLCommand(env *vm.Environment, opts *options, cmd string, out io.Writer) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :blocks           List registered code blocks")
		fmt.Fprintln(out, "  :dis NAME         Disassemble a code block")
		fmt.Fprintln(out, "  :trace            Toggle the stack trace after each run")
		fmt.Fprintln(out, "  :reset            Forget declared functions")
		fmt.Fprintln(out, "  exit, quit        Exit REPL")
	case ":blocks":
		for _, b := range env.CodeBlocks() {
			fmt.Fprintf(out, "%s(%s)\n", b.Name, strings.Join(b.Params, ", "))
		}
	case ":dis":
		if len(fields) < 2 {
			fmt.Fprintln(out, "Usage: :dis NAME")
			return
		}
		cb, ok := env.CodeBlock(fields[1])
		if !ok {
			fmt.Fprintf(out, "Unknown code block: %s\n", fields[1])
			return
		}
		fmt.Fprint(out, cb.Disassemble())
	case ":trace":
		opts.trace = !opts.trace
		fmt.Fprintf(out, "Trace %s\n", onOff(opts.trace))
	case ":reset":
		env.ResetCodeBlocks()
		fmt.Fprintln(out, "Code blocks cleared")
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
