// trash CLI - the main entry point for running trashdsl programs
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"

	"github.com/chazu/trashdsl/compiler"
	"github.com/chazu/trashdsl/lib/natives"
	"github.com/chazu/trashdsl/manifest"
	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/server"
	"github.com/chazu/trashdsl/store"
	"github.com/chazu/trashdsl/vm"
)

// defaultMaxCallDepth bounds recursion when neither the manifest nor -depth
// sets a limit.
const defaultMaxCallDepth = 10000

// options are the effective run settings after merging the manifest and
// command-line flags.
type options struct {
	expr         string
	disassemble  bool
	trace        bool
	traceAll     bool
	blocks       bool
	interactive  bool
	lsp          bool
	cache        bool
	cachePath    string
	maxCallDepth int
	verbosity    int
}

func main() {
	expr := flag.String("e", "", "Evaluate the given source instead of a file")
	disassemble := flag.Bool("dis", false, "Print the disassembly of every code block")
	trace := flag.Bool("trace", false, "Print the stack trace after running")
	traceAll := flag.Bool("all", false, "Trace the whole stack instead of the top-level frame")
	blocks := flag.Bool("blocks", false, "List the registered code blocks")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	cache := flag.Bool("cache", false, "Cache compiled programs in SQLite")
	depth := flag.Int("depth", -1, fmt.Sprintf("Maximum call depth, 0 for unbounded (default %d)", defaultMaxCallDepth))
	verbose := flag.Int("v", -1, "Log verbosity (0-5)")
	noManifest := flag.Bool("no-manifest", false, "Skip loading trash.toml / trash.yaml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: trash [options] [file.trash]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a trashdsl program. Without a file, the manifest entry is run.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  trash main.trash             # Run a file\n")
		fmt.Fprintf(os.Stderr, "  trash -e 'result := 1 + 2'   # Run an expression\n")
		fmt.Fprintf(os.Stderr, "  trash -dis -trace main.trash # Show code and final stack\n")
		fmt.Fprintf(os.Stderr, "  trash -i                     # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  trash -lsp                   # Start language server\n")
	}
	flag.Parse()

	var m *manifest.Manifest
	if !*noManifest {
		wd, err := os.Getwd()
		if err == nil {
			m, err = manifest.FindAndLoad(wd)
		}
		if err != nil {
			fatal(err)
		}
	}

	opts := options{
		expr:        *expr,
		disassemble: *disassemble,
		trace:       *trace,
		traceAll:    *traceAll,
		blocks:      *blocks,
		interactive: *interactive,
		lsp:         *lspMode,
		cache:       *cache,
	}
	if m != nil {
		opts.disassemble = opts.disassemble || m.Run.Disassemble
		opts.trace = opts.trace || m.Run.Trace
		opts.traceAll = opts.traceAll || m.Run.TraceAll
		opts.cache = opts.cache || m.Cache.Enabled
		opts.cachePath = m.CachePath()
		opts.verbosity = m.Log.Verbosity
	}
	opts.maxCallDepth = callDepth(m, *depth)
	if *verbose >= 0 {
		opts.verbosity = *verbose
	}
	if opts.cachePath == "" {
		opts.cachePath = filepath.Join(".trash", "cache.db")
	}

	commonlog.Configure(opts.verbosity, nil)

	setup := func(env *vm.Environment) {
		natives.Register(env)
		if m != nil {
			for _, name := range m.ConstantNames() {
				env.RegisterConstant(name, m.ConstantValue(name))
			}
		}
	}

	if opts.lsp {
		if err := server.NewLSP(setup).Run(); err != nil {
			fatal(err)
		}
		return
	}

	env := vm.NewEnvironment()
	setup(env)

	if opts.interactive {
		runREPL(env, opts)
		return
	}

	name, src, err := source(opts, m, flag.Args())
	if err != nil {
		fatal(err)
	}

	if err := runProgram(env, opts, name, src, os.Stdout); err != nil {
		fatal(err)
	}
}

// source resolves the program to run: -e, a file argument, or the manifest
// entry, in that order.
func source(opts options, m *manifest.Manifest, args []string) (name, src string, err error) {
	if opts.expr != "" {
		return "main", opts.expr, nil
	}

	var path string
	switch {
	case len(args) > 0:
		path = args[0]
	case m != nil:
		path = m.EntryPath()
	default:
		return "", "", errors.New("no program given (pass a file, -e or -i)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	return "main", string(data), nil
}

// callDepth picks the call depth limit: a non-negative flag wins, then a
// positive manifest setting, then the default.
func callDepth(m *manifest.Manifest, flagDepth int) int {
	switch {
	case flagDepth >= 0:
		return flagDepth
	case m != nil && m.Run.MaxCallDepth > 0:
		return m.Run.MaxCallDepth
	}
	return defaultMaxCallDepth
}

// runProgram compiles src, reports hints and runs it, printing the result
// and whatever the options ask for.
func runProgram(env *vm.Environment, opts options, name, src string, out io.Writer) error {
	c := compiler.New(env)

	var (
		cb  *bytecode.CodeBlock
		err error
	)
	if opts.cache {
		cb, err = compileCached(c, env, opts.cachePath, name, src)
	} else {
		cb, err = c.Compile(name, src)
	}
	if err != nil {
		return err
	}

	for _, h := range c.Hints() {
		warn(h.String())
	}

	if opts.blocks {
		for _, b := range env.CodeBlocks() {
			fmt.Fprintf(out, "%s(%d params, %d instructions)\n", b.Name, len(b.Params), len(b.Code))
		}
	}
	if opts.disassemble {
		for _, b := range env.CodeBlocks() {
			fmt.Fprint(out, b.Disassemble())
		}
	}

	machine := vm.New(env)
	machine.MaxCallDepth = opts.maxCallDepth
	machine.Out = out

	result, runErr := machine.Run(cb)
	if opts.trace {
		machine.Trace(out, opts.traceAll)
	}
	if runErr != nil {
		return runErr
	}

	printValue(out, result)
	return nil
}

func compileCached(c *compiler.Compiler, env *vm.Environment, path, name, src string) (*bytecode.CodeBlock, error) {
	s, err := store.Open(path)
	if err != nil {
		warn(fmt.Sprintf("program cache unavailable: %v", err))
		return c.Compile(name, src)
	}
	defer s.Close()

	cb, _, err := s.Compile(c, env, name, src)
	return cb, err
}

func printValue(w io.Writer, v value.Value) {
	if v.Kind() == value.KindString {
		fmt.Fprintf(w, "'%s'\n", v.AsString())
		return
	}
	fmt.Fprintln(w, v.String())
}

// --- Diagnostics on stderr ---

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(color, s string) string {
	if !stderrIsTerminal() {
		return s
	}
	return color + s + colorReset
}

func warn(msg string) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "Warning: "+msg))
}

func report(err error) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "Error: "+err.Error()))
}

func fatal(err error) {
	report(err)
	os.Exit(1)
}
