package compiler

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestEnv() *vm.Environment {
	env := vm.NewEnvironment()
	env.RegisterNative("array", vm.Variadic, func(args []value.Value, m *vm.VM) (value.Value, error) {
		return value.NewArray(args...), nil
	})
	env.RegisterNative("record", vm.Variadic, func(args []value.Value, m *vm.VM) (value.Value, error) {
		if len(args)%2 != 0 {
			return value.Nil(), fmt.Errorf("record expects key/value pairs")
		}
		r := value.NewRecord()
		for i := 0; i < len(args); i += 2 {
			r.AsRecord().Set(value.Key(args[i]), args[i+1])
		}
		return r, nil
	})
	env.RegisterNative("length", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		switch {
		case args[0].IsArray():
			return value.Number(float64(args[0].AsArray().Len())), nil
		case args[0].IsRecord():
			return value.Number(float64(args[0].AsRecord().Len())), nil
		}
		return value.Number(float64(len([]rune(args[0].String())))), nil
	})
	env.RegisterConstant("true", value.Bool(true))
	env.RegisterConstant("pi", value.Number(3.14159))
	return env
}

func compileSource(t *testing.T, env *vm.Environment, src string) *bytecode.CodeBlock {
	t.Helper()
	cb, err := New(env).Compile("main", src)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", src, err)
	}
	return cb
}

func runSource(t *testing.T, src string) (value.Value, *vm.VM) {
	t.Helper()
	env := newTestEnv()
	cb := compileSource(t, env, src)
	m := vm.New(env)
	m.Out = io.Discard
	v, err := m.Run(cb)
	if err != nil {
		t.Fatalf("Run(%q) failed: %v\n%s", src, err, cb.Disassemble())
	}
	return v, m
}

func compileError(t *testing.T, src string) *CompileError {
	t.Helper()
	_, err := New(newTestEnv()).Compile("main", src)
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("Compile(%q): expected CompileError, got %v", src, err)
	}
	return cerr
}

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

func TestPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"precedence", "result := 2 + 3 * 4", "14"},
		{"parentheses", "result := (2 + 3) * 4", "20"},
		{"concatenation", "result := 'a' + 1", "a1"},
		{"leading negation", "result := -2 + 3", "1"},
		{"negated operand", "result := 3 + -2", "1"},
		{"subtraction without spaces", "result := 10-4-3", "3"},
		{"modulo", "result := 17 % 5", "2"},
		{"division", "result := 7 / 2", "3.5"},
		{"comparison", "result := 2 < 3", "true"},
		{"equality in expression", "result := 2 = 3", "false"},
		{"not equal", "result := 'a' <> 'b'", "true"},
		{"formula", "= 1 + 2", "3"},
		{"constant", "result := pi > 3", "true"},
		{"case insensitive", "X := 2. RESULT := x * 3", "6"},
		{"for leaves bound plus one", "i := 0. for i := 1 to 3 do { } result := i", "4"},
		{"downto", "s := 0. for i := 3 downto 1 do s := s * 10 + i. result := s", "321"},
		{"while break", "n := 0. while 1 = 1 do { n := n + 1. break } result := n", "1"},
		{"while condition", "n := 0. while n < 5 { n := n + 2 } result := n", "6"},
		{"continue", "s := 0. for i := 1 to 5 do { when i = 3 then continue. s := s + i } result := s", "12"},
		{"nested loops", "c := 0. for i := 1 to 3 do for j := 1 to 3 do { when j = 2 then break. c := c + 1 } result := c", "3"},
		{"when then", "x := 5. when x > 3 then result := 'big' else result := 'small'", "big"},
		{"when else", "x := 1. when x > 3 then result := 'big' else result := 'small'", "small"},
		{"when without else", "result := 1. when 1 > 2 then result := 2", "1"},
		{"branch declared local", "x := 1\nwhen x = 1 then y := 2 else y := 3\nresult := y", "2"},
		{"constant condition", "when true then result := 7", "7"},
		{"arrow function", "f(x) => { result := x * 2 } result := f(5)", "10"},
		{"lambda assignment", "sq := (x) => x * x. result := sq(4)", "16"},
		{"function keyword", "add := function(a, b) { result := a + b } result := add(2, 3)", "5"},
		{"zero parameters", "seven() => 7. result := seven() + 1", "8"},
		{"recursion", "fact(n) => { result := 1. when n > 1 then result := n * fact(n - 1) } result := fact(5)", "120"},
		{"calls in one expression", "inc(x) => x + 1. result := inc(1) + inc(2)", "5"},
		{"early return", "f(x) => { result := 1. return. result := 2 } result := f(0)", "1"},
		{"record key", "a := record('x', 1). result := a.x", "1"},
		{"array index", "b := array(10, 20, 30). result := b[1]", "20"},
		{"string index", "s := 'abc'. result := s[1]", "b"},
		{"nested call", "result := length(array(1, 2, 3))", "3"},
		{"call tail", "result := array(4, 5)[1]", "5"},
		{"record assignment", "r := {}. r.name := 'bob'. result := r.name", "bob"},
		{"nested record", "r := record('inner', record('v', 1)). r.inner.v := 9. result := r.inner.v", "9"},
		{"array append", "a := []. a[0] := 5. a[1] := 6. result := length(a)", "2"},
		{"aliasing", "a := array(1). b := a. b[1] := 2. result := length(a)", "2"},
		{"comments", "// header\nresult := 1 // trailing\n", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := runSource(t, tt.src)
			if got := v.String(); got != tt.want {
				t.Errorf("%q: expected %s, got %s", tt.src, tt.want, got)
			}
		})
	}
}

func TestCallPreservesStackHeight(t *testing.T) {
	_, m := runSource(t, "f(x) => x * 2. a := f(1). b := f(2). result := a + b")
	// result, a, b
	if got := len(m.Stack()); got != 3 {
		t.Errorf("Expected 3 slots after run, got %d", got)
	}
	if m.FrameDepth() != 1 {
		t.Errorf("Expected root frame only, got %d", m.FrameDepth())
	}
}

func TestReturnAtTopLevel(t *testing.T) {
	v, m := runSource(t, "result := 1. return. result := 2")
	if v.AsNumber() != 1 {
		t.Errorf("Expected 1, got %s", v)
	}
	if m.FrameDepth() != 1 {
		t.Errorf("Expected root frame only, got %d", m.FrameDepth())
	}
}

func TestFunctionsAreRegistered(t *testing.T) {
	env := newTestEnv()
	compileSource(t, env, "double(x) => x * 2. result := double(1)")
	cb, ok := env.CodeBlock("double")
	if !ok {
		t.Fatal("Expected double to be registered")
	}
	if len(cb.Params) != 1 || cb.Params[0] != "x" {
		t.Errorf("Expected params [x], got %v", cb.Params)
	}
	if names := env.CodeBlocks(); len(names) != 2 || names[0].Name != "main" {
		t.Errorf("Expected main then double, got %d blocks", len(names))
	}
}

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

func TestGeneratedCode(t *testing.T) {
	cb := compileSource(t, newTestEnv(), "result := 2 + 3")
	want := []string{
		"PUSH/STACK_FRAME",
		"PUSH/CONST",
		"PUSH/CONST",
		"OPERATOR/ADD",
		"ASSIGN/LOCAL",
		"POP/STACK_FRAME",
	}
	if len(cb.Code) != len(want) {
		t.Fatalf("Expected %d instructions, got %d:\n%s", len(want), len(cb.Code), cb.Disassemble())
	}
	for i, ins := range cb.Code {
		if !strings.HasPrefix(ins.String(), want[i]) {
			t.Errorf("%04d: expected %s, got %s", i, want[i], ins.String())
		}
	}
	if cb.Code[4].Addr != -1 {
		t.Errorf("Expected result at -1, got %d", cb.Code[4].Addr)
	}
}

func TestFunctionSlots(t *testing.T) {
	env := newTestEnv()
	compileSource(t, env, "f(a, b) => { result := a - b } result := f(5, 3)")
	f, _ := env.CodeBlock("f")
	var reads []int
	var assigns []int
	for _, ins := range f.Code {
		switch {
		case ins.Op == bytecode.OpPush && ins.Sub == bytecode.PushLocalVar:
			reads = append(reads, ins.Addr)
		case ins.Op == bytecode.OpAssign && ins.Sub == bytecode.AssignLocal:
			assigns = append(assigns, ins.Addr)
		}
	}
	if len(reads) != 2 || reads[0] != -2 || reads[1] != -1 {
		t.Errorf("Expected a at -2 and b at -1, got %v", reads)
	}
	if len(assigns) != 1 || assigns[0] != -3 {
		t.Errorf("Expected result at -3, got %v", assigns)
	}
}

func TestAllJumpsPatched(t *testing.T) {
	env := newTestEnv()
	src := "s := 0. for i := 1 to 10 do { when i % 2 = 0 then continue. when i > 7 then break. s := s + i } result := s"
	cb := compileSource(t, env, src)
	if pending := cb.Unpatched(); len(pending) != 0 {
		t.Errorf("Expected no pending jumps, got %v", pending)
	}
	if err := cb.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDeterministicOutput(t *testing.T) {
	src := "f(x) => x + 1. s := 0. for i := 1 to 3 do s := s + f(i). result := s"
	a := compileSource(t, newTestEnv(), src)
	b := compileSource(t, newTestEnv(), src)
	if a.Disassemble() != b.Disassemble() {
		t.Errorf("Expected identical output:\n%s\nvs\n%s", a.Disassemble(), b.Disassemble())
	}
}

func TestDeterministicOutputAfterReset(t *testing.T) {
	src := "f(x) => x + 1. s := 0. for i := 1 to 3 do s := s + f(i). result := s"
	env := newTestEnv()

	listing := func() string {
		var sb strings.Builder
		for _, cb := range env.CodeBlocks() {
			sb.WriteString(cb.Disassemble())
		}
		return sb.String()
	}

	compileSource(t, env, src)
	first := listing()
	env.ResetCodeBlocks()
	compileSource(t, env, src)
	second := listing()

	if first != second {
		t.Errorf("Expected identical output after reset:\n%s\nvs\n%s", first, second)
	}
	if len(env.CodeBlocks()) != 2 {
		t.Errorf("Expected main and f, got %d blocks", len(env.CodeBlocks()))
	}
}

func TestNestedDeclarationOfEnclosingName(t *testing.T) {
	// The enclosing block is registered before its body compiles, so its
	// name parses as a call and never reaches a nested declaration.
	tests := []struct {
		name string
		src  string
	}{
		{"program name with param", "result := 1. main(x) => x"},
		{"program name without params", "main() => 1"},
		{"function inside itself", "f(y) => { f(z) => z. result := y } result := f(1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			compileSource(t, env, "g(a) => a + 1. result := g(1)")
			g, _ := env.CodeBlock("g")
			before := g.Disassemble()

			_, err := New(env).Compile("main", tt.src)
			var cerr *CompileError
			if !errors.As(err, &cerr) {
				t.Fatalf("Expected CompileError, got %v", err)
			}
			after, ok := env.CodeBlock("g")
			if !ok || after.Disassemble() != before {
				t.Errorf("Expected g untouched, got:\n%v", after)
			}
			if _, ok := env.CodeBlock("main"); ok {
				t.Error("Expected failed program to be unregistered")
			}
		})
	}
}

func TestUnassignedLocalReadsNil(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"top level", "when 1 = 2 then b := 1. result := array(7, b)", "[7,null]"},
		{"function body", "f(x) => { when 1 = 2 then b := 1. result := array(x, b) } result := f(5)", "[5,null]"},
		{"loop body", "for i := 1 to 2 do { when i = 3 then c := 1. last := array(i, c) } result := last", "[2,null]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := runSource(t, tt.src)
			if v.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, v)
			}
		})
	}
}

func TestUnassignedLocalInArithmeticFails(t *testing.T) {
	env := newTestEnv()
	cb := compileSource(t, env, "f(x) => { when 1 = 2 then b := 1. result := x + b } result := f(5)")
	m := vm.New(env)
	m.Out = io.Discard
	if _, err := m.Run(cb); !errors.Is(err, value.ErrType) {
		t.Errorf("Expected ErrType adding nil, got %v", err)
	}
}

func TestFrameReservesBodyLocals(t *testing.T) {
	env := newTestEnv()
	cb := compileSource(t, env, "f(a) => { t := a. u := t. result := u } x := f(1). result := x")
	if cb.Code[0].Count != 1 {
		t.Errorf("Expected main to reserve 1 local, got %d", cb.Code[0].Count)
	}
	f, _ := env.CodeBlock("f")
	if f.Code[0].Count != 2 {
		t.Errorf("Expected f to reserve 2 locals, got %d", f.Code[0].Count)
	}
	if !strings.Contains(f.Disassemble(), "locals=2") {
		t.Errorf("Expected disassembly to show reserved locals:\n%s", f.Disassemble())
	}
}

func TestProgramSurvivesWireRoundTrip(t *testing.T) {
	src := "sq(x) => x * x. r := {}. r.v := sq(3). result := r.v + length(array(1, 2))"
	env := newTestEnv()
	compileSource(t, env, src)

	data, err := bytecode.MarshalProgram(env.CodeBlocks())
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	blocks, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}

	fresh := newTestEnv()
	for _, cb := range blocks {
		fresh.AddCodeBlock(cb)
	}
	main, ok := fresh.CodeBlock("main")
	if !ok {
		t.Fatal("Expected main after round trip")
	}
	v, err := vm.New(fresh).Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.AsNumber() != 11 {
		t.Errorf("Expected 11, got %s", v)
	}
}

func TestSourceMapPointsAtStatements(t *testing.T) {
	env := newTestEnv()
	cb := compileSource(t, env, "x := 'a'\nresult := x * 2")
	_, err := vm.New(env).Run(cb)
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected RuntimeError, got %v", err)
	}
	if rerr.Line != 2 {
		t.Errorf("Expected fault on line 2, got %d", rerr.Line)
	}
	if !errors.Is(err, value.ErrType) {
		t.Errorf("Expected type error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Errors and hints
// ---------------------------------------------------------------------------

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		line     int
		col      int
		contains string
	}{
		{"break outside loop", "break", 1, 1, `Not in loop but "break" found.`},
		{"continue outside loop", "x := 1\n  continue", 2, 3, `Not in loop but "continue" found.`},
		{"unknown identifier", "result := y", 1, 11, `Unknown identifier "y".`},
		{"string after multiply", "result := 2 * 'a'", 1, 15, `got "string" instead.`},
		{"unterminated string", "x := 'abc", 1, 6, "unterminated string literal"},
		{"duplicate parameter", "f(a, a) => a", 1, 6, `Duplicate parameter "a".`},
		{"missing then", "when 1 > 0 result := 1", 1, 12, `Expected "then"`},
		{"unclosed block", "{ result := 1", 1, 14, `Expected "}"`},
		{"illegal character", "result := 1 @ 2", 1, 13, "Invalid statement"},
		{"redeclare as function", "f := 1. f := (x) => x", 1, 9, `Cannot redeclare "f" as a function.`},
		{"arity", "f(a) => a. result := f(1, 2)", 1, 25, `Expected ")"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cerr := compileError(t, tt.src)
			if cerr.Line != tt.line || cerr.Col != tt.col {
				t.Errorf("Expected error at [%d,%d], got [%d,%d]: %s", tt.line, tt.col, cerr.Line, cerr.Col, cerr.Msg)
			}
			if !strings.Contains(cerr.Msg, tt.contains) {
				t.Errorf("Expected message containing %q, got %q", tt.contains, cerr.Msg)
			}
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	cerr := compileError(t, "break")
	if cerr.Error() != `main [1,1]: Not in loop but "break" found.` {
		t.Errorf("Unexpected error text %q", cerr.Error())
	}
}

func TestFailedCompileRegistersNothing(t *testing.T) {
	env := newTestEnv()
	if _, err := New(env).Compile("main", "g(x) => x. break"); err == nil {
		t.Fatal("Expected compile error")
	}
	if _, ok := env.CodeBlock("g"); ok {
		t.Error("Expected g to be removed after the failed compile")
	}
	if _, ok := env.CodeBlock("main"); ok {
		t.Error("Expected main to be removed after the failed compile")
	}
}

func TestUnusedVariableHints(t *testing.T) {
	tests := []struct {
		src   string
		names []string
	}{
		{"x := 1. result := 2", []string{"x"}},
		{"x := 1. result := x", nil},
		{"a := 1. b := 2. result := 0", []string{"a", "b"}},
		{"for i := 1 to 2 do { } result := 0", nil},
		{"f(p) => { t := 1 } result := f(1)", []string{"t"}},
	}
	for _, tt := range tests {
		c := New(newTestEnv())
		if _, err := c.Compile("main", tt.src); err != nil {
			t.Fatalf("Compile(%q): %v", tt.src, err)
		}
		hints := c.Hints()
		if len(hints) != len(tt.names) {
			t.Errorf("%q: expected hints for %v, got %v", tt.src, tt.names, hints)
			continue
		}
		for i, h := range hints {
			if h.Name != tt.names[i] {
				t.Errorf("%q: expected hint for %s, got %s", tt.src, tt.names[i], h.Name)
			}
		}
	}
}

func TestHintMessage(t *testing.T) {
	c := New(newTestEnv())
	if _, err := c.Compile("main", "result := 0\n  unused := 1"); err != nil {
		t.Fatal(err)
	}
	hints := c.Hints()
	if len(hints) != 1 {
		t.Fatalf("Expected one hint, got %v", hints)
	}
	want := `main [2,3]: Variable "unused" is declared but not used.`
	if hints[0].String() != want {
		t.Errorf("Expected %q, got %q", want, hints[0].String())
	}
}
