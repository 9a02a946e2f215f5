package bytecode

import (
	"strings"
	"testing"

	"github.com/chazu/trashdsl/pkg/value"
)

func TestEmitReturnsAddress(t *testing.T) {
	cb := NewCodeBlock("main")
	if addr := cb.Emit(Instruction{Op: OpPush, Sub: PushStackFrame}); addr != 0 {
		t.Errorf("Expected address 0, got %d", addr)
	}
	if addr := cb.Emit(Instruction{Op: OpPush, Sub: PushConst, Const: value.Number(1)}); addr != 1 {
		t.Errorf("Expected address 1, got %d", addr)
	}
	if cb.CurrentAddr() != 2 {
		t.Errorf("Expected current address 2, got %d", cb.CurrentAddr())
	}
}

func TestPatchJump(t *testing.T) {
	cb := NewCodeBlock("main")
	req := cb.EmitJump(JumpAlways)
	cb.Emit(Instruction{Op: OpPop, Sub: PopConst})

	if got := cb.Unpatched(); len(got) != 1 || got[0] != req.Addr {
		t.Fatalf("Expected one pending jump at %d, got %v", req.Addr, got)
	}
	if err := cb.Validate(); err == nil {
		t.Error("Expected Validate to reject a placeholder target")
	}

	cb.Patch(req, cb.CurrentAddr())
	if cb.Code[req.Addr].Addr != 2 {
		t.Errorf("Expected target 2, got %d", cb.Code[req.Addr].Addr)
	}
	if len(cb.Unpatched()) != 0 {
		t.Error("Expected no pending jumps after patch")
	}
	if err := cb.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestValidateRejectsBadSubOp(t *testing.T) {
	cb := NewCodeBlock("bad")
	cb.Emit(Instruction{Op: OpPop, Sub: 9})
	if err := cb.Validate(); err == nil {
		t.Error("Expected error for undefined sub-operation")
	}
}

func TestFrameLocals(t *testing.T) {
	cb := NewCodeBlock("f")
	cb.Emit(Instruction{Op: OpPush, Sub: PushStackFrame, Count: 2})
	cb.Emit(Instruction{Op: OpPop, Sub: PopStackFrame})
	if err := cb.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !strings.Contains(cb.Disassemble(), "locals=2") {
		t.Errorf("Expected reserved locals in disassembly:\n%s", cb.Disassemble())
	}

	cb.Code[0].Count = -1
	if err := cb.Validate(); err == nil {
		t.Error("Expected error for a negative local count")
	}
}

func TestIsJump(t *testing.T) {
	if !OpJump.IsJump() {
		t.Error("Expected OpJump to carry a target")
	}
	for _, op := range []Opcode{OpPush, OpPop, OpCall, OpAssign, OpReturn} {
		if op.IsJump() {
			t.Errorf("Expected %s to carry no target", op)
		}
	}
}

func TestSourceMap(t *testing.T) {
	cb := NewCodeBlock("main")
	cb.SetPosition(1, 1)
	cb.Emit(Instruction{Op: OpPush, Sub: PushStackFrame})
	cb.Emit(Instruction{Op: OpPush, Sub: PushConst, Const: value.Number(1)})
	cb.SetPosition(3, 5)
	cb.Emit(Instruction{Op: OpPop, Sub: PopConst})

	if len(cb.SourceMap) != 2 {
		t.Fatalf("Expected 2 source map entries, got %d", len(cb.SourceMap))
	}
	line, col, ok := cb.GetSourceLocation(1)
	if !ok || line != 1 || col != 1 {
		t.Errorf("Expected 1:1 for addr 1, got %d:%d", line, col)
	}
	line, col, _ = cb.GetSourceLocation(2)
	if line != 3 || col != 5 {
		t.Errorf("Expected 3:5 for addr 2, got %d:%d", line, col)
	}
}

func TestReset(t *testing.T) {
	cb := NewCodeBlock("f")
	cb.Params = []string{"x"}
	cb.Emit(Instruction{Op: OpReturn})
	cb.Reset()
	if len(cb.Code) != 0 || cb.Params != nil || cb.Name != "f" {
		t.Errorf("Reset left state behind: %+v", cb)
	}
}

func TestDisassemble(t *testing.T) {
	cb := NewCodeBlock("f")
	cb.Params = []string{"x"}
	cb.Emit(Instruction{Op: OpPush, Sub: PushStackFrame})
	cb.Emit(Instruction{Op: OpPush, Sub: PushLocalVar, Addr: -1})
	cb.Emit(Instruction{Op: OpPush, Sub: PushConst, Const: value.String("hi")})
	cb.Emit(Instruction{Op: OpCall, Sub: CallNative, Name: "print", Count: 1})
	cb.Emit(Instruction{Op: OpJump, Sub: JumpAlways, Addr: 0})
	cb.Emit(Instruction{Op: OpReturn})

	out := cb.Disassemble()
	for _, want := range []string{
		"; === f ===",
		"; Parameters (1): x",
		"0000  PUSH/STACK_FRAME",
		"PUSH/LOCAL_VAR",
		"@-1",
		`"hi"`,
		"print/1",
		"-> 0000",
		"0005  RETURN",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestOpcodeNames(t *testing.T) {
	if OpJump.SubOpName(JumpSmallerOrEqual) != "SMALLER_OR_EQUAL" {
		t.Errorf("unexpected name %q", OpJump.SubOpName(JumpSmallerOrEqual))
	}
	if Opcode(0xFF).String() != "UNKNOWN(0xFF)" {
		t.Errorf("unexpected name %q", Opcode(0xFF).String())
	}
	if OpCall.Valid(CallCodeBlock + 1) {
		t.Error("CALL should have two sub-operations")
	}
}
