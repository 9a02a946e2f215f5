package bytecode

import (
	"fmt"

	"github.com/chazu/trashdsl/pkg/value"
)

// Instruction is one cell of an instruction stream.
type Instruction struct {
	Op    Opcode
	Sub   SubOp
	Addr  int         // frame-relative slot or absolute jump target
	Count int         // argument count or key depth
	Name  string      // label, callee or global name
	Const value.Value // literal for Push/Const
}

// CodeBlock is a named, independently addressed unit of compiled
// instructions: a function body or a top-level program.
type CodeBlock struct {
	Name      string
	Code      []Instruction
	Params    []string
	SourceMap []SourceLocation

	line, col int
}

// SourceLocation maps an instruction address to a source position. An
// entry covers every instruction from Addr up to the next entry.
type SourceLocation struct {
	Addr   int
	Line   int
	Column int
}

// PatchRequest records a jump emitted with a placeholder target.
type PatchRequest struct {
	Addr int
}

// NewCodeBlock creates an empty code block.
func NewCodeBlock(name string) *CodeBlock {
	return &CodeBlock{Name: name}
}

// Reset discards generated code and parameters so the block can be compiled
// again under the same name.
func (cb *CodeBlock) Reset() {
	cb.Code = nil
	cb.Params = nil
	cb.SourceMap = nil
	cb.line, cb.col = 0, 0
}

// SetPosition sets the source position attributed to subsequently emitted
// instructions.
func (cb *CodeBlock) SetPosition(line, col int) {
	cb.line, cb.col = line, col
}

// Emit appends an instruction and returns its address.
func (cb *CodeBlock) Emit(ins Instruction) int {
	addr := len(cb.Code)
	cb.Code = append(cb.Code, ins)
	if cb.line > 0 {
		n := len(cb.SourceMap)
		if n == 0 || cb.SourceMap[n-1].Line != cb.line || cb.SourceMap[n-1].Column != cb.col {
			cb.SourceMap = append(cb.SourceMap, SourceLocation{Addr: addr, Line: cb.line, Column: cb.col})
		}
	}
	return addr
}

// EmitJump appends a jump whose target is not yet known.
func (cb *CodeBlock) EmitJump(sub SubOp) PatchRequest {
	return PatchRequest{Addr: cb.Emit(Instruction{Op: OpJump, Sub: sub, Addr: -1})}
}

// Patch resolves a pending jump to target.
func (cb *CodeBlock) Patch(req PatchRequest, target int) {
	cb.Code[req.Addr].Addr = target
}

// CurrentAddr returns the address the next emitted instruction will get.
func (cb *CodeBlock) CurrentAddr() int {
	return len(cb.Code)
}

// Unpatched returns the addresses of jumps still holding a placeholder.
func (cb *CodeBlock) Unpatched() []int {
	var out []int
	for i, ins := range cb.Code {
		if ins.Op.IsJump() && ins.Addr < 0 {
			out = append(out, i)
		}
	}
	return out
}

// GetSourceLocation returns the source position of the instruction at addr.
func (cb *CodeBlock) GetSourceLocation(addr int) (line, col int, ok bool) {
	for i := len(cb.SourceMap) - 1; i >= 0; i-- {
		if cb.SourceMap[i].Addr <= addr {
			return cb.SourceMap[i].Line, cb.SourceMap[i].Column, true
		}
	}
	return 0, 0, false
}

// Validate checks that every instruction is well formed and every jump
// target lies within the stream.
func (cb *CodeBlock) Validate() error {
	for i, ins := range cb.Code {
		if !ins.Op.Valid(ins.Sub) {
			return fmt.Errorf("%s: invalid instruction %s/%d at %d", cb.Name, ins.Op, ins.Sub, i)
		}
		if ins.Op.IsJump() && (ins.Addr < 0 || ins.Addr > len(cb.Code)) {
			return fmt.Errorf("%s: jump at %d has target %d outside [0,%d]", cb.Name, i, ins.Addr, len(cb.Code))
		}
		if ins.Op == OpPush && ins.Sub == PushStackFrame && ins.Count < 0 {
			return fmt.Errorf("%s: frame at %d reserves %d locals", cb.Name, i, ins.Count)
		}
	}
	return nil
}
