package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the code block.
func (cb *CodeBlock) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", cb.Name))
	if len(cb.Params) > 0 {
		sb.WriteString(fmt.Sprintf("; Parameters (%d): %s\n", len(cb.Params), strings.Join(cb.Params, ", ")))
	}
	sb.WriteString(fmt.Sprintf("; Instructions: %d\n\n", len(cb.Code)))

	lastLine := 0
	for addr, ins := range cb.Code {
		line, _, ok := cb.GetSourceLocation(addr)
		if ok && line != lastLine {
			sb.WriteString(fmt.Sprintf("; line %d\n", line))
			lastLine = line
		}
		sb.WriteString(fmt.Sprintf("%04d  %s\n", addr, ins.String()))
	}
	return sb.String()
}

// String renders the instruction as "FAMILY/SUB operands".
func (ins Instruction) String() string {
	mnemonic := ins.Op.String()
	if ins.Op != OpReturn {
		mnemonic += "/" + ins.Op.SubOpName(ins.Sub)
	}

	switch ins.Op {
	case OpPush:
		switch ins.Sub {
		case PushConst:
			return fmt.Sprintf("%-24s %s", mnemonic, constString(ins))
		case PushLocalVar, PushLocalArray:
			return fmt.Sprintf("%-24s @%d", mnemonic, ins.Addr)
		case PushLocalRecord:
			return fmt.Sprintf("%-24s @%d depth=%d", mnemonic, ins.Addr, ins.Count)
		case PushLocalRecordPop:
			return fmt.Sprintf("%-24s depth=%d", mnemonic, ins.Count)
		case PushSymbol:
			return fmt.Sprintf("%-24s %q", mnemonic, ins.Name)
		case PushStackFrame:
			if ins.Count > 0 {
				return fmt.Sprintf("%-24s locals=%d", mnemonic, ins.Count)
			}
		}
	case OpAssign:
		switch ins.Sub {
		case AssignLocal, AssignLocalArray:
			return fmt.Sprintf("%-24s @%d %q", mnemonic, ins.Addr, ins.Name)
		case AssignLocalRecord:
			return fmt.Sprintf("%-24s @%d %q depth=%d", mnemonic, ins.Addr, ins.Name, ins.Count)
		case AssignGlobal:
			return fmt.Sprintf("%-24s %q", mnemonic, ins.Name)
		}
	case OpJump:
		return fmt.Sprintf("%-24s -> %04d", mnemonic, ins.Addr)
	case OpCall:
		return fmt.Sprintf("%-24s %s/%d", mnemonic, ins.Name, ins.Count)
	}
	return mnemonic
}

func constString(ins Instruction) string {
	if ins.Const.IsString() {
		return fmt.Sprintf("%q", ins.Const.AsString())
	}
	return ins.Const.String()
}
