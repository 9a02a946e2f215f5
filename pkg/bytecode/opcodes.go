package bytecode

import "fmt"

// Opcode selects an instruction family. The SubOp carried by each
// Instruction selects the member of that family.
type Opcode byte

const (
	OpPush     Opcode = 0x01 // push a value or frame marker
	OpOperator Opcode = 0x02 // pop operands, push result
	OpAssign   Opcode = 0x03 // pop value, store into a slot or global
	OpPop      Opcode = 0x04 // discard a value or frame marker
	OpJump     Opcode = 0x05 // unconditional or compare-and-branch
	OpCall     Opcode = 0x06 // invoke a native or a code block
	OpReturn   Opcode = 0x07 // end the active code block
)

// SubOp is the sub-operation tag of an instruction. Its meaning depends on
// the instruction's Opcode.
type SubOp uint8

// Push sub-operations.
const (
	PushConst          SubOp = iota // Const
	PushLocalVar                    // slot Addr
	PushLocalArray                  // element of slot Addr at popped index
	PushLocalArrayPop               // element of popped value at popped index
	PushLocalRecord                 // descend Count popped keys from slot Addr
	PushLocalRecordPop              // descend Count popped keys from the value below them
	PushSymbol                      // relabel top of stack with Name
	PushStackFrame                  // push stack height as frame base, then Count nil locals
)

// Operator sub-operations.
const (
	OperatorAdd SubOp = iota
	OperatorSub
	OperatorMult
	OperatorDiv
	OperatorMod
	OperatorNegative
	OperatorGreater
	OperatorSmaller
	OperatorGreaterOrEqual
	OperatorSmallerOrEqual
	OperatorEqual
	OperatorNotEqual
	OperatorInc
	OperatorDec
)

// Assign sub-operations.
const (
	AssignLocal       SubOp = iota // slot Addr, label Name
	AssignLocalArray               // element of slot Addr at popped index
	AssignLocalRecord              // Count keys below the value, rooted at slot Addr
	AssignGlobal                   // registry global Name
)

// Pop sub-operations.
const (
	PopConst SubOp = iota
	PopStackFrame
)

// Jump sub-operations. All but JumpAlways pop two values and branch to Addr
// when the comparison holds.
const (
	JumpAlways SubOp = iota
	JumpEqual
	JumpNotEqual
	JumpGreater
	JumpGreaterOrEqual
	JumpSmaller
	JumpSmallerOrEqual
)

// Call sub-operations. Name is the callee, Count the argument count.
const (
	CallNative SubOp = iota
	CallCodeBlock
)

// OpcodeInfo describes an opcode family for disassembly and validation.
type OpcodeInfo struct {
	Name   string
	SubOps []string // names indexed by SubOp
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpPush: {Name: "PUSH", SubOps: []string{
		"CONST", "LOCAL_VAR", "LOCAL_ARRAY", "LOCAL_ARRAY_POP",
		"LOCAL_RECORD", "LOCAL_RECORD_POP", "SYMBOL", "STACK_FRAME",
	}},
	OpOperator: {Name: "OPERATOR", SubOps: []string{
		"ADD", "SUB", "MULT", "DIV", "MOD", "NEGATIVE",
		"GREATER", "SMALLER", "GREATER_OR_EQUAL", "SMALLER_OR_EQUAL",
		"EQUAL", "NOT_EQUAL", "INC", "DEC",
	}},
	OpAssign: {Name: "ASSIGN", SubOps: []string{"LOCAL", "LOCAL_ARRAY", "LOCAL_RECORD", "GLOBAL"}},
	OpPop:    {Name: "POP", SubOps: []string{"CONST", "STACK_FRAME"}},
	OpJump: {Name: "JUMP", SubOps: []string{
		"ALWAYS", "EQUAL", "NOT_EQUAL", "GREATER", "GREATER_OR_EQUAL", "SMALLER", "SMALLER_OR_EQUAL",
	}},
	OpCall:   {Name: "CALL", SubOps: []string{"NATIVE", "CODE_BLOCK"}},
	OpReturn: {Name: "RETURN", SubOps: []string{""}},
}

// GetOpcodeInfo returns metadata for an opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether sub is a defined sub-operation of op.
func (op Opcode) Valid(sub SubOp) bool {
	info, ok := opcodeInfoTable[op]
	return ok && int(sub) < len(info.SubOps)
}

// SubOpName returns the mnemonic of sub within op's family.
func (op Opcode) SubOpName(sub SubOp) string {
	if !op.Valid(sub) {
		return fmt.Sprintf("?%d", sub)
	}
	return opcodeInfoTable[op].SubOps[sub]
}

// IsJump reports whether the instruction family carries a jump target.
func (op Opcode) IsJump() bool {
	return op == OpJump
}
