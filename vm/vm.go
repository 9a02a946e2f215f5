package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/pkg/value"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trashdsl.vm")

// ResultLabel labels the slot that receives a code block's result.
const ResultLabel = "result"

// VM executes code blocks registered in an Environment.
type VM struct {
	env *Environment

	stack   []value.Value // operand stack
	labels  []string     // diagnostic label per stack slot
	frames  []int        // frame bases; never empty
	returns []int        // return addresses of active calls

	// MaxCallDepth bounds nested code block calls when positive.
	MaxCallDepth int

	// Out receives output from natives such as print and trace.
	Out io.Writer
}

// New creates a VM bound to env.
func New(env *Environment) *VM {
	m := &VM{env: env, Out: os.Stdout}
	m.Reset()
	return m
}

// Env returns the registry the VM resolves calls against.
func (m *VM) Env() *Environment {
	return m.env
}

// Reset restores the initial state: a single result slot holding 0 and the
// root frame.
func (m *VM) Reset() {
	m.stack = []value.Value{value.Number(0)}
	m.labels = []string{ResultLabel}
	m.frames = []int{0}
	m.returns = nil
}

// Run resets the VM, executes cb and returns the value in the result slot.
func (m *VM) Run(cb *bytecode.CodeBlock) (value.Value, error) {
	m.Reset()
	if err := m.Execute(cb); err != nil {
		return value.Value{}, err
	}
	return m.Result(), nil
}

// Execute runs cb against the current stacks without resetting them.
func (m *VM) Execute(cb *bytecode.CodeBlock) error {
	if cb == nil {
		return fmt.Errorf("%w: nil code block", ErrUnknownCodeBlock)
	}
	log.Debugf("execute %s (%d instructions)", cb.Name, len(cb.Code))
	return m.run(cb)
}

// Result returns the value in stack slot 0.
func (m *VM) Result() value.Value {
	if len(m.stack) == 0 {
		return value.Nil()
	}
	return m.stack[0]
}

// Stack returns a copy of the operand stack.
func (m *VM) Stack() []value.Value {
	out := make([]value.Value, len(m.stack))
	copy(out, m.stack)
	return out
}

// Labels returns a copy of the label stack.
func (m *VM) Labels() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// FrameDepth returns the number of frame bases, including the root.
func (m *VM) FrameDepth() int {
	return len(m.frames)
}

// CallDepth returns the number of active code block calls.
func (m *VM) CallDepth() int {
	return len(m.returns)
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (m *VM) fail(err error) {
	panic(fault{err: err})
}

func (m *VM) check(err error) {
	if err != nil {
		m.fail(err)
	}
}

func (m *VM) push(v value.Value, label string) {
	m.stack = append(m.stack, v)
	m.labels = append(m.labels, label)
}

func (m *VM) pop() value.Value {
	n := len(m.stack)
	if n == 0 {
		m.fail(fmt.Errorf("%w: stack underflow", ErrBadInstruction))
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	m.labels = m.labels[:n-1]
	return v
}

// popN pops n values and returns them in push order.
func (m *VM) popN(n int) []value.Value {
	if n < 0 || len(m.stack) < n {
		m.fail(fmt.Errorf("%w: stack underflow", ErrBadInstruction))
	}
	out := make([]value.Value, n)
	copy(out, m.stack[len(m.stack)-n:])
	m.truncate(len(m.stack) - n)
	return out
}

func (m *VM) truncate(height int) {
	m.stack = m.stack[:height]
	m.labels = m.labels[:height]
}

// slot converts a frame-relative address to an absolute stack index.
func (m *VM) slot(addr int) int {
	i := m.frames[len(m.frames)-1] + addr
	if i < 0 {
		m.fail(fmt.Errorf("%w: slot %d below stack bottom", ErrBadInstruction, addr))
	}
	return i
}

// get reads an absolute slot. Slots not yet materialized read as nil.
func (m *VM) get(i int) value.Value {
	if i >= len(m.stack) {
		return value.Nil()
	}
	return m.stack[i]
}

// set writes an absolute slot, growing the stack with nil slots as needed.
func (m *VM) set(i int, v value.Value, label string) {
	for len(m.stack) <= i {
		m.push(value.Nil(), "")
	}
	m.stack[i] = v
	m.labels[i] = label
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

func (m *VM) run(cb *bytecode.CodeBlock) (err error) {
	entryFrames := len(m.frames)
	pc := 0

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(fault)
			if !ok {
				panic(r)
			}
			err = m.runtimeError(cb, pc, f.err)
		}
	}()

	for pc < len(cb.Code) {
		ins := &cb.Code[pc]
		next := pc + 1

		switch ins.Op {
		case bytecode.OpPush:
			m.execPush(ins)

		case bytecode.OpOperator:
			m.execOperator(ins)

		case bytecode.OpAssign:
			m.execAssign(ins)

		case bytecode.OpPop:
			switch ins.Sub {
			case bytecode.PopConst:
				m.pop()
			case bytecode.PopStackFrame:
				if len(m.frames) <= 1 {
					m.fail(fmt.Errorf("%w: pop of root frame", ErrBadInstruction))
				}
				m.frames = m.frames[:len(m.frames)-1]
			default:
				m.badSubOp(ins)
			}

		case bytecode.OpJump:
			if ins.Addr < 0 || ins.Addr > len(cb.Code) {
				m.fail(fmt.Errorf("%w: jump target %d", ErrBadInstruction, ins.Addr))
			}
			if m.jumpTaken(ins) {
				next = ins.Addr
			}

		case bytecode.OpCall:
			switch ins.Sub {
			case bytecode.CallNative:
				m.callNative(ins)
			case bytecode.CallCodeBlock:
				if err := m.callCodeBlock(ins, pc); err != nil {
					return err
				}
			default:
				m.badSubOp(ins)
			}

		case bytecode.OpReturn:
			m.frames = m.frames[:entryFrames]
			return nil

		default:
			m.fail(fmt.Errorf("%w: unknown opcode 0x%02x", ErrBadInstruction, byte(ins.Op)))
		}

		pc = next
	}
	return nil
}

func (m *VM) badSubOp(ins *bytecode.Instruction) {
	m.fail(fmt.Errorf("%w: %s has no sub-operation %d", ErrBadInstruction, ins.Op, ins.Sub))
}

func (m *VM) runtimeError(cb *bytecode.CodeBlock, pc int, err error) *RuntimeError {
	line, col, _ := cb.GetSourceLocation(pc)
	return &RuntimeError{Block: cb.Name, PC: pc, Line: line, Col: col, Err: err}
}

func (m *VM) execPush(ins *bytecode.Instruction) {
	switch ins.Sub {
	case bytecode.PushConst:
		m.push(ins.Const.Clone(), "")

	case bytecode.PushLocalVar:
		m.push(m.get(m.slot(ins.Addr)), "")

	case bytecode.PushLocalArray:
		container := m.get(m.slot(ins.Addr))
		idx := m.pop()
		v, err := value.Index(container, idx)
		m.check(err)
		m.push(v, "")

	case bytecode.PushLocalArrayPop:
		idx := m.pop()
		container := m.pop()
		v, err := value.Index(container, idx)
		m.check(err)
		m.push(v, "")

	case bytecode.PushLocalRecord:
		root := m.get(m.slot(ins.Addr))
		keys := m.popN(ins.Count)
		v, err := value.Descend(root, keys)
		m.check(err)
		m.push(v, "")

	case bytecode.PushLocalRecordPop:
		keys := m.popN(ins.Count)
		root := m.pop()
		v, err := value.Descend(root, keys)
		m.check(err)
		m.push(v, "")

	case bytecode.PushSymbol:
		if len(m.labels) == 0 {
			m.fail(fmt.Errorf("%w: label on empty stack", ErrBadInstruction))
		}
		m.labels[len(m.labels)-1] = ins.Name

	case bytecode.PushStackFrame:
		m.frames = append(m.frames, len(m.stack))
		// Count reserves the block's body locals so they read nil until
		// assigned, whatever ran before.
		for i := 0; i < ins.Count; i++ {
			m.push(value.Nil(), "")
		}

	default:
		m.badSubOp(ins)
	}
}

func (m *VM) execOperator(ins *bytecode.Instruction) {
	var (
		r   value.Value
		err error
	)
	switch ins.Sub {
	case bytecode.OperatorNegative:
		r, err = value.Negate(m.pop())
	case bytecode.OperatorInc:
		r, err = value.Inc(m.pop())
	case bytecode.OperatorDec:
		r, err = value.Dec(m.pop())
	default:
		b := m.pop()
		a := m.pop()
		r, err = binary(ins, a, b)
	}
	m.check(err)
	m.push(r, "")
}

func binary(ins *bytecode.Instruction, a, b value.Value) (value.Value, error) {
	switch ins.Sub {
	case bytecode.OperatorAdd:
		return value.Add(a, b)
	case bytecode.OperatorSub:
		return value.Sub(a, b)
	case bytecode.OperatorMult:
		return value.Mul(a, b)
	case bytecode.OperatorDiv:
		return value.Div(a, b)
	case bytecode.OperatorMod:
		return value.Mod(a, b)
	case bytecode.OperatorEqual:
		return value.Bool(value.Equal(a, b)), nil
	case bytecode.OperatorNotEqual:
		return value.Bool(!value.Equal(a, b)), nil
	case bytecode.OperatorGreater, bytecode.OperatorSmaller,
		bytecode.OperatorGreaterOrEqual, bytecode.OperatorSmallerOrEqual:
		c, err := value.Compare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		switch ins.Sub {
		case bytecode.OperatorGreater:
			return value.Bool(c > 0), nil
		case bytecode.OperatorSmaller:
			return value.Bool(c < 0), nil
		case bytecode.OperatorGreaterOrEqual:
			return value.Bool(c >= 0), nil
		}
		return value.Bool(c <= 0), nil
	}
	return value.Value{}, fmt.Errorf("%w: %s has no sub-operation %d", ErrBadInstruction, ins.Op, ins.Sub)
}

func (m *VM) execAssign(ins *bytecode.Instruction) {
	switch ins.Sub {
	case bytecode.AssignLocal:
		v := m.pop()
		m.set(m.slot(ins.Addr), v, ins.Name)

	case bytecode.AssignLocalArray:
		v := m.pop()
		idx := m.pop()
		i := m.slot(ins.Addr)
		updated, err := value.SetIndex(m.get(i), idx, v)
		m.check(err)
		m.set(i, updated, ins.Name)

	case bytecode.AssignLocalRecord:
		v := m.pop()
		keys := m.popN(ins.Count)
		m.check(value.AssignPath(m.get(m.slot(ins.Addr)), keys, v))

	case bytecode.AssignGlobal:
		m.env.RegisterGlobal(ins.Name, m.pop())

	default:
		m.badSubOp(ins)
	}
}

func (m *VM) jumpTaken(ins *bytecode.Instruction) bool {
	if ins.Sub == bytecode.JumpAlways {
		return true
	}
	b := m.pop()
	a := m.pop()
	switch ins.Sub {
	case bytecode.JumpEqual:
		return value.Equal(a, b)
	case bytecode.JumpNotEqual:
		return !value.Equal(a, b)
	}
	c, err := value.Compare(a, b)
	m.check(err)
	switch ins.Sub {
	case bytecode.JumpGreater:
		return c > 0
	case bytecode.JumpGreaterOrEqual:
		return c >= 0
	case bytecode.JumpSmaller:
		return c < 0
	case bytecode.JumpSmallerOrEqual:
		return c <= 0
	}
	m.badSubOp(ins)
	return false
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (m *VM) callNative(ins *bytecode.Instruction) {
	nat, ok := m.env.Native(ins.Name)
	if !ok {
		m.fail(fmt.Errorf("%w: %s", ErrUnknownNative, ins.Name))
	}
	if nat.Arity != Variadic && nat.Arity != ins.Count {
		m.fail(fmt.Errorf("%w: %s expects %d arguments, got %d", ErrBadInstruction, nat.Name, nat.Arity, ins.Count))
	}
	args := m.popN(ins.Count)
	r, err := m.invoke(nat, args)
	if err != nil {
		m.fail(fmt.Errorf("%s: %w", nat.Name, err))
	}
	m.push(r, "")
}

func (m *VM) invoke(nat *Native, args []value.Value) (r value.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			if f, ok := p.(fault); ok {
				panic(f)
			}
			err = fmt.Errorf("%w: %v", ErrNativePanic, p)
		}
	}()
	return nat.Fn(args, m)
}

// callCodeBlock runs the callee on the shared stacks. On return every value
// above the call's frame base is discarded, then one value per parameter,
// leaving the callee's result slot on top.
func (m *VM) callCodeBlock(ins *bytecode.Instruction, pc int) error {
	callee, ok := m.env.CodeBlock(ins.Name)
	if !ok {
		m.fail(fmt.Errorf("%w: %s", ErrUnknownCodeBlock, ins.Name))
	}
	if m.MaxCallDepth > 0 && len(m.returns) >= m.MaxCallDepth {
		m.fail(fmt.Errorf("%w: %d nested calls", ErrCallDepthExceeded, m.MaxCallDepth))
	}

	m.frames = append(m.frames, len(m.stack))
	m.returns = append(m.returns, pc)
	log.Debugf("call %s depth=%d", callee.Name, len(m.returns))

	if err := m.run(callee); err != nil {
		return err
	}

	m.returns = m.returns[:len(m.returns)-1]
	base := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	if base < len(m.stack) {
		m.truncate(base)
	}
	m.popN(len(callee.Params))
	return nil
}
