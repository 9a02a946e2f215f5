package compiler

import (
	"fmt"
	"strconv"

	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/pkg/value"
)

// ---------------------------------------------------------------------------
// Expressions
//
// Precedence, low to high: comparison, additive, multiplicative, unary
// negation, primary.
// ---------------------------------------------------------------------------

var (
	operandTokens = []TokenType{
		TokenBracketOpen, TokenNumber, TokenNegative, TokenFunction, TokenConstant, TokenVariable,
	}
	operandOrStringTokens = append(operandTokens[:len(operandTokens):len(operandTokens)], TokenString)

	comparisonOps = map[TokenType]bytecode.SubOp{
		TokenSmaller:        bytecode.OperatorSmaller,
		TokenSmallerOrEqual: bytecode.OperatorSmallerOrEqual,
		TokenGreater:        bytecode.OperatorGreater,
		TokenGreaterOrEqual: bytecode.OperatorGreaterOrEqual,
		TokenEqual:          bytecode.OperatorEqual,
		TokenNotEqual:       bytecode.OperatorNotEqual,
	}

	multiplicativeOps = map[TokenType]bytecode.SubOp{
		TokenMult: bytecode.OperatorMult,
		TokenDiv:  bytecode.OperatorDiv,
		TokenMod:  bytecode.OperatorMod,
	}
)

// expression compiles one expression. While it runs '=' lexes as equality.
func (c *Compiler) expression() {
	c.lex.ExprDepth++
	defer func() { c.lex.ExprDepth-- }()
	c.comparison()
}

func (c *Compiler) emitOperator(sub bytecode.SubOp) {
	c.emit(bytecode.Instruction{Op: bytecode.OpOperator, Sub: sub})
}

// operand checks that the token after a binary operator can start an
// operand. String literals are only accepted where allowString is set.
func (c *Compiler) operand(allowString bool) {
	t := c.peek()
	allowed := operandTokens
	if allowString {
		allowed = operandOrStringTokens
	}
	for _, typ := range allowed {
		if t.Type == typ {
			return
		}
	}
	if t.Type == TokenSub {
		return
	}
	c.next()
	c.unexpected(t, allowed...)
}

func (c *Compiler) comparison() {
	c.additive()
	for {
		sub, ok := comparisonOps[c.peek().Type]
		if !ok {
			return
		}
		c.next()
		c.operand(true)
		c.additive()
		c.emitOperator(sub)
	}
}

// additive also accepts a '-' lexed as negation in operator position, so
// "2 -3" subtracts.
func (c *Compiler) additive() {
	c.term()
	for {
		switch c.peek().Type {
		case TokenAdd:
			c.next()
			c.operand(true)
			c.term()
			c.emitOperator(bytecode.OperatorAdd)
		case TokenSub, TokenNegative:
			c.next()
			c.operand(false)
			c.term()
			c.emitOperator(bytecode.OperatorSub)
		default:
			return
		}
	}
}

func (c *Compiler) term() {
	c.unary()
	for {
		sub, ok := multiplicativeOps[c.peek().Type]
		if !ok {
			return
		}
		c.next()
		c.operand(false)
		c.unary()
		c.emitOperator(sub)
	}
}

// unary also accepts a '-' lexed as subtraction in operand position.
func (c *Compiler) unary() {
	switch c.peek().Type {
	case TokenNegative, TokenSub:
		c.next()
		c.unary()
		c.emitOperator(bytecode.OperatorNegative)
	default:
		c.primary()
	}
}

func (c *Compiler) primary() {
	t := c.next()
	c.mark(t)
	switch t.Type {
	case TokenBracketOpen:
		c.expression()
		c.expect(TokenBracketClose)
		c.tail()

	case TokenNumber:
		f, err := strconv.ParseFloat(t.Literal, 64)
		if err != nil {
			c.errorAt(t, fmt.Sprintf("Invalid number %q.", t.Literal))
		}
		c.emitConst(value.Number(f))

	case TokenString:
		c.emitConst(value.String(t.Literal))

	case TokenConstant:
		v, _ := c.env.Constant(t.Literal)
		c.emitConst(v)

	case TokenVariable:
		sym, _ := c.scope.Lookup(t.Literal)
		sym.Used = true
		c.variable(sym)

	case TokenFunction:
		c.call(t)
		c.tail()

	case TokenUnknown:
		c.errorAt(t, fmt.Sprintf("Unknown identifier %q.", t.Literal))

	default:
		c.unexpected(t, operandOrStringTokens...)
	}
}

// variable compiles a read of a local, with an optional index or key path
// read directly from its slot.
func (c *Compiler) variable(sym *Symbol) {
	switch c.peek().Type {
	case TokenSquareOpen:
		c.next()
		c.expression()
		c.expect(TokenSquareClose)
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalArray, Addr: sym.Addr})
		c.tail()
	case TokenDot:
		n := c.keyPath()
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalRecord, Addr: sym.Addr, Count: n})
		c.tail()
	default:
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalVar, Addr: sym.Addr})
	}
}

// tail compiles index and key-path suffixes applied to the value on top of
// the stack.
func (c *Compiler) tail() {
	for {
		switch c.peek().Type {
		case TokenSquareOpen:
			c.next()
			c.expression()
			c.expect(TokenSquareClose)
			c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalArrayPop})
		case TokenDot:
			n := c.keyPath()
			c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalRecordPop, Count: n})
		default:
			return
		}
	}
}

// call compiles a call to a native or a code block. The callee name has
// been consumed.
//
//	native g(a)  : <a>; Call/Native g 1
//	block f(a,b) : Push 0; Symbol "result"; <a>; Symbol p1; <b>; Symbol p2; Call/CodeBlock f 2
func (c *Compiler) call(t Token) {
	name := t.Literal
	native, isNative := c.env.Native(name)

	var (
		arity  int
		params []string
	)
	if isNative {
		arity = native.Arity
	} else {
		cb, ok := c.env.CodeBlock(name)
		if !ok {
			c.errorAt(t, fmt.Sprintf("Unknown function %q.", name))
		}
		params = append([]string(nil), cb.Params...)
		arity = len(params)
		c.emitConst(value.Number(0))
		c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushSymbol, Name: resultName})
	}

	c.expect(TokenBracketOpen)
	argc := 0
	if arity >= 0 {
		for i := 0; i < arity; i++ {
			if i > 0 {
				c.expect(TokenComma)
			}
			c.expression()
			if !isNative {
				c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushSymbol, Name: params[i]})
			}
			argc++
		}
	} else if c.peek().Type != TokenBracketClose {
		for {
			c.expression()
			argc++
			if !c.accept(TokenComma) {
				break
			}
		}
	}
	c.expect(TokenBracketClose)

	c.mark(t)
	if isNative {
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Sub: bytecode.CallNative, Name: name, Count: argc})
	} else {
		c.emit(bytecode.Instruction{Op: bytecode.OpCall, Sub: bytecode.CallCodeBlock, Name: name, Count: argc})
	}
}
