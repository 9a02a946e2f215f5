// Package compiler turns trashdsl source text into bytecode code blocks.
//
// The compiler is a recursive-descent parser that generates code directly,
// with one token of lookahead. Forward jumps are emitted with placeholder
// targets and back-patched once their destination is known. Each code block
// gets its own Scope; nested function declarations are compiled by a child
// Compiler that shares the lexer, so the parent resumes right after the
// nested body.
package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trashdsl.compiler")

const resultName = "result"

// loop holds the jumps of one enclosing loop that still need a target.
type loop struct {
	breaks    []bytecode.PatchRequest
	continues []bytecode.PatchRequest
}

// Compiler compiles source text into code blocks registered in an
// Environment.
type Compiler struct {
	env   *vm.Environment
	lex   *Lexer
	cb    *bytecode.CodeBlock
	scope *Scope
	loops []*loop
	hints []Hint

	// registered lists the blocks created by the current Compile call,
	// shared with child compilers.
	registered *[]string
}

// New creates a compiler resolving names against env.
func New(env *vm.Environment) *Compiler {
	return &Compiler{env: env}
}

// Hints returns the hints collected by the last Compile call.
func (c *Compiler) Hints() []Hint {
	return c.hints
}

// Compile compiles src as a top-level program named name and registers it,
// along with every function it declares, in the environment. On error no
// block created by this call stays registered.
func (c *Compiler) Compile(name, src string) (cb *bytecode.CodeBlock, err error) {
	c.hints = nil
	c.loops = nil
	c.lex = NewLexer(src, c.classify)
	var registered []string
	c.registered = &registered

	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			for _, n := range registered {
				c.env.RemoveCodeBlock(n)
			}
			log.Debugf("compile %s failed: %s", name, b.err)
			cb, err = nil, b.err
		}
	}()

	scope := NewScope()
	scope.DeclareAt(resultName, -1, IdentAtom, 1, 1)
	cb = c.generate(strings.ToLower(name), nil, scope, c.program)
	log.Debugf("compiled %s: %d instructions, %d hints", cb.Name, len(cb.Code), len(c.hints))
	return cb, nil
}

// generate registers a code block and compiles body into it between the
// frame push and pop.
func (c *Compiler) generate(name string, params []string, scope *Scope, body func()) *bytecode.CodeBlock {
	c.cb = c.env.RegisterCodeBlock(name)
	c.cb.Params = params
	c.scope = scope
	*c.registered = append(*c.registered, name)

	frame := c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushStackFrame})
	body()
	c.emit(bytecode.Instruction{Op: bytecode.OpPop, Sub: bytecode.PopStackFrame})
	c.cb.Code[frame].Count = scope.Locals()

	if pending := c.cb.Unpatched(); len(pending) > 0 {
		c.errorf("internal: unpatched jumps at %v", pending)
	}
	for _, sym := range scope.Unused() {
		c.hints = append(c.hints, Hint{
			Block:   c.cb.Name,
			Name:    sym.Name,
			Line:    sym.Line,
			Col:     sym.Col,
			Message: fmt.Sprintf("Variable %q is declared but not used.", sym.Name),
		})
	}
	return c.cb
}

// classify resolves identifiers in priority order: native, code block,
// constant, local.
func (c *Compiler) classify(word string) TokenType {
	if _, ok := c.env.Native(word); ok {
		return TokenFunction
	}
	if _, ok := c.env.CodeBlock(word); ok {
		return TokenFunction
	}
	if _, ok := c.env.Constant(word); ok {
		return TokenConstant
	}
	if c.scope != nil {
		if sym, ok := c.scope.Lookup(word); ok {
			if sym.Kind == IdentFunction {
				return TokenFunction
			}
			return TokenVariable
		}
	}
	return TokenUnknown
}

// ---------------------------------------------------------------------------
// Token handling
// ---------------------------------------------------------------------------

func (c *Compiler) peek() Token {
	t := c.lex.Peek()
	if t.Type == TokenError {
		c.errorAt(t, t.Literal)
	}
	return t
}

func (c *Compiler) next() Token {
	t := c.lex.NextToken()
	if t.Type == TokenError {
		c.errorAt(t, t.Literal)
	}
	return t
}

// expect consumes the next token, failing unless it is one of types.
func (c *Compiler) expect(types ...TokenType) Token {
	t := c.next()
	for _, typ := range types {
		if t.Type == typ {
			return t
		}
	}
	c.unexpected(t, types...)
	return t
}

// accept consumes the next token if it has type typ.
func (c *Compiler) accept(typ TokenType) bool {
	if c.peek().Type == typ {
		c.next()
		return true
	}
	return false
}

func (c *Compiler) unexpected(t Token, types ...TokenType) {
	quoted := make([]string, len(types))
	for i, typ := range types {
		quoted[i] = fmt.Sprintf("%q", typ.String())
	}
	c.errorAt(t, fmt.Sprintf("Expected %s, got %q instead.", strings.Join(quoted, " or "), t.Type.String()))
}

func (c *Compiler) errorAt(t Token, msg string) {
	panic(bailout{err: &CompileError{Block: c.cb.Name, Line: t.Line, Col: t.Col, Msg: msg}})
}

func (c *Compiler) errorf(format string, args ...any) {
	panic(bailout{err: &CompileError{Block: c.cb.Name, Line: c.lex.line, Col: c.lex.col, Msg: fmt.Sprintf(format, args...)}})
}

// ---------------------------------------------------------------------------
// Code emission
// ---------------------------------------------------------------------------

func (c *Compiler) emit(ins bytecode.Instruction) int {
	return c.cb.Emit(ins)
}

func (c *Compiler) mark(t Token) {
	c.cb.SetPosition(t.Line, t.Col)
}

func (c *Compiler) emitConst(v value.Value) {
	c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushConst, Const: v})
}

func (c *Compiler) emitAssignLocal(sym *Symbol) {
	c.emit(bytecode.Instruction{Op: bytecode.OpAssign, Sub: bytecode.AssignLocal, Addr: sym.Addr, Name: sym.Name})
}

func (c *Compiler) resultSymbol() *Symbol {
	sym, _ := c.scope.Lookup(resultName)
	return sym
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// program compiles a top-level block: a statement list, or a formula when
// the source starts with an assignment token.
func (c *Compiler) program() {
	if t := c.peek(); t.Type == TokenAssign {
		c.next()
		c.mark(t)
		c.expression()
		c.emitAssignLocal(c.resultSymbol())
		c.expect(TokenEOF)
		return
	}
	for c.peek().Type != TokenEOF {
		c.statement()
	}
}

// block compiles statements up to the closing brace. The opening brace has
// been consumed.
func (c *Compiler) block() {
	for {
		t := c.peek()
		switch t.Type {
		case TokenEnd:
			c.next()
			return
		case TokenEOF:
			c.unexpected(t, TokenEnd)
		}
		c.statement()
	}
}

func (c *Compiler) statement() {
	t := c.peek()
	c.mark(t)
	switch t.Type {
	case TokenBegin:
		c.next()
		c.block()
	case TokenWhile:
		c.next()
		c.whileStatement()
	case TokenFor:
		c.next()
		c.forStatement()
	case TokenWhen:
		c.next()
		c.whenStatement()
	case TokenUnknown:
		c.next()
		c.declaration(t)
	case TokenVariable:
		c.next()
		sym, _ := c.scope.Lookup(t.Literal)
		c.assignment(t, sym)
	case TokenFunction:
		c.next()
		c.call(t)
		c.emit(bytecode.Instruction{Op: bytecode.OpPop, Sub: bytecode.PopConst})
	case TokenReturn:
		c.next()
		c.emit(bytecode.Instruction{Op: bytecode.OpReturn})
	case TokenBreak, TokenContinue:
		c.next()
		c.loopJump(t)
	default:
		c.next()
		c.errorAt(t, fmt.Sprintf("Invalid statement, got %q.", t.Type.String()))
	}
}

func (c *Compiler) loopJump(t Token) {
	if len(c.loops) == 0 {
		c.errorAt(t, fmt.Sprintf("Not in loop but %q found.", t.Literal))
	}
	l := c.loops[len(c.loops)-1]
	req := c.cb.EmitJump(bytecode.JumpAlways)
	if t.Type == TokenBreak {
		l.breaks = append(l.breaks, req)
	} else {
		l.continues = append(l.continues, req)
	}
}

func (c *Compiler) pushLoop() *loop {
	l := &loop{}
	c.loops = append(c.loops, l)
	return l
}

// popLoop resolves the loop's pending break and continue jumps.
func (c *Compiler) popLoop(l *loop, end, cont int) {
	c.loops = c.loops[:len(c.loops)-1]
	for _, req := range l.breaks {
		c.cb.Patch(req, end)
	}
	for _, req := range l.continues {
		c.cb.Patch(req, cont)
	}
}

// whenStatement compiles
//
//	<cond>; Push true; Jump/Equal THEN; Jump ELSE; THEN: <s1>; Jump END; ELSE: [<s2>]; END:
func (c *Compiler) whenStatement() {
	c.expression()
	c.emitConst(value.Bool(true))
	toThen := c.cb.EmitJump(bytecode.JumpEqual)
	toElse := c.cb.EmitJump(bytecode.JumpAlways)

	thenAddr := c.cb.CurrentAddr()
	c.expect(TokenThen)
	c.statement()
	toEnd := c.cb.EmitJump(bytecode.JumpAlways)

	elseAddr := c.cb.CurrentAddr()
	if c.accept(TokenElse) {
		c.statement()
	}
	end := c.cb.CurrentAddr()

	c.cb.Patch(toThen, thenAddr)
	c.cb.Patch(toElse, elseAddr)
	c.cb.Patch(toEnd, end)
}

// whileStatement compiles
//
//	HEAD: <cond>; Push false; Jump/Equal END; <body>; Jump HEAD; END:
func (c *Compiler) whileStatement() {
	l := c.pushLoop()
	head := c.cb.CurrentAddr()
	c.expression()
	c.accept(TokenDo)
	c.emitConst(value.Bool(false))
	toEnd := c.cb.EmitJump(bytecode.JumpEqual)

	c.statement()

	back := c.cb.EmitJump(bytecode.JumpAlways)
	c.cb.Patch(back, head)
	end := c.cb.CurrentAddr()
	c.cb.Patch(toEnd, end)
	c.popLoop(l, end, head)
}

// forStatement compiles
//
//	<init>; Assign v; HEAD: Push v; <bound>; Jump/Greater END; <body>;
//	STEP: Push v; Inc; Assign v; Jump HEAD; END:
//
// with Jump/Smaller and Dec for downto.
func (c *Compiler) forStatement() {
	l := c.pushLoop()

	t := c.expect(TokenVariable, TokenUnknown)
	sym, ok := c.scope.Lookup(t.Literal)
	if !ok {
		sym = c.scope.Declare(t.Literal, IdentAtom, t.Line, t.Col)
	}
	sym.Used = true

	c.expect(TokenAssign)
	c.expression()
	c.emitAssignLocal(sym)

	dir := c.expect(TokenTo, TokenDownTo)
	exit, step := bytecode.JumpGreater, bytecode.OperatorInc
	if dir.Type == TokenDownTo {
		exit, step = bytecode.JumpSmaller, bytecode.OperatorDec
	}

	head := c.cb.CurrentAddr()
	c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalVar, Addr: sym.Addr})
	c.expression()
	toEnd := c.cb.EmitJump(exit)
	c.accept(TokenDo)

	c.statement()

	stepAddr := c.cb.CurrentAddr()
	c.emit(bytecode.Instruction{Op: bytecode.OpPush, Sub: bytecode.PushLocalVar, Addr: sym.Addr})
	c.emit(bytecode.Instruction{Op: bytecode.OpOperator, Sub: step})
	c.emitAssignLocal(sym)
	back := c.cb.EmitJump(bytecode.JumpAlways)
	c.cb.Patch(back, head)

	end := c.cb.CurrentAddr()
	c.cb.Patch(toEnd, end)
	c.popLoop(l, end, stepAddr)
}

// declaration handles a statement starting with an identifier seen for the
// first time: a function declaration or the first assignment of a local.
func (c *Compiler) declaration(t Token) {
	if c.peek().Type == TokenBracketOpen {
		c.functionDeclaration(t, true)
		return
	}
	if c.peek().Type == TokenAssign {
		s := c.lex.Save()
		c.next()
		if c.peek().Type == TokenFunctionDecl {
			c.next()
			c.functionDeclaration(t, false)
			return
		}
		if c.lambdaAhead() {
			c.functionDeclaration(t, true)
			return
		}
		c.lex.Restore(s)
	}
	sym := c.scope.Declare(t.Literal, IdentAtom, t.Line, t.Col)
	c.assignment(t, sym)
}

// assignment compiles the remainder of an assignment to sym: an optional
// element index or key path, the assignment token and the right-hand side.
func (c *Compiler) assignment(t Token, sym *Symbol) {
	indexed := false
	depth := 0
	if c.accept(TokenSquareOpen) {
		c.expression()
		c.expect(TokenSquareClose)
		indexed = true
	} else {
		depth = c.keyPath()
	}

	c.expect(TokenAssign)

	kind := IdentAtom
	switch p := c.peek(); {
	case p.Type == TokenSquareOpen:
		c.next()
		c.expect(TokenSquareClose)
		c.emitConst(value.NewArray())
		kind = IdentArray
	case p.Type == TokenBegin:
		c.next()
		c.expect(TokenEnd)
		c.emitConst(value.NewRecord())
		kind = IdentRecord
	case p.Type == TokenFunctionDecl || c.lambdaAhead():
		c.errorAt(t, fmt.Sprintf("Cannot redeclare %q as a function.", t.Literal))
	default:
		c.expression()
	}

	switch {
	case indexed:
		c.emit(bytecode.Instruction{Op: bytecode.OpAssign, Sub: bytecode.AssignLocalArray, Addr: sym.Addr, Name: sym.Name})
	case depth > 0:
		c.emit(bytecode.Instruction{Op: bytecode.OpAssign, Sub: bytecode.AssignLocalRecord, Addr: sym.Addr, Name: sym.Name, Count: depth})
	default:
		sym.Kind = kind
		c.emitAssignLocal(sym)
	}
}

// keyPath compiles a ".key.key" chain as pushed string constants and
// returns its length.
func (c *Compiler) keyPath() int {
	n := 0
	for c.peek().Type == TokenDot {
		c.next()
		k := c.expect(TokenConstant, TokenVariable, TokenFunction, TokenUnknown)
		c.emitConst(value.String(k.Literal))
		n++
	}
	return n
}
