package compiler

import (
	"fmt"

	"github.com/chazu/trashdsl/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Nested function declarations
//
//	f(a, b) => body
//	f := (a, b) => body
//	f := function(a, b) body
//
// body is "{ statements }" or a single expression assigned to result.
// ---------------------------------------------------------------------------

// lambdaAhead reports whether the upcoming tokens are a parameter list
// followed by "=>". It never consumes input.
func (c *Compiler) lambdaAhead() bool {
	s := c.lex.Save()
	defer c.lex.Restore(s)

	if c.lex.NextToken().Type != TokenBracketOpen {
		return false
	}
	t := c.lex.NextToken()
	if t.Type != TokenBracketClose {
		for {
			if !isParamName(t.Type) {
				return false
			}
			t = c.lex.NextToken()
			if t.Type == TokenBracketClose {
				break
			}
			if t.Type != TokenComma {
				return false
			}
			t = c.lex.NextToken()
		}
	}
	return c.lex.NextToken().Type == TokenLambda
}

func isParamName(t TokenType) bool {
	return t == TokenUnknown || t == TokenVariable
}

// paramList compiles "(a, b)" and returns the parameter names.
func (c *Compiler) paramList() []string {
	c.expect(TokenBracketOpen)
	var params []string
	seen := make(map[string]bool)
	if c.accept(TokenBracketClose) {
		return params
	}
	for {
		t := c.expect(TokenUnknown, TokenVariable)
		if seen[t.Literal] {
			c.errorAt(t, fmt.Sprintf("Duplicate parameter %q.", t.Literal))
		}
		seen[t.Literal] = true
		params = append(params, t.Literal)
		if c.accept(TokenBracketClose) {
			return params
		}
		c.expect(TokenComma)
	}
}

// functionDeclaration compiles a nested function named by t into its own
// code block. The parameter list is next in the input; arrow says whether
// "=>" follows it.
func (c *Compiler) functionDeclaration(t Token, arrow bool) {
	name := t.Literal
	params := c.paramList()
	if arrow {
		c.expect(TokenLambda)
	}

	// Slots: last parameter at -1, result just below the first parameter.
	n := len(params)
	scope := NewScope()
	scope.DeclareAt(resultName, -(n + 1), IdentAtom, t.Line, t.Col)
	for i, p := range params {
		sym := scope.DeclareAt(p, -(n - i), IdentAtom, t.Line, t.Col)
		sym.Used = true
	}
	fn := c.scope.DeclareAt(name, 0, IdentFunction, t.Line, t.Col)
	fn.Used = true

	child := &Compiler{env: c.env, lex: c.lex, registered: c.registered}
	c.lex.SetClassifier(child.classify)
	child.generate(name, params, scope, child.functionBody)
	c.lex.SetClassifier(c.classify)

	c.hints = append(c.hints, child.hints...)
	log.Debugf("declared %s(%d) in %s", name, n, c.cb.Name)
}

// functionBody compiles a braced statement list or a single expression
// whose value becomes the result.
func (c *Compiler) functionBody() {
	if c.accept(TokenBegin) {
		c.block()
		return
	}
	c.expression()
	result := c.resultSymbol()
	c.emit(bytecode.Instruction{Op: bytecode.OpAssign, Sub: bytecode.AssignLocal, Addr: result.Addr, Name: result.Name})
}
