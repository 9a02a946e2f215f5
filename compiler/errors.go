package compiler

import "fmt"

// CompileError is the fatal error raised at the first syntax or scoping
// problem. Compilation stops there.
type CompileError struct {
	Block string
	Line  int
	Col   int
	Msg   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s [%d,%d]: %s", e.Block, e.Line, e.Col, e.Msg)
}

// Hint is a non-fatal diagnostic, currently an unused local.
type Hint struct {
	Block   string
	Name    string
	Line    int
	Col     int
	Message string
}

func (h Hint) String() string {
	return fmt.Sprintf("%s [%d,%d]: %s", h.Block, h.Line, h.Col, h.Message)
}

// bailout carries a CompileError up the recursive descent.
type bailout struct {
	err *CompileError
}
