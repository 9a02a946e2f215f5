package vm

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNative     = errors.New("unknown native function")
	ErrUnknownCodeBlock  = errors.New("unknown code block")
	ErrCallDepthExceeded = errors.New("call depth exceeded")
	ErrBadInstruction    = errors.New("bad instruction")
	ErrNativePanic       = errors.New("native function panicked")
)

// RuntimeError is a fault raised while executing a code block. It records
// where execution stopped and wraps the underlying cause.
type RuntimeError struct {
	Block string
	PC    int
	Line  int
	Col   int
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s [%d,%d]: %v", e.Block, e.Line, e.Col, e.Err)
	}
	return fmt.Sprintf("%s @%04d: %v", e.Block, e.PC, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// fault unwinds the interpreter loop of the active code block.
type fault struct {
	err error
}
