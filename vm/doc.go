// Package vm implements the trashdsl virtual machine.
//
// This package contains:
//   - Environment, the registry of native functions, constants, globals and
//     code blocks shared by the compiler and the interpreter
//   - VM, a stack interpreter executing bytecode.CodeBlocks against a single
//     operand stack with a parallel label stack, a frame-base stack and a
//     return-address stack
//   - RuntimeError and the sentinel causes it wraps
//
// Calls into code blocks re-enter the interpreter recursively. Every
// activation touches the shared stacks in strict LIFO order, so nested calls
// need no separate frame objects.
package vm
