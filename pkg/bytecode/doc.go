// Package bytecode defines the instruction model executed by the trashdsl
// virtual machine.
//
// A compiled program is a set of named code blocks. Each CodeBlock holds a
// flat stream of Instructions plus the ordered names of its parameters:
//
//   - Opcodes select an instruction family (Push, Operator, Assign, Pop,
//     Jump, Call, Return) and a sub-operation tag selects the member of the
//     family, e.g. Push/LocalVar or Jump/Greater.
//
//   - Operands are typed fields on the Instruction: Addr holds a
//     frame-relative stack slot or an absolute jump target, Count an arity or
//     key depth, Name a label or callee, Const a literal value.
//
//   - Jumps are emitted with placeholder targets. EmitJump returns a
//     PatchRequest that is resolved with Patch once the destination address is
//     known.
//
// # Frame layout
//
// Locals are addressed relative to the active frame base. Body locals have
// non-negative slots, parameters negative slots with the last parameter at -1,
// and the implicit result slot sits one below the first parameter. The
// top-level block has no parameters, so its result lives at -1, which is
// stack slot 0.
//
// # Wire format
//
// Code blocks serialize to CBOR (see MarshalCodeBlock) for caching and
// transport. Constants are restricted to scalars and empty containers, which
// are all the compiler ever emits.
package bytecode
