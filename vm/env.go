package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/pkg/value"
)

// Variadic is the arity of a native that accepts any number of arguments.
const Variadic = -1

// NativeFunc is a host function callable from scripts. It receives the
// evaluated arguments left to right and the VM running the call.
type NativeFunc func(args []value.Value, m *VM) (value.Value, error)

// Native is a registered host function.
type Native struct {
	Name  string
	Arity int
	Fn    NativeFunc
}

// Environment is the program registry: native functions, constants, globals
// and code blocks, each keyed by lower-cased name. One Environment serves one
// program at a time.
type Environment struct {
	natives    map[string]*Native
	constants  map[string]value.Value
	globals    map[string]value.Value
	codeBlocks map[string]*bytecode.CodeBlock
	blockOrder []string
}

// NewEnvironment creates an empty registry.
func NewEnvironment() *Environment {
	e := &Environment{}
	e.Reset()
	return e
}

func normalize(name string) string {
	return strings.ToLower(name)
}

// Reset clears every table.
func (e *Environment) Reset() {
	e.natives = make(map[string]*Native)
	e.constants = make(map[string]value.Value)
	e.globals = make(map[string]value.Value)
	e.ResetCodeBlocks()
}

// ResetCodeBlocks drops all code blocks, keeping natives, constants and
// globals. Hosts call it between independent programs.
func (e *Environment) ResetCodeBlocks() {
	e.codeBlocks = make(map[string]*bytecode.CodeBlock)
	e.blockOrder = nil
}

// RegisterNative adds or replaces a native function. Arity is the fixed
// argument count, or Variadic.
func (e *Environment) RegisterNative(name string, arity int, fn NativeFunc) {
	name = normalize(name)
	e.natives[name] = &Native{Name: name, Arity: arity, Fn: fn}
}

// RegisterConstant adds or replaces a named constant. The compiler inlines
// constants as literals.
func (e *Environment) RegisterConstant(name string, v value.Value) {
	e.constants[normalize(name)] = v
}

// RegisterGlobal adds or replaces a global value.
func (e *Environment) RegisterGlobal(name string, v value.Value) {
	e.globals[normalize(name)] = v
}

// RegisterCodeBlock returns the code block registered under name, reset to
// empty, creating it if needed.
func (e *Environment) RegisterCodeBlock(name string) *bytecode.CodeBlock {
	name = normalize(name)
	if cb, ok := e.codeBlocks[name]; ok {
		cb.Reset()
		return cb
	}
	cb := bytecode.NewCodeBlock(name)
	e.codeBlocks[name] = cb
	e.blockOrder = append(e.blockOrder, name)
	return cb
}

// AddCodeBlock registers an already compiled block, replacing any block of
// the same name.
func (e *Environment) AddCodeBlock(cb *bytecode.CodeBlock) {
	cb.Name = normalize(cb.Name)
	if _, ok := e.codeBlocks[cb.Name]; !ok {
		e.blockOrder = append(e.blockOrder, cb.Name)
	}
	e.codeBlocks[cb.Name] = cb
}

// RemoveCodeBlock drops the code block registered under name, if any.
func (e *Environment) RemoveCodeBlock(name string) {
	name = normalize(name)
	if _, ok := e.codeBlocks[name]; !ok {
		return
	}
	delete(e.codeBlocks, name)
	for i, n := range e.blockOrder {
		if n == name {
			e.blockOrder = append(e.blockOrder[:i], e.blockOrder[i+1:]...)
			break
		}
	}
}

func (e *Environment) Native(name string) (*Native, bool) {
	n, ok := e.natives[normalize(name)]
	return n, ok
}

func (e *Environment) Constant(name string) (value.Value, bool) {
	v, ok := e.constants[normalize(name)]
	return v, ok
}

func (e *Environment) Global(name string) (value.Value, bool) {
	v, ok := e.globals[normalize(name)]
	return v, ok
}

func (e *Environment) CodeBlock(name string) (*bytecode.CodeBlock, bool) {
	cb, ok := e.codeBlocks[normalize(name)]
	return cb, ok
}

// CodeBlocks returns the registered code blocks in registration order.
func (e *Environment) CodeBlocks() []*bytecode.CodeBlock {
	out := make([]*bytecode.CodeBlock, 0, len(e.blockOrder))
	for _, name := range e.blockOrder {
		out = append(out, e.codeBlocks[name])
	}
	return out
}

// NativeNames returns the registered native names, sorted.
func (e *Environment) NativeNames() []string {
	return sortedKeys(e.natives)
}

// ConstantNames returns the registered constant names, sorted.
func (e *Environment) ConstantNames() []string {
	return sortedKeys(e.constants)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fingerprint digests the names and arities of the natives and the names and
// values of the constants. Compiled code depends on exactly these, so equal
// fingerprints mean a compiled program can be reused.
func (e *Environment) Fingerprint() string {
	h := sha256.New()
	for _, name := range e.NativeNames() {
		fmt.Fprintf(h, "native %s/%d\n", name, e.natives[name].Arity)
	}
	for _, name := range e.ConstantNames() {
		v := e.constants[name]
		fmt.Fprintf(h, "const %s %s %s\n", name, v.Kind(), v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
