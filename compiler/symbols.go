package compiler

// IdentKind classifies a local identifier.
type IdentKind int

const (
	IdentAtom IdentKind = iota
	IdentArray
	IdentRecord
	IdentFunction
)

func (k IdentKind) String() string {
	switch k {
	case IdentAtom:
		return "atom"
	case IdentArray:
		return "array"
	case IdentRecord:
		return "record"
	case IdentFunction:
		return "function"
	}
	return "unknown"
}

// Symbol is a symbol table entry for one local identifier.
type Symbol struct {
	Name string
	Addr int // frame-relative slot; negative for parameters and result
	Kind IdentKind
	Used bool
	Line int
	Col  int
}

// Scope is the symbol table of one code block.
type Scope struct {
	symbols map[string]*Symbol
	order   []string
	next    int // next body-local slot
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{symbols: make(map[string]*Symbol)}
}

// Lookup finds a symbol by lower-cased name.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	sym, ok := s.symbols[name]
	return sym, ok
}

// Declare adds a body local in the next free slot.
func (s *Scope) Declare(name string, kind IdentKind, line, col int) *Symbol {
	sym := s.DeclareAt(name, s.next, kind, line, col)
	s.next++
	return sym
}

// DeclareAt adds a symbol at an explicit slot without consuming a body slot.
func (s *Scope) DeclareAt(name string, addr int, kind IdentKind, line, col int) *Symbol {
	sym := &Symbol{Name: name, Addr: addr, Kind: kind, Line: line, Col: col}
	if _, ok := s.symbols[name]; !ok {
		s.order = append(s.order, name)
	}
	s.symbols[name] = sym
	return sym
}

// Locals returns the number of body-local slots allocated.
func (s *Scope) Locals() int {
	return s.next
}

// Unused returns the never-read symbols other than result, in declaration
// order.
func (s *Scope) Unused() []*Symbol {
	var out []*Symbol
	for _, name := range s.order {
		sym := s.symbols[name]
		if !sym.Used && name != resultName {
			out = append(out, sym)
		}
	}
	return out
}
