package bytecode

import (
	"fmt"

	"github.com/chazu/trashdsl/pkg/value"
	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireValue struct {
	Kind  uint8       `cbor:"1,keyasint"`
	Num   float64     `cbor:"2,keyasint,omitempty"`
	Str   string      `cbor:"3,keyasint,omitempty"`
	Items []wireValue `cbor:"4,keyasint,omitempty"`
	Keys  []string    `cbor:"5,keyasint,omitempty"`
}

type wireInstruction struct {
	Op    uint8      `cbor:"1,keyasint"`
	Sub   uint8      `cbor:"2,keyasint"`
	Addr  int        `cbor:"3,keyasint,omitempty"`
	Count int        `cbor:"4,keyasint,omitempty"`
	Name  string     `cbor:"5,keyasint,omitempty"`
	Const *wireValue `cbor:"6,keyasint,omitempty"`
}

type wireLocation struct {
	Addr   int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
	Column int `cbor:"3,keyasint"`
}

type wireCodeBlock struct {
	Name      string            `cbor:"1,keyasint"`
	Params    []string          `cbor:"2,keyasint,omitempty"`
	Code      []wireInstruction `cbor:"3,keyasint"`
	SourceMap []wireLocation    `cbor:"4,keyasint,omitempty"`
}

func toWireValue(v value.Value) wireValue {
	w := wireValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case value.KindNumber:
		w.Num = v.AsNumber()
	case value.KindString:
		w.Str = v.AsString()
	case value.KindBool:
		if v.AsBool() {
			w.Num = 1
		}
	case value.KindArray:
		for _, item := range v.AsArray().Items {
			w.Items = append(w.Items, toWireValue(item))
		}
	case value.KindRecord:
		r := v.AsRecord()
		for _, k := range r.Keys() {
			item, _ := r.Get(k)
			w.Keys = append(w.Keys, k)
			w.Items = append(w.Items, toWireValue(item))
		}
	}
	return w
}

func fromWireValue(w wireValue) (value.Value, error) {
	switch value.Kind(w.Kind) {
	case value.KindNil:
		return value.Nil(), nil
	case value.KindNumber:
		return value.Number(w.Num), nil
	case value.KindString:
		return value.String(w.Str), nil
	case value.KindBool:
		return value.Bool(w.Num == 1), nil
	case value.KindArray:
		a := &value.Array{Items: make([]value.Value, len(w.Items))}
		for i, item := range w.Items {
			v, err := fromWireValue(item)
			if err != nil {
				return value.Value{}, err
			}
			a.Items[i] = v
		}
		return value.FromArray(a), nil
	case value.KindRecord:
		if len(w.Keys) != len(w.Items) {
			return value.Value{}, fmt.Errorf("record with %d keys and %d values", len(w.Keys), len(w.Items))
		}
		rv := value.NewRecord()
		for i, k := range w.Keys {
			v, err := fromWireValue(w.Items[i])
			if err != nil {
				return value.Value{}, err
			}
			rv.AsRecord().Set(k, v)
		}
		return rv, nil
	}
	return value.Value{}, fmt.Errorf("unknown value kind %d", w.Kind)
}

func toWire(cb *CodeBlock) wireCodeBlock {
	w := wireCodeBlock{
		Name:   cb.Name,
		Params: cb.Params,
		Code:   make([]wireInstruction, len(cb.Code)),
	}
	for i, ins := range cb.Code {
		wi := wireInstruction{
			Op:    uint8(ins.Op),
			Sub:   uint8(ins.Sub),
			Addr:  ins.Addr,
			Count: ins.Count,
			Name:  ins.Name,
		}
		if ins.Op == OpPush && ins.Sub == PushConst {
			c := toWireValue(ins.Const)
			wi.Const = &c
		}
		w.Code[i] = wi
	}
	for _, loc := range cb.SourceMap {
		w.SourceMap = append(w.SourceMap, wireLocation(loc))
	}
	return w
}

func fromWire(w wireCodeBlock) (*CodeBlock, error) {
	cb := &CodeBlock{
		Name:   w.Name,
		Params: w.Params,
		Code:   make([]Instruction, len(w.Code)),
	}
	for i, wi := range w.Code {
		ins := Instruction{
			Op:    Opcode(wi.Op),
			Sub:   SubOp(wi.Sub),
			Addr:  wi.Addr,
			Count: wi.Count,
			Name:  wi.Name,
		}
		if wi.Const != nil {
			v, err := fromWireValue(*wi.Const)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			ins.Const = v
		}
		cb.Code[i] = ins
	}
	for _, loc := range w.SourceMap {
		cb.SourceMap = append(cb.SourceMap, SourceLocation(loc))
	}
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	return cb, nil
}

// MarshalCodeBlock serializes a CodeBlock to CBOR bytes.
func MarshalCodeBlock(cb *CodeBlock) ([]byte, error) {
	return cborEncMode.Marshal(toWire(cb))
}

// UnmarshalCodeBlock deserializes a CodeBlock from CBOR bytes and validates
// it.
func UnmarshalCodeBlock(data []byte) (*CodeBlock, error) {
	var w wireCodeBlock
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal code block: %w", err)
	}
	cb, err := fromWire(w)
	if err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal code block: %w", err)
	}
	return cb, nil
}

// MarshalProgram serializes a set of code blocks, in order, to CBOR bytes.
func MarshalProgram(blocks []*CodeBlock) ([]byte, error) {
	ws := make([]wireCodeBlock, len(blocks))
	for i, cb := range blocks {
		ws[i] = toWire(cb)
	}
	return cborEncMode.Marshal(ws)
}

// UnmarshalProgram deserializes code blocks written by MarshalProgram.
func UnmarshalProgram(data []byte) ([]*CodeBlock, error) {
	var ws []wireCodeBlock
	if err := cbor.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	blocks := make([]*CodeBlock, len(ws))
	for i, w := range ws {
		cb, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
		}
		blocks[i] = cb
	}
	return blocks, nil
}
