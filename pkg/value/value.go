// Package value implements the dynamic value model shared by the compiler
// and the virtual machine.
//
// A Value is a small tagged union. Scalars (nil, number, string, boolean) are
// copied by value. Arrays and records are held by pointer, so copying a Value
// that holds a container aliases the container: a mutation through one
// binding is visible through every other binding of the same container.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindNumber
	KindString
	KindBool
	KindArray
	KindRecord
)

var kindNames = [...]string{
	KindNil:    "nil",
	KindNumber: "number",
	KindString: "string",
	KindBool:   "boolean",
	KindArray:  "array",
	KindRecord: "record",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a dynamically typed value. The zero Value is nil.
type Value struct {
	kind Kind
	num  float64 // number payload; 1/0 for booleans
	str  string
	arr  *Array
	rec  *Record
}

// Array is an ordered, mutable sequence of values.
type Array struct {
	Items []Value
}

// Record is a keyed collection that remembers key insertion order.
type Record struct {
	keys []string
	vals map[string]Value
}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// NewArray returns a value holding a fresh array with the given items.
func NewArray(items ...Value) Value {
	a := &Array{Items: make([]Value, len(items))}
	copy(a.Items, items)
	return Value{kind: KindArray, arr: a}
}

// NewRecord returns a value holding a fresh, empty record.
func NewRecord() Value {
	return Value{kind: KindRecord, rec: newRecord()}
}

// FromArray wraps an existing array without copying it.
func FromArray(a *Array) Value { return Value{kind: KindArray, arr: a} }

// FromRecord wraps an existing record without copying it.
func FromRecord(r *Record) Value { return Value{kind: KindRecord, rec: r} }

func newRecord() *Record {
	return &Record{vals: make(map[string]Value)}
}

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsArray() bool  { return v.kind == KindArray }
func (v Value) IsRecord() bool { return v.kind == KindRecord }

// AsNumber returns the numeric payload. It is 0 for non-numbers.
func (v Value) AsNumber() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.num
}

// AsString returns the raw string payload. It is "" for non-strings; use
// String for the textual form of any value.
func (v Value) AsString() string { return v.str }

// AsBool returns the boolean payload.
func (v Value) AsBool() bool { return v.kind == KindBool && v.num == 1 }

// AsArray returns the array held by v, or nil.
func (v Value) AsArray() *Array { return v.arr }

// AsRecord returns the record held by v, or nil.
func (v Value) AsRecord() *Record { return v.rec }

// Clone returns a shallow copy of a container value. Scalars are returned
// unchanged.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		return NewArray(v.arr.Items...)
	case KindRecord:
		r := newRecord()
		for _, k := range v.rec.keys {
			r.Set(k, v.rec.vals[k])
		}
		return FromRecord(r)
	}
	return v
}

// String returns the textual form of v. Strings render raw, numbers in
// shortest decimal form, containers as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.str
	case KindBool:
		if v.num == 1 {
			return "true"
		}
		return "false"
	case KindArray, KindRecord:
		var sb strings.Builder
		writeJSON(&sb, v)
		return sb.String()
	}
	return "<invalid>"
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Len returns the number of items.
func (a *Array) Len() int { return len(a.Items) }

// Get returns the value stored under key and whether it was present.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Set stores v under key, appending key to the key order if it is new.
func (r *Record) Set(key string, v Value) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r *Record) Len() int { return len(r.keys) }
