package value

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// MarshalJSON renders v as JSON. Record keys keep their insertion order;
// nil renders as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	writeJSON(&sb, v)
	return []byte(sb.String()), nil
}

// maxNesting bounds rendering of self-referencing containers.
const maxNesting = 64

func writeJSON(sb *strings.Builder, v Value) {
	writeNested(sb, v, 0)
}

func writeNested(sb *strings.Builder, v Value, depth int) {
	if depth > maxNesting {
		sb.WriteString("null")
		return
	}
	switch v.kind {
	case KindNil:
		sb.WriteString("null")
	case KindNumber:
		s := formatNumber(v.num)
		if s == "NaN" || s == "Infinity" || s == "-Infinity" {
			s = "null"
		}
		sb.WriteString(s)
	case KindBool:
		sb.WriteString(v.String())
	case KindString:
		writeJSONString(sb, v.str)
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.arr.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeNested(sb, item, depth+1)
		}
		sb.WriteByte(']')
	case KindRecord:
		sb.WriteByte('{')
		for i, k := range v.rec.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, k)
			sb.WriteByte(':')
			writeNested(sb, v.rec.vals[k], depth+1)
		}
		sb.WriteByte('}')
	}
}

func writeJSONString(sb *strings.Builder, s string) {
	b, err := json.Marshal(s)
	if err != nil {
		sb.WriteString(`""`)
		return
	}
	sb.Write(b)
}

// ErrInvalidJSON is returned by ParseJSON for malformed documents.
var ErrInvalidJSON = errors.New("invalid json")

// ParseJSON decodes a JSON document into a Value. Objects become records
// with their keys in document order, arrays become arrays, null becomes nil.
func ParseJSON(data []byte) (Value, error) {
	if !json.Valid(data) {
		return Value{}, fmt.Errorf("parse json: %w", ErrInvalidJSON)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return Value{}, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("parse json: %w: trailing data", ErrInvalidJSON)
	}
	return v, nil
}

// decodeJSON reads one value from the token stream.
func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return Value{}, io.ErrUnexpectedEOF
	}
	if err != nil {
		return Value{}, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return FromNative(tok), nil
	}

	switch delim {
	case '[':
		a := &Array{Items: []Value{}}
		for dec.More() {
			item, err := decodeJSON(dec)
			if err != nil {
				return Value{}, err
			}
			a.Items = append(a.Items, item)
		}
		if err := closeJSON(dec, ']'); err != nil {
			return Value{}, err
		}
		return FromArray(a), nil
	case '{':
		r := newRecord()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return Value{}, err
			}
			key, ok := kt.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: object key %v", ErrInvalidJSON, kt)
			}
			item, err := decodeJSON(dec)
			if err != nil {
				return Value{}, err
			}
			r.Set(key, item)
		}
		if err := closeJSON(dec, '}'); err != nil {
			return Value{}, err
		}
		return FromRecord(r), nil
	}
	return Value{}, fmt.Errorf("%w: unexpected %s", ErrInvalidJSON, delim)
}

func closeJSON(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != want {
		return fmt.Errorf("%w: expected %s, got %v", ErrInvalidJSON, want, tok)
	}
	return nil
}

// FromNative converts a decoded Go value (as produced by encoding/json style
// decoders) into a Value. Map keys are sorted since Go maps carry no order.
// Unsupported types render through their textual form.
func FromNative(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case string:
		return String(t)
	case []any:
		a := &Array{Items: make([]Value, len(t))}
		for i, item := range t {
			a.Items[i] = FromNative(item)
		}
		return FromArray(a)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := newRecord()
		for _, k := range keys {
			r.Set(k, FromNative(t[k]))
		}
		return FromRecord(r)
	}
	return String(fmt.Sprint(x))
}
