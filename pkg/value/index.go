package value

import (
	"fmt"
	"math"
)

// Key returns the record key an index value addresses.
func Key(v Value) string {
	return v.String()
}

func position(idx Value, length int) (int, error) {
	if idx.kind != KindNumber {
		return 0, fmt.Errorf("%w: index must be a number, got %s", ErrType, idx.kind)
	}
	f := idx.num
	if f != math.Trunc(f) || f < 0 || f >= float64(length) {
		return 0, fmt.Errorf("%w: %s (length %d)", ErrIndex, idx, length)
	}
	return int(f), nil
}

// Index reads container[idx]. Strings yield the single character at that
// position, arrays their element, records the value under Key(idx) or nil
// when the key is absent.
func Index(container, idx Value) (Value, error) {
	switch container.kind {
	case KindString:
		runes := []rune(container.str)
		i, err := position(idx, len(runes))
		if err != nil {
			return Value{}, err
		}
		return String(string(runes[i])), nil
	case KindArray:
		i, err := position(idx, len(container.arr.Items))
		if err != nil {
			return Value{}, err
		}
		return container.arr.Items[i], nil
	case KindRecord:
		v, _ := container.rec.Get(Key(idx))
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: cannot index %s", ErrNotContainer, container.kind)
}

// SetIndex stores v at container[idx] and returns the container to keep.
// Arrays and records are mutated in place and returned as is; an array may
// grow by one when idx equals its length. Strings are immutable, so the
// character at idx is replaced by the first character of v's text and a new
// string is returned.
func SetIndex(container, idx, v Value) (Value, error) {
	switch container.kind {
	case KindString:
		runes := []rune(container.str)
		i, err := position(idx, len(runes))
		if err != nil {
			return Value{}, err
		}
		sub := []rune(v.String())
		out := make([]rune, 0, len(runes))
		out = append(out, runes[:i]...)
		if len(sub) > 0 {
			out = append(out, sub[0])
		}
		out = append(out, runes[i+1:]...)
		return String(string(out)), nil
	case KindArray:
		a := container.arr
		if idx.kind == KindNumber && idx.num == float64(len(a.Items)) {
			a.Items = append(a.Items, v)
			return container, nil
		}
		i, err := position(idx, len(a.Items))
		if err != nil {
			return Value{}, err
		}
		a.Items[i] = v
		return container, nil
	case KindRecord:
		container.rec.Set(Key(idx), v)
		return container, nil
	}
	return Value{}, fmt.Errorf("%w: cannot index %s", ErrNotContainer, container.kind)
}

// Descend follows keys from root, one container level per key, and returns
// the value under the last key.
func Descend(root Value, keys []Value) (Value, error) {
	cur := root
	for _, k := range keys {
		next, err := Index(cur, k)
		if err != nil {
			return Value{}, err
		}
		cur = next
	}
	return cur, nil
}

// AssignPath descends all but the last key from root and stores v under the
// last key. The container reached must be an array or record.
func AssignPath(root Value, keys []Value, v Value) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key path", ErrIndex)
	}
	parent, err := Descend(root, keys[:len(keys)-1])
	if err != nil {
		return err
	}
	if parent.kind != KindArray && parent.kind != KindRecord {
		return fmt.Errorf("%w: cannot assign key %q of %s", ErrNotContainer, Key(keys[len(keys)-1]), parent.kind)
	}
	_, err = SetIndex(parent, keys[len(keys)-1], v)
	return err
}
