package value

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrType reports an operand of the wrong dynamic type.
	ErrType = errors.New("type mismatch")
	// ErrIndex reports an index outside the bounds of an array or string.
	ErrIndex = errors.New("index out of range")
	// ErrNotContainer reports indexing or key descent into a scalar.
	ErrNotContainer = errors.New("not a container")
)

func typeError(op string, a, b Value) error {
	return fmt.Errorf("%w: %s %s %s", ErrType, a.kind, op, b.kind)
}

func bothNumbers(a, b Value) bool {
	return a.kind == KindNumber && b.kind == KindNumber
}

// Add implements '+': numeric addition when both operands are numbers,
// otherwise text concatenation when either operand is a string.
func Add(a, b Value) (Value, error) {
	if bothNumbers(a, b) {
		return Number(a.num + b.num), nil
	}
	if a.kind == KindString || b.kind == KindString {
		return String(a.String() + b.String()), nil
	}
	return Value{}, typeError("+", a, b)
}

func Sub(a, b Value) (Value, error) {
	if !bothNumbers(a, b) {
		return Value{}, typeError("-", a, b)
	}
	return Number(a.num - b.num), nil
}

func Mul(a, b Value) (Value, error) {
	if !bothNumbers(a, b) {
		return Value{}, typeError("*", a, b)
	}
	return Number(a.num * b.num), nil
}

// Div follows IEEE division: dividing by zero yields an infinity or NaN.
func Div(a, b Value) (Value, error) {
	if !bothNumbers(a, b) {
		return Value{}, typeError("/", a, b)
	}
	return Number(a.num / b.num), nil
}

// Mod is the floating-point remainder with the sign of the dividend.
func Mod(a, b Value) (Value, error) {
	if !bothNumbers(a, b) {
		return Value{}, typeError("%", a, b)
	}
	return Number(math.Mod(a.num, b.num)), nil
}

func Negate(a Value) (Value, error) {
	if a.kind != KindNumber {
		return Value{}, fmt.Errorf("%w: negate %s", ErrType, a.kind)
	}
	return Number(-a.num), nil
}

func Inc(a Value) (Value, error) {
	if a.kind != KindNumber {
		return Value{}, fmt.Errorf("%w: increment %s", ErrType, a.kind)
	}
	return Number(a.num + 1), nil
}

func Dec(a Value) (Value, error) {
	if a.kind != KindNumber {
		return Value{}, fmt.Errorf("%w: decrement %s", ErrType, a.kind)
	}
	return Number(a.num - 1), nil
}

// Equal compares scalars by value and containers by identity. Values of
// different kinds are never equal.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindNumber, KindBool:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		return a.arr == b.arr
	case KindRecord:
		return a.rec == b.rec
	}
	return false
}

// Compare orders two numbers numerically or two strings lexicographically.
// It returns -1, 0 or 1. Any other pairing is a type error.
func Compare(a, b Value) (int, error) {
	switch {
	case bothNumbers(a, b):
		switch {
		case a.num < b.num:
			return -1, nil
		case a.num > b.num:
			return 1, nil
		}
		return 0, nil
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.str, b.str), nil
	}
	return 0, typeError("<=>", a, b)
}

// Truthy reports whether v is the boolean true.
func Truthy(v Value) bool {
	return v.kind == KindBool && v.num == 1
}
