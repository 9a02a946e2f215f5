package natives

import (
	"math"

	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/vm"
)

func numberArg(name string, v value.Value) (float64, error) {
	if !v.IsNumber() {
		return 0, argError(name, v, "a number")
	}
	return v.AsNumber(), nil
}

// intArg truncates a numeric argument toward zero for the bit operations.
func intArg(name string, v value.Value) (int64, error) {
	f, err := numberArg(name, v)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func unaryMath(name string, fn func(float64) float64) vm.NativeFunc {
	return func(args []value.Value, m *vm.VM) (value.Value, error) {
		x, err := numberArg(name, args[0])
		if err != nil {
			return value.Nil(), err
		}
		return value.Number(fn(x)), nil
	}
}

func bitwise(name string, fn func(a, b int64) int64) vm.NativeFunc {
	return func(args []value.Value, m *vm.VM) (value.Value, error) {
		a, err := intArg(name, args[0])
		if err != nil {
			return value.Nil(), err
		}
		b, err := intArg(name, args[1])
		if err != nil {
			return value.Nil(), err
		}
		return value.Number(float64(fn(a, b))), nil
	}
}

func registerMath(env *vm.Environment) {
	env.RegisterNative("sin", 1, unaryMath("sin", math.Sin))
	env.RegisterNative("cos", 1, unaryMath("cos", math.Cos))

	env.RegisterNative("bitand", 2, bitwise("bitand", func(a, b int64) int64 { return a & b }))
	env.RegisterNative("bitor", 2, bitwise("bitor", func(a, b int64) int64 { return a | b }))
	env.RegisterNative("bitxor", 2, bitwise("bitxor", func(a, b int64) int64 { return a ^ b }))
	env.RegisterNative("bitnot", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		a, err := intArg("bitnot", args[0])
		if err != nil {
			return value.Nil(), err
		}
		return value.Number(float64(^a)), nil
	})
}
