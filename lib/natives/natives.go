// Package natives provides the starter set of host functions and constants
// for trashdsl programs.
//
// Hosts call Register before compiling; every native is resolved by name at
// compile time, so a program can only call what was registered.
package natives

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trashdsl.natives")

// Options adjusts the host services the natives depend on.
type Options struct {
	// HTTPClient serves http_get. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Now is the clock read by today. Defaults to time.Now.
	Now func() time.Time
}

// Register installs the natives and constants with default options.
func Register(env *vm.Environment) {
	RegisterWith(env, Options{})
}

// RegisterWith installs the natives and constants.
func RegisterWith(env *vm.Environment, opts Options) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	env.RegisterConstant("PI", value.Number(math.Pi))
	env.RegisterConstant("TRUE", value.Bool(true))
	env.RegisterConstant("FALSE", value.Bool(false))

	registerCore(env)
	registerMath(env)
	registerIO(env, opts)
	registerJSON(env)
}

func argError(name string, arg value.Value, want string) error {
	return fmt.Errorf("%w: %s expects %s, got %s", value.ErrType, name, want, arg.Kind())
}

// ---------------------------------------------------------------------------
// Containers and control
// ---------------------------------------------------------------------------

func registerCore(env *vm.Environment) {
	env.RegisterNative("array", vm.Variadic, func(args []value.Value, m *vm.VM) (value.Value, error) {
		return value.NewArray(args...), nil
	})

	// record('k1', v1, 'k2', v2, ...)
	env.RegisterNative("record", vm.Variadic, func(args []value.Value, m *vm.VM) (value.Value, error) {
		if len(args)%2 != 0 {
			return value.Nil(), fmt.Errorf("%w: record expects key/value pairs, got %d arguments", value.ErrIndex, len(args))
		}
		r := value.NewRecord()
		for i := 0; i < len(args); i += 2 {
			r.AsRecord().Set(value.Key(args[i]), args[i+1])
		}
		return r, nil
	})

	env.RegisterNative("length", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		v := args[0]
		switch v.Kind() {
		case value.KindArray:
			return value.Number(float64(v.AsArray().Len())), nil
		case value.KindRecord:
			return value.Number(float64(v.AsRecord().Len())), nil
		case value.KindString:
			return value.Number(float64(len([]rune(v.AsString())))), nil
		}
		return value.Nil(), argError("length", v, "an array, record or string")
	})

	env.RegisterNative("if", 3, func(args []value.Value, m *vm.VM) (value.Value, error) {
		if value.Equal(args[0], value.Bool(true)) {
			return args[1], nil
		}
		return args[2], nil
	})

	// sum folds its arguments with '+', so strings concatenate.
	env.RegisterNative("sum", vm.Variadic, func(args []value.Value, m *vm.VM) (value.Value, error) {
		if len(args) == 0 {
			return value.Number(0), nil
		}
		acc := args[0]
		for _, a := range args[1:] {
			var err error
			if acc, err = value.Add(acc, a); err != nil {
				return value.Nil(), err
			}
		}
		return acc, nil
	})
}
