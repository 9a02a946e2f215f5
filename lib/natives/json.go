package natives

import (
	"github.com/goccy/go-json"

	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/vm"
)

func registerJSON(env *vm.Environment) {
	env.RegisterNative("json_parse", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		if !args[0].IsString() {
			return value.Nil(), argError("json_parse", args[0], "a string")
		}
		return value.ParseJSON([]byte(args[0].AsString()))
	})

	env.RegisterNative("json_stringify", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		data, err := json.Marshal(args[0])
		if err != nil {
			return value.Nil(), err
		}
		return value.String(string(data)), nil
	})
}
