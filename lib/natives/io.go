package natives

import (
	"fmt"
	"io"
	"net/http"

	"github.com/chazu/trashdsl/pkg/value"
	"github.com/chazu/trashdsl/vm"
	"github.com/google/uuid"
)

func registerIO(env *vm.Environment, opts Options) {
	env.RegisterNative("print", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		fmt.Fprintln(m.Out, args[0])
		return value.Number(0), nil
	})

	// trace(all) dumps the stack; a true argument includes every slot.
	env.RegisterNative("trace", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		m.Trace(m.Out, value.Truthy(args[0]))
		return value.Number(0), nil
	})

	env.RegisterNative("today", 0, func(args []value.Value, m *vm.VM) (value.Value, error) {
		return value.String(opts.Now().UTC().Format("2006-01-02")), nil
	})

	env.RegisterNative("uuid", 0, func(args []value.Value, m *vm.VM) (value.Value, error) {
		return value.String(uuid.NewString()), nil
	})

	env.RegisterNative("http_get", 1, func(args []value.Value, m *vm.VM) (value.Value, error) {
		if !args[0].IsString() {
			return value.Nil(), argError("http_get", args[0], "a URL string")
		}
		return httpGet(opts.HTTPClient, args[0].AsString())
	})
}

// httpGet fetches url and returns a record with the numeric status and, for
// a 200 response, the body under response.
func httpGet(client *http.Client, url string) (value.Value, error) {
	log.Debugf("http_get %s", url)
	resp, err := client.Get(url)
	if err != nil {
		return value.Nil(), fmt.Errorf("http_get %s: %w", url, err)
	}
	defer resp.Body.Close()

	out := value.NewRecord()
	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return value.Nil(), fmt.Errorf("http_get %s: reading body: %w", url, err)
		}
		out.AsRecord().Set("response", value.String(string(body)))
	}
	out.AsRecord().Set("status", value.Number(float64(resp.StatusCode)))
	return out, nil
}
