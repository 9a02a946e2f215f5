package vm

import (
	"fmt"
	"io"
)

// Trace writes stack slots as "label : value" lines. Unless all is set it
// starts at the most recent slot labeled result.
func (m *VM) Trace(w io.Writer, all bool) {
	fmt.Fprintln(w, "--- TRACE ---")
	start := 0
	if !all {
		for i := len(m.labels) - 1; i >= 0; i-- {
			if m.labels[i] == ResultLabel {
				start = i
				break
			}
		}
	}
	for i := start; i < len(m.stack); i++ {
		label := m.labels[i]
		if label == "" {
			label = "<unknown>"
		}
		fmt.Fprintf(w, "%s : %s\n", label, m.stack[i])
	}
	fmt.Fprintln(w, "-------------")
}
