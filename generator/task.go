package generator

import (
	"fmt"
	"regexp"
	"strings"
)

// Task is a unit of work assigned to one agent. Description and ExpectedOutput
// may reference crew inputs as {name}.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          *Agent
	// OutputFile, when set, receives the task's raw output.
	OutputFile string
}

// Inputs are the variables a crew run interpolates into its tasks.
type Inputs map[string]string

var placeholder = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Interpolate replaces every {name} in s with inputs[name]. A placeholder
// without a matching input is an error.
func (in Inputs) Interpolate(s string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := in[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing inputs: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
