// Package agent exposes the kit as a set of self-describing tools an
// LLM agent can call. Each tool validates its arguments against a
// declared schema and returns either a JSON payload or an error string
// the model can read.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
)

// Field types understood by the argument validator.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Field describes one named tool argument.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Tool is one callable operation. Construct through NewTool so the run
// function is never nil.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Schema      []Field `json:"schema"`
	run         func(ctx context.Context, args map[string]any) (any, error)
}

func NewTool(name, description string, schema []Field, run func(ctx context.Context, args map[string]any) (any, error)) *Tool {
	return &Tool{Name: name, Description: description, Schema: schema, run: run}
}

// Invoke validates args against the schema, runs the tool, and renders
// the result for a model: JSON on success, an "Error: ..." line on
// failure. The error text keeps the stable error type so the model can
// react to it.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	if err := t.validate(args); err != nil {
		return renderError(err)
	}
	out, err := t.run(ctx, args)
	if err != nil {
		return renderError(err)
	}
	buf, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return renderError(kiterr.Wrap(kiterr.CodeInternal, "encode tool result", err))
	}
	return string(buf)
}

func (t *Tool) validate(args map[string]any) error {
	known := make(map[string]Field, len(t.Schema))
	for _, field := range t.Schema {
		known[field.Name] = field
	}
	unknown := make([]string, 0)
	for name := range args {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return kiterr.New(kiterr.CodeUsage, fmt.Sprintf("unknown argument %q for tool %s", unknown[0], t.Name))
	}
	for _, field := range t.Schema {
		value, present := args[field.Name]
		if !present {
			if field.Required {
				return kiterr.New(kiterr.CodeUsage, fmt.Sprintf("missing required argument %q for tool %s", field.Name, t.Name))
			}
			continue
		}
		if err := checkType(field, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(field Field, value any) error {
	ok := false
	switch field.Type {
	case TypeString:
		_, ok = value.(string)
	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int64, json.Number:
			ok = true
		}
	case TypeBoolean:
		_, ok = value.(bool)
	default:
		return kiterr.New(kiterr.CodeInternal, fmt.Sprintf("tool schema declares unknown type %q", field.Type))
	}
	if !ok {
		return kiterr.New(kiterr.CodeUsage, fmt.Sprintf("argument %q must be a %s", field.Name, field.Type))
	}
	return nil
}

func renderError(err error) string {
	if kitErr, ok := kiterr.As(err); ok {
		return fmt.Sprintf("Error: %s (%s)", kitErr.Message, kitErr.Code.String())
	}
	return "Error: " + err.Error()
}

// Argument accessors used by the tool implementations. Validation has
// already run; these only normalize representations.

func stringArg(args map[string]any, name string) string {
	value, _ := args[name].(string)
	return strings.TrimSpace(value)
}

// optionalNumberArg distinguishes an absent argument from an explicit
// zero, which matters for slippage.
func optionalNumberArg(args map[string]any, name string) *float64 {
	if _, present := args[name]; !present {
		return nil
	}
	v := numberArg(args, name)
	return &v
}

func numberArg(args map[string]any, name string) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
