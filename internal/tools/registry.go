// Package tools defines the catalogue of operations the model may invoke
// and the dispatcher that executes them. Dispatch never panics and never
// aborts a batch: malformed arguments become an empty map, unknown names
// and handler failures become structured error results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aruizmd/medassist/internal/llm"
)

// Tool is one callable operation.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema for the argument object
	Handler     func(ctx context.Context, clinicianID string, args map[string]any) (any, error)
}

// Registry holds the tools offered to the model.
type Registry struct {
	tools map[string]*Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Specs returns the catalogue in registration order for the completion
// request.
func (r *Registry) Specs() []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// Dispatch runs one tool call and returns the serialized result payload.
// The returned string is always valid JSON, error or not; the error return
// is reserved for serialization itself, which should never fail.
func (r *Registry) Dispatch(ctx context.Context, clinicianID, name, argsJSON string) string {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(argsJSON); trimmed != "" {
		// Malformed argument payloads are treated as an empty object; the
		// called operation reports its own validation error.
		_ = json.Unmarshal([]byte(trimmed), &args)
	}

	tool, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("unrecognized function: %s", name))
	}

	result, err := tool.Handler(ctx, clinicianID, args)
	if err != nil {
		return errorResult(err.Error())
	}
	payload, err := json.Marshal(map[string]any{"result": result})
	if err != nil {
		return errorResult(fmt.Sprintf("serialize result: %v", err))
	}
	return string(payload)
}

func errorResult(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}

// stringArg reads an optional string argument, empty when missing or of the
// wrong type.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func requireArg(args map[string]any, key string) (string, error) {
	v := stringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	return v, nil
}
