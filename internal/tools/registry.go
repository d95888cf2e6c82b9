package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry is the closed, name-keyed tool catalog. It is immutable after Build.
type Registry struct {
	tools   map[ToolName]Tool
	schemas map[ToolName]*jsonschema.Schema
	names   []ToolName
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[ToolName(name)]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []ToolName {
	return append([]ToolName(nil), r.names...)
}

// Validate checks args against the tool's declared schema.
func (r *Registry) Validate(name ToolName, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return errors.New("no schema")
	}
	if err := schema.Validate(args); err != nil {
		return errors.New(describeValidation(err))
	}
	return nil
}

// Definitions returns all tool definitions in OpenAI function-calling
// format, sorted by name.
func (r *Registry) Definitions() []map[string]any {
	list := make([]map[string]any, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		var params any
		if err := json.Unmarshal(t.Parameters(), &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		list = append(list, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        string(t.Name()),
				"description": t.Description(),
				"parameters":  params,
			},
		})
	}
	return list
}

// describeValidation flattens a schema validation error into its leaf
// messages, e.g. "missing properties: 'world_id'".
func describeValidation(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			msg := e.Message
			if e.InstanceLocation != "" {
				msg = strings.TrimPrefix(e.InstanceLocation, "/") + ": " + msg
			}
			leaves = append(leaves, msg)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}
