package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RegistryBuilder accumulates tools during the construction phase.
// Call Build() to produce an immutable Registry ready for use.
type RegistryBuilder struct {
	tools map[ToolName]Tool
}

// NewRegistryBuilder returns a fresh RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{tools: make(map[ToolName]Tool)}
}

// WithTool adds a tool and returns the builder, enabling chaining.
func (b *RegistryBuilder) WithTool(tool Tool) *RegistryBuilder {
	b.tools[tool.Name()] = tool

	return b
}

// Build compiles every tool's parameter schema and produces an immutable
// Registry. It fails if any schema does not compile.
func (b *RegistryBuilder) Build() (*Registry, error) {
	r := &Registry{
		tools:   make(map[ToolName]Tool, len(b.tools)),
		schemas: make(map[ToolName]*jsonschema.Schema, len(b.tools)),
	}
	for name, tool := range b.tools {
		schema, err := compileSchema(name, string(tool.Parameters()))
		if err != nil {
			return nil, err
		}
		r.tools[name] = tool
		r.schemas[name] = schema
		r.names = append(r.names, name)
	}
	sort.Slice(r.names, func(i, j int) bool { return r.names[i] < r.names[j] })
	return r, nil
}

func compileSchema(name ToolName, raw string) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("https://guide.schemas.local/tools/%s.schema.json", name)
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("tool %s: add schema: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile schema: %w", name, err)
	}
	return schema, nil
}
