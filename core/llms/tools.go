package llms

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// Tool is a function the model may call. Server names the MCP server that
// serves it and is empty for tools handled by the orchestrator itself.
type Tool struct {
	Server      string
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters json.RawMessage
}

const qualifiedNameSeparator = "__"

// QualifiedName is the name the model sees. Server tools are prefixed with
// their server so that equal tool names on different servers stay distinct.
func (t Tool) QualifiedName() string {
	if t.Server == "" {
		return t.Name
	}
	return t.Server + qualifiedNameSeparator + t.Name
}

// SplitQualifiedName reverses QualifiedName.
func SplitQualifiedName(name string) (server, tool string) {
	if server, tool, ok := strings.Cut(name, qualifiedNameSeparator); ok {
		return server, tool
	}
	return "", name
}

// NewTool describes a local tool whose arguments decode into T.
func NewTool[T any](name, description string) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	var arguments T
	schema := reflector.Reflect(arguments)
	schema.Version = ""
	parameters, err := json.Marshal(schema)
	if err != nil {
		parameters = json.RawMessage(`{"type":"object"}`)
	}

	return Tool{Name: name, Description: description, Parameters: parameters}
}

// ToolCall is a single call requested by the model. Name is the qualified
// tool name and Arguments the raw JSON arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolExecutor runs a tool call and returns the text handed back to the
// model.
type ToolExecutor func(ctx context.Context, call ToolCall) (string, error)
