// Package tools provides the agent's tool belt: definitions, a registry,
// and schema mapping for LLM tool calling. Each tool lives in its own
// subpackage and registers itself via a RegisterAll function.
package tools

import (
	"context"

	"aquaagent/internal/llm"
)

// Category classifies tools.
type Category string

const (
	// CategoryOperations covers remote command execution.
	CategoryOperations Category = "/operations"

	// CategoryResearch covers web search and content scraping.
	CategoryResearch Category = "/research"

	// CategoryGeneral is for tools usable in any context.
	CategoryGeneral Category = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Schema defines the JSON schema for tool arguments.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a tool the agent can offer to the model.
type Tool struct {
	// Name is the unique identifier, as presented to the model.
	Name string

	// Description explains what the tool does; the model reads this.
	Description string

	// Category classifies the tool.
	Category Category

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition maps the tool to an llm.ToolDefinition for tool calling.
func (t *Tool) Definition() llm.ToolDefinition {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": t.Schema.Properties,
	}
	if len(t.Schema.Required) > 0 {
		schema["required"] = t.Schema.Required
	}
	return llm.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// Result wraps the result of tool execution with metadata.
type Result struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Output is the string output from the tool.
	Output string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Error == nil
}
