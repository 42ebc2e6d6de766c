package tools

import (
	"context"
	"time"
)

// Tool represents a function that can be called by an LLM
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human/LLM-readable description of what this tool does
	Description() string

	// JSONSchema returns the JSON Schema for the tool's parameters
	JSONSchema() map[string]any

	// Execute runs the tool with the given parameters
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

// Result represents the outcome of a tool execution
type Result struct {
	Success  bool          `json:"success"`
	Content  string        `json:"content"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewJSONSchema creates a basic JSON Schema structure
func NewJSONSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": make(map[string]any),
		"required":   []string{},
	}
}
