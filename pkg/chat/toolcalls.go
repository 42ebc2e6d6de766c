package chat

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// ToolCallStatus tracks a tool call through its lifecycle
type ToolCallStatus int

const (
	ToolCallCalling ToolCallStatus = iota
	ToolCallExecuting
	ToolCallCompleted
	ToolCallFailed
)

// String returns the string representation of the status
func (s ToolCallStatus) String() string {
	switch s {
	case ToolCallCalling:
		return "calling"
	case ToolCallExecuting:
		return "executing"
	case ToolCallCompleted:
		return "completed"
	case ToolCallFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ToolFunction identifies the function a tool call targets. Arguments is the
// serialized JSON argument string exactly as the provider sent it.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a single function invocation requested by the model
type ToolCall struct {
	ID       string         `json:"id"`
	Function ToolFunction   `json:"function"`
	Status   ToolCallStatus `json:"-"`
	Result   string         `json:"result,omitempty"`
	Success  bool           `json:"success,omitempty"`
}

// ParseArguments decodes the call's argument string into a parameter map.
// Models occasionally emit truncated or slightly malformed JSON, so a syntax
// error triggers a repair pass before giving up.
func (tc ToolCall) ParseArguments() (map[string]any, error) {
	if tc.Function.Arguments == "" {
		return map[string]any{}, nil
	}

	var params map[string]any
	err := json.Unmarshal([]byte(tc.Function.Arguments), &params)
	if err == nil {
		return params, nil
	}

	if _, ok := err.(*json.SyntaxError); ok {
		fixed, repairErr := jsonrepair.JSONRepair(tc.Function.Arguments)
		if repairErr != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &params); err != nil {
			return nil, fmt.Errorf("failed to parse repaired tool arguments: %w", err)
		}
		return params, nil
	}

	return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
}

// ToolCallFragment is one streamed piece of a tool call. Providers split a
// single call across many events: the first fragment carries the id, later
// ones carry only name or argument continuations.
type ToolCallFragment struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallCollector reassembles fragmented tool calls in arrival order
type ToolCallCollector struct {
	order []string
	calls map[string]*ToolCall
	last  string
}

// NewToolCallCollector creates an empty collector
func NewToolCallCollector() *ToolCallCollector {
	return &ToolCallCollector{
		calls: make(map[string]*ToolCall),
	}
}

// Add merges a fragment into the collected call set. A fragment with a new id
// starts a new call; a fragment with an empty or repeated id continues the
// most recent one, concatenating name and argument pieces.
func (c *ToolCallCollector) Add(frag ToolCallFragment) {
	id := frag.ID
	if id == "" {
		id = c.last
	}

	if id == "" {
		// Argument fragment before any id was seen; nothing to attach it to.
		return
	}

	call, exists := c.calls[id]
	if !exists {
		call = &ToolCall{
			ID:     id,
			Status: ToolCallCalling,
		}
		c.calls[id] = call
		c.order = append(c.order, id)
	}

	call.Function.Name += frag.Name
	call.Function.Arguments += frag.Arguments
	c.last = id
}

// HasCalls reports whether any tool calls were collected
func (c *ToolCallCollector) HasCalls() bool {
	return len(c.order) > 0
}

// Calls returns the collected calls in arrival order
func (c *ToolCallCollector) Calls() []ToolCall {
	result := make([]ToolCall, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, *c.calls[id])
	}
	return result
}

// Reset clears the collector for reuse
func (c *ToolCallCollector) Reset() {
	c.order = nil
	c.calls = make(map[string]*ToolCall)
	c.last = ""
}
