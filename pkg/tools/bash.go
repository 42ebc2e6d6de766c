package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// BashTool executes shell commands on behalf of the model
type BashTool struct {
	timeout time.Duration
}

// NewBashTool creates a bash tool with the given per-command timeout
func NewBashTool(timeout time.Duration) *BashTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BashTool{timeout: timeout}
}

// Name returns the tool name
func (t *BashTool) Name() string {
	return "execute_bash"
}

// Description returns the tool description
func (t *BashTool) Description() string {
	return "Execute a bash shell command and return its output. Supports pipes, redirects, and standard utilities (e.g. 'ls -la', 'grep -r pattern .', 'wc -l file.txt')."
}

// JSONSchema returns the parameter schema
func (t *BashTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The bash command to execute",
			},
		},
		"required": []string{"command"},
	}
}

// Execute runs the command under sh -c with the configured timeout
func (t *BashTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	command, _ := params["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Success: false, Error: "command cannot be empty"}, fmt.Errorf("bash command cannot be empty")
	}

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// sh -c so pipes and redirects work
	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += stderr.String()
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return Result{Success: false, Content: output, Error: fmt.Sprintf("command timed out after %v", t.timeout)},
				fmt.Errorf("bash command timed out after %v", t.timeout)
		}
		return Result{Success: false, Content: output, Error: err.Error()},
			fmt.Errorf("bash command failed: %w", err)
	}

	return Result{Success: true, Content: output}, nil
}
