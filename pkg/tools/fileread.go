package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ReadFileTool reads file contents on behalf of the model
type ReadFileTool struct {
	maxSize int64
}

// NewReadFileTool creates a read tool refusing files larger than maxSize bytes
func NewReadFileTool(maxSize int64) *ReadFileTool {
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	return &ReadFileTool{maxSize: maxSize}
}

// Name returns the tool name
func (t *ReadFileTool) Name() string {
	return "read_file"
}

// Description returns the tool description
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the given path and return it as text."
}

// JSONSchema returns the parameter schema
func (t *ReadFileTool) JSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to read",
			},
		},
		"required": []string{"path"},
	}
}

// Execute reads the file, enforcing the size limit before loading it
func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	path, _ := params["path"].(string)
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Success: false, Error: "path cannot be empty"}, fmt.Errorf("file path cannot be empty")
	}

	if err := ctx.Err(); err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return Result{Success: false, Error: "path is a directory"}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > t.maxSize {
		return Result{Success: false, Error: fmt.Sprintf("file exceeds %d byte limit", t.maxSize)},
			fmt.Errorf("file %s exceeds %d byte limit", path, t.maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, fmt.Errorf("failed to read file: %w", err)
	}

	return Result{Success: true, Content: string(data)}, nil
}
