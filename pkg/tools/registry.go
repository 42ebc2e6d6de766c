package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/logger"
)

// Registry manages available tools and their execution
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// DefaultRegistry builds a registry with the builtin tools enabled by the
// given configuration. A nil config yields an empty registry.
func DefaultRegistry(cfg *config.Config) *Registry {
	registry := NewRegistry()
	if cfg == nil || !cfg.Tools.Enabled {
		return registry
	}

	if cfg.Tools.Bash.Enabled {
		if err := registry.Register(NewBashTool(cfg.Tools.Bash.Timeout)); err != nil {
			logger.Warn("failed to register bash tool: %v", err)
		}
	}
	if cfg.Tools.FileRead.Enabled {
		if err := registry.Register(NewReadFileTool(cfg.Tools.FileRead.MaxFileSize)); err != nil {
			logger.Warn("failed to register read_file tool: %v", err)
		}
	}
	return registry
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTools returns true if the registry has any tools registered
func (r *Registry) HasTools() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools) > 0
}

// Definitions returns the registered tools in the function-calling format
// shared by the OpenAI-compatible and Ollama APIs.
func (r *Registry) Definitions() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name(),
				"description": tool.Description(),
				"parameters":  tool.JSONSchema(),
			},
		})
	}
	return defs
}

// Execute runs a tool with the given parameters
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	tool, exists := r.Get(name)
	if !exists {
		return Result{
			Success: false,
			Error:   fmt.Sprintf("tool %s not found", name),
		}, fmt.Errorf("tool %s not found", name)
	}

	logger.Debug("executing tool %s", name)
	start := time.Now()

	result, err := tool.Execute(ctx, params)
	result.Duration = time.Since(start)

	if err != nil {
		logger.Warn("tool %s failed after %v: %v", name, result.Duration, err)
		if result.Error == "" {
			result.Error = err.Error()
		}
		result.Success = false
		return result, err
	}

	logger.Debug("tool %s completed in %v", name, result.Duration)
	return result, nil
}
