package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quillchat/quill/pkg/config"
	"github.com/quillchat/quill/pkg/logger"
)

// Registry manages LLM providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	def       string
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under the given name
func (r *Registry) Register(name string, provider Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	if r.def == "" {
		r.def = name
	}
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return provider, nil
}

// List returns all registered provider names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the default provider
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return fmt.Errorf("provider %s not found", name)
	}
	r.def = name
	return nil
}

// GetDefault returns the default provider
func (r *Registry) GetDefault() (Provider, error) {
	r.mu.RLock()
	def := r.def
	r.mu.RUnlock()

	if def == "" {
		return nil, fmt.Errorf("no providers registered")
	}
	return r.Get(def)
}

// FromConfig builds a registry containing every provider the configuration
// enables. Providers missing required settings are skipped with a warning so
// one bad credential does not take down the rest.
func FromConfig(cfg *config.Config) (*Registry, error) {
	registry := NewRegistry()

	if cfg.Ollama.URL != "" {
		provider := NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model, cfg.Ollama.Timeout)
		if err := registry.Register("ollama", provider); err != nil {
			return nil, err
		}
	}

	if cfg.OpenAI.APIKey != "" {
		provider := NewOpenAIProvider(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
		if err := registry.Register("openai", provider); err != nil {
			return nil, err
		}
	}

	if cfg.Gemini.APIKey != "" {
		provider, err := NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			logger.Warn("skipping gemini provider: %v", err)
		} else if err := registry.Register("gemini", provider); err != nil {
			return nil, err
		}
	}

	if cfg.LangChain.URL != "" {
		provider, err := NewLangChainProvider(cfg.LangChain.Backend, cfg.LangChain.URL, cfg.LangChain.Model, cfg.LangChain.Timeout)
		if err != nil {
			logger.Warn("skipping langchain provider: %v", err)
		} else if err := registry.Register("langchain", provider); err != nil {
			return nil, err
		}
	}

	if len(registry.List()) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	if cfg.Provider != "" {
		if err := registry.SetDefault(cfg.Provider); err != nil {
			logger.Warn("configured default provider unavailable: %v", err)
		}
	}
	return registry, nil
}
