package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging      LoggingConfig   `mapstructure:"logging"`
	Provider     string          `mapstructure:"provider"` // Selected provider: ollama, openai, gemini, langchain
	ShowThinking bool            `mapstructure:"show_thinking"`
	Stream       StreamConfig    `mapstructure:"stream"`
	Ollama       OllamaConfig    `mapstructure:"ollama"`
	OpenAI       OpenAIConfig    `mapstructure:"openai"`
	Gemini       GeminiConfig    `mapstructure:"gemini"`
	LangChain    LangChainConfig `mapstructure:"langchain"`
	Tools        ToolsConfig     `mapstructure:"tools"`
	History      HistoryConfig   `mapstructure:"history"`
	Agents       AgentsConfig    `mapstructure:"agents"`
	Naming       NamingConfig    `mapstructure:"naming"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// StreamConfig holds streaming pipeline configuration
type StreamConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// OllamaConfig holds Ollama-specific configuration
type OllamaConfig struct {
	URL          string        `mapstructure:"url"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds configuration for OpenAI-compatible endpoints
// (OpenAI, OpenRouter, LM Studio, vLLM and friends)
type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LangChainConfig holds configuration for the langchaingo-backed provider
type LangChainConfig struct {
	Backend string        `mapstructure:"backend"` // backend langchaingo should talk to (ollama, openai)
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ToolsConfig holds tool-related configuration
type ToolsConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Bash     BashToolConfig `mapstructure:"bash"`
	FileRead FileReadConfig `mapstructure:"file_read"`
}

// BashToolConfig holds bash tool configuration
type BashToolConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FileReadConfig holds file read tool configuration
type FileReadConfig struct {
	Enabled     bool  `mapstructure:"enabled"`
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

// HistoryConfig holds conversation persistence configuration
type HistoryConfig struct {
	DatabasePath  string        `mapstructure:"database_path"`
	ContextWindow int           `mapstructure:"context_window"` // max prior messages sent to the provider
	SaveDebounce  time.Duration `mapstructure:"save_debounce"`
}

// AgentsConfig holds multi-agent fan-out configuration
type AgentsConfig struct {
	Max int `mapstructure:"max"`
}

// NamingConfig holds chat auto-naming configuration
type NamingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Global config instance
var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./.quill")
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("QUILL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg = c
	return c, nil
}

// Set replaces the global config instance (useful for testing)
func Set(c *Config) {
	cfg = c
}

func setDefaults() {
	viper.SetDefault("provider", "ollama")
	viper.SetDefault("show_thinking", true)

	viper.SetDefault("stream.flush_interval", 100*time.Millisecond)

	viper.SetDefault("ollama.url", "http://localhost:11434")
	viper.SetDefault("ollama.model", "qwen3:latest")
	viper.SetDefault("ollama.timeout", 90*time.Second)

	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.timeout", 90*time.Second)

	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.timeout", 90*time.Second)

	viper.SetDefault("langchain.backend", "ollama")
	viper.SetDefault("langchain.url", "http://localhost:11434")
	viper.SetDefault("langchain.model", "qwen3:latest")
	viper.SetDefault("langchain.timeout", 90*time.Second)

	viper.SetDefault("tools.enabled", true)
	viper.SetDefault("tools.bash.enabled", false)
	viper.SetDefault("tools.bash.timeout", 30*time.Second)
	viper.SetDefault("tools.file_read.enabled", true)
	viper.SetDefault("tools.file_read.max_file_size", int64(1024*1024))

	viper.SetDefault("history.database_path", "./.quill/history.db")
	viper.SetDefault("history.context_window", 40)
	viper.SetDefault("history.save_debounce", 2*time.Second)

	viper.SetDefault("agents.max", 3)

	viper.SetDefault("naming.enabled", true)
	viper.SetDefault("naming.timeout", 10*time.Second)

	viper.SetDefault("logging.log_file", "./.quill/system.log")
	viper.SetDefault("logging.preserve", true)
	viper.SetDefault("logging.level", "info")
}

// BuildStatePath resolves a filename relative to the state directory
func BuildStatePath(filename string) string {
	return filepath.Join(".quill", filename)
}
