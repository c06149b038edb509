// Package config loads binsleuth configuration from .sleuth/config.yaml with
// environment-variable overrides for API keys and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all binsleuth configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM decision-function configuration
	LLM LLMConfig `yaml:"llm"`

	// Engine / turn loop settings
	Engine EngineConfig `yaml:"engine"`

	// Session transport settings
	Transport TransportConfig `yaml:"transport"`

	// Trace persistence
	Trace TraceConfig `yaml:"trace"`

	// Embedding backend for semantic loop comparison
	Embedding EmbeddingConfig `yaml:"embedding"`

	// External search (web_search tool)
	Search SearchConfig `yaml:"search"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the decision-function provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // groq, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// MaxRetries bounds rate-limit retries per decision call.
	MaxRetries int `yaml:"max_retries"`
}

// EngineConfig configures the orchestration turn loop.
type EngineConfig struct {
	// TurnBudget is the maximum number of PLAN→CRITIQUE cycles per session.
	TurnBudget int `yaml:"turn_budget"`

	// SummaryWindow is how many recent observations the decision function sees.
	SummaryWindow int `yaml:"summary_window"`

	// LoopWindow is the k consecutive equivalent plan steps that flag circularity.
	LoopWindow int `yaml:"loop_window"`

	// SemanticLoopCompare enables the embedding-based plan comparator.
	SemanticLoopCompare bool `yaml:"semantic_loop_compare"`

	// SemanticThreshold is the cosine similarity above which two plan intents
	// count as equivalent (only with SemanticLoopCompare).
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// TransportConfig configures child-process sessions.
type TransportConfig struct {
	// ToolTimeout bounds one tool invocation.
	ToolTimeout string `yaml:"tool_timeout"`

	// ExpectTimeout is the default blocking-read timeout on interactive sessions.
	ExpectTimeout string `yaml:"expect_timeout"`

	// ConsecutiveTimeoutLimit tears the session down after this many timeouts
	// in a row.
	ConsecutiveTimeoutLimit int `yaml:"consecutive_timeout_limit"`

	// MaxOutputBytes caps captured output per invocation.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// GDBPath overrides the debugger binary (default "gdb").
	GDBPath string `yaml:"gdb_path"`
}

// TraceConfig configures session trace persistence.
type TraceConfig struct {
	// DatabasePath is the SQLite file for session traces.
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig configures the embedding backend behind semantic loop
// comparison. It is keyed separately from the decision function so a Groq
// decision model can run alongside a GenAI or Ollama embedder.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // genai, ollama
	APIKey   string `yaml:"api_key"`  // genai only
	Model    string `yaml:"model"`    // empty means the provider default
	Endpoint string `yaml:"endpoint"` // ollama only
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig configures the categorized file logger. This mirrors the
// shape read directly by internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "binsleuth",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:   "groq",
			Model:      "llama-3.3-70b-versatile",
			BaseURL:    "https://api.groq.com/openai/v1",
			Timeout:    "120s",
			MaxRetries: 3,
		},

		Engine: EngineConfig{
			TurnBudget:          25,
			SummaryWindow:       8,
			LoopWindow:          3,
			SemanticLoopCompare: false,
			SemanticThreshold:   0.92,
		},

		Transport: TransportConfig{
			ToolTimeout:             "30s",
			ExpectTimeout:           "10s",
			ConsecutiveTimeoutLimit: 3,
			MaxOutputBytes:          1 << 20, // 1MB
			GDBPath:                 "gdb",
		},

		Trace: TraceConfig{
			DatabasePath: ".sleuth/trace.db",
		},

		Embedding: EmbeddingConfig{
			Provider: "genai",
			Endpoint: "http://localhost:11434",
		},

		Search: SearchConfig{
			BaseURL: "https://api.tavily.com",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFromWorkspace loads .sleuth/config.yaml under the given workspace.
func LoadFromWorkspace(ws string) (*Config, error) {
	return Load(filepath.Join(ws, ".sleuth", "config.yaml"))
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Provider API keys in priority order; the last set wins, matching the
	// provider selection the user most likely intends.
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "groq"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}

	// The GenAI embedder takes the Gemini key regardless of the decision
	// provider, so an explicit config value still wins.
	if c.Embedding.APIKey == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Embedding.APIKey = key
		} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			c.Embedding.APIKey = key
		}
	}

	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Search.APIKey = key
	}

	if path := os.Getenv("BINSLEUTH_DB"); path != "" {
		c.Trace.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetToolTimeout returns the per-invocation tool timeout as a duration.
func (c *Config) GetToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Transport.ToolTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetExpectTimeout returns the interactive read timeout as a duration.
func (c *Config) GetExpectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Transport.ExpectTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
