// Package config loads and validates the aqua configuration file.
// The default location is config/cloud.yaml relative to the workspace;
// AQUA_CONFIG or the --config flag override it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the conventional config file location.
const DefaultPath = "config/cloud.yaml"

// Config holds all aqua configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLMs maps a model alias to its provider settings. The agent uses
	// the entry named by Agent.Model.
	LLMs map[string]LLMConfig `yaml:"llms"`

	// Tools configures the agent's tool belt.
	Tools ToolsConfig `yaml:"tools"`

	// Embedding configures the vector embedding backend used by the
	// scrape tool's retrieval step.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Agent configures the system-operation agent itself.
	Agent AgentConfig `yaml:"agent"`

	// Session configures conversation persistence.
	Session SessionConfig `yaml:"session"`

	// Logging configures the categorized file logger.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures one named LLM entry.
type LLMConfig struct {
	Type        string  `yaml:"type"` // openai or ollama
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// ToolsConfig groups the tool settings.
type ToolsConfig struct {
	SSH       SSHConfig       `yaml:"ssh"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	WebScrape WebScrapeConfig `yaml:"web_scrape"`
}

// SSHConfig configures the interactive SSH tool.
type SSHConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	User           string   `yaml:"user"`
	Password       string   `yaml:"password"`
	KeyFile        string   `yaml:"key_file"`
	ConnectTimeout string   `yaml:"connect_timeout"`
	CommandTimeout string   `yaml:"command_timeout"`
	MaxOutputLines int      `yaml:"max_output_lines"`
	DebugMode      bool     `yaml:"debug_mode"`
	PreExecute     []string `yaml:"pre_execute"`
}

// WebSearchConfig configures the web search tool.
type WebSearchConfig struct {
	Provider     string   `yaml:"provider"` // searx, duckduckgo or tavily
	SearxHost    string   `yaml:"searx_host"`
	TavilyAPIKey string   `yaml:"tavily_api_key"`
	Engines      []string `yaml:"engines"`
	MaxResults   int      `yaml:"max_results"`
}

// WebScrapeConfig configures the scrape/retrieval tool.
type WebScrapeConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	CacheTTL     string `yaml:"cache_ttl"`
	CacheSize    int    `yaml:"cache_size"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // ollama or genai
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// AgentConfig configures the system-operation agent.
type AgentConfig struct {
	Model             string `yaml:"model"` // which llms entry to use
	SystemPromptFile  string `yaml:"system_prompt_file"`
	MaxToolIterations int    `yaml:"max_tool_iterations"`
	ToolTimeout       string `yaml:"tool_timeout"`
}

// SessionConfig configures conversation persistence.
type SessionConfig struct {
	DatabasePath string `yaml:"database_path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "aqua",
		Version: "1.0.0",

		LLMs: map[string]LLMConfig{
			"common": {
				Type:        "openai",
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o",
				Temperature: 0.1,
				MaxTokens:   4096,
				Timeout:     "120s",
			},
		},

		Tools: ToolsConfig{
			SSH: SSHConfig{
				Port:           22,
				ConnectTimeout: "10s",
				CommandTimeout: "30s",
				MaxOutputLines: 200,
			},
			WebSearch: WebSearchConfig{
				Provider:   "duckduckgo",
				MaxResults: 10,
			},
			WebScrape: WebScrapeConfig{
				ChunkSize:    1000,
				ChunkOverlap: 200,
				TopK:         5,
				CacheTTL:     "30m",
				CacheSize:    1000,
			},
		},

		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Endpoint: "http://localhost:11434",
			Model:    "bge-m3",
		},

		Agent: AgentConfig{
			Model:             "common",
			MaxToolIterations: 100,
			ToolTimeout:       "5m",
		},

		Session: SessionConfig{
			DatabasePath: ".aqua/aqua.db",
			HistoryLimit: 200,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, applying defaults and
// environment overrides. A missing file at a non-default path is an error;
// callers that want the conventional path pass DefaultPath.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s (run 'aqua config init' to create one): %w", path, err)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

// String renders the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unrenderable config: %v>", err)
	}
	return string(data)
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("AQUA_OPENAI_API_KEY"); key != "" {
		for name, llm := range c.LLMs {
			if llm.Type == "openai" && llm.APIKey == "" {
				llm.APIKey = key
				c.LLMs[name] = llm
			}
		}
	}
	if pw := os.Getenv("AQUA_SSH_PASSWORD"); pw != "" {
		c.Tools.SSH.Password = pw
	}
	if key := os.Getenv("AQUA_TAVILY_API_KEY"); key != "" {
		c.Tools.WebSearch.TavilyAPIKey = key
	}
	if key := os.Getenv("AQUA_GENAI_API_KEY"); key != "" {
		c.Embedding.APIKey = key
	}
	if path := os.Getenv("AQUA_DB"); path != "" {
		c.Session.DatabasePath = path
	}
}

// Validate checks the configuration for errors that would prevent startup.
func (c *Config) Validate() error {
	if len(c.LLMs) == 0 {
		return fmt.Errorf("no llms configured")
	}
	for name, llm := range c.LLMs {
		switch llm.Type {
		case "openai", "ollama":
		default:
			return fmt.Errorf("llm %q: unsupported llm type: %s", name, llm.Type)
		}
		if llm.Model == "" {
			return fmt.Errorf("llm %q: model is required", name)
		}
	}
	if c.Agent.Model == "" {
		return fmt.Errorf("agent.model is required")
	}
	if _, ok := c.LLMs[c.Agent.Model]; !ok {
		return fmt.Errorf("agent.model %q does not name a configured llm (have: %v)", c.Agent.Model, c.llmNames())
	}
	if c.Agent.MaxToolIterations <= 0 {
		return fmt.Errorf("agent.max_tool_iterations must be positive")
	}
	switch c.Embedding.Provider {
	case "ollama", "genai", "":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.Tools.WebSearch.Provider {
	case "searx", "duckduckgo", "tavily", "":
	default:
		return fmt.Errorf("unsupported web search provider: %s", c.Tools.WebSearch.Provider)
	}
	if c.Tools.WebSearch.Provider == "searx" && c.Tools.WebSearch.SearxHost == "" {
		return fmt.Errorf("web_search.searx_host is required for the searx provider")
	}
	if c.Tools.WebSearch.Provider == "tavily" && c.Tools.WebSearch.TavilyAPIKey == "" {
		return fmt.Errorf("web_search.tavily_api_key is required for the tavily provider")
	}
	return nil
}

func (c *Config) llmNames() []string {
	names := make([]string, 0, len(c.LLMs))
	for name := range c.LLMs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AgentLLM returns the LLM entry the agent is configured to use.
func (c *Config) AgentLLM() LLMConfig {
	return c.LLMs[c.Agent.Model]
}

// parseDuration parses s, returning fallback on empty or invalid input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// SSHConnectTimeout returns the SSH connect timeout as a duration.
func (c *Config) SSHConnectTimeout() time.Duration {
	return parseDuration(c.Tools.SSH.ConnectTimeout, 10*time.Second)
}

// SSHCommandTimeout returns the per-command SSH timeout as a duration.
func (c *Config) SSHCommandTimeout() time.Duration {
	return parseDuration(c.Tools.SSH.CommandTimeout, 30*time.Second)
}

// ScrapeCacheTTL returns the scrape cache TTL as a duration.
func (c *Config) ScrapeCacheTTL() time.Duration {
	return parseDuration(c.Tools.WebScrape.CacheTTL, 30*time.Minute)
}

// ToolTimeout returns the per-tool-call timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return parseDuration(c.Agent.ToolTimeout, 5*time.Minute)
}

// LLMTimeout returns the timeout for the given LLM entry.
func (l LLMConfig) LLMTimeout() time.Duration {
	return parseDuration(l.Timeout, 120*time.Second)
}
