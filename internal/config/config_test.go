package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloud.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config", "cloud.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
	assert.Contains(t, err.Error(), "aqua config init")
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeConfig(t, `
llms:
  common:
    type: ollama
    base_url: http://localhost:11434
    model: qwen2.5:14b
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLMs["common"].Type)
	assert.Equal(t, "qwen2.5:14b", cfg.LLMs["common"].Model)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Tools.WebScrape.ChunkSize)
	assert.Equal(t, 200, cfg.Tools.WebScrape.ChunkOverlap)
	assert.Equal(t, 100, cfg.Agent.MaxToolIterations)
	assert.Equal(t, "common", cfg.Agent.Model)
	assert.Equal(t, 22, cfg.Tools.SSH.Port)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
llms:
  common:
    type: openai
    base_url: https://api.example.com/v1
    api_key: sk-test
    model: gpt-4o
    temperature: 0.2
  local:
    type: ollama
    base_url: http://localhost:11434
    model: llama3
agent:
  model: common
  max_tool_iterations: 50
tools:
  ssh:
    host: 192.168.1.10
    user: developer
    password: secret
    pre_execute:
      - export DEBIAN_FRONTEND=noninteractive
  web_search:
    provider: searx
    searx_host: http://localhost:8888
    engines: [bing, duckduckgo]
logging:
  debug_mode: true
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.LLMs, 2)
	assert.Equal(t, 50, cfg.Agent.MaxToolIterations)
	assert.Equal(t, "192.168.1.10", cfg.Tools.SSH.Host)
	assert.Equal(t, []string{"export DEBIAN_FRONTEND=noninteractive"}, cfg.Tools.SSH.PreExecute)
	assert.Equal(t, "searx", cfg.Tools.WebSearch.Provider)
	assert.True(t, cfg.Logging.DebugMode)

	agent := cfg.AgentLLM()
	assert.Equal(t, "gpt-4o", agent.Model)
	assert.Equal(t, 120*time.Second, agent.LLMTimeout())
}

func TestValidateUnsupportedLLMType(t *testing.T) {
	path := writeConfig(t, `
llms:
  common:
    type: anthropic
    model: claude-3
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported llm type: anthropic")
}

func TestValidateAgentModelMissing(t *testing.T) {
	path := writeConfig(t, `
llms:
  gpt:
    type: openai
    model: gpt-4o
agent:
  model: common
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `agent.model "common"`)
}

func TestValidateSearxRequiresHost(t *testing.T) {
	path := writeConfig(t, `
llms:
  common:
    type: openai
    model: gpt-4o
tools:
  web_search:
    provider: searx
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searx_host")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AQUA_SSH_PASSWORD", "hunter2")
	t.Setenv("AQUA_OPENAI_API_KEY", "sk-env")

	path := writeConfig(t, `
llms:
  common:
    type: openai
    model: gpt-4o
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Tools.SSH.Password)
	assert.Equal(t, "sk-env", cfg.LLMs["common"].APIKey)
}

func TestEnvDoesNotClobberExplicitKey(t *testing.T) {
	t.Setenv("AQUA_OPENAI_API_KEY", "sk-env")

	path := writeConfig(t, `
llms:
  common:
    type: openai
    api_key: sk-explicit
    model: gpt-4o
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", cfg.LLMs["common"].APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config", "cloud.yaml")

	cfg := DefaultConfig()
	cfg.Tools.SSH.Host = "example.com"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "example.com", loaded.Tools.SSH.Host)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tools.SSH.CommandTimeout = "not-a-duration"
	assert.Equal(t, 30*time.Second, cfg.SSHCommandTimeout())
	assert.Equal(t, 30*time.Minute, cfg.ScrapeCacheTTL())
	assert.Equal(t, 5*time.Minute, cfg.ToolTimeout())
}
