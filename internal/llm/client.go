package llm

import (
	"context"
	"fmt"
	"sort"

	"aquaagent/internal/config"
)

// Client is the interface all LLM providers implement.
type Client interface {
	// Complete sends a bare prompt and returns the completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Chat sends a full conversation with tool definitions and returns the
	// model's reply, including any tool calls. This is the agent loop's
	// workhorse.
	Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*ToolResponse, error)

	// Model returns the configured model identifier.
	Model() string
}

// Streamer is an optional interface for clients that can stream a plain
// text completion incrementally. Callers fall back to CompleteWithSystem
// when a client does not implement it.
type Streamer interface {
	// CompleteWithStreaming returns a channel of content deltas and a
	// channel carrying at most one error. Both close when the stream ends.
	CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)
}

// NewClient builds a client for one named llms entry.
func NewClient(name string, cfg config.LLMConfig) (Client, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "ollama":
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("llm %q: unsupported llm type: %s", name, cfg.Type)
	}
}

// Registry holds the named clients built from config.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds every configured client.
func NewRegistry(cfgs map[string]config.LLMConfig) (*Registry, error) {
	clients := make(map[string]Client, len(cfgs))
	for name, cfg := range cfgs {
		client, err := NewClient(name, cfg)
		if err != nil {
			return nil, err
		}
		clients[name] = client
	}
	return &Registry{clients: clients}, nil
}

// Get returns the client for the given alias.
func (r *Registry) Get(name string) (Client, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("no llm configured under name %q (have: %v)", name, r.Names())
	}
	return client, nil
}

// Names returns the configured aliases, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
