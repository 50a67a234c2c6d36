package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aquaagent/internal/config"
	"aquaagent/internal/logging"

	"github.com/google/uuid"
)

// OllamaClient implements Client for a local Ollama server's native chat API.
type OllamaClient struct {
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewOllamaClient creates a client from an llms config entry.
func NewOllamaClient(cfg config.LLMConfig) *OllamaClient {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaClient{
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.LLMTimeout(),
		},
	}
}

// Model returns the configured model identifier.
func (c *OllamaClient) Model() string {
	return c.model
}

// Complete sends a prompt and returns the completion.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OllamaClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []ChatMessage{}
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, SystemMessage(systemPrompt))
	}
	messages = append(messages, UserMessage(userPrompt))

	resp, err := c.Chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Chat sends a full conversation with tool definitions.
func (c *OllamaClient) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*ToolResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.LLMDebug("[Ollama] Chat: model=%s messages=%d tools=%d", c.model, len(messages), len(tools))

	reqBody := ollamaChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Tools:    toOllamaTools(tools),
		Stream:   false,
	}
	if c.temperature > 0 {
		reqBody.Options.Temperature = c.temperature
	}
	if c.maxTokens > 0 {
		reqBody.Options.NumPredict = c.maxTokens
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.LLMError("[Ollama] Chat request failed: %v", err)
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	toolCalls := make([]ToolCall, 0, len(chatResp.Message.ToolCalls))
	for _, tc := range chatResp.Message.ToolCalls {
		// Ollama does not assign call IDs; generate one so tool results
		// can be correlated the same way as with OpenAI.
		toolCalls = append(toolCalls, ToolCall{
			ID:    uuid.NewString(),
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}

	stopReason := "end_turn"
	if len(toolCalls) > 0 {
		stopReason = "tool_use"
	} else if chatResp.DoneReason == "length" {
		stopReason = "length"
	}

	result := &ToolResponse{
		Text:       chatResp.Message.Content,
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage: Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
	}

	logging.LLM("[Ollama] Chat completed in %v: text_len=%d tool_calls=%d",
		time.Since(start), len(result.Text), len(result.ToolCalls))
	return result, nil
}

// =============================================================================
// OLLAMA API TYPES
// =============================================================================

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func toOllamaMessages(messages []ChatMessage) []ollamaMessage {
	result := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, call := range m.ToolCalls {
			var tc ollamaToolCall
			tc.Function.Name = call.Name
			tc.Function.Arguments = call.Input
			om.ToolCalls = append(om.ToolCalls, tc)
		}
		result[i] = om
	}
	return result
}

func toOllamaTools(tools []ToolDefinition) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]ollamaTool, len(tools))
	for i, t := range tools {
		var ot ollamaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		result[i] = ot
	}
	return result
}
