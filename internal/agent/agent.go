// Package agent implements the system-operation conversation loop: it
// feeds the conversation to the LLM, executes the tool calls the model
// requests, and repeats until the model answers in plain text.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"aquaagent/internal/config"
	"aquaagent/internal/llm"
	"aquaagent/internal/logging"
	"aquaagent/internal/store"
	"aquaagent/internal/tools"
)

// Hooks lets the caller observe tool activity while a turn runs.
// Both fields are optional.
type Hooks struct {
	// OnToolCall fires before a requested tool executes.
	OnToolCall func(call llm.ToolCall)

	// OnToolResult fires after a tool finishes, successful or not.
	OnToolResult func(call llm.ToolCall, output string, err error, elapsed time.Duration)
}

// Options configures a new Agent.
type Options struct {
	// SessionID resumes an existing stored session; empty generates one.
	SessionID string

	// Store persists turns when non-nil.
	Store *store.SessionStore

	// Hooks observe tool activity.
	Hooks Hooks

	// HistoryLimit bounds the in-memory conversation; 0 keeps everything.
	HistoryLimit int
}

// Agent drives one conversation against a model and a tool registry.
// It is not safe for concurrent use; each conversation gets its own Agent.
type Agent struct {
	client   llm.Client
	registry *tools.Registry
	cfg      config.AgentConfig

	sessionID    string
	stor         *store.SessionStore
	hooks        Hooks
	historyLimit int
	toolTimeout  time.Duration

	history []llm.ChatMessage
	turn    int
	usage   llm.Usage
	titled  bool
}

// New builds an agent. When opts.Store is set and opts.SessionID names an
// existing session, its history is loaded so the conversation resumes
// where it left off; otherwise a fresh session starts with the system
// prompt as its first message.
func New(client llm.Client, registry *tools.Registry, cfg *config.Config, opts Options) (*Agent, error) {
	a := &Agent{
		client:       client,
		registry:     registry,
		cfg:          cfg.Agent,
		sessionID:    opts.SessionID,
		stor:         opts.Store,
		hooks:        opts.Hooks,
		historyLimit: opts.HistoryLimit,
		toolTimeout:  cfg.ToolTimeout(),
	}
	if a.sessionID == "" {
		a.sessionID = uuid.NewString()
	}
	if a.cfg.MaxToolIterations <= 0 {
		a.cfg.MaxToolIterations = 100
	}

	if a.stor != nil {
		history, err := a.stor.History(a.sessionID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load session history: %w", err)
		}
		if len(history) > 0 {
			a.history = history
			a.turn = len(history)
			a.titled = true
			logging.Agent("Resumed session %s with %d turns", a.sessionID, a.turn)
			return a, nil
		}
	}

	prompt, err := buildSystemPrompt(cfg.Agent.SystemPromptFile)
	if err != nil {
		return nil, err
	}
	if a.stor != nil {
		if err := a.stor.CreateSession(a.sessionID, ""); err != nil {
			return nil, err
		}
	}
	a.append(llm.SystemMessage(prompt))
	return a, nil
}

// SessionID returns the conversation's session identifier.
func (a *Agent) SessionID() string {
	return a.sessionID
}

// Usage returns accumulated token usage for this conversation.
func (a *Agent) Usage() llm.Usage {
	return a.usage
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(a.history))
	copy(out, a.history)
	return out
}

// Ask sends one user input through the tool loop and returns the model's
// final text answer. Tool calls requested along the way are executed
// through the registry and their results fed back to the model.
func (a *Agent) Ask(ctx context.Context, input string) (string, error) {
	a.append(llm.UserMessage(input))

	timer := logging.StartTimer(logging.CategoryAgent, "ask")
	defer timer.Stop()

	for iteration := 0; iteration < a.cfg.MaxToolIterations; iteration++ {
		resp, err := a.client.Chat(ctx, a.history, a.registry.Definitions())
		if err != nil {
			return "", fmt.Errorf("llm request failed: %w", err)
		}
		a.usage.Add(resp.Usage)

		assistant := llm.AssistantMessage(resp.Text)
		assistant.ToolCalls = resp.ToolCalls
		a.append(assistant)

		if !resp.WantsTools() {
			a.trim()
			a.maybeTitle(ctx, input)
			return resp.Text, nil
		}

		logging.AgentDebug("Iteration %d: model requested %d tool call(s)", iteration, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			a.append(llm.ToolResultMessage(call, a.executeCall(ctx, call)))
		}
		a.trim()

		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	msg := fmt.Sprintf("stopped after %d tool iterations without a final answer", a.cfg.MaxToolIterations)
	logging.Get(logging.CategoryAgent).Error("%s (session %s)", msg, a.sessionID)
	return "", fmt.Errorf("%s", msg)
}

// executeCall runs one tool call and renders its outcome as the text the
// model sees. Failures, including unknown tool names, come back as error
// text so the model can correct itself instead of the conversation dying.
func (a *Agent) executeCall(ctx context.Context, call llm.ToolCall) string {
	if a.hooks.OnToolCall != nil {
		a.hooks.OnToolCall(call)
	}

	callCtx := ctx
	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := a.registry.Execute(callCtx, call.Name, call.Input)
	elapsed := time.Since(start)

	var output string
	if err != nil {
		output = fmt.Sprintf("tool %s failed: %v", call.Name, err)
		logging.Get(logging.CategoryAgent).Error("Tool %s failed after %v: %v", call.Name, elapsed, err)
	} else {
		output = result.Output
		logging.AgentDebug("Tool %s completed in %v", call.Name, elapsed)
	}

	if a.hooks.OnToolResult != nil {
		a.hooks.OnToolResult(call, output, err, elapsed)
	}
	return output
}

// maybeTitle names a stored session after its first completed exchange.
// Best effort: a failed title leaves the session untitled.
func (a *Agent) maybeTitle(ctx context.Context, input string) {
	if a.stor == nil || a.titled {
		return
	}
	a.titled = true

	prompt := fmt.Sprintf("Summarize this task as a title of at most six words. Reply with the title only.\n\nTask: %s", input)
	title, err := a.client.Complete(ctx, prompt)
	if err != nil {
		logging.AgentDebug("Session title generation failed: %v", err)
		return
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	if err := a.stor.SetTitle(a.sessionID, title); err == nil {
		logging.AgentDebug("Session %s titled: %s", a.sessionID, title)
	}
}

// append records a message in memory and, when a store is attached,
// persists it under the next turn number.
func (a *Agent) append(msg llm.ChatMessage) {
	a.history = append(a.history, msg)
	if a.stor != nil {
		if err := a.stor.AppendTurn(a.sessionID, a.turn, msg); err != nil {
			logging.Get(logging.CategoryAgent).Error("Failed to persist turn %d: %v", a.turn, err)
		}
	}
	a.turn++
}

// trim bounds the in-memory history. The system prompt always survives;
// the oldest exchanges after it go first. Trimming never splits an
// assistant message from the tool results that answer its calls.
func (a *Agent) trim() {
	if a.historyLimit <= 0 || len(a.history) <= a.historyLimit {
		return
	}

	keepFrom := len(a.history) - (a.historyLimit - 1)
	// Starting the window on a tool result would orphan it from its call.
	for keepFrom < len(a.history) && a.history[keepFrom].Role == llm.RoleTool {
		keepFrom++
	}

	trimmed := make([]llm.ChatMessage, 0, len(a.history)-keepFrom+1)
	trimmed = append(trimmed, a.history[0])
	trimmed = append(trimmed, a.history[keepFrom:]...)
	logging.AgentDebug("Trimmed history from %d to %d messages", len(a.history), len(trimmed))
	a.history = trimmed
}
