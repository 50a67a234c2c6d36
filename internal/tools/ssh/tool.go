package ssh

import (
	"context"
	"fmt"

	"aquaagent/internal/config"
	"aquaagent/internal/tools"
)

// Tool returns the remote execution tool backed by a persistent session.
func Tool(session *Session) *tools.Tool {
	return &tools.Tool{
		Name:        "ssh",
		Description: "Execute a shell command on the managed host. Commands run in a persistent interactive shell, so state carries over and a pending y/n prompt can be answered with the next command.",
		Category:    tools.CategoryOperations,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return execute(ctx, session, args)
		},
		Schema: tools.Schema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The shell command to execute on the managed host",
				},
				"reset": {
					Type:        "boolean",
					Description: "Set to true to rebuild the shell session first; use when the terminal is stuck",
					Default:     false,
				},
			},
		},
	}
}

func execute(ctx context.Context, session *Session, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return "", fmt.Errorf("command is required")
	}

	if reset, _ := args["reset"].(bool); reset {
		if err := session.Reset(ctx); err != nil {
			return "", fmt.Errorf("session reset failed: %w", err)
		}
	}

	return session.Run(ctx, command)
}

// Register adds the ssh tool when a host is configured.
func Register(registry *tools.Registry, cfg config.SSHConfig) (*Session, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	session := NewSession(cfg)
	if err := registry.Register(Tool(session)); err != nil {
		return nil, err
	}
	return session, nil
}
