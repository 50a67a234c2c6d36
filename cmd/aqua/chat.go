package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"aquaagent/internal/agent"
	"aquaagent/internal/llm"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	dividerStyle = lipgloss.NewStyle().Faint(true)
)

// runChat runs the interactive line-oriented chat loop.
func runChat(ctx context.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		renderer = nil
	}

	a, err := agent.New(rt.client, rt.registry, rt.cfg, agent.Options{
		Store:        rt.store,
		HistoryLimit: rt.cfg.Session.HistoryLimit,
		Hooks: agent.Hooks{
			OnToolCall: func(call llm.ToolCall) {
				fmt.Println(toolStyle.Render(fmt.Sprintf("  → %s %s", call.Name, summarizeInput(call))))
			},
			OnToolResult: func(call llm.ToolCall, output string, err error, elapsed time.Duration) {
				if err != nil {
					fmt.Println(errorStyle.Render(fmt.Sprintf("  ✗ %s failed after %s: %v", call.Name, elapsed.Round(time.Millisecond), err)))
					return
				}
				fmt.Println(faintStyle.Render(fmt.Sprintf("  ✓ %s (%s, %d lines)", call.Name, elapsed.Round(time.Millisecond), strings.Count(output, "\n")+1)))
			},
		},
	})
	if err != nil {
		return err
	}

	fmt.Println(bannerStyle.Render(fmt.Sprintf("aqua %s · model %s · %d tools", version, rt.client.Model(), rt.registry.Count())))
	fmt.Println(faintStyle.Render("Describe a task, or type 'exit' to quit."))
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		if err := ctx.Err(); err != nil {
			fmt.Println()
			return nil
		}

		fmt.Print(promptStyle.Render("> "))
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit", "q":
			fmt.Println(faintStyle.Render("Exiting."))
			return nil
		}

		fmt.Println(faintStyle.Render("Processing your request..."))
		answer, err := a.Ask(ctx, input)
		if err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		printAnswer(renderer, answer)
		usage := a.Usage()
		fmt.Println(dividerStyle.Render(fmt.Sprintf("── task complete · %d tokens ──", usage.TotalTokens)))
		fmt.Println()
	}
}

// printAnswer renders markdown output, falling back to plain text when
// the renderer is unavailable or chokes on the content.
func printAnswer(renderer *glamour.TermRenderer, answer string) {
	if renderer != nil {
		if rendered, err := renderer.Render(answer); err == nil {
			fmt.Print(rendered)
			return
		}
	}
	fmt.Println(answer)
}

// summarizeInput gives a one-line preview of a tool call's arguments.
func summarizeInput(call llm.ToolCall) string {
	for _, key := range []string{"command", "query", "url"} {
		if v, ok := call.Input[key].(string); ok && v != "" {
			if runes := []rune(v); len(runes) > 80 {
				v = string(runes[:77]) + "..."
			}
			return faintStyle.Render(v)
		}
	}
	return ""
}
