package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		Category:    CategoryGeneral,
		Schema: Schema{
			Required: []string{"text"},
			Properties: map[string]Property{
				"text": {Type: "string", Description: "text to echo"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return "echo: " + text, nil
		},
	}
}

func TestRegisterAndExecute(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !reg.Has("echo") {
		t.Error("Has should return true")
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}

	result, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output != "echo: hi" {
		t.Errorf("Output = %q", result.Output)
	}
	if !result.IsSuccess() {
		t.Error("result should be success")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(echoTool("echo")); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := reg.Register(echoTool("echo"))
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Errorf("err = %v, want ErrToolAlreadyRegistered", err)
	}
}

func TestRegisterInvalid(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&Tool{Name: ""}); !errors.Is(err, ErrToolNameEmpty) {
		t.Errorf("empty name: err = %v", err)
	}
	if err := reg.Register(&Tool{Name: "x"}); !errors.Is(err, ErrToolExecuteNil) {
		t.Errorf("nil execute: err = %v", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}

func TestExecuteMissingRequiredArg(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("echo"))

	result, err := reg.Execute(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Errorf("err = %v, want ErrMissingRequiredArg", err)
	}
	if result == nil || result.IsSuccess() {
		t.Error("result should carry the failure")
	}
}

func TestExecuteToolError(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name: "fail",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", fmt.Errorf("boom")
		},
	})

	result, err := reg.Execute(context.Background(), "fail", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.IsSuccess() {
		t.Error("result should not be success")
	}
}

func TestDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("zeta"))
	reg.MustRegister(echoTool("alpha"))

	defs := reg.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}
	// Sorted by name for deterministic requests.
	if defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("definitions out of order: %s, %s", defs[0].Name, defs[1].Name)
	}

	schema := defs[0].InputSchema
	if schema["type"] != "object" {
		t.Errorf("schema type = %v", schema["type"])
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "text" {
		t.Errorf("schema required = %v", schema["required"])
	}
}

func TestNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("b"))
	reg.MustRegister(echoTool("a"))
	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names = %v", names)
	}
}
