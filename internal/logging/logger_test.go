package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabled(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	// No logs directory should be created in production mode.
	if _, err := os.Stat(filepath.Join(ws, ".aqua", "logs")); !os.IsNotExist(err) {
		t.Errorf("expected no logs directory, got err=%v", err)
	}
	if IsDebugMode() {
		t.Error("debug mode should be disabled")
	}
}

func TestInitializeAndWrite(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	SSH("connected to %s", "example.com:22")
	SSHDebug("prompt matched after %d bytes", 512)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".aqua", "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_ssh.log") {
			found = true
			data, err := os.ReadFile(filepath.Join(ws, ".aqua", "logs", e.Name()))
			if err != nil {
				t.Fatalf("read log: %v", err)
			}
			if !strings.Contains(string(data), "connected to example.com:22") {
				t.Errorf("log missing info entry: %s", data)
			}
			if !strings.Contains(string(data), "prompt matched") {
				t.Errorf("log missing debug entry: %s", data)
			}
		}
	}
	if !found {
		t.Error("no ssh log file written")
	}
}

func TestCategoryFilter(t *testing.T) {
	ws := t.TempDir()
	err := Initialize(ws, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"research": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryResearch) {
		t.Error("research category should be disabled")
	}
	if !IsCategoryEnabled(CategorySSH) {
		t.Error("unlisted categories default to enabled")
	}
}

func TestConfigureLevelReload(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Settings{DebugMode: true, Level: "error"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if logLevel != LevelError {
		t.Fatalf("level = %d, want %d", logLevel, LevelError)
	}
	Configure(Settings{DebugMode: true, Level: "debug"})
	if logLevel != LevelDebug {
		t.Fatalf("level after reload = %d, want %d", logLevel, LevelDebug)
	}
}
