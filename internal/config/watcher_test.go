package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func startTestWatcher(t *testing.T, path string) (*Watcher, chan *Config) {
	t.Helper()
	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	})
	require.NoError(t, err)
	w.debounceDur = 10 * time.Millisecond

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, reloaded
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.yaml")
	writeConfigFile(t, path, "name: before\n")

	_, reloaded := startTestWatcher(t, path)

	writeConfigFile(t, path, "name: after\nversion: \"2.0.0\"\n")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "after", cfg.Name)
		assert.Equal(t, "2.0.0", cfg.Version)
		// Untouched sections keep their defaults through a reload.
		assert.Equal(t, "common", cfg.Agent.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after config write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cloud.yaml")
	writeConfigFile(t, path, "name: stable\n")

	_, reloaded := startTestWatcher(t, path)

	writeConfigFile(t, filepath.Join(dir, "notes.txt"), "unrelated\n")

	select {
	case cfg := <-reloaded:
		t.Fatalf("unexpected reload from unrelated file: %+v", cfg.Name)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.yaml")
	writeConfigFile(t, path, "name: good\n")

	w, reloaded := startTestWatcher(t, path)

	// Fails validation: unsupported llm type.
	writeConfigFile(t, path, "llms:\n  common:\n    type: carrier-pigeon\n    model: x\n")

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config must not reach the callback, got name=%q", cfg.Name)
	case <-time.After(time.Second):
	}

	// The watcher stays alive and picks up the next valid write.
	time.Sleep(2 * w.debounceDur)
	writeConfigFile(t, path, "name: recovered\n")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "recovered", cfg.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after recovery write")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.yaml")
	writeConfigFile(t, path, "name: once\n")

	w, _ := startTestWatcher(t, path)
	w.Stop()
	w.Stop()
}
