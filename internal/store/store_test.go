package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquaagent/internal/llm"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndHistory(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("sess-1", "disk check"))

	msgs := []llm.ChatMessage{
		llm.UserMessage("check disk usage"),
		{
			Role:    llm.RoleAssistant,
			Content: "",
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "ssh", Input: map[string]any{"command": "df -h"}},
			},
		},
		{Role: llm.RoleTool, Content: "/dev/sda1 58% /", ToolCallID: "call-1", ToolName: "ssh"},
		llm.AssistantMessage("The root filesystem is at 58%."),
	}
	for i, msg := range msgs {
		require.NoError(t, s.AppendTurn("sess-1", i, msg))
	}

	history, err := s.History("sess-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "check disk usage", history[0].Content)

	require.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, "ssh", history[1].ToolCalls[0].Name)
	assert.Equal(t, "df -h", history[1].ToolCalls[0].Input["command"])

	assert.Equal(t, "call-1", history[2].ToolCallID)
	assert.Equal(t, "ssh", history[2].ToolName)
}

func TestHistoryLimitKeepsRecent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("sess-1", ""))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendTurn("sess-1", i, llm.UserMessage(string(rune('a'+i)))))
	}

	history, err := s.History("sess-1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "h", history[0].Content)
	assert.Equal(t, "j", history[2].Content)
}

func TestAppendTurnIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("sess-1", ""))

	require.NoError(t, s.AppendTurn("sess-1", 0, llm.UserMessage("first")))
	require.NoError(t, s.AppendTurn("sess-1", 0, llm.UserMessage("replayed")))

	history, err := s.History("sess-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Content)
}

func TestCreateSessionIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("sess-1", "original"))
	require.NoError(t, s.CreateSession("sess-1", "overwrite attempt"))

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "original", sessions[0].Title)
}

func TestSetTitle(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("sess-1", ""))
	require.NoError(t, s.SetTitle("sess-1", "Install nginx"))

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Install nginx", sessions[0].Title)
}

func TestSessionsOrderAndTurnCount(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("old", ""))
	require.NoError(t, s.CreateSession("new", ""))

	require.NoError(t, s.AppendTurn("new", 0, llm.UserMessage("hello")))
	require.NoError(t, s.AppendTurn("new", 1, llm.AssistantMessage("hi")))

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, 2, sessions[0].Turns)

	count, err := s.TurnCount("new")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteSession(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("sess-1", ""))
	require.NoError(t, s.AppendTurn("sess-1", 0, llm.UserMessage("hello")))

	require.NoError(t, s.DeleteSession("sess-1"))

	history, err := s.History("sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateSession("fresh", ""))

	// Backdate a session past the retention window.
	require.NoError(t, s.CreateSession("stale", ""))
	_, err := s.db.Exec(`UPDATE sessions SET updated_at = datetime('now', '-60 days') WHERE id = 'stale'`)
	require.NoError(t, err)

	n, err := s.Prune(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "fresh", sessions[0].ID)
}

func TestHistoryEmptySession(t *testing.T) {
	s := openTestStore(t)
	history, err := s.History("missing", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
