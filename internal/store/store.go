// Package store persists conversation sessions in SQLite so a dialogue
// with the agent can be resumed after a restart.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"aquaagent/internal/llm"
	"aquaagent/internal/logging"
)

// SessionStore holds sessions and their turns in a local SQLite database.
type SessionStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID        string
	Title     string
	Turns     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*SessionStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SessionStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.StoreDebug("Session store opened: %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *SessionStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls_json TEXT DEFAULT '',
		tool_call_id TEXT DEFAULT '',
		tool_name TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, turn_number),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// CreateSession registers a session. Existing sessions are left untouched.
func (s *SessionStore) CreateSession(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, title) VALUES (?, ?)`,
		id, title,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create session %s: %v", id, err)
		return err
	}
	logging.StoreDebug("Session created: %s", id)
	return nil
}

// SetTitle updates a session's title.
func (s *SessionStore) SetTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE sessions SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to set title for %s: %v", id, err)
		return err
	}
	logging.StoreDebug("Session %s titled: %s", id, title)
	return nil
}

// AppendTurn records one conversation message. Duplicate turn numbers are
// silently skipped so replays after a crash stay idempotent.
func (s *SessionStore) AppendTurn(sessionID string, turn int, msg llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	toolCalls := ""
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO turns (session_id, turn_number, role, content, tool_calls_json, tool_call_id, tool_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, turn, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.ToolName,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to append turn %d to %s: %v", turn, sessionID, err)
		return err
	}

	if _, err := s.db.Exec(
		`UPDATE sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID,
	); err != nil {
		return err
	}

	logging.StoreDebug("Turn appended: session=%s turn=%d role=%s", sessionID, turn, msg.Role)
	return nil
}

// History returns the last limit messages of a session in chronological
// order. A limit of 0 returns everything.
func (s *SessionStore) History(sessionID string, limit int) ([]llm.ChatMessage, error) {
	timer := logging.StartTimer(logging.CategoryStore, "History")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT role, content, tool_calls_json, tool_call_id, tool_name
		 FROM turns WHERE session_id = ? ORDER BY turn_number`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT role, content, tool_calls_json, tool_call_id, tool_name FROM (
			SELECT turn_number, role, content, tool_calls_json, tool_call_id, tool_name
			FROM turns WHERE session_id = ? ORDER BY turn_number DESC LIMIT ?
		) ORDER BY turn_number`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to query history for %s: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	var history []llm.ChatMessage
	for rows.Next() {
		var role, content, toolCallsJSON, toolCallID, toolName string
		if err := rows.Scan(&role, &content, &toolCallsJSON, &toolCallID, &toolName); err != nil {
			return nil, err
		}
		msg := llm.ChatMessage{
			Role:       role,
			Content:    content,
			ToolCallID: toolCallID,
			ToolName:   toolName,
		}
		if toolCallsJSON != "" {
			if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("corrupt tool calls in session %s: %w", sessionID, err)
			}
		}
		history = append(history, msg)
	}
	return history, rows.Err()
}

// TurnCount returns the number of stored turns for a session.
func (s *SessionStore) TurnCount(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM turns WHERE session_id = ?`, sessionID,
	).Scan(&count)
	return count, err
}

// Sessions lists stored sessions, most recently updated first.
func (s *SessionStore) Sessions(limit int) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT s.id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id) AS turns
		 FROM sessions s ORDER BY s.updated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.CreatedAt, &info.UpdatedAt, &info.Turns); err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its turns.
func (s *SessionStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM turns WHERE session_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// Prune deletes sessions not updated within the retention window and
// returns how many were removed.
func (s *SessionStore) Prune(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).UTC().Format("2006-01-02 15:04:05")

	if _, err := s.db.Exec(
		`DELETE FROM turns WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`,
		cutoff,
	); err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.StoreDebug("Pruned %d stale sessions", n)
	}
	return n, nil
}
