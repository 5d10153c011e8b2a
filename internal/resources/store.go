// Package resources persists conversation artifacts: message history, files
// written by tools, and resource records. Backed by SQLite so a single binary
// needs no external database.
package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vantagelabs/relay/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	tool_calls    TEXT,
	tool_results  TEXT,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, seq);

CREATE TABLE IF NOT EXISTS files (
	conversation_id TEXT NOT NULL,
	name          TEXT NOT NULL,
	content       BLOB NOT NULL,
	file_type     TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (conversation_id, name)
);

CREATE TABLE IF NOT EXISTS resources (
	id            TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_resources_conv ON resources(conversation_id);
`

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("resources: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent tool writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("resources: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores a message at the end of a conversation's history.
func (s *Store) Append(ctx context.Context, conversationID string, msg models.Message) error {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var toolCalls, toolResults []byte
	var err error
	if len(msg.ToolCalls) > 0 {
		if toolCalls, err = json.Marshal(msg.ToolCalls); err != nil {
			return fmt.Errorf("resources: encode tool calls: %w", err)
		}
	}
	if len(msg.ToolResults) > 0 {
		if toolResults, err = json.Marshal(msg.ToolResults); err != nil {
			return fmt.Errorf("resources: encode tool results: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, content, tool_calls, tool_results, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?), ?, ?, ?, ?, ?)`,
		id, conversationID, conversationID, string(msg.Role), msg.Content, toolCalls, toolResults, ts)
	if err != nil {
		return fmt.Errorf("resources: append message: %w", err)
	}
	return nil
}

// List returns a conversation's messages in append order.
func (s *Store) List(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, tool_calls, tool_results, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("resources: list messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		var toolCalls, toolResults sql.NullString
		if err := rows.Scan(&m.ID, &role, &m.Content, &toolCalls, &toolResults, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("resources: scan message: %w", err)
		}
		m.Role = models.Role(role)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("resources: decode tool calls: %w", err)
			}
		}
		if toolResults.Valid && toolResults.String != "" {
			if err := json.Unmarshal([]byte(toolResults.String), &m.ToolResults); err != nil {
				return nil, fmt.Errorf("resources: decode tool results: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// WriteFile upserts a conversation file and records it as a resource on first
// write.
func (s *Store) WriteFile(ctx context.Context, conversationID, name string, content []byte, fileType string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE files SET content = ?, file_type = ?, updated_at = ?
		WHERE conversation_id = ? AND name = ?`,
		content, fileType, time.Now(), conversationID, name)
	if err != nil {
		return fmt.Errorf("resources: update file %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (conversation_id, name, content, file_type, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, name, content, fileType, time.Now())
	if err != nil {
		return fmt.Errorf("resources: insert file %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, conversation_id, name, type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, name, "file", time.Now())
	if err != nil {
		return fmt.Errorf("resources: record resource %s: %w", name, err)
	}
	return nil
}

// ReadFile returns a file's content and type.
func (s *Store) ReadFile(ctx context.Context, conversationID, name string) ([]byte, string, error) {
	var content []byte
	var fileType string
	err := s.db.QueryRowContext(ctx, `
		SELECT content, file_type FROM files WHERE conversation_id = ? AND name = ?`,
		conversationID, name).Scan(&content, &fileType)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("resources: file %s not found", name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("resources: read file %s: %w", name, err)
	}
	return content, fileType, nil
}

// ListFiles returns a conversation's files, most recently updated first.
func (s *Store) ListFiles(ctx context.Context, conversationID string) ([]models.FileInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, file_type, LENGTH(content), updated_at
		FROM files WHERE conversation_id = ? ORDER BY updated_at DESC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("resources: list files: %w", err)
	}
	defer rows.Close()

	var out []models.FileInfo
	for rows.Next() {
		var f models.FileInfo
		if err := rows.Scan(&f.Name, &f.FileType, &f.Size, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("resources: scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListResources returns a conversation's resources, newest first.
func (s *Store) ListResources(ctx context.Context, conversationID string) ([]models.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, created_at
		FROM resources WHERE conversation_id = ? ORDER BY created_at DESC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("resources: list resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("resources: scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
