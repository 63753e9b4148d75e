package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Query is a named workspace: a set of selected tables, a chat thread, and
// the SQL being worked on.
type Query struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SQL       string    `json:"sql"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Selection ties a connection's table into a query workspace.
type Selection struct {
	ID           string    `json:"id"`
	QueryID      string    `json:"query_id"`
	ConnectionID string    `json:"connection_id"`
	Schema       string    `json:"schema"`
	Table        string    `json:"table"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatMessage is one turn of a query workspace's chat thread.
type ChatMessage struct {
	ID        string    `json:"id"`
	QueryID   string    `json:"query_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry records one generate/execute round trip.
type HistoryEntry struct {
	ID          string    `json:"id"`
	QueryID     string    `json:"query_id"`
	Prompt      string    `json:"prompt"`
	SQL         string    `json:"sql"`
	Explanation string    `json:"explanation"`
	RowCount    *int64    `json:"row_count,omitempty"`
	ExecutionMS *int64    `json:"execution_ms,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateQuery persists a new query workspace.
func (s *Store) CreateQuery(name string) (*Query, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	q := &Query{ID: generateID(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.Exec(
		`INSERT INTO queries (id, name, sql_text, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		q.ID, q.Name, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query: %w", err)
	}
	return q, nil
}

// GetQuery retrieves a query workspace by ID.
func (s *Store) GetQuery(id string) (*Query, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := &Query{}
	err := s.db.QueryRow(
		`SELECT id, name, sql_text, created_at, updated_at FROM queries WHERE id = ?`, id,
	).Scan(&q.ID, &q.Name, &q.SQL, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get query: %w", err)
	}
	return q, nil
}

// ListQueries returns all query workspaces, newest first.
func (s *Store) ListQueries() ([]*Query, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, name, sql_text, created_at, updated_at FROM queries ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var out []*Query
	for rows.Next() {
		q := &Query{}
		if err := rows.Scan(&q.ID, &q.Name, &q.SQL, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpdateQuerySQL stores the working SQL text for a query.
func (s *Store) UpdateQuerySQL(id, sqlText string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE queries SET sql_text = ?, updated_at = ? WHERE id = ?`,
		sqlText, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update query sql: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteQuery removes a workspace and everything hanging off it.
func (s *Store) DeleteQuery(id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Selections ---

// AddSelection adds a table to a query workspace. Duplicate selections are
// returned as-is.
func (s *Store) AddSelection(queryID, connectionID, schema, table string) (*Selection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	sel := &Selection{
		ID:           generateID(),
		QueryID:      queryID,
		ConnectionID: connectionID,
		Schema:       schema,
		Table:        table,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO query_selections (id, query_id, connection_id, schema_name, table_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (query_id, connection_id, schema_name, table_name) DO NOTHING`,
		sel.ID, sel.QueryID, sel.ConnectionID, sel.Schema, sel.Table, sel.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add selection: %w", err)
	}
	return sel, nil
}

// ListSelections returns a workspace's selected tables.
func (s *Store) ListSelections(queryID string) ([]*Selection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, query_id, connection_id, schema_name, table_name, created_at
		 FROM query_selections WHERE query_id = ? ORDER BY created_at`, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	var out []*Selection
	for rows.Next() {
		sel := &Selection{}
		if err := rows.Scan(&sel.ID, &sel.QueryID, &sel.ConnectionID, &sel.Schema, &sel.Table, &sel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

// RemoveSelection deletes one selection from a workspace.
func (s *Store) RemoveSelection(queryID, selectionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.Exec(
		`DELETE FROM query_selections WHERE id = ? AND query_id = ?`, selectionID, queryID)
	if err != nil {
		return fmt.Errorf("failed to remove selection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Chat ---

// AddChatMessage appends a message to a workspace's chat thread.
func (s *Store) AddChatMessage(queryID, role, content string) (*ChatMessage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	msg := &ChatMessage{
		ID:        generateID(),
		QueryID:   queryID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO chat_messages (id, query_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.QueryID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add chat message: %w", err)
	}
	return msg, nil
}

// ListChatMessages returns a workspace's chat thread in order.
func (s *Store) ListChatMessages(queryID string) ([]*ChatMessage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, query_id, role, content, created_at FROM chat_messages
		 WHERE query_id = ? ORDER BY created_at`, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		msg := &ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.QueryID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// ClearChatMessages wipes a workspace's chat thread.
func (s *Store) ClearChatMessages(queryID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM chat_messages WHERE query_id = ?`, queryID); err != nil {
		return fmt.Errorf("failed to clear chat messages: %w", err)
	}
	return nil
}

// --- History ---

// AddHistory records a generation round trip.
func (s *Store) AddHistory(entry *HistoryEntry) (*HistoryEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	entry.ID = generateID()
	entry.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO query_history (id, query_id, prompt, generated_sql, explanation, row_count, execution_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.QueryID, entry.Prompt, entry.SQL, entry.Explanation,
		entry.RowCount, entry.ExecutionMS, nullIfEmpty(entry.Error), entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add history entry: %w", err)
	}
	return entry, nil
}

// UpdateHistoryExecution fills in execution results for a history entry.
func (s *Store) UpdateHistoryExecution(id string, rowCount, executionMS int64, execErr string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`UPDATE query_history SET row_count = ?, execution_ms = ?, error = ? WHERE id = ?`,
		rowCount, executionMS, nullIfEmpty(execErr), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update history entry: %w", err)
	}
	return nil
}

// ListHistory returns a workspace's history, newest first.
func (s *Store) ListHistory(queryID string, limit int) ([]*HistoryEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, query_id, prompt, generated_sql, explanation, row_count, execution_ms, error, created_at
		 FROM query_history WHERE query_id = ? ORDER BY created_at DESC LIMIT ?`, queryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		var rowCount, execMS sql.NullInt64
		var execErr sql.NullString
		if err := rows.Scan(&e.ID, &e.QueryID, &e.Prompt, &e.SQL, &e.Explanation, &rowCount, &execMS, &execErr, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if rowCount.Valid {
			e.RowCount = &rowCount.Int64
		}
		if execMS.Valid {
			e.ExecutionMS = &execMS.Int64
		}
		e.Error = execErr.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
