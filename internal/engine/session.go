// Package engine manages the embedded DuckDB instance that federates
// queries across attached databases, object-store secrets, and file views.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
	"golang.org/x/sync/singleflight"
)

// extensions loaded once per database handle. Load failures are logged and
// swallowed: a source type whose extension is missing fails at attach time
// with a clearer error.
var bootstrapExtensions = []string{"postgres", "httpfs", "excel"}

// Session owns the single DuckDB handle shared by all federated queries.
// The handle is opened lazily on first use and restricted to one underlying
// connection so session-scoped state (ATTACH, secrets, views) is visible to
// every statement.
type Session struct {
	mu sync.Mutex
	db *sql.DB

	path   string
	logger *slog.Logger

	// attachments covers Postgres database aliases and S3 secret names,
	// fileViews covers registered file view names. Both keyed by the
	// owning connection/file ID.
	attachments *attachmentCache
	fileViews   *attachmentCache

	// attachGroup collapses concurrent attach requests for the same ID
	// into a single DDL round trip.
	attachGroup singleflight.Group
}

// Config holds session configuration.
type Config struct {
	// Path is the DuckDB database file (empty for in-memory).
	Path string
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// NewSession creates a session with a lazy database handle. No engine work
// happens until the first Execute or attach call.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		path:        cfg.Path,
		logger:      logger,
		attachments: newAttachmentCache(),
		fileViews:   newAttachmentCache(),
	}
}

// ensureOpen opens the DuckDB handle if needed. Callers must hold s.mu.
func (s *Session) ensureOpen(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	s.logger.Debug("opening duckdb", "path", s.path)

	db, err := sql.Open("duckdb", s.path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}

	// Session settings (ATTACH, secrets, views) live on the connection,
	// not the database. A pool of one keeps them visible everywhere.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to duckdb: %w", err)
	}

	for _, ext := range bootstrapExtensions {
		if _, err := db.ExecContext(ctx, "INSTALL "+ext); err != nil {
			s.logger.Warn("extension install failed", "extension", ext, "error", err)
			continue
		}
		if _, err := db.ExecContext(ctx, "LOAD "+ext); err != nil {
			s.logger.Warn("extension load failed", "extension", ext, "error", err)
		}
	}

	s.db = db
	return nil
}

// handle returns the open database handle, opening it if necessary.
func (s *Session) handle(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	return s.db, nil
}

// exec runs a single DDL/utility statement. Callers must hold s.mu.
func (s *Session) exec(ctx context.Context, stmt string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return &ExecutionError{Query: stmt, Err: err}
	}
	return nil
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// RowCount returns the number of returned rows.
func (r *Result) RowCount() int { return len(r.Rows) }

// Execute runs a SQL statement and materializes the result set. Column
// order is preserved from the engine. Engine failures are returned as
// *ExecutionError with the engine's message intact.
func (s *Session) Execute(ctx context.Context, query string) (*Result, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &ExecutionError{Query: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{Query: query, Err: err}
	}

	result := &Result{Columns: cols, Rows: []map[string]any{}}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecutionError{Query: query, Err: err}
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Query: query, Err: err}
	}

	return result, nil
}

// IsAttached reports whether the given connection or file is currently
// attached, and under what engine object name.
func (s *Session) IsAttached(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.attachments.get(id); ok {
		return name, true
	}
	return s.fileViews.get(id)
}

// AttachedNames returns the engine object names of all live attachments.
func (s *Session) AttachedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(s.attachments.names(), s.fileViews.names()...)
}

// Detach removes whatever engine object the given ID is attached as. It is
// a no-op for unknown IDs.
func (s *Session) Detach(ctx context.Context, id string) error {
	return s.DetachNamed(ctx, id, "")
}

// DetachNamed is Detach with a fallback engine name. A file-backed engine
// database keeps schemas and views across restarts while the cache does
// not, so cleanup after a reopen must drop by name rather than trust the
// cache alone.
func (s *Session) DetachNamed(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.attachments.get(id); ok {
		if err := s.detachDatabaseLocked(ctx, cached); err != nil {
			return err
		}
		s.attachments.remove(id)
		return nil
	}
	if cached, ok := s.fileViews.get(id); ok {
		if err := s.exec(ctx, "DROP VIEW IF EXISTS "+QuoteIdent(cached)); err != nil {
			return err
		}
		s.fileViews.remove(id)
		return nil
	}
	if name == "" {
		return nil
	}
	return s.detachDatabaseLocked(ctx, name)
}

// detachDatabaseLocked drops either an attached database or a secret; the
// cache does not distinguish them, so both forms are tried. Callers must
// hold s.mu.
func (s *Session) detachDatabaseLocked(ctx context.Context, name string) error {
	if err := s.exec(ctx, "DETACH DATABASE IF EXISTS "+QuoteIdent(name)); err != nil {
		return err
	}
	if err := s.exec(ctx, "DROP SECRET IF EXISTS "+QuoteIdent(name)); err != nil {
		return err
	}
	return s.exec(ctx, "DROP SCHEMA IF EXISTS "+QuoteIdent(name)+" CASCADE")
}

// Close shuts the engine handle and clears all attachment state in one
// step, so a later call finds a clean session and re-runs bootstrap.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing duckdb session", "attachments", s.attachments.len(), "file_views", s.fileViews.len())

	err := s.db.Close()
	s.db = nil
	s.attachments.clear()
	s.fileViews.clear()
	if err != nil {
		return fmt.Errorf("failed to close duckdb: %w", err)
	}
	return nil
}
