package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/qbox-labs/qbox/internal/engine"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Connection is a persisted data source connection. Config holds the
// type-specific settings (host, credentials, bucket, ...) as a JSON object.
type Connection struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Identifier returns the sanitized engine identifier for this connection's
// display name.
func (c *Connection) Identifier() string {
	return engine.SanitizeIdentifier(c.Name)
}

// CreateConnection persists a new connection. The connection name must not
// sanitize to the same engine identifier as any existing connection;
// collisions are rejected before anything is written.
func (s *Store) CreateConnection(name, connType string, config map[string]any) (*Connection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.checkIdentifierCollision(name, ""); err != nil {
		return nil, err
	}

	cfg, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	now := time.Now().UTC()
	conn := &Connection{
		ID:        generateID(),
		Name:      name,
		Type:      connType,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.Exec(
		`INSERT INTO connections (id, name, type, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.Name, conn.Type, string(cfg), conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}

// checkIdentifierCollision rejects a name whose sanitized identifier is
// already taken by a different connection. excludeID skips the connection
// being renamed.
func (s *Store) checkIdentifierCollision(name, excludeID string) error {
	ident := engine.SanitizeIdentifier(name)

	rows, err := s.db.Query(`SELECT id, name FROM connections WHERE id != ?`, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check identifier collision: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, existing string
		if err := rows.Scan(&id, &existing); err != nil {
			return err
		}
		if engine.SanitizeIdentifier(existing) == ident {
			return &engine.IdentifierCollisionError{Name: name, Identifier: ident, ExistingID: id}
		}
	}
	return rows.Err()
}

// GetConnection retrieves a connection by ID.
func (s *Store) GetConnection(id string) (*Connection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(
		`SELECT id, name, type, config, created_at, updated_at FROM connections WHERE id = ?`, id)
	return scanConnection(row)
}

// ListConnections returns all connections ordered by creation time.
func (s *Store) ListConnections() ([]*Connection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, name, type, config, created_at, updated_at FROM connections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

// UpdateConnection updates a connection's name and config. Renames go
// through the same collision check as creates.
func (s *Store) UpdateConnection(id, name string, config map[string]any) (*Connection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	existing, err := s.GetConnection(id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = existing.Name
	}
	if name != existing.Name {
		if err := s.checkIdentifierCollision(name, id); err != nil {
			return nil, err
		}
	}
	if config == nil {
		config = existing.Config
	}

	cfg, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`UPDATE connections SET name = ?, config = ?, updated_at = ? WHERE id = ?`,
		name, string(cfg), now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}

	existing.Name = name
	existing.Config = config
	existing.UpdatedAt = now
	return existing, nil
}

// DeleteConnection removes a connection; its query selections go with it.
func (s *Store) DeleteConnection(id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	conn := &Connection{}
	var cfg string
	err := row.Scan(&conn.ID, &conn.Name, &conn.Type, &cfg, &conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &conn.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return conn, nil
}
