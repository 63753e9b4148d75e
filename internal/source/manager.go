package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/store"
)

// Manager drives the connection lifecycle: create (validate, persist,
// attach), test, reconnect, update, delete. It owns neither the store nor
// the session; both are injected.
type Manager struct {
	store   *store.Store
	session *engine.Session
	logger  *slog.Logger
}

// NewManager returns a connection manager.
func NewManager(st *store.Store, session *engine.Session, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: st, session: session, logger: logger}
}

// build constructs the typed Connection for a stored record.
func (m *Manager) build(rec *store.Connection) (Connection, error) {
	return New(rec.Type, Record{ID: rec.ID, Name: rec.Name, Config: rec.Config}, m.logger)
}

// Test validates a connection config without persisting anything.
func (m *Manager) Test(ctx context.Context, name, sourceType string, config map[string]any) error {
	conn, err := New(sourceType, Record{ID: "test", Name: name, Config: config}, m.logger)
	if err != nil {
		return err
	}
	return conn.Validate(ctx)
}

// Create validates, persists, and attaches a new connection. The record is
// only written after validation passes; an attach failure after the write
// is surfaced but leaves the record in place for a later reconnect.
func (m *Manager) Create(ctx context.Context, name, sourceType string, config map[string]any) (*store.Connection, error) {
	conn, err := New(sourceType, Record{Name: name, Config: config}, m.logger)
	if err != nil {
		return nil, err
	}
	if err := conn.Validate(ctx); err != nil {
		return nil, err
	}

	rec, err := m.store.CreateConnection(name, sourceType, config)
	if err != nil {
		return nil, err
	}

	built, err := m.build(rec)
	if err != nil {
		return nil, err
	}
	if alias, err := built.Attach(ctx, m.session); err != nil {
		m.logger.Warn("attach after create failed", "connection", rec.ID, "error", err)
	} else {
		m.logger.Info("connection created", "connection", rec.ID, "alias", alias)
	}
	return rec, nil
}

// Get returns a stored connection with sensitive config fields masked.
func (m *Manager) Get(id string) (*store.Connection, error) {
	rec, err := m.store.GetConnection(id)
	if err != nil {
		return nil, err
	}
	rec.Config = MaskConfig(rec.Type, rec.Config)
	return rec, nil
}

// List returns all stored connections with masked configs.
func (m *Manager) List() ([]*store.Connection, error) {
	recs, err := m.store.ListConnections()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		rec.Config = MaskConfig(rec.Type, rec.Config)
	}
	return recs, nil
}

// Connection builds the typed Connection for a stored ID, with the real
// (unmasked) config.
func (m *Manager) Connection(id string) (Connection, error) {
	rec, err := m.store.GetConnection(id)
	if err != nil {
		return nil, err
	}
	return m.build(rec)
}

// EnsureAttached attaches a stored connection and returns its engine name.
func (m *Manager) EnsureAttached(ctx context.Context, id string) (string, error) {
	conn, err := m.Connection(id)
	if err != nil {
		return "", err
	}
	return conn.Attach(ctx, m.session)
}

// Reconnect re-validates and re-attaches a stored connection.
func (m *Manager) Reconnect(ctx context.Context, id string) error {
	conn, err := m.Connection(id)
	if err != nil {
		return err
	}
	if err := conn.Validate(ctx); err != nil {
		return err
	}
	if err := conn.Detach(ctx, m.session); err != nil {
		return err
	}
	_, err = conn.Attach(ctx, m.session)
	return err
}

// Update merges the incoming config with stored sensitive values, persists
// it, and detaches the live attachment so the next use picks up the new
// credentials.
func (m *Manager) Update(ctx context.Context, id, name string, config map[string]any) (*store.Connection, error) {
	stored, err := m.store.GetConnection(id)
	if err != nil {
		return nil, err
	}
	if config != nil {
		config = PreserveSensitive(stored.Type, config, stored.Config)
	}

	rec, err := m.store.UpdateConnection(id, name, config)
	if err != nil {
		return nil, err
	}
	if err := m.session.Detach(ctx, id); err != nil {
		m.logger.Warn("detach on update failed", "connection", id, "error", err)
	}
	rec.Config = MaskConfig(rec.Type, rec.Config)
	return rec, nil
}

// Delete cleans up engine state, then removes the record. Selections
// referencing the connection cascade away with it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	conn, err := m.Connection(id)
	if err != nil {
		return err
	}
	if err := conn.Cleanup(ctx, m.session); err != nil {
		m.logger.Warn("cleanup on delete failed", "connection", id, "error", err)
	}
	if err := m.store.DeleteConnection(id); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	m.logger.Info("connection deleted", "connection", id)
	return nil
}
