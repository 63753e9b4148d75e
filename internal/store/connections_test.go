package store

import (
	"errors"
	"testing"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(testutil.NewTestLogger(t))
	if err := s.Open(":memory:"); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnectionCRUD(t *testing.T) {
	s := newTestStore(t)

	conn, err := s.CreateConnection("Sales DB", "postgres", map[string]any{
		"host": "localhost", "port": float64(5432), "database": "sales",
	})
	if err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
	if conn.ID == "" {
		t.Fatal("missing ID")
	}
	if got := conn.Identifier(); got != "sales_db" {
		t.Errorf("identifier = %q, want sales_db", got)
	}

	loaded, err := s.GetConnection(conn.ID)
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if loaded.Name != "Sales DB" || loaded.Type != "postgres" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Config["host"] != "localhost" {
		t.Errorf("config host = %v", loaded.Config["host"])
	}

	all, err := s.ListConnections()
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("list = %d entries, want 1", len(all))
	}

	if _, err := s.UpdateConnection(conn.ID, "Sales Prod", map[string]any{"host": "db1"}); err != nil {
		t.Fatalf("UpdateConnection: %v", err)
	}
	loaded, _ = s.GetConnection(conn.ID)
	if loaded.Name != "Sales Prod" || loaded.Config["host"] != "db1" {
		t.Errorf("after update = %+v", loaded)
	}

	if err := s.DeleteConnection(conn.ID); err != nil {
		t.Fatalf("DeleteConnection: %v", err)
	}
	if _, err := s.GetConnection(conn.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteConnection(conn.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestConnectionIdentifierCollision(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateConnection("My Database", "postgres", nil); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// "my-database" sanitizes to the same identifier as "My Database".
	_, err := s.CreateConnection("my-database", "postgres", nil)
	var collision *engine.IdentifierCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("error = %v, want *IdentifierCollisionError", err)
	}
	if collision.Identifier != "my_database" {
		t.Errorf("identifier = %q", collision.Identifier)
	}

	// Nothing was written for the rejected create.
	all, _ := s.ListConnections()
	if len(all) != 1 {
		t.Errorf("connections = %d, want 1", len(all))
	}

	// A distinct identifier is fine.
	if _, err := s.CreateConnection("Other DB", "s3", nil); err != nil {
		t.Errorf("distinct create: %v", err)
	}
}

func TestConnectionRenameCollision(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.CreateConnection("Alpha", "postgres", nil)
	if _, err := s.CreateConnection("Beta", "postgres", nil); err != nil {
		t.Fatalf("create beta: %v", err)
	}

	_, err := s.UpdateConnection(a.ID, "BETA!", nil)
	var collision *engine.IdentifierCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("rename error = %v, want collision", err)
	}

	// Renaming to a variant of its own name is allowed.
	if _, err := s.UpdateConnection(a.ID, "ALPHA", nil); err != nil {
		t.Errorf("self rename: %v", err)
	}
}
