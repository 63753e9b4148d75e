package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresOptionsDSN(t *testing.T) {
	opts := PostgresOptions{
		Host:     "db.internal",
		Port:     5433,
		Database: "sales",
		User:     "reader",
		Password: "s3cret",
	}
	assert.Equal(t, "host=db.internal port=5433 dbname=sales user=reader password=s3cret", opts.dsn())

	opts.Port = 0
	opts.Password = ""
	assert.Equal(t, "host=db.internal port=5432 dbname=sales user=reader", opts.dsn())
}

func TestSchemaClause(t *testing.T) {
	assert.Equal(t, "", schemaClause(nil))
	assert.Equal(t, "", schemaClause([]string{"a", "b"}))
	assert.Equal(t, ", SCHEMA 'public'", schemaClause([]string{"public"}))
	// Schema names pass through the literal escaper.
	assert.Equal(t, ", SCHEMA 'o''brien'", schemaClause([]string{"o'brien"}))
}

func TestAttachPostgresValidation(t *testing.T) {
	s := newTestSession(t)

	_, err := s.AttachPostgres(context.Background(), "conn-1", "Sales", "", PostgresOptions{
		Database: "sales",
		User:     "reader",
	})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigurationError", err)
	}
	assert.Equal(t, "host", cfgErr.Field)

	// Nothing was cached for the failed attach.
	if _, ok := s.IsAttached("conn-1"); ok {
		t.Error("validation failure left a cache entry")
	}
}

func TestAttachPostgresUnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a dead socket")
	}
	s := newTestSession(t)

	_, err := s.AttachPostgres(context.Background(), "conn-1", "Dead", "", PostgresOptions{
		Host:     "127.0.0.1",
		Port:     1, // nothing listens here
		Database: "sales",
		User:     "reader",
	})
	if err == nil {
		t.Fatal("expected attach to fail")
	}
	if _, ok := s.IsAttached("conn-1"); ok {
		t.Error("failed attach left a cache entry")
	}
}
