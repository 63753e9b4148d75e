package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKnowsBuiltinTypes(t *testing.T) {
	assert.True(t, IsSupported(TypePostgres))
	assert.True(t, IsSupported(TypeS3))
	assert.False(t, IsSupported("mysql"))
	assert.Equal(t, []string{"postgres", "s3"}, SupportedTypes())
}

func TestNewUnknownType(t *testing.T) {
	_, err := New("oracle", Record{ID: "x", Name: "X"}, nil)
	var unknown *UnknownSourceTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "oracle", unknown.Type)
	assert.Contains(t, unknown.Available, "postgres")
}

func TestNewPostgresDecodesConfig(t *testing.T) {
	conn, err := New(TypePostgres, Record{
		ID:   "c1",
		Name: "Sales",
		Config: map[string]any{
			"host":     "db.local",
			"port":     5433,
			"database": "sales",
			"user":     "reader",
			"password": "pw",
			"schemas":  []any{"public", "audit"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", conn.ID())
	assert.Equal(t, TypePostgres, conn.Type())

	pg := conn.(*postgresConnection)
	assert.Equal(t, 5433, pg.cfg.Port)
	assert.Equal(t, []string{"public", "audit"}, pg.cfg.Schemas)

	// Port defaults when omitted.
	conn, err = New(TypePostgres, Record{ID: "c2", Name: "D", Config: map[string]any{"host": "h"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5432, conn.(*postgresConnection).cfg.Port)
}

func TestMaskConfigPostgres(t *testing.T) {
	masked := MaskConfig(TypePostgres, map[string]any{
		"host":     "db.local",
		"password": "hunter2",
	})
	assert.Equal(t, "", masked["password"])
	assert.Equal(t, "db.local", masked["host"])
}

func TestMaskConfigS3(t *testing.T) {
	masked := MaskConfig(TypeS3, map[string]any{
		"bucket":            "raw",
		"access_key_id":     "AKIA",
		"secret_access_key": "shh",
		"session_token":     "tok",
	})
	assert.Equal(t, "", masked["secret_access_key"])
	assert.Equal(t, "", masked["session_token"])
	assert.Equal(t, "AKIA", masked["access_key_id"])
}

func TestMaskConfigDoesNotMutateInput(t *testing.T) {
	original := map[string]any{"password": "pw"}
	_ = MaskConfig(TypePostgres, original)
	assert.Equal(t, "pw", original["password"])
}

func TestPreserveSensitivePostgres(t *testing.T) {
	stored := map[string]any{"host": "old", "password": "keepme"}

	// Empty incoming password keeps the stored one.
	merged := PreserveSensitive(TypePostgres, map[string]any{"host": "new", "password": ""}, stored)
	assert.Equal(t, "keepme", merged["password"])
	assert.Equal(t, "new", merged["host"])

	// A provided password wins.
	merged = PreserveSensitive(TypePostgres, map[string]any{"password": "fresh"}, stored)
	assert.Equal(t, "fresh", merged["password"])
}

func TestPreserveSensitiveS3(t *testing.T) {
	stored := map[string]any{
		"access_key_id":     "AKIA",
		"secret_access_key": "shh",
	}
	merged := PreserveSensitive(TypeS3, map[string]any{
		"bucket":            "raw",
		"access_key_id":     "",
		"secret_access_key": "",
	}, stored)
	assert.Equal(t, "AKIA", merged["access_key_id"])
	assert.Equal(t, "shh", merged["secret_access_key"])
}

func TestQualifiedName(t *testing.T) {
	withSchema := &TableInfo{Schema: "public", Name: "orders"}
	assert.Equal(t, "pg_sales.public.orders", withSchema.QualifiedName("pg_sales"))

	view := &TableInfo{Name: "report"}
	assert.Equal(t, "main.report", view.QualifiedName("main"))
}
