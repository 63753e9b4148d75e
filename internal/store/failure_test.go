package store

import (
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockStore injects a sqlmock handle so database failures can be
// simulated without a real file.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, logger: slog.New(slog.DiscardHandler)}, mock
}

func TestListConnectionsQueryError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM connections`).WillReturnError(assert.AnError)

	_, err := st.ListConnections()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list connections")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListConnectionsCorruptConfig(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "type", "config", "created_at", "updated_at"}).
		AddRow("c1", "Sales DB", "postgres", "{not json", now, now)
	mock.ExpectQuery(`SELECT .+ FROM connections ORDER BY created_at`).WillReturnRows(rows)

	_, err := st.ListConnections()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config")
}

func TestCreateConnectionCollisionCheckError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, name FROM connections WHERE id != ?`).WillReturnError(assert.AnError)

	_, err := st.CreateConnection("Sales DB", "postgres", map[string]any{"host": "localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check identifier collision")
}

func TestDeleteConnectionExecError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM connections`).WillReturnError(assert.AnError)

	err := st.DeleteConnection("c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete connection")
}

func TestStoreNotOpened(t *testing.T) {
	st := New(nil)

	_, err := st.ListConnections()
	assert.ErrorContains(t, err, "database not opened")
	_, err = st.CreateConnection("x", "postgres", nil)
	assert.ErrorContains(t, err, "database not opened")
	assert.NoError(t, st.Close())
}
