package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountWrapAndPageWrap(t *testing.T) {
	assert.Equal(t,
		"SELECT COUNT(*) AS total FROM (SELECT * FROM t) AS qbox_count",
		CountWrap("SELECT * FROM t;  "))
	assert.Equal(t,
		"SELECT * FROM (SELECT * FROM t) AS qbox_page LIMIT 10 OFFSET 20",
		PageWrap("SELECT * FROM t", 10, 20))
}

func TestExecutorRun(t *testing.T) {
	s := newTestSession(t)
	ex := NewExecutor(s)

	res, err := ex.Run(context.Background(), "SELECT * FROM range(5) t(i)")
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, []string{"i"}, res.Columns)
	assert.GreaterOrEqual(t, res.ExecutionMS, int64(0))
}

func TestExecutorRunPaged(t *testing.T) {
	s := newTestSession(t)
	ex := NewExecutor(s)
	ctx := context.Background()

	res, total, err := ex.RunPaged(ctx, "SELECT i FROM range(25) t(i) ORDER BY i", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	require.Equal(t, 10, res.RowCount)
	assert.Equal(t, int64(10), res.Rows[0]["i"])

	// Last partial page.
	res, total, err = ex.RunPaged(ctx, "SELECT i FROM range(25) t(i) ORDER BY i", 3, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Equal(t, 5, res.RowCount)

	// pageSize <= 0 disables paging.
	res, total, err = ex.RunPaged(ctx, "SELECT i FROM range(25) t(i)", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Equal(t, 25, res.RowCount)
}
