package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Executor runs user SQL against the session. Statements are passed to the
// engine untouched; queries reference attached aliases and views directly
// and the engine plans the federation.
type Executor struct {
	session *Session
}

// NewExecutor returns an executor bound to the given session.
func NewExecutor(session *Session) *Executor {
	return &Executor{session: session}
}

// QueryResult is an executed result set plus timing.
type QueryResult struct {
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	RowCount    int              `json:"row_count"`
	ExecutionMS int64            `json:"execution_ms"`
}

// Run executes sql and materializes the result.
func (e *Executor) Run(ctx context.Context, sql string) (*QueryResult, error) {
	start := time.Now()
	res, err := e.session.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &QueryResult{
		Columns:     res.Columns,
		Rows:        res.Rows,
		RowCount:    res.RowCount(),
		ExecutionMS: time.Since(start).Milliseconds(),
	}, nil
}

// RunPaged executes one page of sql along with the total row count of the
// unpaged statement. page is 1-based; pageSize <= 0 disables paging.
func (e *Executor) RunPaged(ctx context.Context, sql string, page, pageSize int) (*QueryResult, int64, error) {
	if pageSize <= 0 {
		res, err := e.Run(ctx, sql)
		if err != nil {
			return nil, 0, err
		}
		return res, int64(res.RowCount), nil
	}
	if page < 1 {
		page = 1
	}

	total, err := e.Count(ctx, sql)
	if err != nil {
		return nil, 0, err
	}

	res, err := e.Run(ctx, PageWrap(sql, pageSize, (page-1)*pageSize))
	if err != nil {
		return nil, 0, err
	}
	return res, total, nil
}

// Count returns the row count of sql without materializing its rows.
func (e *Executor) Count(ctx context.Context, sql string) (int64, error) {
	res, err := e.session.Execute(ctx, CountWrap(sql))
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	for _, v := range res.Rows[0] {
		switch n := v.(type) {
		case int64:
			return n, nil
		case int32:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("count query returned no numeric column")
}

// CountWrap wraps sql in a COUNT(*) subquery.
func CountWrap(sql string) string {
	return "SELECT COUNT(*) AS total FROM (" + stripTrailingSemicolon(sql) + ") AS qbox_count"
}

// PageWrap wraps sql with LIMIT/OFFSET.
func PageWrap(sql string, limit, offset int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS qbox_page LIMIT %d OFFSET %d",
		stripTrailingSemicolon(sql), limit, offset)
}

func stripTrailingSemicolon(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), ";")
}
