// Package metadata assembles the schema context of a query workspace: the
// selected tables of each connection plus the workspace's uploaded files,
// with engine-qualified names ready for use in federated SQL.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/source"
	"github.com/qbox-labs/qbox/internal/store"
)

// ContextTable is one queryable object in a workspace.
type ContextTable struct {
	// Qualified is the name to use in SQL, e.g. pg_sales.public.orders
	// or an uploaded file's view name.
	Qualified  string              `json:"qualified"`
	Connection string              `json:"connection,omitempty"`
	Schema     string              `json:"schema,omitempty"`
	Table      string              `json:"table"`
	RowCount   int64               `json:"row_count,omitempty"`
	Columns    []engine.ColumnInfo `json:"columns"`
}

// QueryContext is everything the SQL generator needs to know about a
// workspace.
type QueryContext struct {
	QueryID string         `json:"query_id"`
	Tables  []ContextTable `json:"tables"`
}

// Service collects workspace metadata through the engine.
type Service struct {
	store   *store.Store
	manager *source.Manager
	session *engine.Session
	logger  *slog.Logger
}

// New returns a metadata service.
func New(st *store.Store, manager *source.Manager, session *engine.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: st, manager: manager, session: session, logger: logger}
}

// ConnectionSchema collects the full schema of one connection.
func (s *Service) ConnectionSchema(ctx context.Context, connectionID string) (*source.SchemaInfo, error) {
	conn, err := s.manager.Connection(connectionID)
	if err != nil {
		return nil, err
	}
	return conn.Schema(ctx, s.session)
}

// TableDetails collects column metadata for one table of a connection.
func (s *Service) TableDetails(ctx context.Context, connectionID, schema, table string) (*source.TableInfo, error) {
	conn, err := s.manager.Connection(connectionID)
	if err != nil {
		return nil, err
	}
	return conn.TableDetails(ctx, s.session, schema, table)
}

// ForQuery assembles the schema context for a workspace: selected tables
// first, then the workspace's uploaded files. A selection whose metadata
// cannot be collected is skipped with a warning rather than failing the
// whole context.
func (s *Service) ForQuery(ctx context.Context, queryID string) (*QueryContext, error) {
	qc := &QueryContext{QueryID: queryID}

	selections, err := s.store.ListSelections(queryID)
	if err != nil {
		return nil, err
	}
	for _, sel := range selections {
		conn, err := s.manager.Connection(sel.ConnectionID)
		if err != nil {
			s.logger.Warn("selection references missing connection", "connection", sel.ConnectionID)
			continue
		}
		alias, err := conn.Attach(ctx, s.session)
		if err != nil {
			s.logger.Warn("attach for metadata failed", "connection", sel.ConnectionID, "error", err)
			continue
		}
		ti, err := conn.TableDetails(ctx, s.session, sel.Schema, sel.Table)
		if err != nil {
			s.logger.Warn("table metadata failed", "table", sel.Table, "error", err)
			continue
		}
		qc.Tables = append(qc.Tables, ContextTable{
			Qualified:  ti.QualifiedName(alias),
			Connection: conn.Name(),
			Schema:     sel.Schema,
			Table:      sel.Table,
			RowCount:   ti.RowCount,
			Columns:    ti.Columns,
		})
	}

	fileRecs, err := s.store.ListFiles(queryID)
	if err != nil {
		return nil, err
	}
	for _, rec := range fileRecs {
		logical := strings.TrimSuffix(rec.Name, filepath.Ext(rec.Name))
		viewName, err := s.session.RegisterFile(ctx, rec.ID, logical, rec.Path, engine.FileType(rec.FileType), rec.SheetName)
		if err != nil {
			s.logger.Warn("file view for metadata failed", "file", rec.ID, "error", err)
			continue
		}
		cols, err := s.session.DescribeView(ctx, viewName)
		if err != nil {
			s.logger.Warn("file describe failed", "view", viewName, "error", err)
			continue
		}
		qc.Tables = append(qc.Tables, ContextTable{
			Qualified: viewName,
			Table:     viewName,
			Columns:   cols,
		})
	}

	return qc, nil
}

// Describe renders the context as the plain-text schema block handed to
// the SQL generator.
func (qc *QueryContext) Describe() string {
	var b strings.Builder
	for _, t := range qc.Tables {
		fmt.Fprintf(&b, "Table %s", t.Qualified)
		if t.Connection != "" {
			fmt.Fprintf(&b, " (connection %q)", t.Connection)
		}
		if t.RowCount > 0 {
			fmt.Fprintf(&b, ", ~%d rows", t.RowCount)
		}
		b.WriteString(":\n")
		for _, col := range t.Columns {
			nullable := "NOT NULL"
			if col.Nullable {
				nullable = "NULL"
			}
			pk := ""
			if col.PrimaryKey {
				pk = " PRIMARY KEY"
			}
			fmt.Fprintf(&b, "  - %s %s %s%s\n", col.Name, col.Type, nullable, pk)
		}
	}
	return b.String()
}
