package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jackc/pgx/v5"

	"github.com/qbox-labs/qbox/internal/engine"
)

// TypePostgres is the registered source type for PostgreSQL.
const TypePostgres = "postgres"

func init() {
	Register(TypePostgres, newPostgres, maskPostgresConfig, preservePostgresConfig)
}

// PostgresConfig is the typed shape of a postgres connection's config map.
type PostgresConfig struct {
	Host     string   `mapstructure:"host" json:"host"`
	Port     int      `mapstructure:"port" json:"port"`
	Database string   `mapstructure:"database" json:"database"`
	User     string   `mapstructure:"user" json:"user"`
	Password string   `mapstructure:"password" json:"password"`
	Schemas  []string `mapstructure:"schemas" json:"schemas,omitempty"`
	SSLMode  string   `mapstructure:"ssl_mode" json:"ssl_mode,omitempty"`
}

type postgresConnection struct {
	id     string
	name   string
	cfg    PostgresConfig
	raw    map[string]any
	logger *slog.Logger
}

func newPostgres(rec Record, logger *slog.Logger) (Connection, error) {
	var cfg PostgresConfig
	if err := mapstructure.Decode(rec.Config, &cfg); err != nil {
		return nil, &engine.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	return &postgresConnection{
		id:     rec.ID,
		name:   rec.Name,
		cfg:    cfg,
		raw:    rec.Config,
		logger: logger,
	}, nil
}

func (c *postgresConnection) ID() string   { return c.id }
func (c *postgresConnection) Name() string { return c.name }
func (c *postgresConnection) Type() string { return TypePostgres }

func (c *postgresConnection) options() engine.PostgresOptions {
	return engine.PostgresOptions{
		Host:     c.cfg.Host,
		Port:     c.cfg.Port,
		Database: c.cfg.Database,
		User:     c.cfg.User,
		Password: c.cfg.Password,
		Schemas:  c.cfg.Schemas,
	}
}

// Validate opens a short-lived direct connection so credential problems
// surface with the server's own message instead of an opaque attach
// failure later.
func (c *postgresConnection) Validate(ctx context.Context) error {
	sslMode := c.cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Port, c.cfg.Database, sslMode)

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return &engine.ConnectivityError{Source: c.name, Reason: connectReason(err), Err: err}
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return &engine.ConnectivityError{Source: c.name, Reason: connectReason(err), Err: err}
	}
	return nil
}

func connectReason(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "password authentication failed"):
		return "authentication failed"
	case strings.Contains(msg, "connection refused"):
		return "connection refused"
	case strings.Contains(msg, "no such host"):
		return "host not found"
	default:
		return msg
	}
}

func (c *postgresConnection) Attach(ctx context.Context, session *engine.Session) (string, error) {
	return session.AttachPostgres(ctx, c.id, c.name, "", c.options())
}

func (c *postgresConnection) Detach(ctx context.Context, session *engine.Session) error {
	return session.DetachNamed(ctx, c.id, engine.PostgresAlias(c.name))
}

// Schema walks information_schema through the attached alias: user schemas,
// their tables, then per-table columns and a best-effort row count.
func (c *postgresConnection) Schema(ctx context.Context, session *engine.Session) (*SchemaInfo, error) {
	alias, err := c.Attach(ctx, session)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{EngineName: alias}
	schemas := c.cfg.Schemas
	if len(schemas) == 0 {
		schemas, err = c.listSchemas(ctx, session, alias)
		if err != nil {
			return nil, err
		}
	}

	for _, schema := range schemas {
		tables, err := c.listTables(ctx, session, alias, schema)
		if err != nil {
			return nil, err
		}
		for _, table := range tables {
			ti, err := c.TableDetails(ctx, session, schema, table)
			if err != nil {
				c.logger.Warn("table details failed", "schema", schema, "table", table, "error", err)
				continue
			}
			info.Tables = append(info.Tables, *ti)
		}
	}
	return info, nil
}

func (c *postgresConnection) listSchemas(ctx context.Context, session *engine.Session, alias string) ([]string, error) {
	res, err := session.Execute(ctx, fmt.Sprintf(
		`SELECT schema_name FROM %s.information_schema.schemata
		 WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		 ORDER BY schema_name`, alias))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if s, ok := row["schema_name"].(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *postgresConnection) listTables(ctx context.Context, session *engine.Session, alias, schema string) ([]string, error) {
	res, err := session.Execute(ctx, fmt.Sprintf(
		`SELECT table_name FROM %s.information_schema.tables
		 WHERE table_schema = '%s' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, alias, escapeSQL(schema)))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if t, ok := row["table_name"].(string); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *postgresConnection) TableDetails(ctx context.Context, session *engine.Session, schema, table string) (*TableInfo, error) {
	alias, err := c.Attach(ctx, session)
	if err != nil {
		return nil, err
	}

	res, err := session.Execute(ctx, fmt.Sprintf(
		`SELECT column_name, data_type, is_nullable FROM %s.information_schema.columns
		 WHERE table_schema = '%s' AND table_name = '%s'
		 ORDER BY ordinal_position`, alias, escapeSQL(schema), escapeSQL(table)))
	if err != nil {
		return nil, err
	}

	ti := &TableInfo{Schema: schema, Name: table}
	for _, row := range res.Rows {
		col := engine.ColumnInfo{}
		if v, ok := row["column_name"].(string); ok {
			col.Name = v
		}
		if v, ok := row["data_type"].(string); ok {
			col.Type = v
		}
		if v, ok := row["is_nullable"].(string); ok {
			col.Nullable = strings.EqualFold(v, "YES")
		}
		ti.Columns = append(ti.Columns, col)
	}

	// Primary keys are cosmetic; a failure must not sink the whole table.
	pkRes, err := session.Execute(ctx, fmt.Sprintf(
		`SELECT kcu.column_name AS column_name
		 FROM %s.information_schema.table_constraints tc
		 JOIN %s.information_schema.key_column_usage kcu
		   ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY'
		   AND tc.table_schema = '%s' AND tc.table_name = '%s'`,
		alias, alias, escapeSQL(schema), escapeSQL(table)))
	if err == nil {
		pk := make(map[string]bool, len(pkRes.Rows))
		for _, row := range pkRes.Rows {
			if v, ok := row["column_name"].(string); ok {
				pk[v] = true
			}
		}
		for i := range ti.Columns {
			ti.Columns[i].PrimaryKey = pk[ti.Columns[i].Name]
		}
	}

	// Row count is cosmetic; a failure must not sink the whole schema.
	countRes, err := session.Execute(ctx, fmt.Sprintf(
		`SELECT COUNT(*) AS n FROM %s.%s.%s`, alias, engine.QuoteIdent(schema), engine.QuoteIdent(table)))
	if err == nil && len(countRes.Rows) == 1 {
		if n, ok := countRes.Rows[0]["n"].(int64); ok {
			ti.RowCount = n
		}
	}
	return ti, nil
}

func (c *postgresConnection) Cleanup(ctx context.Context, session *engine.Session) error {
	return c.Detach(ctx, session)
}

func (c *postgresConnection) MaskConfig() map[string]any {
	return maskPostgresConfig(c.raw)
}

func maskPostgresConfig(cfg map[string]any) map[string]any {
	out := cloneConfig(cfg)
	if _, ok := out["password"]; ok {
		out["password"] = ""
	}
	return out
}

func preservePostgresConfig(incoming, stored map[string]any) map[string]any {
	out := cloneConfig(incoming)
	if stringField(out, "password") == "" {
		if v := stringField(stored, "password"); v != "" {
			out["password"] = v
		}
	}
	return out
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
