package engine

import (
	"context"
	"fmt"
	"strings"
)

// PostgresOptions describes a Postgres database to attach.
type PostgresOptions struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// Schemas limits the attachment scope. Exactly one entry scopes the
	// ATTACH to that schema; zero or several attach the whole database.
	Schemas []string
}

func (o PostgresOptions) validate() error {
	switch {
	case o.Host == "":
		return &ConfigurationError{Field: "host", Reason: "must not be empty"}
	case o.Database == "":
		return &ConfigurationError{Field: "database", Reason: "must not be empty"}
	case o.User == "":
		return &ConfigurationError{Field: "user", Reason: "must not be empty"}
	}
	return nil
}

// dsn renders the key/value connection string embedded in the ATTACH
// statement. Individual values are escaped by the caller when the whole
// string is quoted.
func (o PostgresOptions) dsn() string {
	port := o.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + o.Host,
		fmt.Sprintf("port=%d", port),
		"dbname=" + o.Database,
		"user=" + o.User,
	}
	if o.Password != "" {
		parts = append(parts, "password="+o.Password)
	}
	return strings.Join(parts, " ")
}

// PostgresAlias returns the engine alias derived from a connection's
// display name.
func PostgresAlias(displayName string) string {
	return "pg_" + SanitizeIdentifier(displayName)
}

// AttachPostgres attaches a Postgres database under a stable engine alias
// and returns that alias. Repeat calls for an already-attached ID return
// the cached alias without touching the engine. The DDL is detach-then-
// attach, so a half-configured alias from an earlier failure cannot block
// a retry, and the cache is only updated after the ATTACH succeeds.
func (s *Session) AttachPostgres(ctx context.Context, id, displayName, alias string, opts PostgresOptions) (string, error) {
	if name, ok := s.IsAttached(id); ok {
		return name, nil
	}
	if err := opts.validate(); err != nil {
		return "", err
	}

	v, err, _ := s.attachGroup.Do(id, func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if name, ok := s.attachments.get(id); ok {
			return name, nil
		}

		name := alias
		if name == "" {
			name = PostgresAlias(displayName)
		}

		if err := s.exec(ctx, "DETACH DATABASE IF EXISTS "+QuoteIdent(name)); err != nil {
			return nil, err
		}

		stmt := fmt.Sprintf("ATTACH %s AS %s (TYPE POSTGRES%s)",
			quoteLiteral(opts.dsn()), QuoteIdent(name), schemaClause(opts.Schemas))
		s.logger.Debug("attaching postgres database", "alias", name, "host", opts.Host, "database", opts.Database)
		if err := s.exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to attach postgres database %q: %w", displayName, err)
		}

		s.attachments.put(id, name)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// schemaClause scopes the attachment when exactly one schema is configured.
func schemaClause(schemas []string) string {
	if len(schemas) != 1 {
		return ""
	}
	return ", SCHEMA " + quoteLiteral(schemas[0])
}
