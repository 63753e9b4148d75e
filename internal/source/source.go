// Package source defines the per-type behavior of data source connections:
// validating credentials, attaching to the query engine, collecting schema
// metadata, and handling sensitive config fields.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/qbox-labs/qbox/internal/engine"
)

// Connection is the capability surface every source type implements.
// Methods that touch the network or the engine take a context; the engine
// session is passed in explicitly rather than held globally.
type Connection interface {
	// ID returns the stable connection identifier.
	ID() string
	// Name returns the user-facing display name.
	Name() string
	// Type returns the source type.
	Type() string

	// Validate checks that the remote side is reachable with the
	// configured credentials. Failures are *engine.ConnectivityError.
	Validate(ctx context.Context) error
	// Attach makes the source queryable through the engine and returns
	// the engine object name. Attaching an already-attached source is a
	// cheap cache hit.
	Attach(ctx context.Context, session *engine.Session) (string, error)
	// Detach removes the source from the engine.
	Detach(ctx context.Context, session *engine.Session) error
	// Schema collects schema metadata through the engine, attaching
	// first if needed.
	Schema(ctx context.Context, session *engine.Session) (*SchemaInfo, error)
	// TableDetails returns column metadata for one table.
	TableDetails(ctx context.Context, session *engine.Session, schema, table string) (*TableInfo, error)
	// Cleanup releases engine and remote state when the connection is
	// deleted. It must tolerate a source that was never attached.
	Cleanup(ctx context.Context, session *engine.Session) error

	// MaskConfig returns a copy of the config safe to show to users,
	// with sensitive values blanked.
	MaskConfig() map[string]any
}

// SchemaInfo is the collected structure of a source.
type SchemaInfo struct {
	EngineName string      `json:"engine_name"`
	Tables     []TableInfo `json:"tables"`
}

// TableInfo describes one table or view.
type TableInfo struct {
	Schema   string              `json:"schema,omitempty"`
	Name     string              `json:"name"`
	RowCount int64               `json:"row_count"`
	Columns  []engine.ColumnInfo `json:"columns"`
}

// QualifiedName returns the name to use in federated SQL.
func (t *TableInfo) QualifiedName(engineName string) string {
	if t.Schema != "" {
		return fmt.Sprintf("%s.%s.%s", engineName, t.Schema, t.Name)
	}
	return fmt.Sprintf("%s.%s", engineName, t.Name)
}

// Record is the persisted shape a factory builds a Connection from.
type Record struct {
	ID     string
	Name   string
	Config map[string]any
}

// Factory builds a Connection of one source type.
type Factory func(rec Record, logger *slog.Logger) (Connection, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)

	// maskFns and preserveFns handle sensitive config fields per type
	// without needing a live Connection.
	maskFns     = make(map[string]func(map[string]any) map[string]any)
	preserveFns = make(map[string]func(incoming, stored map[string]any) map[string]any)
)

// Register adds a source type to the registry. Called from init() in each
// implementation file.
func Register(sourceType string, factory Factory,
	mask func(map[string]any) map[string]any,
	preserve func(incoming, stored map[string]any) map[string]any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[sourceType] = factory
	maskFns[sourceType] = mask
	preserveFns[sourceType] = preserve
}

// New builds a Connection for the given type.
func New(sourceType string, rec Record, logger *slog.Logger) (Connection, error) {
	registryMu.RLock()
	factory, ok := registry[sourceType]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownSourceTypeError{Type: sourceType, Available: SupportedTypes()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(rec, logger)
}

// IsSupported reports whether a source type is registered.
func IsSupported(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}

// SupportedTypes returns all registered source types (sorted).
func SupportedTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MaskConfig blanks sensitive fields of a raw config for display. Unknown
// types pass through unchanged.
func MaskConfig(sourceType string, cfg map[string]any) map[string]any {
	registryMu.RLock()
	fn := maskFns[sourceType]
	registryMu.RUnlock()
	if fn == nil {
		return cfg
	}
	return fn(cfg)
}

// PreserveSensitive merges an incoming config update with the stored one:
// empty incoming sensitive fields keep their stored values, so a client
// can echo back a masked config without wiping credentials.
func PreserveSensitive(sourceType string, incoming, stored map[string]any) map[string]any {
	registryMu.RLock()
	fn := preserveFns[sourceType]
	registryMu.RUnlock()
	if fn == nil {
		return incoming
	}
	return fn(incoming, stored)
}

// UnknownSourceTypeError is returned for an unregistered source type.
type UnknownSourceTypeError struct {
	Type      string
	Available []string
}

func (e *UnknownSourceTypeError) Error() string {
	return fmt.Sprintf("unknown source type %q (available: %v)", e.Type, e.Available)
}

func cloneConfig(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func stringField(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}
