package engine

import "fmt"

// ConfigurationError indicates invalid or incomplete source configuration
// detected before any network or engine work is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// ConnectivityError indicates a reachable-but-failing or unreachable
// external source. Reason carries the user-facing diagnosis (for example
// "bucket does not exist" vs "access denied").
type ConnectivityError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConnectivityError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Reason)
	}
	return e.Reason
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure reported by the query engine while running
// SQL. The engine's message is preserved verbatim so callers can surface it.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IdentifierCollisionError is returned when two distinct display names
// sanitize to the same engine identifier.
type IdentifierCollisionError struct {
	Name       string
	Identifier string
	ExistingID string
}

func (e *IdentifierCollisionError) Error() string {
	return fmt.Sprintf("name %q maps to identifier %q which is already in use", e.Name, e.Identifier)
}
