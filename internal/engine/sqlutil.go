package engine

import "strings"

// escapeLiteral doubles single quotes for safe embedding inside a
// single-quoted SQL string literal. Every interpolated value in DDL built
// by this package must pass through here.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// quoteLiteral returns s as a quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + escapeLiteral(s) + "'"
}

// QuoteIdent returns s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
