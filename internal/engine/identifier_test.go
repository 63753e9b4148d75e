package engine

import (
	"strings"
	"testing"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "My Database", "my_database"},
		{"punctuation run", "Prod-DB (EU / West)!", "prod_db_eu_west"},
		{"digit leading", "123 Starts With Number", "db_123_starts_with_number"},
		{"surrounding spaces", "   Spaces   ", "spaces"},
		{"empty", "", "db_"},
		{"only symbols", "!!!", "db_"},
		{"already clean", "analytics", "analytics"},
		{"mixed case digits", "S3-Bucket-01", "s3_bucket_01"},
		{"consecutive symbols collapse", "a---b___c", "a_b_c"},
		{"unicode stripped", "café données", "caf_donn_es"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeIdentifier(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdentifierTruncation(t *testing.T) {
	long := strings.Repeat("ab ", 40)
	got := SanitizeIdentifier(long)
	if len(got) > 50 {
		t.Errorf("length = %d, want <= 50", len(got))
	}
	if strings.HasSuffix(got, "_") {
		t.Errorf("truncated identifier %q ends with underscore", got)
	}
}

func TestSanitizeIdentifierDeterministic(t *testing.T) {
	in := "Weird  --  Name 42"
	first := SanitizeIdentifier(in)
	for i := 0; i < 5; i++ {
		if got := SanitizeIdentifier(in); got != first {
			t.Fatalf("non-deterministic result: %q vs %q", got, first)
		}
	}
}

func TestQuoteIdentDoublesEmbeddedQuotes(t *testing.T) {
	if got := QuoteIdent(`plain`); got != `"plain"` {
		t.Errorf("QuoteIdent(plain) = %s", got)
	}
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("QuoteIdent with quote = %s", got)
	}
	// Backslashes are literal inside SQL identifiers and must pass through.
	if got := QuoteIdent(`back\slash`); got != `"back\slash"` {
		t.Errorf("QuoteIdent with backslash = %s", got)
	}
}
