package engine

import "strings"

// maxIdentifierLen caps sanitized identifiers so generated names stay well
// under engine limits even after prefixes like "pg_" are added.
const maxIdentifierLen = 50

// SanitizeIdentifier converts an arbitrary display name into a safe engine
// identifier: lowercase, runs of non-alphanumerics collapsed to single
// underscores, no leading/trailing underscore, never empty or digit-leading.
// The result is deterministic for a given input.
func SanitizeIdentifier(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}

	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "db_" + s
	}
	if len(s) > maxIdentifierLen {
		s = strings.TrimRight(s[:maxIdentifierLen], "_")
	}
	return s
}
