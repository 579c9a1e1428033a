package sqldb

import "strings"

// IsReadOnly reports whether every statement in query starts with a
// read-only verb. This is a safety net on top of the database role's own
// permissions, not a SQL parser: multi-statement input is split on ";" and
// each piece checked on its own.
func IsReadOnly(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, ";") {
		for _, stmt := range strings.Split(trimmed, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if !IsReadOnly(stmt) {
				return false
			}
		}
		return true
	}

	upper := strings.ToUpper(trimmed)
	for _, prefix := range []string{"SELECT", "SHOW", "EXPLAIN", "WITH"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
