package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeQuery is the class of every validation failure. Unsafe SQL is
// never executed.
var ErrUnsafeQuery = errors.New("query validation failed")

// ProhibitedKeywords may not appear anywhere in a generated query, compared
// on the uppercased text. Matching is by substring, so a column named
// "created_at" is rejected too.
var ProhibitedKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "PRAGMA"}

// ValidationError reports why sql was rejected.
type ValidationError struct {
	SQL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsafeQuery, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrUnsafeQuery }

// Validate returns nil when sql is a plain SELECT and a *ValidationError
// otherwise.
func Validate(sql string) error {
	s := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(s, "SELECT") {
		return &ValidationError{SQL: sql, Reason: "not a SELECT statement"}
	}
	for _, kw := range ProhibitedKeywords {
		if strings.Contains(s, kw) {
			return &ValidationError{SQL: sql, Reason: "contains prohibited keyword " + kw}
		}
	}
	return nil
}

// IsValidQuery reports whether sql passes Validate.
func IsValidQuery(sql string) bool { return Validate(sql) == nil }
