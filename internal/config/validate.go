package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"tablesql/internal/storage"
)

// Severity classifies a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the JSON path of the offending
// field.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// MetricsBackends lists the accepted metrics.backend values.
var MetricsBackends = []string{"", "none", "datadog"}

// Validate checks c and returns every issue found. Storage kinds are checked
// against the backends registered with the storage package.
//
// Errors make the configuration unusable; warnings describe settings that
// will be ignored or defaulted.
func Validate(c Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	kinds := storage.Kinds()
	switch {
	case c.Storage.Kind == "":
		add(SeverityError, "storage.kind", "is required")
	case !slices.Contains(kinds, c.Storage.Kind):
		add(SeverityError, "storage.kind", "unknown backend %q (registered: %s)", c.Storage.Kind, strings.Join(kinds, ", "))
	}
	if c.Storage.Kind != "" && c.Storage.Kind != DefaultStorageKind && strings.TrimSpace(c.Storage.DSN) == "" {
		add(SeverityError, "storage.dsn", "is required for %s", c.Storage.Kind)
	}

	if !c.Model.Offline {
		u, err := url.Parse(c.Model.URL)
		switch {
		case c.Model.URL == "":
			add(SeverityError, "model.url", "is required unless model.offline is set")
		case err != nil:
			add(SeverityError, "model.url", "invalid url: %v", err)
		case u.Scheme != "http" && u.Scheme != "https":
			add(SeverityError, "model.url", "scheme must be http or https, got %q", u.Scheme)
		case u.Host == "":
			add(SeverityError, "model.url", "missing host")
		}
		if strings.TrimSpace(c.Model.Name) == "" {
			add(SeverityError, "model.name", "is required unless model.offline is set")
		}
		if c.Model.Timeout <= 0 {
			add(SeverityError, "model.timeout", "must be positive")
		}
	}

	if !slices.Contains(MetricsBackends, c.Metrics.Backend) {
		add(SeverityWarning, "metrics.backend", "unknown backend %q; metrics disabled", c.Metrics.Backend)
	}
	for i, tag := range c.Metrics.Tags {
		if !strings.Contains(tag, ":") {
			add(SeverityWarning, fmt.Sprintf("metrics.tags[%d]", i), "tag %q is not key:value", tag)
		}
	}

	if strings.TrimSpace(c.Table) == "" {
		add(SeverityWarning, "table", "empty; %q is used", DefaultTable)
	}
	if c.FetchTimeout < 0 {
		add(SeverityError, "fetch_timeout", "must not be negative")
	}
	return issues
}

// HasErrors reports whether issues contains an error-severity issue.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
