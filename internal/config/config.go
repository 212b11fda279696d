// Package config loads the tablesql configuration.
//
// Values are resolved in this order, later wins: built-in defaults, the
// optional JSON file, environment variables, then command-line flags (applied
// by the caller).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"tablesql/internal/metrics/datadog"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("60s", "2m").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"60s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the whole configuration.
type Config struct {
	Storage Storage `json:"storage"`
	Model   Model   `json:"model"`
	Metrics Metrics `json:"metrics"`
	// Table is the name of the live table.
	Table string `json:"table"`
	// FetchTimeout bounds HTML page downloads.
	FetchTimeout Duration `json:"fetch_timeout"`
}

type Storage struct {
	// Kind is a registered storage backend: "sqlite" | "postgres" | "mssql" | "mysql".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

type Model struct {
	URL     string   `json:"url"`
	Name    string   `json:"name"`
	Timeout Duration `json:"timeout"`
	// Offline disables the model; every feature uses its local fallback.
	Offline bool `json:"offline"`
}

type Metrics struct {
	// Backend is "none" or "datadog".
	Backend string   `json:"backend"`
	Tags    []string `json:"tags"`
	JobName string   `json:"job_name"`
}

// Defaults.
const (
	DefaultStorageKind  = "sqlite"
	DefaultStorageDSN   = ":memory:"
	DefaultModelURL     = "http://localhost:11434"
	DefaultModelName    = "gemma3"
	DefaultModelTimeout = 60 * time.Second
	DefaultFetchTimeout = 30 * time.Second
	DefaultTable        = "extracted_table"
	DefaultJobName      = "tablesql"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage:      Storage{Kind: DefaultStorageKind, DSN: DefaultStorageDSN},
		Model:        Model{URL: DefaultModelURL, Name: DefaultModelName, Timeout: Duration(DefaultModelTimeout)},
		Metrics:      Metrics{Backend: "none", JobName: DefaultJobName},
		Table:        DefaultTable,
		FetchTimeout: Duration(DefaultFetchTimeout),
	}
}

// Load returns the defaults overlaid with the JSON file at path (when path
// is non-empty) and then the process environment.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&c, os.Getenv); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvStorageKind  = "TABLESQL_STORAGE_KIND"
	EnvStorageDSN   = "TABLESQL_STORAGE_DSN"
	EnvModelURL     = "TABLESQL_MODEL_URL"
	EnvModelName    = "TABLESQL_MODEL_NAME"
	EnvModelTimeout = "TABLESQL_MODEL_TIMEOUT"
	EnvMetrics      = "METRICS_BACKEND"
	EnvMetricsTags  = "METRICS_TAGS"
)

// ApplyEnv overrides c with every non-empty variable returned by getenv.
func ApplyEnv(c *Config, getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Storage.Kind, EnvStorageKind)
	set(&c.Storage.DSN, EnvStorageDSN)
	set(&c.Model.URL, EnvModelURL)
	set(&c.Model.Name, EnvModelName)
	set(&c.Metrics.Backend, EnvMetrics)

	if v := strings.TrimSpace(getenv(EnvModelTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvModelTimeout, err)
		}
		c.Model.Timeout = Duration(d)
	}
	if v := getenv(EnvMetricsTags); v != "" {
		c.Metrics.Tags = append(c.Metrics.Tags, datadog.ParseTagsCSV(v)...)
	}
	return nil
}
