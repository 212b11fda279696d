// Package metrics is the process-wide metrics facade.
//
// Core packages only call the helpers in this package. A concrete backend
// (for example internal/metrics/datadog) is installed once at startup with
// SetBackend; until then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions (purpose, status, step, ...).
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by this module.
const (
	ModelCallsTotal     = "tablesql_model_calls_total"
	ModelCallSeconds    = "tablesql_model_call_duration_seconds"
	RowsTotal           = "tablesql_rows_total"
	QueriesTotal        = "tablesql_queries_total"
	StepTotal           = "tablesql_step_total"
	StepDurationSeconds = "tablesql_step_duration_seconds"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. A nil b restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordStep counts one pipeline step and observes its duration.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordModelCall counts one model call for purpose and observes its latency.
func RecordModelCall(purpose, status string, d time.Duration) {
	l := Labels{"purpose": purpose, "status": status}
	IncCounter(ModelCallsTotal, 1, l)
	ObserveHistogram(ModelCallSeconds, d.Seconds(), l)
}

// RecordRows counts loaded rows by kind ("inserted" or "failed").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordQuery counts one natural-language query by terminal status.
func RecordQuery(status string) {
	IncCounter(QueriesTotal, 1, Labels{"status": status})
}
