package main

import (
	"context"
	"log/slog"
	"time"

	"tablesql/internal/config"
	"tablesql/internal/metrics"
	"tablesql/internal/metrics/datadog"
)

// newDatadog is replaced by tests.
var newDatadog = func(ctx context.Context, opts datadog.Options) (closer, error) {
	return datadog.NewBackend(ctx, opts)
}

type closer interface {
	metrics.Backend
	Close() error
}

// initMetrics installs the configured backend. The returned cleanup is nil
// when metrics stay disabled.
func initMetrics(ctx context.Context, cfg config.Metrics, log *slog.Logger) (func(), error) {
	switch cfg.Backend {
	case "datadog":
		// The backend buffers metrics, submits them every minute and once
		// more on Close.
		jobName := cfg.JobName
		if jobName == "" {
			jobName = config.DefaultJobName
		}
		b, err := newDatadog(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       cfg.Tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		log.Debug("metrics: enabled", "backend", cfg.Backend, "job_name", jobName, "tags", cfg.Tags)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush error", "error", err)
			}
			metrics.SetBackend(nil)
		}, nil

	case "", "none":
		// metrics disabled; nop backend remains
		log.Debug("metrics: disabled", "backend", cfg.Backend)
		return nil, nil

	default:
		log.Warn("metrics: unknown backend; metrics disabled", "backend", cfg.Backend)
		return nil, nil
	}
}
