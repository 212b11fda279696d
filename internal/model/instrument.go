package model

import (
	"context"
	"log/slog"
	"time"

	"tablesql/internal/metrics"
)

type instrumented struct {
	Session
	purpose Purpose
	logger  *slog.Logger
}

// Instrument wraps s so every Prompt is counted, timed and logged under
// purpose.
func Instrument(s Session, purpose Purpose, logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{Session: s, purpose: purpose, logger: logger}
}

func (i *instrumented) Prompt(ctx context.Context, req Request) (any, error) {
	start := time.Now()
	resp, err := i.Session.Prompt(ctx, req)
	d := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		i.logger.Warn("model call failed", "purpose", string(i.purpose), "duration", d, "error", err)
	} else {
		i.logger.Debug("model call", "purpose", string(i.purpose), "duration", d)
	}
	metrics.RecordModelCall(string(i.purpose), status, d)
	return resp, err
}
