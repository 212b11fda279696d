// Package query turns a natural-language question into a validated SELECT,
// runs it against the live store and asks the model to explain the result.
//
// Generated SQL is untrusted: it must pass Validate before it reaches the
// store. Analysis is best-effort; its failure never fails the query.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tablesql/internal/metrics"
	"tablesql/internal/model"
	"tablesql/internal/schema"
	"tablesql/internal/storage"
)

var (
	// ErrTranslate wraps a failed or malformed translation reply.
	ErrTranslate = errors.New("query: translation failed")
	// ErrExecute wraps a store error while running validated SQL.
	ErrExecute = errors.New("query: execution failed")
)

// Analysis is the model's reading of a result.
type Analysis struct {
	DirectAnswer string   `json:"directAnswer"`
	KeyInsights  []string `json:"keyInsights"`
}

// FallbackAnalysis is the locally synthesized summary used when the model
// cannot analyze r.
func FallbackAnalysis(r storage.Result) Analysis {
	n := r.Len()
	return Analysis{
		DirectAnswer: fmt.Sprintf("Found %d result(s) matching your query.", n),
		KeyInsights: []string{
			fmt.Sprintf("Query returned %d row(s)", n),
			"Columns included: " + strings.Join(r.Columns, ", "),
		},
	}
}

// Output is the whole-pipeline result.
type Output struct {
	Question    string         `json:"question"`
	SQL         string         `json:"sql"`
	Explanation string         `json:"explanation"`
	Results     storage.Result `json:"results"`
	// Analysis is nil when the model could not analyze the result.
	Analysis *Analysis `json:"analysis"`
	// Fallback is set exactly when Analysis is nil and the query succeeded.
	Fallback *Analysis `json:"fallback,omitempty"`
	State    State     `json:"-"`
}

// Pipeline answers questions about one loaded table. It is not meant for
// concurrent queries: a second Run while one is in flight fails with a
// *TransitionError.
type Pipeline struct {
	// Session is the sql-purpose model session, opened with SystemPrompt.
	Session model.Session
	Store   storage.Store
	Meta    *schema.TableMetadata
	Logger  *slog.Logger

	machine Machine
}

// State returns the state of the current or last query.
func (p *Pipeline) State() State { return p.machine.State() }

// Busy reports whether a query is in flight.
func (p *Pipeline) Busy() bool { return p.machine.Busy() }

type translation struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Run executes the full pipeline for question.
//
// Errors:
//   - *TransitionError when a query is already in flight.
//   - ErrTranslate when the model call fails or the reply has no sql.
//   - *ValidationError (ErrUnsafeQuery) when the SQL is not a plain SELECT.
//   - ErrExecute wrapping the store error.
//
// On error the returned Output holds whatever was produced before the
// failure (question, and sql once translated).
func (p *Pipeline) Run(ctx context.Context, question string) (Output, error) {
	out := Output{Question: question}
	if err := p.machine.Transition(Translating); err != nil {
		return out, err
	}
	out, err := p.run(ctx, out)
	if err != nil {
		_ = p.machine.Transition(Failed)
		status := "failed"
		if errors.Is(err, ErrUnsafeQuery) {
			status = "unsafe"
		}
		metrics.RecordQuery(status)
		p.logger().Warn("query failed", "question", question, "sql", out.SQL, "error", err)
	} else {
		metrics.RecordQuery("ok")
	}
	out.State = p.machine.State()
	return out, err
}

func (p *Pipeline) run(ctx context.Context, out Output) (Output, error) {
	log := p.logger()

	var tr translation
	err := step("translate", func() error {
		r := model.Call(ctx, p.Session, model.Request{
			Prompt: TranslatePrompt(out.Question),
			Schema: SQLSchema,
		})
		if err := model.Decode(r, &tr, "sql"); err != nil {
			return fmt.Errorf("%w: %w", ErrTranslate, err)
		}
		if strings.TrimSpace(tr.SQL) == "" {
			return fmt.Errorf("%w: empty sql", ErrTranslate)
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	out.SQL, out.Explanation = strings.TrimSpace(tr.SQL), tr.Explanation
	log.Debug("generated sql", "sql", out.SQL)

	if err := p.machine.Transition(Validating); err != nil {
		return out, err
	}
	if err := step("validate", func() error { return Validate(out.SQL) }); err != nil {
		return out, err
	}

	if err := p.machine.Transition(Executing); err != nil {
		return out, err
	}
	err = step("execute", func() error {
		if p.Store == nil {
			return fmt.Errorf("%w: no store", ErrExecute)
		}
		res, err := p.Store.Query(ctx, out.SQL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExecute, err)
		}
		out.Results = res
		return nil
	})
	if err != nil {
		return out, err
	}

	if err := p.machine.Transition(Analyzing); err != nil {
		return out, err
	}
	_ = step("analyze", func() error {
		a, err := p.analyze(ctx, out)
		if err != nil {
			log.Warn("analysis unavailable, using summary", "error", err)
			fb := FallbackAnalysis(out.Results)
			out.Fallback = &fb
			return err
		}
		out.Analysis = &a
		return nil
	})

	return out, p.machine.Transition(Done)
}

func (p *Pipeline) analyze(ctx context.Context, out Output) (Analysis, error) {
	prompt := AnalysisPrompt(out.Question, out.SQL, out.Results, p.Meta, Statistics(out.Results))
	r := model.Call(ctx, p.Session, model.Request{Prompt: prompt, Schema: AnalysisSchema})
	var a Analysis
	if err := model.Decode(r, &a, "directAnswer", "keyInsights"); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

func step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep(name, status, time.Since(start))
	return err
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
