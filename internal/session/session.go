// Package session owns everything one user works with at a time: a single
// table, its metadata, the store it is loaded into and one model session per
// purpose.
//
// A Session is not a work queue. Operations that call the model or the store
// are guarded by a busy flag; a second call while one is in flight fails with
// ErrBusy instead of waiting.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tablesql/internal/chart"
	"tablesql/internal/loader"
	"tablesql/internal/metadata"
	"tablesql/internal/model"
	"tablesql/internal/query"
	"tablesql/internal/schema"
	"tablesql/internal/storage"
	"tablesql/internal/table"
	"tablesql/internal/vision"
)

var (
	ErrBusy       = errors.New("session: another operation is in progress")
	ErrNoTable    = errors.New("session: no table selected")
	ErrNoMetadata = errors.New("session: no metadata generated")
	ErrNotLoaded  = errors.New("session: table not loaded")
	ErrClosed     = errors.New("session: closed")
	ErrNoResults  = errors.New("session: no query results")
)

// Options configures Open.
type Options struct {
	Store storage.Config
	// Client opens model sessions. Nil runs offline: every model call is
	// unavailable and heuristics are used where they exist.
	Client model.Client
	// Table is the store table name; defaults to loader.DefaultTable.
	Table  string
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// ID defaults to a random UUID.
	ID string
}

type handle struct {
	s      model.Session
	system string
}

// Session is one live working set. Its methods are safe to call from
// several goroutines, but guarded operations do not queue.
type Session struct {
	id     string
	client model.Client
	store  storage.Store
	tbl    string
	log    *slog.Logger
	now    func() time.Time

	busy atomic.Bool

	mu     sync.Mutex
	closed bool
	models map[model.Purpose]*handle
	raw    *table.RawTable
	meta   *schema.TableMetadata
	source metadata.Source
	loaded *loader.Result
	last   *query.Output
}

// Open opens the store described by opts. Model sessions are opened on first
// use.
func Open(ctx context.Context, opts Options) (*Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", id)

	st, err := storage.New(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("session: open store: %w", err)
	}
	client := opts.Client
	if client == nil {
		client = model.NewFake(nil)
	}
	tbl := opts.Table
	if tbl == "" {
		tbl = loader.DefaultTable
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log.Info("session opened", "store", opts.Store.Kind, "dialect", st.Dialect())
	return &Session{
		id:     id,
		client: client,
		store:  st,
		tbl:    tbl,
		log:    log,
		now:    now,
		models: map[model.Purpose]*handle{},
	}, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Close releases every model session and the store. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, p := range model.Purposes {
		if h, ok := s.models[p]; ok {
			if err := h.s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s session: %w", p, err))
			}
			delete(s.models, p)
		}
	}
	s.store.Close()
	s.log.Info("session closed")
	return errors.Join(errs...)
}

// acquire takes the busy flag. The returned func releases it.
func (s *Session) acquire() (func(), error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { s.busy.Store(false) }, nil
}

// Busy reports whether a guarded operation is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// modelSession returns the session for p, reopening it when the system prompt
// changed. A nil session with a non-nil error means the model cannot serve p.
func (s *Session) modelSession(ctx context.Context, p model.Purpose, system string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if h, ok := s.models[p]; ok {
		if h.system == system {
			return h.s, nil
		}
		if err := h.s.Close(); err != nil {
			s.log.Warn("closing stale model session", "purpose", string(p), "error", err)
		}
		delete(s.models, p)
	}
	ms, err := s.client.NewSession(ctx, model.SessionOptions{
		Purpose:      p,
		System:       system,
		ExpectImages: p == model.PurposeVision,
	})
	if err != nil {
		return nil, fmt.Errorf("session: open %s model session: %w", p, err)
	}
	ms = model.Instrument(ms, p, s.log)
	s.models[p] = &handle{s: ms, system: system}
	return ms, nil
}

// closeModel drops the session for p.
func (s *Session) closeModel(p model.Purpose) {
	if h, ok := s.models[p]; ok {
		_ = h.s.Close()
		delete(s.models, p)
	}
}

// SetTable makes t the current table. Metadata, the stored table and the last
// result of the previous table are discarded.
func (s *Session) SetTable(ctx context.Context, t table.RawTable) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	wasLoaded := s.loaded != nil
	s.raw = &t
	s.meta, s.source, s.loaded, s.last = nil, "", nil, nil
	s.closeModel(model.PurposeSQL)
	s.closeModel(model.PurposeChart)
	s.mu.Unlock()

	if wasLoaded {
		if err := s.store.DropTable(ctx, s.tbl); err != nil {
			return fmt.Errorf("session: drop previous table: %w", err)
		}
	}
	s.log.Info("table selected", "columns", len(t.Headers), "rows", t.Len())
	return nil
}

// Table returns the current table.
func (s *Session) Table() (table.RawTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw == nil {
		return table.RawTable{}, ErrNoTable
	}
	return *s.raw, nil
}

// Metadata returns the current metadata and where it came from.
func (s *Session) Metadata() (schema.TableMetadata, metadata.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return schema.TableMetadata{}, "", ErrNoMetadata
	}
	return *s.meta, s.source, nil
}

// LastResult returns the output of the last successful Ask.
func (s *Session) LastResult() (query.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return query.Output{}, ErrNoResults
	}
	return *s.last, nil
}

// GenerateMetadata builds metadata for the current table. A model failure is
// not an error: heuristic metadata is stored with metadata.SourceFallback.
func (s *Session) GenerateMetadata(ctx context.Context) (schema.TableMetadata, metadata.Source, error) {
	release, err := s.acquire()
	if err != nil {
		return schema.TableMetadata{}, "", err
	}
	defer release()
	return s.generate(ctx)
}

func (s *Session) generate(ctx context.Context) (schema.TableMetadata, metadata.Source, error) {
	t, err := s.Table()
	if err != nil {
		return schema.TableMetadata{}, "", err
	}
	ms, err := s.modelSession(ctx, model.PurposeMetadata, metadata.SystemPrompt)
	if errors.Is(err, ErrClosed) {
		return schema.TableMetadata{}, "", err
	}
	if err != nil {
		s.log.Warn("metadata model unavailable", "error", err)
	}
	g := &metadata.Generator{Session: ms, Logger: s.log, Now: s.now}
	meta, src := g.Generate(ctx, t)

	s.mu.Lock()
	s.meta, s.source = &meta, src
	s.mu.Unlock()
	return meta, src, nil
}

// SetMetadata replaces the metadata of the current table, for instance after
// the user edited it. The column names must match the table headers in
// order. The stored table and the last result are discarded, so Ask returns
// ErrNotLoaded until Load applies the new types.
func (s *Session) SetMetadata(meta schema.TableMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.raw == nil {
		return ErrNoTable
	}
	if len(meta.Columns) != len(s.raw.Headers) {
		return fmt.Errorf("session: metadata has %d columns, table has %d", len(meta.Columns), len(s.raw.Headers))
	}
	for i, c := range meta.Columns {
		if c.Name != s.raw.Headers[i] {
			return fmt.Errorf("session: metadata column %d is %q, table header is %q", i, c.Name, s.raw.Headers[i])
		}
		if !c.DataType.Valid() {
			return fmt.Errorf("session: column %q: invalid type %q", c.Name, c.DataType)
		}
	}
	meta.ColumnCount = len(meta.Columns)
	s.meta = &meta
	s.source = metadata.SourceUser
	s.loaded, s.last = nil, nil
	s.closeModel(model.PurposeSQL)
	s.closeModel(model.PurposeChart)
	return nil
}

// Load stores the current table with its metadata, generating metadata first
// when there is none. The previously stored table is dropped.
func (s *Session) Load(ctx context.Context) (loader.Result, error) {
	release, err := s.acquire()
	if err != nil {
		return loader.Result{}, err
	}
	defer release()

	t, err := s.Table()
	if err != nil {
		return loader.Result{}, err
	}
	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	if meta == nil {
		m, _, err := s.generate(ctx)
		if err != nil {
			return loader.Result{}, err
		}
		meta = &m
	}

	s.mu.Lock()
	s.loaded, s.last = nil, nil
	s.mu.Unlock()

	l := &loader.Loader{Store: s.store, Table: s.tbl, Logger: s.log}
	res, err := l.Load(ctx, t, meta)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	s.loaded = &res
	s.mu.Unlock()
	return res, nil
}

// Ask answers question against the loaded table. On success the output
// becomes the last result.
func (s *Session) Ask(ctx context.Context, question string) (query.Output, error) {
	release, err := s.acquire()
	if err != nil {
		return query.Output{}, err
	}
	defer release()

	s.mu.Lock()
	loaded, meta := s.loaded, s.meta
	var headers []string
	if s.raw != nil {
		headers = s.raw.Headers
	}
	s.mu.Unlock()
	if loaded == nil {
		return query.Output{Question: question}, ErrNotLoaded
	}

	system := query.SystemPrompt(s.store.Dialect(), s.tbl, loader.Columns(headers, meta), meta)
	ms, err := s.modelSession(ctx, model.PurposeSQL, system)
	if errors.Is(err, ErrClosed) {
		return query.Output{Question: question}, err
	}
	if err != nil {
		return query.Output{Question: question}, fmt.Errorf("%w: %w", query.ErrTranslate, err)
	}

	p := &query.Pipeline{Session: ms, Store: s.store, Meta: meta, Logger: s.log}
	out, err := p.Run(ctx, question)
	if err != nil {
		return out, err
	}
	s.mu.Lock()
	s.last = &out
	s.mu.Unlock()
	return out, nil
}

// RecommendChart picks a chart for the last result and builds its
// configuration. An empty question reuses the last question.
//
// Errors:
//   - ErrNoResults when nothing was asked yet.
//   - chart.ErrNoData when the last result has no rows.
func (s *Session) RecommendChart(ctx context.Context, question string) (chart.Recommendation, chart.Config, error) {
	release, err := s.acquire()
	if err != nil {
		return chart.Recommendation{}, chart.Config{}, err
	}
	defer release()

	s.mu.Lock()
	last, meta := s.last, s.meta
	s.mu.Unlock()
	if last == nil {
		return chart.Recommendation{}, chart.Config{}, ErrNoResults
	}
	if question == "" {
		question = last.Question
	}

	ms, err := s.modelSession(ctx, model.PurposeChart, chart.SystemPrompt(meta))
	if errors.Is(err, ErrClosed) {
		return chart.Recommendation{}, chart.Config{}, err
	}
	if err != nil {
		s.log.Warn("chart model unavailable", "error", err)
	}
	rc := &chart.Recommender{Session: ms, Logger: s.log}
	rec, err := rc.Recommend(ctx, meta, question, last.Results)
	if err != nil {
		return rec, chart.Config{}, err
	}
	cfg, err := chart.Build(rec, last.Results)
	return rec, cfg, err
}

// AnalyzeImage describes a chart image. It needs no table.
func (s *Session) AnalyzeImage(ctx context.Context, image []byte) (vision.Description, error) {
	release, err := s.acquire()
	if err != nil {
		return vision.Description{}, err
	}
	defer release()

	ms, err := s.modelSession(ctx, model.PurposeVision, vision.SystemPrompt)
	if errors.Is(err, ErrClosed) {
		return vision.Description{}, err
	}
	if err != nil {
		return vision.Description{}, fmt.Errorf("%w: %w", vision.ErrAnalyze, err)
	}
	return (&vision.Analyzer{Session: ms, Logger: s.log}).Analyze(ctx, image)
}

// Status is a snapshot of the session.
type Status struct {
	ID          string          `json:"id"`
	Dialect     string          `json:"dialect"`
	Table       string          `json:"table"`
	HasTable    bool            `json:"hasTable"`
	Columns     int             `json:"columns"`
	Rows        int             `json:"rows"`
	HasMetadata bool            `json:"hasMetadata"`
	Source      metadata.Source `json:"metadataSource,omitempty"`
	Loaded      bool            `json:"loaded"`
	HasResults  bool            `json:"hasResults"`
	Busy        bool            `json:"busy"`
	// ModelError is empty when the model backend is available.
	ModelError string `json:"modelError,omitempty"`
}

// ModelAvailable reports whether the model backend answered the probe.
func (st Status) ModelAvailable() bool { return st.ModelError == "" }

// Status probes the model backend and reports the session state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	if s.isClosed() {
		return Status{}, ErrClosed
	}
	st := Status{ID: s.id, Dialect: s.store.Dialect(), Table: s.tbl, Busy: s.Busy()}
	if err := s.client.Available(ctx); err != nil {
		st.ModelError = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw != nil {
		st.HasTable = true
		st.Columns, st.Rows = len(s.raw.Headers), s.raw.Len()
	}
	st.HasMetadata = s.meta != nil
	st.Source = s.source
	st.Loaded = s.loaded != nil
	st.HasResults = s.last != nil
	return st, nil
}
