package model

import (
	"context"
	"sync"
)

// Handler answers one prompt for a fake session.
type Handler func(ctx context.Context, req Request) (any, error)

// Fake is an in-process Client driven by per-purpose handlers. It is used by
// tests and by the CLI's --offline mode, where every purpose without a
// handler fails with ErrUnavailable and callers fall back to heuristics.
type Fake struct {
	mu       sync.Mutex
	Handlers map[Purpose]Handler
	// Unavailable makes Available and NewSession fail.
	Unavailable bool

	opened  map[Purpose]int
	closed  map[Purpose]int
	prompts map[Purpose][]Request
}

// NewFake returns a Fake with the given handlers.
func NewFake(handlers map[Purpose]Handler) *Fake {
	if handlers == nil {
		handlers = map[Purpose]Handler{}
	}
	return &Fake{Handlers: handlers}
}

func (f *Fake) Available(ctx context.Context) error {
	if f.Unavailable {
		return ErrUnavailable
	}
	return nil
}

func (f *Fake) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	if f.Unavailable {
		return nil, ErrUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened == nil {
		f.opened = map[Purpose]int{}
		f.closed = map[Purpose]int{}
		f.prompts = map[Purpose][]Request{}
	}
	f.opened[opts.Purpose]++
	return &fakeSession{f: f, purpose: opts.Purpose}, nil
}

// Opened returns how many sessions were opened for p.
func (f *Fake) Opened(p Purpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[p]
}

// Closed returns how many sessions were closed for p.
func (f *Fake) Closed(p Purpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed[p]
}

// Prompts returns the requests received for p.
func (f *Fake) Prompts(p Purpose) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.prompts[p]...)
}

type fakeSession struct {
	f       *Fake
	purpose Purpose
	closed  bool
}

func (s *fakeSession) Prompt(ctx context.Context, req Request) (any, error) {
	s.f.mu.Lock()
	if s.closed {
		s.f.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.f.prompts[s.purpose] = append(s.f.prompts[s.purpose], req)
	h := s.f.Handlers[s.purpose]
	s.f.mu.Unlock()

	if h == nil {
		return nil, ErrUnavailable
	}
	return h(ctx, req)
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.f.closed[s.purpose]++
	}
	return nil
}

// Reply returns a Handler that always answers v.
func Reply(v any) Handler {
	return func(context.Context, Request) (any, error) { return v, nil }
}

// Fail returns a Handler that always fails with err.
func Fail(err error) Handler {
	return func(context.Context, Request) (any, error) { return nil, err }
}
