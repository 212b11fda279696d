// Package model is the boundary to the external language-model service.
//
// Every call site sends a prompt plus a JSON schema describing the required
// reply. Replies are loosely typed: a backend may return an already-decoded
// object or a JSON string. Result normalizes both and tags the outcome so
// callers must check it before trusting the shape.
package model

import (
	"context"
	"errors"
)

//go:generate mockgen -source=model.go -destination=mocks/mock_model.go -package=mocks

// Purpose identifies which feature owns a model session.
type Purpose string

const (
	PurposeMetadata Purpose = "metadata"
	PurposeSQL      Purpose = "sql"
	PurposeChart    Purpose = "chart"
	PurposeVision   Purpose = "vision"
)

// Purposes lists every purpose a session may open.
var Purposes = []Purpose{PurposeMetadata, PurposeSQL, PurposeChart, PurposeVision}

var (
	// ErrUnavailable reports that the model backend cannot serve requests.
	ErrUnavailable = errors.New("model: unavailable")
	// ErrSessionClosed is returned by Prompt after Close.
	ErrSessionClosed = errors.New("model: session closed")
)

// SessionOptions configures a new model session.
type SessionOptions struct {
	Purpose Purpose
	// System is the system prompt installed for the whole session.
	System string
	// ExpectImages marks a multimodal session.
	ExpectImages bool
}

// Request is one prompt.
type Request struct {
	Prompt string
	// Schema is the JSON schema the reply must conform to. Nil means free text.
	Schema map[string]any
	// Images are raw image bytes attached to the prompt.
	Images [][]byte
	// Temperature is passed to the backend when non-nil.
	Temperature *float64
}

// Session is one conversation handle owned by a single feature.
type Session interface {
	// Prompt sends req and returns the raw reply: a decoded JSON object
	// (map[string]any), a string, or an error.
	Prompt(ctx context.Context, req Request) (any, error)
	// Close releases backend resources held by the session.
	Close() error
}

// Client opens model sessions.
type Client interface {
	// Available reports whether the backend can currently serve requests.
	Available(ctx context.Context) error
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Zero returns a pointer to 0, the temperature used for deterministic prompts.
func Zero() *float64 {
	z := 0.0
	return &z
}
