// Package ollama implements model.Client against a local Ollama server using
// the server's own Go API package.
//
// Every prompt is one non-streaming chat request carrying the session's
// system prompt, the user prompt, optional images and, when the request has a
// schema, the schema as the "format" constraint. The assistant message content
// is returned as a string for model.FromResponse to parse.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"tablesql/internal/model"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "gemma3"
	DefaultTimeout = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Model   string
	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to one Ollama server and one model.
type Client struct {
	baseURL string
	model   string
	timeout time.Duration
	api     *api.Client
	err     error
	logger  *slog.Logger
}

var _ model.Client = (*Client)(nil)

// New returns a Client with defaults applied. A malformed BaseURL is reported
// by the first call.
func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		model:   strings.TrimSpace(opts.Model),
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		c.err = fmt.Errorf("ollama: base url %q: %w", c.baseURL, err)
		return c
	}
	c.api = api.NewClient(base, hc)
	return c
}

// Available checks that the server answers and that the configured model has
// been pulled. Tags such as ":latest" are matched loosely.
func (c *Client) Available(ctx context.Context) error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, c.err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.api.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}
	for _, m := range list.Models {
		if sameModel(m.Name, c.model) || sameModel(m.Model, c.model) {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q not found on %s", model.ErrUnavailable, c.model, c.baseURL)
}

func sameModel(have, want string) bool {
	if have == "" {
		return false
	}
	if have == want {
		return true
	}
	base, _, _ := strings.Cut(have, ":")
	return !strings.Contains(want, ":") && base == want
}

// NewSession returns a session bound to opts.System. Sessions hold no server
// state; Close only marks them unusable.
func (c *Client) NewSession(ctx context.Context, opts model.SessionOptions) (model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{c: c, opts: opts}, nil
}

type session struct {
	c    *Client
	opts model.SessionOptions

	mu     sync.Mutex
	closed bool
}

func (s *session) Prompt(ctx context.Context, r model.Request) (any, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, model.ErrSessionClosed
	}
	if s.c.err != nil {
		return nil, s.c.err
	}

	req, err := s.chatRequest(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.c.timeout)
	defer cancel()

	var content strings.Builder
	err = s.c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}
	s.c.logger.Debug("ollama reply", "purpose", string(s.opts.Purpose), "bytes", content.Len())
	return content.String(), nil
}

func (s *session) chatRequest(r model.Request) (*api.ChatRequest, error) {
	stream := false
	req := &api.ChatRequest{Model: s.c.model, Stream: &stream}
	if r.Schema != nil {
		format, err := json.Marshal(r.Schema)
		if err != nil {
			return nil, fmt.Errorf("ollama: encode schema: %w", err)
		}
		req.Format = format
	}
	if strings.TrimSpace(s.opts.System) != "" {
		req.Messages = append(req.Messages, api.Message{Role: "system", Content: s.opts.System})
	}
	user := api.Message{Role: "user", Content: r.Prompt}
	for _, img := range r.Images {
		user.Images = append(user.Images, api.ImageData(img))
	}
	req.Messages = append(req.Messages, user)
	if r.Temperature != nil {
		req.Options = map[string]any{"temperature": *r.Temperature}
	}
	return req, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
