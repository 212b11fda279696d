package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind tags the outcome of a model call.
type Kind int

const (
	// KindOK means the reply decoded to a JSON object.
	KindOK Kind = iota
	// KindParseError means the backend replied but the reply is not a JSON object.
	KindParseError
	// KindModelError means the call itself failed or returned an unusable type.
	KindModelError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindParseError:
		return "parse_error"
	case KindModelError:
		return "model_error"
	}
	return "unknown"
}

// Result is the tagged outcome of one model call.
type Result struct {
	Kind  Kind
	Value map[string]any
	// Text is the raw reply when the backend answered with a string.
	Text string
	Err  error
}

// OK reports whether the result holds a decoded object.
func (r Result) OK() bool { return r.Kind == KindOK }

// Error returns nil for OK results and a descriptive error otherwise.
func (r Result) Error() error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindParseError:
		return fmt.Errorf("model: malformed reply: %w", r.Err)
	default:
		return fmt.Errorf("model: call failed: %w", r.Err)
	}
}

// FromResponse classifies a raw reply.
//
// Accepted shapes:
//   - map[string]any: used as is
//   - string, []byte, json.RawMessage: parsed as a JSON object
//
// Anything else, or a non-nil err, is a KindModelError.
func FromResponse(resp any, err error) Result {
	if err != nil {
		return Result{Kind: KindModelError, Err: err}
	}
	switch v := resp.(type) {
	case map[string]any:
		if v == nil {
			return Result{Kind: KindModelError, Err: errors.New("nil object")}
		}
		return Result{Kind: KindOK, Value: v}
	case string:
		return parseText(v)
	case []byte:
		return parseText(string(v))
	case json.RawMessage:
		return parseText(string(v))
	case nil:
		return Result{Kind: KindModelError, Err: errors.New("empty reply")}
	default:
		return Result{Kind: KindModelError, Err: fmt.Errorf("unsupported reply type %T", resp)}
	}
}

func parseText(s string) Result {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return Result{Kind: KindParseError, Text: s, Err: err}
	}
	if obj == nil {
		return Result{Kind: KindParseError, Text: s, Err: errors.New("reply is not a JSON object")}
	}
	return Result{Kind: KindOK, Value: obj, Text: s}
}

// Call prompts s and classifies the reply.
func Call(ctx context.Context, s Session, req Request) Result {
	if s == nil {
		return Result{Kind: KindModelError, Err: ErrUnavailable}
	}
	return FromResponse(s.Prompt(ctx, req))
}

// ExtractJSON returns the span from the first '{' to the last '}' of s, for
// backends that wrap JSON in prose or code fences. ok is false when no such
// span exists.
func ExtractJSON(s string) (string, bool) {
	i := strings.Index(s, "{")
	j := strings.LastIndex(s, "}")
	if i < 0 || j < i {
		return "", false
	}
	return s[i : j+1], true
}

// Lenient re-parses a KindParseError result by extracting the embedded JSON
// object from its text. Other results are returned unchanged.
func Lenient(r Result) Result {
	if r.Kind != KindParseError {
		return r
	}
	span, ok := ExtractJSON(r.Text)
	if !ok {
		return r
	}
	if pr := parseText(span); pr.OK() {
		pr.Text = r.Text
		return pr
	}
	return r
}

// Decode converts an OK result into dst via a JSON round trip and checks
// that every required top-level field is present and non-null.
func Decode(r Result, dst any, required ...string) error {
	if !r.OK() {
		return r.Error()
	}
	for _, f := range required {
		if v, ok := r.Value[f]; !ok || v == nil {
			return fmt.Errorf("model: reply missing required field %q", f)
		}
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Errorf("model: re-encode reply: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("model: reply does not match expected shape: %w", err)
	}
	return nil
}
