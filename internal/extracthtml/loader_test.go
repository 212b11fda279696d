package extracthtml

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoader_Stdin verifies stdin input is read and returned as string.
//
// This is the most common mode when piping HTML from another program.
func TestLoader_Stdin(t *testing.T) {
	t.Parallel()

	l := NewLoader(http.DefaultClient, 1*time.Second)
	html, err := l.Load(context.Background(), Input{
		Stdin: bytes.NewBufferString("<p>x</p>"),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<p>x</p>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

// TestLoader_URL_Non2xx verifies we include status code and a body snippet.
func TestLoader_URL_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(&http.Client{Timeout: 2 * time.Second}, 2*time.Second)
	_, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "http status 403") || !strings.Contains(msg, "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoader_Path verifies a local file is read when no URL is given.
func TestLoader_Path(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(p, []byte("<table></table>"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil, 0)
	html, err := l.Load(context.Background(), Input{Path: p, Stdin: bytes.NewBufferString("ignored")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<table></table>" {
		t.Fatalf("unexpected html: %q", html)
	}

	if _, err := l.Load(context.Background(), Input{Path: p + ".missing"}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// TestLoader_URL verifies the page body and the User-Agent header.
func TestLoader_URL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "tablesql/1.0" {
			http.Error(w, "bad agent "+ua, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("<table><tr><th>A</th></tr></table>"))
	}))
	t.Cleanup(srv.Close)

	html, err := NewLoader(srv.Client(), time.Second).Load(context.Background(), Input{URL: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(html, "<th>A</th>") {
		t.Fatalf("unexpected html: %q", html)
	}
}
