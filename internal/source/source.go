// Package source turns a user-supplied location into a RawTable.
//
// Locations are HTML pages (a URL, a .html/.htm file or "-" for stdin), CSV
// files and XLSX workbooks. The format is chosen from the URL scheme or the
// file extension.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tablesql/internal/extracthtml"
	"tablesql/internal/table"
)

// Format is an input format.
type Format string

const (
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Stdin is the location that reads an HTML page from the Reader's Stdin.
const Stdin = "-"

// ErrUnsupported is returned for locations of unknown format.
var ErrUnsupported = errors.New("source: unsupported input")

// Spec names one table to read.
type Spec struct {
	// Location is a file path or an http(s) URL.
	Location string
	// Table selects the table of an HTML page (0-based).
	Table int
	// Sheet selects the XLSX worksheet; empty means the first sheet.
	Sheet string
}

// IsURL reports whether loc is an http(s) URL.
func IsURL(loc string) bool {
	l := strings.ToLower(strings.TrimSpace(loc))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Detect returns the format of loc.
func Detect(loc string) (Format, error) {
	if IsURL(loc) || loc == Stdin {
		return FormatHTML, nil
	}
	switch strings.ToLower(filepath.Ext(loc)) {
	case ".html", ".htm":
		return FormatHTML, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q (want a URL or a .html, .htm, .csv or .xlsx file)", ErrUnsupported, loc)
}

// Reader reads tables. The zero value is not usable; build one with New.
type Reader struct {
	// Stdin is read for the location "-".
	Stdin io.Reader

	pages *extracthtml.Loader
}

// New returns a Reader that fetches pages with pages.
func New(pages *extracthtml.Loader) *Reader {
	return &Reader{pages: pages}
}

// Read returns the table named by spec.
func (r *Reader) Read(ctx context.Context, spec Spec) (table.RawTable, error) {
	f, err := Detect(spec.Location)
	if err != nil {
		return table.RawTable{}, err
	}
	switch f {
	case FormatHTML:
		tables, err := r.Tables(ctx, spec.Location)
		if err != nil {
			return table.RawTable{}, err
		}
		return extracthtml.SelectTable(tables, spec.Table)
	case FormatCSV:
		fh, err := os.Open(spec.Location)
		if err != nil {
			return table.RawTable{}, fmt.Errorf("source: %w", err)
		}
		defer fh.Close()
		return table.ReadCSV(fh)
	default:
		fh, err := os.Open(spec.Location)
		if err != nil {
			return table.RawTable{}, fmt.Errorf("source: %w", err)
		}
		defer fh.Close()
		return table.ReadXLSX(fh, spec.Sheet)
	}
}

// Tables returns every table of the HTML page at loc.
func (r *Reader) Tables(ctx context.Context, loc string) ([]table.RawTable, error) {
	in := extracthtml.Input{Path: loc}
	switch {
	case IsURL(loc):
		in = extracthtml.Input{URL: loc}
	case loc == Stdin:
		in = extracthtml.Input{Stdin: r.Stdin}
	}
	html, err := r.pages.Load(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return extracthtml.ExtractTables(html)
}

// List describes the tables at loc: every table of a page, or of every HTML
// file when loc is a directory. CSV and XLSX inputs hold one table.
func (r *Reader) List(ctx context.Context, loc string) ([]extracthtml.Found, error) {
	if !IsURL(loc) && loc != Stdin {
		if fi, err := os.Stat(loc); err == nil && fi.IsDir() {
			return extracthtml.ScanDir(loc)
		}
	}
	f, err := Detect(loc)
	if err != nil {
		return nil, err
	}
	if f != FormatHTML {
		t, err := r.Read(ctx, Spec{Location: loc})
		if err != nil {
			return nil, err
		}
		return []extracthtml.Found{{Table: t}}, nil
	}
	tables, err := r.Tables(ctx, loc)
	if err != nil {
		return nil, err
	}
	out := make([]extracthtml.Found, len(tables))
	for i, t := range tables {
		out[i] = extracthtml.Found{Index: i, Table: t}
	}
	return out, nil
}
