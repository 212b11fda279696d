package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tablesql/internal/storage"
)

// ErrNoSuchColumn reports a double-quoted name that is neither a column, a
// table nor an alias. SQLite would otherwise read it as a string literal.
var ErrNoSuchColumn = errors.New("sqlite: no such column")

// store checks quoted identifiers before handing a query to the engine.
type store struct {
	*storage.SQLStore
	db *sql.DB
}

func (s *store) Query(ctx context.Context, q string) (storage.Result, error) {
	if strings.ContainsRune(q, '"') {
		known, err := s.catalog(ctx)
		if err != nil {
			return storage.Result{}, err
		}
		if err := checkIdentifiers(q, known); err != nil {
			return storage.Result{}, err
		}
	}
	return s.SQLStore.Query(ctx, q)
}

// catalog returns the lower-cased names of every table, view and column.
func (s *store) catalog(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type IN ('table', 'view')`)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	known := map[string]bool{"rowid": true, "oid": true, "_rowid_": true}
	for _, t := range tables {
		known[strings.ToLower(t)] = true
		cols, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, t)
		if err != nil {
			return nil, fmt.Errorf("read columns of %s: %w", t, err)
		}
		for cols.Next() {
			var name string
			if err := cols.Scan(&name); err != nil {
				cols.Close()
				return nil, fmt.Errorf("read columns of %s: %w", t, err)
			}
			known[strings.ToLower(name)] = true
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return nil, fmt.Errorf("read columns of %s: %w", t, err)
		}
	}
	return known, nil
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokPunct
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

// checkIdentifiers fails on the first quoted name in q that is not in known
// and is not defined as an alias somewhere in q.
func checkIdentifiers(q string, known map[string]bool) error {
	toks := tokenize(q)
	aliases := map[string]bool{}
	for i, t := range toks {
		if t.kind != tokQuoted && t.kind != tokWord {
			continue
		}
		if defines(toks, i, known) {
			aliases[strings.ToLower(t.text)] = true
		}
	}
	for _, t := range toks {
		if t.kind != tokQuoted {
			continue
		}
		name := strings.ToLower(t.text)
		if !known[name] && !aliases[name] {
			return fmt.Errorf("%w: %q", ErrNoSuchColumn, t.text)
		}
	}
	return nil
}

// defines reports whether toks[i] introduces a name: `AS x`, a CTE `x AS (`,
// or a bare alias right after a closing paren, a quoted name or a table.
func defines(toks []token, i int, known map[string]bool) bool {
	if i+2 < len(toks) && isWord(toks[i+1], "AS") && toks[i+2].kind == tokPunct && toks[i+2].text == "(" {
		return true
	}
	if i == 0 {
		return false
	}
	prev := toks[i-1]
	switch {
	case isWord(prev, "AS"):
		return true
	case toks[i].kind != tokQuoted:
		return false
	case prev.kind == tokPunct:
		return prev.text == ")"
	case prev.kind == tokQuoted:
		return true
	case prev.kind == tokWord:
		return known[strings.ToLower(prev.text)]
	}
	return false
}

func isWord(t token, w string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, w)
}

// tokenize splits q into words, double-quoted identifiers and punctuation.
// String literals, comments, numbers and other quoting styles collapse into
// tokOther.
func tokenize(q string) []token {
	var toks []token
	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			i = skipQuoted(q, i, '\'')
			toks = append(toks, token{kind: tokOther})
		case c == '"':
			end := skipQuoted(q, i, '"')
			body := q[i+1 : end]
			body = strings.TrimSuffix(body, `"`)
			toks = append(toks, token{kind: tokQuoted, text: strings.ReplaceAll(body, `""`, `"`)})
			i = end
		case c == '[':
			i = skipTo(q, i+1, "]")
			toks = append(toks, token{kind: tokOther})
		case c == '`':
			i = skipQuoted(q, i, '`')
			toks = append(toks, token{kind: tokOther})
		case c == '-' && strings.HasPrefix(q[i:], "--"):
			i = skipTo(q, i, "\n")
		case c == '/' && strings.HasPrefix(q[i:], "/*"):
			i = skipTo(q, i+2, "*/")
		case isWordByte(c) && !(c >= '0' && c <= '9'):
			j := i
			for j < len(q) && isWordByte(q[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: q[i:j]})
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(q) && (isWordByte(q[j]) || q[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokOther})
			i = j
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return toks
}

// skipQuoted returns the index just past the quote closing the literal that
// opens at q[i]. A doubled quote is an escape.
func skipQuoted(q string, i int, quote byte) int {
	for j := i + 1; j < len(q); j++ {
		if q[j] != quote {
			continue
		}
		if j+1 < len(q) && q[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(q)
}

func skipTo(q string, i int, end string) int {
	if k := strings.Index(q[i:], end); k >= 0 {
		return i + k + len(end)
	}
	return len(q)
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
