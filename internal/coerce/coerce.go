// Package coerce converts raw display strings into storage values for a
// given semantic type.
//
// Conversions never fail hard: a value that cannot be converted becomes nil
// (or the trimmed string for textual types) and the anomaly is reported to
// the logger instead of aborting the caller.
package coerce

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"tablesql/internal/schema"
)

// ErrUnparseable marks a non-empty value that could not be converted.
var ErrUnparseable = errors.New("coerce: unparseable value")

// Error describes one failed conversion.
type Error struct {
	Raw  string
	Type schema.SemanticType
}

func (e *Error) Error() string {
	return fmt.Sprintf("coerce: cannot convert %q to %s", e.Raw, e.Type)
}

func (e *Error) Unwrap() error { return ErrUnparseable }

var (
	reSuffix     = regexp.MustCompile(`(?i)[KMB]$`)
	reSuffixChar = regexp.MustCompile(`(?i)[KMB,]`)
	reTrue       = regexp.MustCompile(`(?i)^(true|yes|y|1)$`)
	reFalse      = regexp.MustCompile(`(?i)^(false|no|n|0)$`)
	reIntPrefix  = regexp.MustCompile(`^[+-]?\d+`)
	reFltPrefix  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

	currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", "₹", "", ",", "", "+", "")
)

var multipliers = map[byte]float64{'K': 1e3, 'M': 1e6, 'B': 1e9}

// Value converts raw to the storage representation of t.
//
// Results are int64 for integer and boolean, float64 for decimal, percentage
// and currency, and the trimmed string for date, time, text, string and
// unknown types. Blank input is always (nil, nil). A non-blank value that
// cannot be converted yields (nil, *Error).
//
// Edge cases:
//   - "4.2M" style magnitude suffixes expand by 1e3/1e6/1e9; integers round
//     half up.
//   - Numbers parse from their longest numeric prefix ("12px" -> 12).
//   - A percentage without a % sign is still divided by 100 ("5" -> 0.05).
//   - An integer outside the int64 range, with or without a suffix, is
//     unparseable and so loads as NULL ("99999999999999999999").
func Value(raw string, t schema.SemanticType) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	switch schema.SemanticType(strings.ToLower(string(t))) {
	case schema.Integer:
		if reSuffix.MatchString(s) {
			f, ok := expandSuffix(s)
			if !ok {
				return nil, &Error{Raw: raw, Type: t}
			}
			f = math.Floor(f + 0.5)
			if f >= math.MaxInt64 || f < math.MinInt64 {
				return nil, &Error{Raw: raw, Type: t}
			}
			return int64(f), nil
		}
		n, ok := parseIntPrefix(strings.ReplaceAll(s, ",", ""))
		if !ok {
			return nil, &Error{Raw: raw, Type: t}
		}
		return n, nil

	case schema.Decimal:
		if reSuffix.MatchString(s) {
			f, ok := expandSuffix(s)
			if !ok {
				return nil, &Error{Raw: raw, Type: t}
			}
			return f, nil
		}
		f, ok := parseFloatPrefix(strings.NewReplacer(",", "", "+", "").Replace(s))
		if !ok {
			return nil, &Error{Raw: raw, Type: t}
		}
		return f, nil

	case schema.Boolean:
		switch {
		case reTrue.MatchString(s):
			return int64(1), nil
		case reFalse.MatchString(s):
			return int64(0), nil
		}
		return nil, &Error{Raw: raw, Type: t}

	case schema.Percentage:
		num := strings.TrimSpace(strings.NewReplacer("%", "", "+", "").Replace(s))
		f, ok := parseFloatPrefix(num)
		if !ok {
			return nil, &Error{Raw: raw, Type: t}
		}
		return f / 100, nil

	case schema.Currency:
		f, ok := parseFloatPrefix(strings.TrimSpace(currencyStripper.Replace(s)))
		if !ok {
			return nil, &Error{Raw: raw, Type: t}
		}
		return f, nil

	default:
		return s, nil
	}
}

// expandSuffix parses s (ending in K, M or B) with suffix letters and commas
// removed, multiplied by the suffix's magnitude.
func expandSuffix(s string) (float64, bool) {
	mult := multipliers[strings.ToUpper(s[len(s)-1:])[0]]
	f, ok := parseFloatPrefix(reSuffixChar.ReplaceAllString(s, ""))
	if !ok {
		return 0, false
	}
	return f * mult, true
}

func parseIntPrefix(s string) (int64, bool) {
	m := reIntPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Float parses the leading number of s the way loosely formatted display
// values are read: "12.5 kg" is 12.5, "abc" is not a number.
func Float(s string) (float64, bool) { return parseFloatPrefix(s) }

func parseFloatPrefix(s string) (float64, bool) {
	m := reFltPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Coercer wraps Value and logs conversion anomalies.
type Coercer struct {
	Logger *slog.Logger
}

// Coerce converts raw for t, logging any anomaly at warn level and
// returning nil for it.
func (c Coercer) Coerce(raw string, t schema.SemanticType) any {
	v, err := Value(raw, t)
	if err != nil {
		c.logger().Warn("coerce: value degraded to null", "raw", raw, "type", string(t), "error", err)
		return nil
	}
	return v
}

func (c Coercer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Coerce is Coercer{}.Coerce using the default logger.
func Coerce(raw string, t schema.SemanticType) any {
	return Coercer{}.Coerce(raw, t)
}
