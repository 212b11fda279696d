// Package infer guesses the semantic type of a column from its raw values.
//
// Inference is a pure function of its input: values are sampled in order,
// each sampled value lands in at most one bucket (first matching classifier
// wins), and a bucket must hold a 70% supermajority of the sample to decide
// the column type.
package infer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"tablesql/internal/schema"
)

const (
	// MaxSample is the number of non-empty values inspected per column.
	MaxSample = 100

	// Threshold is the share of the sample a bucket needs to win.
	Threshold = 0.7

	// LongTextAverage is the mean length (characters) above which an
	// otherwise unclassified column is typed as text.
	LongTextAverage = 100

	// DefaultSampleLimit is the default cap for SampleUniqueValues.
	DefaultSampleLimit = 5
)

// Bucket is a classification outcome for a single value.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketBoolean
	BucketInteger
	BucketDecimal
	BucketPercentage
	BucketCurrency
	BucketDate
	BucketTime
)

func (b Bucket) String() string {
	switch b {
	case BucketBoolean:
		return "boolean"
	case BucketInteger:
		return "integer"
	case BucketDecimal:
		return "decimal"
	case BucketPercentage:
		return "percentage"
	case BucketCurrency:
		return "currency"
	case BucketDate:
		return "date"
	case BucketTime:
		return "time"
	}
	return "none"
}

// Classifier tests a trimmed value and reports the bucket it belongs to.
// A classifier returns BucketNone to pass the value on to the next one.
type Classifier struct {
	Name     string
	Classify func(v string) Bucket
}

var (
	reBoolean    = regexp.MustCompile(`(?i)^(true|false|yes|no|y|n|0|1)$`)
	reMagnitude  = regexp.MustCompile(`(?i)^\d+\.?\d*[KMB]$`)
	rePercentage = regexp.MustCompile(`^[+-]?\d+\.?\d*\s*%$`)
	reCurrency   = regexp.MustCompile(`^-?[$€£¥₹]\s*\d+\.?\d*$|^-?\d+\.?\d*\s*[$€£¥₹]$`)
	reDate       = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}$|^\d{1,2}[-/]\d{1,2}[-/]\d{4}$`)
	reTime       = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?(\s*(AM|PM|am|pm))?$`)
	reNumber     = regexp.MustCompile(`^-?\d+\.?\d*$`)
)

func match(re *regexp.Regexp, b Bucket) func(string) Bucket {
	return func(v string) Bucket {
		if re.MatchString(v) {
			return b
		}
		return BucketNone
	}
}

// classifyNumber strips thousands separators and buckets plain numbers by
// the presence of a decimal point.
func classifyNumber(v string) Bucket {
	clean := strings.ReplaceAll(v, ",", "")
	if !reNumber.MatchString(clean) {
		return BucketNone
	}
	if strings.Contains(clean, ".") {
		return BucketDecimal
	}
	return BucketInteger
}

// Classifiers is the ordered classifier chain. Order is significant: "1"
// is a boolean, not an integer, because the boolean test runs first.
// Magnitude-suffixed numbers ("4.2M") count toward the decimal bucket.
var Classifiers = []Classifier{
	{Name: "boolean", Classify: match(reBoolean, BucketBoolean)},
	{Name: "magnitude", Classify: match(reMagnitude, BucketDecimal)},
	{Name: "percentage", Classify: match(rePercentage, BucketPercentage)},
	{Name: "currency", Classify: match(reCurrency, BucketCurrency)},
	{Name: "date", Classify: match(reDate, BucketDate)},
	{Name: "time", Classify: match(reTime, BucketTime)},
	{Name: "number", Classify: classifyNumber},
}

// Classify runs v (trimmed) through Classifiers and returns the first
// non-empty bucket.
func Classify(v string) Bucket {
	v = strings.TrimSpace(v)
	if v == "" {
		return BucketNone
	}
	for _, c := range Classifiers {
		if b := c.Classify(v); b != BucketNone {
			return b
		}
	}
	return BucketNone
}

// decision is the order in which bucket counts are checked against the
// threshold.
var decision = []struct {
	bucket Bucket
	typ    schema.SemanticType
}{
	{BucketBoolean, schema.Boolean},
	{BucketPercentage, schema.Percentage},
	{BucketCurrency, schema.Currency},
	{BucketDate, schema.Date},
	{BucketTime, schema.Time},
	{BucketInteger, schema.Integer},
	{BucketDecimal, schema.Decimal},
}

// Infer returns the best-guess semantic type for a column.
//
// Edge cases:
//   - Blank values are ignored; a column of only blanks is string.
//   - Only the first MaxSample non-blank values are inspected.
//   - When integer and decimal only win together, the column is decimal if
//     decimals outnumber half the integers, otherwise integer.
//   - Unclassified columns with a mean length over LongTextAverage are text.
func Infer(values []string) schema.SemanticType {
	sample := make([]string, 0, min(len(values), MaxSample))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		sample = append(sample, v)
		if len(sample) == MaxSample {
			break
		}
	}
	if len(sample) == 0 {
		return schema.String
	}

	counts := Count(sample)
	threshold := float64(len(sample)) * Threshold

	for _, d := range decision {
		if float64(counts[d.bucket]) >= threshold {
			return d.typ
		}
	}

	ints, decs := counts[BucketInteger], counts[BucketDecimal]
	if float64(ints+decs) >= threshold {
		if float64(decs) > float64(ints)/2 {
			return schema.Decimal
		}
		return schema.Integer
	}

	total := 0
	for _, v := range sample {
		total += utf8.RuneCountInString(v)
	}
	if float64(total)/float64(len(sample)) > LongTextAverage {
		return schema.Text
	}
	return schema.String
}

// Count classifies every value and returns the per-bucket tallies.
// BucketNone is not counted.
func Count(values []string) map[Bucket]int {
	counts := make(map[Bucket]int, len(decision))
	for _, v := range values {
		if b := Classify(v); b != BucketNone {
			counts[b]++
		}
	}
	return counts
}

// SampleUniqueValues returns up to limit trimmed, non-empty, distinct values
// in first-occurrence order. A limit <= 0 uses DefaultSampleLimit.
func SampleUniqueValues(values []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	out := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Hint is the heuristic verdict for one column.
type Hint struct {
	Name    string
	Type    schema.SemanticType
	Samples []string
}

// Hints infers a Hint per header, in header order.
func Hints(headers []string, column func(h string) []string) []Hint {
	out := make([]Hint, len(headers))
	for i, h := range headers {
		vals := column(h)
		out[i] = Hint{
			Name:    h,
			Type:    Infer(vals),
			Samples: SampleUniqueValues(vals, DefaultSampleLimit),
		}
	}
	return out
}
