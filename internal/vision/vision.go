// Package vision describes chart images with a multimodal model session.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tablesql/internal/metrics"
	"tablesql/internal/model"
	"tablesql/internal/schema"
)

// SystemPrompt is installed on the vision session.
const SystemPrompt = "You are an expert data visualization analyst who provides detailed insights " +
	"about charts, graphs, and visual data representations."

// Prompt is sent with every image.
const Prompt = `Analyze this chart/graph image in detail.

Provide your analysis in the following JSON format:
{
  "chartDescription": "2-3 sentences describing what type of chart this is, what data it shows, and what the axes/labels represent",
  "visualObservations": [
    "observation about patterns, trends, or distributions",
    "observation about standout elements, peaks, or valleys",
    "observation about the data distribution or layout",
    "observation about any anomalies or notable features"
  ],
  "keyInsights": [
    "insight about what the data tells us",
    "insight about comparisons or relationships",
    "insight about findings or conclusions",
    "insight connecting data points or showing meaning"
  ]
}

Be specific with numbers, names, and values you see in the chart.`

var (
	// ErrNoImage is returned for empty image input.
	ErrNoImage = errors.New("vision: no image")
	// ErrAnalyze wraps a failed model call. There is no safe local fallback
	// for image content.
	ErrAnalyze = errors.New("vision: analysis failed")
)

// Description is the analysis of one chart image.
type Description struct {
	ChartDescription   string   `json:"chartDescription"`
	VisualObservations []string `json:"visualObservations"`
	KeyInsights        []string `json:"keyInsights"`
}

// TextFallback wraps a free-text reply that is not the expected JSON.
func TextFallback(text string) Description {
	return Description{
		ChartDescription:   schema.Truncate(text, 200),
		VisualObservations: []string{"Full response: " + schema.Truncate(text, 150)},
		KeyInsights:        []string{"See full analysis above"},
	}
}

// Analyzer describes chart images.
type Analyzer struct {
	// Session must be opened with ExpectImages and SystemPrompt.
	Session model.Session
	Logger  *slog.Logger
}

// Analyze describes image (PNG or JPEG bytes).
//
// A reply with JSON embedded in prose is accepted; a reply that holds no
// usable JSON is returned as TextFallback.
//
// Errors:
//   - ErrNoImage for an empty image.
//   - ErrAnalyze wrapping the model error.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) (Description, error) {
	if len(image) == 0 {
		return Description{}, ErrNoImage
	}
	if a.Session == nil {
		return Description{}, fmt.Errorf("%w: %w", ErrAnalyze, model.ErrUnavailable)
	}
	start := time.Now()
	r := model.Lenient(model.Call(ctx, a.Session, model.Request{
		Prompt: Prompt,
		Images: [][]byte{image},
	}))

	switch r.Kind {
	case model.KindModelError:
		metrics.RecordStep("vision", "error", time.Since(start))
		return Description{}, fmt.Errorf("%w: %w", ErrAnalyze, r.Err)
	case model.KindParseError:
		a.logger().Warn("vision: reply is not JSON, returning text", "error", r.Err)
		metrics.RecordStep("vision", "fallback", time.Since(start))
		return TextFallback(r.Text), nil
	}

	var d Description
	if err := model.Decode(r, &d); err != nil {
		a.logger().Warn("vision: reply has unexpected shape, returning text", "error", err)
		metrics.RecordStep("vision", "fallback", time.Since(start))
		return TextFallback(r.Text), nil
	}
	metrics.RecordStep("vision", "ok", time.Since(start))
	return d, nil
}

// DecodeImage decodes base64 image data, with or without a data-URL prefix
// ("data:image/png;base64,...").
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrNoImage
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("vision: decode image: %w", err)
	}
	return b, nil
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
