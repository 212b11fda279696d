package vision_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesql/internal/model"
	"tablesql/internal/vision"
)

var png = []byte{0x89, 'P', 'N', 'G'}

func analyzer(t *testing.T, h model.Handler) (*model.Fake, *vision.Analyzer) {
	t.Helper()
	f := model.NewFake(map[model.Purpose]model.Handler{model.PurposeVision: h})
	s, err := f.NewSession(context.Background(), model.SessionOptions{Purpose: model.PurposeVision, System: vision.SystemPrompt, ExpectImages: true})
	require.NoError(t, err)
	return f, &vision.Analyzer{Session: s}
}

func TestAnalyze_JSONInProse(t *testing.T) {
	f, a := analyzer(t, model.Reply("Here you go:\n```json\n"+
		`{"chartDescription":"A bar chart","visualObservations":["peak in May"],"keyInsights":["sales grew"]}`+"\n```"))

	d, err := a.Analyze(context.Background(), png)
	require.NoError(t, err)
	assert.Equal(t, "A bar chart", d.ChartDescription)
	assert.Equal(t, []string{"peak in May"}, d.VisualObservations)
	assert.Equal(t, []string{"sales grew"}, d.KeyInsights)

	reqs := f.Prompts(model.PurposeVision)
	require.Len(t, reqs, 1)
	assert.Equal(t, [][]byte{png}, reqs[0].Images)
}

func TestAnalyze_TextFallback(t *testing.T) {
	text := strings.Repeat("The chart shows growth. ", 20)
	_, a := analyzer(t, model.Reply(text))

	d, err := a.Analyze(context.Background(), png)
	require.NoError(t, err)
	assert.Equal(t, text[:200], d.ChartDescription)
	assert.Equal(t, []string{"Full response: " + text[:150]}, d.VisualObservations)
	assert.Equal(t, []string{"See full analysis above"}, d.KeyInsights)
}

func TestAnalyze_Errors(t *testing.T) {
	_, a := analyzer(t, model.Fail(errors.New("no multimodal support")))
	_, err := a.Analyze(context.Background(), png)
	assert.ErrorIs(t, err, vision.ErrAnalyze)

	_, err = a.Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, vision.ErrNoImage)

	_, err = (&vision.Analyzer{}).Analyze(context.Background(), png)
	assert.ErrorIs(t, err, model.ErrUnavailable)
}

func TestDecodeImage(t *testing.T) {
	t.Parallel()
	enc := base64.StdEncoding.EncodeToString(png)
	cases := []struct {
		name string
		in   string
	}{
		{"plain", enc},
		{"data url", "data:image/png;base64," + enc},
		{"whitespace", "  " + enc + "\n"},
	}
	for _, tc := range cases {
		got, err := vision.DecodeImage(tc.in)
		if err != nil || string(got) != string(png) {
			t.Fatalf("%s: DecodeImage()=%v, %v, want %v", tc.name, got, err, png)
		}
	}

	_, err := vision.DecodeImage("data:image/png;base64,")
	assert.ErrorIs(t, err, vision.ErrNoImage)
	_, err = vision.DecodeImage("!!!")
	assert.Error(t, err)
}
