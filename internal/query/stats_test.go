package query

import (
	"testing"

	"tablesql/internal/storage"
)

func TestStatistics(t *testing.T) {
	t.Parallel()

	r := storage.Result{
		Columns: []string{"name", "pop", "mixed", "text_nums"},
		Rows: [][]any{
			{"China", int64(10), "x", "1.5"},
			{"India", int64(30), int64(1), "2.5 units"},
			{"USA", int64(20), "y", "n/a"},
			{"Brazil", nil, "z", "4"},
		},
	}
	got := Statistics(r)
	if _, ok := got["name"]; ok {
		t.Fatalf("non-numeric column included")
	}
	if _, ok := got["mixed"]; ok {
		t.Fatalf("column with 1/4 numeric values included")
	}
	pop, ok := got["pop"]
	if !ok {
		t.Fatalf("pop missing: %v", got)
	}
	want := ColumnStats{Count: 3, Min: 10, Max: 30, Avg: 20, Sum: 60, Range: 20}
	if pop != want {
		t.Fatalf("pop=%+v, want %+v", pop, want)
	}
	tn := got["text_nums"]
	if tn.Count != 3 || tn.Sum != 8 || tn.Min != 1.5 || tn.Max != 4 {
		t.Fatalf("text_nums=%+v", tn)
	}
}

func TestStatistics_ExactlyHalfIsNotNumeric(t *testing.T) {
	t.Parallel()

	r := storage.Result{Columns: []string{"a"}, Rows: [][]any{{1.0}, {"x"}}}
	if got := Statistics(r); got != nil {
		t.Fatalf("Statistics()=%v, want nil", got)
	}
}

func TestStatistics_Empty(t *testing.T) {
	t.Parallel()

	if got := Statistics(storage.Result{Columns: []string{"a"}}); got != nil {
		t.Fatalf("Statistics(empty)=%v, want nil", got)
	}
}
