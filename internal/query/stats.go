package query

import (
	"math"

	"tablesql/internal/coerce"
	"tablesql/internal/storage"
)

// ColumnStats summarizes one numeric result column.
type ColumnStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Sum   float64 `json:"sum"`
	Range float64 `json:"range"`
}

// Statistics computes ColumnStats for every column where more than half of
// the values read as numbers. It returns nil when no column qualifies or the
// result is empty.
func Statistics(r storage.Result) map[string]ColumnStats {
	if r.Len() == 0 {
		return nil
	}
	out := map[string]ColumnStats{}
	for i, col := range r.Columns {
		var nums []float64
		for _, v := range r.Values(i) {
			if f, ok := number(v); ok {
				nums = append(nums, f)
			}
		}
		if float64(len(nums)) <= float64(r.Len())*0.5 {
			continue
		}
		st := ColumnStats{Count: len(nums), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, f := range nums {
			st.Sum += f
			st.Min = math.Min(st.Min, f)
			st.Max = math.Max(st.Max, f)
		}
		st.Avg = st.Sum / float64(len(nums))
		st.Range = st.Max - st.Min
		out[col] = st
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// number reads v as a float. Strings use the leading-number rule, so "12 kg"
// counts and "n/a" does not.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		return coerce.Float(t)
	}
	return 0, false
}
