package coerce

import (
	"errors"
	"testing"

	"tablesql/internal/schema"
)

// TestValue is the main conversion table. want=nil with wantErr=false means
// blank input; wantErr means the value is reported as unparseable.
func TestValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		typ     schema.SemanticType
		want    any
		wantErr bool
	}{
		{name: "blank_any_type", raw: "  ", typ: schema.Integer, want: nil},
		{name: "blank_string", raw: "", typ: schema.String, want: nil},

		{name: "int_commas", raw: "1,441,000,000", typ: schema.Integer, want: int64(1441000000)},
		{name: "int_plus", raw: "+42", typ: schema.Integer, want: int64(42)},
		{name: "int_truncates_fraction", raw: "12.7", typ: schema.Integer, want: int64(12)},
		{name: "int_prefix", raw: "12 units", typ: schema.Integer, want: int64(12)},
		{name: "int_suffix_rounds", raw: "4.21M", typ: schema.Integer, want: int64(4210000)},
		{name: "int_suffix_half_up", raw: "0.0005K", typ: schema.Integer, want: int64(1)},
		{name: "int_suffix_lower", raw: "1.5b", typ: schema.Integer, want: int64(1500000000)},
		{name: "int_bad", raw: "n/a", typ: schema.Integer, wantErr: true},
		{name: "int_bad_suffix", raw: "bob", typ: schema.Integer, wantErr: true},
		{name: "int_overflow", raw: "99999999999999999999", typ: schema.Integer, wantErr: true},
		{name: "int_negative_overflow", raw: "-9,999,999,999,999,999,999", typ: schema.Integer, wantErr: true},
		{name: "int_suffix_overflow", raw: "99999999999B", typ: schema.Integer, wantErr: true},
		{name: "int_max", raw: "9223372036854775807", typ: schema.Integer, want: int64(9223372036854775807)},

		{name: "dec_plain", raw: "3.14", typ: schema.Decimal, want: 3.14},
		{name: "dec_commas_plus", raw: "+1,234.5", typ: schema.Decimal, want: 1234.5},
		{name: "dec_suffix", raw: "500K", typ: schema.Decimal, want: 500000.0},
		{name: "dec_bad", raw: "abc", typ: schema.Decimal, wantErr: true},

		{name: "bool_yes", raw: "Yes", typ: schema.Boolean, want: int64(1)},
		{name: "bool_one", raw: "1", typ: schema.Boolean, want: int64(1)},
		{name: "bool_n", raw: "N", typ: schema.Boolean, want: int64(0)},
		{name: "bool_false", raw: "FALSE", typ: schema.Boolean, want: int64(0)},
		{name: "bool_bad", raw: "maybe", typ: schema.Boolean, wantErr: true},

		{name: "pct", raw: "50%", typ: schema.Percentage, want: 0.5},
		{name: "pct_plus_small", raw: "+0.20%", typ: schema.Percentage, want: 0.002},
		{name: "pct_negative_space", raw: "-12.5 %", typ: schema.Percentage, want: -0.125},
		{name: "pct_bare_number_divided", raw: "5", typ: schema.Percentage, want: 0.05},
		{name: "pct_bad", raw: "%", typ: schema.Percentage, wantErr: true},

		{name: "cur_dollar", raw: "$1,250.50", typ: schema.Currency, want: 1250.5},
		{name: "cur_negative", raw: "-$10.50", typ: schema.Currency, want: -10.5},
		{name: "cur_suffix", raw: "100 €", typ: schema.Currency, want: 100.0},
		{name: "cur_rupee", raw: "₹75", typ: schema.Currency, want: 75.0},
		{name: "cur_bad", raw: "free", typ: schema.Currency, wantErr: true},

		{name: "date_passthrough", raw: " 2024-01-15 ", typ: schema.Date, want: "2024-01-15"},
		{name: "time_passthrough", raw: "2:30 PM", typ: schema.Time, want: "2:30 PM"},
		{name: "text_passthrough", raw: " hello ", typ: schema.Text, want: "hello"},
		{name: "unknown_type_passthrough", raw: "x", typ: "uuid", want: "x"},
		{name: "type_case_insensitive", raw: "7", typ: "INTEGER", want: int64(7)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Value(tc.raw, tc.typ)
			if tc.wantErr {
				if !errors.Is(err, ErrUnparseable) {
					t.Fatalf("Value(%q,%s) err=%v, want ErrUnparseable", tc.raw, tc.typ, err)
				}
				if got != nil {
					t.Fatalf("Value(%q,%s)=%#v, want nil on error", tc.raw, tc.typ, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Value(%q,%s): %v", tc.raw, tc.typ, err)
			}
			if f, ok := tc.want.(float64); ok {
				g, ok := got.(float64)
				if !ok || !almostEqual(g, f) {
					t.Fatalf("Value(%q,%s)=%#v, want %v", tc.raw, tc.typ, got, f)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("Value(%q,%s)=%#v, want %#v", tc.raw, tc.typ, got, tc.want)
			}
		})
	}
}

func TestCoerce_DegradesToNil(t *testing.T) {
	t.Parallel()

	if got := Coerce("not a number", schema.Currency); got != nil {
		t.Fatalf("Coerce()=%#v, want nil", got)
	}
	if got := Coerce("$5", schema.Currency); got != 5.0 {
		t.Fatalf("Coerce()=%#v, want 5", got)
	}
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	_, err := Value("x", schema.Integer)
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ce.Raw != "x" || ce.Type != schema.Integer {
		t.Fatalf("unexpected error fields: %#v", ce)
	}
	if ce.Error() != `coerce: cannot convert "x" to integer` {
		t.Fatalf("Error()=%q", ce.Error())
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
