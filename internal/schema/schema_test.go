package schema

import "testing"

// TestStorageTypeFor verifies the semantic -> storage mapping, including the
// TEXT default for unknown types.
func TestStorageTypeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   SemanticType
		want StorageType
	}{
		{Integer, StorageInteger},
		{Boolean, StorageInteger},
		{Decimal, StorageReal},
		{Percentage, StorageReal},
		{Currency, StorageReal},
		{Date, StorageText},
		{Time, StorageText},
		{Text, StorageText},
		{String, StorageText},
		{"", StorageText},
		{"uuid", StorageText},
	}
	for _, tc := range tests {
		if got := StorageTypeFor(tc.in); got != tc.want {
			t.Fatalf("StorageTypeFor(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseSemanticType(t *testing.T) {
	t.Parallel()

	if got, ok := ParseSemanticType("  Currency "); !ok || got != Currency {
		t.Fatalf("ParseSemanticType()=(%q,%v), want (currency,true)", got, ok)
	}
	if _, ok := ParseSemanticType("money"); ok {
		t.Fatalf("expected money to be rejected")
	}
	if _, ok := ParseSemanticType(""); ok {
		t.Fatalf("expected empty type to be rejected")
	}
}

func TestTableMetadata_TypeOf(t *testing.T) {
	t.Parallel()

	m := &TableMetadata{Columns: []ColumnMetadata{
		{Name: "a", DataType: Integer},
		{Name: "b", DataType: ""},
	}}
	if got := m.TypeOf("a"); got != Integer {
		t.Fatalf("TypeOf(a)=%q", got)
	}
	if got := m.TypeOf("b"); got != String {
		t.Fatalf("TypeOf(b)=%q, want string for invalid type", got)
	}
	if got := m.TypeOf("missing"); got != String {
		t.Fatalf("TypeOf(missing)=%q", got)
	}

	var nilMeta *TableMetadata
	if got := nilMeta.TypeOf("a"); got != String {
		t.Fatalf("nil TypeOf=%q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "exact", in: "abcde", n: 5, want: "abcde"},
		{name: "cut", in: "abcdef", n: 3, want: "abc"},
		{name: "multibyte", in: "€€€€", n: 2, want: "€€"},
		{name: "zero", in: "abc", n: 0, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truncate(tc.in, tc.n); got != tc.want {
				t.Fatalf("Truncate(%q,%d)=%q, want %q", tc.in, tc.n, got, tc.want)
			}
		})
	}
}
