package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlerhq/settler-edge/pkg/types"
)

func TestCompareAmount(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"equal amounts", 100, 100, 1.0},
		{"both zero", 0, 0, 1.0},
		{"zero vs nonzero", 0, 5, 0.0},
		{"ten percent difference", 100, 90, 0.9},
		{"opposite signs beyond range", -5, 5, 0.0},
		{"negative equal", -50, -50, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CompareAmount(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCompareDate(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.0, CompareDate(base, base), 1e-9)
	assert.InDelta(t, 0.5, CompareDate(base, base.Add(84*time.Hour)), 1e-9)
	assert.InDelta(t, 0.0, CompareDate(base, base.AddDate(0, 0, 7)), 1e-9)
	assert.InDelta(t, 0.0, CompareDate(base, base.AddDate(0, 1, 0)), 1e-9)

	// Symmetry: order of arguments must not matter.
	later := base.Add(30 * time.Hour)
	assert.InDelta(t, CompareDate(base, later), CompareDate(later, base), 1e-12)
}

func TestCompareStrings(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact match", "Order A", "order a", 1.0},
		{"containment", "order", "order a", 0.8},
		{"empty left", "", "order", 0.0},
		{"empty right", "order", "", 0.0},
		{"both empty", "", "", 0.0},
		{"edit distance", "kitten", "sitting", 1 - 3.0/7.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CompareStrings(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 3, Levenshtein("", "abc"))
	assert.Equal(t, 3, Levenshtein("abc", ""))
	assert.Equal(t, 0, Levenshtein("abc", "abc"))
	assert.Equal(t, 1, Levenshtein("s1", "t1"))
	assert.Equal(t, 0, Levenshtein("", ""))
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name   string
		record *types.Record
		want   float64
		ok     bool
	}{
		{
			name:   "numeric amount",
			record: types.NewRecord().Set("amount", types.NumberValue(42.5)),
			want:   42.5,
			ok:     true,
		},
		{
			name:   "zero amount is extractable",
			record: types.NewRecord().Set("amount", types.NumberValue(0)),
			want:   0,
			ok:     true,
		},
		{
			name:   "currency string",
			record: types.NewRecord().Set("amount", types.StringValue("$1,234.56")),
			want:   1234.56,
			ok:     true,
		},
		{
			name:   "total fallback",
			record: types.NewRecord().Set("total", types.NumberValue(50)),
			want:   50,
			ok:     true,
		},
		{
			name: "null amount falls through to value",
			record: types.NewRecord().
				Set("amount", types.NullValue()).
				Set("value", types.NumberValue(10)),
			want: 10,
			ok:   true,
		},
		{
			name:   "unparseable string",
			record: types.NewRecord().Set("amount", types.StringValue("abc")),
			ok:     false,
		},
		{
			name:   "no amount field",
			record: types.NewRecord().Set("description", types.StringValue("x")),
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractAmount(tt.record)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestExtractDate(t *testing.T) {
	rec := types.NewRecord().Set("date", types.StringValue("2024-01-01"))
	got, ok := ExtractDate(rec)
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.January, got.Month())
	assert.Equal(t, 1, got.Day())

	withTime := types.NewRecord().Set("timestamp", types.StringValue("2024-06-15T23:30:00"))
	got, ok = ExtractDate(withTime)
	require.True(t, ok)
	assert.Equal(t, 23, got.Hour())

	instant := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dateVal := types.NewRecord().Set("created_at", types.DateValue(instant))
	got, ok = ExtractDate(dateVal)
	require.True(t, ok)
	assert.True(t, got.Equal(instant))

	epoch := types.NewRecord().Set("date", types.NumberValue(float64(instant.UnixMilli())))
	got, ok = ExtractDate(epoch)
	require.True(t, ok)
	assert.Equal(t, instant.UnixMilli(), got.UnixMilli())

	bad := types.NewRecord().Set("date", types.StringValue("not a date"))
	_, ok = ExtractDate(bad)
	assert.False(t, ok)

	empty := types.NewRecord()
	_, ok = ExtractDate(empty)
	assert.False(t, ok)
}

func TestExtractID(t *testing.T) {
	assert.Equal(t, "s1", ExtractID(types.NewRecord().Set("id", types.StringValue("s1"))))
	assert.Equal(t, "7", ExtractID(types.NewRecord().Set("id", types.NumberValue(7))))
	assert.Equal(t, "tx9", ExtractID(types.NewRecord().
		Set("id", types.StringValue("")).
		Set("transaction_id", types.StringValue("tx9"))))
	assert.Equal(t, "o3", ExtractID(types.NewRecord().Set("order_id", types.StringValue("o3"))))
	assert.Equal(t, "", ExtractID(types.NewRecord()))
}
