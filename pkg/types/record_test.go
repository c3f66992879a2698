package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPreservesInsertionOrder(t *testing.T) {
	rec := NewRecord().
		Set("zeta", NumberValue(1)).
		Set("alpha", NumberValue(2)).
		Set("mid", NumberValue(3))

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, rec.Keys())

	// Overwriting keeps the original position.
	rec.Set("alpha", NumberValue(9))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, rec.Keys())
	v, ok := rec.Get("alpha")
	require.True(t, ok)
	f, _ := v.AsNumber()
	assert.Equal(t, 9.0, f)
}

func TestRecordUnmarshalPreservesDocumentOrder(t *testing.T) {
	data := []byte(`{"b_field": 1, "a_field": "two", "c_field": null}`)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))

	assert.Equal(t, []string{"b_field", "a_field", "c_field"}, rec.Keys())

	v, ok := rec.Get("c_field")
	require.True(t, ok)
	assert.True(t, v.IsNull())
}

func TestRecordMarshalRoundTrip(t *testing.T) {
	rec := NewRecord().
		Set("id", StringValue("t1")).
		Set("amount", NumberValue(99.5)).
		Set("ok", BoolValue(true)).
		Set("missing", NullValue())

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t1","amount":99.5,"ok":true,"missing":null}`, string(data))

	// Key order is preserved byte-for-byte, not just set-wise.
	assert.Equal(t, `{"id":"t1","amount":99.5,"ok":true,"missing":null}`, string(data))
}

func TestRecordUnmarshalNestedValuesAreOpaque(t *testing.T) {
	data := []byte(`{"meta": {"nested": true}, "tags": [1, 2]}`)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))

	meta, ok := rec.Get("meta")
	require.True(t, ok)
	assert.Equal(t, KindOpaque, meta.Kind())

	tags, ok := rec.Get("tags")
	require.True(t, ok)
	assert.Equal(t, KindOpaque, tags.Kind())
}

func TestRecordCloneIsolation(t *testing.T) {
	original := NewRecord().Set("a", StringValue("x"))
	clone := original.Clone()
	clone.Set("a", StringValue("y"))
	clone.Set("b", NumberValue(1))

	v, _ := original.Get("a")
	assert.Equal(t, "x", v.Text())
	assert.False(t, original.Has("b"))
	assert.Equal(t, 1, original.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestDecodeBatchMixedEntries(t *testing.T) {
	data := []byte(`[{"id": "t1"}, 42, "stray", null]`)

	batch, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	rec, ok := batch[0].Record()
	require.True(t, ok)
	v, _ := rec.Get("id")
	assert.Equal(t, "t1", v.Text())

	assert.False(t, batch[1].IsRecord())
	n, _ := batch[1].Scalar().AsNumber()
	assert.Equal(t, 42.0, n)

	s, _ := batch[2].Scalar().AsString()
	assert.Equal(t, "stray", s)

	assert.True(t, batch[3].Scalar().IsNull())
}

func TestDecodeBatchRejectsNonArray(t *testing.T) {
	_, err := DecodeBatch([]byte(`{"not": "an array"}`))
	assert.Error(t, err)
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "7", NumberValue(7).Text())
	assert.Equal(t, "7.25", NumberValue(7.25).Text())
	assert.Equal(t, "true", BoolValue(true).Text())
	assert.Equal(t, "", NullValue().Text())
	assert.Equal(t, "hello", StringValue("hello").Text())

	instant := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05Z", DateValue(instant).Text())
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, KindNull, ValueOf(nil).Kind())
	assert.Equal(t, KindBool, ValueOf(true).Kind())
	assert.Equal(t, KindNumber, ValueOf(3).Kind())
	assert.Equal(t, KindNumber, ValueOf(3.5).Kind())
	assert.Equal(t, KindString, ValueOf("s").Kind())
	assert.Equal(t, KindDate, ValueOf(time.Now()).Kind())
	assert.Equal(t, KindOpaque, ValueOf(map[string]int{"a": 1}).Kind())
}

func TestValueEqual(t *testing.T) {
	assert.True(t, NumberValue(1).Equal(NumberValue(1)))
	assert.False(t, NumberValue(1).Equal(NumberValue(2)))
	assert.False(t, NumberValue(1).Equal(StringValue("1")))
	assert.True(t, NullValue().Equal(NullValue()))

	instant := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.True(t, DateValue(instant).Equal(DateValue(instant.In(time.FixedZone("x", 3600)))))
}
