package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlerhq/settler-edge/pkg/types"
)

func recordEntry(build func(r *types.Record)) types.Entry {
	rec := types.NewRecord()
	build(rec)
	return types.RecordEntry(rec)
}

func TestInferSchemaEmptyBatch(t *testing.T) {
	schema := InferSchema(nil, nil)
	assert.Empty(t, schema.Fields)

	schema = InferSchema([]types.Entry{}, nil)
	assert.Empty(t, schema.Fields)
}

func TestInferSchemaNonRecordFirstEntry(t *testing.T) {
	batch := []types.Entry{
		types.ScalarEntry(types.StringValue("oops")),
		recordEntry(func(r *types.Record) {
			r.Set("id", types.StringValue("t1"))
		}),
	}

	schema := InferSchema(batch, nil)
	assert.Empty(t, schema.Fields)
}

func TestInferSchemaOnlyInspectsFirstRecord(t *testing.T) {
	batch := []types.Entry{
		recordEntry(func(r *types.Record) {
			r.Set("id", types.StringValue("t1"))
			r.Set("amount", types.NumberValue(10))
		}),
		recordEntry(func(r *types.Record) {
			r.Set("extra", types.StringValue("never seen"))
		}),
	}

	schema := InferSchema(batch, nil)
	require.Len(t, schema.Fields, 2)
	assert.Equal(t, "id", schema.Fields[0].Name)
	assert.Equal(t, "amount", schema.Fields[1].Name)
}

func TestInferSchemaFieldOrderFollowsRecord(t *testing.T) {
	batch := []types.Entry{
		recordEntry(func(r *types.Record) {
			r.Set("zeta", types.NumberValue(1))
			r.Set("alpha", types.NumberValue(2))
			r.Set("mid", types.NumberValue(3))
		}),
	}

	schema := InferSchema(batch, nil)
	require.Len(t, schema.Fields, 3)
	assert.Equal(t, "zeta", schema.Fields[0].Name)
	assert.Equal(t, "alpha", schema.Fields[1].Name)
	assert.Equal(t, "mid", schema.Fields[2].Name)
}

func TestInferSchemaTypes(t *testing.T) {
	batch := []types.Entry{
		recordEntry(func(r *types.Record) {
			r.Set("count", types.NumberValue(3))
			r.Set("active", types.BoolValue(true))
			r.Set("iso_day", types.StringValue("2024-01-15"))
			r.Set("us_day", types.StringValue("01/15/2024"))
			r.Set("label", types.StringValue("widget"))
			r.Set("nothing", types.NullValue())
		}),
	}

	schema := InferSchema(batch, nil)
	require.Len(t, schema.Fields, 6)

	byName := map[string]types.FieldType{}
	for _, f := range schema.Fields {
		byName[f.Name] = f.Type
	}
	assert.Equal(t, types.FieldNumber, byName["count"])
	assert.Equal(t, types.FieldBoolean, byName["active"])
	assert.Equal(t, types.FieldDate, byName["iso_day"])
	assert.Equal(t, types.FieldDate, byName["us_day"])
	assert.Equal(t, types.FieldString, byName["label"])
	assert.Equal(t, types.FieldUnknown, byName["nothing"])
}

func TestInferSchemaHintsOverrideInference(t *testing.T) {
	batch := []types.Entry{
		recordEntry(func(r *types.Record) {
			r.Set("code", types.StringValue("00042"))
		}),
	}

	schema := InferSchema(batch, map[string]types.FieldType{"code": types.FieldNumber})
	require.Len(t, schema.Fields, 1)
	assert.Equal(t, types.FieldNumber, schema.Fields[0].Type)
}

func TestDetectPII(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     types.Value
		want      types.PIIType
	}{
		{"email by field name", "customer_email", types.StringValue("whatever"), types.PIIEmail},
		{"email by value", "contact", types.StringValue("a@b.com"), types.PIIEmail},
		{"card by field name", "card_number", types.StringValue("on file"), types.PIICreditCard},
		{"card by value with spaces", "pan", types.StringValue("4111 1111 1111 1111"), types.PIICreditCard},
		{"card by value with dashes", "pan", types.StringValue("4111-1111-1111-1111"), types.PIICreditCard},
		{"ssn by value", "gov_id", types.StringValue("123-45-6789"), types.PIISSN},
		{"phone by value", "contact_nr", types.StringValue("+1 (555) 123-4567"), types.PIIPhone},
		{"name requires two tokens", "full_name", types.StringValue("Jane Smith"), types.PIIName},
		{"single token name is not PII", "name", types.StringValue("Madonna"), ""},
		{"non-string value", "customer_email", types.NumberValue(5), ""},
		{"plain string", "note", types.StringValue("hello there"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectPII(tt.fieldName, tt.value))
		})
	}
}

func TestDetectPIIPriorityOrder(t *testing.T) {
	// A field name matching both "email" and "name" classifies as email:
	// the email check runs first.
	got := detectPII("email_name", types.StringValue("Jane Smith"))
	assert.Equal(t, types.PIIEmail, got)
}

func TestInferSchemaIdempotent(t *testing.T) {
	batch := []types.Entry{
		recordEntry(func(r *types.Record) {
			r.Set("customer_email", types.StringValue("a@b.com"))
			r.Set("amount", types.NumberValue(12))
		}),
	}
	hints := map[string]types.FieldType{"amount": types.FieldString}

	first := InferSchema(batch, hints)
	second := InferSchema(batch, hints)
	assert.Equal(t, first, second)
}
