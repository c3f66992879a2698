package engine

import (
	"regexp"
	"strings"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Date prefix patterns recognized during type inference.
var (
	isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	usDatePrefix  = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`)
)

// PII value patterns, checked against string field values.
var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	creditCardPattern = regexp.MustCompile(`^\d{4}-?\d{4}-?\d{4}-?\d{4}$`)
	ssnPattern        = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	phonePattern      = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
	whitespace        = regexp.MustCompile(`\s`)
)

// InferSchema derives a schema from the first record of a batch. It never
// inspects subsequent records, so callers that need batch-wide sampling
// must normalize upstream. An empty batch, or a batch whose first entry is
// not a record, yields an empty schema.
//
// Hints override type inference verbatim for the named fields. PII
// classification always runs, hint or not, and applies only to
// string-valued fields.
func InferSchema(records []types.Entry, hints map[string]types.FieldType) types.InferredSchema {
	if len(records) == 0 {
		return types.InferredSchema{}
	}

	first, ok := records[0].Record()
	if !ok {
		return types.InferredSchema{}
	}

	fields := make([]types.FieldSchema, 0, first.Len())
	for _, key := range first.Keys() {
		value, _ := first.Get(key)

		fieldType, hinted := hints[key]
		if !hinted {
			fieldType = inferType(value)
		}

		fields = append(fields, types.FieldSchema{
			Name: key,
			Type: fieldType,
			PII:  detectPII(key, value),
		})
	}

	return types.InferredSchema{Fields: fields}
}

// inferType maps a runtime value to a field type.
func inferType(v types.Value) types.FieldType {
	switch v.Kind() {
	case types.KindNumber:
		return types.FieldNumber
	case types.KindBool:
		return types.FieldBoolean
	case types.KindDate:
		return types.FieldDate
	case types.KindString:
		s, _ := v.AsString()
		if isoDatePrefix.MatchString(s) || usDatePrefix.MatchString(s) {
			return types.FieldDate
		}
		return types.FieldString
	default:
		return types.FieldUnknown
	}
}

// detectPII classifies a string field's PII category. Checks run in a
// fixed priority order and the first match wins; non-string values never
// classify.
func detectPII(fieldName string, v types.Value) types.PIIType {
	value, ok := v.AsString()
	if !ok {
		return ""
	}

	lowerName := strings.ToLower(fieldName)

	if strings.Contains(lowerName, "email") || emailPattern.MatchString(value) {
		return types.PIIEmail
	}

	if strings.Contains(lowerName, "card") ||
		creditCardPattern.MatchString(whitespace.ReplaceAllString(value, "")) {
		return types.PIICreditCard
	}

	if strings.Contains(lowerName, "ssn") || ssnPattern.MatchString(value) {
		return types.PIISSN
	}

	if strings.Contains(lowerName, "phone") || phonePattern.MatchString(value) {
		return types.PIIPhone
	}

	if strings.Contains(lowerName, "name") && len(strings.Split(value, " ")) >= 2 {
		return types.PIIName
	}

	return ""
}
