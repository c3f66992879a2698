package types

// FieldType is the inferred primitive type of a record field.
type FieldType string

// Field type constants.
const (
	// FieldNumber is a numeric field.
	FieldNumber FieldType = "number"

	// FieldBoolean is a boolean field.
	FieldBoolean FieldType = "boolean"

	// FieldDate is a date field (a date value, or a string with a
	// recognized date prefix).
	FieldDate FieldType = "date"

	// FieldString is a plain string field.
	FieldString FieldType = "string"

	// FieldUnknown is a field whose type could not be determined
	// (null values, nested structures).
	FieldUnknown FieldType = "unknown"
)

// PIIType classifies the kind of personally identifiable information a
// field carries.
type PIIType string

// PII type constants, in detection priority order.
const (
	PIIEmail      PIIType = "email"
	PIICreditCard PIIType = "credit_card"
	PIISSN        PIIType = "ssn"
	PIIPhone      PIIType = "phone"
	PIIName       PIIType = "name"
)

// FieldSchema describes one field of an inferred schema.
type FieldSchema struct {
	// Name is the field name as it appears in the record.
	Name string `json:"name"`

	// Type is the inferred (or hinted) primitive type.
	Type FieldType `json:"type"`

	// PII is the detected PII category, empty when the field carries none.
	PII PIIType `json:"pii_type,omitempty"`
}

// InferredSchema is the ordered list of field schemas derived from the
// first record of a batch. Field order follows that record's own key order.
type InferredSchema struct {
	Fields []FieldSchema `json:"fields"`
}

// Field returns the schema for the named field; ok is false when the
// schema has no such field.
func (s InferredSchema) Field(name string) (fs FieldSchema, ok bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// IngestionResult is the outcome of running a batch through the ingestion
// pipeline.
type IngestionResult struct {
	// ProcessedData is the batch with PII values redacted. Non-record
	// entries pass through unmodified.
	ProcessedData []Entry `json:"processed_data"`

	// InferredSchema is the schema derived from the first record.
	InferredSchema InferredSchema `json:"inferred_schema"`

	// PIIDetected reports whether any value was redacted.
	PIIDetected bool `json:"pii_detected"`
}
