package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Pipeline runs schema inference and PII redaction over a record batch.
type Pipeline struct {
	redactor Redactor
}

// NewPipeline creates an ingestion pipeline using the given redactor.
func NewPipeline(redactor Redactor) *Pipeline {
	return &Pipeline{redactor: redactor}
}

// Process infers the batch schema and redacts every non-empty value of a
// field classified as PII. Redacted records are shallow clones; the input
// batch and its records are never mutated. Non-record entries pass through
// unmodified. A redactor failure aborts processing and propagates.
func (p *Pipeline) Process(ctx context.Context, records []types.Entry, hints map[string]types.FieldType) (*types.IngestionResult, error) {
	log.Printf("engine: processing ingestion batch of %d records", len(records))

	schema := InferSchema(records, hints)

	piiFields := make([]types.FieldSchema, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		if field.PII != "" {
			piiFields = append(piiFields, field)
		}
	}

	piiDetected := false
	processed := make([]types.Entry, len(records))

	for i, entry := range records {
		rec, ok := entry.Record()
		if !ok {
			processed[i] = entry
			continue
		}

		if len(piiFields) == 0 {
			processed[i] = entry
			continue
		}

		clone := rec.Clone()
		for _, field := range piiFields {
			value, present := clone.Get(field.Name)
			if !present || value.IsNull() {
				continue
			}
			text := value.Text()
			if text == "" {
				continue
			}

			piiDetected = true
			redacted, err := p.redactor.Redact(ctx, text, field.PII)
			if err != nil {
				return nil, fmt.Errorf("failed to redact field %q: %w", field.Name, err)
			}
			clone.Set(field.Name, types.StringValue(redacted))
		}
		processed[i] = types.RecordEntry(clone)
	}

	return &types.IngestionResult{
		ProcessedData:  processed,
		InferredSchema: schema,
		PIIDetected:    piiDetected,
	}, nil
}
