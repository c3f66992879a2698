package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an ordered mapping from field name to Value. Field order is
// the order in which fields were first set (for decoded JSON, the key
// order of the source document), which the schema inferencer relies on.
type Record struct {
	keys   []string
	fields map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: make(map[string]Value)}
}

// Set stores a field value. Setting an existing field overwrites its value
// without changing its position.
func (r *Record) Set(name string, v Value) *Record {
	if _, ok := r.fields[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.fields[name] = v
	return r
}

// Get returns the value of a field; ok is false when the field is absent.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Has reports whether the field is present (even if null).
func (r *Record) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// Keys returns the field names in insertion order. The returned slice is a
// copy and may be modified by the caller.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// Clone returns a shallow copy of the record. Values are immutable, so the
// copy shares no mutable state with the original.
func (r *Record) Clone() *Record {
	clone := &Record{
		keys:   make([]string, len(r.keys)),
		fields: make(map[string]Value, len(r.fields)),
	}
	copy(clone.keys, r.keys)
	for k, v := range r.fields {
		clone.fields[k] = v
	}
	return clone
}

// MarshalJSON renders the record as a JSON object preserving field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(r.fields[key])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the record, preserving the key
// order of the document. Duplicate keys keep their first position with the
// last value, matching Set semantics.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object, got %v", tok)
	}

	r.keys = r.keys[:0]
	r.fields = make(map[string]Value)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		val, err := valueFromRaw(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.Set(key, val)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Entry is one element of an input batch: either a record or a bare scalar.
// Non-record entries survive ingestion unmodified and are skipped by the
// matcher and the anomaly detector.
type Entry struct {
	record *Record
	scalar Value
}

// RecordEntry wraps a record as a batch entry.
func RecordEntry(r *Record) Entry { return Entry{record: r} }

// ScalarEntry wraps a bare value as a batch entry.
func ScalarEntry(v Value) Entry { return Entry{scalar: v} }

// Record returns the underlying record; ok is false for scalar entries.
func (e Entry) Record() (rec *Record, ok bool) {
	return e.record, e.record != nil
}

// IsRecord reports whether the entry is a record.
func (e Entry) IsRecord() bool { return e.record != nil }

// Scalar returns the scalar payload of a non-record entry.
func (e Entry) Scalar() Value { return e.scalar }

// MarshalJSON renders the entry as its underlying JSON value.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.record != nil {
		return json.Marshal(e.record)
	}
	return json.Marshal(e.scalar)
}

// UnmarshalJSON decodes a JSON value into either a record (for objects) or
// a scalar entry (for everything else).
func (e *Entry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		rec := NewRecord()
		if err := rec.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		e.record = rec
		e.scalar = Value{}
		return nil
	}

	val, err := valueFromRaw(trimmed)
	if err != nil {
		return err
	}
	e.record = nil
	e.scalar = val
	return nil
}

// DecodeBatch parses a JSON array into a batch of entries.
func DecodeBatch(data []byte) ([]Entry, error) {
	var batch []Entry
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return batch, nil
}
