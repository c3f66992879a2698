package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Required fields for the missing-fields check. A field counts as missing
// when absent, null, or the empty string.
var requiredFields = []string{"id", "amount", "date"}

// Detector classifies individual records into anomaly categories,
// independent of matching. The duplicate check reads the injected
// DuplicateStore; the detector never writes to it.
type Detector struct {
	dupes DuplicateStore
}

// NewDetector creates an anomaly detector backed by the given duplicate
// history store.
func NewDetector(dupes DuplicateStore) *Detector {
	return &Detector{dupes: dupes}
}

// Detect runs four independent, non-exclusive checks over each record:
// duplicate id, anomalous amount, missing required fields, and pattern
// deviation. A single record may therefore yield up to four anomalies.
// Non-record entries are skipped. A store failure aborts detection and
// propagates.
func (d *Detector) Detect(ctx context.Context, records []types.Entry) ([]types.Anomaly, error) {
	log.Printf("engine: detecting anomalies in %d records", len(records))

	anomalies := []types.Anomaly{}

	for _, entry := range records {
		rec, ok := entry.Record()
		if !ok {
			continue
		}

		dup, err := d.checkDuplicate(ctx, rec)
		if err != nil {
			return nil, err
		}
		if dup {
			anomalies = append(anomalies, types.Anomaly{
				Type:        types.AnomalyDuplicate,
				Severity:    types.SeverityMedium,
				Transaction: rec,
				Score:       0.8,
			})
		}

		if severity, score, flagged := checkAmount(rec); flagged {
			anomalies = append(anomalies, types.Anomaly{
				Type:        types.AnomalyAmountMismatch,
				Severity:    severity,
				Transaction: rec,
				Score:       score,
			})
		}

		if missing := missingFields(rec); len(missing) > 0 {
			severity := types.SeverityMedium
			if len(missing) > 2 {
				severity = types.SeverityHigh
			}
			anomalies = append(anomalies, types.Anomaly{
				Type:        types.AnomalyMissingFields,
				Severity:    severity,
				Transaction: rec,
				Score:       0.6,
			})
		}

		if score, flagged := checkPattern(rec); flagged {
			anomalies = append(anomalies, types.Anomaly{
				Type:        types.AnomalyPatternDeviation,
				Severity:    types.SeverityLow,
				Transaction: rec,
				Score:       score,
			})
		}
	}

	return anomalies, nil
}

// checkDuplicate reports whether the record's id appears more than once in
// the recorded history. Records without an id are never duplicates.
func (d *Detector) checkDuplicate(ctx context.Context, rec *types.Record) (bool, error) {
	id := ExtractID(rec)
	if id == "" {
		return false, nil
	}

	count, err := d.dupes.CountMatchesContaining(ctx, id)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup for id %q failed: %w", id, err)
	}
	return count > 1, nil
}

// checkAmount evaluates the amount rules in order; the first match wins.
// Negative amounts may be legitimate refunds but are flagged for review.
func checkAmount(rec *types.Record) (severity types.Severity, score float64, flagged bool) {
	amount, ok := ExtractAmount(rec)
	if !ok {
		return "", 0, false
	}

	switch {
	case amount < 0:
		return types.SeverityMedium, 0.7, true
	case amount > 100000:
		return types.SeverityHigh, 0.8, true
	case amount == 0:
		return types.SeverityLow, 0.5, true
	default:
		return "", 0, false
	}
}

// missingFields returns which required fields are absent, null, or empty.
func missingFields(rec *types.Record) []string {
	var missing []string
	for _, field := range requiredFields {
		v, ok := rec.Get(field)
		if !ok || v.IsNull() {
			missing = append(missing, field)
			continue
		}
		if s, isStr := v.AsString(); isStr && s == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// checkPattern flags records whose amount or date cannot be extracted
// (score 0.6), or whose date falls outside business hours, before 06:00 or
// after 22:59 (score 0.4).
func checkPattern(rec *types.Record) (score float64, flagged bool) {
	_, amountOK := ExtractAmount(rec)
	date, dateOK := ExtractDate(rec)

	if !amountOK || !dateOK {
		return 0.6, true
	}

	hour := date.Hour()
	if hour < 6 || hour > 22 {
		return 0.4, true
	}
	return 0, false
}
