package types

// ScoreMatrix holds the per-dimension similarity scores behind a
// candidate's confidence. All three dimensions are always reported,
// regardless of which one drove the decision.
type ScoreMatrix struct {
	// Amount is the numeric amount similarity (0.0 to 1.0).
	Amount float64 `json:"amount"`

	// Date is the date proximity score (0.0 to 1.0, zero at >= 7 days).
	Date float64 `json:"date"`

	// Description is the description text similarity (0.0 to 1.0).
	Description float64 `json:"description"`
}

// Candidate is a scored pairing between one source record and one target
// record, proposed as a possible match.
type Candidate struct {
	// SourceID identifies the source-side record.
	SourceID string `json:"source_id"`

	// TargetID identifies the target-side record.
	TargetID string `json:"target_id"`

	// ConfidenceScore is the weighted combination of the dimension scores,
	// normalized to [0, 1]. Returned candidates always exceed 0.5.
	ConfidenceScore float64 `json:"confidence_score"`

	// ScoreMatrix breaks the confidence down by dimension.
	ScoreMatrix ScoreMatrix `json:"score_matrix"`

	// Features is an optional feature vector for model-backed scoring.
	// The deterministic matcher leaves it empty.
	Features []float32 `json:"features,omitempty"`
}

// Severity grades how urgently an anomaly needs human review.
type Severity string

// Severity constants.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyType names the category of a detected anomaly.
type AnomalyType string

// Anomaly type constants.
const (
	// AnomalyDuplicate flags a transaction whose id already appears in the
	// recorded history.
	AnomalyDuplicate AnomalyType = "duplicate"

	// AnomalyAmountMismatch flags a negative, zero, or unusually large
	// amount.
	AnomalyAmountMismatch AnomalyType = "amount_mismatch"

	// AnomalyMissingFields flags a transaction missing required fields.
	AnomalyMissingFields AnomalyType = "missing_fields"

	// AnomalyPatternDeviation flags a transaction deviating from expected
	// patterns (unextractable amount/date, or outside business hours).
	AnomalyPatternDeviation AnomalyType = "pattern_deviation"
)

// Anomaly is a record-level flag indicating a data-quality or
// fraud-relevant irregularity, independent of matching.
type Anomaly struct {
	// Type is the anomaly category.
	Type AnomalyType `json:"type"`

	// Severity grades the anomaly for review prioritization.
	Severity Severity `json:"severity"`

	// Transaction is the offending record, as received.
	Transaction *Record `json:"transaction_data"`

	// Score is the rule's confidence in the flag, when the rule assigns one.
	Score float64 `json:"score,omitempty"`
}
