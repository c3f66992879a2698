// Package engine implements the deterministic reconciliation core: schema
// inference with PII classification, PII-aware ingestion, pairwise candidate
// matching, and rule-based anomaly detection.
//
// All four operations are synchronous, CPU-bound computations over
// in-memory batches. The engine holds no state across calls; the only
// collaborators are the injected Redactor and DuplicateStore, whose
// failures propagate to the caller unmasked.
package engine

import (
	"context"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Redactor replaces a PII value with a redacted representation. It must be
// total for well-formed string input; it may be non-deterministic (for
// example, salted tokenization).
type Redactor interface {
	Redact(ctx context.Context, value string, pii types.PIIType) (string, error)
}

// DuplicateStore is an append-only history of previously processed anomaly
// records, owned and populated by the caller. The engine only queries it.
type DuplicateStore interface {
	// CountMatchesContaining returns how many recorded entries contain the
	// given id as a substring of their serialized transaction data.
	CountMatchesContaining(ctx context.Context, idSubstring string) (int, error)
}

// Fixed weights of the reference scoring algorithm. They sum to 1.0.
const (
	amountWeight = 0.4
	dateWeight   = 0.3
	stringWeight = 0.3
)

const (
	// matchThreshold is the strict lower bound a pair must exceed to
	// become a candidate.
	matchThreshold = 0.5

	// maxCandidates caps the returned candidate list after sorting.
	maxCandidates = 100
)
