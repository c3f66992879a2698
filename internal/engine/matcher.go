package engine

import (
	"log"
	"sort"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Matcher generates and scores candidate pairings between two record sets.
//
// Matching is an exhaustive O(|source| x |target|) pairwise pass; the only
// internal bound is the top-100 truncation applied after scoring. Callers
// own the complexity ceiling and must pre-filter or chunk large inputs
// upstream.
type Matcher struct{}

// NewMatcher creates a matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// FindCandidates scores every source/target record pair and returns the
// pairs whose confidence strictly exceeds 0.5, sorted descending by
// confidence and truncated to the top 100. Non-record entries on either
// side are skipped and contribute no pairs.
func (m *Matcher) FindCandidates(source, target []types.Entry) []types.Candidate {
	log.Printf("engine: finding candidates across %d source x %d target records", len(source), len(target))

	candidates := []types.Candidate{}

	for _, s := range source {
		sourceRec, ok := s.Record()
		if !ok {
			continue
		}
		sourceID := ExtractID(sourceRec)

		for _, t := range target {
			targetRec, ok := t.Record()
			if !ok {
				continue
			}

			amountScore := compareAmountFields(sourceRec, targetRec)
			dateScore := compareDateFields(sourceRec, targetRec)
			descScore := compareField(sourceRec, targetRec, "description")
			idScore := compareField(sourceRec, targetRec, "id")

			stringScore := descScore
			if idScore > stringScore {
				stringScore = idScore
			}

			confidence := amountWeight*amountScore +
				dateWeight*dateScore +
				stringWeight*stringScore

			if confidence > matchThreshold {
				candidates = append(candidates, types.Candidate{
					SourceID:        sourceID,
					TargetID:        ExtractID(targetRec),
					ConfidenceScore: confidence,
					ScoreMatrix: types.ScoreMatrix{
						Amount:      amountScore,
						Date:        dateScore,
						Description: descScore,
					},
				})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// compareAmountFields scores the amount dimension of a pair. Either side
// unextractable scores 0.
func compareAmountFields(source, target *types.Record) float64 {
	a, okA := ExtractAmount(source)
	b, okB := ExtractAmount(target)
	if !okA || !okB {
		return 0
	}
	return CompareAmount(a, b)
}

// compareDateFields scores the date dimension of a pair. Either side
// unextractable scores 0.
func compareDateFields(source, target *types.Record) float64 {
	a, okA := ExtractDate(source)
	b, okB := ExtractDate(target)
	if !okA || !okB {
		return 0
	}
	return CompareDate(a, b)
}
