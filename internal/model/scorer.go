package model

import "context"

// ScoreInput is one candidate pairing presented to the scoring model.
type ScoreInput struct {
	// SourceText and TargetText are the free-text descriptions of the
	// paired transactions.
	SourceText string
	TargetText string

	// Features is the heuristic feature vector (FeatureDim long).
	Features []float32
}

// Scorer produces a refined match confidence for a candidate pairing.
type Scorer interface {
	// Score returns a confidence in [0, 1].
	Score(ctx context.Context, input ScoreInput) (float32, error)

	// Close releases model resources.
	Close() error
}
