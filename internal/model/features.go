// Package model manages the optional ONNX match-scoring model: feature
// extraction from candidates, inference sessions and thread-safe hot
// reload of downloaded model files. When no model is loaded the engine's
// heuristic confidence stands on its own.
package model

import "github.com/settlerhq/settler-edge/pkg/types"

// FeatureDim is the length of the candidate feature vector.
const FeatureDim = 4

// FeatureVector builds the model input for a candidate: the three
// per-dimension similarity scores followed by the heuristic confidence.
func FeatureVector(c types.Candidate) []float32 {
	return []float32{
		float32(c.ScoreMatrix.Amount),
		float32(c.ScoreMatrix.Date),
		float32(c.ScoreMatrix.Description),
		float32(c.ConfidenceScore),
	}
}
