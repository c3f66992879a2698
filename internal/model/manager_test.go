package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlerhq/settler-edge/pkg/types"
)

type stubScorer struct {
	score   float32
	err     error
	closed  bool
	samples []ScoreInput
}

func (s *stubScorer) Score(_ context.Context, input ScoreInput) (float32, error) {
	s.samples = append(s.samples, input)
	return s.score, s.err
}

func (s *stubScorer) Close() error {
	s.closed = true
	return nil
}

// modelDir creates a directory with placeholder model files so directory
// validation passes.
func modelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("stub"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte("{}"), 0o644))
	return dir
}

func TestFeatureVector(t *testing.T) {
	c := types.Candidate{
		ConfidenceScore: 0.85,
		ScoreMatrix:     types.ScoreMatrix{Amount: 1, Date: 0.5, Description: 0.75},
	}

	features := FeatureVector(c)
	require.Len(t, features, FeatureDim)
	assert.Equal(t, []float32{1, 0.5, 0.75, 0.85}, features)
}

func TestReloadSwapsScorer(t *testing.T) {
	first := &stubScorer{score: 0.9}
	second := &stubScorer{score: 0.4}
	scorers := []*stubScorer{first, second}

	i := 0
	m := newManagerWithLoader(func(cfg Config) (Scorer, error) {
		s := scorers[i]
		i++
		return s, nil
	})

	dir := modelDir(t)
	require.NoError(t, m.Reload(dir))
	assert.True(t, m.IsHealthy())
	assert.NoError(t, m.LastError())

	require.NoError(t, m.Reload(dir))
	assert.True(t, first.closed, "previous scorer should be closed after swap")
	assert.False(t, second.closed)
}

func TestReloadMissingFiles(t *testing.T) {
	m := newManagerWithLoader(func(cfg Config) (Scorer, error) {
		t.Fatal("loader should not run when validation fails")
		return nil, nil
	})

	err := m.Reload(t.TempDir())
	require.Error(t, err)
	assert.False(t, m.IsHealthy())
	assert.Error(t, m.LastError())
}

func TestReloadRejectsFailingModel(t *testing.T) {
	bad := &stubScorer{err: errors.New("inference broken")}
	m := newManagerWithLoader(func(cfg Config) (Scorer, error) {
		return bad, nil
	})

	err := m.Reload(modelDir(t))
	require.Error(t, err)
	assert.True(t, bad.closed, "rejected scorer should be closed")
	assert.False(t, m.IsHealthy())
}

func TestRescoreWithoutModelPassesThrough(t *testing.T) {
	m := newManagerWithLoader(nil)

	in := []types.Candidate{{SourceID: "a", TargetID: "b", ConfidenceScore: 0.7}}
	out := m.Rescore(context.Background(), in)
	assert.Equal(t, in, out)
}

func TestRescoreUpdatesConfidence(t *testing.T) {
	stub := &stubScorer{score: 0.95}
	m := newManagerWithLoader(func(cfg Config) (Scorer, error) { return stub, nil })
	require.NoError(t, m.Reload(modelDir(t)))

	candidates := []types.Candidate{{
		SourceID:        "t1",
		TargetID:        "t2",
		ConfidenceScore: 0.6,
		ScoreMatrix:     types.ScoreMatrix{Amount: 0.8, Date: 0.5, Description: 0.4},
	}}

	out := m.Rescore(context.Background(), candidates)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.95, out[0].ConfidenceScore, 1e-6)

	// The validation probe plus the rescore call.
	require.Len(t, stub.samples, 2)
	assert.Equal(t, []float32{0.8, 0.5, 0.4, 0.6}, stub.samples[1].Features)
}

func TestRescoreKeepsHeuristicOnError(t *testing.T) {
	stub := &stubScorer{score: 0.2}
	m := newManagerWithLoader(func(cfg Config) (Scorer, error) { return stub, nil })
	require.NoError(t, m.Reload(modelDir(t)))

	stub.err = errors.New("runtime gone")
	out := m.Rescore(context.Background(), []types.Candidate{{
		SourceID: "t1", TargetID: "t2", ConfidenceScore: 0.66,
	}})
	require.Len(t, out, 1)
	assert.InDelta(t, 0.66, out[0].ConfidenceScore, 1e-9)
}

func TestInfo(t *testing.T) {
	m := newManagerWithLoader(func(cfg Config) (Scorer, error) {
		return &stubScorer{}, nil
	})
	require.NoError(t, m.Reload(modelDir(t)))

	info := m.Info()
	assert.Equal(t, true, info["healthy"])
	assert.NotEmpty(t, info["directory"])
}
