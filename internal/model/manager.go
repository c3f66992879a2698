package model

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Config holds the paths of the files a loaded model directory must
// contain.
type Config struct {
	ModelPath     string
	TokenizerPath string
}

// loaderFunc builds a Scorer from a validated model directory.
type loaderFunc func(cfg Config) (Scorer, error)

// Manager owns the current scoring model with thread-safe hot reload.
// A Manager with no healthy model is still usable: Rescore passes
// candidates through unchanged.
type Manager struct {
	mu        sync.RWMutex
	current   Scorer
	directory string
	isHealthy bool
	lastError error

	load loaderFunc
}

// NewManager creates a manager and attempts an initial load from the
// given directory. A failed initial load does not fail construction; the
// manager is simply marked unhealthy and the heuristic scores stand.
// An empty directory skips the initial load entirely.
func NewManager(directory string) *Manager {
	m := &Manager{
		directory: directory,
		load: func(cfg Config) (Scorer, error) {
			return NewONNXScorer(cfg.ModelPath, cfg.TokenizerPath)
		},
	}

	if directory != "" {
		if err := m.Reload(directory); err != nil {
			log.Printf("model: initial load failed, continuing without model: %v", err)
		}
	}
	return m
}

// newManagerWithLoader is used by tests to inject a stub scorer.
func newManagerWithLoader(load loaderFunc) *Manager {
	return &Manager{load: load}
}

// Reload loads the model from a new directory, runs a validation
// inference and swaps it in atomically. The previous model is closed
// after the swap.
func (m *Manager) Reload(directory string) error {
	cfg, err := m.validateDirectory(directory)
	if err != nil {
		m.setUnhealthy(err)
		return fmt.Errorf("model: validation failed: %w", err)
	}

	// Load outside the lock so inference callers are not blocked.
	scorer, err := m.load(cfg)
	if err != nil {
		m.setUnhealthy(err)
		return fmt.Errorf("model: failed to load: %w", err)
	}

	// A validation inference catches models that load but cannot run.
	probe := ScoreInput{
		SourceText: "validation probe",
		TargetText: "validation probe",
		Features:   make([]float32, FeatureDim),
	}
	if _, err := scorer.Score(context.Background(), probe); err != nil {
		if closeErr := scorer.Close(); closeErr != nil {
			log.Printf("model: failed to close rejected scorer: %v", closeErr)
		}
		m.setUnhealthy(err)
		return fmt.Errorf("model: validation inference failed: %w", err)
	}

	m.mu.Lock()
	old := m.current
	m.current = scorer
	m.directory = directory
	m.isHealthy = true
	m.lastError = nil
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("model: failed to close previous scorer: %v", err)
		}
	}

	log.Printf("model: reload complete for directory %s", directory)
	return nil
}

// Rescore refines candidate confidences with the current model. When no
// healthy model is loaded the candidates are returned unchanged. A
// failed inference for one candidate keeps that candidate's heuristic
// score rather than failing the batch.
func (m *Manager) Rescore(ctx context.Context, candidates []types.Candidate) []types.Candidate {
	m.mu.RLock()
	scorer := m.current
	healthy := m.isHealthy
	m.mu.RUnlock()

	if !healthy || scorer == nil {
		return candidates
	}

	for i := range candidates {
		features := candidates[i].Features
		if len(features) != FeatureDim {
			features = FeatureVector(candidates[i])
		}
		score, err := scorer.Score(ctx, ScoreInput{
			SourceText: candidates[i].SourceID,
			TargetText: candidates[i].TargetID,
			Features:   features,
		})
		if err != nil {
			log.Printf("model: rescore failed for %s/%s, keeping heuristic score: %v",
				candidates[i].SourceID, candidates[i].TargetID, err)
			continue
		}
		candidates[i].ConfidenceScore = float64(score)
	}
	return candidates
}

// IsHealthy reports whether a usable model is loaded.
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthy
}

// LastError returns the most recent load error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Info describes the current model state for status reporting.
func (m *Manager) Info() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := map[string]interface{}{
		"directory": m.directory,
		"healthy":   m.isHealthy,
	}
	if m.lastError != nil {
		info["error"] = m.lastError.Error()
	}
	return info
}

// Close releases the current model.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	m.isHealthy = false
	return err
}

func (m *Manager) setUnhealthy(err error) {
	m.mu.Lock()
	m.isHealthy = false
	m.lastError = err
	m.mu.Unlock()
}

// validateDirectory checks that the directory contains the model and
// tokenizer files.
func (m *Manager) validateDirectory(directory string) (Config, error) {
	cfg := Config{
		ModelPath:     filepath.Join(directory, "model.onnx"),
		TokenizerPath: filepath.Join(directory, "tokenizer.json"),
	}

	for _, path := range []string{cfg.ModelPath, cfg.TokenizerPath} {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("missing model file %s: %w", path, err)
		}
	}
	return cfg, nil
}
