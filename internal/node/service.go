// Package node wires the reconciliation engine, local storage, model
// manager and cloud sync into one edge node service.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/settlerhq/settler-edge/internal/config"
	"github.com/settlerhq/settler-edge/internal/engine"
	"github.com/settlerhq/settler-edge/internal/model"
	"github.com/settlerhq/settler-edge/internal/redact"
	"github.com/settlerhq/settler-edge/internal/storage"
	"github.com/settlerhq/settler-edge/internal/storage/postgres"
	"github.com/settlerhq/settler-edge/internal/storage/sqlite"
	cloudsync "github.com/settlerhq/settler-edge/internal/sync"
	"github.com/settlerhq/settler-edge/pkg/types"
)

// Job type names recorded in the local job log.
const (
	jobIngestion        = "ingestion"
	jobMatching         = "matching"
	jobAnomalyDetection = "anomaly_detection"
)

// Service is one running edge node.
type Service struct {
	cfg      *config.Config
	store    storage.LocalStore
	pipeline *engine.Pipeline
	matcher  *engine.Matcher
	detector *engine.Detector
	redactor *redact.TokenRedactor
	models   *model.Manager
	client   *cloudsync.Client
	syncer   *cloudsync.Syncer

	mu       stdsync.RWMutex
	identity *config.Identity

	sentryEnabled bool
	cancel        context.CancelFunc
	wg            stdsync.WaitGroup
}

// New builds a service from configuration. The local store is opened,
// the model directory loaded (when configured) and the persisted node
// identity read, but nothing starts running until Start.
func New(cfg *config.Config) (*Service, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	identity, err := cfg.LoadIdentity()
	if err != nil {
		store.Close()
		return nil, err
	}

	nodeKey := ""
	nodeID := ""
	if identity != nil {
		nodeKey = identity.NodeKey
		nodeID = identity.NodeID
	}

	client := cloudsync.NewClient(cfg.Cloud.BaseURL, nodeKey, cfg.Cloud.RequestsPerSecond)
	syncer := cloudsync.NewSyncer(client, store, nodeID)
	syncer.SetOffline(cfg.Cloud.Offline)

	redactor := redact.NewTokenRedactor(cfg.Redaction.Salt)

	s := &Service{
		cfg:      cfg,
		store:    store,
		pipeline: engine.NewPipeline(redactor),
		matcher:  engine.NewMatcher(),
		detector: engine.NewDetector(store),
		redactor: redactor,
		models:   model.NewManager(cfg.Model.Directory),
		client:   client,
		syncer:   syncer,
		identity: identity,
	}

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		})
		if err != nil {
			log.Printf("node: sentry init failed, error reporting disabled: %v", err)
		} else {
			s.sentryEnabled = true
		}
	}

	return s, nil
}

func openStore(cfg *config.Config) (storage.LocalStore, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	default:
		return sqlite.New(cfg.Storage.SQLitePath)
	}
}

// Enroll registers this node with the control plane and persists the
// assigned identity. Enrolling an already enrolled node is a no-op.
func (s *Service) Enroll(ctx context.Context) error {
	s.mu.RLock()
	enrolled := s.identity != nil
	s.mu.RUnlock()
	if enrolled {
		log.Printf("node: already enrolled as %s", s.NodeID())
		return nil
	}

	resp, err := s.client.Enroll(ctx, cloudsync.EnrollRequest{
		Name:   s.cfg.Node.Name,
		Region: s.cfg.Node.Region,
	})
	if err != nil {
		return err
	}

	identity := &config.Identity{NodeID: resp.NodeID, NodeKey: resp.NodeKey}
	if err := s.cfg.SaveIdentity(identity); err != nil {
		return err
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	s.client.SetNodeKey(resp.NodeKey)
	s.syncer = cloudsync.NewSyncer(s.client, s.store, resp.NodeID)
	s.syncer.SetOffline(s.cfg.Cloud.Offline)

	log.Printf("node: enrolled as %s", resp.NodeID)
	return nil
}

// NodeID returns the assigned node ID, or "" before enrollment.
func (s *Service) NodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.NodeID
}

// Start launches the heartbeat and sync loops. An unenrolled node may
// only start in offline mode.
func (s *Service) Start(ctx context.Context) error {
	if s.NodeID() == "" && !s.syncer.Offline() {
		return fmt.Errorf("node: not enrolled; run enroll first or start in offline mode")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if !s.syncer.Offline() {
		s.wg.Add(1)
		go s.heartbeatLoop(runCtx)
	}

	s.wg.Add(1)
	go s.syncLoop(runCtx)

	log.Printf("node: started (offline=%v)", s.syncer.Offline())
	return nil
}

// Stop shuts down the background loops, attempts a final sync and
// releases resources.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.syncer.Flush(ctx); err != nil {
		log.Printf("node: final sync failed, data remains queued: %v", err)
	}

	if err := s.models.Close(); err != nil {
		log.Printf("node: failed to close model: %v", err)
	}
	if s.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
	return s.store.Close()
}

func (s *Service) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Cloud.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sendHeartbeat(ctx); err != nil {
				s.captureError(fmt.Errorf("heartbeat failed: %w", err))
			}
		}
	}
}

func (s *Service) sendHeartbeat(ctx context.Context) error {
	jobs, err := s.store.CountJobs(ctx)
	if err != nil {
		return err
	}
	pending, err := s.store.Pending(ctx, 3, 1000)
	if err != nil {
		return err
	}
	return s.client.Heartbeat(ctx, cloudsync.HeartbeatRequest{
		NodeID:     s.NodeID(),
		Status:     "active",
		JobCount:   jobs,
		QueueDepth: len(pending),
	})
}

func (s *Service) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Cloud.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.syncer.Flush(ctx); err != nil {
				s.captureError(fmt.Errorf("sync cycle failed: %w", err))
			}
		}
	}
}

// ProcessIngestion runs the ingestion pipeline on a serialized batch:
// schema inference, PII redaction, local job recording and queueing of
// the redacted batch for cloud delivery.
func (s *Service) ProcessIngestion(ctx context.Context, data []byte) (*types.IngestionResult, error) {
	entries, err := types.DecodeBatch(data)
	if err != nil {
		return nil, fmt.Errorf("node: invalid ingestion batch: %w", err)
	}

	jobID, err := s.beginJob(ctx, jobIngestion, data)
	if err != nil {
		return nil, err
	}

	result, err := s.pipeline.Process(ctx, entries, s.schemaHints())
	if err != nil {
		s.failJob(ctx, jobID, err)
		return nil, err
	}

	output, err := json.Marshal(result)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return nil, fmt.Errorf("node: failed to serialize ingestion result: %w", err)
	}
	if err := s.store.UpdateJob(ctx, jobID, storage.JobCompleted, output); err != nil {
		return nil, err
	}

	// The redacted batch goes through the durable queue so delivery
	// survives restarts and offline periods.
	payload, err := json.Marshal(map[string]interface{}{
		"node_id": s.NodeID(),
		"job_id":  jobID,
		"result":  result,
	})
	if err != nil {
		return nil, fmt.Errorf("node: failed to serialize sync payload: %w", err)
	}
	err = s.store.Enqueue(ctx, &storage.SyncItem{
		ID:         uuid.NewString(),
		EntityType: "batch_ingestion",
		EntityID:   jobID,
		Action:     "sync",
		Payload:    payload,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ProcessMatching scores source transactions against target
// transactions, refines confidences with the model when one is loaded,
// and persists the surviving candidates for review and sync.
func (s *Service) ProcessMatching(ctx context.Context, sourceData, targetData []byte) ([]types.Candidate, error) {
	source, err := types.DecodeBatch(sourceData)
	if err != nil {
		return nil, fmt.Errorf("node: invalid source batch: %w", err)
	}
	target, err := types.DecodeBatch(targetData)
	if err != nil {
		return nil, fmt.Errorf("node: invalid target batch: %w", err)
	}

	input, err := json.Marshal(map[string]json.RawMessage{
		"source": sourceData,
		"target": targetData,
	})
	if err != nil {
		return nil, fmt.Errorf("node: failed to serialize matching input: %w", err)
	}
	jobID, err := s.beginJob(ctx, jobMatching, input)
	if err != nil {
		return nil, err
	}

	candidates := s.matcher.FindCandidates(source, target)
	for i := range candidates {
		candidates[i].Features = model.FeatureVector(candidates[i])
	}
	candidates = s.models.Rescore(ctx, candidates)

	stored := make([]storage.StoredCandidate, len(candidates))
	now := time.Now()
	for i, c := range candidates {
		stored[i] = storage.StoredCandidate{
			ID:        uuid.NewString(),
			Candidate: c,
			CreatedAt: now,
		}
	}
	if err := s.store.SaveCandidates(ctx, stored); err != nil {
		s.failJob(ctx, jobID, err)
		return nil, err
	}

	output, err := json.Marshal(map[string]int{"candidates": len(candidates)})
	if err != nil {
		return nil, fmt.Errorf("node: failed to serialize matching result: %w", err)
	}
	if err := s.store.UpdateJob(ctx, jobID, storage.JobCompleted, output); err != nil {
		return nil, err
	}

	return candidates, nil
}

// DetectAnomalies runs the rule-based detector on a serialized batch and
// persists any flags for review and sync.
func (s *Service) DetectAnomalies(ctx context.Context, data []byte) ([]types.Anomaly, error) {
	entries, err := types.DecodeBatch(data)
	if err != nil {
		return nil, fmt.Errorf("node: invalid anomaly batch: %w", err)
	}

	jobID, err := s.beginJob(ctx, jobAnomalyDetection, data)
	if err != nil {
		return nil, err
	}

	anomalies, err := s.detector.Detect(ctx, entries)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return nil, err
	}

	stored := make([]storage.StoredAnomaly, len(anomalies))
	now := time.Now()
	for i, a := range anomalies {
		stored[i] = storage.StoredAnomaly{
			ID:        uuid.NewString(),
			Anomaly:   a,
			CreatedAt: now,
		}
	}
	if err := s.store.SaveAnomalies(ctx, stored); err != nil {
		s.failJob(ctx, jobID, err)
		return nil, err
	}

	output, err := json.Marshal(map[string]int{"anomalies": len(anomalies)})
	if err != nil {
		return nil, fmt.Errorf("node: failed to serialize detection result: %w", err)
	}
	if err := s.store.UpdateJob(ctx, jobID, storage.JobCompleted, output); err != nil {
		return nil, err
	}

	return anomalies, nil
}

// Status reports the node's current state.
func (s *Service) Status(ctx context.Context) (map[string]interface{}, error) {
	jobs, err := s.store.CountJobs(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.Pending(ctx, 3, 1000)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"node_id":     s.NodeID(),
		"enrolled":    s.NodeID() != "",
		"offline":     s.syncer.Offline(),
		"jobs":        jobs,
		"queue_depth": len(pending),
		"breaker":     s.client.BreakerState(),
		"model":       s.models.Info(),
	}, nil
}

// Flush runs one sync cycle immediately.
func (s *Service) Flush(ctx context.Context) error {
	return s.syncer.Flush(ctx)
}

func (s *Service) beginJob(ctx context.Context, jobType string, input json.RawMessage) (string, error) {
	jobID := uuid.NewString()
	err := s.store.CreateJob(ctx, &storage.Job{
		ID:     jobID,
		Type:   jobType,
		Status: storage.JobRunning,
		Input:  input,
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	output, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		output = nil
	}
	if err := s.store.UpdateJob(ctx, jobID, storage.JobFailed, output); err != nil {
		log.Printf("node: failed to record job failure for %s: %v", jobID, err)
	}
	s.captureError(cause)
}

func (s *Service) schemaHints() map[string]types.FieldType {
	if len(s.cfg.SchemaHints) == 0 {
		return nil
	}
	hints := make(map[string]types.FieldType, len(s.cfg.SchemaHints))
	for field, typ := range s.cfg.SchemaHints {
		hints[field] = types.FieldType(typ)
	}
	return hints
}

func (s *Service) captureError(err error) {
	log.Printf("node: %v", err)
	if s.sentryEnabled {
		sentry.CaptureException(err)
	}
}
