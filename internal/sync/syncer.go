package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdsync "sync"

	"github.com/settlerhq/settler-edge/internal/storage"
)

const (
	// maxRetries is the delivery attempt ceiling for queued items.
	// Items at the ceiling stay in the queue for operator inspection.
	maxRetries = 3

	// batchSize bounds each sync cycle.
	batchSize = 50
)

// Syncer drains locally persisted results to the cloud. It can be
// switched to offline mode, in which case all cycles are no-ops and
// data accumulates locally until the node comes back online.
type Syncer struct {
	client *Client
	store  storage.LocalStore
	nodeID string

	mu      stdsync.RWMutex
	offline bool
}

// NewSyncer creates a syncer for the given node.
func NewSyncer(client *Client, store storage.LocalStore, nodeID string) *Syncer {
	return &Syncer{client: client, store: store, nodeID: nodeID}
}

// SetOffline toggles offline mode.
func (s *Syncer) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// Offline reports whether the syncer is in offline mode.
func (s *Syncer) Offline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offline
}

// Flush runs one full sync cycle: candidates, anomalies, then the
// durable queue. In offline mode it returns immediately. An open
// circuit ends the cycle early without error; everything stays queued.
func (s *Syncer) Flush(ctx context.Context) error {
	if s.Offline() {
		return nil
	}

	for _, step := range []func(context.Context) error{
		s.SyncCandidates,
		s.SyncAnomalies,
		s.ProcessQueue,
	} {
		if err := step(ctx); err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				log.Printf("sync: cloud unreachable, deferring remaining sync")
				return nil
			}
			return err
		}
	}
	return nil
}

// SyncCandidates pushes one batch of unsynced candidates and marks them
// synced on success.
func (s *Syncer) SyncCandidates(ctx context.Context) error {
	candidates, err := s.store.UnsyncedCandidates(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("sync: failed to load unsynced candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	if err := s.client.PushCandidates(ctx, s.nodeID, candidates); err != nil {
		return err
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	if err := s.store.MarkCandidatesSynced(ctx, ids); err != nil {
		return fmt.Errorf("sync: failed to mark candidates synced: %w", err)
	}
	log.Printf("sync: delivered %d candidates", len(candidates))
	return nil
}

// SyncAnomalies pushes one batch of unsynced anomalies and marks them
// synced on success.
func (s *Syncer) SyncAnomalies(ctx context.Context) error {
	anomalies, err := s.store.UnsyncedAnomalies(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("sync: failed to load unsynced anomalies: %w", err)
	}
	if len(anomalies) == 0 {
		return nil
	}

	if err := s.client.PushAnomalies(ctx, s.nodeID, anomalies); err != nil {
		return err
	}

	ids := make([]string, len(anomalies))
	for i, a := range anomalies {
		ids[i] = a.ID
	}
	if err := s.store.MarkAnomaliesSynced(ctx, ids); err != nil {
		return fmt.Errorf("sync: failed to mark anomalies synced: %w", err)
	}
	log.Printf("sync: delivered %d anomalies", len(anomalies))
	return nil
}

// ProcessQueue attempts delivery of pending queue items. Delivered
// items are removed; failed items have their retry counter bumped and
// are retried on later cycles until they hit the ceiling.
func (s *Syncer) ProcessQueue(ctx context.Context) error {
	items, err := s.store.Pending(ctx, maxRetries, batchSize)
	if err != nil {
		return fmt.Errorf("sync: failed to load sync queue: %w", err)
	}

	for _, item := range items {
		err := s.client.PushQueued(ctx, item.EntityType, item.Payload)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				return err
			}
			log.Printf("sync: delivery failed for %s (attempt %d): %v", item.ID, item.Retries+1, err)
			if incErr := s.store.IncrementRetries(ctx, item.ID); incErr != nil {
				return fmt.Errorf("sync: failed to record retry for %s: %w", item.ID, incErr)
			}
			continue
		}
		if err := s.store.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("sync: failed to remove delivered item %s: %w", item.ID, err)
		}
	}
	return nil
}
