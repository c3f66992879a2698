package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settlerhq/settler-edge/internal/storage"
	"github.com/settlerhq/settler-edge/internal/storage/sqlite"
	"github.com/settlerhq/settler-edge/pkg/types"
)

func newTestStore(t *testing.T) storage.LocalStore {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCandidate(t *testing.T, store storage.LocalStore, id string) {
	t.Helper()
	require.NoError(t, store.SaveCandidates(context.Background(), []storage.StoredCandidate{{
		ID: id,
		Candidate: types.Candidate{
			SourceID: "t1", TargetID: "t2", ConfidenceScore: 0.8,
		},
		CreatedAt: time.Now(),
	}}))
}

func TestEnroll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edge/enroll", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req EnrollRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "warehouse-3", req.Name)

		json.NewEncoder(w).Encode(EnrollResponse{NodeID: "node-1", NodeKey: "key-abc"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 10)
	resp, err := client.Enroll(context.Background(), EnrollRequest{Name: "warehouse-3"})
	require.NoError(t, err)
	assert.Equal(t, "node-1", resp.NodeID)
	assert.Equal(t, "key-abc", resp.NodeKey)
}

func TestEnrollRejectsIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 10)
	_, err := client.Enroll(context.Background(), EnrollRequest{Name: "warehouse-3"})
	assert.Error(t, err)
}

func TestHeartbeatSendsNodeKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edge/heartbeat", r.URL.Path)
		assert.Equal(t, "Bearer key-abc", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-abc", 10)
	err := client.Heartbeat(context.Background(), HeartbeatRequest{NodeID: "node-1", Status: "active"})
	assert.NoError(t, err)
}

func TestFlushDeliversAndMarksSynced(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()

	seedCandidate(t, store, "cand-1")
	require.NoError(t, store.SaveAnomalies(ctx, []storage.StoredAnomaly{{
		ID: "anom-1",
		Anomaly: types.Anomaly{
			Type:     types.AnomalyAmountMismatch,
			Severity: types.SeverityMedium,
			Score:    0.7,
		},
		CreatedAt: time.Now(),
	}}))
	require.NoError(t, store.Enqueue(ctx, &storage.SyncItem{
		ID:         "q1",
		EntityType: "batch_ingestion",
		EntityID:   "batch-1",
		Action:     "sync",
		Payload:    json.RawMessage(`{"records":[]}`),
		CreatedAt:  time.Now(),
	}))

	syncer := NewSyncer(NewClient(server.URL, "key-abc", 10), store, "node-1")
	require.NoError(t, syncer.Flush(ctx))

	assert.Equal(t, []string{
		"/api/edge/candidate-scores",
		"/api/edge/anomalies",
		"/api/edge/batch-ingestion",
	}, paths)

	unsyncedCands, err := store.UnsyncedCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsyncedCands)

	unsyncedAnoms, err := store.UnsyncedAnomalies(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsyncedAnoms)

	pending, err := store.Pending(ctx, maxRetries, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFlushOfflineSkipsDelivery(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t)
	seedCandidate(t, store, "cand-1")

	syncer := NewSyncer(NewClient(server.URL, "key-abc", 10), store, "node-1")
	syncer.SetOffline(true)
	require.NoError(t, syncer.Flush(context.Background()))

	assert.Equal(t, int64(0), requests.Load())

	unsynced, err := store.UnsyncedCandidates(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1, "offline mode keeps data queued locally")
}

func TestProcessQueueRetriesUntilCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, &storage.SyncItem{
		ID:         "q1",
		EntityType: "anomaly",
		EntityID:   "anom-1",
		Action:     "sync",
		Payload:    json.RawMessage(`{}`),
		CreatedAt:  time.Now(),
	}))

	syncer := NewSyncer(NewClient(server.URL, "key-abc", 10), store, "node-1")
	for i := 0; i < maxRetries; i++ {
		require.NoError(t, syncer.ProcessQueue(ctx))
	}

	// The item has exhausted its attempts and is no longer retried.
	pending, err := store.Pending(ctx, maxRetries, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessQueueUnknownEntityType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, &storage.SyncItem{
		ID:         "q1",
		EntityType: "mystery",
		EntityID:   "x",
		Action:     "sync",
		CreatedAt:  time.Now(),
	}))

	syncer := NewSyncer(NewClient(server.URL, "key-abc", 10), store, "node-1")
	require.NoError(t, syncer.ProcessQueue(ctx))

	// Unknown types count as failed attempts rather than aborting the cycle.
	pending, err := store.Pending(ctx, maxRetries, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Retries)
}

func TestFlushDefersWhenCircuitOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := newTestStore(t)
	ctx := context.Background()
	seedCandidate(t, store, "cand-1")

	client := NewClient(server.URL, "key-abc", 100)
	syncer := NewSyncer(client, store, "node-1")

	// Consecutive failures trip the breaker.
	for i := 0; i < 3; i++ {
		assert.Error(t, syncer.SyncCandidates(ctx))
	}
	assert.Equal(t, "open", client.BreakerState())

	// With the circuit open the cycle defers instead of failing.
	require.NoError(t, syncer.Flush(ctx))

	unsynced, err := store.UnsyncedCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)
}
