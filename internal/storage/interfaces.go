// Package storage provides composable storage interfaces for the edge
// node's local state: processed jobs, match candidates, anomalies and the
// cloud sync queue.
//
// The interfaces are small and focused so backends can implement them
// independently; LocalStore composes them for callers that need the full
// surface. Two backends exist: SQLite (the default, embedded) and
// PostgreSQL (for nodes sharing a local database).
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/settlerhq/settler-edge/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// JobStatus is the lifecycle state of a locally processed job.
type JobStatus string

// Job status constants.
const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job records one engine invocation: its input, output and outcome.
type Job struct {
	// ID is the job's unique identifier.
	ID string

	// Type names the operation: "ingestion", "matching" or "anomaly_detection".
	Type string

	// Status is the job's lifecycle state.
	Status JobStatus

	// Input is the serialized input batch.
	Input json.RawMessage

	// Output is the serialized result, or the serialized error on failure.
	Output json.RawMessage

	// CreatedAt and UpdatedAt track the job lifecycle.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredCandidate is a match candidate persisted for review and cloud sync.
type StoredCandidate struct {
	// ID is the locally assigned identifier.
	ID string

	// Candidate is the scored pairing as produced by the matcher.
	Candidate types.Candidate

	// Synced reports whether the candidate has been delivered to the cloud.
	Synced bool

	// CreatedAt is the local persistence time.
	CreatedAt time.Time
}

// StoredAnomaly is a detected anomaly persisted for review and cloud sync.
// Persisted anomalies also form the duplicate-detection history the
// engine's duplicate check queries.
type StoredAnomaly struct {
	// ID is the locally assigned identifier.
	ID string

	// Anomaly is the flag as produced by the detector.
	Anomaly types.Anomaly

	// Synced reports whether the anomaly has been delivered to the cloud.
	Synced bool

	// CreatedAt is the local persistence time.
	CreatedAt time.Time
}

// SyncItem is one pending entry of the cloud sync queue.
type SyncItem struct {
	// ID is the queue entry identifier.
	ID string

	// EntityType routes the payload to its cloud endpoint
	// (e.g. "batch_ingestion").
	EntityType string

	// EntityID identifies the entity the payload describes.
	EntityID string

	// Action is the sync action; currently always "sync".
	Action string

	// Payload is the serialized sync body.
	Payload json.RawMessage

	// Retries counts failed delivery attempts.
	Retries int

	// CreatedAt orders queue processing.
	CreatedAt time.Time
}

// JobStore persists the lifecycle of engine invocations.
type JobStore interface {
	// CreateJob inserts a new job row.
	CreateJob(ctx context.Context, job *Job) error

	// UpdateJob sets the status and output of an existing job.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, id string, status JobStatus, output json.RawMessage) error

	// GetJob retrieves a job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*Job, error)

	// CountJobs returns the total number of recorded jobs.
	CountJobs(ctx context.Context) (int, error)
}

// CandidateStore persists match candidates pending cloud sync.
type CandidateStore interface {
	// SaveCandidates inserts a batch of candidates.
	SaveCandidates(ctx context.Context, candidates []StoredCandidate) error

	// UnsyncedCandidates returns up to limit candidates not yet synced,
	// oldest first.
	UnsyncedCandidates(ctx context.Context, limit int) ([]StoredCandidate, error)

	// MarkCandidatesSynced flags the given candidates as delivered.
	MarkCandidatesSynced(ctx context.Context, ids []string) error
}

// AnomalyStore persists anomalies pending cloud sync and serves the
// duplicate-history lookups of the anomaly detector.
type AnomalyStore interface {
	// SaveAnomalies inserts a batch of anomalies.
	SaveAnomalies(ctx context.Context, anomalies []StoredAnomaly) error

	// UnsyncedAnomalies returns up to limit anomalies not yet synced,
	// oldest first.
	UnsyncedAnomalies(ctx context.Context, limit int) ([]StoredAnomaly, error)

	// MarkAnomaliesSynced flags the given anomalies as delivered.
	MarkAnomaliesSynced(ctx context.Context, ids []string) error

	// CountMatchesContaining returns how many recorded anomalies contain
	// the given id as a substring of their serialized transaction data.
	// This implements the engine's DuplicateStore contract.
	CountMatchesContaining(ctx context.Context, idSubstring string) (int, error)
}

// SyncQueue persists pending cloud deliveries that are not candidates or
// anomalies (e.g. ingestion batches).
type SyncQueue interface {
	// Enqueue appends an item to the queue.
	Enqueue(ctx context.Context, item *SyncItem) error

	// Pending returns up to limit items with fewer than maxRetries failed
	// attempts, oldest first.
	Pending(ctx context.Context, maxRetries, limit int) ([]SyncItem, error)

	// Delete removes a delivered item.
	Delete(ctx context.Context, id string) error

	// IncrementRetries bumps the retry counter of a failed item.
	IncrementRetries(ctx context.Context, id string) error
}

// LocalStore composes the full local persistence surface of an edge node.
type LocalStore interface {
	JobStore
	CandidateStore
	AnomalyStore
	SyncQueue

	// Close releases any resources held by the store.
	Close() error
}
