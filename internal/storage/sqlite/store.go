// Package sqlite provides the embedded SQLite implementation of the edge
// node's local store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/settlerhq/settler-edge/internal/storage"
	"github.com/settlerhq/settler-edge/pkg/types"
)

// Store implements storage.LocalStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite-backed local store at the given DSN and
// applies the schema. Use ":memory:" for an ephemeral store in tests.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode lets readers proceed without blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job *storage.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job with an ID is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_jobs (id, job_type, status, input_data, output_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, string(job.Status),
		nullableText(job.Input), nullableText(job.Output),
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert job: %w", err)
	}
	return nil
}

// UpdateJob sets the status and output of an existing job.
func (s *Store) UpdateJob(ctx context.Context, id string, status storage.JobStatus, output json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE local_jobs SET status = ?, output_data = ?, updated_at = ?
		WHERE id = ?`,
		string(status), nullableText(output), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check job update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_type, status, input_data, output_data, created_at, updated_at
		FROM local_jobs WHERE id = ?`, id)

	var (
		job              storage.Job
		status           string
		input, output    sql.NullString
		created, updated int64
	)
	err := row.Scan(&job.ID, &job.Type, &status, &input, &output, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan job: %w", err)
	}

	job.Status = storage.JobStatus(status)
	if input.Valid {
		job.Input = json.RawMessage(input.String)
	}
	if output.Valid {
		job.Output = json.RawMessage(output.String)
	}
	job.CreatedAt = time.UnixMilli(created)
	job.UpdatedAt = time.UnixMilli(updated)
	return &job, nil
}

// CountJobs returns the total number of recorded jobs.
func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM local_jobs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count jobs: %w", err)
	}
	return count, nil
}

// SaveCandidates inserts a batch of candidates in one transaction.
func (s *Store) SaveCandidates(ctx context.Context, candidates []storage.StoredCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO local_candidates
		(id, source_id, target_id, confidence_score, score_matrix, features, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare candidate insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candidates {
		matrix, err := json.Marshal(c.Candidate.ScoreMatrix)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal score matrix: %w", err)
		}

		var features any
		if len(c.Candidate.Features) > 0 {
			data, err := json.Marshal(c.Candidate.Features)
			if err != nil {
				return fmt.Errorf("sqlite: failed to marshal features: %w", err)
			}
			features = string(data)
		}

		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Candidate.SourceID, c.Candidate.TargetID,
			c.Candidate.ConfidenceScore, string(matrix), features,
			boolToInt(c.Synced), createdAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite: failed to insert candidate %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit candidates: %w", err)
	}
	return nil
}

// UnsyncedCandidates returns up to limit unsynced candidates, oldest first.
func (s *Store) UnsyncedCandidates(ctx context.Context, limit int) ([]storage.StoredCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, confidence_score, score_matrix, features, created_at
		FROM local_candidates WHERE synced = 0
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query unsynced candidates: %w", err)
	}
	defer rows.Close()

	var out []storage.StoredCandidate
	for rows.Next() {
		var (
			sc       storage.StoredCandidate
			matrix   sql.NullString
			features sql.NullString
			created  int64
		)
		if err := rows.Scan(&sc.ID, &sc.Candidate.SourceID, &sc.Candidate.TargetID,
			&sc.Candidate.ConfidenceScore, &matrix, &features, &created); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan candidate: %w", err)
		}
		if matrix.Valid {
			if err := json.Unmarshal([]byte(matrix.String), &sc.Candidate.ScoreMatrix); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal score matrix: %w", err)
			}
		}
		if features.Valid {
			if err := json.Unmarshal([]byte(features.String), &sc.Candidate.Features); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal features: %w", err)
			}
		}
		sc.CreatedAt = time.UnixMilli(created)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// MarkCandidatesSynced flags the given candidates as delivered.
func (s *Store) MarkCandidatesSynced(ctx context.Context, ids []string) error {
	return s.markSynced(ctx, "local_candidates", ids)
}

// SaveAnomalies inserts a batch of anomalies in one transaction.
func (s *Store) SaveAnomalies(ctx context.Context, anomalies []storage.StoredAnomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO local_anomalies
		(id, anomaly_type, severity, transaction_data, score, synced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare anomaly insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range anomalies {
		var txn any
		if a.Anomaly.Transaction != nil {
			data, err := json.Marshal(a.Anomaly.Transaction)
			if err != nil {
				return fmt.Errorf("sqlite: failed to marshal transaction data: %w", err)
			}
			txn = string(data)
		}

		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			a.ID, string(a.Anomaly.Type), string(a.Anomaly.Severity),
			txn, a.Anomaly.Score, boolToInt(a.Synced), createdAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite: failed to insert anomaly %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit anomalies: %w", err)
	}
	return nil
}

// UnsyncedAnomalies returns up to limit unsynced anomalies, oldest first.
func (s *Store) UnsyncedAnomalies(ctx context.Context, limit int) ([]storage.StoredAnomaly, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, anomaly_type, severity, transaction_data, score, created_at
		FROM local_anomalies WHERE synced = 0
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query unsynced anomalies: %w", err)
	}
	defer rows.Close()

	var out []storage.StoredAnomaly
	for rows.Next() {
		var (
			sa           storage.StoredAnomaly
			atype, sever string
			txn          sql.NullString
			score        sql.NullFloat64
			created      int64
		)
		if err := rows.Scan(&sa.ID, &atype, &sever, &txn, &score, &created); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan anomaly: %w", err)
		}
		sa.Anomaly.Type = types.AnomalyType(atype)
		sa.Anomaly.Severity = types.Severity(sever)
		if txn.Valid {
			rec := types.NewRecord()
			if err := json.Unmarshal([]byte(txn.String), rec); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal transaction data: %w", err)
			}
			sa.Anomaly.Transaction = rec
		}
		if score.Valid {
			sa.Anomaly.Score = score.Float64
		}
		sa.CreatedAt = time.UnixMilli(created)
		out = append(out, sa)
	}
	return out, rows.Err()
}

// MarkAnomaliesSynced flags the given anomalies as delivered.
func (s *Store) MarkAnomaliesSynced(ctx context.Context, ids []string) error {
	return s.markSynced(ctx, "local_anomalies", ids)
}

// CountMatchesContaining returns how many recorded anomalies contain the
// given id (JSON-quoted) as a substring of their serialized transaction
// data. The quoted-substring containment mirrors the reference behavior
// and can false-positive when one id is a textual substring of another.
func (s *Store) CountMatchesContaining(ctx context.Context, idSubstring string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM local_anomalies WHERE transaction_data LIKE ?`,
		`%"`+idSubstring+`"%`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count duplicate matches: %w", err)
	}
	return count, nil
}

// Enqueue appends an item to the sync queue.
func (s *Store) Enqueue(ctx context.Context, item *storage.SyncItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: sync item with an ID is required", storage.ErrInvalidInput)
	}

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (id, entity_type, entity_id, action, payload, retries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.EntityType, item.EntityID, item.Action,
		nullableText(item.Payload), item.Retries, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to enqueue sync item: %w", err)
	}
	return nil
}

// Pending returns up to limit queue items with fewer than maxRetries
// failed attempts, oldest first.
func (s *Store) Pending(ctx context.Context, maxRetries, limit int) ([]storage.SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, payload, retries, created_at
		FROM sync_queue WHERE retries < ?
		ORDER BY created_at ASC LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var out []storage.SyncItem
	for rows.Next() {
		var (
			item    storage.SyncItem
			payload sql.NullString
			created int64
		)
		if err := rows.Scan(&item.ID, &item.EntityType, &item.EntityID,
			&item.Action, &payload, &item.Retries, &created); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan sync item: %w", err)
		}
		if payload.Valid {
			item.Payload = json.RawMessage(payload.String)
		}
		item.CreatedAt = time.UnixMilli(created)
		out = append(out, item)
	}
	return out, rows.Err()
}

// Delete removes a delivered queue item.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: failed to delete sync item: %w", err)
	}
	return nil
}

// IncrementRetries bumps the retry counter of a failed queue item.
func (s *Store) IncrementRetries(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET retries = retries + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: failed to increment retries: %w", err)
	}
	return nil
}

// markSynced flags rows of the given table as synced, one statement per id
// inside a transaction.
func (s *Store) markSynced(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// table is one of two compile-time constants, never caller input.
	stmt, err := tx.PrepareContext(ctx, `UPDATE `+table+` SET synced = 1 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare synced update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("sqlite: failed to mark %s synced: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit synced flags: %w", err)
	}
	return nil
}

func nullableText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
