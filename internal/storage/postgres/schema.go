package postgres

// Schema creates the edge node tables. All statements are idempotent so
// the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS local_jobs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	input_data TEXT,
	output_data TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS local_candidates (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	score_matrix TEXT,
	features_json TEXT,
	synced BOOLEAN DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS local_anomalies (
	id TEXT PRIMARY KEY,
	anomaly_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	transaction_data TEXT,
	score DOUBLE PRECISION,
	synced BOOLEAN DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	payload TEXT,
	retries INTEGER DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_local_jobs_status ON local_jobs(status);
CREATE INDEX IF NOT EXISTS idx_local_candidates_synced ON local_candidates(synced);
CREATE INDEX IF NOT EXISTS idx_local_anomalies_synced ON local_anomalies(synced);
CREATE INDEX IF NOT EXISTS idx_sync_queue_retries ON sync_queue(retries);
`

// MigrationPgvector adds a native vector column for candidate feature
// vectors. Applied only when the pgvector extension is available; the
// features_json column remains the portable representation.
const MigrationPgvector = `
ALTER TABLE local_candidates ADD COLUMN IF NOT EXISTS features vector(4);

CREATE INDEX IF NOT EXISTS idx_local_candidates_features
	ON local_candidates USING ivfflat (features vector_cosine_ops) WITH (lists = 100);
`
