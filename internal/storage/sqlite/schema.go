package sqlite

// Schema creates the local tables of an edge node. All statements are
// idempotent so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS local_jobs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	input_data TEXT,
	output_data TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS local_candidates (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	score_matrix TEXT,
	features TEXT,
	synced INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS local_anomalies (
	id TEXT PRIMARY KEY,
	anomaly_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	transaction_data TEXT,
	score REAL,
	synced INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_queue (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	payload TEXT,
	retries INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_local_jobs_status ON local_jobs(status);
CREATE INDEX IF NOT EXISTS idx_local_candidates_synced ON local_candidates(synced);
CREATE INDEX IF NOT EXISTS idx_local_anomalies_synced ON local_anomalies(synced);
CREATE INDEX IF NOT EXISTS idx_sync_queue_retries ON sync_queue(retries);
`
