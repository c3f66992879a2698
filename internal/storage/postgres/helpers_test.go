// Package postgres provides a PostgreSQL implementation of the edge
// node's local store. This file contains test helpers only used during
// testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every edge node table. It is
// intended for use in tests only; it lives in the postgres package (not
// the _test package) so it has access to the unexported db field.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"TRUNCATE TABLE local_jobs, local_candidates, local_anomalies, sync_queue")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
