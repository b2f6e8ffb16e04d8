// Package audit durably mirrors terminal saga records into PostgreSQL
// (the saga_records table), independent of the state store's TTL-bounded
// lifetime. The state store remains the single source of truth while a
// saga is in flight (spec §4.3); audit is an upsert keyed by saga id, after the fact, for
// retention and reporting once a saga's KV entry has expired.
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
)

// Recorder durably mirrors one terminal saga record. Satisfied by
// *PostgresRecorder; a nil Recorder is a valid no-op at every call site.
type Recorder interface {
	Record(ctx context.Context, rec statestore.Record) error
}

// PostgresRecorder writes to the saga_records table provisioned by
// pkg/database's migrations.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder wraps an existing connection pool.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// Record upserts rec's terminal state. Called exactly once per saga, when
// the terminal-topic handler observes a completed or error record; a
// redelivery of that message simply upserts the same row again.
func (r *PostgresRecorder) Record(ctx context.Context, rec statestore.Record) error {
	var errorMessage *string
	if rec.ErrorMessage != nil {
		errorMessage = rec.ErrorMessage
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO saga_records (id, tenant_id, query, status, is_irrelevant, error_message, result_summary, created_at, updated_at, terminal_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			is_irrelevant = EXCLUDED.is_irrelevant,
			error_message = EXCLUDED.error_message,
			result_summary = EXCLUDED.result_summary,
			updated_at = EXCLUDED.updated_at,
			terminal_at = now()
	`, rec.SagaID, rec.TenantID, rec.Question, string(rec.Status), rec.IsIrrelevant, errorMessage,
		rec.FormattedResponse, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record saga audit row: %w", err)
	}
	return nil
}
