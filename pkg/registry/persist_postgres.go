package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersister durably mirrors tool descriptors in the tool_descriptors
// table so the registry can restore its directory across restarts without
// waiting for every tool server's next heartbeat.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

// NewPostgresPersister wraps an existing connection pool.
func NewPostgresPersister(pool *pgxpool.Pool) *PostgresPersister {
	return &PostgresPersister{pool: pool}
}

// Upsert implements Persister.
func (p *PostgresPersister) Upsert(ctx context.Context, d Descriptor) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tool_descriptors (id, name, role, endpoint, capabilities, status, consecutive_failures, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			capabilities = EXCLUDED.capabilities,
			status = EXCLUDED.status,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_seen = EXCLUDED.last_seen
	`, descriptorID(d.Role, d.Endpoint), d.Role, d.Role, d.Endpoint, d.Capabilities, string(d.Status), d.ConsecutiveFailures, d.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert tool descriptor: %w", err)
	}
	return nil
}

// Delete implements Persister.
func (p *PostgresPersister) Delete(ctx context.Context, role, endpoint string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM tool_descriptors WHERE id = $1`, descriptorID(role, endpoint))
	if err != nil {
		return fmt.Errorf("delete tool descriptor: %w", err)
	}
	return nil
}

// LoadAll implements Persister.
func (p *PostgresPersister) LoadAll(ctx context.Context) ([]Descriptor, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT role, endpoint, capabilities, status, consecutive_failures, last_seen
		FROM tool_descriptors
	`)
	if err != nil {
		return nil, fmt.Errorf("load tool descriptors: %w", err)
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		var d Descriptor
		var status string
		if err := rows.Scan(&d.Role, &d.Endpoint, &d.Capabilities, &status, &d.ConsecutiveFailures, &d.LastSeen); err != nil {
			return nil, fmt.Errorf("scan tool descriptor: %w", err)
		}
		d.Status = Status(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func descriptorID(role, endpoint string) string {
	return role + "|" + endpoint
}
