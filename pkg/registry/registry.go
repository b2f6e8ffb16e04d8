// Package registry implements the Tool Registry Client (C1): service
// discovery for tool servers keyed by role, with heartbeat registration,
// periodic health probing, and staleness eviction.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nadermedhet148/sql-insight-engine/pkg/metrics"
)

// ErrNoLiveTool is returned by Resolve when no healthy endpoint exists for a role.
var ErrNoLiveTool = errors.New("no live tool endpoint for role")

// Status is a tool descriptor's health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
)

// Descriptor is the Tool Descriptor of spec §3.
type Descriptor struct {
	Role                string
	Endpoint            string
	Capabilities        []string
	LastSeen            time.Time
	Status              Status
	ConsecutiveFailures int
}

// Prober probes an endpoint's liveness. Returns nil if the endpoint is reachable.
type Prober interface {
	Probe(ctx context.Context, endpoint string) error
}

// Persister durably mirrors descriptor state (pkg/database-backed). Nil
// means registrations live only in memory for the process lifetime.
type Persister interface {
	Upsert(ctx context.Context, d Descriptor) error
	Delete(ctx context.Context, role, endpoint string) error
	LoadAll(ctx context.Context) ([]Descriptor, error)
}

// Registry is the in-memory, concurrency-safe service directory. It embeds
// an optional Persister for durability across restarts and an optional
// Prober for active health checks, matching the teacher's pattern of
// pluggable collaborators behind small interfaces.
type Registry struct {
	mu       sync.RWMutex
	byRole   map[string][]*Descriptor
	rrIndex  map[string]int
	prober   Prober
	persist  Persister
	metrics  *metrics.Metrics
	log      *slog.Logger

	heartbeatTTL time.Duration
	staleAfter   time.Duration
}

// New constructs a Registry. staleAfter is the last_seen age at which an
// entry is evicted by the sweeper (spec §4.1: 1h). m may be nil, in which
// case metrics recording is skipped.
func New(prober Prober, persist Persister, staleAfter time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		byRole:     make(map[string][]*Descriptor),
		rrIndex:    make(map[string]int),
		prober:     prober,
		persist:    persist,
		metrics:    m,
		log:        slog.With("component", "registry"),
		staleAfter: staleAfter,
	}
}

// Restore loads persisted descriptors on startup, if a Persister is configured.
func (r *Registry) Restore(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	descs, err := r.persist.LoadAll(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range descs {
		d := descs[i]
		r.byRole[d.Role] = append(r.byRole[d.Role], &d)
	}
	return nil
}

// Register implements the C1 `register(role, endpoint, capabilities)` contract.
// Called by a tool server on startup and at each heartbeat; re-registering
// refreshes last_seen and resets consecutive failure count.
func (r *Registry) Register(ctx context.Context, role, endpoint string, capabilities []string) error {
	r.mu.Lock()
	now := time.Now()
	var found *Descriptor
	for _, d := range r.byRole[role] {
		if d.Endpoint == endpoint {
			found = d
			break
		}
	}
	if found == nil {
		found = &Descriptor{Role: role, Endpoint: endpoint}
		r.byRole[role] = append(r.byRole[role], found)
	}
	found.Capabilities = capabilities
	found.LastSeen = now
	found.Status = StatusHealthy
	found.ConsecutiveFailures = 0
	snapshot := *found
	r.mu.Unlock()

	if r.persist != nil {
		if err := r.persist.Upsert(ctx, snapshot); err != nil {
			r.log.Warn("failed to persist registration", "role", role, "endpoint", endpoint, "error", err)
		}
	}
	return nil
}

// Resolve implements `resolve(role) → endpoint`. Policy: round-robin across
// healthy entries of the role in registration order; last_seen does not
// affect which entry is chosen.
func (r *Registry) Resolve(role string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byRole[role]
	healthy := make([]*Descriptor, 0, len(entries))
	for _, d := range entries {
		if d.Status == StatusHealthy {
			healthy = append(healthy, d)
		}
	}
	if len(healthy) == 0 {
		return "", ErrNoLiveTool
	}

	idx := r.rrIndex[role] % len(healthy)
	r.rrIndex[role] = idx + 1
	return healthy[idx].Endpoint, nil
}

// Servers returns a snapshot of descriptors for a role, or all roles if role is empty.
func (r *Registry) Servers(role string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	if role != "" {
		for _, d := range r.byRole[role] {
			out = append(out, *d)
		}
		return out
	}
	for _, list := range r.byRole {
		for _, d := range list {
			out = append(out, *d)
		}
	}
	return out
}

// RunHealthProbe starts the 30s health-probe ticker described in spec §4.1:
// probe failure flips status to unhealthy; two consecutive failures flip to
// error. Blocks until ctx is cancelled.
func (r *Registry) RunHealthProbe(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(jitter(interval))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.probeOnce(ctx)
		}
	}
}

// ProbeOnce runs a single health-probe pass over every registered endpoint.
// Exposed so callers can drive probing from their own scheduler (e.g. a
// cron job) instead of the built-in ticker loop in RunHealthProbe.
func (r *Registry) ProbeOnce(ctx context.Context) {
	r.probeOnce(ctx)
}

func (r *Registry) probeOnce(ctx context.Context) {
	if r.prober == nil {
		return
	}

	r.mu.RLock()
	targets := make([]*Descriptor, 0)
	for _, list := range r.byRole {
		targets = append(targets, list...)
	}
	r.mu.RUnlock()

	for _, d := range targets {
		err := r.prober.Probe(ctx, d.Endpoint)

		r.mu.Lock()
		if err != nil {
			d.ConsecutiveFailures++
			if d.ConsecutiveFailures >= 2 {
				d.Status = StatusError
			} else {
				d.Status = StatusUnhealthy
			}
		} else {
			d.ConsecutiveFailures = 0
			d.Status = StatusHealthy
		}
		healthy := d.Status == StatusHealthy
		role, endpoint := d.Role, d.Endpoint
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.SetRegistryServerStatus(role, endpoint, healthy)
		}
	}
}

// RunStaleSweep starts the 30s background sweeper that deletes entries with
// last_seen older than staleAfter.
func (r *Registry) RunStaleSweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(jitter(interval))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single stale-eviction pass. Exposed for the same reason
// as ProbeOnce.
func (r *Registry) SweepOnce(ctx context.Context) {
	r.sweepOnce(ctx)
}

func (r *Registry) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAfter)

	r.mu.Lock()
	var removed []Descriptor
	for role, list := range r.byRole {
		kept := list[:0]
		for _, d := range list {
			if d.LastSeen.Before(cutoff) {
				removed = append(removed, *d)
				continue
			}
			kept = append(kept, d)
		}
		r.byRole[role] = kept
	}
	r.mu.Unlock()

	if r.persist == nil {
		return
	}
	for _, d := range removed {
		if err := r.persist.Delete(ctx, d.Role, d.Endpoint); err != nil {
			r.log.Warn("failed to delete stale descriptor", "role", d.Role, "endpoint", d.Endpoint, "error", err)
		}
	}
}

// jitter adds up to 20% random jitter to a ticker interval to avoid every
// registry instance probing/sweeping in lockstep.
func jitter(base time.Duration) time.Duration {
	spread := float64(base) * 0.2
	return base + time.Duration(rand.Float64()*spread)
}
