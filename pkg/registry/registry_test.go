package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil, time.Hour, nil)

	require.NoError(t, r.Register(ctx, "database", "http://tool-a:8080", []string{"execute_sql"}))
	require.NoError(t, r.Register(ctx, "database", "http://tool-b:8080", []string{"execute_sql"}))

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		ep, err := r.Resolve("database")
		require.NoError(t, err)
		seen[ep] = true
	}
	assert.Len(t, seen, 2, "round-robin should visit both healthy endpoints")
}

func TestRegistry_ResolveNoLiveTool(t *testing.T) {
	r := New(nil, nil, time.Hour, nil)
	_, err := r.Resolve("knowledge-base")
	assert.ErrorIs(t, err, ErrNoLiveTool)
}

type failingProber struct{ fail map[string]bool }

func (p failingProber) Probe(_ context.Context, endpoint string) error {
	if p.fail[endpoint] {
		return errProbeFailed
	}
	return nil
}

var errProbeFailed = errors.New("probe failed")

func TestRegistry_ProbeFlipsStatusAfterTwoFailures(t *testing.T) {
	ctx := context.Background()
	r := New(failingProber{fail: map[string]bool{"http://bad:8080": true}}, nil, time.Hour, nil)
	require.NoError(t, r.Register(ctx, "database", "http://bad:8080", nil))

	r.probeOnce(ctx)
	descs := r.Servers("database")
	require.Len(t, descs, 1)
	assert.Equal(t, StatusUnhealthy, descs[0].Status)

	r.probeOnce(ctx)
	descs = r.Servers("database")
	assert.Equal(t, StatusError, descs[0].Status)

	_, err := r.Resolve("database")
	assert.ErrorIs(t, err, ErrNoLiveTool)
}

func TestRegistry_StaleSweepEvicts(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil, time.Millisecond, nil)
	require.NoError(t, r.Register(ctx, "database", "http://old:8080", nil))

	time.Sleep(5 * time.Millisecond)
	r.sweepOnce(ctx)

	assert.Empty(t, r.Servers("database"))
}
