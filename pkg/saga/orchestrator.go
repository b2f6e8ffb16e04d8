package saga

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nadermedhet148/sql-insight-engine/pkg/audit"
	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/nadermedhet148/sql-insight-engine/pkg/metrics"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/nadermedhet148/sql-insight-engine/pkg/toolloop"
)

// Orchestrator drives the four-stage saga pipeline (C4): one durable
// consumer per topic, each stage reading and writing the state store and
// publishing the next-stage message before acking (spec §4.4 step 5).
type Orchestrator struct {
	store    statestore.Store
	bus      bus.Bus
	registry resolver
	tools    toolCaller
	loop     *toolloop.Loop
	cfg      Config
	metrics  *metrics.Metrics
	audit    audit.Recorder
	log      *slog.Logger
}

// New constructs an Orchestrator. llmClient and loopCfg feed the shared tool
// loop used by every stage; cfg bounds saga/stage deadlines and retries. m
// and rec may both be nil, in which case metrics recording and audit
// persistence are skipped respectively.
func New(store statestore.Store, b bus.Bus, reg resolver, tools toolCaller, llmClient llm.Client, loopCfg toolloop.Config, cfg Config, m *metrics.Metrics, rec audit.Recorder) *Orchestrator {
	return &Orchestrator{
		store:    store,
		bus:      b,
		registry: reg,
		tools:    tools,
		loop:     toolloop.New(llmClient, loopCfg),
		cfg:      cfg,
		metrics:  m,
		audit:    rec,
		log:      slog.With("component", "saga"),
	}
}

// Run subscribes durable consumers on all four pipeline topics and blocks
// until ctx is cancelled or a consumer returns a fatal error.
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	subscribe := func(topic, durable string, handler bus.Handler) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.bus.Subscribe(ctx, topic, durable, handler); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("subscribe %s: %w", topic, err)
			}
		}()
	}

	subscribe(bus.TopicInitiated, "saga-stage1", o.handleInitiated)
	subscribe(bus.TopicGenerated, "saga-stage2", o.handleGenerated)
	subscribe(bus.TopicExecuted, "saga-stage3", o.handleExecuted)
	subscribe(bus.TopicTerminal, "saga-terminal", o.handleTerminal)

	go func() {
		wg.Wait()
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		wg.Wait()
		return nil
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return nil
	}
}

// loadForStage fetches the saga record and reports whether processing
// should proceed: a terminal record is acked and dropped (idempotent
// redelivery guard, spec §4.4 step 2); a record not yet at expectedStatus
// has already progressed past this stage and is likewise dropped.
func (o *Orchestrator) loadForStage(ctx context.Context, sagaID string, expectedStatuses ...statestore.Status) (statestore.Record, bool, error) {
	rec, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return statestore.Record{}, false, fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}
	if rec.Status.Terminal() {
		o.log.Info("saga already terminal, dropping redelivered message", "saga_id", sagaID, "status", rec.Status)
		return rec, false, nil
	}
	for _, s := range expectedStatuses {
		if rec.Status == s {
			return rec, true, nil
		}
	}
	o.log.Info("saga already past this stage, dropping redelivered message",
		"saga_id", sagaID, "expected", expectedStatuses, "actual", rec.Status)
	return rec, false, nil
}

// stageDeadline returns a context bounded by both the per-stage wall clock
// and whatever remains of the saga's overall deadline.
func (o *Orchestrator) stageDeadline(ctx context.Context, rec statestore.Record) (context.Context, context.CancelFunc) {
	sagaRemaining := time.Until(rec.CreatedAt.Add(o.cfg.SagaDeadline))
	bound := o.cfg.StageDeadline
	if sagaRemaining < bound {
		bound = sagaRemaining
	}
	return context.WithTimeout(ctx, bound)
}

func (o *Orchestrator) failTerminal(ctx context.Context, sagaID string, failErr error, isIrrelevant bool) error {
	if _, err := o.store.Fail(ctx, sagaID, failErr.Error(), isIrrelevant); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}
	if err := o.bus.Publish(ctx, bus.TopicTerminal, bus.Message{SagaID: sagaID}); err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return nil
}
