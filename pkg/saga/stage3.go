package saga

import (
	"context"
	"fmt"

	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
)

// handleExecuted runs Stage 3 — Format (spec §4.4): an empty tool catalogue,
// the loop used purely as a constrained text generator producing an
// executive summary under MaxSummaryChars.
func (o *Orchestrator) handleExecuted(ctx context.Context, msg bus.Message) error {
	rec, ok, err := o.loadForStage(ctx, msg.SagaID, statestore.StatusFormatting)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	stageCtx, cancel := o.stageDeadline(ctx, rec)
	defer cancel()
	if stageCtx.Err() != nil {
		return o.failTerminal(ctx, rec.SagaID, ErrSagaDeadline, false)
	}

	var generatedSQL, rawResults string
	if rec.GeneratedSQL != nil {
		generatedSQL = *rec.GeneratedSQL
	}
	if rec.RawResults != nil {
		rawResults = *rec.RawResults
	}

	userMessage := formatUserMessage(rec.Question, generatedSQL, rawResults)
	result := o.loop.Run(stageCtx, "", formatSystemPrompt, userMessage, nil)

	step := result.Step
	step.StepName = StepFormat

	if result.Err != nil {
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		return o.failTerminal(ctx, rec.SagaID, mapLoopError(result.Err), false)
	}

	summary := result.FinalText
	if len(summary) > o.cfg.MaxSummaryChars {
		summary = summary[:o.cfg.MaxSummaryChars]
	}

	if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{
		AppendSteps:   []statestore.Step{step},
		AddDurationMS: step.DurationMS,
		AddTokens:     step.UsageTotal,
	}); uerr != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
	}

	if _, err := o.store.Complete(ctx, rec.SagaID, summary); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}

	if err := o.bus.Publish(ctx, bus.TopicTerminal, bus.Message{SagaID: rec.SagaID}); err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return nil
}

const formatSystemPrompt = `You write a concise executive summary of a database query result for a
business user. Reply with plain text only, no markdown, no code fences, under 2000 characters.`

func formatUserMessage(question, sql, rawResults string) string {
	return fmt.Sprintf("Question: %s\n\nSQL:\n%s\n\nResults:\n%s", question, sql, rawResults)
}

// handleTerminal is the pipeline's finalizer: by the time a saga reaches
// q.terminal its record is already complete or failed, so this stage only
// does best-effort bookkeeping (logging, metrics) for operational
// visibility. Redelivery of an already-recorded terminal message causes a
// harmless double count; this is metrics, not state.
func (o *Orchestrator) handleTerminal(ctx context.Context, msg bus.Message) error {
	rec, err := o.store.Get(ctx, msg.SagaID)
	if err != nil {
		return nil
	}
	o.log.Info("saga reached terminal state",
		"saga_id", rec.SagaID, "status", rec.Status, "is_irrelevant", rec.IsIrrelevant,
		"total_duration_ms", rec.TotalDurationMS, "total_tokens", rec.TotalTokens)

	if o.metrics != nil {
		outcome := "completed"
		switch {
		case rec.IsIrrelevant:
			outcome = "irrelevant"
		case rec.Status == statestore.StatusError:
			outcome = "error"
		}
		o.metrics.RecordSagaCompleted(rec.TenantID, outcome, rec.UpdatedAt.Sub(rec.CreatedAt).Seconds())
	}

	if o.audit != nil {
		if err := o.audit.Record(ctx, rec); err != nil {
			o.log.Warn("failed to write saga audit row", "saga_id", rec.SagaID, "error", err)
		}
	}
	return nil
}
