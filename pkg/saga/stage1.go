package saga

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/safety"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/nadermedhet148/sql-insight-engine/pkg/toolloop"
)

var fencedSQLRe = regexp.MustCompile("(?is)```(?:sql)?\\s*(.+?)\\s*```")

// handleInitiated runs Stage 1 — Discover-&-Generate (spec §4.4). It also
// serves as the self-correction re-entry point: when the loaded record is
// already StatusGenerating with a FailedSQL set, the prompt is augmented
// with the prior failure before regenerating.
func (o *Orchestrator) handleInitiated(ctx context.Context, msg bus.Message) error {
	rec, ok, err := o.loadForStage(ctx, msg.SagaID, statestore.StatusPending, statestore.StatusGenerating)
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

	signal := &relevanceSignal{}
	tools := o.stage1Tools(rec.TenantID, signal)

	systemPrompt := discoverSystemPrompt
	userMessage := rec.Question
	if rec.Status == statestore.StatusGenerating && rec.FailedSQL != nil {
		failedSQL := *rec.FailedSQL
		dbErr := ""
		if rec.DatabaseError != nil {
			dbErr = *rec.DatabaseError
		}
		userMessage = selfCorrectPrompt(rec.Question, failedSQL, dbErr)
	}

	result := o.loop.Run(stageCtx, "", systemPrompt, userMessage, tools)

	step := result.Step
	step.StepName = StepGenerateQuery

	if result.Err != nil {
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		return o.failTerminal(ctx, rec.SagaID, mapLoopError(result.Err), false)
	}

	if signal.called && !signal.isRelevant {
		step.Reason = signal.reason
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		reason := signal.reason
		if reason == "" {
			reason = "this question cannot be answered from your database"
		}
		if _, ferr := o.store.Update(ctx, rec.SagaID, statestore.Patch{FormattedResponse: &reason}); ferr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, ferr)
		}
		return o.failTerminal(ctx, rec.SagaID, ErrIrrelevant, true)
	}

	sql := extractSQL(result.FinalText)
	if sql == "" {
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		return o.failTerminal(ctx, rec.SagaID, ErrSqlNotProduced, false)
	}

	if err := safety.Check(sql); err != nil {
		step.SQL = sql
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		return o.failTerminal(ctx, rec.SagaID, ErrUnsafeStatement, false)
	}

	step.SQL = sql
	executingStatus := statestore.StatusExecuting

	if _, err := o.store.Update(ctx, rec.SagaID, statestore.Patch{
		Status:        &executingStatus,
		GeneratedSQL:  &sql,
		AppendSteps:   []statestore.Step{step},
		AddDurationMS: step.DurationMS,
		AddTokens:     step.UsageTotal,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}

	if err := o.bus.Publish(ctx, bus.TopicGenerated, bus.Message{SagaID: rec.SagaID}); err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return nil
}

const discoverSystemPrompt = `You answer questions about a tenant's relational database.
If the question is not about this tenant's data, call check_relevance with is_relevant=false and a reason.
Otherwise, use list_tables and describe_table to discover the schema and search_knowledge_base to
confirm business definitions, then produce exactly one read-only SQL statement in a fenced ` + "```sql```" + ` block.`

func selfCorrectPrompt(question, failedSQL, dbError string) string {
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nThe previous attempt failed.\nFailed SQL:\n")
	b.WriteString(failedSQL)
	b.WriteString("\nDatabase error:\n")
	b.WriteString(dbError)
	b.WriteString("\nProduce a corrected read-only SQL statement.")
	return b.String()
}

func extractSQL(text string) string {
	m := fencedSQLRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// mapLoopError translates a toolloop failure into the saga error taxonomy
// (spec §7); any other error (e.g. LLM transport) passes through unchanged.
func mapLoopError(err error) error {
	switch {
	case errors.Is(err, toolloop.ErrIterationBudgetExceeded):
		return ErrIterationBudgetExceeded
	case errors.Is(err, toolloop.ErrLoopTimeout):
		return ErrLoopTimeout
	default:
		return err
	}
}
