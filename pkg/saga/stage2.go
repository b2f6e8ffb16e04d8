package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
)

// executeSQLResult is the JSON shape the database role's execute_sql tool
// returns: column headers plus stringified row cells.
type executeSQLResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// handleGenerated runs Stage 2 — Execute (spec §4.4): no LLM call, a direct
// execute_sql dispatch via the registry. On failure it re-enters Stage 1
// through the self-correction budget; once exhausted it fails terminal.
func (o *Orchestrator) handleGenerated(ctx context.Context, msg bus.Message) error {
	rec, ok, err := o.loadForStage(ctx, msg.SagaID, statestore.StatusExecuting)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if rec.GeneratedSQL == nil {
		return o.failTerminal(ctx, rec.SagaID, ErrSqlNotProduced, false)
	}
	sql := *rec.GeneratedSQL

	stageCtx, cancel := o.stageDeadline(ctx, rec)
	defer cancel()
	if stageCtx.Err() != nil {
		return o.failTerminal(ctx, rec.SagaID, ErrSagaDeadline, false)
	}

	step := statestore.Step{StepName: StepExecuteQuery, Status: statestore.StepPending, SQL: sql}

	endpoint, err := o.registry.Resolve(RoleDatabase)
	if err != nil {
		step.Status = statestore.StepError
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		return o.failTerminal(ctx, rec.SagaID, ErrNoLiveTool, false)
	}

	argsJSON, err := json.Marshal(map[string]any{"sql": sql, "max_rows": o.cfg.MaxResultRows})
	if err != nil {
		return fmt.Errorf("encode execute_sql arguments: %w", err)
	}

	content, isError, err := o.tools.CallTool(stageCtx, endpoint, ToolExecuteSQL, string(argsJSON))
	if err != nil || isError {
		dbErr := content
		if err != nil {
			dbErr = err.Error()
		}
		return o.retryOrFail(ctx, rec, sql, dbErr, step)
	}

	table, _ := renderMarkdownTable(content, o.cfg.MaxResultRows)
	step.Status = statestore.StepSuccess

	formattingStatus := statestore.StatusFormatting
	if _, err := o.store.Update(ctx, rec.SagaID, statestore.Patch{
		Status:      &formattingStatus,
		RawResults:  &table,
		AppendSteps: []statestore.Step{step},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}

	if err := o.bus.Publish(ctx, bus.TopicExecuted, bus.Message{SagaID: rec.SagaID}); err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return nil
}

// retryOrFail implements the self-correction loop (spec §4.8): with budget
// remaining, it decrements and re-enters Stage 1 with an augmented prompt;
// otherwise it fails the saga terminal with ExecutionFailed.
func (o *Orchestrator) retryOrFail(ctx context.Context, rec statestore.Record, failedSQL, dbError string, step statestore.Step) error {
	step.Status = statestore.StepError
	step.Reason = dbError

	if rec.RetriesRemaining <= 0 {
		if _, uerr := o.store.Update(ctx, rec.SagaID, statestore.Patch{AppendSteps: []statestore.Step{step}}); uerr != nil {
			return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, uerr)
		}
		return o.failTerminal(ctx, rec.SagaID, ErrExecutionFailed, false)
	}

	if o.metrics != nil {
		o.metrics.RecordSelfCorrection()
	}

	remaining := rec.RetriesRemaining - 1
	generatingStatus := statestore.StatusGenerating
	if _, err := o.store.Update(ctx, rec.SagaID, statestore.Patch{
		Status:           &generatingStatus,
		AppendSteps:      []statestore.Step{step},
		RetriesRemaining: &remaining,
		FailedSQL:        &failedSQL,
		DatabaseError:    &dbError,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreUnavailable, err)
	}

	if err := o.bus.Publish(ctx, bus.TopicInitiated, bus.Message{SagaID: rec.SagaID}); err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return nil
}

// renderMarkdownTable decodes the execute_sql tool's JSON result and renders
// it as a markdown table truncated to maxRows with a trailing marker (spec
// §4.4). If content is not the expected shape, it is passed through as-is.
func renderMarkdownTable(content string, maxRows int) (table string, truncated bool) {
	var result executeSQLResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return content, false
	}

	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(strings.Join(result.Columns, " | "))
	b.WriteString(" |\n|")
	for range result.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	rows := result.Rows
	truncated = len(rows) > maxRows
	if truncated {
		rows = rows[:maxRows]
	}
	for _, row := range rows {
		b.WriteString("| ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString(" |\n")
	}
	if truncated {
		b.WriteString("\n*...truncated...*\n")
	}
	return b.String(), truncated
}
