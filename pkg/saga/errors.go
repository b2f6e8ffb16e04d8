package saga

import "errors"

// Error taxonomy (spec §7). Each is surfaced via Record.ErrorMessage as its
// Error() text; the comment on each documents its retry behaviour.
var (
	// ErrUnsafeStatement: safety gate rejection. Not retried.
	ErrUnsafeStatement = errors.New("UnsafeStatement")

	// ErrSqlNotProduced: stage 1 returned no SQL in its final answer. Not retried.
	ErrSqlNotProduced = errors.New("SqlNotProduced")

	// ErrExecutionFailed: database/tool error executing the generated SQL.
	// Retried once through self-correction.
	ErrExecutionFailed = errors.New("ExecutionFailed")

	// ErrIterationBudgetExceeded: the tool loop exhausted its iteration bound.
	// Not retried.
	ErrIterationBudgetExceeded = errors.New("IterationBudgetExceeded")

	// ErrLoopTimeout: the tool loop's aggregate wall clock was exceeded. Not retried.
	ErrLoopTimeout = errors.New("LoopTimeout")

	// ErrNoLiveTool: the registry has no healthy endpoint for a required role.
	// Stage 2 fails the saga terminal with it (the bus message is acked, not
	// requeued); inside the stage 1 tool loop the resolution error is fed
	// back to the model as a tool error.
	ErrNoLiveTool = errors.New("NoLiveTool")

	// ErrStateStoreUnavailable: the message is not acked; it will be redelivered.
	ErrStateStoreUnavailable = errors.New("StateStoreUnavailable")

	// ErrBusUnavailable: the message is not acked; it will be redelivered.
	ErrBusUnavailable = errors.New("BusUnavailable")

	// ErrSagaDeadline: the saga's wall clock was exceeded. Terminal.
	ErrSagaDeadline = errors.New("SagaDeadline")

	// ErrIrrelevant is not an error in the quality sense: it marks a stage-1
	// relevance refusal, surfaced as status=error, is_irrelevant=true.
	ErrIrrelevant = errors.New("Irrelevant")
)
