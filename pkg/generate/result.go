package generate

import (
	"context"
	"time"
)

// Result is the outcome of one generation run.
type Result struct {
	// Diffs holds a unified diff per changed file in dry runs.
	Diffs map[string]string `json:"diffs,omitempty"`
	// Mode is the id of the generated mode, or "unknown" when loading failed.
	Mode           string        `json:"mode"`
	Message        string        `json:"message"`
	GeneratedFiles []string      `json:"generatedFiles"`
	Warnings       []string      `json:"warnings,omitempty"`
	Duration       time.Duration `json:"duration"`
	RulesUsed      int           `json:"rulesUsed"`
	Success        bool          `json:"success"`
	DryRun         bool          `json:"dryRun,omitempty"`
}

func newResult(dryRun bool) *Result {
	return &Result{
		Mode:           unknownMode,
		GeneratedFiles: []string{},
		DryRun:         dryRun,
	}
}

// Event is sent to subscribers of a watching [Generator].
type Event interface {
	Context() context.Context
}

type (
	// EventStart indicates that a generation run has started.
	EventStart struct {
		ctx context.Context //nolint:containedctx // Carried for tracing.
		// Trigger is the file whose change caused the run, or empty for the
		// initial run.
		Trigger string
	}

	// EventEnd indicates that a generation run has ended. Err is set when
	// the run failed.
	EventEnd struct {
		ctx    context.Context //nolint:containedctx // Carried for tracing.
		Result *Result
		Err    error
	}
)

func NewEventStart(ctx context.Context, trigger string) EventStart {
	return EventStart{ctx: ctx, Trigger: trigger}
}

func NewEventEnd(ctx context.Context, res *Result, err error) EventEnd {
	return EventEnd{ctx: ctx, Result: res, Err: err}
}

func (e EventStart) Context() context.Context { return e.ctx }

func (e EventEnd) Context() context.Context { return e.ctx }
