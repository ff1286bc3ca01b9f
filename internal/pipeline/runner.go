package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gigmail/internal/store"
)

// Step is one stage of a run. Run reads and writes only its declared
// RunContext fields.
type Step interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) error
}

// StageError wraps the failure of one step.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RunLedger records run bookkeeping. Ledger failures are logged, never fatal.
type RunLedger interface {
	StartRun(ctx context.Context, r store.Run) error
	FinishRun(ctx context.Context, id string, finished time.Time, rows int, runErr error) error
}

// Runner executes steps sequentially and stops at the first failure.
type Runner struct {
	Steps  []Step
	Log    *slog.Logger
	Ledger RunLedger // optional
	Now    func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes every step in order. The returned error, if any, is a
// *StageError naming the step that failed; later steps are not run.
func (r *Runner) Run(ctx context.Context, rc *RunContext) error {
	if rc.RunID == "" {
		rc.RunID = uuid.NewString()
	}
	log := r.Log.With("run", rc.RunID)

	if r.Ledger != nil {
		err := r.Ledger.StartRun(ctx, store.Run{
			ID:        rc.RunID,
			Site:      rc.Site,
			RunDate:   rc.Date,
			Query:     rc.Query,
			StartedAt: r.now(),
		})
		if err != nil {
			log.Warn("ledger start failed", "err", err)
		}
	}

	var runErr error
	for _, step := range r.Steps {
		if err := step.Run(ctx, rc); err != nil {
			runErr = &StageError{Stage: step.Name(), Err: err}
			log.Error("step failed", "step", step.Name(), "err", err)
			break
		}
		log.Info("step done", "step", step.Name())
	}

	if r.Ledger != nil {
		if err := r.Ledger.FinishRun(ctx, rc.RunID, r.now(), len(rc.Cleansed), runErr); err != nil {
			log.Warn("ledger finish failed", "err", err)
		}
	}
	return runErr
}
