package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// Runner executes exactly one handler invocation with the guardrails every
// execution path (time-triggered, queue-drained, run-all) shares: per-job
// timeout, panic containment, and the job_success/job_error audit events.
//
// A nil error from Run means the handler finished; anything else already had
// its event persisted and is safe for the caller to log, alert on, or map to
// a queue status. Callers must not propagate it into the loop.
type Runner struct {
	store   storage.Store
	log     logx.Logger
	timeout time.Duration
}

func NewRunner(store storage.Store, log logx.Logger, timeout time.Duration) *Runner {
	return &Runner{store: store, log: log, timeout: timeout}
}

func (r *Runner) Run(ctx context.Context, defKey string, h Handler, recipients []storage.Contact, templateContent string) error {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := runGuarded(runCtx, h, recipients, templateContent)
	duration := time.Since(start)

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &TimeoutError{After: r.timeout}
	}

	if err != nil {
		r.log.Error("job failed",
			logx.String("job", defKey),
			logx.Duration("duration", duration),
			logx.Err(err),
		)
		_ = r.store.AppendEvent(ctx, "job_error", map[string]any{
			"job":   defKey,
			"error": err.Error(),
		}, nil)
		return err
	}

	r.log.Info("job ok", logx.String("job", defKey), logx.Duration("duration", duration))
	_ = r.store.AppendEvent(ctx, "job_success", map[string]any{"job": defKey}, nil)
	return nil
}

// runGuarded converts a handler panic into an error so one misbehaving job
// can never unwind the scheduler loop.
func runGuarded(ctx context.Context, h Handler, recipients []storage.Contact, templateContent string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return h.Run(ctx, recipients, templateContent)
}
