package scheduler

import (
	"context"
	"fmt"
	"time"

	"metasbot/internal/alert"
	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// Dispatcher evaluates the trigger table once per tick and fires every due
// entry. Execution is synchronous and serialized: one job runs to completion
// before the next is even considered, so outbound sends never interleave.
type Dispatcher struct {
	runner *Runner
	notify alert.Notifier
	log    logx.Logger
}

func NewDispatcher(runner *Runner, notify alert.Notifier, log logx.Logger) *Dispatcher {
	if notify == nil {
		notify = alert.Nop{}
	}
	return &Dispatcher{runner: runner, notify: notify, log: log}
}

// RunDue fires every trigger whose due instant has been reached and advances
// it to the next occurrence. Returns the number of triggers fired. Entries
// with identical due instants fire in registration order.
func (d *Dispatcher) RunDue(ctx context.Context, tbl *TriggerTable, now time.Time) int {
	if tbl == nil {
		return 0
	}
	fired := 0
	for _, tr := range tbl.entries {
		if ctx.Err() != nil {
			break
		}
		if tr.next.IsZero() || now.Before(tr.next) {
			continue
		}
		d.log.Info("trigger due",
			logx.String("schedule", tr.scheduleName),
			logx.String("job", tr.defKey),
			logx.Time("due", tr.next),
		)
		d.Execute(ctx, tr.scheduleName, tr.defKey, tr.handler, tr.recipients, tr.template)
		tr.next = tr.sched.Next(now)
		fired++
	}
	return fired
}

// Execute runs one handler invocation and owns the failure handling: the
// error is logged and alerted here, never returned upward, so a handler
// failure cannot crash the loop.
func (d *Dispatcher) Execute(ctx context.Context, scheduleName, defKey string, h Handler, recipients []storage.Contact, templateContent string) {
	if err := d.runner.Run(ctx, defKey, h, recipients, templateContent); err != nil {
		d.notify.Notify(ctx, fmt.Sprintf("❌ Falha no job '%s' (schedule '%s'): %v", defKey, scheduleName, err))
	}
}
