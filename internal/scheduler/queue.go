package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"metasbot/internal/alert"
	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// QueueProcessor drains the persisted FIFO queue of ad-hoc job requests.
// Jobs are claimed before any work happens and run one at a time; a job in
// flight finishes before the next is claimed.
type QueueProcessor struct {
	store    storage.Store
	registry *Registry
	runner   *Runner
	notify   alert.Notifier
	log      logx.Logger
}

func NewQueueProcessor(store storage.Store, registry *Registry, runner *Runner, notify alert.Notifier, log logx.Logger) *QueueProcessor {
	if notify == nil {
		notify = alert.Nop{}
	}
	return &QueueProcessor{store: store, registry: registry, runner: runner, notify: notify, log: log}
}

// Drain processes every currently pending job, oldest first. A listing error
// is logged and left alone: the jobs never left pending, so the next tick
// retries them.
func (q *QueueProcessor) Drain(ctx context.Context) {
	jobs, err := q.store.ListPendingQueueJobs(ctx)
	if err != nil {
		q.log.Error("queue check failed", logx.Err(err))
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		q.processOne(ctx, job)
	}
}

func (q *QueueProcessor) processOne(ctx context.Context, job storage.QueueJob) {
	log := q.log.With(logx.Int64("job_id", job.ID))

	claimed, err := q.store.ClaimQueueJob(ctx, job.ID)
	if err != nil {
		// The job is still pending; the next drain retries it.
		log.Warn("queue claim failed", logx.Err(err))
		return
	}
	if !claimed {
		// Someone else got there first.
		return
	}

	log.Info("queue job claimed")
	startDetails := map[string]any{"job_id": job.ID}
	if job.ScheduleID != nil {
		startDetails["schedule_id"] = *job.ScheduleID
	}
	_ = q.store.AppendEvent(ctx, "job_queue_start", startDetails, nil)

	start := time.Now()

	defKey, handler, payload, err := q.prepare(ctx, job)
	if err != nil {
		q.fail(ctx, job.ID, defKey, err, time.Since(start))
		q.notify.Notify(ctx, fmt.Sprintf("❌ Falha no job %d da fila: %v", job.ID, err))
		return
	}

	if err := q.runner.Run(ctx, defKey, handler, payload.Recipients, payload.TemplateContent); err != nil {
		q.fail(ctx, job.ID, defKey, err, time.Since(start))
		q.notify.Notify(ctx, fmt.Sprintf("❌ Falha no job %d da fila ('%s'): %v", job.ID, defKey, err))
		return
	}

	duration := time.Since(start)
	logs := fmt.Sprintf("Executado com sucesso via fila em %.2fs", duration.Seconds())
	if err := q.store.UpdateQueueJobStatus(ctx, job.ID, storage.JobCompleted, logs); err != nil {
		log.Warn("queue status update failed", logx.Err(err))
	}
	_ = q.store.AppendEvent(ctx, "job_queue_success", map[string]any{
		"job_id":   job.ID,
		"duration": round2(duration.Seconds()),
		"def_key":  defKey,
	}, nil)
	log.Info("queue job completed", logx.Duration("duration", duration))
}

// prepare parses the payload and resolves the handler. The definition key
// comes exclusively from the referenced schedule: a job that cannot be traced
// to a schedule fails fast instead of falling back to some default job type,
// and in that case the registry is never consulted.
func (q *QueueProcessor) prepare(ctx context.Context, job storage.QueueJob) (string, Handler, storage.QueuePayload, error) {
	var payload storage.QueuePayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return "", nil, payload, fmt.Errorf("payload inválido: %w", err)
		}
	}

	if job.ScheduleID == nil {
		return "", nil, payload, ErrNoDefinition
	}
	sched, err := q.store.GetSchedule(ctx, *job.ScheduleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, payload, ErrNoDefinition
		}
		return "", nil, payload, err
	}
	if sched.Definition == nil || sched.Definition.Key == "" {
		return "", nil, payload, ErrNoDefinition
	}
	defKey := sched.Definition.Key

	handler, ok := q.registry.Lookup(defKey)
	if !ok {
		return defKey, nil, payload, &UnknownDefinitionError{Key: defKey}
	}
	return defKey, handler, payload, nil
}

func (q *QueueProcessor) fail(ctx context.Context, jobID int64, defKey string, cause error, duration time.Duration) {
	q.log.Error("queue job failed",
		logx.Int64("job_id", jobID),
		logx.String("job", defKey),
		logx.Err(cause),
	)
	if err := q.store.UpdateQueueJobStatus(ctx, jobID, storage.JobFailed, cause.Error()); err != nil {
		q.log.Warn("queue status update failed", logx.Int64("job_id", jobID), logx.Err(err))
	}
	_ = q.store.AppendEvent(ctx, "job_queue_error", map[string]any{
		"job_id":   jobID,
		"error":    cause.Error(),
		"duration": round2(duration.Seconds()),
	}, nil)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
