package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"metasbot/internal/alert"
	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// State tracks the loop lifecycle: NotStarted → LockAcquired → Running →
// Stopped. Transitions are one-way.
type State int32

const (
	StateNotStarted State = iota
	StateLockAcquired
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLockAcquired:
		return "lock_acquired"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures the scheduler loop.
//
// Defaults (when fields are omitted/zero):
//   - tick: 1s
//   - refresh_every: 5m
//   - job_timeout: 15m
type Options struct {
	Tick         time.Duration
	RefreshEvery time.Duration
	JobTimeout   time.Duration
	Lock         LockConfig
}

func (o *Options) defaults() {
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.RefreshEvery <= 0 {
		o.RefreshEvery = 5 * time.Minute
	}
	if o.JobTimeout < 0 {
		o.JobTimeout = 0
	} else if o.JobTimeout == 0 {
		o.JobTimeout = 15 * time.Minute
	}
}

// Service is the top-level driver: acquire lock, initial refresh, then tick
// {run due triggers, drain queue, renew heartbeat, sleep} until the context
// is cancelled.
//
// Job execution is fully serialized inside the loop goroutine. The only
// other goroutine is heartbeat renewal, which must stay independent of job
// execution so a long-running handler cannot starve the heartbeat past the
// staleness threshold and invite a takeover while this instance is alive.
type Service struct {
	opts     Options
	store    storage.Store
	registry *Registry
	log      logx.Logger

	lock       *LockManager
	refresher  *Refresher
	dispatcher *Dispatcher
	queue      *QueueProcessor

	state atomic.Int32

	// Ready, when set, is called once as the loop enters Running
	// (e.g. systemd readiness notification).
	Ready func()
}

func New(opts Options, store storage.Store, registry *Registry, notify alert.Notifier, log logx.Logger) *Service {
	opts.defaults()
	if notify == nil {
		notify = alert.Nop{}
	}
	runner := NewRunner(store, log.With(logx.String("comp", "runner")), opts.JobTimeout)
	return &Service{
		opts:       opts,
		store:      store,
		registry:   registry,
		log:        log,
		lock:       NewLockManager(store, log.With(logx.String("comp", "lock")), opts.Lock),
		refresher:  NewRefresher(store, registry, log.With(logx.String("comp", "refresher"))),
		dispatcher: NewDispatcher(runner, notify, log.With(logx.String("comp", "dispatcher"))),
		queue:      NewQueueProcessor(store, registry, runner, notify, log.With(logx.String("comp", "queue"))),
	}
}

func (s *Service) State() State {
	return State(s.state.Load())
}

// Run drives the loop until ctx is cancelled. It returns ErrLockUnavailable
// (possibly wrapped) when another instance holds the lock; the caller must
// exit without retrying. The lock is released on every exit path.
func (s *Service) Run(ctx context.Context) error {
	ok, err := s.lock.Acquire(ctx)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	if !ok {
		s.state.Store(int32(StateStopped))
		return ErrLockUnavailable
	}
	s.state.Store(int32(StateLockAcquired))

	hbCtx, hbCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(hbCtx)
	}()
	defer func() {
		hbCancel()
		wg.Wait()
		// ctx is usually cancelled by now; release with a fresh context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.lock.Release(releaseCtx)
		cancel()
		s.state.Store(int32(StateStopped))
	}()

	now := time.Now()
	table, err := s.refresher.Refresh(ctx, now)
	if err != nil {
		s.log.Warn("initial refresh failed, starting with empty trigger table", logx.Err(err))
		table = &TriggerTable{}
	}
	nextRefresh := now.Add(s.opts.RefreshEvery)

	s.state.Store(int32(StateRunning))
	if s.Ready != nil {
		s.Ready()
	}
	s.log.Info("scheduler running",
		logx.Duration("tick", s.opts.Tick),
		logx.Duration("refresh_every", s.opts.RefreshEvery),
		logx.Int("triggers", table.Len()),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping", logx.Err(ctx.Err()))
			return nil
		default:
		}

		now = time.Now()
		if !now.Before(nextRefresh) {
			if fresh, err := s.refresher.Refresh(ctx, now); err != nil {
				// Keep firing from the previous table; the store may be back
				// by the next cycle.
				s.log.Warn("refresh failed, keeping previous trigger table", logx.Err(err))
			} else {
				table = fresh
			}
			nextRefresh = now.Add(s.opts.RefreshEvery)
		}

		s.dispatcher.RunDue(ctx, table, now)
		s.queue.Drain(ctx)
		_ = s.lock.Renew(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping", logx.Err(ctx.Err()))
			return nil
		case <-time.After(s.opts.Tick):
		}
	}
}

// heartbeat renews the lock on its own timer, decoupled from job execution.
func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.lock.cfg.RenewEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.lock.Renew(ctx)
		}
	}
}

// RunAll executes every currently active schedule immediately, ignoring
// time-of-day. Intended for manual verification from the CLI; resolution and
// error handling are identical to normal dispatch, only the due-check is
// bypassed.
func (s *Service) RunAll(ctx context.Context) error {
	schedules, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return err
	}
	s.log.Info("running all active schedules immediately", logx.Int("count", len(schedules)))
	for _, sched := range schedules {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sched.Definition == nil || sched.Definition.Key == "" {
			s.log.Warn("skipping schedule without definition", logx.String("schedule", sched.Name))
			continue
		}
		handler, ok := s.registry.Lookup(sched.Definition.Key)
		if !ok {
			s.log.Warn("skipping schedule with unknown definition",
				logx.String("schedule", sched.Name),
				logx.String("definition", sched.Definition.Key),
			)
			continue
		}
		if len(sched.Recipients) == 0 {
			s.log.Warn("skipping schedule without active recipients", logx.String("schedule", sched.Name))
			continue
		}
		s.log.Info("executing", logx.String("schedule", sched.Name), logx.String("job", sched.Definition.Key))
		s.dispatcher.Execute(ctx, sched.Name, sched.Definition.Key, handler, sched.Recipients, ResolveTemplate(sched))
	}
	return nil
}
