package scheduler

import (
	"context"
	"time"

	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// Refresher rebuilds the trigger table from the store. A refresh is a full
// replace, never an incremental diff: schedules deleted or deactivated
// upstream disappear from triggering within one refresh cycle.
type Refresher struct {
	store    storage.Store
	registry *Registry
	log      logx.Logger
}

func NewRefresher(store storage.Store, registry *Registry, log logx.Logger) *Refresher {
	return &Refresher{store: store, registry: registry, log: log}
}

// Refresh loads active schedules and builds a fresh table. On a store error
// it returns (nil, err) and the caller keeps the previous table; a broken
// refresh must degrade, not crash.
//
// Per-schedule problems (unknown definition, no active recipients, bad time)
// skip that schedule with a warning and never abort the whole refresh.
func (r *Refresher) Refresh(ctx context.Context, now time.Time) (*TriggerTable, error) {
	schedules, err := r.store.ListActiveSchedules(ctx)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		r.log.Warn("no active schedules found")
	}

	tbl := &TriggerTable{}
	for _, sched := range schedules {
		r.addSchedule(tbl, sched, now)
	}
	r.log.Info("trigger table rebuilt",
		logx.Int("schedules", len(schedules)),
		logx.Int("triggers", tbl.Len()),
	)
	return tbl, nil
}

func (r *Refresher) addSchedule(tbl *TriggerTable, sched storage.Schedule, now time.Time) {
	log := r.log.With(logx.String("schedule", sched.Name), logx.Int64("schedule_id", sched.ID))

	if sched.Definition == nil || sched.Definition.Key == "" {
		log.Warn("skipping schedule without definition")
		return
	}
	key := sched.Definition.Key

	handler, ok := r.registry.Lookup(key)
	if !ok {
		log.Warn("skipping schedule with unknown definition", logx.String("definition", key))
		return
	}
	// Never default to "send to everyone": a schedule without active
	// recipients is skipped, loudly.
	if len(sched.Recipients) == 0 {
		log.Warn("skipping schedule without active recipients")
		return
	}

	hour, minute, err := parseHHMM(sched.ScheduledTime)
	if err != nil {
		log.Warn("skipping schedule with invalid time", logx.Err(err))
		return
	}

	template := ResolveTemplate(sched)
	days := normalizeDays(sched.DaysOfWeek)

	for _, day := range days {
		spec := buildDaySpec(hour, minute, day)
		cs, err := cronParser.Parse(spec)
		if err != nil {
			log.Warn("skipping bad trigger spec", logx.String("spec", spec), logx.Err(err))
			continue
		}
		tbl.entries = append(tbl.entries, &trigger{
			scheduleID:   sched.ID,
			scheduleName: sched.Name,
			defKey:       key,
			handler:      handler,
			recipients:   sched.Recipients,
			template:     template,
			sched:        cs,
			next:         cs.Next(now),
		})
	}
	log.Info("schedule registered",
		logx.String("definition", key),
		logx.String("at", sched.ScheduledTime),
		logx.Any("days", days),
		logx.Int("recipients", len(sched.Recipients)),
	)
}
