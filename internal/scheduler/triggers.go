package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"metasbot/internal/storage"
)

// cronParser parses the per-day specs built by buildDaySpec. Standard five
// fields, no descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// trigger is one (weekday, time-of-day) entry of the trigger table. Entries
// carry everything needed to fire so the dispatcher never goes back to the
// store on the hot path.
type trigger struct {
	scheduleID   int64
	scheduleName string
	defKey       string
	handler      Handler
	recipients   []storage.Contact
	template     string

	sched cron.Schedule
	// next is the next due instant. The dispatcher fires when the wall clock
	// reaches it and then advances it, which guarantees at-most-once firing
	// per due instant regardless of tick granularity.
	next time.Time
}

// TriggerTable is the in-memory structure rebuilt wholesale on every refresh.
// It is owned by the scheduler loop goroutine and never patched in place.
type TriggerTable struct {
	entries []*trigger
}

func (t *TriggerTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// parseHHMM accepts "HH:MM" and "HH:MM:SS"; seconds are dropped, matching the
// minute granularity of the dispatcher.
func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// normalizeDays maps weekday 7 to 0 (both mean Sunday upstream), drops
// out-of-range values and de-duplicates, preserving first-seen order so
// registration order stays stable.
func normalizeDays(days []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d == 7 {
			d = 0
		}
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func buildDaySpec(hour, minute, day int) string {
	return fmt.Sprintf("%d %d * * %d", minute, hour, day)
}
