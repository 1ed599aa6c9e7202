package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

func noopHandler() Handler {
	return HandlerFunc(func(context.Context, []storage.Contact, string) error { return nil })
}

func testSchedule(id int64, key string, days []int, at string, recipients ...storage.Contact) storage.Schedule {
	return storage.Schedule{
		ID:            id,
		Name:          "sched-" + key,
		ScheduledTime: at,
		DaysOfWeek:    days,
		Active:        true,
		Definition:    &storage.Definition{ID: id, Key: key},
		Recipients:    recipients,
	}
}

func TestRefreshBuildsPerDayTriggers(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	reg := NewRegistry()
	reg.Register("metas_diarias", noopHandler())

	rcpt := storage.Contact{ID: 1, Name: "Ana", Phone: "5511999990000", Active: true}
	st.addSchedule(testSchedule(1, "metas_diarias", []int{1, 3, 5}, "09:00", rcpt))

	r := NewRefresher(st, reg, logx.Nop())
	tbl, err := r.Refresh(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if tbl.Len() != 3 {
		t.Fatalf("trigger count = %d, want 3 (one per weekday)", tbl.Len())
	}
	for _, tr := range tbl.entries {
		if tr.next.IsZero() {
			t.Fatal("trigger registered without a next due instant")
		}
		if tr.defKey != "metas_diarias" {
			t.Fatalf("defKey = %q", tr.defKey)
		}
	}
}

func TestRefreshNormalizesSundayConventions(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	reg := NewRegistry()
	reg.Register("metas_diarias", noopHandler())

	rcpt := storage.Contact{ID: 1, Name: "Ana", Phone: "5511999990000", Active: true}
	// 0 and 7 both mean Sunday; only one trigger may result.
	st.addSchedule(testSchedule(1, "metas_diarias", []int{0, 7}, "08:30", rcpt))

	r := NewRefresher(st, reg, logx.Nop())
	tbl, err := r.Refresh(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("trigger count = %d, want 1 (0 and 7 are the same day)", tbl.Len())
	}
}

func TestRefreshSkipsUnknownDefinition(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	reg := NewRegistry()
	reg.Register("known", noopHandler())

	rcpt := storage.Contact{ID: 1, Name: "Ana", Phone: "5511999990000", Active: true}
	st.addSchedule(testSchedule(1, "mystery", []int{1}, "09:00", rcpt))
	st.addSchedule(testSchedule(2, "known", []int{1}, "10:00", rcpt))

	r := NewRefresher(st, reg, logx.Nop())
	tbl, err := r.Refresh(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	// The unknown definition skips its schedule only; the rest registers.
	if tbl.Len() != 1 {
		t.Fatalf("trigger count = %d, want 1", tbl.Len())
	}
	if tbl.entries[0].defKey != "known" {
		t.Fatalf("registered defKey = %q, want %q", tbl.entries[0].defKey, "known")
	}
}

func TestRefreshSkipsScheduleWithoutRecipients(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	reg := NewRegistry()
	reg.Register("metas_diarias", noopHandler())

	st.addSchedule(testSchedule(1, "metas_diarias", []int{1}, "09:00")) // no recipients

	r := NewRefresher(st, reg, logx.Nop())
	tbl, err := r.Refresh(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatal("schedule without active recipients must not register triggers")
	}
}

func TestRefreshSkipsInvalidTime(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	reg := NewRegistry()
	reg.Register("metas_diarias", noopHandler())

	rcpt := storage.Contact{ID: 1, Name: "Ana", Phone: "5511999990000", Active: true}
	st.addSchedule(testSchedule(1, "metas_diarias", []int{1}, "25:99", rcpt))

	r := NewRefresher(st, reg, logx.Nop())
	tbl, err := r.Refresh(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatal("invalid scheduled_time must skip the schedule, not register it")
	}
}

func TestRefreshAcceptsSecondsInTime(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	reg := NewRegistry()
	reg.Register("metas_diarias", noopHandler())

	rcpt := storage.Contact{ID: 1, Name: "Ana", Phone: "5511999990000", Active: true}
	st.addSchedule(testSchedule(1, "metas_diarias", []int{2}, "14:00:00", rcpt))

	r := NewRefresher(st, reg, logx.Nop())
	tbl, err := r.Refresh(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatal("HH:MM:SS scheduled_time must be accepted (seconds dropped)")
	}
}

func TestRefreshPropagatesStoreError(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.listErr = errors.New("store unreachable")

	r := NewRefresher(st, NewRegistry(), logx.Nop())
	if _, err := r.Refresh(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error when the store is unreachable")
	}
}
