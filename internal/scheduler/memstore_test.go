package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"metasbot/internal/storage"
)

// memStore is an in-memory storage.Store for scheduler tests. Failure modes
// are injectable per query family.
type memStore struct {
	mu sync.Mutex

	schedules map[int64]storage.Schedule
	jobs      map[int64]*storage.QueueJob
	events    []memEvent
	lock      *storage.LockRecord

	listErr   error // ListActiveSchedules / ListPendingQueueJobs / GetSchedule
	lockErr   error // GetLock / PutLock / RenewLock
	denyClaim bool
}

type memEvent struct {
	Type      string
	Details   map[string]any
	ContactID *int64
}

func newMemStore() *memStore {
	return &memStore{
		schedules: map[int64]storage.Schedule{},
		jobs:      map[int64]*storage.QueueJob{},
	}
}

func (m *memStore) addSchedule(s storage.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = s
}

func (m *memStore) addJob(j storage.QueueJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := j
	if cp.Status == "" {
		cp.Status = storage.JobPending
	}
	m.jobs[cp.ID] = &cp
}

func (m *memStore) jobStatus(id int64) storage.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return j.Status
	}
	return ""
}

func (m *memStore) jobLogs(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return j.Logs
	}
	return ""
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

func (m *memStore) ListActiveSchedules(context.Context) ([]storage.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []storage.Schedule
	for _, s := range m.schedules {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetSchedule(_ context.Context, id int64) (*storage.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	s, ok := m.schedules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListPendingQueueJobs(context.Context) ([]storage.QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []storage.QueueJob
	for _, j := range m.jobs {
		if j.Status == storage.JobPending {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStore) ClaimQueueJob(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denyClaim {
		return false, nil
	}
	j, ok := m.jobs[id]
	if !ok || j.Status != storage.JobPending {
		return false, nil
	}
	j.Status = storage.JobProcessing
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) UpdateQueueJobStatus(_ context.Context, id int64, status storage.JobStatus, logs string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if j.Status.Terminal() {
		return storage.ErrTerminalStatus
	}
	j.Status = status
	j.Logs = logs
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, eventType string, details map[string]any, contactID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, memEvent{Type: eventType, Details: details, ContactID: contactID})
	return nil
}

func (m *memStore) GetLock(context.Context) (*storage.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	if m.lock == nil {
		return nil, nil
	}
	cp := *m.lock
	return &cp, nil
}

func (m *memStore) PutLock(_ context.Context, rec storage.LockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return m.lockErr
	}
	cp := rec
	m.lock = &cp
	return nil
}

func (m *memStore) RenewLock(_ context.Context, owner string, heartbeat time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return false, m.lockErr
	}
	if m.lock == nil || m.lock.Owner != owner {
		return false, nil
	}
	m.lock.Heartbeat = heartbeat
	return true, nil
}

func (m *memStore) DeleteLock(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lock != nil && m.lock.Owner == owner {
		m.lock = nil
	}
	return nil
}

func (m *memStore) Close() error { return nil }

// recordingNotifier captures admin alerts.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}
