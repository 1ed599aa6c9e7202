package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")

	// ErrTerminalStatus is returned when a status update targets a job that
	// already reached completed/failed. Terminal states are never reverted.
	ErrTerminalStatus = errors.New("storage: queue job is in a terminal state")
)

// Store is the persistence surface consumed by the scheduler core.
// All mutation relies on the store's own atomicity (conditional updates),
// so two processes sharing one database cannot double-claim work.
type Store interface {
	// ListActiveSchedules returns every schedule with active=true, joined
	// with its definition (and the definition's default template), template
	// override and active recipients.
	ListActiveSchedules(ctx context.Context) ([]Schedule, error)

	// GetSchedule returns one schedule with its definition joined.
	// Returns ErrNotFound when the id does not exist.
	GetSchedule(ctx context.Context, id int64) (*Schedule, error)

	// ListPendingQueueJobs returns pending jobs ordered by created_at
	// ascending (strict FIFO).
	ListPendingQueueJobs(ctx context.Context) ([]QueueJob, error)

	// ClaimQueueJob conditionally moves a job from pending to processing.
	// It reports false when the job was already claimed (or is gone).
	ClaimQueueJob(ctx context.Context, id int64) (bool, error)

	// UpdateQueueJobStatus sets the status and logs of a job. Attempting to
	// transition a job out of a terminal state returns ErrTerminalStatus.
	UpdateQueueJobStatus(ctx context.Context, id int64, status JobStatus, logs string) error

	// AppendEvent writes one row to the append-only automation log.
	AppendEvent(ctx context.Context, eventType string, details map[string]any, contactID *int64) error

	// GetLock returns the lock record, or (nil, nil) when none exists.
	GetLock(ctx context.Context) (*LockRecord, error)

	// PutLock creates or replaces the lock record.
	PutLock(ctx context.Context, rec LockRecord) error

	// RenewLock refreshes the heartbeat iff the record is still owned by
	// owner. It reports false when ownership was lost.
	RenewLock(ctx context.Context, owner string, heartbeat time.Time) (bool, error)

	// DeleteLock removes the lock record iff it is owned by owner.
	DeleteLock(ctx context.Context, owner string) error

	Close() error
}
