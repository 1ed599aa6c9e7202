package storage

import (
	"encoding/json"
	"time"
)

// Definition is a named job type. Immutable at runtime; the key selects the
// handler implementation in the registry.
type Definition struct {
	ID          int64
	Key         string
	Name        string
	Description string

	// DefaultTemplate is used when a schedule has no template of its own.
	DefaultTemplate *Template
}

// Template holds raw message content. Placeholder substitution happens in the
// job handler, never here.
type Template struct {
	ID      int64
	Name    string
	Content string
}

// Contact is a message recipient. Only active contacts are eligible for a
// schedule.
type Contact struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Department string `json:"department,omitempty"`
	Active     bool   `json:"active"`
}

// Schedule binds a Definition to a recurrence rule, a recipient list and an
// optional template override. Created and edited outside this daemon;
// read-only here.
type Schedule struct {
	ID   int64
	Name string

	// ScheduledTime is a time of day, "HH:MM" or "HH:MM:SS". No timezone
	// conversion happens in this daemon; the value is assumed to already be
	// in the execution timezone.
	ScheduledTime string

	// DaysOfWeek are weekday numbers 0-7; both 0 and 7 mean Sunday so either
	// upstream convention works.
	DaysOfWeek []int

	Active bool

	Definition *Definition
	Template   *Template
	Recipients []Contact
}

// JobStatus is the queue-job lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// QueueJob is a one-off execution request, processed FIFO by created_at.
type QueueJob struct {
	ID         int64
	ScheduleID *int64
	Payload    json.RawMessage
	Status     JobStatus
	Logs       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// QueuePayload is the expected shape of QueueJob.Payload.
type QueuePayload struct {
	Recipients      []Contact `json:"recipients"`
	TemplateContent string    `json:"template_content"`
}

// LockRecord is the single-owner execution lock. Staleness is judged purely
// by heartbeat age.
type LockRecord struct {
	Owner     string
	Heartbeat time.Time
}

// Event is one row of the append-only automation log.
type Event struct {
	ID        int64
	Type      string
	Details   json.RawMessage
	ContactID *int64
	CreatedAt time.Time
}
