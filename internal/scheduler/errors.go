package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrLockUnavailable means another live instance holds the execution lock.
// Fatal at startup: the process must exit without entering the main loop.
var ErrLockUnavailable = errors.New("scheduler lock is held by another instance")

// ErrLockLost means the heartbeat update found the lock owned by someone
// else. The running instance keeps working but the condition is logged loudly.
var ErrLockLost = errors.New("scheduler lock ownership lost")

// ErrNoDefinition means a queue job could not be traced back to an
// automation definition. The message doubles as the operator-facing log line,
// hence the Portuguese wording carried over from the operations runbook.
var ErrNoDefinition = errors.New("não foi possível identificar a definição da automação (schedule_id inválido ou ausente)")

// UnknownDefinitionError is returned when a definition key has no registered
// handler. Lookup misses are typed, never silently defaulted.
type UnknownDefinitionError struct {
	Key string
}

func (e *UnknownDefinitionError) Error() string {
	return fmt.Sprintf("job desconhecido: %s", e.Key)
}

// TimeoutError marks a handler that exceeded the per-job timeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: job excedeu %s", e.After)
}
