package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// LockConfig controls single-instance locking.
type LockConfig struct {
	// StaleAfter is the heartbeat age past which an existing lock is
	// presumed abandoned by a crashed instance. Default 60s.
	StaleAfter time.Duration
	// RenewEvery rate-limits heartbeat writes. Default 10s.
	RenewEvery time.Duration
}

func (c *LockConfig) defaults() {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 60 * time.Second
	}
	if c.RenewEvery <= 0 {
		c.RenewEvery = 10 * time.Second
	}
}

// LockManager guards the store with a single-owner lease: exactly one live
// scheduler instance per database. Liveness is judged purely by heartbeat
// age, never by process checks.
type LockManager struct {
	store storage.Store
	log   logx.Logger
	cfg   LockConfig
	owner string

	mu        sync.Mutex
	lastRenew time.Time

	now func() time.Time
}

func NewLockManager(store storage.Store, log logx.Logger, cfg LockConfig) *LockManager {
	cfg.defaults()
	host, _ := os.Hostname()
	return &LockManager{
		store: store,
		log:   log,
		cfg:   cfg,
		owner: fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()),
		now:   time.Now,
	}
}

func (m *LockManager) Owner() string { return m.owner }

// Acquire takes the lock, replacing a stale record if needed. This is a
// one-shot decision at startup: (false, nil) means another live instance
// holds the lock and the caller must exit without retrying.
//
// Any store error means the lock state cannot be determined; an
// undetermined lock is treated as held.
func (m *LockManager) Acquire(ctx context.Context) (bool, error) {
	rec, err := m.store.GetLock(ctx)
	if err != nil {
		return false, fmt.Errorf("lock state unknown: %w", err)
	}
	now := m.now()
	if rec != nil {
		age := now.Sub(rec.Heartbeat)
		if age < m.cfg.StaleAfter {
			m.log.Error("scheduler already running",
				logx.String("owner", rec.Owner),
				logx.Duration("heartbeat_age", age),
			)
			return false, nil
		}
		m.log.Warn("stale lock found, assuming previous instance crashed",
			logx.String("owner", rec.Owner),
			logx.Duration("heartbeat_age", age),
		)
	}
	if err := m.store.PutLock(ctx, storage.LockRecord{Owner: m.owner, Heartbeat: now}); err != nil {
		return false, fmt.Errorf("lock write failed: %w", err)
	}
	m.mu.Lock()
	m.lastRenew = now
	m.mu.Unlock()
	m.log.Info("single-instance lock acquired", logx.String("owner", m.owner))
	return true, nil
}

// Renew refreshes the heartbeat, at most once per RenewEvery. Safe to call
// from both the loop and the heartbeat goroutine.
func (m *LockManager) Renew(ctx context.Context) error {
	now := m.now()
	m.mu.Lock()
	if now.Sub(m.lastRenew) < m.cfg.RenewEvery {
		m.mu.Unlock()
		return nil
	}
	m.lastRenew = now
	m.mu.Unlock()

	ok, err := m.store.RenewLock(ctx, m.owner, now)
	if err != nil {
		m.log.Warn("heartbeat update failed", logx.Err(err))
		return err
	}
	if !ok {
		m.log.Error("lock ownership lost, another instance may have taken over")
		return ErrLockLost
	}
	return nil
}

// Release deletes the lock record. Called on every exit path; a failure here
// only costs the next instance a staleness wait, so it is logged, not
// propagated.
func (m *LockManager) Release(ctx context.Context) {
	if err := m.store.DeleteLock(ctx, m.owner); err != nil {
		m.log.Warn("lock release failed", logx.Err(err))
		return
	}
	m.log.Info("single-instance lock released")
}
