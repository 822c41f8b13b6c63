// Package scheduler runs keyed one-shot actions at or after a wall-clock time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"community_bot/internal/telemetry"
)

// Errors returned by Schedule.
var (
	ErrNotStarted = errors.New("scheduler not started")
	ErrStopped    = errors.New("scheduler stopped")
	ErrInPast     = errors.New("scheduled time is not in the future")
	ErrDuplicate  = errors.New("action already scheduled")
)

// Action is the work run when a scheduled time arrives. ctx is cancelled
// only when Stop gives up waiting for in-flight actions.
type Action func(ctx context.Context)

// Scheduler runs each action once, on its own goroutine, no earlier than its
// scheduled time.
type Scheduler struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	base    context.Context
	cancel  context.CancelFunc
	pending map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

type entry struct {
	at     time.Time
	action Action
	timer  *time.Timer
}

// New creates a Scheduler. Start must be called before Schedule.
func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:     log,
		now:     time.Now,
		pending: make(map[string]*entry),
	}
}

// Start enables scheduling. Actions receive a context derived from ctx.
// Calling Start more than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		return
	}
	s.base, s.cancel = context.WithCancel(ctx)
}

// Schedule arranges for action to run once at or after at. It returns
// ErrInPast when at is not after the current time, leaving the caller to run
// the action itself, and ErrDuplicate when key is already pending.
func (s *Scheduler) Schedule(key string, at time.Time, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return ErrStopped
	case s.base == nil:
		return ErrNotStarted
	}
	if _, ok := s.pending[key]; ok {
		return ErrDuplicate
	}
	delay := at.Sub(s.now())
	if delay <= 0 {
		return ErrInPast
	}

	e := &entry{at: at, action: action}
	e.timer = time.AfterFunc(delay, func() { s.fire(key, e) })
	s.pending[key] = e
	telemetry.ScheduledActions.Inc()
	return nil
}

// Cancel drops a pending action. It reports whether the action was removed
// before it started.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, key)
	telemetry.ScheduledActions.Dec()
	return true
}

// Pending reports whether key is scheduled and has not started.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Len returns the number of pending actions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) fire(key string, e *entry) {
	s.mu.Lock()
	if cur, ok := s.pending[key]; !ok || cur != e {
		s.mu.Unlock()
		return
	}
	// Timers may wake slightly early relative to the wall clock.
	if remaining := e.at.Sub(s.now()); remaining > 0 {
		e.timer = time.AfterFunc(remaining, func() { s.fire(key, e) })
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	telemetry.ScheduledActions.Dec()
	s.wg.Add(1)
	ctx := s.base
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("scheduled action panicked", "key", key, "panic", p)
		}
	}()
	e.action(ctx)
}

// Stop refuses new actions, drops the ones not yet started and waits for
// running actions to return. When ctx expires first, running actions have
// their context cancelled and Stop returns ctx.Err().
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for key, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, key)
		telemetry.ScheduledActions.Dec()
	}
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		s.log.Warn("abandoning in-flight scheduled actions")
		return ctx.Err()
	}
}
