package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, ch <-chan time.Time) time.Time {
	t.Helper()
	select {
	case ts := <-ch:
		return ts
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action")
		return time.Time{}
	}
}

func TestScheduleRunsNotEarly(t *testing.T) {
	s := newTestScheduler(t)
	fired := make(chan time.Time, 1)

	at := time.Now().Add(50 * time.Millisecond)
	if err := s.Schedule("poll:1", at, func(context.Context) { fired <- time.Now() }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !s.Pending("poll:1") {
		t.Error("expected poll:1 to be pending")
	}

	got := waitFor(t, fired)
	if got.Before(at) {
		t.Errorf("action ran %v early", at.Sub(got))
	}
	if s.Pending("poll:1") {
		t.Error("poll:1 still pending after firing")
	}
}

func TestScheduleRearmsWhenTimerWakesEarly(t *testing.T) {
	s := newTestScheduler(t)

	var mu sync.Mutex
	skew := 40 * time.Millisecond
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return time.Now().Add(skew)
	}

	fired := make(chan time.Time, 1)
	at := time.Now().Add(60 * time.Millisecond)
	// The clock runs ahead while scheduling, so the timer is armed for ~20ms
	// and wakes before at once the clock is corrected.
	if err := s.Schedule("k", at, func(context.Context) { fired <- time.Now() }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	mu.Lock()
	skew = 0
	mu.Unlock()

	got := waitFor(t, fired)
	if got.Before(at) {
		t.Errorf("action ran %v before its time", at.Sub(got))
	}
}

func TestScheduleErrors(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	noop := func(context.Context) {}

	unstarted := New(log)
	if err := unstarted.Schedule("a", time.Now().Add(time.Hour), noop); !errors.Is(err, ErrNotStarted) {
		t.Errorf("unstarted Schedule error = %v, want ErrNotStarted", err)
	}

	s := newTestScheduler(t)

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{name: "past", at: time.Now().Add(-time.Second), want: ErrInPast},
		{name: "now", at: s.now(), want: ErrInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Schedule("x", tt.at, noop); !errors.Is(err, tt.want) {
				t.Errorf("Schedule error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := s.Schedule("dup", time.Now().Add(time.Hour), noop); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule("dup", time.Now().Add(time.Hour), noop); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Schedule error = %v, want ErrDuplicate", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestCancel(t *testing.T) {
	s := newTestScheduler(t)
	var ran atomic.Bool

	if err := s.Schedule("c", time.Now().Add(30*time.Millisecond), func(context.Context) { ran.Store(true) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !s.Cancel("c") {
		t.Fatal("Cancel returned false for pending key")
	}
	if s.Cancel("c") {
		t.Error("second Cancel returned true")
	}

	time.Sleep(80 * time.Millisecond)
	if ran.Load() {
		t.Error("cancelled action ran")
	}
}

func TestActionsRunConcurrently(t *testing.T) {
	s := newTestScheduler(t)
	release := make(chan struct{})
	started := make(chan time.Time, 2)

	at := time.Now().Add(10 * time.Millisecond)
	for _, key := range []string{"a", "b"} {
		if err := s.Schedule(key, at, func(context.Context) {
			started <- time.Now()
			<-release
		}); err != nil {
			t.Fatalf("Schedule(%s): %v", key, err)
		}
	}

	waitFor(t, started)
	waitFor(t, started)
	close(release)
}

func TestPanickingActionIsRecovered(t *testing.T) {
	s := newTestScheduler(t)
	fired := make(chan time.Time, 1)

	at := time.Now().Add(5 * time.Millisecond)
	if err := s.Schedule("boom", at, func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule("ok", at.Add(20*time.Millisecond), func(context.Context) { fired <- time.Now() }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, fired)
}

func TestStopWaitsForInFlight(t *testing.T) {
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start(context.Background())

	started := make(chan time.Time, 1)
	var finished atomic.Bool
	if err := s.Schedule("slow", time.Now().Add(5*time.Millisecond), func(context.Context) {
		started <- time.Now()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	var dropped atomic.Bool
	if err := s.Schedule("later", time.Now().Add(time.Hour), func(context.Context) { dropped.Store(true) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, started)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !finished.Load() {
		t.Error("Stop returned before in-flight action finished")
	}
	if s.Len() != 0 {
		t.Errorf("Len after Stop = %d", s.Len())
	}
	if dropped.Load() {
		t.Error("unfired action ran after Stop")
	}
	if err := s.Schedule("x", time.Now().Add(time.Hour), func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Schedule after Stop error = %v, want ErrStopped", err)
	}
}

func TestStopAbandonsOnTimeout(t *testing.T) {
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start(context.Background())

	started := make(chan time.Time, 1)
	cancelled := make(chan time.Time, 1)
	if err := s.Schedule("stuck", time.Now().Add(5*time.Millisecond), func(ctx context.Context) {
		started <- time.Now()
		<-ctx.Done()
		cancelled <- time.Now()
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitFor(t, started)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop error = %v, want DeadlineExceeded", err)
	}
	waitFor(t, cancelled)
}
