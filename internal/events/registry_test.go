package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"community_bot/internal/chat"
	"community_bot/internal/telemetry"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatchRoutesByKind(t *testing.T) {
	r := newTestRegistry()

	var mu sync.Mutex
	var got []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	}

	Handle(r, func(_ context.Context, ev MessageCreated) error {
		record("first:" + ev.Message.Content)
		return nil
	})
	Handle(r, func(_ context.Context, ev MessageCreated) error {
		record("second:" + ev.Message.Content)
		return nil
	})
	Handle(r, func(_ context.Context, ev ReactionAdded) error {
		record("reaction")
		return nil
	})

	r.Dispatch(context.Background(), MessageCreated{Message: chat.Message{Content: "hi"}})

	want := []string{"first:hi", "second:hi"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("handlers mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchSurvivesErrorsAndPanics(t *testing.T) {
	r := newTestRegistry()
	called := false

	Handle(r, func(context.Context, Ready) error { return errors.New("boom") })
	Handle(r, func(context.Context, Ready) error { panic("kaboom") })
	Handle(r, func(context.Context, Ready) error {
		called = true
		return nil
	})

	r.Dispatch(context.Background(), Ready{})

	if !called {
		t.Error("handler after failing ones was not called")
	}
}

func TestDispatchAddsCorrelation(t *testing.T) {
	r := newTestRegistry()
	var corr string
	Handle(r, func(ctx context.Context, _ MemberJoined) error {
		corr = telemetry.GetCorrelation(ctx)
		return nil
	})

	r.Dispatch(context.Background(), MemberJoined{})
	if corr == "" {
		t.Error("expected a correlation id in handler context")
	}

	r.Dispatch(telemetry.WithCorrelation(context.Background(), "given"), MemberJoined{})
	if corr != "given" {
		t.Errorf("correlation = %q, want given", corr)
	}
}

func TestWait(t *testing.T) {
	r := newTestRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan Event, 1)
	go func() {
		ev, err := r.Wait(ctx, KindMessageCreated, func(ev Event) bool {
			return ev.(MessageCreated).Message.Author.ID == 7
		})
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		done <- ev
	}()

	// Give the waiter time to register.
	deadline := time.Now().Add(time.Second)
	for {
		r.mu.RLock()
		n := len(r.waiters)
		r.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	r.Dispatch(context.Background(), MessageCreated{Message: chat.Message{Author: chat.User{ID: 1}, Content: "wrong"}})
	r.Dispatch(context.Background(), MessageCreated{Message: chat.Message{Author: chat.User{ID: 7}, Content: "right"}})

	ev := <-done
	if got := ev.(MessageCreated).Message.Content; got != "right" {
		t.Errorf("Wait returned %q, want right", got)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.waiters) != 0 {
		t.Errorf("waiters left registered: %d", len(r.waiters))
	}
}

func TestWaitTimeout(t *testing.T) {
	r := newTestRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Wait(ctx, KindMessageCreated, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want DeadlineExceeded", err)
	}
}

func TestKindString(t *testing.T) {
	if got := KindReactionAdded.String(); got != "reaction_added" {
		t.Errorf("String() = %q", got)
	}
	if got := Kind(99).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}
