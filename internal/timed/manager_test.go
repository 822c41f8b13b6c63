package timed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/go-cmp/cmp"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"community_bot/internal/chat"
	"community_bot/internal/model"
	"community_bot/internal/reactable"
	"community_bot/internal/scheduler"
	"community_bot/internal/storage"
	"community_bot/internal/telemetry"
	"community_bot/internal/testutil"
)

// --- fakes ---

type recordingScheduler struct {
	mu      sync.Mutex
	at      map[string]time.Time
	actions map[string]scheduler.Action
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{
		at:      make(map[string]time.Time),
		actions: make(map[string]scheduler.Action),
	}
}

func (r *recordingScheduler) Schedule(key string, at time.Time, action scheduler.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.at[key]; ok {
		return scheduler.ErrDuplicate
	}
	if !at.After(time.Now()) {
		return scheduler.ErrInPast
	}
	r.at[key] = at
	r.actions[key] = action
	return nil
}

func (r *recordingScheduler) keys() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.at))
	for k, v := range r.at {
		out[k] = v
	}
	return out
}

func (r *recordingScheduler) fire(ctx context.Context, key string) {
	r.mu.Lock()
	action := r.actions[key]
	r.mu.Unlock()
	action(ctx)
}

type failingInsertStore struct {
	Store
	err error
}

func (f failingInsertStore) InsertPoll(context.Context, *model.Poll) error { return f.err }

type env struct {
	store *storage.SQL
	chat  *testutil.FakeChat
	sched *recordingScheduler
	m     *Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store: testutil.NewStore(t),
		chat:  testutil.NewFakeChat(),
		sched: newRecordingScheduler(),
	}
	e.m = NewManager(e.store, e.chat, e.sched, testutil.Logger())
	return e
}

var (
	thumbsUp   = reactable.MustParse("👍")
	thumbsDown = reactable.MustParse("👎")
	custom     = reactable.MustParse("<:pepe:42>")
)

// seedPoll stores a poll whose display message exists in the fake chat.
func (e *env) seedPoll(t *testing.T, msgID snowflake.ID, finish time.Time) *model.Poll {
	t.Helper()
	e.chat.PutMessage(chat.Message{ID: msgID, ChannelID: 1})
	p := &model.Poll{
		ChannelID:  1,
		MessageID:  msgID,
		FinishTime: finish,
		Question:   "Tabs or spaces?",
		Emoji1:     thumbsUp.String(),
		Emoji2:     thumbsDown.String(),
	}
	if err := e.store.InsertPoll(context.Background(), p); err != nil {
		t.Fatalf("InsertPoll: %v", err)
	}
	return p
}

func (e *env) seedGiveaway(t *testing.T, msgID snowflake.ID, finish time.Time) *model.Giveaway {
	t.Helper()
	e.chat.PutMessage(chat.Message{ID: msgID, ChannelID: 1})
	g := &model.Giveaway{ChannelID: 1, MessageID: msgID, FinishTime: finish, Prize: "Nitro", AuthorID: 5}
	if err := e.store.InsertGiveaway(context.Background(), g); err != nil {
		t.Fatalf("InsertGiveaway: %v", err)
	}
	return g
}

func react(t *testing.T, c *testutil.FakeChat, msgID snowflake.ID, emoji reactable.Reactable, users ...snowflake.ID) {
	t.Helper()
	for _, u := range users {
		if err := c.React(msgID, emoji, u); err != nil {
			t.Fatalf("React: %v", err)
		}
	}
}

func contents(sent []testutil.Sent) []string {
	var out []string
	for _, s := range sent {
		if s.Msg.Embed != nil {
			out = append(out, s.Msg.Embed.Title+"|"+s.Msg.Embed.Description)
			continue
		}
		out = append(out, s.Msg.Content)
	}
	return out
}

// --- creation ---

func TestCreatePollValidation(t *testing.T) {
	tests := []struct {
		name string
		req  PollRequest
	}{
		{name: "zero duration", req: PollRequest{ChannelID: 1, Emoji1: thumbsUp, Emoji2: thumbsDown, Question: "q"}},
		{name: "negative duration", req: PollRequest{ChannelID: 1, Duration: -time.Second, Emoji1: thumbsUp, Emoji2: thumbsDown, Question: "q"}},
		{name: "same emoji", req: PollRequest{ChannelID: 1, Duration: time.Hour, Emoji1: thumbsUp, Emoji2: thumbsUp, Question: "q"}},
		{name: "missing emoji", req: PollRequest{ChannelID: 1, Duration: time.Hour, Emoji1: thumbsUp, Question: "q"}},
		{name: "empty question", req: PollRequest{ChannelID: 1, Duration: time.Hour, Emoji1: thumbsUp, Emoji2: thumbsDown}},
		{name: "long question", req: PollRequest{ChannelID: 1, Duration: time.Hour, Emoji1: thumbsUp, Emoji2: thumbsDown, Question: strings.Repeat("x", MaxQuestionLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.m.CreatePoll(context.Background(), tt.req)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("CreatePoll error = %v, want ValidationError", err)
			}
			if n := len(e.chat.Sent()); n != 0 {
				t.Errorf("sent %d messages, want 0", n)
			}
			polls, _ := e.store.ListPolls(context.Background())
			if len(polls) != 0 {
				t.Errorf("persisted %d polls, want 0", len(polls))
			}
		})
	}
}

func TestCreatePollSchedulesFutureFinish(t *testing.T) {
	e := newEnv(t)
	now := time.Date(2030, 5, 1, 12, 0, 0, 250_000_000, time.UTC)
	e.m.now = func() time.Time { return now }

	p, err := e.m.CreatePoll(context.Background(), PollRequest{
		ChannelID: 7,
		Duration:  90 * time.Minute,
		Emoji1:    thumbsUp,
		Emoji2:    custom,
		Question:  "Ship it?",
	})
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}

	wantFinish := time.Date(2030, 5, 1, 13, 30, 1, 0, time.UTC)
	if !p.FinishTime.Equal(wantFinish) {
		t.Errorf("FinishTime = %v, want %v", p.FinishTime, wantFinish)
	}

	stored, err := e.store.GetPoll(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GetPoll: %v", err)
	}
	if diff := cmp.Diff(p, stored); diff != "" {
		t.Errorf("stored poll mismatch (-want +got):\n%s", diff)
	}
	if stored.Emoji2 != "<:pepe:42>" {
		t.Errorf("Emoji2 = %q, want display form", stored.Emoji2)
	}

	if diff := cmp.Diff(map[string]time.Time{Key(model.KindPoll, p.ID): wantFinish}, e.sched.keys()); diff != "" {
		t.Errorf("scheduled mismatch (-want +got):\n%s", diff)
	}

	embed, ok := e.chat.EmbedOf(p.MessageID)
	if !ok {
		t.Fatal("display message has no embed")
	}
	want := chat.Embed{
		Title:       "New Poll",
		Description: "Ship it?\n\nTime left: 1h30m",
		Footer:      "React with a 👍 or <:pepe:42>",
		Color:       chat.ColorSuccess,
	}
	if diff := cmp.Diff(want, embed); diff != "" {
		t.Errorf("embed mismatch (-want +got):\n%s", diff)
	}

	for _, emoji := range []reactable.Reactable{thumbsUp, custom} {
		if diff := cmp.Diff([]snowflake.ID{testutil.BotID}, e.chat.Reactors(p.MessageID, emoji)); diff != "" {
			t.Errorf("reactors for %s mismatch (-want +got):\n%s", emoji, diff)
		}
	}
}

func TestCreatePollSendFailure(t *testing.T) {
	e := newEnv(t)
	e.chat.SendErr = chat.ErrForbidden

	_, err := e.m.CreatePoll(context.Background(), PollRequest{ChannelID: 1, Duration: time.Hour, Emoji1: thumbsUp, Emoji2: thumbsDown, Question: "q"})
	if !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("CreatePoll error = %v, want ErrForbidden", err)
	}
	if len(e.sched.keys()) != 0 {
		t.Error("scheduled despite failure")
	}
}

func TestCreatePollPersistFailureDeletesMessage(t *testing.T) {
	e := newEnv(t)
	e.m.store = failingInsertStore{Store: e.store, err: errors.New("disk full")}

	_, err := e.m.CreatePoll(context.Background(), PollRequest{ChannelID: 1, Duration: time.Hour, Emoji1: thumbsUp, Emoji2: thumbsDown, Question: "q"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("CreatePoll error = %v, want disk full", err)
	}

	sent := e.chat.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if e.chat.Exists(sent[0].MessageID) {
		t.Error("display message left behind after persist failure")
	}
	if len(e.sched.keys()) != 0 {
		t.Error("scheduled despite failure")
	}
}

func TestCreateGiveaway(t *testing.T) {
	e := newEnv(t)

	g, err := e.m.CreateGiveaway(context.Background(), GiveawayRequest{ChannelID: 3, AuthorID: 5, Duration: 2 * time.Hour, Prize: "Nitro"})
	if err != nil {
		t.Fatalf("CreateGiveaway: %v", err)
	}

	if diff := cmp.Diff([]snowflake.ID{testutil.BotID}, e.chat.Reactors(g.MessageID, GiveawayEmoji)); diff != "" {
		t.Errorf("entry reaction mismatch (-want +got):\n%s", diff)
	}
	if _, ok := e.sched.keys()[Key(model.KindGiveaway, g.ID)]; !ok {
		t.Error("giveaway not scheduled")
	}
	embed, _ := e.chat.EmbedOf(g.MessageID)
	if !strings.Contains(embed.Description, "**Prize:** Nitro") || !strings.Contains(embed.Description, "<@5>") {
		t.Errorf("embed description = %q", embed.Description)
	}

	_, err = e.m.CreateGiveaway(context.Background(), GiveawayRequest{ChannelID: 3, Duration: time.Hour})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("empty prize error = %v, want ValidationError", err)
	}
}

// --- schedule-or-call and recovery ---

func TestRecoverFinalizesOverdueSynchronously(t *testing.T) {
	e := newEnv(t)
	p := e.seedPoll(t, 500, time.Now().Add(-time.Minute))
	react(t, e.chat, 500, thumbsUp, testutil.BotID, 1, 2, 3, 4)
	react(t, e.chat, 500, thumbsDown, testutil.BotID, 5, 6)

	if err := e.m.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	// Finalization completed before Recover returned.
	if _, err := e.store.GetPoll(context.Background(), p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPoll error = %v, want ErrNotFound", err)
	}
	if e.chat.Exists(500) {
		t.Error("display message not deleted")
	}
	want := []string{"Poll results|**Question:** Tabs or spaces?\n\n4 people reacted 👍\n2 people reacted 👎"}
	if diff := cmp.Diff(want, contents(e.chat.Sent())); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if len(e.sched.keys()) != 0 {
		t.Error("overdue poll was handed to the scheduler")
	}
}

func TestRecoverTreatsNowAsDue(t *testing.T) {
	e := newEnv(t)
	finish := time.Unix(1_900_000_000, 0).UTC()
	e.m.now = func() time.Time { return finish }
	e.seedGiveaway(t, 600, finish)

	if err := e.m.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(e.sched.keys()) != 0 {
		t.Error("item due now was scheduled instead of finalized")
	}
	if got := contents(e.chat.Sent()); len(got) != 1 {
		t.Errorf("sent %v, want one announcement", got)
	}
}

func TestRecoverTwiceIsIdempotent(t *testing.T) {
	e := newEnv(t)
	future := e.seedPoll(t, 501, time.Now().Add(time.Hour))
	e.seedPoll(t, 502, time.Now().Add(-time.Hour))
	g := e.seedGiveaway(t, 503, time.Now().Add(time.Hour))

	for i := 0; i < 2; i++ {
		if err := e.m.Recover(context.Background()); err != nil {
			t.Fatalf("Recover #%d: %v", i+1, err)
		}
	}

	if got := len(e.chat.Sent()); got != 1 {
		t.Errorf("sent %d messages, want 1 (the overdue poll's results)", got)
	}
	keys := e.sched.keys()
	want := []string{Key(model.KindPoll, future.ID), Key(model.KindGiveaway, g.ID)}
	if len(keys) != len(want) {
		t.Errorf("scheduled %v, want %v", keys, want)
	}
	for _, k := range want {
		if _, ok := keys[k]; !ok {
			t.Errorf("%s not scheduled", k)
		}
	}
}

func TestScheduledActionFinalizes(t *testing.T) {
	e := newEnv(t)
	p := e.seedPoll(t, 504, time.Now().Add(time.Hour))
	if err := e.m.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	e.sched.fire(context.Background(), Key(model.KindPoll, p.ID))

	if _, err := e.store.GetPoll(context.Background(), p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("row not deleted: %v", err)
	}
	if got := len(e.chat.Sent()); got != 1 {
		t.Errorf("sent %d messages, want 1", got)
	}
}

func TestEndToEndWithRealScheduler(t *testing.T) {
	store := testutil.NewStore(t)
	fake := testutil.NewFakeChat()
	sched := scheduler.New(testutil.Logger())
	sched.Start(context.Background())
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	m := NewManager(store, fake, sched, testutil.Logger())
	p, err := m.CreatePoll(context.Background(), PollRequest{ChannelID: 1, Duration: time.Second, Emoji1: thumbsUp, Emoji2: thumbsDown, Question: "Quick?"})
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.GetPoll(context.Background(), p.ID); errors.Is(err, storage.ErrNotFound) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if time.Now().Before(p.FinishTime) {
		t.Fatal("poll finalized before its finish time")
	}

	sent := contents(fake.Sent())
	if len(sent) != 2 || !strings.HasPrefix(sent[1], "Poll results|") {
		t.Errorf("sent = %q, want creation then results", sent)
	}
}

// --- finalization ---

func TestFinishPollRunsOnce(t *testing.T) {
	e := newEnv(t)
	p := e.seedPoll(t, 510, time.Now())
	before := promtest.ToFloat64(telemetry.ItemsFinalized.WithLabelValues("poll", "ok"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.m.FinishPoll(context.Background(), p.ID); err != nil {
				t.Errorf("FinishPoll: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(e.chat.Sent()); got != 1 {
		t.Errorf("results sent %d times, want 1", got)
	}
	if got := promtest.ToFloat64(telemetry.ItemsFinalized.WithLabelValues("poll", "ok")) - before; got != 1 {
		t.Errorf("ok finalizations = %v, want 1", got)
	}
	if err := e.m.FinishPoll(context.Background(), p.ID); err != nil {
		t.Errorf("late FinishPoll: %v", err)
	}
	if got := len(e.chat.Sent()); got != 1 {
		t.Errorf("late call sent results again")
	}
}

func TestFinishPollDeletesRowOnEveryPath(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(e *env)
		wantErr bool
	}{
		{name: "message missing", setup: func(e *env) { e.chat.Vanish(520) }},
		{name: "fetch fails", setup: func(e *env) { e.chat.FetchErr = errors.New("gateway down") }, wantErr: true},
		{name: "results send fails", setup: func(e *env) { e.chat.SendErr = chat.ErrForbidden }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			p := e.seedPoll(t, 520, time.Now())
			tt.setup(e)

			err := e.m.FinishPoll(context.Background(), p.ID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FinishPoll error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, err := e.store.GetPoll(context.Background(), p.ID); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("row survived: %v", err)
			}
		})
	}
}

func TestFinishPollWithCancelledContextStillDeletesRow(t *testing.T) {
	e := newEnv(t)
	p := e.seedPoll(t, 530, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = e.m.FinishPoll(ctx, p.ID)

	if _, err := e.store.GetPoll(context.Background(), p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("row survived cancelled finalization: %v", err)
	}
}

func TestFinishGiveaway(t *testing.T) {
	tests := []struct {
		name       string
		reactors   []snowflake.ID
		wantSent   string
		wantWinner snowflake.ID
	}{
		{name: "only the bot", reactors: []snowflake.ID{testutil.BotID}, wantSent: "No one entered the giveaway for **Nitro**."},
		{name: "nobody", wantSent: "No one entered the giveaway for **Nitro**."},
		{name: "three entrants", reactors: []snowflake.ID{testutil.BotID, 11, 12, 13}, wantSent: "Congratulations <@13>! You won **Nitro**!", wantWinner: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.m.pick = func(n int) int { return n - 1 }
			g := e.seedGiveaway(t, 540, time.Now())
			react(t, e.chat, 540, GiveawayEmoji, tt.reactors...)

			if err := e.m.FinishGiveaway(context.Background(), g.ID); err != nil {
				t.Fatalf("FinishGiveaway: %v", err)
			}

			if diff := cmp.Diff([]string{tt.wantSent}, contents(e.chat.Sent())); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}
			embed, edited := e.chat.EmbedOf(540)
			if tt.wantWinner != 0 {
				if !edited || !strings.Contains(embed.Description, "Winner: "+chat.MentionUser(tt.wantWinner)) {
					t.Errorf("display not edited to winner: %+v", embed)
				}
			} else if edited {
				t.Errorf("display edited without a winner: %+v", embed)
			}
			if _, err := e.store.GetGiveaway(context.Background(), g.ID); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("row survived: %v", err)
			}
		})
	}
}

func TestGiveawayWinnerIsAlwaysAnEntrant(t *testing.T) {
	entrants := map[snowflake.ID]bool{21: true, 22: true, 23: true}
	for i := 0; i < 20; i++ {
		e := newEnv(t)
		g := e.seedGiveaway(t, 550, time.Now())
		react(t, e.chat, 550, GiveawayEmoji, testutil.BotID, 21, 22, 23)

		if err := e.m.FinishGiveaway(context.Background(), g.ID); err != nil {
			t.Fatalf("FinishGiveaway: %v", err)
		}
		last, _ := e.chat.LastSent()
		var found bool
		for id := range entrants {
			if strings.Contains(last.Msg.Content, chat.MentionUser(id)) {
				found = true
			}
		}
		if !found || strings.Contains(last.Msg.Content, chat.MentionUser(testutil.BotID)) {
			t.Fatalf("winner announcement %q names no entrant", last.Msg.Content)
		}
	}
}

func TestTally(t *testing.T) {
	reactions := []chat.Reaction{
		{Emoji: thumbsUp, Count: 5, Me: true},
		{Emoji: thumbsDown, Count: 3, Me: true},
		{Emoji: custom, Count: 0},
	}
	tests := []struct {
		emoji reactable.Reactable
		want  int
	}{
		{emoji: thumbsUp, want: 4},
		{emoji: thumbsDown, want: 2},
		{emoji: custom, want: 0},
		{emoji: reactable.MustParse("🎉"), want: 0},
	}
	for _, tt := range tests {
		if got := Tally(reactions, tt.emoji); got != tt.want {
			t.Errorf("Tally(%s) = %d, want %d", tt.emoji, got, tt.want)
		}
	}
}

func TestEntrants(t *testing.T) {
	got := Entrants([]chat.User{{ID: 1}, {ID: 999, Bot: true}, {ID: 2}, {ID: 1}, {ID: 3, Bot: true}}, 999)
	want := []chat.User{{ID: 1}, {ID: 2}, {ID: 3, Bot: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Entrants mismatch (-want +got):\n%s", diff)
	}
}
