// Package timed manages polls and giveaways: messages that count down and
// finalize once at a fixed time, also across process restarts.
package timed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/model"
	"community_bot/internal/reactable"
	"community_bot/internal/scheduler"
	"community_bot/internal/telemetry"
)

// Input limits, matching the storage column widths.
const (
	MaxQuestionLength = 150
	MaxPrizeLength    = 200
)

// Store is the persistence the manager needs.
type Store interface {
	InsertPoll(ctx context.Context, p *model.Poll) error
	ListPolls(ctx context.Context) ([]model.Poll, error)
	GetPoll(ctx context.Context, id int64) (*model.Poll, error)
	DeletePoll(ctx context.Context, id int64) error

	InsertGiveaway(ctx context.Context, g *model.Giveaway) error
	ListGiveaways(ctx context.Context) ([]model.Giveaway, error)
	GetGiveaway(ctx context.Context, id int64) (*model.Giveaway, error)
	DeleteGiveaway(ctx context.Context, id int64) error
}

// Scheduler arms one-shot actions.
type Scheduler interface {
	Schedule(key string, at time.Time, action scheduler.Action) error
}

// ValidationError reports bad user input. Nothing is sent or persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PollRequest describes a poll to create.
type PollRequest struct {
	ChannelID snowflake.ID
	Duration  time.Duration
	Emoji1    reactable.Reactable
	Emoji2    reactable.Reactable
	Question  string
}

func (r PollRequest) validate() error {
	switch {
	case r.Duration <= 0:
		return invalid("Invalid duration!")
	case r.Emoji1.Name == "" || r.Emoji2.Name == "":
		return invalid("Both choices need an emoji.")
	case r.Emoji1.Equal(r.Emoji2):
		return invalid("The two choices must use different emoji.")
	case r.Question == "":
		return invalid("The poll needs a question.")
	case utf8.RuneCountInString(r.Question) > MaxQuestionLength:
		return invalid("The question can be at most %d characters long.", MaxQuestionLength)
	}
	return nil
}

// GiveawayRequest describes a giveaway to create.
type GiveawayRequest struct {
	ChannelID snowflake.ID
	AuthorID  snowflake.ID
	Duration  time.Duration
	Prize     string
}

func (r GiveawayRequest) validate() error {
	switch {
	case r.Duration <= 0:
		return invalid("Invalid duration!")
	case r.Prize == "":
		return invalid("The giveaway needs a prize.")
	case utf8.RuneCountInString(r.Prize) > MaxPrizeLength:
		return invalid("The prize can be at most %d characters long.", MaxPrizeLength)
	}
	return nil
}

// Manager creates timed items and finalizes each of them once.
type Manager struct {
	store Store
	chat  chat.Client
	sched Scheduler
	log   *slog.Logger

	now  func() time.Time
	pick func(n int) int

	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewManager creates a Manager.
func NewManager(store Store, client chat.Client, sched Scheduler, log *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		chat:    client,
		sched:   sched,
		log:     log,
		now:     time.Now,
		pick:    rand.IntN,
		claimed: make(map[string]struct{}),
	}
}

// Key is the scheduler key of a timed item.
func Key(kind model.ItemKind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// CreatePoll posts a poll, persists it and schedules its finalization.
func (m *Manager) CreatePoll(ctx context.Context, req PollRequest) (*model.Poll, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &model.Poll{
		ChannelID:  req.ChannelID,
		FinishTime: ceilSecond(m.now().Add(req.Duration)),
		Question:   req.Question,
		Emoji1:     req.Emoji1.String(),
		Emoji2:     req.Emoji2.String(),
	}

	embed := PollEmbed(*p, req.Duration)
	msg, err := m.chat.SendMessage(ctx, req.ChannelID, chat.Outgoing{Embed: &embed})
	if err != nil {
		return nil, fmt.Errorf("send poll message: %w", err)
	}
	p.MessageID = msg.ID

	for _, e := range []reactable.Reactable{req.Emoji1, req.Emoji2} {
		if err := m.chat.AddReaction(ctx, req.ChannelID, msg.ID, e); err != nil {
			m.discard(ctx, req.ChannelID, msg.ID)
			if errors.Is(err, chat.ErrNotFound) {
				return nil, invalid("%s is not a valid emoji.", e)
			}
			return nil, fmt.Errorf("add poll reaction: %w", err)
		}
	}

	if err := m.store.InsertPoll(ctx, p); err != nil {
		m.discard(ctx, req.ChannelID, msg.ID)
		return nil, fmt.Errorf("persist poll: %w", err)
	}

	telemetry.ItemsCreated.WithLabelValues(string(model.KindPoll)).Inc()
	m.log.Info("poll created", "poll_id", p.ID, "channel_id", p.ChannelID, "finish_time", p.FinishTime)

	id := p.ID
	m.scheduleOrCall(ctx, Key(model.KindPoll, id), p.FinishTime, func(ctx context.Context) {
		if err := m.FinishPoll(ctx, id); err != nil {
			m.log.Error("finish poll", "poll_id", id, "error", err)
		}
	})
	return p, nil
}

// CreateGiveaway posts a giveaway, persists it and schedules its draw.
func (m *Manager) CreateGiveaway(ctx context.Context, req GiveawayRequest) (*model.Giveaway, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	g := &model.Giveaway{
		ChannelID:  req.ChannelID,
		FinishTime: ceilSecond(m.now().Add(req.Duration)),
		Prize:      req.Prize,
		AuthorID:   req.AuthorID,
	}

	embed := GiveawayEmbed(*g, req.Duration)
	msg, err := m.chat.SendMessage(ctx, req.ChannelID, chat.Outgoing{Embed: &embed})
	if err != nil {
		return nil, fmt.Errorf("send giveaway message: %w", err)
	}
	g.MessageID = msg.ID

	if err := m.chat.AddReaction(ctx, req.ChannelID, msg.ID, GiveawayEmoji); err != nil {
		m.discard(ctx, req.ChannelID, msg.ID)
		return nil, fmt.Errorf("add giveaway reaction: %w", err)
	}

	if err := m.store.InsertGiveaway(ctx, g); err != nil {
		m.discard(ctx, req.ChannelID, msg.ID)
		return nil, fmt.Errorf("persist giveaway: %w", err)
	}

	telemetry.ItemsCreated.WithLabelValues(string(model.KindGiveaway)).Inc()
	m.log.Info("giveaway created", "giveaway_id", g.ID, "channel_id", g.ChannelID, "finish_time", g.FinishTime)

	id := g.ID
	m.scheduleOrCall(ctx, Key(model.KindGiveaway, id), g.FinishTime, func(ctx context.Context) {
		if err := m.FinishGiveaway(ctx, id); err != nil {
			m.log.Error("finish giveaway", "giveaway_id", id, "error", err)
		}
	})
	return g, nil
}

// Recover schedules every persisted item, finalizing overdue ones in place.
// It may run more than once; already scheduled items are left alone.
func (m *Manager) Recover(ctx context.Context) error {
	polls, err := m.store.ListPolls(ctx)
	if err != nil {
		return fmt.Errorf("list polls: %w", err)
	}
	giveaways, err := m.store.ListGiveaways(ctx)
	if err != nil {
		return fmt.Errorf("list giveaways: %w", err)
	}

	for _, p := range polls {
		id := p.ID
		m.scheduleOrCall(ctx, Key(model.KindPoll, id), p.FinishTime, func(ctx context.Context) {
			if err := m.FinishPoll(ctx, id); err != nil {
				m.log.Error("finish poll", "poll_id", id, "error", err)
			}
		})
	}
	for _, g := range giveaways {
		id := g.ID
		m.scheduleOrCall(ctx, Key(model.KindGiveaway, id), g.FinishTime, func(ctx context.Context) {
			if err := m.FinishGiveaway(ctx, id); err != nil {
				m.log.Error("finish giveaway", "giveaway_id", id, "error", err)
			}
		})
	}

	m.log.Info("recovered timed items", "polls", len(polls), "giveaways", len(giveaways))
	return nil
}

// scheduleOrCall runs action now when at has been reached and hands it to
// the scheduler otherwise.
func (m *Manager) scheduleOrCall(ctx context.Context, key string, at time.Time, action scheduler.Action) {
	if !m.now().Before(at) {
		action(ctx)
		return
	}

	err := m.sched.Schedule(key, at, action)
	switch {
	case err == nil:
		m.log.Debug("scheduled", "key", key, "at", at)
	case errors.Is(err, scheduler.ErrDuplicate):
		m.log.Debug("already scheduled", "key", key)
	case errors.Is(err, scheduler.ErrInPast):
		action(ctx)
	default:
		m.log.Error("schedule", "key", key, "error", err)
	}
}

// discard deletes a display message whose item could not be created.
func (m *Manager) discard(ctx context.Context, channelID, messageID snowflake.ID) {
	if err := m.chat.DeleteMessage(ctx, channelID, messageID); err != nil {
		m.log.Warn("delete orphaned message", "channel_id", channelID, "message_id", messageID, "error", err)
	}
}

// claim marks key as being finalized. It returns false if another
// finalization of the same item is in progress.
func (m *Manager) claim(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claimed[key]; ok {
		return false
	}
	m.claimed[key] = struct{}{}
	return true
}

// release deletes the persisted row and then drops the claim on key. The
// delete runs even when ctx is already cancelled.
func (m *Manager) release(ctx context.Context, key string, deleteRow func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := deleteRow(ctx); err != nil {
		m.log.Error("delete finalized item", "key", key, "error", err)
	}

	m.mu.Lock()
	delete(m.claimed, key)
	m.mu.Unlock()
}

func ceilSecond(t time.Time) time.Time {
	if t.Equal(t.Truncate(time.Second)) {
		return t
	}
	return t.Truncate(time.Second).Add(time.Second)
}
