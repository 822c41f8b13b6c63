// Package countdown keeps the "time left" line of pending polls and
// giveaways current.
package countdown

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"community_bot/internal/chat"
	"community_bot/internal/model"
	"community_bot/internal/telemetry"
	"community_bot/internal/timed"
)

// DefaultInterval is the pause between two refresh passes.
const DefaultInterval = 5 * time.Second

// Store is the persistence the refresher reads and prunes.
type Store interface {
	ListPolls(ctx context.Context) ([]model.Poll, error)
	ListGiveaways(ctx context.Context) ([]model.Giveaway, error)
	DeletePoll(ctx context.Context, id int64) error
	DeleteGiveaway(ctx context.Context, id int64) error
}

// Refresher periodically re-renders the countdown of every pending item.
type Refresher struct {
	store   Store
	chat    chat.Client
	log     *slog.Logger
	tick    time.Duration
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a Refresher with the default interval. Message edits are
// paced at five per second.
func New(store Store, client chat.Client, log *slog.Logger) *Refresher {
	return &Refresher{
		store:   store,
		chat:    client,
		log:     log,
		tick:    DefaultInterval,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		now:     time.Now,
	}
}

// SetTickInterval overrides the default 5-second interval.
func (r *Refresher) SetTickInterval(d time.Duration) {
	r.tick = d
}

// SetEditRate overrides the edit pacing.
func (r *Refresher) SetEditRate(perSecond float64, burst int) {
	r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Run refreshes right away and then every interval until ctx is cancelled.
// A pass always completes before the next one is timed.
func (r *Refresher) Run(ctx context.Context) {
	r.refreshAll(ctx)

	timer := time.NewTimer(r.tick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.refreshAll(ctx)
			timer.Reset(r.tick)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	telemetry.CountdownTicks.Inc()
	ctx, span := telemetry.StartSpan(ctx, "countdown.refresh")
	defer span.End()

	var polls, giveaways int
	telemetry.TimeFunc(telemetry.CountdownDuration, func() {
		polls = r.refreshPolls(ctx)
		giveaways = r.refreshGiveaways(ctx)
	})
	span.SetAttributes(attribute.Int("countdown.polls", polls), attribute.Int("countdown.giveaways", giveaways))
}

func (r *Refresher) refreshPolls(ctx context.Context) int {
	polls, err := r.store.ListPolls(ctx)
	if err != nil {
		r.log.Error("list polls", "error", err)
		return 0
	}

	for _, p := range polls {
		if ctx.Err() != nil {
			return len(polls)
		}
		left := p.FinishTime.Sub(r.now())
		if left <= 0 {
			continue
		}
		id := p.ID
		r.update(ctx, model.KindPoll, id, p.ChannelID, p.MessageID, p.FinishTime, timed.PollEmbed(p, left),
			func(ctx context.Context) error { return r.store.DeletePoll(ctx, id) })
	}
	return len(polls)
}

func (r *Refresher) refreshGiveaways(ctx context.Context) int {
	giveaways, err := r.store.ListGiveaways(ctx)
	if err != nil {
		r.log.Error("list giveaways", "error", err)
		return 0
	}

	for _, g := range giveaways {
		if ctx.Err() != nil {
			return len(giveaways)
		}
		left := g.FinishTime.Sub(r.now())
		if left <= 0 {
			continue
		}
		id := g.ID
		r.update(ctx, model.KindGiveaway, id, g.ChannelID, g.MessageID, g.FinishTime, timed.GiveawayEmbed(g, left),
			func(ctx context.Context) error { return r.store.DeleteGiveaway(ctx, id) })
	}
	return len(giveaways)
}

// update edits one display message. A message or channel that can no longer
// be located takes its row with it. A failed edit only logs, the row stays.
func (r *Refresher) update(ctx context.Context, kind model.ItemKind, id int64, channelID, messageID snowflake.ID, finish time.Time, embed chat.Embed, deleteRow func(context.Context) error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return
	}
	// Finalization may have rendered the result while we waited.
	if !r.now().Before(finish) {
		return
	}

	_, found, err := r.chat.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		r.log.Warn("fetch countdown message", "kind", kind, "id", id, "error", err)
		return
	}
	if !found {
		if err := deleteRow(ctx); err != nil {
			r.log.Error("delete stale item", "kind", kind, "id", id, "error", err)
			return
		}
		telemetry.StaleItemsRemoved.WithLabelValues(string(kind)).Inc()
		r.log.Info("removed stale item", "kind", kind, "id", id, "message_id", messageID)
		return
	}

	if err := r.chat.EditEmbed(ctx, channelID, messageID, embed); err != nil {
		r.log.Warn("refresh countdown", "kind", kind, "id", id, "error", err)
	}
}
