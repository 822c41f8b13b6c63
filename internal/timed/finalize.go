package timed

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"go.opentelemetry.io/otel/attribute"

	"community_bot/internal/chat"
	"community_bot/internal/model"
	"community_bot/internal/reactable"
	"community_bot/internal/storage"
	"community_bot/internal/telemetry"
)

// Finalization outcomes reported in metrics.
const (
	outcomeOK      = "ok"
	outcomeGone    = "gone"
	outcomeMissing = "missing"
	outcomeError   = "error"
)

// FinishPoll posts the results of a poll and deletes it. The row is deleted
// on every path, and concurrent calls for the same poll run only once.
func (m *Manager) FinishPoll(ctx context.Context, id int64) (err error) {
	key := Key(model.KindPoll, id)
	if !m.claim(key) {
		m.log.Debug("poll already finalizing", "poll_id", id)
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "timed.finish_poll", attribute.Int64("poll.id", id))
	outcome := outcomeOK
	defer func() {
		m.release(ctx, key, func(ctx context.Context) error { return m.store.DeletePoll(ctx, id) })
		if err != nil {
			outcome = outcomeError
		}
		telemetry.ItemsFinalized.WithLabelValues(string(model.KindPoll), outcome).Inc()
		telemetry.RecordError(span, err)
		span.End()
	}()

	p, err := m.store.GetPoll(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		outcome = outcomeGone
		return nil
	}
	if err != nil {
		return fmt.Errorf("load poll: %w", err)
	}

	msg, found, err := m.chat.FetchMessage(ctx, p.ChannelID, p.MessageID)
	if err != nil {
		return fmt.Errorf("fetch poll message: %w", err)
	}
	if !found {
		outcome = outcomeMissing
		m.log.Info("poll message gone", "poll_id", id)
		return nil
	}

	count1 := tallyStored(msg.Reactions, p.Emoji1)
	count2 := tallyStored(msg.Reactions, p.Emoji2)

	if err := m.chat.DeleteMessage(ctx, p.ChannelID, p.MessageID); err != nil {
		m.log.Warn("delete poll message", "poll_id", id, "error", err)
	}

	embed := PollResultsEmbed(*p, count1, count2)
	if _, err := m.chat.SendMessage(ctx, p.ChannelID, chat.Outgoing{Embed: &embed}); err != nil {
		return fmt.Errorf("send poll results: %w", err)
	}

	m.log.Info("poll finished", "poll_id", id, "count1", count1, "count2", count2)
	return nil
}

// FinishGiveaway draws a winner among the entrants and deletes the
// giveaway. The row is deleted on every path, and concurrent calls for the
// same giveaway run only once.
func (m *Manager) FinishGiveaway(ctx context.Context, id int64) (err error) {
	key := Key(model.KindGiveaway, id)
	if !m.claim(key) {
		m.log.Debug("giveaway already finalizing", "giveaway_id", id)
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "timed.finish_giveaway", attribute.Int64("giveaway.id", id))
	outcome := outcomeOK
	defer func() {
		m.release(ctx, key, func(ctx context.Context) error { return m.store.DeleteGiveaway(ctx, id) })
		if err != nil {
			outcome = outcomeError
		}
		telemetry.ItemsFinalized.WithLabelValues(string(model.KindGiveaway), outcome).Inc()
		telemetry.RecordError(span, err)
		span.End()
	}()

	g, err := m.store.GetGiveaway(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		outcome = outcomeGone
		return nil
	}
	if err != nil {
		return fmt.Errorf("load giveaway: %w", err)
	}

	_, found, err := m.chat.FetchMessage(ctx, g.ChannelID, g.MessageID)
	if err != nil {
		return fmt.Errorf("fetch giveaway message: %w", err)
	}
	if !found {
		outcome = outcomeMissing
		m.log.Info("giveaway message gone", "giveaway_id", id)
		return nil
	}

	users, err := m.chat.ReactionUsers(ctx, g.ChannelID, g.MessageID, GiveawayEmoji)
	if errors.Is(err, chat.ErrNotFound) {
		outcome = outcomeMissing
		return nil
	}
	if err != nil {
		return fmt.Errorf("list entrants: %w", err)
	}

	entrants := Entrants(users, m.chat.Self().ID)
	if len(entrants) == 0 {
		if _, err := m.chat.SendMessage(ctx, g.ChannelID, chat.Outgoing{Content: noEntrantsAnnouncement(*g)}); err != nil {
			return fmt.Errorf("announce no entrants: %w", err)
		}
		m.log.Info("giveaway finished without entrants", "giveaway_id", id)
		return nil
	}

	winner := entrants[m.pick(len(entrants))]
	if _, err := m.chat.SendMessage(ctx, g.ChannelID, chat.Outgoing{Content: winnerAnnouncement(*g, winner)}); err != nil {
		return fmt.Errorf("announce winner: %w", err)
	}
	if err := m.chat.EditEmbed(ctx, g.ChannelID, g.MessageID, GiveawayWinnerEmbed(*g, winner)); err != nil {
		m.log.Warn("edit giveaway message", "giveaway_id", id, "error", err)
	}

	m.log.Info("giveaway finished", "giveaway_id", id, "entrants", len(entrants), "winner_id", winner.ID)
	return nil
}

// Tally returns the number of voters for emoji, not counting the bot's own
// seed reaction.
func Tally(reactions []chat.Reaction, emoji reactable.Reactable) int {
	for _, r := range reactions {
		if r.Emoji.Equal(emoji) {
			return max(0, r.Count-1)
		}
	}
	return 0
}

func tallyStored(reactions []chat.Reaction, stored string) int {
	emoji, err := reactable.Parse(stored)
	if err != nil {
		return 0
	}
	return Tally(reactions, emoji)
}

// Entrants removes the bot and duplicate users from reactors, keeping order.
func Entrants(reactors []chat.User, self snowflake.ID) []chat.User {
	seen := make(map[snowflake.ID]struct{}, len(reactors))
	out := make([]chat.User, 0, len(reactors))
	for _, u := range reactors {
		if u.ID == self {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}
