package timed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/events"
)

// PollChecker tells whether a message is a pending poll.
type PollChecker interface {
	IsPoll(ctx context.Context, channelID, messageID snowflake.ID) (bool, error)
}

// VoteFilter keeps at most one reaction per user on a poll message.
type VoteFilter struct {
	polls PollChecker
	chat  chat.Client
	log   *slog.Logger
}

// NewVoteFilter creates a VoteFilter.
func NewVoteFilter(polls PollChecker, client chat.Client, log *slog.Logger) *VoteFilter {
	return &VoteFilter{polls: polls, chat: client, log: log}
}

// OnReactionAdded removes the user's other reactions when they react to a
// poll. The poll lookup goes to storage on every event.
func (v *VoteFilter) OnReactionAdded(ctx context.Context, ev events.ReactionAdded) error {
	if ev.UserID == v.chat.Self().ID {
		return nil
	}

	isPoll, err := v.polls.IsPoll(ctx, ev.ChannelID, ev.MessageID)
	if err != nil {
		return fmt.Errorf("check poll: %w", err)
	}
	if !isPoll {
		return nil
	}

	msg, found, err := v.chat.FetchMessage(ctx, ev.ChannelID, ev.MessageID)
	if err != nil {
		return fmt.Errorf("fetch poll message: %w", err)
	}
	if !found {
		return nil
	}

	for _, r := range msg.Reactions {
		if r.Emoji.Equal(ev.Emoji) {
			continue
		}
		err := v.chat.RemoveReaction(ctx, ev.ChannelID, ev.MessageID, r.Emoji, ev.UserID)
		if errors.Is(err, chat.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("remove reaction %s: %w", r.Emoji, err)
		}
	}
	v.log.Debug("poll vote kept exclusive", "message_id", ev.MessageID, "user_id", ev.UserID)
	return nil
}
