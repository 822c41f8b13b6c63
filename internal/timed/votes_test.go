package timed

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/go-cmp/cmp"

	"community_bot/internal/chat"
	"community_bot/internal/events"
	"community_bot/internal/reactable"
	"community_bot/internal/testutil"
)

func TestVoteFilter(t *testing.T) {
	third := reactable.MustParse("🤷")

	tests := []struct {
		name string
		poll bool
		ev   events.ReactionAdded
		want map[string][]snowflake.ID
	}{
		{
			name: "new vote clears the others",
			poll: true,
			ev:   events.ReactionAdded{ChannelID: 1, MessageID: 700, UserID: 42, Emoji: third},
			want: map[string][]snowflake.ID{
				thumbsUp.Key():   {testutil.BotID, 43},
				thumbsDown.Key(): {testutil.BotID},
				third.Key():      {42},
			},
		},
		{
			name: "bot reactions are left alone",
			poll: true,
			ev:   events.ReactionAdded{ChannelID: 1, MessageID: 700, UserID: testutil.BotID, Emoji: thumbsUp},
			want: map[string][]snowflake.ID{
				thumbsUp.Key():   {testutil.BotID, 42, 43},
				thumbsDown.Key(): {testutil.BotID, 42},
				third.Key():      {42},
			},
		},
		{
			name: "not a poll",
			ev:   events.ReactionAdded{ChannelID: 1, MessageID: 700, UserID: 42, Emoji: third},
			want: map[string][]snowflake.ID{
				thumbsUp.Key():   {testutil.BotID, 42, 43},
				thumbsDown.Key(): {testutil.BotID, 42},
				third.Key():      {42},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			if tt.poll {
				e.seedPoll(t, 700, time.Now().Add(time.Hour))
			} else {
				e.chat.PutMessage(chat.Message{ID: 700, ChannelID: 1})
			}
			react(t, e.chat, 700, thumbsUp, testutil.BotID, 42, 43)
			react(t, e.chat, 700, thumbsDown, testutil.BotID, 42)
			react(t, e.chat, 700, third, 42)

			f := NewVoteFilter(e.store, e.chat, testutil.Logger())
			if err := f.OnReactionAdded(context.Background(), tt.ev); err != nil {
				t.Fatalf("OnReactionAdded: %v", err)
			}

			got := map[string][]snowflake.ID{}
			for _, emoji := range []reactable.Reactable{thumbsUp, thumbsDown, third} {
				if users := e.chat.Reactors(700, emoji); len(users) > 0 {
					got[emoji.Key()] = users
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("reactions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVoteFilterMessageGone(t *testing.T) {
	e := newEnv(t)
	e.seedPoll(t, 710, time.Now().Add(time.Hour))
	e.chat.Vanish(710)

	f := NewVoteFilter(e.store, e.chat, testutil.Logger())
	err := f.OnReactionAdded(context.Background(), events.ReactionAdded{ChannelID: 1, MessageID: 710, UserID: 42, Emoji: thumbsUp})
	if err != nil {
		t.Errorf("OnReactionAdded on deleted message: %v", err)
	}
}
