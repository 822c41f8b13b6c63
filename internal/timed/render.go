package timed

import (
	"fmt"
	"time"

	"community_bot/internal/chat"
	"community_bot/internal/duration"
	"community_bot/internal/model"
	"community_bot/internal/reactable"
)

// GiveawayEmoji is the reaction users add to enter a giveaway.
var GiveawayEmoji = reactable.Reactable{Name: "🎉"}

// PollEmbed renders a pending poll with left time remaining.
func PollEmbed(p model.Poll, left time.Duration) chat.Embed {
	return chat.Embed{
		Title:       "New Poll",
		Description: p.Question + "\n\nTime left: " + duration.Format(left.Round(time.Second)),
		Footer:      fmt.Sprintf("React with a %s or %s", p.Emoji1, p.Emoji2),
		Color:       chat.ColorSuccess,
	}
}

// PollResultsEmbed renders the final tally of a poll.
func PollResultsEmbed(p model.Poll, count1, count2 int) chat.Embed {
	return chat.Embed{
		Title: "Poll results",
		Description: fmt.Sprintf("**Question:** %s\n\n%d people reacted %s\n%d people reacted %s",
			p.Question, count1, p.Emoji1, count2, p.Emoji2),
		Color: chat.ColorWarning,
	}
}

// GiveawayEmbed renders a pending giveaway with left time remaining.
func GiveawayEmbed(g model.Giveaway, left time.Duration) chat.Embed {
	return chat.Embed{
		Title: GiveawayEmoji.String() + " Giveaway",
		Description: fmt.Sprintf("**Prize:** %s\nHosted by %s\n\nTime left: %s",
			g.Prize, chat.MentionUser(g.AuthorID), duration.Format(left.Round(time.Second))),
		Footer: "React with " + GiveawayEmoji.String() + " to enter",
		Color:  chat.ColorGold,
	}
}

// GiveawayWinnerEmbed replaces the countdown once a winner is drawn.
func GiveawayWinnerEmbed(g model.Giveaway, winner chat.User) chat.Embed {
	return chat.Embed{
		Title: GiveawayEmoji.String() + " Giveaway ended",
		Description: fmt.Sprintf("**Prize:** %s\nHosted by %s\n\nWinner: %s",
			g.Prize, chat.MentionUser(g.AuthorID), chat.MentionUser(winner.ID)),
		Color: chat.ColorGold,
	}
}

func winnerAnnouncement(g model.Giveaway, winner chat.User) string {
	return fmt.Sprintf("Congratulations %s! You won **%s**!", chat.MentionUser(winner.ID), g.Prize)
}

func noEntrantsAnnouncement(g model.Giveaway) string {
	return fmt.Sprintf("No one entered the giveaway for **%s**.", g.Prize)
}
