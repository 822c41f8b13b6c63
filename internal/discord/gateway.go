package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"community_bot/internal/chat"
	"community_bot/internal/events"
)

// Intents the bot subscribes to.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

type handlerAdder interface {
	AddHandler(handler interface{}) func()
}

// Bind translates gateway events from s into reg. Handlers run with ctx as
// their parent context. The ready event also records the bot identity on
// client.
func Bind(ctx context.Context, s handlerAdder, client *Client, reg *events.Registry) {
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.Ready) {
		r := readyEvent(ev)
		client.SetSelf(r.Self)
		reg.Dispatch(ctx, r)
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageCreate) {
		reg.Dispatch(ctx, events.MessageCreated{Message: toMessage(ev.Message)})
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageUpdate) {
		reg.Dispatch(ctx, messageEdited(ev))
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageDelete) {
		reg.Dispatch(ctx, messageDeleted(ev))
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionAdd) {
		reg.Dispatch(ctx, reactionAdded(ev))
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.MessageReactionRemove) {
		reg.Dispatch(ctx, reactionRemoved(ev))
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) {
		reg.Dispatch(ctx, memberJoined(ev))
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.ChannelCreate) {
		reg.Dispatch(ctx, events.ChannelCreated{Channel: toChannel(ev.Channel)})
	})
	s.AddHandler(func(_ *discordgo.Session, ev *discordgo.ChannelDelete) {
		reg.Dispatch(ctx, events.ChannelDeleted{Channel: toChannel(ev.Channel)})
	})
}

func readyEvent(ev *discordgo.Ready) events.Ready {
	return events.Ready{Self: toUser(ev.User)}
}

func messageEdited(ev *discordgo.MessageUpdate) events.MessageEdited {
	out := events.MessageEdited{After: toMessage(ev.Message)}
	if ev.BeforeUpdate != nil {
		before := toMessage(ev.BeforeUpdate)
		out.Before = &before
	}
	return out
}

func messageDeleted(ev *discordgo.MessageDelete) events.MessageDeleted {
	out := events.MessageDeleted{
		ChannelID: parseID(ev.ChannelID),
		MessageID: parseID(ev.ID),
		GuildID:   parseID(ev.GuildID),
	}
	if ev.BeforeDelete != nil {
		cached := toMessage(ev.BeforeDelete)
		out.Cached = &cached
	}
	return out
}

func reactionAdded(ev *discordgo.MessageReactionAdd) events.ReactionAdded {
	r := ev.MessageReaction
	return events.ReactionAdded{
		ChannelID: parseID(r.ChannelID),
		MessageID: parseID(r.MessageID),
		GuildID:   parseID(r.GuildID),
		UserID:    parseID(r.UserID),
		Emoji:     toEmoji(&r.Emoji),
	}
}

func reactionRemoved(ev *discordgo.MessageReactionRemove) events.ReactionRemoved {
	r := ev.MessageReaction
	return events.ReactionRemoved{
		ChannelID: parseID(r.ChannelID),
		MessageID: parseID(r.MessageID),
		GuildID:   parseID(r.GuildID),
		UserID:    parseID(r.UserID),
		Emoji:     toEmoji(&r.Emoji),
	}
}

func memberJoined(ev *discordgo.GuildMemberAdd) events.MemberJoined {
	return events.MemberJoined{GuildID: parseID(ev.GuildID), User: toUser(ev.User)}
}

func toChannel(c *discordgo.Channel) chat.Channel {
	if c == nil {
		return chat.Channel{}
	}
	return chat.Channel{
		ID:      parseID(c.ID),
		GuildID: parseID(c.GuildID),
		Name:    c.Name,
		Type:    channelType(c.Type),
	}
}

func channelType(t discordgo.ChannelType) chat.ChannelType {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return chat.ChannelText
	case discordgo.ChannelTypeGuildVoice:
		return chat.ChannelVoice
	case discordgo.ChannelTypeGuildCategory:
		return chat.ChannelCategory
	case discordgo.ChannelTypeGuildNews:
		return chat.ChannelNews
	case discordgo.ChannelTypeGuildStageVoice:
		return chat.ChannelStage
	case discordgo.ChannelTypeGuildForum:
		return chat.ChannelForum
	}
	return chat.ChannelOther
}
