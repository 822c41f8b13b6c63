// Package events defines the gateway events the bot reacts to and a registry
// that routes each event kind to its handlers.
package events

import (
	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/reactable"
)

// Kind enumerates event types.
type Kind int

// Event kinds.
const (
	KindReady Kind = iota + 1
	KindMessageCreated
	KindMessageEdited
	KindMessageDeleted
	KindReactionAdded
	KindReactionRemoved
	KindMemberJoined
	KindChannelCreated
	KindChannelDeleted
)

var kindNames = map[Kind]string{
	KindReady:           "ready",
	KindMessageCreated:  "message_created",
	KindMessageEdited:   "message_edited",
	KindMessageDeleted:  "message_deleted",
	KindReactionAdded:   "reaction_added",
	KindReactionRemoved: "reaction_removed",
	KindMemberJoined:    "member_joined",
	KindChannelCreated:  "channel_created",
	KindChannelDeleted:  "channel_deleted",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is implemented by every gateway event payload.
type Event interface {
	Kind() Kind
}

// Ready fires once the gateway session is established.
type Ready struct {
	Self chat.User
}

// MessageCreated carries a new message. GuildID is zero for direct messages.
type MessageCreated struct {
	Message chat.Message
}

// MessageEdited carries an edited message. Before is nil when the previous
// version was not cached.
type MessageEdited struct {
	Before *chat.Message
	After  chat.Message
}

// MessageDeleted identifies a deleted message. Cached is nil when the
// message content was not cached.
type MessageDeleted struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	GuildID   snowflake.ID
	Cached    *chat.Message
}

// ReactionAdded fires when a user reacts to a message.
type ReactionAdded struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	GuildID   snowflake.ID
	UserID    snowflake.ID
	Emoji     reactable.Reactable
}

// ReactionRemoved fires when a user removes a reaction.
type ReactionRemoved struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	GuildID   snowflake.ID
	UserID    snowflake.ID
	Emoji     reactable.Reactable
}

// MemberJoined fires when a user joins a guild.
type MemberJoined struct {
	GuildID snowflake.ID
	User    chat.User
}

// ChannelCreated fires when a guild channel is created.
type ChannelCreated struct {
	Channel chat.Channel
}

// ChannelDeleted fires when a guild channel is deleted.
type ChannelDeleted struct {
	Channel chat.Channel
}

func (Ready) Kind() Kind           { return KindReady }
func (MessageCreated) Kind() Kind  { return KindMessageCreated }
func (MessageEdited) Kind() Kind   { return KindMessageEdited }
func (MessageDeleted) Kind() Kind  { return KindMessageDeleted }
func (ReactionAdded) Kind() Kind   { return KindReactionAdded }
func (ReactionRemoved) Kind() Kind { return KindReactionRemoved }
func (MemberJoined) Kind() Kind    { return KindMemberJoined }
func (ChannelCreated) Kind() Kind  { return KindChannelCreated }
func (ChannelDeleted) Kind() Kind  { return KindChannelDeleted }
