// Package chat defines the platform-neutral view of the chat service the bot
// talks to: messages, embeds, reactions, roles and permissions.
package chat

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/reactable"
)

// Errors returned by Client implementations.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Embed colors.
const (
	ColorDefault = 0x3498db
	ColorSuccess = 0x2ecc71
	ColorWarning = 0xe67e22
	ColorError   = 0xe74c3c
	ColorGold    = 0xf1c40f
)

// Embed is a titled rich block attached to a message.
type Embed struct {
	Title       string
	Description string
	Footer      string
	Thumbnail   string
	Color       int
	Timestamp   time.Time
	Fields      []Field
}

// Field is a name/value row inside an Embed.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// File is an attachment uploaded with a message.
type File struct {
	Name   string
	Reader io.Reader
}

// Outgoing describes a message to send.
type Outgoing struct {
	Content string
	Embed   *Embed
	Files   []File
}

// User is a chat account.
type User struct {
	ID        snowflake.ID
	Username  string
	Bot       bool
	AvatarURL string
}

// Reaction is an aggregated reaction on a message.
type Reaction struct {
	Emoji reactable.Reactable
	Count int
	Me    bool
}

// Message is a posted chat message.
type Message struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	GuildID   snowflake.ID
	Author    User
	Content   string
	HasEmbeds bool
	Reactions []Reaction
}

// Permission is a bit in a member's effective channel permissions.
type Permission int64

// Permissions checked by commands.
const (
	PermAdministrator  Permission = 1 << 3
	PermManageGuild    Permission = 1 << 5
	PermManageMessages Permission = 1 << 13
	PermManageRoles    Permission = 1 << 28
)

// Client is the set of chat operations the bot performs.
//
// Methods return ErrNotFound when the addressed channel, message, member or
// role no longer exists and ErrForbidden when the bot lacks access.
type Client interface {
	// Self returns the bot's own account.
	Self() User
	SendMessage(ctx context.Context, channelID snowflake.ID, msg Outgoing) (*Message, error)
	// SendDirect opens a DM channel with the user and sends msg there.
	SendDirect(ctx context.Context, userID snowflake.ID, msg Outgoing) (*Message, error)
	EditEmbed(ctx context.Context, channelID, messageID snowflake.ID, embed Embed) error
	// DeleteMessage treats an already deleted message as success.
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	// FetchMessage reports found=false when the message or channel is gone.
	FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) (msg *Message, found bool, err error)
	AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji reactable.Reactable) error
	RemoveReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji reactable.Reactable, userID snowflake.ID) error
	// ReactionUsers lists every user who reacted with emoji.
	ReactionUsers(ctx context.Context, channelID, messageID snowflake.ID, emoji reactable.Reactable) ([]User, error)
	AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	HasPermission(ctx context.Context, channelID, userID snowflake.ID, perm Permission) (bool, error)
}

// ChannelType is the kind of a guild channel.
type ChannelType int

// Channel types reported by the gateway.
const (
	ChannelOther ChannelType = iota
	ChannelText
	ChannelVoice
	ChannelCategory
	ChannelNews
	ChannelStage
	ChannelForum
)

// Label names the channel type for audit log entries.
func (t ChannelType) Label() string {
	switch t {
	case ChannelText:
		return "Text channel"
	case ChannelVoice:
		return "Voice channel"
	case ChannelCategory:
		return "Category"
	case ChannelNews:
		return "Announcement channel"
	case ChannelStage:
		return "Stage channel"
	case ChannelForum:
		return "Forum channel"
	default:
		return "Channel"
	}
}

// Channel is a guild channel as seen in create and delete events.
type Channel struct {
	ID      snowflake.ID
	GuildID snowflake.ID
	Name    string
	Type    ChannelType
}
