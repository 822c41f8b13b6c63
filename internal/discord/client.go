// Package discord adapts a discordgo session to chat.Client and feeds its
// gateway events into an events.Registry.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/reactable"
)

// reactionPage is the largest page the reactions endpoint returns.
const reactionPage = 100

// session is the subset of *discordgo.Session the client calls.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	MessageReactions(channelID, messageID, emojiID string, limit int, beforeID, afterID string, options ...discordgo.RequestOption) ([]*discordgo.User, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)
}

// Client implements chat.Client on top of discordgo.
type Client struct {
	s    session
	self atomic.Pointer[chat.User]
}

// NewClient wraps s. The bot identity is filled in when the gateway reports
// ready.
func NewClient(s session) *Client {
	c := &Client{s: s}
	c.self.Store(&chat.User{})
	return c
}

// SetSelf records the bot's own account.
func (c *Client) SetSelf(u chat.User) {
	c.self.Store(&u)
}

// Self implements chat.Client.
func (c *Client) Self() chat.User {
	return *c.self.Load()
}

// SendMessage implements chat.Client.
func (c *Client) SendMessage(ctx context.Context, channelID snowflake.ID, msg chat.Outgoing) (*chat.Message, error) {
	m, err := c.s.ChannelMessageSendComplex(channelID.String(), toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send message: %w", classify(err))
	}
	out := toMessage(m)
	return &out, nil
}

// SendDirect implements chat.Client.
func (c *Client) SendDirect(ctx context.Context, userID snowflake.ID, msg chat.Outgoing) (*chat.Message, error) {
	ch, err := c.s.UserChannelCreate(userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("open dm channel: %w", classify(err))
	}
	m, err := c.s.ChannelMessageSendComplex(ch.ID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send dm: %w", classify(err))
	}
	out := toMessage(m)
	return &out, nil
}

// EditEmbed implements chat.Client.
func (c *Client) EditEmbed(ctx context.Context, channelID, messageID snowflake.ID, embed chat.Embed) error {
	edit := discordgo.NewMessageEdit(channelID.String(), messageID.String()).SetEmbed(toEmbed(embed))
	if _, err := c.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit message: %w", classify(err))
	}
	return nil
}

// DeleteMessage implements chat.Client.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	err := classify(c.s.ChannelMessageDelete(channelID.String(), messageID.String(), discordgo.WithContext(ctx)))
	if err == nil || errors.Is(err, chat.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("delete message: %w", err)
}

// FetchMessage implements chat.Client.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) (*chat.Message, bool, error) {
	m, err := c.s.ChannelMessage(channelID.String(), messageID.String(), discordgo.WithContext(ctx))
	if err != nil {
		err = classify(err)
		if errors.Is(err, chat.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch message: %w", err)
	}
	out := toMessage(m)
	return &out, true, nil
}

// AddReaction implements chat.Client.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji reactable.Reactable) error {
	if err := c.s.MessageReactionAdd(channelID.String(), messageID.String(), emoji.APIName(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add reaction: %w", classify(err))
	}
	return nil
}

// RemoveReaction implements chat.Client.
func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji reactable.Reactable, userID snowflake.ID) error {
	err := c.s.MessageReactionRemove(channelID.String(), messageID.String(), emoji.APIName(), userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("remove reaction: %w", classify(err))
	}
	return nil
}

// ReactionUsers implements chat.Client, following pages until the last one.
func (c *Client) ReactionUsers(ctx context.Context, channelID, messageID snowflake.ID, emoji reactable.Reactable) ([]chat.User, error) {
	var (
		out   []chat.User
		after string
	)
	for {
		page, err := c.s.MessageReactions(channelID.String(), messageID.String(), emoji.APIName(), reactionPage, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list reactions: %w", classify(err))
		}
		for _, u := range page {
			out = append(out, toUser(u))
		}
		if len(page) < reactionPage {
			return out, nil
		}
		after = page[len(page)-1].ID
	}
}

// AddRole implements chat.Client.
func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	if err := c.s.GuildMemberRoleAdd(guildID.String(), userID.String(), roleID.String(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add role: %w", classify(err))
	}
	return nil
}

// RemoveRole implements chat.Client.
func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	if err := c.s.GuildMemberRoleRemove(guildID.String(), userID.String(), roleID.String(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("remove role: %w", classify(err))
	}
	return nil
}

// HasPermission implements chat.Client. Administrators hold every permission.
func (c *Client) HasPermission(ctx context.Context, channelID, userID snowflake.ID, perm chat.Permission) (bool, error) {
	p, err := c.s.UserChannelPermissions(userID.String(), channelID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("channel permissions: %w", classify(err))
	}
	granted := chat.Permission(p)
	return granted&chat.PermAdministrator != 0 || granted&perm == perm, nil
}

// classify maps REST status codes onto the chat sentinel errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) || rerr.Response == nil {
		return err
	}
	switch rerr.Response.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", chat.ErrNotFound, err)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", chat.ErrForbidden, err)
	}
	return err
}

func parseID(s string) snowflake.ID {
	id, err := snowflake.Parse(s)
	if err != nil {
		return 0
	}
	return id
}

func toMessageSend(msg chat.Outgoing) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{toEmbed(*msg.Embed)}
	}
	for _, f := range msg.Files {
		send.Files = append(send.Files, &discordgo.File{Name: f.Name, Reader: f.Reader})
	}
	return send
}

func toEmbed(e chat.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func toUser(u *discordgo.User) chat.User {
	if u == nil {
		return chat.User{}
	}
	return chat.User{
		ID:        parseID(u.ID),
		Username:  u.Username,
		Bot:       u.Bot,
		AvatarURL: u.AvatarURL(""),
	}
}

func toEmoji(e *discordgo.Emoji) reactable.Reactable {
	if e == nil {
		return reactable.Reactable{}
	}
	return reactable.Reactable{Name: e.Name, ID: parseID(e.ID), Animated: e.Animated}
}

func toMessage(m *discordgo.Message) chat.Message {
	out := chat.Message{
		ID:        parseID(m.ID),
		ChannelID: parseID(m.ChannelID),
		GuildID:   parseID(m.GuildID),
		Author:    toUser(m.Author),
		Content:   m.Content,
		HasEmbeds: len(m.Embeds) > 0,
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, chat.Reaction{Emoji: toEmoji(r.Emoji), Count: r.Count, Me: r.Me})
	}
	return out
}

var _ chat.Client = (*Client)(nil)
