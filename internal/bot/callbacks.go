package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/events"
	"community_bot/internal/model"
	"community_bot/internal/storage"
)

type settingsReader interface {
	GetGuildSettings(ctx context.Context, guildID snowflake.ID) (*model.GuildSettings, error)
}

// logChannelCache is a read-through cache of each guild's audit log channel.
// Zero means logging is disabled.
type logChannelCache struct {
	store settingsReader

	mu      sync.Mutex
	byGuild map[snowflake.ID]snowflake.ID
}

func newLogChannelCache(store settingsReader) *logChannelCache {
	return &logChannelCache{store: store, byGuild: make(map[snowflake.ID]snowflake.ID)}
}

func (c *logChannelCache) get(ctx context.Context, guildID snowflake.ID) (snowflake.ID, error) {
	c.mu.Lock()
	id, ok := c.byGuild[guildID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	settings, err := c.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("get guild settings: %w", err)
	}
	c.set(guildID, settings.LoggingChannelID)
	return settings.LoggingChannelID, nil
}

func (c *logChannelCache) set(guildID, channelID snowflake.ID) {
	c.mu.Lock()
	c.byGuild[guildID] = channelID
	c.mu.Unlock()
}

// audit posts embed to the guild's log channel if logging is enabled.
func (b *Bot) audit(ctx context.Context, guildID snowflake.ID, embed chat.Embed) error {
	if guildID == 0 {
		return nil
	}
	channelID, err := b.logChannels.get(ctx, guildID)
	if err != nil {
		return err
	}
	if channelID == 0 {
		return nil
	}
	if _, err := b.chat.SendMessage(ctx, channelID, chat.Outgoing{Embed: &embed}); err != nil {
		return fmt.Errorf("send audit entry: %w", err)
	}
	return nil
}

func (b *Bot) onMessageDeleted(ctx context.Context, ev events.MessageDeleted) error {
	if err := b.store.DeleteReactionRoles(ctx, ev.MessageID); err != nil {
		return fmt.Errorf("delete reaction roles: %w", err)
	}
	if ev.Cached != nil && ev.Cached.Author.ID == b.chat.Self().ID {
		return nil
	}
	return b.audit(ctx, ev.GuildID, FormatMessageDeleted(ev.ChannelID, ev.Cached))
}

func (b *Bot) onMessageEdited(ctx context.Context, ev events.MessageEdited) error {
	after := ev.After
	if after.Content == "" || after.Author.Bot {
		return nil
	}
	// Link previews arrive as edits with unchanged content.
	if ev.Before != nil && ev.Before.Content == after.Content {
		return nil
	}
	return b.audit(ctx, after.GuildID, FormatMessageEdited(ev.Before, after))
}

func (b *Bot) onChannelCreated(ctx context.Context, ev events.ChannelCreated) error {
	return b.audit(ctx, ev.Channel.GuildID, FormatChannelChange(ev.Channel, true))
}

func (b *Bot) onChannelDeleted(ctx context.Context, ev events.ChannelDeleted) error {
	return b.audit(ctx, ev.Channel.GuildID, FormatChannelChange(ev.Channel, false))
}

func (b *Bot) onMemberJoined(ctx context.Context, ev events.MemberJoined) error {
	if ev.User.Bot {
		return nil
	}
	settings, err := b.store.GetGuildSettings(ctx, ev.GuildID)
	if err != nil {
		return fmt.Errorf("get guild settings: %w", err)
	}
	if settings.WelcomeChannelID == 0 {
		return nil
	}
	embed := FormatWelcome(ev.User)
	_, err = b.chat.SendMessage(ctx, settings.WelcomeChannelID, chat.Outgoing{
		Content: chat.MentionUser(ev.User.ID),
		Embed:   &embed,
	})
	if err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

func (b *Bot) onReactionAdded(ctx context.Context, ev events.ReactionAdded) error {
	role, err := b.reactionRole(ctx, ev.GuildID, ev.UserID, ev.MessageID, ev.Emoji.Key())
	if role == nil || err != nil {
		return err
	}
	if err := b.chat.AddRole(ctx, ev.GuildID, ev.UserID, role.RoleID); err != nil {
		return fmt.Errorf("grant role %s: %w", role.RoleID, err)
	}
	return nil
}

func (b *Bot) onReactionRemoved(ctx context.Context, ev events.ReactionRemoved) error {
	role, err := b.reactionRole(ctx, ev.GuildID, ev.UserID, ev.MessageID, ev.Emoji.Key())
	if role == nil || err != nil {
		return err
	}
	if err := b.chat.RemoveRole(ctx, ev.GuildID, ev.UserID, role.RoleID); err != nil {
		return fmt.Errorf("revoke role %s: %w", role.RoleID, err)
	}
	return nil
}

// reactionRole returns the binding for a reaction, or nil when the reaction
// does not address a self role.
func (b *Bot) reactionRole(ctx context.Context, guildID, userID, messageID snowflake.ID, emojiKey string) (*model.ReactionRole, error) {
	if guildID == 0 || userID == b.chat.Self().ID {
		return nil, nil
	}
	role, err := b.store.GetReactionRole(ctx, messageID, emojiKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reaction role: %w", err)
	}
	return role, nil
}
