// Package bot implements the prefix commands and gateway listeners of the
// community bot.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/config"
	"community_bot/internal/events"
	"community_bot/internal/fetcher"
	"community_bot/internal/filter"
	"community_bot/internal/model"
	"community_bot/internal/storage"
	"community_bot/internal/telemetry"
	"community_bot/internal/timed"
)

// ItemCreator starts polls and giveaways.
type ItemCreator interface {
	CreatePoll(ctx context.Context, req timed.PollRequest) (*model.Poll, error)
	CreateGiveaway(ctx context.Context, req timed.GiveawayRequest) (*model.Giveaway, error)
}

// Bot handles user commands and guild events.
type Bot struct {
	chat     chat.Client
	store    storage.Storage
	items    ItemCreator
	registry *events.Registry
	cfg      *config.Config
	fetcher  *fetcher.Fetcher
	news     *filter.Set
	log      *slog.Logger

	logChannels *logChannelCache
	commands    map[string]*command
	ordered     []*command

	// noticeTTL is how long the "DMs closed" notice stays up.
	noticeTTL time.Duration
}

// New creates a Bot. It fails when the configured news filters are invalid.
func New(cfg *config.Config, store storage.Storage, client chat.Client, items ItemCreator, registry *events.Registry, log *slog.Logger) (*Bot, error) {
	news, err := filter.Compile(cfg.News.Filters)
	if err != nil {
		return nil, fmt.Errorf("news filters: %w", err)
	}

	b := &Bot{
		chat:        client,
		store:       store,
		items:       items,
		registry:    registry,
		cfg:         cfg,
		fetcher:     fetcher.New(http.DefaultClient),
		news:        news,
		log:         log,
		logChannels: newLogChannelCache(store),
		noticeTTL:   60 * time.Second,
	}
	b.registerCommands()
	return b, nil
}

// Register subscribes the bot's listeners to the registry.
func (b *Bot) Register(reg *events.Registry) {
	events.Handle(reg, b.onMessageCreated)
	events.Handle(reg, b.onMessageEdited)
	events.Handle(reg, b.onMessageDeleted)
	events.Handle(reg, b.onReactionAdded)
	events.Handle(reg, b.onReactionRemoved)
	events.Handle(reg, b.onMemberJoined)
	events.Handle(reg, b.onChannelCreated)
	events.Handle(reg, b.onChannelDeleted)
}

func (b *Bot) onMessageCreated(ctx context.Context, ev events.MessageCreated) error {
	msg := ev.Message
	if msg.Author.Bot {
		return nil
	}
	prefix := b.cfg.CommandPrefix
	if !strings.HasPrefix(msg.Content, prefix) {
		return nil
	}

	name, args := nextArg(strings.TrimPrefix(msg.Content, prefix))
	if name == "" {
		return nil
	}
	b.handleCommand(ctx, msg, strings.ToLower(name), args)
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg chat.Message, name, args string) {
	cmd, ok := b.commands[name]
	if !ok {
		return
	}
	log := telemetry.LoggerWithCorr(ctx, b.log)
	log.Debug("command", "cmd", cmd.name, "args", args, "channel_id", msg.ChannelID, "user_id", msg.Author.ID)

	result := "ok"
	defer func() {
		telemetry.Commands.WithLabelValues(cmd.name, result).Inc()
	}()

	if cmd.guildOnly && msg.GuildID == 0 {
		result = "rejected"
		b.reply(ctx, msg.ChannelID, "This command can only be used in a server.")
		return
	}
	if cmd.perm != 0 {
		allowed, err := b.chat.HasPermission(ctx, msg.ChannelID, msg.Author.ID, cmd.perm)
		if err != nil {
			result = "error"
			b.handleError(ctx, msg, cmd, err)
			return
		}
		if !allowed {
			result = "rejected"
			b.reply(ctx, msg.ChannelID, "You don't have permission to use this command.")
			return
		}
	}

	if err := cmd.run(ctx, &request{msg: msg, args: args, prefix: b.cfg.CommandPrefix}); err != nil {
		result = "error"
		b.handleError(ctx, msg, cmd, err)
	}
}

func (b *Bot) reply(ctx context.Context, channelID snowflake.ID, text string) {
	if _, err := b.chat.SendMessage(ctx, channelID, chat.Outgoing{Content: text}); err != nil {
		b.log.Error("send message", "channel_id", channelID, "error", err)
	}
}

func (b *Bot) replyEmbed(ctx context.Context, channelID snowflake.ID, embed chat.Embed) {
	if _, err := b.chat.SendMessage(ctx, channelID, chat.Outgoing{Embed: &embed}); err != nil {
		b.log.Error("send message", "channel_id", channelID, "error", err)
	}
}
