package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/captcha"
	"community_bot/internal/chat"
	"community_bot/internal/events"
	"community_bot/internal/fetcher"
	"community_bot/internal/model"
	"community_bot/internal/telemetry"
	"community_bot/internal/timed"
)

// Command categories shown by help.
const (
	categoryInfo         = "Info"
	categoryLinks        = "Links"
	categoryModeration   = "Moderation"
	categoryUtility      = "Utility"
	categoryVerification = "Verification"
)

type command struct {
	name      string
	aliases   []string
	usage     string
	help      string
	category  string
	perm      chat.Permission
	guildOnly bool
	run       func(ctx context.Context, r *request) error
}

// CheckError reports a command that cannot run in the current state, such
// as a feature that has not been configured yet.
type CheckError struct {
	Reason string
}

func (e *CheckError) Error() string { return e.Reason }

func checkFailure(format string, args ...any) error {
	return &CheckError{Reason: fmt.Sprintf(format, args...)}
}

func (b *Bot) registerCommands() {
	b.ordered = []*command{
		{name: "help", usage: "[command]", help: "Shows this message", category: categoryInfo, run: b.cmdHelp},
		{name: "status", help: "Shows the status of the MineCraft server", category: categoryInfo, run: b.cmdStatus},
		{name: "players", help: "Lists the online players in the MineCraft server", category: categoryInfo, run: b.cmdPlayers},
		{name: "news", help: "Shows the latest community news", category: categoryInfo, run: b.cmdNews},

		{name: "web", aliases: []string{"website"}, help: "Sends a link to our website", category: categoryLinks, run: b.cmdWebsite},
		{name: "discord", aliases: []string{"invite", "server"}, help: "Sends an invite link to our discord server", category: categoryLinks, run: b.cmdInvite},
		{name: "vote", aliases: []string{"upvote"}, help: "Sends a link for voting", category: categoryLinks, run: b.cmdVote},

		{name: "poll", usage: "<duration> <emoji1> <emoji2> <question>", help: "Starts a poll with two choices that closes after the given duration, e.g. 1d12h", category: categoryUtility, guildOnly: true, run: b.cmdPoll},
		{name: "giveaway", aliases: []string{"gaw"}, usage: "<duration> <prize>", help: "Starts a giveaway that draws one winner after the given duration", category: categoryUtility, guildOnly: true, run: b.cmdGiveaway},
		{name: "selfroles", usage: "<role> <emoji> <description> (one per line)", help: "Posts a message members react to for self-assignable roles", category: categoryUtility, perm: chat.PermManageRoles, guildOnly: true, run: b.cmdSelfRoles},

		{name: "announce", aliases: []string{"announcement"}, usage: "<text>", help: "Sends an announcement pinging the announcement role", category: categoryModeration, perm: chat.PermAdministrator, guildOnly: true, run: b.cmdAnnounce},
		{name: "announcerole", usage: "<role>", help: "Updates the announcement role for the server", category: categoryModeration, perm: chat.PermAdministrator, guildOnly: true, run: b.cmdAnnounceRole},
		{name: "enablelogs", usage: "<channel>", help: "Enables logging of deleted and edited messages and channel changes", category: categoryModeration, perm: chat.PermManageGuild, guildOnly: true, run: b.cmdEnableLogs},
		{name: "welcomechannel", usage: "<channel>", help: "Sets the channel new members are welcomed in", category: categoryModeration, perm: chat.PermManageGuild, guildOnly: true, run: b.cmdWelcomeChannel},

		{name: "setup_verification", aliases: []string{"setvr", "verifrole"}, usage: "<role>", help: "Sets the role given to verified members", category: categoryVerification, perm: chat.PermManageGuild, guildOnly: true, run: b.cmdSetVerification},
		{name: "verify", help: "Verifies you by sending a captcha in your DM", category: categoryVerification, guildOnly: true, run: b.cmdVerify},
	}

	b.commands = make(map[string]*command, len(b.ordered)*2)
	for _, c := range b.ordered {
		b.commands[c.name] = c
		for _, a := range c.aliases {
			b.commands[a] = c
		}
	}
}

func (b *Bot) handleError(ctx context.Context, msg chat.Message, cmd *command, err error) {
	var (
		argErr   *ArgumentError
		valErr   *timed.ValidationError
		checkErr *CheckError
	)
	switch {
	case errors.As(err, &argErr):
		title := "Bad argument"
		if argErr.Missing {
			title = "Missing argument"
		}
		b.replyEmbed(ctx, msg.ChannelID, errorEmbed(title, argErr.Error()))
	case errors.As(err, &valErr):
		b.replyEmbed(ctx, msg.ChannelID, noticeEmbed(valErr.Reason))
	case errors.As(err, &checkErr):
		b.replyEmbed(ctx, msg.ChannelID, noticeEmbed(checkErr.Reason))
	case errors.Is(err, chat.ErrForbidden):
		b.replyEmbed(ctx, msg.ChannelID, errorEmbed("Missing permissions", "I don't have permission to do that here."))
	default:
		telemetry.LoggerWithCorr(ctx, b.log).Error("command failed", "cmd", cmd.name, "user_id", msg.Author.ID, "error", err)
		b.replyEmbed(ctx, msg.ChannelID, errorEmbed("Error", "Something went wrong"))
	}
}

func (b *Bot) cmdHelp(ctx context.Context, r *request) error {
	name, _ := nextArg(r.args)
	if name == "" {
		b.replyEmbed(ctx, r.msg.ChannelID, FormatHelp(b.ordered))
		return nil
	}
	c, ok := b.commands[strings.ToLower(strings.TrimPrefix(name, r.prefix))]
	if !ok {
		b.replyEmbed(ctx, r.msg.ChannelID, noticeEmbed(fmt.Sprintf("No command called %s!", name)))
		return nil
	}
	b.replyEmbed(ctx, r.msg.ChannelID, FormatCommandHelp(r.prefix, c))
	return nil
}

func (b *Bot) cmdPoll(ctx context.Context, r *request) error {
	rawDur, err := r.next("duration")
	if err != nil {
		return err
	}
	d, err := parseDuration(rawDur)
	if err != nil {
		return err
	}
	rawEmoji1, err := r.next("emoji1")
	if err != nil {
		return err
	}
	emoji1, err := parseEmoji(rawEmoji1)
	if err != nil {
		return err
	}
	rawEmoji2, err := r.next("emoji2")
	if err != nil {
		return err
	}
	emoji2, err := parseEmoji(rawEmoji2)
	if err != nil {
		return err
	}
	question, err := r.rest("question")
	if err != nil {
		return err
	}

	_, err = b.items.CreatePoll(ctx, timed.PollRequest{
		ChannelID: r.msg.ChannelID,
		Duration:  d,
		Emoji1:    emoji1,
		Emoji2:    emoji2,
		Question:  question,
	})
	if err != nil {
		return err
	}
	if err := b.chat.DeleteMessage(ctx, r.msg.ChannelID, r.msg.ID); err != nil {
		telemetry.LoggerWithCorr(ctx, b.log).Warn("delete poll request", "message_id", r.msg.ID, "error", err)
	}
	return nil
}

func (b *Bot) cmdGiveaway(ctx context.Context, r *request) error {
	rawDur, err := r.next("duration")
	if err != nil {
		return err
	}
	d, err := parseDuration(rawDur)
	if err != nil {
		return err
	}
	prize, err := r.rest("prize")
	if err != nil {
		return err
	}

	_, err = b.items.CreateGiveaway(ctx, timed.GiveawayRequest{
		ChannelID: r.msg.ChannelID,
		AuthorID:  r.msg.Author.ID,
		Duration:  d,
		Prize:     prize,
	})
	return err
}

func (b *Bot) cmdAnnounce(ctx context.Context, r *request) error {
	text, err := r.rest("text")
	if err != nil {
		return err
	}
	settings, err := b.store.GetGuildSettings(ctx, r.msg.GuildID)
	if err != nil {
		return fmt.Errorf("get guild settings: %w", err)
	}
	if settings.AnnouncementRoleID == 0 {
		b.reply(ctx, r.msg.ChannelID, "Announcement ping role not set, use `announcerole` to set one")
		return nil
	}

	embed := FormatAnnouncement(text, time.Now())
	_, err = b.chat.SendMessage(ctx, r.msg.ChannelID, chat.Outgoing{
		Content: chat.MentionRole(settings.AnnouncementRoleID),
		Embed:   &embed,
	})
	if err != nil {
		return fmt.Errorf("send announcement: %w", err)
	}
	return nil
}

func (b *Bot) cmdAnnounceRole(ctx context.Context, r *request) error {
	raw, err := r.next("role")
	if err != nil {
		return err
	}
	roleID, err := parseRole(raw)
	if err != nil {
		return err
	}
	if err := b.store.SetAnnouncementRole(ctx, r.msg.GuildID, roleID); err != nil {
		return fmt.Errorf("set announcement role: %w", err)
	}
	b.reply(ctx, r.msg.ChannelID, "Updated.")
	return nil
}

func (b *Bot) cmdEnableLogs(ctx context.Context, r *request) error {
	raw, err := r.next("channel")
	if err != nil {
		return err
	}
	channelID, err := parseChannel(raw)
	if err != nil {
		return err
	}
	if err := b.store.SetLoggingChannel(ctx, r.msg.GuildID, channelID); err != nil {
		return fmt.Errorf("set logging channel: %w", err)
	}
	b.logChannels.set(r.msg.GuildID, channelID)
	b.reply(ctx, r.msg.ChannelID, "Enabled logging features.\nLogs will now appear in "+chat.MentionChannel(channelID))
	return nil
}

func (b *Bot) cmdWelcomeChannel(ctx context.Context, r *request) error {
	raw, err := r.next("channel")
	if err != nil {
		return err
	}
	channelID, err := parseChannel(raw)
	if err != nil {
		return err
	}
	if err := b.store.SetWelcomeChannel(ctx, r.msg.GuildID, channelID); err != nil {
		return fmt.Errorf("set welcome channel: %w", err)
	}
	b.reply(ctx, r.msg.ChannelID, "New members will be welcomed in "+chat.MentionChannel(channelID))
	return nil
}

func (b *Bot) cmdSetVerification(ctx context.Context, r *request) error {
	raw, err := r.next("role")
	if err != nil {
		return err
	}
	roleID, err := parseRole(raw)
	if err != nil {
		return err
	}
	if err := b.store.SetVerificationRole(ctx, r.msg.GuildID, roleID); err != nil {
		return fmt.Errorf("set verification role: %w", err)
	}
	b.reply(ctx, r.msg.ChannelID, "Updated.")
	return nil
}

func (b *Bot) cmdVerify(ctx context.Context, r *request) error {
	msg := r.msg
	log := telemetry.LoggerWithCorr(ctx, b.log)
	if err := b.chat.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil {
		log.Warn("delete verify request", "message_id", msg.ID, "error", err)
	}

	settings, err := b.store.GetGuildSettings(ctx, msg.GuildID)
	if err != nil {
		return fmt.Errorf("get guild settings: %w", err)
	}
	if settings.VerificationRoleID == 0 {
		return checkFailure("Verification role is not set. Please use `%ssetup_verification` command", r.prefix)
	}

	code := captcha.New(captcha.Length)
	_, err = b.chat.SendDirect(ctx, msg.Author.ID, chat.Outgoing{
		Content: "Type the characters below (case sensitive)\n" + captcha.Render(code),
	})
	if errors.Is(err, chat.ErrForbidden) {
		b.dmClosedNotice(ctx, msg)
		return nil
	}
	if err != nil {
		return fmt.Errorf("send captcha: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.cfg.VerifyTimeout)
	defer cancel()
	ev, err := b.registry.Wait(waitCtx, events.KindMessageCreated, func(e events.Event) bool {
		m := e.(events.MessageCreated).Message
		return m.GuildID == 0 && m.Author.ID == msg.Author.ID
	})
	if errors.Is(err, context.DeadlineExceeded) {
		b.direct(ctx, msg.Author.ID, "Timed out.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("wait for captcha answer: %w", err)
	}

	answer := ev.(events.MessageCreated).Message.Content
	if !captcha.Check(code, answer) {
		b.direct(ctx, msg.Author.ID, "Incorrect captcha, can't verify you")
		return nil
	}
	if err := b.chat.AddRole(ctx, msg.GuildID, msg.Author.ID, settings.VerificationRoleID); err != nil {
		return fmt.Errorf("grant verification role: %w", err)
	}
	b.direct(ctx, msg.Author.ID, "Verified")
	return nil
}

// dmClosedNotice tells the user in the channel that their DMs are closed and
// removes the notice after noticeTTL.
func (b *Bot) dmClosedNotice(ctx context.Context, msg chat.Message) {
	notice, err := b.chat.SendMessage(ctx, msg.ChannelID, chat.Outgoing{
		Content: chat.MentionUser(msg.Author.ID) + " I can't message you because your DMs are turned off\n" +
			"Please enable DMs from this server and try again!",
	})
	if err != nil {
		b.log.Error("send dm notice", "channel_id", msg.ChannelID, "error", err)
		return
	}
	time.AfterFunc(b.noticeTTL, func() {
		ctx := context.WithoutCancel(ctx)
		if err := b.chat.DeleteMessage(ctx, notice.ChannelID, notice.ID); err != nil {
			b.log.Warn("delete dm notice", "message_id", notice.ID, "error", err)
		}
	})
}

func (b *Bot) direct(ctx context.Context, userID snowflake.ID, text string) {
	if _, err := b.chat.SendDirect(ctx, userID, chat.Outgoing{Content: text}); err != nil {
		b.log.Warn("send direct message", "user_id", userID, "error", err)
	}
}

func (b *Bot) cmdSelfRoles(ctx context.Context, r *request) error {
	text, err := r.rest("roles")
	if err != nil {
		return err
	}
	roles, err := ParseSelfRoles(text)
	if err != nil {
		return err
	}

	embed := FormatSelfRoles(roles)
	sent, err := b.chat.SendMessage(ctx, r.msg.ChannelID, chat.Outgoing{Embed: &embed})
	if err != nil {
		return fmt.Errorf("send self roles: %w", err)
	}

	bindings := make([]model.ReactionRole, 0, len(roles))
	for _, role := range roles {
		if err := b.chat.AddReaction(ctx, sent.ChannelID, sent.ID, role.Emoji); err != nil {
			b.discard(ctx, sent)
			return fmt.Errorf("add reaction %s: %w", role.Emoji, err)
		}
		bindings = append(bindings, model.ReactionRole{
			GuildID:     r.msg.GuildID,
			ChannelID:   sent.ChannelID,
			MessageID:   sent.ID,
			Emoji:       role.Emoji.Key(),
			RoleID:      role.RoleID,
			Description: role.Description,
		})
	}
	if err := b.store.CreateReactionRoles(ctx, bindings); err != nil {
		b.discard(ctx, sent)
		return fmt.Errorf("save reaction roles: %w", err)
	}
	return nil
}

func (b *Bot) discard(ctx context.Context, msg *chat.Message) {
	if err := b.chat.DeleteMessage(context.WithoutCancel(ctx), msg.ChannelID, msg.ID); err != nil {
		b.log.Warn("delete message", "message_id", msg.ID, "error", err)
	}
}

func (b *Bot) serverStatus(ctx context.Context) (*fetcher.ServerStatus, error) {
	if b.cfg.Minecraft.Address == "" {
		return nil, checkFailure("The game server address is not configured.")
	}
	st, err := b.fetcher.ServerStatus(ctx, b.cfg.Minecraft.StatusAPI, b.cfg.Minecraft.Address)
	if err != nil {
		return nil, fmt.Errorf("server status: %w", err)
	}
	return st, nil
}

func (b *Bot) cmdStatus(ctx context.Context, r *request) error {
	st, err := b.serverStatus(ctx)
	if err != nil {
		return err
	}
	b.replyEmbed(ctx, r.msg.ChannelID, FormatServerStatus(b.cfg.Minecraft.Address, st))
	return nil
}

func (b *Bot) cmdPlayers(ctx context.Context, r *request) error {
	st, err := b.serverStatus(ctx)
	if err != nil {
		return err
	}
	b.replyEmbed(ctx, r.msg.ChannelID, FormatPlayers(st))
	return nil
}

func (b *Bot) cmdNews(ctx context.Context, r *request) error {
	if b.cfg.News.FeedURL == "" {
		return checkFailure("News are not configured.")
	}
	posts, err := b.fetcher.Latest(ctx, b.cfg.News.FeedURL, b.news, b.cfg.News.Limit)
	if err != nil {
		return fmt.Errorf("fetch news: %w", err)
	}
	b.replyEmbed(ctx, r.msg.ChannelID, FormatNews(posts))
	return nil
}

func (b *Bot) cmdWebsite(ctx context.Context, r *request) error {
	b.replyEmbed(ctx, r.msg.ChannelID, FormatWebsite(b.cfg.Links))
	return nil
}

func (b *Bot) cmdInvite(ctx context.Context, r *request) error {
	b.replyEmbed(ctx, r.msg.ChannelID, FormatInvite(b.cfg.Links))
	return nil
}

func (b *Bot) cmdVote(ctx context.Context, r *request) error {
	b.replyEmbed(ctx, r.msg.ChannelID, FormatVote(b.cfg.Links))
	return nil
}
