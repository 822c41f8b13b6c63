package bot

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/config"
	"community_bot/internal/fetcher"
)

// maxLoggedContent bounds message content quoted in the audit log.
const maxLoggedContent = 100

func errorEmbed(title, description string) chat.Embed {
	return chat.Embed{Title: title, Description: description, Color: chat.ColorError}
}

func noticeEmbed(description string) chat.Embed {
	return chat.Embed{Description: description, Color: chat.ColorWarning}
}

func successEmbed(title, description string) chat.Embed {
	return chat.Embed{Title: title, Description: description, Color: chat.ColorSuccess}
}

// FormatHelp lists the commands grouped by category, in registration order.
func FormatHelp(commands []*command) chat.Embed {
	embed := chat.Embed{Title: "List of categories and commands", Color: chat.ColorSuccess}
	var (
		order  []string
		byName = make(map[string][]string)
	)
	for _, c := range commands {
		if _, ok := byName[c.category]; !ok {
			order = append(order, c.category)
		}
		byName[c.category] = append(byName[c.category], c.name)
	}
	for _, cat := range order {
		embed.Fields = append(embed.Fields, chat.Field{Name: cat, Value: strings.Join(byName[cat], ", ")})
	}
	return embed
}

// FormatCommandHelp describes one command.
func FormatCommandHelp(prefix string, c *command) chat.Embed {
	sig := prefix + c.name
	if c.usage != "" {
		sig += " " + c.usage
	}
	embed := chat.Embed{
		Title:       "`" + sig + "`",
		Description: c.help,
		Color:       chat.ColorSuccess,
		Fields:      []chat.Field{{Name: "This command belongs to", Value: c.category + " category"}},
	}
	if len(c.aliases) > 0 {
		embed.Fields = append(embed.Fields, chat.Field{Name: "Aliases", Value: strings.Join(c.aliases, ", ")})
	}
	return embed
}

func linkTitle(links config.Links, title string) string {
	if links.Name == "" {
		return title
	}
	return links.Name + " " + title
}

// FormatWebsite links the community website.
func FormatWebsite(links config.Links) chat.Embed {
	return successEmbed(linkTitle(links, "Official Website"),
		fmt.Sprintf("Click [here](%s) to visit our website.", links.Website))
}

// FormatInvite links the community server invite.
func FormatInvite(links config.Links) chat.Embed {
	return successEmbed(linkTitle(links, "Official Discord Server"),
		fmt.Sprintf("Click [here](%s) to join our server.", links.Invite))
}

// FormatVote links the server list vote page.
func FormatVote(links config.Links) chat.Embed {
	return successEmbed("Vote us", fmt.Sprintf("Click [here](%s) to submit your vote", links.Vote))
}

// FormatServerStatus renders the status command output.
func FormatServerStatus(address string, st *fetcher.ServerStatus) chat.Embed {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, "default"
	}
	status := "Offline"
	if st.Online {
		status = "Online"
	}
	embed := successEmbed("Minecraft Server Status", "")
	embed.Fields = []chat.Field{
		{Name: "**IP**", Value: host},
		{Name: "**Port**", Value: port},
		{Name: "**Status**", Value: status},
	}
	if st.Online {
		embed.Fields = append(embed.Fields, chat.Field{
			Name:  "**Players**",
			Value: strconv.Itoa(st.Players.Online) + "/" + strconv.Itoa(st.Players.Max),
		})
	}
	return embed
}

// FormatPlayers renders the players command output.
func FormatPlayers(st *fetcher.ServerStatus) chat.Embed {
	if !st.Online {
		return noticeEmbed("The server is offline at the moment!")
	}
	desc := "*No players online.*"
	if st.Players.Online > 0 && len(st.Players.List) > 0 {
		desc = strings.Join(st.Players.List, "\n")
	}
	return successEmbed("List of Players in the MineCraft Server", desc)
}

// FormatNews renders news posts as embed fields.
func FormatNews(posts []fetcher.Post) chat.Embed {
	if len(posts) == 0 {
		return noticeEmbed("No news right now.")
	}
	embed := chat.Embed{Title: "Latest news", Color: chat.ColorDefault}
	for _, p := range posts {
		var b strings.Builder
		if p.Summary != "" {
			b.WriteString(p.Summary)
			b.WriteString("\n")
		}
		if p.Link != "" {
			fmt.Fprintf(&b, "[Read more](%s)", p.Link)
		}
		value := b.String()
		if value == "" {
			value = "\u200b"
		}
		embed.Fields = append(embed.Fields, chat.Field{Name: p.Title, Value: value})
	}
	return embed
}

// FormatAnnouncement is the embed posted by the announce command.
func FormatAnnouncement(text string, at time.Time) chat.Embed {
	return chat.Embed{Title: "Announcement", Description: text, Color: chat.ColorDefault, Timestamp: at}
}

// FormatSelfRoles lists the reaction role bindings.
func FormatSelfRoles(roles []SelfRole) chat.Embed {
	var b strings.Builder
	for i, r := range roles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s: %s", r.Emoji, chat.MentionRole(r.RoleID), r.Description)
	}
	return chat.Embed{Title: "Self roles", Description: b.String(), Footer: "React to get a role, remove the reaction to drop it", Color: chat.ColorDefault}
}

// FormatWelcome greets a new member.
func FormatWelcome(user chat.User) chat.Embed {
	return chat.Embed{
		Title:       "Welcome!",
		Description: fmt.Sprintf("Welcome %s, glad to have you here!", chat.MentionUser(user.ID)),
		Thumbnail:   user.AvatarURL,
		Color:       chat.ColorSuccess,
	}
}

// FormatMessageDeleted is the audit entry for a deleted message. msg is nil
// when its content was not cached.
func FormatMessageDeleted(channelID snowflake.ID, msg *chat.Message) chat.Embed {
	author, content := "?", "?"
	if msg != nil {
		author = chat.MentionUser(msg.Author.ID)
		content = truncateContent(msg.Content)
	}
	embed := chat.Embed{
		Description: fmt.Sprintf("Message sent by %s deleted in %s\n\n%s", author, chat.MentionChannel(channelID), content),
		Color:       chat.ColorError,
	}
	if msg != nil {
		embed.Title = msg.Author.Username
		embed.Thumbnail = msg.Author.AvatarURL
	}
	return embed
}

// FormatMessageEdited is the audit entry for an edited message.
func FormatMessageEdited(before *chat.Message, after chat.Message) chat.Embed {
	old := "?"
	if before != nil {
		old = truncateContent(before.Content)
	}
	return chat.Embed{
		Title: after.Author.Username,
		Description: fmt.Sprintf("Message sent by %s edited in %s\n\nBefore:\n%s\n\nAfter:\n%s",
			chat.MentionUser(after.Author.ID), chat.MentionChannel(after.ChannelID), old, truncateContent(after.Content)),
		Thumbnail: after.Author.AvatarURL,
		Color:     chat.ColorWarning,
	}
}

// FormatChannelChange is the audit entry for a created or deleted channel.
func FormatChannelChange(ch chat.Channel, created bool) chat.Embed {
	if created {
		return chat.Embed{
			Title:       ch.Type.Label() + " created",
			Description: fmt.Sprintf("%s (%s)", chat.MentionChannel(ch.ID), ch.Name),
			Color:       chat.ColorSuccess,
		}
	}
	return chat.Embed{
		Title:       ch.Type.Label() + " deleted",
		Description: "#" + ch.Name,
		Color:       chat.ColorError,
	}
}

func truncateContent(s string) string {
	if s == "" {
		return "*empty*"
	}
	r := []rune(s)
	if len(r) <= maxLoggedContent {
		return s
	}
	return string(r[:maxLoggedContent]) + "..."
}
