package chat

import (
	"regexp"

	"github.com/disgoorg/snowflake/v2"
)

var (
	userMentionRe    = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMentionRe    = regexp.MustCompile(`^<@&(\d+)>$`)
	channelMentionRe = regexp.MustCompile(`^<#(\d+)>$`)
	plainIDRe        = regexp.MustCompile(`^\d{1,20}$`)
)

// MentionUser renders a user ping.
func MentionUser(id snowflake.ID) string { return "<@" + id.String() + ">" }

// MentionRole renders a role ping.
func MentionRole(id snowflake.ID) string { return "<@&" + id.String() + ">" }

// MentionChannel renders a channel link.
func MentionChannel(id snowflake.ID) string { return "<#" + id.String() + ">" }

// ParseUserMention accepts <@id>, <@!id> or a bare id.
func ParseUserMention(s string) (snowflake.ID, bool) {
	return parseMention(userMentionRe, s)
}

// ParseRoleMention accepts <@&id> or a bare id.
func ParseRoleMention(s string) (snowflake.ID, bool) {
	return parseMention(roleMentionRe, s)
}

// ParseChannelMention accepts <#id> or a bare id.
func ParseChannelMention(s string) (snowflake.ID, bool) {
	return parseMention(channelMentionRe, s)
}

func parseMention(re *regexp.Regexp, s string) (snowflake.ID, bool) {
	raw := s
	if m := re.FindStringSubmatch(s); m != nil {
		raw = m[1]
	} else if !plainIDRe.MatchString(s) {
		return 0, false
	}
	id, err := snowflake.Parse(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
