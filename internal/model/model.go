// Package model defines the domain types used across the application.
package model

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ItemKind distinguishes the variants of a timed item.
type ItemKind string

// Supported timed item kinds.
const (
	KindPoll     ItemKind = "poll"
	KindGiveaway ItemKind = "giveaway"
)

// Poll is a pending two-choice vote attached to a display message.
type Poll struct {
	ID         int64
	ChannelID  snowflake.ID
	MessageID  snowflake.ID
	FinishTime time.Time
	Question   string
	Emoji1     string
	Emoji2     string
}

// Giveaway is a pending prize draw attached to a display message.
type Giveaway struct {
	ID         int64
	ChannelID  snowflake.ID
	MessageID  snowflake.ID
	FinishTime time.Time
	Prize      string
	AuthorID   snowflake.ID
}

// GuildSettings holds per-guild configuration. Zero IDs mean unset.
type GuildSettings struct {
	GuildID            snowflake.ID
	AnnouncementRoleID snowflake.ID
	WelcomeChannelID   snowflake.ID
	VerificationRoleID snowflake.ID
	LoggingChannelID   snowflake.ID
}

// ReactionRole binds a reaction on a message to a role.
type ReactionRole struct {
	ID          int64
	GuildID     snowflake.ID
	ChannelID   snowflake.ID
	MessageID   snowflake.ID
	Emoji       string
	RoleID      snowflake.ID
	Description string
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which part of a news item a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
)

// Filter is a single news filtering rule.
type Filter struct {
	Kind  FilterKind  `yaml:"kind"`
	Scope FilterScope `yaml:"scope"`
	Value string      `yaml:"value"`
}
