// Package storage defines the persistence interface and its SQL implementation.
package storage

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/model"
)

// ErrNotFound is returned when a single requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines all persistence operations.
type Storage interface {
	InsertPoll(ctx context.Context, p *model.Poll) error
	ListPolls(ctx context.Context) ([]model.Poll, error)
	GetPoll(ctx context.Context, id int64) (*model.Poll, error)
	// DeletePoll is a no-op when the row is already gone.
	DeletePoll(ctx context.Context, id int64) error
	IsPoll(ctx context.Context, channelID, messageID snowflake.ID) (bool, error)

	InsertGiveaway(ctx context.Context, g *model.Giveaway) error
	ListGiveaways(ctx context.Context) ([]model.Giveaway, error)
	GetGiveaway(ctx context.Context, id int64) (*model.Giveaway, error)
	DeleteGiveaway(ctx context.Context, id int64) error

	// GetGuildSettings returns zero-valued settings for unknown guilds.
	GetGuildSettings(ctx context.Context, guildID snowflake.ID) (*model.GuildSettings, error)
	SetAnnouncementRole(ctx context.Context, guildID, roleID snowflake.ID) error
	SetVerificationRole(ctx context.Context, guildID, roleID snowflake.ID) error
	SetLoggingChannel(ctx context.Context, guildID, channelID snowflake.ID) error
	SetWelcomeChannel(ctx context.Context, guildID, channelID snowflake.ID) error

	CreateReactionRoles(ctx context.Context, roles []model.ReactionRole) error
	GetReactionRole(ctx context.Context, messageID snowflake.ID, emojiKey string) (*model.ReactionRole, error)
	DeleteReactionRoles(ctx context.Context, messageID snowflake.ID) error

	Close() error
}
