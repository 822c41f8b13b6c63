package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver registration.
	_ "modernc.org/sqlite"             // SQLite driver registration.

	"community_bot/internal/model"
	"community_bot/migrations"
)

// SQL implements Storage on top of database/sql. Queries are written with
// ? placeholders and rebound for Postgres.
type SQL struct {
	db      *sql.DB
	dialect migrations.Dialect
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return open(db, migrations.SQLite)
}

// NewPostgres connects to the Postgres database at dsn and runs pending migrations.
func NewPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return open(db, migrations.Postgres)
}

func open(db *sql.DB, dialect migrations.Dialect) (*SQL, error) {
	if err := migrations.Run(db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQL{db: db, dialect: dialect}, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQL) rebind(query string) string {
	if s.dialect != migrations.Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQL) insertReturningID(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// InsertPoll persists p and populates its ID.
func (s *SQL) InsertPoll(ctx context.Context, p *model.Poll) error {
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO polls (channel_id, message_id, finish_time, question, emoji1, emoji2)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int64(p.ChannelID), int64(p.MessageID), p.FinishTime.Unix(), p.Question, p.Emoji1, p.Emoji2,
	)
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	p.ID = id
	return nil
}

// ListPolls returns every pending poll ordered by finish time.
func (s *SQL) ListPolls(ctx context.Context) ([]model.Poll, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, message_id, finish_time, question, emoji1, emoji2
		 FROM polls ORDER BY finish_time, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query polls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var polls []model.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, *p)
	}
	return polls, rows.Err()
}

// GetPoll returns a single poll by its ID.
func (s *SQL) GetPoll(ctx context.Context, id int64) (*model.Poll, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, channel_id, message_id, finish_time, question, emoji1, emoji2
		 FROM polls WHERE id = ?`), id,
	)
	return scanPoll(row)
}

// DeletePoll removes a poll by its ID.
func (s *SQL) DeletePoll(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM polls WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return nil
}

// IsPoll reports whether the message is the display message of a pending poll.
func (s *SQL) IsPoll(ctx context.Context, channelID, messageID snowflake.ID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM polls WHERE channel_id = ? AND message_id = ?`), int64(channelID), int64(messageID),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check poll: %w", err)
	}
	return count > 0, nil
}

// InsertGiveaway persists g and populates its ID.
func (s *SQL) InsertGiveaway(ctx context.Context, g *model.Giveaway) error {
	id, err := s.insertReturningID(ctx, s.db,
		`INSERT INTO giveaways (channel_id, message_id, finish_time, prize, author_id)
		 VALUES (?, ?, ?, ?, ?)`,
		int64(g.ChannelID), int64(g.MessageID), g.FinishTime.Unix(), g.Prize, int64(g.AuthorID),
	)
	if err != nil {
		return fmt.Errorf("insert giveaway: %w", err)
	}
	g.ID = id
	return nil
}

// ListGiveaways returns every pending giveaway ordered by finish time.
func (s *SQL) ListGiveaways(ctx context.Context) ([]model.Giveaway, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, message_id, finish_time, prize, author_id
		 FROM giveaways ORDER BY finish_time, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query giveaways: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var giveaways []model.Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			return nil, err
		}
		giveaways = append(giveaways, *g)
	}
	return giveaways, rows.Err()
}

// GetGiveaway returns a single giveaway by its ID.
func (s *SQL) GetGiveaway(ctx context.Context, id int64) (*model.Giveaway, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, channel_id, message_id, finish_time, prize, author_id
		 FROM giveaways WHERE id = ?`), id,
	)
	return scanGiveaway(row)
}

// DeleteGiveaway removes a giveaway by its ID.
func (s *SQL) DeleteGiveaway(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM giveaways WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete giveaway: %w", err)
	}
	return nil
}

// GetGuildSettings returns the configuration of a guild.
func (s *SQL) GetGuildSettings(ctx context.Context, guildID snowflake.ID) (*model.GuildSettings, error) {
	var announce, welcome, verify, logging int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT announcement_role_id, welcome_channel_id, verification_role_id, logging_channel_id
		 FROM guild_settings WHERE guild_id = ?`), int64(guildID),
	).Scan(&announce, &welcome, &verify, &logging)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.GuildSettings{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan guild settings: %w", err)
	}
	return &model.GuildSettings{
		GuildID:            guildID,
		AnnouncementRoleID: toID(announce),
		WelcomeChannelID:   toID(welcome),
		VerificationRoleID: toID(verify),
		LoggingChannelID:   toID(logging),
	}, nil
}

// SetAnnouncementRole stores the role pinged by announcements.
func (s *SQL) SetAnnouncementRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	return s.setGuildColumn(ctx, "announcement_role_id", guildID, roleID)
}

// SetVerificationRole stores the role granted on successful verification.
func (s *SQL) SetVerificationRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	return s.setGuildColumn(ctx, "verification_role_id", guildID, roleID)
}

// SetLoggingChannel stores the audit log channel.
func (s *SQL) SetLoggingChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	return s.setGuildColumn(ctx, "logging_channel_id", guildID, channelID)
}

// SetWelcomeChannel stores the channel that greets new members.
func (s *SQL) SetWelcomeChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	return s.setGuildColumn(ctx, "welcome_channel_id", guildID, channelID)
}

// setGuildColumn upserts one settings column. column is never user input.
func (s *SQL) setGuildColumn(ctx context.Context, column string, guildID, value snowflake.ID) error {
	query := fmt.Sprintf(
		`INSERT INTO guild_settings (guild_id, %[1]s) VALUES (?, ?)
		 ON CONFLICT (guild_id) DO UPDATE SET %[1]s = excluded.%[1]s`, column)
	if _, err := s.db.ExecContext(ctx, s.rebind(query), int64(guildID), int64(value)); err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

// CreateReactionRoles stores all bindings of one message atomically and
// populates their IDs.
func (s *SQL) CreateReactionRoles(ctx context.Context, roles []model.ReactionRole) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range roles {
		r := &roles[i]
		id, err := s.insertReturningID(ctx, tx,
			`INSERT INTO reaction_roles (guild_id, channel_id, message_id, emoji, role_id, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			int64(r.GuildID), int64(r.ChannelID), int64(r.MessageID), r.Emoji, int64(r.RoleID), r.Description,
		)
		if err != nil {
			return fmt.Errorf("insert reaction role: %w", err)
		}
		r.ID = id
	}
	return tx.Commit()
}

// GetReactionRole returns the binding for an emoji key on a message.
func (s *SQL) GetReactionRole(ctx context.Context, messageID snowflake.ID, emojiKey string) (*model.ReactionRole, error) {
	var r model.ReactionRole
	var guild, channel, message, role int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, guild_id, channel_id, message_id, emoji, role_id, description
		 FROM reaction_roles WHERE message_id = ? AND emoji = ?`), int64(messageID), emojiKey,
	).Scan(&r.ID, &guild, &channel, &message, &r.Emoji, &role, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reaction role: %w", err)
	}
	r.GuildID, r.ChannelID, r.MessageID, r.RoleID = toID(guild), toID(channel), toID(message), toID(role)
	return &r, nil
}

// DeleteReactionRoles removes every binding attached to a message.
func (s *SQL) DeleteReactionRoles(ctx context.Context, messageID snowflake.ID) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM reaction_roles WHERE message_id = ?`), int64(messageID)); err != nil {
		return fmt.Errorf("delete reaction roles: %w", err)
	}
	return nil
}

func toID(v int64) snowflake.ID {
	return snowflake.ID(uint64(v))
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPoll(row scannable) (*model.Poll, error) {
	var p model.Poll
	var channel, message, finish int64
	err := row.Scan(&p.ID, &channel, &message, &finish, &p.Question, &p.Emoji1, &p.Emoji2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan poll: %w", err)
	}
	p.ChannelID, p.MessageID = toID(channel), toID(message)
	p.FinishTime = time.Unix(finish, 0).UTC()
	return &p, nil
}

func scanGiveaway(row scannable) (*model.Giveaway, error) {
	var g model.Giveaway
	var channel, message, finish, author int64
	err := row.Scan(&g.ID, &channel, &message, &finish, &g.Prize, &author)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan giveaway: %w", err)
	}
	g.ChannelID, g.MessageID, g.AuthorID = toID(channel), toID(message), toID(author)
	g.FinishTime = time.Unix(finish, 0).UTC()
	return &g, nil
}
