// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/reactable"
	"community_bot/internal/storage"
)

// BotID is the account ID of the fake bot user.
const BotID snowflake.ID = 999

// Sent records one outgoing message. UserID is set for direct messages.
type Sent struct {
	ChannelID snowflake.ID
	UserID    snowflake.ID
	MessageID snowflake.ID
	Msg       chat.Outgoing
}

// Edit records one embed edit.
type Edit struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
	Embed     chat.Embed
}

// RoleChange records one role grant or revoke.
type RoleChange struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
	RoleID  snowflake.ID
	Added   bool
}

type reactionState struct {
	emoji reactable.Reactable
	users []snowflake.ID
}

type messageState struct {
	msg       chat.Message
	embed     *chat.Embed
	reactions []*reactionState
}

// FakeChat is an in-memory chat.Client.
type FakeChat struct {
	mu       sync.Mutex
	nextID   snowflake.ID
	messages map[snowflake.ID]*messageState
	perms    map[snowflake.ID]chat.Permission

	sent    []Sent
	edits   []Edit
	deleted []snowflake.ID
	roles   []RoleChange
	fetches int

	// Failure injection.
	FetchErr    error
	EditErr     error
	SendErr     error
	DMForbidden bool
}

// NewFakeChat returns an empty FakeChat.
func NewFakeChat() *FakeChat {
	return &FakeChat{
		nextID:   10_000,
		messages: make(map[snowflake.ID]*messageState),
		perms:    make(map[snowflake.ID]chat.Permission),
	}
}

// Self returns the fake bot account.
func (f *FakeChat) Self() chat.User {
	return chat.User{ID: BotID, Username: "bot", Bot: true}
}

// Grant gives userID perm in every channel.
func (f *FakeChat) Grant(userID snowflake.ID, perm chat.Permission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms[userID] |= perm
}

// SendMessage implements chat.Client.
func (f *FakeChat) SendMessage(_ context.Context, channelID snowflake.ID, msg chat.Outgoing) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	return f.storeLocked(channelID, 0, msg), nil
}

// SendDirect implements chat.Client.
func (f *FakeChat) SendDirect(_ context.Context, userID snowflake.ID, msg chat.Outgoing) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DMForbidden {
		return nil, chat.ErrForbidden
	}
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	return f.storeLocked(userID, userID, msg), nil
}

func (f *FakeChat) storeLocked(channelID, userID snowflake.ID, msg chat.Outgoing) *chat.Message {
	f.nextID++
	m := chat.Message{
		ID:        f.nextID,
		ChannelID: channelID,
		Author:    f.Self(),
		Content:   msg.Content,
		HasEmbeds: msg.Embed != nil,
	}
	st := &messageState{msg: m}
	if msg.Embed != nil {
		e := *msg.Embed
		st.embed = &e
	}
	f.messages[m.ID] = st
	f.sent = append(f.sent, Sent{ChannelID: channelID, UserID: userID, MessageID: m.ID, Msg: msg})
	return &m
}

// EditEmbed implements chat.Client.
func (f *FakeChat) EditEmbed(_ context.Context, channelID, messageID snowflake.ID, embed chat.Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EditErr != nil {
		return f.EditErr
	}
	st, ok := f.messages[messageID]
	if !ok {
		return chat.ErrNotFound
	}
	st.embed = &embed
	f.edits = append(f.edits, Edit{ChannelID: channelID, MessageID: messageID, Embed: embed})
	return nil
}

// DeleteMessage implements chat.Client.
func (f *FakeChat) DeleteMessage(_ context.Context, _, messageID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[messageID]; ok {
		delete(f.messages, messageID)
		f.deleted = append(f.deleted, messageID)
	}
	return nil
}

// FetchMessage implements chat.Client.
func (f *FakeChat) FetchMessage(_ context.Context, _, messageID snowflake.ID) (*chat.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.FetchErr != nil {
		return nil, false, f.FetchErr
	}
	st, ok := f.messages[messageID]
	if !ok {
		return nil, false, nil
	}
	m := st.msg
	m.Reactions = nil
	for _, r := range st.reactions {
		m.Reactions = append(m.Reactions, chat.Reaction{
			Emoji: r.emoji,
			Count: len(r.users),
			Me:    slices.Contains(r.users, BotID),
		})
	}
	return &m, true, nil
}

// AddReaction implements chat.Client.
func (f *FakeChat) AddReaction(_ context.Context, _, messageID snowflake.ID, emoji reactable.Reactable) error {
	return f.React(messageID, emoji, BotID)
}

// RemoveReaction implements chat.Client.
func (f *FakeChat) RemoveReaction(_ context.Context, _, messageID snowflake.ID, emoji reactable.Reactable, userID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.messages[messageID]
	if !ok {
		return chat.ErrNotFound
	}
	for i, r := range st.reactions {
		if !r.emoji.Equal(emoji) {
			continue
		}
		r.users = slices.DeleteFunc(r.users, func(id snowflake.ID) bool { return id == userID })
		if len(r.users) == 0 {
			st.reactions = slices.Delete(st.reactions, i, i+1)
		}
		return nil
	}
	return nil
}

// ReactionUsers implements chat.Client.
func (f *FakeChat) ReactionUsers(_ context.Context, _, messageID snowflake.ID, emoji reactable.Reactable) ([]chat.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.messages[messageID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	var users []chat.User
	for _, r := range st.reactions {
		if !r.emoji.Equal(emoji) {
			continue
		}
		for _, id := range r.users {
			users = append(users, chat.User{ID: id, Bot: id == BotID})
		}
	}
	return users, nil
}

// AddRole implements chat.Client.
func (f *FakeChat) AddRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, RoleChange{GuildID: guildID, UserID: userID, RoleID: roleID, Added: true})
	return nil
}

// RemoveRole implements chat.Client.
func (f *FakeChat) RemoveRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, RoleChange{GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

// HasPermission implements chat.Client.
func (f *FakeChat) HasPermission(_ context.Context, _, userID snowflake.ID, perm chat.Permission) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.perms[userID]
	return p&chat.PermAdministrator != 0 || p&perm == perm, nil
}

// PutMessage seeds a message as if another user had posted it.
func (f *FakeChat) PutMessage(m chat.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = &messageState{msg: m}
}

// React adds userID's reaction with emoji to a message.
func (f *FakeChat) React(messageID snowflake.ID, emoji reactable.Reactable, userID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.messages[messageID]
	if !ok {
		return chat.ErrNotFound
	}
	for _, r := range st.reactions {
		if r.emoji.Equal(emoji) {
			if !slices.Contains(r.users, userID) {
				r.users = append(r.users, userID)
			}
			return nil
		}
	}
	st.reactions = append(st.reactions, &reactionState{emoji: emoji, users: []snowflake.ID{userID}})
	return nil
}

// Vanish removes a message without recording a bot deletion.
func (f *FakeChat) Vanish(messageID snowflake.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, messageID)
}

// Exists reports whether a message is present.
func (f *FakeChat) Exists(messageID snowflake.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[messageID]
	return ok
}

// EmbedOf returns the current embed of a message.
func (f *FakeChat) EmbedOf(messageID snowflake.ID) (chat.Embed, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.messages[messageID]
	if !ok || st.embed == nil {
		return chat.Embed{}, false
	}
	return *st.embed, true
}

// Reactors returns the users who reacted with emoji.
func (f *FakeChat) Reactors(messageID snowflake.ID, emoji reactable.Reactable) []snowflake.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.messages[messageID]
	if !ok {
		return nil
	}
	for _, r := range st.reactions {
		if r.emoji.Equal(emoji) {
			return slices.Clone(r.users)
		}
	}
	return nil
}

// Sent returns a copy of all sent messages.
func (f *FakeChat) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

// LastSent returns the most recent sent message.
func (f *FakeChat) LastSent() (Sent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return Sent{}, false
	}
	return f.sent[len(f.sent)-1], true
}

// Edits returns a copy of all embed edits.
func (f *FakeChat) Edits() []Edit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.edits)
}

// Deleted returns the IDs of messages deleted through the client.
func (f *FakeChat) Deleted() []snowflake.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deleted)
}

// RoleChanges returns all role grants and revokes.
func (f *FakeChat) RoleChanges() []RoleChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.roles)
}

// Fetches returns how many times FetchMessage was called.
func (f *FakeChat) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Reset clears the recorded calls but keeps messages.
func (f *FakeChat) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent, f.edits, f.deleted, f.roles, f.fetches = nil, nil, nil, nil, 0
}

// NewStore opens an in-memory SQLite store closed at test cleanup.
func NewStore(t testing.TB) *storage.SQL {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ chat.Client = (*FakeChat)(nil)
