// Package platform defines the chat-platform operations the bot consumes.
// Adapters (discord, fakeplatform) translate them to a concrete client.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrPermission is returned when the platform refuses an action for lack of permissions.
	ErrPermission = errors.New("missing permissions")
	// ErrNotFound is returned when the referenced member, role, channel or message is gone.
	ErrNotFound = errors.New("not found")
)

// CheckMark is the reaction used to sign up for events.
const CheckMark = "✅"

type Permission int64

const (
	PermAdministrator Permission = 1 << 3
	PermManageRoles   Permission = 1 << 28
	PermManageEvents  Permission = 1 << 33
)

func (p Permission) String() string {
	switch p {
	case PermAdministrator:
		return "administrator"
	case PermManageRoles:
		return "manage_roles"
	case PermManageEvents:
		return "manage_events"
	case 0:
		return "none"
	}
	return fmt.Sprintf("permission(%d)", int64(p))
}

type User struct {
	ID       snowflake.ID
	Username string
	Bot      bool
}

type Member struct {
	User
	DisplayName string
	JoinedAt    time.Time
	Roles       []snowflake.ID
}

func (m Member) HasRole(roleID snowflake.ID) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

type Role struct {
	ID   snowflake.ID
	Name string
}

type ChannelKind int

const (
	ChannelText ChannelKind = iota
	ChannelVoice
	ChannelCategory
	ChannelOther
)

type Channel struct {
	ID       snowflake.ID
	Name     string
	Kind     ChannelKind
	ParentID snowflake.ID // 所属カテゴリ（なければ 0）
}

type Message struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	AuthorID  snowflake.ID
	Content   string
}

// IncomingMessage is a guild message delivered by the gateway.
type IncomingMessage struct {
	ID          snowflake.ID
	ChannelID   snowflake.ID
	GuildID     snowflake.ID // DM のときは 0
	Author      User
	Content     string
	ReferenceID snowflake.ID // 返信先メッセージ（なければ 0）
	ReceivedAt  time.Time
}

// Client is the set of platform operations used by the bot's components.
type Client interface {
	Members(ctx context.Context) ([]Member, error)
	Member(ctx context.Context, userID snowflake.ID) (*Member, error)
	Role(ctx context.Context, roleID snowflake.ID) (*Role, error)
	RoleHolders(ctx context.Context, roleID snowflake.ID) ([]Member, error)
	AddRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error
	RemoveRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error

	SendMessage(ctx context.Context, channelID snowflake.ID, content string) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID snowflake.ID, content string) error
	FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) (*Message, error)
	AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error
	ClearReactions(ctx context.Context, channelID, messageID snowflake.ID) error
	Reactors(ctx context.Context, channelID, messageID snowflake.ID, emoji string) ([]User, error)

	Channel(ctx context.Context, channelID snowflake.ID) (*Channel, error)
	HasPermission(ctx context.Context, userID snowflake.ID, perm Permission) (bool, error)
}

func MentionUser(id snowflake.ID) string {
	return "<@" + id.String() + ">"
}

func MentionRole(id snowflake.ID) string {
	return "<@&" + id.String() + ">"
}

func MentionChannel(id snowflake.ID) string {
	return "<#" + id.String() + ">"
}
