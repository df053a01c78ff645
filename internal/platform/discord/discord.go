// Package discord adapts a discordgo session to platform.Client for one guild.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	membersPageSize  = 1000
	reactorsPageSize = 100
	gatewayIntents   = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions | discordgo.IntentsMessageContent
)

// Client talks to one guild through a discordgo session.
type Client struct {
	session *discordgo.Session
	guildID string
}

var _ platform.Client = (*Client)(nil)

// New creates a session for the bot token. The gateway is not opened until Open.
func New(token string, guildID snowflake.ID) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = gatewayIntents
	s.StateEnabled = true
	return &Client{session: s, guildID: guildID.String()}, nil
}

// Open connects to the gateway.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	logger.Info("Discord gateway connected", zap.String("guild_id", c.guildID))
	return nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

// OnMessage registers fn for every message created in the configured guild or a DM.
// The returned func removes the handler.
func (c *Client) OnMessage(fn func(platform.IncomingMessage)) func() {
	return c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.GuildID != "" && m.GuildID != c.guildID {
			return
		}
		in, err := toIncoming(m.Message)
		if err != nil {
			logger.Warn("Dropping message with malformed ids", zap.Error(err), zap.String("message_id", m.ID))
			return
		}
		fn(in)
	})
}

func toIncoming(m *discordgo.Message) (platform.IncomingMessage, error) {
	id, err := parseID(m.ID)
	if err != nil {
		return platform.IncomingMessage{}, err
	}
	channelID, err := parseID(m.ChannelID)
	if err != nil {
		return platform.IncomingMessage{}, err
	}
	in := platform.IncomingMessage{
		ID:         id,
		ChannelID:  channelID,
		Content:    m.Content,
		ReceivedAt: m.Timestamp.UTC(),
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now().UTC()
	}
	if m.GuildID != "" {
		if in.GuildID, err = parseID(m.GuildID); err != nil {
			return platform.IncomingMessage{}, err
		}
	}
	if m.Author != nil {
		if in.Author, err = toUser(m.Author); err != nil {
			return platform.IncomingMessage{}, err
		}
	}
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		if in.ReferenceID, err = parseID(m.MessageReference.MessageID); err != nil {
			return platform.IncomingMessage{}, err
		}
	}
	return in, nil
}

func (c *Client) Members(ctx context.Context) ([]platform.Member, error) {
	var (
		out   []platform.Member
		after string
	)
	for {
		page, err := c.session.GuildMembers(c.guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("list members", err)
		}
		for _, m := range page {
			pm, err := toMember(m)
			if err != nil {
				logger.Warn("Skipping member with malformed id", zap.Error(err))
				continue
			}
			out = append(out, pm)
		}
		if len(page) < membersPageSize {
			break
		}
		after = page[len(page)-1].User.ID
	}
	return out, nil
}

func (c *Client) Member(ctx context.Context, userID snowflake.ID) (*platform.Member, error) {
	m, err := c.session.State.Member(c.guildID, userID.String())
	if err != nil {
		m, err = c.session.GuildMember(c.guildID, userID.String(), discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("get member "+userID.String(), err)
		}
	}
	pm, err := toMember(m)
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (c *Client) Role(ctx context.Context, roleID snowflake.ID) (*platform.Role, error) {
	if r, err := c.session.State.Role(c.guildID, roleID.String()); err == nil {
		return &platform.Role{ID: roleID, Name: r.Name}, nil
	}

	roles, err := c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("list roles", err)
	}
	for _, r := range roles {
		if r.ID == roleID.String() {
			return &platform.Role{ID: roleID, Name: r.Name}, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
}

func (c *Client) RoleHolders(ctx context.Context, roleID snowflake.ID) ([]platform.Member, error) {
	members, err := c.Members(ctx)
	if err != nil {
		return nil, err
	}
	var out []platform.Member
	for _, m := range members {
		if m.HasRole(roleID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) AddRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error {
	err := c.session.GuildMemberRoleAdd(c.guildID, userID.String(), roleID.String(),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapError("add role", err)
}

func (c *Client) RemoveRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error {
	err := c.session.GuildMemberRoleRemove(c.guildID, userID.String(), roleID.String(),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapError("remove role", err)
}

func (c *Client) SendMessage(ctx context.Context, channelID snowflake.ID, content string) (*platform.Message, error) {
	m, err := c.session.ChannelMessageSend(channelID.String(), content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("send message", err)
	}
	return toMessage(m)
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID snowflake.ID, content string) error {
	_, err := c.session.ChannelMessageEdit(channelID.String(), messageID.String(), content, discordgo.WithContext(ctx))
	return mapError("edit message", err)
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) (*platform.Message, error) {
	m, err := c.session.ChannelMessage(channelID.String(), messageID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("fetch message", err)
	}
	return toMessage(m)
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error {
	err := c.session.MessageReactionAdd(channelID.String(), messageID.String(), emoji, discordgo.WithContext(ctx))
	return mapError("add reaction", err)
}

func (c *Client) ClearReactions(ctx context.Context, channelID, messageID snowflake.ID) error {
	err := c.session.MessageReactionsRemoveAll(channelID.String(), messageID.String(), discordgo.WithContext(ctx))
	return mapError("clear reactions", err)
}

func (c *Client) Reactors(ctx context.Context, channelID, messageID snowflake.ID, emoji string) ([]platform.User, error) {
	var (
		out   []platform.User
		after string
	)
	for {
		page, err := c.session.MessageReactions(channelID.String(), messageID.String(), emoji,
			reactorsPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("list reactions", err)
		}
		for _, u := range page {
			pu, err := toUser(u)
			if err != nil {
				continue
			}
			out = append(out, pu)
		}
		if len(page) < reactorsPageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	return out, nil
}

func (c *Client) Channel(ctx context.Context, channelID snowflake.ID) (*platform.Channel, error) {
	ch, err := c.session.State.Channel(channelID.String())
	if err != nil {
		ch, err = c.session.Channel(channelID.String(), discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError("get channel", err)
		}
	}
	if ch.GuildID != "" && ch.GuildID != c.guildID {
		return nil, fmt.Errorf("channel %s belongs to another guild: %w", channelID, platform.ErrNotFound)
	}

	out := &platform.Channel{ID: channelID, Name: ch.Name}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildForum:
		out.Kind = platform.ChannelText
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		out.Kind = platform.ChannelVoice
	case discordgo.ChannelTypeGuildCategory:
		out.Kind = platform.ChannelCategory
	default:
		out.Kind = platform.ChannelOther
	}
	if ch.ParentID != "" {
		if parent, err := parseID(ch.ParentID); err == nil {
			out.ParentID = parent
		}
	}
	return out, nil
}

// HasPermission resolves guild-level permissions from the member's roles.
// Administrator and guild ownership imply every permission.
func (c *Client) HasPermission(ctx context.Context, userID snowflake.ID, perm platform.Permission) (bool, error) {
	if perm == 0 {
		return true, nil
	}

	guild, err := c.session.State.Guild(c.guildID)
	if err != nil {
		guild, err = c.session.Guild(c.guildID, discordgo.WithContext(ctx))
		if err != nil {
			return false, mapError("get guild", err)
		}
	}
	if guild.OwnerID == userID.String() {
		return true, nil
	}

	m, err := c.Member(ctx, userID)
	if err != nil {
		return false, err
	}
	roles := guild.Roles
	if len(roles) == 0 {
		if roles, err = c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx)); err != nil {
			return false, mapError("list roles", err)
		}
	}

	held := make(map[string]bool, len(m.Roles)+1)
	for _, r := range m.Roles {
		held[r.String()] = true
	}
	held[c.guildID] = true // @everyone

	var perms int64
	for _, r := range roles {
		if held[r.ID] {
			perms |= r.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	return perms&int64(perm) == int64(perm), nil
}

func toUser(u *discordgo.User) (platform.User, error) {
	id, err := parseID(u.ID)
	if err != nil {
		return platform.User{}, err
	}
	return platform.User{ID: id, Username: u.Username, Bot: u.Bot}, nil
}

func toMember(m *discordgo.Member) (platform.Member, error) {
	if m.User == nil {
		return platform.Member{}, errors.New("member without user")
	}
	u, err := toUser(m.User)
	if err != nil {
		return platform.Member{}, err
	}
	pm := platform.Member{
		User:        u,
		DisplayName: m.Nick,
		JoinedAt:    m.JoinedAt.UTC(),
	}
	if pm.DisplayName == "" {
		pm.DisplayName = m.User.GlobalName
	}
	if pm.DisplayName == "" {
		pm.DisplayName = m.User.Username
	}
	for _, r := range m.Roles {
		if id, err := parseID(r); err == nil {
			pm.Roles = append(pm.Roles, id)
		}
	}
	return pm, nil
}

func toMessage(m *discordgo.Message) (*platform.Message, error) {
	id, err := parseID(m.ID)
	if err != nil {
		return nil, err
	}
	channelID, err := parseID(m.ChannelID)
	if err != nil {
		return nil, err
	}
	out := &platform.Message{ID: id, ChannelID: channelID, Content: m.Content}
	if m.Author != nil {
		out.AuthorID, _ = parseID(m.Author.ID)
	}
	return out, nil
}

func parseID(s string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", s, err)
	}
	return id, nil
}

// mapError translates REST failures into platform sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return fmt.Errorf("%s: %w: %v", op, platform.ErrPermission, err)
			case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownMember,
				discordgo.ErrCodeUnknownRole, discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownUser:
				return fmt.Errorf("%s: %w: %v", op, platform.ErrNotFound, err)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusForbidden:
				return fmt.Errorf("%s: %w: %v", op, platform.ErrPermission, err)
			case http.StatusNotFound:
				return fmt.Errorf("%s: %w: %v", op, platform.ErrNotFound, err)
			}
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%s: %w", op, platform.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
