// Package fakeplatform is an in-memory platform.Client used by tests and dry runs.
package fakeplatform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
)

type RoleChange struct {
	Op     string // "add" | "remove"
	UserID snowflake.ID
	RoleID snowflake.ID
	Reason string
}

type message struct {
	platform.Message
	reactions map[string][]platform.User
}

// Guild holds one community's state.
type Guild struct {
	mu sync.Mutex

	node     *snowflake.Node
	members  map[snowflake.ID]*platform.Member
	roles    map[snowflake.ID]platform.Role
	channels map[snowflake.ID]platform.Channel
	messages map[snowflake.ID]*message
	perms    map[snowflake.ID]platform.Permission
	ownerID  snowflake.ID

	deniedRoles map[snowflake.ID]bool
	deniedSends map[snowflake.ID]bool

	sent    []platform.Message
	changes []RoleChange
}

var _ platform.Client = (*Guild)(nil)

func New() *Guild {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(fmt.Sprintf("fakeplatform: snowflake node: %v", err))
	}
	return &Guild{
		node:        node,
		members:     make(map[snowflake.ID]*platform.Member),
		roles:       make(map[snowflake.ID]platform.Role),
		channels:    make(map[snowflake.ID]platform.Channel),
		messages:    make(map[snowflake.ID]*message),
		perms:       make(map[snowflake.ID]platform.Permission),
		deniedRoles: make(map[snowflake.ID]bool),
		deniedSends: make(map[snowflake.ID]bool),
	}
}

// --- セットアップ用ヘルパー ---

func (g *Guild) PutMember(m platform.Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := m
	cp.Roles = append([]snowflake.ID(nil), m.Roles...)
	g.members[m.ID] = &cp
}

func (g *Guild) RemoveMember(id snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
}

func (g *Guild) PutRole(r platform.Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles[r.ID] = r
}

func (g *Guild) DeleteRole(id snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.roles, id)
}

func (g *Guild) PutChannel(c platform.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID] = c
}

// PutMessage stores a message authored by authorID and returns its id.
func (g *Guild) PutMessage(channelID, authorID snowflake.ID, content string) snowflake.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.node.Generate()
	g.messages[id] = &message{
		Message:   platform.Message{ID: id, ChannelID: channelID, AuthorID: authorID, Content: content},
		reactions: make(map[string][]platform.User),
	}
	return id
}

func (g *Guild) DeleteMessage(id snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.messages, id)
}

// React adds a user's reaction to a stored message.
func (g *Guild) React(messageID snowflake.ID, emoji string, u platform.User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg, ok := g.messages[messageID]; ok {
		msg.reactions[emoji] = append(msg.reactions[emoji], u)
	}
}

func (g *Guild) Grant(userID snowflake.ID, perm platform.Permission) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.perms[userID] |= perm
}

func (g *Guild) SetOwner(userID snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ownerID = userID
}

// DenyRole makes every add/remove of roleID fail with ErrPermission.
func (g *Guild) DenyRole(roleID snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deniedRoles[roleID] = true
}

// DenySend makes every send to channelID fail with ErrPermission.
func (g *Guild) DenySend(channelID snowflake.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deniedSends[channelID] = true
}

// --- 検証用ヘルパー ---

func (g *Guild) SentTo(channelID snowflake.ID) []platform.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []platform.Message
	for _, m := range g.sent {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

func (g *Guild) RoleChanges() []RoleChange {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RoleChange(nil), g.changes...)
}

func (g *Guild) Reactions(messageID snowflake.ID) map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int)
	if msg, ok := g.messages[messageID]; ok {
		for emoji, users := range msg.reactions {
			out[emoji] = len(users)
		}
	}
	return out
}

func (g *Guild) MessageContent(messageID snowflake.ID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok {
		return "", false
	}
	return msg.Content, true
}

// --- platform.Client ---

func (g *Guild) Members(ctx context.Context) ([]platform.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]platform.Member, 0, len(g.members))
	for _, m := range g.members {
		cp := *m
		cp.Roles = append([]snowflake.ID(nil), m.Roles...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Guild) Member(ctx context.Context, userID snowflake.ID) (*platform.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	cp := *m
	cp.Roles = append([]snowflake.ID(nil), m.Roles...)
	return &cp, nil
}

func (g *Guild) Role(ctx context.Context, roleID snowflake.ID) (*platform.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
	}
	return &r, nil
}

func (g *Guild) RoleHolders(ctx context.Context, roleID snowflake.ID) ([]platform.Member, error) {
	members, err := g.Members(ctx)
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

func (g *Guild) AddRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkRoleLocked(userID, roleID); err != nil {
		return err
	}
	m := g.members[userID]
	if !m.HasRole(roleID) {
		m.Roles = append(m.Roles, roleID)
	}
	g.changes = append(g.changes, RoleChange{Op: "add", UserID: userID, RoleID: roleID, Reason: reason})
	return nil
}

func (g *Guild) RemoveRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkRoleLocked(userID, roleID); err != nil {
		return err
	}
	m := g.members[userID]
	kept := m.Roles[:0]
	for _, r := range m.Roles {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.Roles = kept
	g.changes = append(g.changes, RoleChange{Op: "remove", UserID: userID, RoleID: roleID, Reason: reason})
	return nil
}

func (g *Guild) checkRoleLocked(userID, roleID snowflake.ID) error {
	if _, ok := g.members[userID]; !ok {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	if _, ok := g.roles[roleID]; !ok {
		return fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
	}
	if g.deniedRoles[roleID] {
		return fmt.Errorf("role %s: %w", roleID, platform.ErrPermission)
	}
	return nil
}

func (g *Guild) SendMessage(ctx context.Context, channelID snowflake.ID, content string) (*platform.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[channelID]; !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	if g.deniedSends[channelID] {
		return nil, fmt.Errorf("send to %s: %w", channelID, platform.ErrPermission)
	}
	msg := &message{
		Message:   platform.Message{ID: g.node.Generate(), ChannelID: channelID, Content: content},
		reactions: make(map[string][]platform.User),
	}
	g.messages[msg.ID] = msg
	g.sent = append(g.sent, msg.Message)
	out := msg.Message
	return &out, nil
}

func (g *Guild) EditMessage(ctx context.Context, channelID, messageID snowflake.ID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	msg.Content = content
	return nil
}

func (g *Guild) FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) (*platform.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return nil, fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	out := msg.Message
	return &out, nil
}

func (g *Guild) AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	if g.deniedSends[channelID] {
		return fmt.Errorf("react in %s: %w", channelID, platform.ErrPermission)
	}
	// ボット自身のリアクション
	msg.reactions[emoji] = append(msg.reactions[emoji], platform.User{ID: 0, Username: "bot", Bot: true})
	return nil
}

func (g *Guild) ClearReactions(ctx context.Context, channelID, messageID snowflake.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	msg.reactions = make(map[string][]platform.User)
	return nil
}

func (g *Guild) Reactors(ctx context.Context, channelID, messageID snowflake.ID, emoji string) ([]platform.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return nil, fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	return append([]platform.User(nil), msg.reactions[emoji]...), nil
}

func (g *Guild) Channel(ctx context.Context, channelID snowflake.ID) (*platform.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	return &c, nil
}

func (g *Guild) HasPermission(ctx context.Context, userID snowflake.ID, perm platform.Permission) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if perm == 0 || userID == g.ownerID && g.ownerID != 0 {
		return true, nil
	}
	have := g.perms[userID]
	if have&platform.PermAdministrator != 0 {
		return true, nil
	}
	return have&perm == perm, nil
}
