// Package membership covers onboarding and the tracked-member roster.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/roles"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

// DateLayout is the accepted join-date format.
const DateLayout = "2006-01-02"

var (
	ErrNoMembers   = errors.New("at least one member is required")
	ErrInvalidDate = errors.New("invalid date format, use YYYY-MM-DD")
)

type Service struct {
	env        *app.Env
	reconciler *roles.Reconciler
}

func NewService(env *app.Env, reconciler *roles.Reconciler) *Service {
	return &Service{env: env, reconciler: reconciler}
}

// AcceptFailure describes a member that could not be accepted.
type AcceptFailure struct {
	MemberID snowflake.ID
	Reason   string
}

type AcceptResult struct {
	Accepted []snowflake.ID
	Failed   []AcceptFailure
}

// Accept applies the configured onboarding roles and records now as the join date.
// Counters of members already tracked are preserved.
func (s *Service) Accept(ctx context.Context, actor snowflake.ID, memberIDs []snowflake.ID) (*AcceptResult, error) {
	if len(memberIDs) == 0 {
		return nil, ErrNoMembers
	}

	add, err := s.existingRoles(ctx, settings.KeyAcceptAddRoles)
	if err != nil {
		return nil, err
	}
	remove, err := s.existingRoles(ctx, settings.KeyAcceptRemoveRoles)
	if err != nil {
		return nil, err
	}

	reason := "Accepted by " + actor.String()
	if m, err := s.env.Platform.Member(ctx, actor); err == nil {
		reason = "Accepted by " + m.Username
	}

	result := &AcceptResult{}
	now := s.env.Clock()
	for _, id := range memberIDs {
		m, err := s.env.Platform.Member(ctx, id)
		if err != nil {
			result.Failed = append(result.Failed, AcceptFailure{MemberID: id, Reason: "Not in server"})
			continue
		}

		if failure := s.applyRoles(ctx, m, add, remove, reason); failure != "" {
			result.Failed = append(result.Failed, AcceptFailure{MemberID: id, Reason: failure})
			continue
		}

		if err := s.env.Store.UpsertJoinDate(ctx, id, now); err != nil {
			result.Failed = append(result.Failed, AcceptFailure{MemberID: id, Reason: "Error: " + err.Error()})
			continue
		}
		result.Accepted = append(result.Accepted, id)
	}

	if len(result.Accepted) > 0 {
		s.env.Sink().Log(ctx, fmt.Sprintf("**Accept**: %s accepted %s.", platform.MentionUser(actor), mentions(result.Accepted)))
	}
	logger.Info("Accept complete",
		zap.Int64("actor_id", int64(actor)),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Service) applyRoles(ctx context.Context, m *platform.Member, add, remove []snowflake.ID, reason string) string {
	for _, roleID := range add {
		if m.HasRole(roleID) {
			continue
		}
		if out := s.reconciler.Grant(ctx, m.ID, roleID, reason); !out.OK {
			return failureReason(out)
		}
	}
	for _, roleID := range remove {
		if !m.HasRole(roleID) {
			continue
		}
		if out := s.reconciler.Revoke(ctx, m.ID, roleID, reason); !out.OK {
			return failureReason(out)
		}
	}
	return ""
}

func failureReason(out roles.Outcome) string {
	if out.Denied() {
		return "Missing Permissions"
	}
	return "Error: " + out.Err.Error()
}

// existingRoles loads a role list setting, dropping roles the guild no longer has.
func (s *Service) existingRoles(ctx context.Context, key string) ([]snowflake.ID, error) {
	ids, err := s.env.Settings.IDList(ctx, key)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if _, err := s.env.Platform.Role(ctx, id); err != nil {
			logger.Debug("Ignoring configured role missing from the server", zap.String("key", key), zap.Int64("role_id", int64(id)))
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// SyncMembers backfills a record for every human guild member not yet tracked,
// using the platform join date. Existing records are never overwritten.
func (s *Service) SyncMembers(ctx context.Context, actor snowflake.ID) (int64, error) {
	roster, err := s.env.Platform.Members(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list guild members: %w", err)
	}
	tracked, err := s.env.Store.MemberIDs(ctx)
	if err != nil {
		return 0, err
	}

	var fresh []types.Member
	for _, m := range roster {
		if m.Bot {
			continue
		}
		if _, ok := tracked[m.ID]; ok {
			continue
		}
		joined := m.JoinedAt
		if joined.IsZero() {
			joined = s.env.Clock()
		}
		fresh = append(fresh, types.Member{UserID: m.ID, JoinDate: joined})
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	added, err := s.env.Store.InsertMembersIfAbsent(ctx, fresh)
	if err != nil {
		return 0, err
	}
	who := "Scheduled sync"
	if actor != 0 {
		who = platform.MentionUser(actor) + " ran a sync"
	}
	s.env.Sink().Log(ctx, fmt.Sprintf("**Member Sync**: %s, adding %d members.", who, added))
	return added, nil
}

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// SetJoinDate corrects a member's join date, creating the record if needed.
func (s *Service) SetJoinDate(ctx context.Context, actor, memberID snowflake.ID, date string) (time.Time, error) {
	joined, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.env.Store.UpsertJoinDate(ctx, memberID, joined); err != nil {
		return time.Time{}, err
	}
	s.env.Sink().Log(ctx, fmt.Sprintf("**Date Set**: %s manually set %s's join date to %s.",
		platform.MentionUser(actor), platform.MentionUser(memberID), joined.Format(DateLayout)))
	return joined, nil
}

// Profile is a member's tracked statistics.
type Profile struct {
	MemberID   snowflake.ID
	Tracked    bool
	JoinDate   time.Time
	TenureDays int
	Attended   int
	Hosted     int
}

func (s *Service) Profile(ctx context.Context, memberID snowflake.ID) (*Profile, error) {
	rec, err := s.env.Store.GetMember(ctx, memberID)
	if errors.Is(err, localdb.ErrNotFound) {
		return &Profile{MemberID: memberID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Profile{
		MemberID:   memberID,
		Tracked:    true,
		JoinDate:   rec.JoinDate,
		TenureDays: rec.TenureDays(s.env.Clock()),
		Attended:   rec.ParticipationCount,
		Hosted:     rec.HostCount,
	}, nil
}

func mentions(ids []snowflake.ID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, platform.MentionUser(id))
	}
	return strings.Join(parts, ", ")
}
