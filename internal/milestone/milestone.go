// Package milestone grants threshold roles for tenure and event participation.
package milestone

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/roles"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

// Select returns the rule with the highest threshold that value reaches.
func Select(rules []types.MilestoneRule, value int) (types.MilestoneRule, bool) {
	sorted := append([]types.MilestoneRule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold > sorted[j].Threshold })
	for _, r := range sorted {
		if value >= r.Threshold {
			return r, true
		}
	}
	return types.MilestoneRule{}, false
}

// Summary is the per-pass result of a milestone check.
type Summary struct {
	Checked int
	Granted int
	Failed  int
	Skipped int
	Lines   []string
}

type Evaluator struct {
	env        *app.Env
	reconciler *roles.Reconciler
}

func NewEvaluator(env *app.Env, reconciler *roles.Reconciler) *Evaluator {
	return &Evaluator{env: env, reconciler: reconciler}
}

// CheckTenure grants each eligible member the highest tenure role they have reached.
// Roles are never revoked.
func (e *Evaluator) CheckTenure(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	gate, gated, err := e.env.Settings.ID(ctx, settings.KeyTenureQualifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenure qualifier: %w", err)
	}
	if gated {
		if _, err := e.env.Platform.Role(ctx, gate); err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				logger.Warn("Tenure qualifying role is set but not found; no tenure roles will be awarded",
					zap.Int64("role_id", int64(gate)))
				return summary, nil
			}
			return nil, fmt.Errorf("failed to resolve tenure qualifier: %w", err)
		}
	}

	rules, err := e.env.Store.ListMilestoneRules(ctx, types.DimensionTenure)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		logger.Debug("No tenure rules configured")
		return summary, nil
	}

	tracked, err := e.env.Store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	roster, err := e.roster(ctx)
	if err != nil {
		return nil, err
	}

	now := e.env.Clock()
	for _, rec := range tracked {
		m, ok := roster[rec.UserID]
		if !ok || m.Bot {
			continue
		}
		if gated && !m.HasRole(gate) {
			summary.Skipped++
			continue
		}
		summary.Checked++

		rule, ok := Select(rules, rec.TenureDays(now))
		if !ok {
			continue
		}
		e.grant(ctx, summary, m, rule, types.DimensionTenure)
	}

	logger.Info("Tenure check complete",
		zap.Int("checked", summary.Checked),
		zap.Int("granted", summary.Granted),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// CheckParticipation evaluates the participation rules for the given members using
// their stored participation counts.
func (e *Evaluator) CheckParticipation(ctx context.Context, memberIDs []snowflake.ID) (*Summary, error) {
	summary := &Summary{}

	rules, err := e.env.Store.ListMilestoneRules(ctx, types.DimensionParticipation)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 || len(memberIDs) == 0 {
		return summary, nil
	}

	for _, id := range memberIDs {
		rec, err := e.env.Store.GetMember(ctx, id)
		if errors.Is(err, localdb.ErrNotFound) {
			summary.Skipped++
			continue
		}
		if err != nil {
			return summary, err
		}

		m, err := e.env.Platform.Member(ctx, id)
		if err != nil {
			logger.Debug("Participant no longer resolvable", zap.Int64("user_id", int64(id)), zap.Error(err))
			summary.Skipped++
			continue
		}
		summary.Checked++

		rule, ok := Select(rules, rec.ParticipationCount)
		if !ok {
			continue
		}
		e.grant(ctx, summary, *m, rule, types.DimensionParticipation)
	}
	return summary, nil
}

// roster indexes the guild's current members by id.
func (e *Evaluator) roster(ctx context.Context) (map[snowflake.ID]platform.Member, error) {
	members, err := e.env.Platform.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild members: %w", err)
	}
	out := make(map[snowflake.ID]platform.Member, len(members))
	for _, m := range members {
		out[m.ID] = m
	}
	return out, nil
}

func (e *Evaluator) grant(ctx context.Context, summary *Summary, m platform.Member, rule types.MilestoneRule, dim types.Dimension) {
	role, err := e.env.Platform.Role(ctx, rule.RoleID)
	if err != nil {
		logger.Warn("Milestone role not found", zap.String("dimension", string(dim)),
			zap.Int("threshold", rule.Threshold), zap.Int64("role_id", int64(rule.RoleID)))
		return
	}
	if m.HasRole(role.ID) {
		return
	}

	unit, label := "days", "Tenure"
	if dim == types.DimensionParticipation {
		unit, label = "events", "Participation"
	}
	reason := fmt.Sprintf("%s: %d %s", label, rule.Threshold, unit)

	out := e.reconciler.Grant(ctx, m.ID, role.ID, reason)
	var line string
	if out.OK {
		summary.Granted++
		line = fmt.Sprintf("**%s Award**: Gave %s to %s for reaching %d %s.",
			label, platform.MentionRole(role.ID), platform.MentionUser(m.ID), rule.Threshold, unit)
		err := e.env.Publisher().Publish(ctx, broadcast.TopicMilestoneGranted, broadcast.MilestoneGranted{
			Dimension: string(dim),
			MemberID:  m.ID.String(),
			RoleID:    role.ID.String(),
			Threshold: rule.Threshold,
		})
		if err != nil {
			logger.Warn("Failed to publish milestone event", zap.String("dimension", string(dim)), zap.Error(err))
		}
	} else {
		summary.Failed++
		cause := "Permissions"
		if !out.Denied() {
			cause = "Error"
		}
		line = fmt.Sprintf("**ERROR**: Failed to give %s role %s to %s (%s).",
			string(dim), platform.MentionRole(role.ID), platform.MentionUser(m.ID), cause)
	}
	summary.Lines = append(summary.Lines, line)
	e.env.Sink().Log(ctx, line)
}
