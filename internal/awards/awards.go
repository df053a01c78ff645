// Package awards runs the rolling-window activity award cycles and the matching
// activity retention reset.
package awards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/roles"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// Status is the result of processing one award definition.
type Status string

const (
	StatusAwarded      Status = "awarded"
	StatusRoleMissing  Status = "role_missing"
	StatusWinnerLeft   Status = "winner_left"
	StatusAssignFailed Status = "assign_failed"
	StatusNoWinner     Status = "no_winner"
	StatusLookupFailed Status = "lookup_failed"
)

// AwardResult is the per-award entry of a Report.
type AwardResult struct {
	Award         types.AwardDefinition
	Status        Status
	WinnerID      snowflake.ID
	MessageCount  int
	Cleared       int
	ClearFailures []snowflake.ID
}

// Report is the consolidated output of one award cycle.
type Report struct {
	RunID   string
	Tier    types.Tier
	RanAt   time.Time
	Header  string
	Lines   []string
	Results []AwardResult
}

func (r *Report) String() string {
	if r.Header == "" {
		return strings.Join(r.Lines, "\n")
	}
	return strings.Join(append([]string{r.Header}, r.Lines...), "\n")
}

// Awarded counts the awards that ended with a new holder.
func (r *Report) Awarded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusAwarded {
			n++
		}
	}
	return n
}

type Engine struct {
	env        *app.Env
	reconciler *roles.Reconciler
	metrics    *engineMetrics
}

func NewEngine(env *app.Env, reconciler *roles.Reconciler) *Engine {
	return &Engine{env: env, reconciler: reconciler, metrics: newMetrics(env.Registry)}
}

// Run clears and reassigns every award of the tier's frequency. Re-running with
// unchanged activity converges to the same holders.
func (e *Engine) Run(ctx context.Context, tier types.Tier) (*Report, error) {
	tier, err := types.ParseTier(string(tier))
	if err != nil {
		return nil, err
	}
	freq := tier.Frequency()

	awards, err := e.env.Store.ListAwardsByFrequency(ctx, freq)
	if err != nil {
		return nil, err
	}

	now := e.env.Clock()
	report := &Report{
		RunID: newRunID(),
		Tier:  tier,
		RanAt: now,
	}
	if len(awards) == 0 {
		report.Lines = []string{fmt.Sprintf("No %s awards found in the configuration.", freq)}
		return report, nil
	}
	report.Header = fmt.Sprintf("**🏆 Award Cycle Report: %s (%s) 🏆**", tier.Title(), now.Format("2006-01-02"))

	logger.Info("Running award cycle",
		zap.String("run_id", report.RunID),
		zap.String("tier", string(tier)),
		zap.Int("awards", len(awards)))

	window := localdb.ActivityQuery{Since: now.Add(-tier.Window()), Until: now}
	for _, award := range awards {
		res, lines := e.runAward(ctx, award, window)
		report.Results = append(report.Results, res)
		report.Lines = append(report.Lines, lines...)
		e.metrics.outcomes.WithLabelValues(string(tier), string(res.Status)).Inc()
	}

	e.metrics.cycles.WithLabelValues(string(tier)).Inc()
	e.metrics.lastCycleTS.WithLabelValues(string(tier)).Set(float64(now.Unix()))

	text := report.String()
	sink := e.env.Sink()
	sink.Log(ctx, text)
	sink.Announce(ctx, text)

	if err := e.env.Publisher().Publish(ctx, broadcast.TopicAwardCycleCompleted, broadcast.AwardCycleCompleted{
		RunID:   report.RunID,
		Tier:    string(tier),
		RanAt:   now,
		Awarded: report.Awarded(),
		Lines:   report.Lines,
	}); err != nil {
		logger.Warn("Failed to publish award cycle event", zap.String("run_id", report.RunID), zap.Error(err))
	}

	logger.Info("Award cycle complete",
		zap.String("run_id", report.RunID),
		zap.String("tier", string(tier)),
		zap.Int("awarded", report.Awarded()))
	return report, nil
}

func (e *Engine) runAward(ctx context.Context, award types.AwardDefinition, window localdb.ActivityQuery) (AwardResult, []string) {
	res := AwardResult{Award: award}
	var lines []string

	role, err := e.env.Platform.Role(ctx, award.RoleID)
	if err != nil {
		if !errors.Is(err, platform.ErrNotFound) {
			logger.Warn("Failed to resolve award role", zap.String("award", award.Name), zap.Error(err))
		}
		res.Status = StatusRoleMissing
		return res, []string{fmt.Sprintf("⚠️ **%s**: Skipped. Role with ID `%s` not found.", award.Name, award.RoleID)}
	}

	// 1. 前回の受賞者からロールを外す
	// 現保持者が分からないまま付与すると保持者が二人になる
	holders, err := e.env.Platform.RoleHolders(ctx, role.ID)
	if err != nil {
		logger.Warn("Failed to list award role holders", zap.String("award", award.Name), zap.Error(err))
		res.Status = StatusLookupFailed
		return res, []string{fmt.Sprintf("⚠️ **%s**: Could not list current holders of %s; skipped.",
			award.Name, platform.MentionRole(role.ID))}
	}
	for _, h := range holders {
		out := e.reconciler.Revoke(ctx, h.ID, role.ID, "Award cycle reset.")
		if out.OK {
			res.Cleared++
			continue
		}
		res.ClearFailures = append(res.ClearFailures, h.ID)
		if out.Denied() {
			lines = append(lines, fmt.Sprintf("⚠️ **%s**: Could not remove role from %s (Permissions error).",
				award.Name, platform.MentionUser(h.ID)))
		}
	}

	// 2. 期間内の最多発言者を求める
	q := window
	q.Scope = award.Scope
	q.TargetID = award.TargetID
	top, found, err := e.env.Store.TopActivity(ctx, q)
	if err != nil {
		logger.Error("Failed to compute award winner", zap.String("award", award.Name), zap.Error(err))
		res.Status = StatusLookupFailed
		return res, append(lines, fmt.Sprintf("❌ **%s**: Could not compute a winner (database error).", award.Name))
	}
	if !found {
		res.Status = StatusNoWinner
		return res, append(lines, fmt.Sprintf("ℹ️ **%s**: No eligible winner found for this period.", award.Name))
	}
	res.WinnerID = top.UserID
	res.MessageCount = top.Count

	// 3. 付与
	if _, err := e.env.Platform.Member(ctx, top.UserID); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			res.Status = StatusWinnerLeft
			return res, append(lines, fmt.Sprintf("⚠️ **%s**: Found winner (ID: %s) but they are no longer in the server.",
				award.Name, top.UserID))
		}
		logger.Warn("Failed to look up award winner",
			zap.String("award", award.Name), zap.Int64("user_id", int64(top.UserID)), zap.Error(err))
		res.Status = StatusLookupFailed
		return res, append(lines, fmt.Sprintf("❌ **%s**: Found winner %s but could not look them up.",
			award.Name, platform.MentionUser(top.UserID)))
	}
	out := e.reconciler.Grant(ctx, top.UserID, role.ID, fmt.Sprintf("Winner of %s award.", award.Name))
	switch {
	case out.OK:
		res.Status = StatusAwarded
		lines = append(lines, fmt.Sprintf("✅ **%s**: Awarded %s to %s.",
			award.Name, platform.MentionRole(role.ID), platform.MentionUser(top.UserID)))
	case out.Gone():
		res.Status = StatusWinnerLeft
		lines = append(lines, fmt.Sprintf("⚠️ **%s**: Found winner (ID: %s) but they are no longer in the server.",
			award.Name, top.UserID))
	default:
		res.Status = StatusAssignFailed
		lines = append(lines, fmt.Sprintf("❌ **%s**: Found winner %s but failed to assign role (Permissions error).",
			award.Name, platform.MentionUser(top.UserID)))
	}
	return res, lines
}

// Purge deletes activity strictly older than the tier's window and returns the
// number of rows removed. Rows exactly at the cutoff are kept.
func (e *Engine) Purge(ctx context.Context, tier types.Tier) (int64, error) {
	tier, err := types.ParseTier(string(tier))
	if err != nil {
		return 0, err
	}
	cutoff := e.env.Clock().Add(-tier.Window())

	deleted, err := e.env.Store.PurgeActivityBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	e.metrics.purgedRows.WithLabelValues(string(tier)).Add(float64(deleted))

	logger.Info("Activity data reset",
		zap.String("tier", string(tier)),
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))

	e.env.Sink().Log(ctx, fmt.Sprintf("**Data Reset**: Ran data reset for tier `%s`. Deleted %d old log entries.", tier, deleted))

	if err := e.env.Publisher().Publish(ctx, broadcast.TopicActivityPurged, broadcast.ActivityPurged{
		Tier:    string(tier),
		Cutoff:  cutoff,
		Deleted: deleted,
	}); err != nil {
		logger.Warn("Failed to publish purge event", zap.Error(err))
	}
	return deleted, nil
}

func newRunID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id
}
