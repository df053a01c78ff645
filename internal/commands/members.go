package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/membership"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/stats"
)

func (d *Dispatcher) runAccept(ctx context.Context, req *Request) (string, error) {
	ids := req.Args.IDs("members")
	if len(ids) == 0 {
		return "Please mention at least one member to accept.", nil
	}

	result, err := d.svc.Membership.Accept(ctx, req.Actor(), ids)
	if err != nil {
		return "", err
	}

	var lines []string
	if len(result.Accepted) > 0 {
		lines = append(lines, fmt.Sprintf("✅ Successfully accepted: %s. Welcome to the alliance!", mentionList(result.Accepted)))
	}
	if len(result.Failed) > 0 {
		failed := make([]string, 0, len(result.Failed))
		for _, f := range result.Failed {
			failed = append(failed, fmt.Sprintf("%s (%s)", platform.MentionUser(f.MemberID), f.Reason))
		}
		lines = append(lines, "❌ Failed to accept: "+strings.Join(failed, ", "))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) runSyncMembers(ctx context.Context, req *Request) (string, error) {
	req.Progress(ctx, "⚙️ Starting member synchronization... This may take a moment for large servers.")
	added, err := d.svc.Membership.SyncMembers(ctx, req.Actor())
	if err != nil {
		return "", err
	}
	if added == 0 {
		return "✅ Synchronization complete. No new members needed to be added to the database.", nil
	}
	return fmt.Sprintf("✅ Synchronization complete! Added **%d** new members to the database.", added), nil
}

func (d *Dispatcher) runSetJoinDate(ctx context.Context, req *Request) (string, error) {
	member := req.Args.ID("member")
	date := req.Args.Date("YYYY-MM-DD").Format(membership.DateLayout)
	joined, err := d.svc.Membership.SetJoinDate(ctx, req.Actor(), member, date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Successfully set %s's join date to **%s**.",
		platform.MentionUser(member), joined.Format(membership.DateLayout)), nil
}

func (d *Dispatcher) runCheckTenure(ctx context.Context, req *Request) (string, error) {
	req.Progress(ctx, "⚙️ Manually starting the tenure check... This may take a moment.")
	summary, err := d.svc.Milestones.CheckTenure(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Manual tenure check complete. Awarded %d roles. See the log channel for details.", summary.Granted), nil
}

func (d *Dispatcher) runProfile(ctx context.Context, req *Request) (string, error) {
	target := req.Actor()
	if req.Args.Has("member") {
		target = req.Args.ID("member")
	}

	profile, err := d.svc.Membership.Profile(ctx, target)
	if err != nil {
		return "", err
	}

	name := platform.MentionUser(target)
	if m, err := d.env.Platform.Member(ctx, target); err == nil && m.DisplayName != "" {
		name = m.DisplayName
	}

	header := fmt.Sprintf("**Alliance Profile: %s**\n", name)
	if !profile.Tracked {
		return header + "This member is not officially tracked in the alliance database (have they been `" +
			d.prefix + "accept`'ed or `" + d.prefix + "sync-members`'d?).", nil
	}
	return header + fmt.Sprintf("Alliance Tenure: **%d** days\nJoined On: <t:%d:D>\nEvents Attended: **%d**\nEvents Hosted: **%d**",
		profile.TenureDays, profile.JoinDate.Unix(), profile.Attended, profile.Hosted), nil
}

func (d *Dispatcher) runLeaderboard(ctx context.Context, req *Request) (string, error) {
	stat, err := stats.ParseStat(req.Args.String("activity|participation|hosting"))
	if err != nil {
		return "Invalid statistic. Please use `activity`, `participation`, or `hosting`.", nil
	}
	board, err := d.svc.Stats.Leaderboard(ctx, stat)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**%s**\n%s", board.Title, board.String()), nil
}

func mentionList(ids []snowflake.ID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, platform.MentionUser(id))
	}
	return strings.Join(parts, ", ")
}
