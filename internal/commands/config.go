package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

func (d *Dispatcher) runConfigLogChannel(ctx context.Context, req *Request) (string, error) {
	channel := req.Args.ID("channel")
	if err := d.setID(ctx, req, settings.KeyLogChannel, channel); err != nil {
		return "", err
	}
	return "✅ Log channel has been set to " + platform.MentionChannel(channel), nil
}

func (d *Dispatcher) runConfigAnnouncements(ctx context.Context, req *Request) (string, error) {
	channel := req.Args.ID("channel")
	if err := d.setID(ctx, req, settings.KeyAnnouncementChannel, channel); err != nil {
		return "", err
	}
	return "✅ Award announcement channel has been set to " + platform.MentionChannel(channel), nil
}

func (d *Dispatcher) setID(ctx context.Context, req *Request, key string, id snowflake.ID) error {
	if err := d.env.Settings.SetID(ctx, key, id); err != nil {
		return err
	}
	logger.Info("Setting updated",
		zap.String("key", key),
		zap.Int64("value", int64(id)),
		zap.Int64("actor_id", int64(req.Actor())))
	return nil
}

// --- config-accept ---

func (d *Dispatcher) acceptSubcommands() []*Command {
	roleArg := []ArgSpec{{Name: "role", Kind: ArgRole}}
	return []*Command{
		{Name: "add", Args: roleArg, Run: func(ctx context.Context, req *Request) (string, error) {
			return d.addAcceptRole(ctx, req, settings.KeyAcceptAddRoles, "added", "add")
		}},
		{Name: "remove", Args: roleArg, Run: func(ctx context.Context, req *Request) (string, error) {
			return d.addAcceptRole(ctx, req, settings.KeyAcceptRemoveRoles, "removed", "remove")
		}},
	}
}

func (d *Dispatcher) addAcceptRole(ctx context.Context, req *Request, key, verb, list string) (string, error) {
	role := req.Args.ID("role")
	added, err := d.env.Settings.AddToIDList(ctx, key, role)
	if err != nil {
		return "", err
	}
	if !added {
		return fmt.Sprintf("⚠️ %s is already in the '%s' list.", platform.MentionRole(role), list), nil
	}
	return fmt.Sprintf("✅ %s will now be **%s** on `%saccept`.", platform.MentionRole(role), verb, d.prefix), nil
}

func (d *Dispatcher) runConfigAcceptList(ctx context.Context, req *Request) (string, error) {
	add, err := d.env.Settings.IDList(ctx, settings.KeyAcceptAddRoles)
	if err != nil {
		return "", err
	}
	remove, err := d.env.Settings.IDList(ctx, settings.KeyAcceptRemoveRoles)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**`%saccept` Command Configuration**\n**Roles to Add:** %s\n**Roles to Remove:** %s",
		d.prefix, d.roleList(ctx, add), d.roleList(ctx, remove)), nil
}

func (d *Dispatcher) roleList(ctx context.Context, ids []snowflake.ID) string {
	if len(ids) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, d.roleLabel(ctx, id))
	}
	return strings.Join(parts, ", ")
}

// roleLabel mentions the role, or marks it as deleted when it no longer exists.
func (d *Dispatcher) roleLabel(ctx context.Context, id snowflake.ID) string {
	if _, err := d.env.Platform.Role(ctx, id); errors.Is(err, platform.ErrNotFound) {
		return fmt.Sprintf("Deleted Role (ID: %s)", id)
	}
	return platform.MentionRole(id)
}

// --- config-tenure / config-participation ---

func (d *Dispatcher) tenureSubcommands() []*Command {
	return []*Command{
		{
			Name: "set",
			Args: []ArgSpec{{Name: "days", Kind: ArgInt}, {Name: "role", Kind: ArgRole}},
			Run: func(ctx context.Context, req *Request) (string, error) {
				return d.setMilestone(ctx, req, types.DimensionTenure, "days", "✅ Tenure role for **%d days** set to %s.")
			},
		},
		{
			Name: "remove",
			Args: []ArgSpec{{Name: "days", Kind: ArgInt}},
			Run: func(ctx context.Context, req *Request) (string, error) {
				return d.removeMilestone(ctx, req, types.DimensionTenure, "days", "days")
			},
		},
		{
			Name: "set-qualifier",
			Args: []ArgSpec{{Name: "role", Kind: ArgRole}},
			Run: func(ctx context.Context, req *Request) (string, error) {
				role := req.Args.ID("role")
				if err := d.setID(ctx, req, settings.KeyTenureQualifier, role); err != nil {
					return "", err
				}
				return fmt.Sprintf("✅ Done. Tenure checks will now only apply to members with the %s role.", platform.MentionRole(role)), nil
			},
		},
		{
			Name: "clear-qualifier",
			Run: func(ctx context.Context, req *Request) (string, error) {
				if err := d.env.Settings.ClearSetting(ctx, settings.KeyTenureQualifier); err != nil {
					return "", err
				}
				return "✅ Done. The tenure qualifying role has been cleared. All members in the database are now eligible.", nil
			},
		},
	}
}

func (d *Dispatcher) participationSubcommands() []*Command {
	return []*Command{
		{
			Name: "set",
			Args: []ArgSpec{{Name: "count", Kind: ArgInt}, {Name: "role", Kind: ArgRole}},
			Run: func(ctx context.Context, req *Request) (string, error) {
				return d.setMilestone(ctx, req, types.DimensionParticipation, "count", "✅ Participation role for **%d events** set to %s.")
			},
		},
		{
			Name: "remove",
			Args: []ArgSpec{{Name: "count", Kind: ArgInt}},
			Run: func(ctx context.Context, req *Request) (string, error) {
				return d.removeMilestone(ctx, req, types.DimensionParticipation, "count", "events")
			},
		},
	}
}

func (d *Dispatcher) setMilestone(ctx context.Context, req *Request, dim types.Dimension, arg, format string) (string, error) {
	rule := types.MilestoneRule{Threshold: req.Args.Int(arg), RoleID: req.Args.ID("role")}
	if err := d.env.Store.SetMilestoneRule(ctx, dim, rule); err != nil {
		if errors.Is(err, types.ErrInvalidThreshold) {
			return "❌ The threshold must be a positive number.", nil
		}
		return "", err
	}
	return fmt.Sprintf(format, rule.Threshold, platform.MentionRole(rule.RoleID)), nil
}

func (d *Dispatcher) removeMilestone(ctx context.Context, req *Request, dim types.Dimension, arg, unit string) (string, error) {
	threshold := req.Args.Int(arg)
	removed, err := d.env.Store.DeleteMilestoneRule(ctx, dim, threshold)
	if err != nil {
		return "", err
	}
	if !removed {
		return fmt.Sprintf("⚠️ No %s role is configured for **%d %s**.", dim, threshold, unit), nil
	}
	return fmt.Sprintf("✅ Removed the %s role for **%d %s**.", dim, threshold, unit), nil
}

func (d *Dispatcher) runConfigTenureList(ctx context.Context, req *Request) (string, error) {
	body, err := d.milestoneList(ctx, types.DimensionTenure, "Days",
		"No tenure roles configured.\nUse `"+d.prefix+"config-tenure set <days> <@role>` to add one.")
	if err != nil {
		return "", err
	}

	qualifier := "None (all tracked members are eligible)"
	if id, ok, err := d.env.Settings.ID(ctx, settings.KeyTenureQualifier); err != nil {
		return "", err
	} else if ok {
		qualifier = d.roleLabel(ctx, id)
	}
	return "**Tenure Milestone Roles**\n" + body + "\n**Qualifying Role:** " + qualifier, nil
}

func (d *Dispatcher) runConfigParticipationList(ctx context.Context, req *Request) (string, error) {
	body, err := d.milestoneList(ctx, types.DimensionParticipation, "Events",
		"No participation roles configured.\nUse `"+d.prefix+"config-participation set <count> <@role>` to add one.")
	if err != nil {
		return "", err
	}
	return "**Participation Milestone Roles**\n" + body, nil
}

// milestoneList renders rules lowest threshold first.
func (d *Dispatcher) milestoneList(ctx context.Context, dim types.Dimension, unit, empty string) (string, error) {
	rules, err := d.env.Store.ListMilestoneRules(ctx, dim)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return empty, nil
	}
	lines := make([]string, 0, len(rules))
	for i := len(rules) - 1; i >= 0; i-- {
		lines = append(lines, fmt.Sprintf("**%d %s**: %s", rules[i].Threshold, unit, d.roleLabel(ctx, rules[i].RoleID)))
	}
	return strings.Join(lines, "\n"), nil
}

// --- config-award ---

func (d *Dispatcher) awardSubcommands() []*Command {
	return []*Command{
		{
			Name: "create",
			Args: []ArgSpec{
				{Name: "name", Kind: ArgWord},
				{Name: "server|channel|category", Kind: ArgWord},
				{Name: "monthly|quarterly", Kind: ArgWord},
				{Name: "role", Kind: ArgRole},
				{Name: "target", Kind: ArgChannel, Optional: true},
			},
			Run: d.runAwardCreate,
		},
		{
			Name: "delete",
			Args: []ArgSpec{{Name: "name", Kind: ArgWord}},
			Run:  d.runAwardDelete,
		},
	}
}

func (d *Dispatcher) runAwardCreate(ctx context.Context, req *Request) (string, error) {
	scope, err := types.ParseScope(req.Args.String("server|channel|category"))
	if err != nil {
		return "❌ Invalid award type. Must be `server`, `channel`, or `category`.", nil
	}
	freq, err := types.ParseFrequency(req.Args.String("monthly|quarterly"))
	if err != nil {
		return "❌ Invalid frequency. Must be `monthly` or `quarterly`.", nil
	}

	award := types.AwardDefinition{
		Name:      req.Args.String("name"),
		Scope:     scope,
		Frequency: freq,
		RoleID:    req.Args.ID("role"),
	}
	if scope != types.ScopeServer {
		award.TargetID = req.Args.ID("target")
	}

	if err := d.env.Store.UpsertAward(ctx, award); err != nil {
		if errors.Is(err, types.ErrMissingTarget) {
			return fmt.Sprintf("❌ The `%s` type requires a target channel or category.", scope), nil
		}
		return "", err
	}
	logger.Info("Award configured",
		zap.String("award", award.Name),
		zap.String("scope", string(award.Scope)),
		zap.String("frequency", string(award.Frequency)),
		zap.Int64("actor_id", int64(req.Actor())))
	return fmt.Sprintf("✅ Award `%s` created successfully!", award.Name), nil
}

func (d *Dispatcher) runAwardDelete(ctx context.Context, req *Request) (string, error) {
	name := req.Args.String("name")
	deleted, err := d.env.Store.DeleteAward(ctx, name)
	if err != nil {
		return "", err
	}
	if !deleted {
		return fmt.Sprintf("⚠️ No award named `%s` was found.", name), nil
	}
	return fmt.Sprintf("✅ Award `%s` has been deleted.", name), nil
}

func (d *Dispatcher) runConfigAwardList(ctx context.Context, req *Request) (string, error) {
	list, err := d.env.Store.ListAwards(ctx)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "**Cyclical Award Configurations**\nNo awards configured.\nUse `" + d.prefix +
			"config-award create <name> <type> <frequency> <@role> [#target]` to add one.", nil
	}

	lines := []string{"**Cyclical Award Configurations**"}
	for _, a := range list {
		where := "Server"
		if a.Scope != types.ScopeServer {
			where = fmt.Sprintf("%s in %s", capitalize(string(a.Scope)), d.targetLabel(ctx, a.TargetID))
		}
		lines = append(lines, fmt.Sprintf("`%s` (%s): **Type:** %s **Role:** %s",
			a.Name, capitalize(string(a.Frequency)), where, d.roleLabel(ctx, a.RoleID)))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) targetLabel(ctx context.Context, id snowflake.ID) string {
	ch, err := d.env.Platform.Channel(ctx, id)
	if err != nil {
		return fmt.Sprintf("Unknown (ID: %s)", id)
	}
	if ch.Kind == platform.ChannelCategory {
		return "**" + ch.Name + "**"
	}
	return platform.MentionChannel(id)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
