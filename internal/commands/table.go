package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/ichi0g0y/alliance-bot/internal/platform"
)

func (d *Dispatcher) table() []*Command {
	return []*Command{
		{
			Name:       "accept",
			Brief:      "Accept new members: apply the onboarding roles and record their join date.",
			Permission: platform.PermManageRoles,
			Args:       []ArgSpec{{Name: "members", Kind: ArgMembers, Optional: true}},
			Run:        d.runAccept,
		},
		{
			Name:       "sync-members",
			Brief:      "Add every current non-bot member that is not tracked yet.",
			Permission: platform.PermAdministrator,
			Run:        d.runSyncMembers,
		},
		{
			Name:       "set-joindate",
			Brief:      "Correct a member's join date.",
			Permission: platform.PermAdministrator,
			Args: []ArgSpec{
				{Name: "member", Kind: ArgMember},
				{Name: "YYYY-MM-DD", Kind: ArgDate},
			},
			Run: d.runSetJoinDate,
		},
		{
			Name:       "check-tenure",
			Brief:      "Run the tenure milestone check now.",
			Permission: platform.PermAdministrator,
			Run:        d.runCheckTenure,
		},
		{
			Name:  "profile",
			Brief: "Show a member's tenure and event statistics.",
			Args:  []ArgSpec{{Name: "member", Kind: ArgMember, Optional: true}},
			Run:   d.runProfile,
		},
		{
			Name:    "leaderboard",
			Aliases: []string{"lb"},
			Brief:   "Show the top 10 by activity, participation or hosting.",
			Args:    []ArgSpec{{Name: "activity|participation|hosting", Kind: ArgWord, Optional: true}},
			Run:     d.runLeaderboard,
		},
		{
			Name:       "event-create",
			Brief:      "Post a signup message for a new event.",
			Permission: platform.PermManageEvents,
			Args:       []ArgSpec{{Name: "title", Kind: ArgText}},
			Run:        d.runEventCreate,
		},
		{
			Name:       "event-close",
			Brief:      "Close an event. Use it as a reply to the event message.",
			Permission: platform.PermManageEvents,
			Run:        d.runEventClose,
		},
		link(&Command{
			Name:       "award-cycle",
			Brief:      "Run an award cycle or purge old activity for a tier.",
			Permission: platform.PermAdministrator,
			Run: func(context.Context, *Request) (string, error) {
				return fmt.Sprintf("Invalid subcommand. Use `run` or `reset`. Example: `%saward-cycle run gamma`", d.prefix), nil
			},
			Subcommands: []*Command{
				{Name: "run", Args: []ArgSpec{{Name: "gamma|beta", Kind: ArgWord}}, Run: d.runAwardCycle},
				{Name: "reset", Args: []ArgSpec{{Name: "gamma|beta", Kind: ArgWord}}, Run: d.runAwardReset},
			},
		}),
		{
			Name:       "config-logchannel",
			Brief:      "Set the private log channel.",
			Permission: platform.PermAdministrator,
			Args:       []ArgSpec{{Name: "channel", Kind: ArgChannel}},
			Run:        d.runConfigLogChannel,
		},
		{
			Name:       "config-announcements",
			Brief:      "Set the public award announcement channel.",
			Permission: platform.PermAdministrator,
			Args:       []ArgSpec{{Name: "channel", Kind: ArgChannel}},
			Run:        d.runConfigAnnouncements,
		},
		link(&Command{
			Name:        "config-accept",
			Brief:       "Configure the roles added and removed by accept.",
			Permission:  platform.PermAdministrator,
			Run:         d.runConfigAcceptList,
			Subcommands: d.acceptSubcommands(),
		}),
		link(&Command{
			Name:        "config-tenure",
			Brief:       "Configure tenure milestone roles and the qualifying role.",
			Permission:  platform.PermAdministrator,
			Run:         d.runConfigTenureList,
			Subcommands: d.tenureSubcommands(),
		}),
		link(&Command{
			Name:        "config-participation",
			Brief:       "Configure participation milestone roles.",
			Permission:  platform.PermAdministrator,
			Run:         d.runConfigParticipationList,
			Subcommands: d.participationSubcommands(),
		}),
		link(&Command{
			Name:        "config-award",
			Brief:       "Create, delete and list cyclical awards.",
			Permission:  platform.PermAdministrator,
			Run:         d.runConfigAwardList,
			Subcommands: d.awardSubcommands(),
		}),
		{
			Name:  "help",
			Brief: "List commands, or show one command's usage.",
			Args:  []ArgSpec{{Name: "command", Kind: ArgWord, Optional: true}},
			Run:   d.runHelp,
		},
	}
}

func (d *Dispatcher) runHelp(ctx context.Context, req *Request) (string, error) {
	if !req.Args.Has("command") {
		var b strings.Builder
		b.WriteString("**Alliance Bot Commands**\n")
		for _, c := range d.commands {
			fmt.Fprintf(&b, "`%s` - %s\n", d.usage(c), c.Brief)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}

	name := strings.TrimPrefix(req.Args.String("command"), d.prefix)
	c, ok := d.Lookup(name)
	if !ok {
		return fmt.Sprintf("❓ No command named `%s`.", name), nil
	}
	lines := []string{fmt.Sprintf("`%s` - %s", d.usage(c), c.Brief)}
	for _, sub := range c.Subcommands {
		lines = append(lines, fmt.Sprintf("`%s`", d.usage(sub)))
	}
	return strings.Join(lines, "\n"), nil
}
