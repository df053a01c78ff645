package main

import (
	"fmt"

	"github.com/ichi0g0y/alliance-bot/internal/bot"
	"github.com/ichi0g0y/alliance-bot/internal/config"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// One-shot maintenance commands. They talk to Discord over REST only and never
// open a gateway session.

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			rt, err := openRuntime(cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			rt.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.DBPath)
			return nil
		},
	}
}

func awardCycleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "award-cycle",
		Short: "Run or reset an award cycle outside the scheduler",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run <gamma|beta>",
		Short: "Evaluate every award of the tier and post the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := types.ParseTier(args[0])
			if err != nil {
				return err
			}
			return withBot(cmd, true, func(b *bot.Bot) error {
				report, err := b.Services.Awards.Run(cmd.Context(), tier)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.String())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <gamma|beta>",
		Short: "Delete activity older than the tier window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := types.ParseTier(args[0])
			if err != nil {
				return err
			}
			return withBot(cmd, false, func(b *bot.Bot) error {
				n, err := b.Services.Awards.Purge(cmd.Context(), tier)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d activity rows older than %d days\n", n, tier.Days())
				return nil
			})
		},
	})
	return cmd
}

func checkTenureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-tenure",
		Short: "Grant tenure milestone roles once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBot(cmd, true, func(b *bot.Bot) error {
				summary, err := b.Services.Milestones.CheckTenure(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d members, granted %d roles, %d failed\n",
					summary.Checked, summary.Granted, summary.Failed)
				return nil
			})
		},
	}
}

func syncMembersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-members",
		Short: "Backfill membership records from the guild roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBot(cmd, true, func(b *bot.Bot) error {
				added, err := b.Services.Membership.SyncMembers(cmd.Context(), 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d members\n", added)
				return nil
			})
		},
	}
}

// withBot opens the runtime, builds the components and runs fn against them.
// Without a token (and when Discord is optional) notifications go to the process log.
func withBot(cmd *cobra.Command, requireDiscord bool, fn func(b *bot.Bot) error) error {
	cfg := config.FromContext(cmd.Context())
	rt, err := openRuntime(cfg, runtimeOptions{requireDiscord: requireDiscord})
	if err != nil {
		return err
	}
	defer rt.Close()

	b := bot.New(rt.env, bot.Options{Prefix: cfg.Prefix})
	if err := fn(b); err != nil {
		logger.Error("Task failed", zap.String("command", cmd.CommandPath()), zap.Error(err))
		return err
	}
	return nil
}
