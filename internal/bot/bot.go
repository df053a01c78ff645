// Package bot assembles the alliance components around one app.Env.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/awards"
	"github.com/ichi0g0y/alliance-bot/internal/commands"
	"github.com/ichi0g0y/alliance-bot/internal/eventtracker"
	"github.com/ichi0g0y/alliance-bot/internal/ledger"
	"github.com/ichi0g0y/alliance-bot/internal/membership"
	"github.com/ichi0g0y/alliance-bot/internal/milestone"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/roles"
	"github.com/ichi0g0y/alliance-bot/internal/scheduler"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/stats"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

type Options struct {
	Prefix         string
	TenureInterval time.Duration
	// AutoPurgeTier enables a periodic purge for that tier; empty disables it.
	AutoPurgeTier types.Tier
	PurgeInterval time.Duration
}

type Bot struct {
	Services   commands.Services
	Dispatcher *commands.Dispatcher
	Ledger     *ledger.Recorder

	opts Options
}

func New(env *app.Env, opts Options) *Bot {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	rec := roles.NewReconciler(env)
	evaluator := milestone.NewEvaluator(env, rec)
	svc := commands.Services{
		Awards:     awards.NewEngine(env, rec),
		Milestones: evaluator,
		Events:     eventtracker.NewTracker(env, evaluator),
		Membership: membership.NewService(env, rec),
		Stats:      stats.NewService(env),
	}
	return &Bot{
		Services:   svc,
		Dispatcher: commands.NewDispatcher(env, opts.Prefix, svc),
		Ledger:     ledger.NewRecorder(env, opts.Prefix),
		opts:       opts,
	}
}

// HandleMessage records chat activity and runs commands.
func (b *Bot) HandleMessage(ctx context.Context, msg platform.IncomingMessage) {
	b.Ledger.Record(ctx, msg)
	b.Dispatcher.Handle(ctx, msg)
}

// Jobs returns the periodic maintenance jobs for a scheduler.
func (b *Bot) Jobs() []scheduler.Job {
	jobs := []scheduler.Job{{
		Name:       "tenure-check",
		Interval:   b.opts.TenureInterval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			summary, err := b.Services.Milestones.CheckTenure(ctx)
			if err != nil {
				return fmt.Errorf("tenure check: %w", err)
			}
			logger.Info("Scheduled tenure check complete",
				zap.Int("checked", summary.Checked),
				zap.Int("granted", summary.Granted),
				zap.Int("failed", summary.Failed))
			return nil
		},
	}}

	if b.opts.AutoPurgeTier != "" {
		tier := b.opts.AutoPurgeTier
		jobs = append(jobs, scheduler.Job{
			Name:     "activity-purge-" + string(tier),
			Interval: b.opts.PurgeInterval,
			Run: func(ctx context.Context) error {
				_, err := b.Services.Awards.Purge(ctx, tier)
				return err
			},
		})
	}
	return jobs
}
