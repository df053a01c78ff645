package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ichi0g0y/alliance-bot/internal/bot"
	"github.com/ichi0g0y/alliance-bot/internal/config"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/scheduler"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"github.com/ichi0g0y/alliance-bot/internal/version"
	"github.com/ichi0g0y/alliance-bot/internal/webserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.FromContext(cmd.Context()))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("Starting alliance bot", zap.String("version", version.String()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := openRuntime(cfg, runtimeOptions{requireDiscord: true, registry: registry})
	if err != nil {
		return err
	}
	defer rt.Close()

	// イベントは NATS に加えて /ws/events にも流す
	var ops *webserver.Server
	if cfg.HTTPAddr != "" {
		ops = webserver.New(webserver.Options{
			Addr:     cfg.HTTPAddr,
			DB:       rt.store.DB(),
			Gatherer: registry,
			Events:   rt.store,
			Settings: rt.env.Settings,
		})
		rt.addPublisher(ops.EventPublisher())
	}

	var tier types.Tier
	if cfg.AutoPurgeTier != "" {
		// Validate has already checked it
		tier, _ = types.ParseTier(cfg.AutoPurgeTier)
	}
	b := bot.New(rt.env, bot.Options{
		Prefix:         cfg.Prefix,
		TenureInterval: cfg.TenureInterval,
		AutoPurgeTier:  tier,
		PurgeInterval:  cfg.PurgeInterval,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	removeHandler := rt.discord.OnMessage(func(msg platform.IncomingMessage) {
		b.HandleMessage(runCtx, msg)
	})
	if err := rt.discord.Open(); err != nil {
		removeHandler()
		if ops != nil {
			ops.Shutdown(context.Background())
		}
		return err
	}

	sched := scheduler.New(b.Jobs()...)
	sched.Start(runCtx)

	if ops != nil {
		if err := ops.Start(); err != nil {
			logger.Error("Failed to start ops server", zap.Error(err))
		}
	}

	logger.Info("Alliance bot is running", zap.String("prefix", cfg.Prefix))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	signal.Stop(sigChan)

	logger.Info("Shutting down...")
	cancel()
	sched.Stop()
	removeHandler()
	if err := rt.discord.Close(); err != nil {
		logger.Warn("Failed to close Discord session", zap.Error(err))
	}
	if ops != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		ops.Shutdown(shutdownCtx)
	}
	logger.Info("Shutdown complete")
	return nil
}
