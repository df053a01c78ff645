package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/config"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/notification"
	"github.com/ichi0g0y/alliance-bot/internal/platform/discord"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// runtime holds the resources shared by every subcommand.
type runtime struct {
	cfg     *config.Config
	store   *localdb.Store
	discord *discord.Client
	bus     broadcast.Multi
	env     *app.Env
}

type runtimeOptions struct {
	requireDiscord bool
	registry       prometheus.Registerer
}

func openRuntime(cfg *config.Config, opts runtimeOptions) (*runtime, error) {
	if opts.requireDiscord {
		if err := cfg.RequireDiscord(); err != nil {
			return nil, err
		}
	}

	store, err := localdb.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rt := &runtime{cfg: cfg, store: store}

	var bus broadcast.Multi
	if cfg.NATSURL != "" {
		nats, err := broadcast.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		bus = append(bus, nats)
	}
	rt.bus = bus

	sm := settings.NewSettingsManager(store)
	rt.env = &app.Env{
		Store:            store,
		Settings:         sm,
		Bus:              bus,
		Registry:         opts.registry,
		GuildID:          snowflake.ID(cfg.GuildID),
		AuditRoleChanges: cfg.AuditRoleChanges,
	}

	if cfg.Token != "" {
		client, err := discord.New(cfg.Token, snowflake.ID(cfg.GuildID))
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.discord = client
		rt.env.Platform = client
		rt.env.Notifier = notification.NewChannels(client, sm, nil)
	}

	logger.Info("Runtime ready", cfg.Fields()...)
	return rt, nil
}

// addPublisher fans bus events out to p as well.
func (rt *runtime) addPublisher(p broadcast.Publisher) {
	rt.bus = append(rt.bus, p)
	rt.env.Bus = rt.bus
}

// Close releases the bus and the database. The discord session is closed by its owner.
func (rt *runtime) Close() {
	if len(rt.bus) > 0 {
		if err := rt.bus.Close(); err != nil {
			logger.Warn("Failed to close event bus", zap.Error(err))
		}
	}
	if err := rt.store.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
}
