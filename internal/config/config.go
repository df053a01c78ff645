// Package config loads the bot configuration: defaults, then an optional TOML
// file, then a .env file, then ALLIANCE_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

type ctxKey string

const configContextKey ctxKey = "alliance.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// EnvPrefix is the prefix of every environment override (ALLIANCE_TOKEN, ...).
const EnvPrefix = "alliance"

var (
	ErrMissingToken   = errors.New("discord token is required (ALLIANCE_TOKEN)")
	ErrMissingGuildID = errors.New("guild id is required (ALLIANCE_GUILD_ID)")
)

type Config struct {
	Token   string `toml:"token" envconfig:"TOKEN"`
	GuildID int64  `toml:"guild_id" envconfig:"GUILD_ID"`
	DBPath  string `toml:"db_path" envconfig:"DB_PATH"`
	Prefix  string `toml:"prefix" envconfig:"PREFIX"`

	// 定期ジョブ
	TenureInterval time.Duration `toml:"tenure_interval" envconfig:"TENURE_INTERVAL"`
	PurgeInterval  time.Duration `toml:"purge_interval" envconfig:"PURGE_INTERVAL"`
	AutoPurgeTier  string        `toml:"auto_purge_tier" envconfig:"AUTO_PURGE_TIER"` // 空なら自動パージしない

	HTTPAddr         string `toml:"http_addr" envconfig:"HTTP_ADDR"` // 空なら ops サーバーを起動しない
	NATSURL          string `toml:"nats_url" envconfig:"NATS_URL"`
	Debug            bool   `toml:"debug" envconfig:"DEBUG"`
	AuditRoleChanges bool   `toml:"audit_role_changes" envconfig:"AUDIT_ROLE_CHANGES"`
}

func Default() Config {
	return Config{
		DBPath:           "alliance.db",
		Prefix:           "!",
		TenureInterval:   24 * time.Hour,
		PurgeInterval:    24 * time.Hour,
		HTTPAddr:         ":8080",
		AuditRoleChanges: true,
	}
}

// Load builds the configuration. configFile and envFile are optional; an
// explicitly named config file must exist, a missing .env file is ignored.
func Load(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := toml.DecodeFile(configFile, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every subcommand depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path must not be empty")
	}
	if strings.TrimSpace(c.Prefix) == "" || strings.ContainsAny(c.Prefix, " \t\n") {
		return fmt.Errorf("invalid command prefix %q", c.Prefix)
	}
	if c.TenureInterval <= 0 {
		return fmt.Errorf("tenure_interval must be positive, got %s", c.TenureInterval)
	}
	if c.AutoPurgeTier != "" {
		if _, err := types.ParseTier(c.AutoPurgeTier); err != nil {
			return fmt.Errorf("auto_purge_tier: %w", err)
		}
		if c.PurgeInterval <= 0 {
			return fmt.Errorf("purge_interval must be positive, got %s", c.PurgeInterval)
		}
	}
	if c.GuildID < 0 {
		return fmt.Errorf("invalid guild id %d", c.GuildID)
	}
	return nil
}

// RequireDiscord checks the settings needed to connect to the gateway.
func (c *Config) RequireDiscord() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if c.GuildID == 0 {
		return ErrMissingGuildID
	}
	return nil
}

// Fields returns the configuration as log fields, without the token.
func (c *Config) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("guild_id", c.GuildID),
		zap.String("db_path", c.DBPath),
		zap.String("prefix", c.Prefix),
		zap.Duration("tenure_interval", c.TenureInterval),
		zap.String("auto_purge_tier", c.AutoPurgeTier),
		zap.String("http_addr", c.HTTPAddr),
		zap.Bool("nats", c.NATSURL != ""),
		zap.Bool("debug", c.Debug),
		zap.Bool("token_set", c.Token != ""),
	}
}
