// Package notification delivers bot output to the configured log and announcement channels.
package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"go.uber.org/zap"
)

// MaxMessageLength is the platform's per-message character limit.
const MaxMessageLength = 2000

const timestampLayout = "2006-01-02 15:04:05"

// Sink receives audit lines and public announcements.
// Delivery failures are logged by the implementation and never returned to the caller.
type Sink interface {
	Log(ctx context.Context, msg string)
	Announce(ctx context.Context, msg string)
}

// ChannelResolver looks up a configured channel id.
type ChannelResolver interface {
	ID(ctx context.Context, key string) (snowflake.ID, bool, error)
}

var _ ChannelResolver = (*settings.SettingsManager)(nil)

// Channels posts to the channels stored in settings. The ids are resolved on every call
// so config commands take effect immediately.
type Channels struct {
	client   platform.Client
	settings ChannelResolver
	now      func() time.Time
}

func NewChannels(client platform.Client, resolver ChannelResolver, now func() time.Time) *Channels {
	if now == nil {
		now = time.Now
	}
	return &Channels{client: client, settings: resolver, now: now}
}

// Log posts msg to the log channel prefixed with a UTC timestamp.
func (c *Channels) Log(ctx context.Context, msg string) {
	stamped := "[`" + c.now().UTC().Format(timestampLayout) + "`] " + msg
	c.send(ctx, settings.KeyLogChannel, stamped)
}

func (c *Channels) Announce(ctx context.Context, msg string) {
	c.send(ctx, settings.KeyAnnouncementChannel, msg)
}

func (c *Channels) send(ctx context.Context, key, msg string) {
	channelID, ok, err := c.settings.ID(ctx, key)
	if err != nil {
		logger.Warn("Failed to resolve notification channel", zap.String("key", key), zap.Error(err))
		return
	}
	if !ok {
		logger.Debug("Notification channel not configured, skipping", zap.String("key", key))
		return
	}

	for _, chunk := range Split(msg, MaxMessageLength) {
		if _, err := c.client.SendMessage(ctx, channelID, chunk); err != nil {
			if errors.Is(err, platform.ErrPermission) {
				logger.Warn("No permission to post notification",
					zap.String("key", key), zap.Int64("channel_id", int64(channelID)))
			} else {
				logger.Warn("Failed to post notification",
					zap.String("key", key), zap.Int64("channel_id", int64(channelID)), zap.Error(err))
			}
			return
		}
	}
}

// Split breaks msg into chunks of at most limit runes, cutting at line boundaries when possible.
func Split(msg string, limit int) []string {
	if limit <= 0 || len([]rune(msg)) <= limit {
		return []string{msg}
	}

	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(msg, "\n") {
		runes := []rune(line)
		if n+len(runes) > limit {
			flush()
		}
		// 1行が上限を超える場合は強制的に分割
		for len(runes) > limit {
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		cur.WriteString(string(runes))
		n += len(runes)
	}
	flush()
	return out
}

// Memory records every message in memory. Used by tests and the CLI dry runs.
type Memory struct {
	mu        sync.Mutex
	logs      []string
	announces []string
}

func (m *Memory) Log(ctx context.Context, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, msg)
}

func (m *Memory) Announce(ctx context.Context, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announces = append(m.announces, msg)
}

func (m *Memory) Logs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.logs...)
}

func (m *Memory) Announcements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.announces...)
}

// Stdout writes every message through the logger. Used when no chat platform is connected.
type Stdout struct{}

func (Stdout) Log(ctx context.Context, msg string) {
	logger.Info("audit", zap.String("message", msg))
}

func (Stdout) Announce(ctx context.Context, msg string) {
	logger.Info("announcement", zap.String("message", msg))
}
