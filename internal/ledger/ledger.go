// Package ledger turns incoming guild messages into activity records.
package ledger

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/shared/metrics"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Recorder struct {
	env      *app.Env
	prefix   string
	ingested *prometheus.CounterVec
}

func NewRecorder(env *app.Env, commandPrefix string) *Recorder {
	return &Recorder{
		env:    env,
		prefix: commandPrefix,
		ingested: metrics.Register(env.Registry, promauto.With(nil).NewCounterVec(prometheus.CounterOpts{
			Name: "alliance_activity_messages_total",
			Help: "Incoming messages seen by the activity ledger",
		}, []string{"result"})),
	}
}

// Record appends one activity event for msg. Bot authors, commands and direct
// messages are ignored. It reports whether a row was written.
func (r *Recorder) Record(ctx context.Context, msg platform.IncomingMessage) bool {
	if msg.Author.Bot || msg.GuildID == 0 {
		r.ingested.WithLabelValues("ignored").Inc()
		return false
	}
	if r.prefix != "" && strings.HasPrefix(msg.Content, r.prefix) {
		r.ingested.WithLabelValues("ignored").Inc()
		return false
	}

	ev := types.ActivityEvent{
		UserID:     msg.Author.ID,
		ChannelID:  msg.ChannelID,
		CategoryID: r.category(ctx, msg.ChannelID),
		Timestamp:  msg.ReceivedAt,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.env.Clock()
	}

	if err := r.env.Store.RecordActivity(ctx, ev); err != nil {
		r.ingested.WithLabelValues("error").Inc()
		logger.Error("Failed to record activity", zap.Error(err), zap.Int64("user_id", int64(ev.UserID)))
		return false
	}
	r.ingested.WithLabelValues("recorded").Inc()
	return true
}

func (r *Recorder) category(ctx context.Context, channelID snowflake.ID) snowflake.ID {
	ch, err := r.env.Platform.Channel(ctx, channelID)
	if err != nil {
		logger.Debug("Channel lookup failed, recording without category",
			zap.Int64("channel_id", int64(channelID)), zap.Error(err))
		return 0
	}
	return ch.ParentID
}
