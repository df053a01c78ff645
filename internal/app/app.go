// Package app bundles the dependencies shared by the bot's components.
package app

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/notification"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/prometheus/client_golang/prometheus"
)

// Env is passed to every component constructor instead of package globals.
type Env struct {
	Store    *localdb.Store
	Platform platform.Client
	Settings *settings.SettingsManager
	Notifier notification.Sink
	Bus      broadcast.Publisher
	// Registry may be nil; metrics are then created unregistered.
	Registry prometheus.Registerer
	GuildID  snowflake.ID
	// AuditRoleChanges posts a log line for every successful role mutation.
	AuditRoleChanges bool
	Now              func() time.Time
}

// Clock returns the current instant in UTC.
func (e *Env) Clock() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// Publisher returns the configured bus or a no-op publisher.
func (e *Env) Publisher() broadcast.Publisher {
	if e.Bus == nil {
		return &broadcast.NoopPublisher{}
	}
	return e.Bus
}

// Sink returns the configured notifier or one that writes to the process log.
func (e *Env) Sink() notification.Sink {
	if e.Notifier == nil {
		return notification.Stdout{}
	}
	return e.Notifier
}
