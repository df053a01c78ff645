// Package apptest builds an app.Env backed by a temporary sqlite store and an in-memory guild.
package apptest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/notification"
	"github.com/ichi0g0y/alliance-bot/internal/platform/fakeplatform"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
)

// Now is the fixed clock used by every Harness.
var Now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type Harness struct {
	Env   *app.Env
	Guild *fakeplatform.Guild
	Sink  *notification.Memory
	Bus   *broadcast.Recorder
}

func New(t *testing.T) *Harness {
	t.Helper()

	store, err := localdb.Open(filepath.Join(t.TempDir(), "alliance.db"))
	if err != nil {
		t.Fatalf("localdb.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &Harness{
		Guild: fakeplatform.New(),
		Sink:  &notification.Memory{},
		Bus:   &broadcast.Recorder{},
	}
	h.Env = &app.Env{
		Store:    store,
		Platform: h.Guild,
		Settings: settings.NewSettingsManager(store),
		Notifier: h.Sink,
		Bus:      h.Bus,
		GuildID:  1,
		Now:      func() time.Time { return Now },
	}
	return h
}

// DaysAgo returns Now minus n days.
func DaysAgo(n int) time.Time {
	return Now.Add(-time.Duration(n) * 24 * time.Hour)
}
