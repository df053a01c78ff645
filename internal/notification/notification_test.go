package notification

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/platform/fakeplatform"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
)

var fixedNow = time.Date(2024, 6, 1, 9, 5, 7, 0, time.UTC)

func setupChannels(t *testing.T) (*Channels, *fakeplatform.Guild, *settings.SettingsManager) {
	t.Helper()
	store, err := localdb.Open(filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatalf("localdb.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	guild := fakeplatform.New()
	sm := settings.NewSettingsManager(store)
	return NewChannels(guild, sm, func() time.Time { return fixedNow }), guild, sm
}

func TestLogPrefixesTimestamp(t *testing.T) {
	ch, guild, sm := setupChannels(t)
	ctx := context.Background()
	guild.PutChannel(platform.Channel{ID: 100, Name: "bot-log"})
	if err := sm.SetID(ctx, settings.KeyLogChannel, 100); err != nil {
		t.Fatalf("SetID failed: %v", err)
	}

	ch.Log(ctx, "hello")

	sent := guild.SentTo(100)
	if len(sent) != 1 {
		t.Fatalf("sent got=%d want=1", len(sent))
	}
	want := "[`2024-06-01 09:05:07`] hello"
	if sent[0].Content != want {
		t.Fatalf("content got=%q want=%q", sent[0].Content, want)
	}
}

func TestUnconfiguredChannelIsSkipped(t *testing.T) {
	ch, guild, _ := setupChannels(t)
	guild.PutChannel(platform.Channel{ID: 100})

	ch.Announce(context.Background(), "nobody hears this")

	if got := len(guild.SentTo(100)); got != 0 {
		t.Fatalf("sent got=%d want=0", got)
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	ch, guild, sm := setupChannels(t)
	ctx := context.Background()
	guild.PutChannel(platform.Channel{ID: 200})
	guild.DenySend(200)
	if err := sm.SetID(ctx, settings.KeyAnnouncementChannel, 200); err != nil {
		t.Fatalf("SetID failed: %v", err)
	}

	// パニックもエラーも起こらないこと
	ch.Announce(ctx, "denied")
	if got := len(guild.SentTo(200)); got != 0 {
		t.Fatalf("sent got=%d want=0", got)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		limit int
		want  []string
	}{
		{name: "short", msg: "abc", limit: 10, want: []string{"abc"}},
		{name: "line boundary", msg: "aaaa\nbbbb\ncccc", limit: 10, want: []string{"aaaa\nbbbb", "cccc"}},
		{name: "long line", msg: strings.Repeat("x", 12), limit: 5, want: []string{"xxxxx", "xxxxx", "xx"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Split(tc.msg, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("chunks got=%q want=%q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("chunk %d got=%q want=%q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
