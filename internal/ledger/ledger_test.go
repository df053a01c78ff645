package ledger

import (
	"context"
	"testing"

	"github.com/ichi0g0y/alliance-bot/internal/app/apptest"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/types"
)

func TestRecordFilters(t *testing.T) {
	h := apptest.New(t)
	h.Guild.PutChannel(platform.Channel{ID: 20, ParentID: 77})
	rec := NewRecorder(h.Env, "!")
	ctx := context.Background()

	base := platform.IncomingMessage{
		ChannelID:  20,
		GuildID:    1,
		Author:     platform.User{ID: 5},
		Content:    "hello",
		ReceivedAt: apptest.DaysAgo(1),
	}

	tests := []struct {
		name   string
		mutate func(*platform.IncomingMessage)
		want   bool
	}{
		{name: "plain message", mutate: func(*platform.IncomingMessage) {}, want: true},
		{name: "bot author", mutate: func(m *platform.IncomingMessage) { m.Author.Bot = true }, want: false},
		{name: "command", mutate: func(m *platform.IncomingMessage) { m.Content = "!profile" }, want: false},
		{name: "direct message", mutate: func(m *platform.IncomingMessage) { m.GuildID = 0 }, want: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			msg := base
			tc.mutate(&msg)
			if got := rec.Record(ctx, msg); got != tc.want {
				t.Fatalf("Record() got=%v want=%v", got, tc.want)
			}
		})
	}

	counts, err := h.Env.Store.RankActivity(ctx, localdb.ActivityQuery{
		Since:    apptest.DaysAgo(30),
		Until:    apptest.Now,
		Scope:    types.ScopeCategory,
		TargetID: 77,
	}, 10)
	if err != nil {
		t.Fatalf("RankActivity failed: %v", err)
	}
	if len(counts) != 1 || counts[0].UserID != 5 || counts[0].Count != 1 {
		t.Fatalf("category counts got=%+v want one row for user 5", counts)
	}
}

func TestRecordUnknownChannelHasNoCategory(t *testing.T) {
	h := apptest.New(t)
	rec := NewRecorder(h.Env, "!")
	ctx := context.Background()

	ok := rec.Record(ctx, platform.IncomingMessage{ChannelID: 99, GuildID: 1, Author: platform.User{ID: 5}, Content: "hi"})
	if !ok {
		t.Fatalf("message in unknown channel should still be recorded")
	}
	n, err := h.Env.Store.CountActivity(ctx, 5, apptest.DaysAgo(1))
	if err != nil || n != 1 {
		t.Fatalf("CountActivity got=%d/%v want=1", n, err)
	}
}
