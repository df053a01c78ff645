package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app/apptest"
	"github.com/ichi0g0y/alliance-bot/internal/types"
)

func TestParseStat(t *testing.T) {
	tests := []struct {
		in      string
		want    Stat
		wantErr bool
	}{
		{in: "", want: StatActivity},
		{in: "Activity", want: StatActivity},
		{in: "PARTICIPATION", want: StatParticipation},
		{in: "hosting", want: StatHosting},
		{in: "karma", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseStat(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseStat(%q) got=%q/%v want=%q/err=%v", tc.in, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestActivityLeaderboard(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	record := func(user snowflake.ID, days, n int) {
		for i := 0; i < n; i++ {
			if err := h.Env.Store.RecordActivity(ctx, types.ActivityEvent{UserID: user, ChannelID: 20, Timestamp: apptest.DaysAgo(days)}); err != nil {
				t.Fatalf("RecordActivity failed: %v", err)
			}
		}
	}
	record(1, 1, 2)
	record(2, 3, 5)
	record(3, 31, 9) // 30日より前

	board, err := NewService(h.Env).Leaderboard(ctx, StatActivity)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	want := "1. <@2> - 5 messages\n2. <@1> - 2 messages"
	if got := board.String(); got != want {
		t.Fatalf("board got=%q want=%q", got, want)
	}
}

func TestCounterLeaderboards(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	svc := NewService(h.Env)

	for _, stat := range []Stat{StatParticipation, StatHosting, StatActivity} {
		board, err := svc.Leaderboard(ctx, stat)
		if err != nil {
			t.Fatalf("Leaderboard(%s) failed: %v", stat, err)
		}
		if len(board.Entries) != 0 {
			t.Fatalf("empty store should yield an empty board")
		}
	}

	if err := h.Env.Store.UpsertJoinDate(ctx, 5, apptest.Now); err != nil {
		t.Fatalf("UpsertJoinDate failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := h.Env.Store.IncrementParticipation(ctx, 1, apptest.Now); err != nil {
			t.Fatalf("IncrementParticipation failed: %v", err)
		}
	}
	if err := h.Env.Store.IncrementHostCount(ctx, 2, apptest.Now); err != nil {
		t.Fatalf("IncrementHostCount failed: %v", err)
	}

	board, err := svc.Leaderboard(ctx, StatParticipation)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if got := board.String(); got != "1. <@1> - 3 events" {
		t.Fatalf("participation board got=%q", got)
	}
	board, err = svc.Leaderboard(ctx, StatHosting)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if got := board.String(); got != "1. <@2> - 1 events" {
		t.Fatalf("hosting board got=%q", got)
	}

	if _, err := svc.Leaderboard(ctx, "karma"); !errors.Is(err, ErrUnknownStat) {
		t.Fatalf("unknown stat error got=%v", err)
	}
}

func TestEmptyBoardText(t *testing.T) {
	tests := map[Stat]string{
		StatActivity:      "No activity recorded yet.",
		StatParticipation: "No one has participated in events yet.",
		StatHosting:       "No one has hosted an event yet.",
	}
	for stat, want := range tests {
		if got := (&Leaderboard{Stat: stat}).String(); got != want {
			t.Fatalf("%s empty text got=%q want=%q", stat, got, want)
		}
	}
}
