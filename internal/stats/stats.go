// Package stats builds the community leaderboards.
package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/localdb"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/types"
)

const (
	LeaderboardSize = 10
	ActivityWindow  = 30 * 24 * time.Hour
)

var ErrUnknownStat = errors.New("invalid statistic, use activity, participation, or hosting")

type Stat string

const (
	StatActivity      Stat = "activity"
	StatParticipation Stat = "participation"
	StatHosting       Stat = "hosting"
)

func ParseStat(s string) (Stat, error) {
	switch Stat(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatActivity:
		return StatActivity, nil
	case StatParticipation:
		return StatParticipation, nil
	case StatHosting:
		return StatHosting, nil
	}
	return "", ErrUnknownStat
}

type Entry struct {
	MemberID snowflake.ID
	Value    int
}

type Leaderboard struct {
	Stat    Stat
	Title   string
	Entries []Entry
}

// String renders the ranked lines, or the empty-board notice.
func (l *Leaderboard) String() string {
	if len(l.Entries) == 0 {
		switch l.Stat {
		case StatParticipation:
			return "No one has participated in events yet."
		case StatHosting:
			return "No one has hosted an event yet."
		}
		return "No activity recorded yet."
	}

	unit := "events"
	if l.Stat == StatActivity {
		unit = "messages"
	}
	lines := make([]string, 0, len(l.Entries))
	for i, e := range l.Entries {
		lines = append(lines, fmt.Sprintf("%d. %s - %d %s", i+1, platform.MentionUser(e.MemberID), e.Value, unit))
	}
	return strings.Join(lines, "\n")
}

type Service struct {
	env *app.Env
}

func NewService(env *app.Env) *Service {
	return &Service{env: env}
}

func (s *Service) Leaderboard(ctx context.Context, stat Stat) (*Leaderboard, error) {
	board := &Leaderboard{Stat: stat}
	switch stat {
	case StatActivity:
		board.Title = "Top 10 Most Active Members (Last 30 Days)"
		now := s.env.Clock()
		counts, err := s.env.Store.RankActivity(ctx, localdb.ActivityQuery{
			Since: now.Add(-ActivityWindow),
			Until: now,
			Scope: types.ScopeServer,
		}, LeaderboardSize)
		if err != nil {
			return nil, err
		}
		for _, c := range counts {
			board.Entries = append(board.Entries, Entry{MemberID: c.UserID, Value: c.Count})
		}
	case StatParticipation, StatHosting:
		var (
			members []types.Member
			err     error
		)
		if stat == StatParticipation {
			board.Title = "Top 10 Event Participants"
			members, err = s.env.Store.TopParticipants(ctx, LeaderboardSize)
		} else {
			board.Title = "Top 10 Event Hosts"
			members, err = s.env.Store.TopHosts(ctx, LeaderboardSize)
		}
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			v := m.ParticipationCount
			if stat == StatHosting {
				v = m.HostCount
			}
			board.Entries = append(board.Entries, Entry{MemberID: m.UserID, Value: v})
		}
	default:
		return nil, ErrUnknownStat
	}
	return board, nil
}
