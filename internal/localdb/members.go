package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

const memberColumns = `user_id, join_date, participation_count, host_count`

func scanMember(scanner interface{ Scan(...any) error }) (types.Member, error) {
	var (
		m        types.Member
		userID   int64
		joinDate int64
	)
	if err := scanner.Scan(&userID, &joinDate, &m.ParticipationCount, &m.HostCount); err != nil {
		return types.Member{}, err
	}
	m.UserID = snowflake.ID(userID)
	m.JoinDate = fromUnix(joinDate)
	return m, nil
}

// GetMember returns the member record, or ErrNotFound when the member is untracked.
func (s *Store) GetMember(ctx context.Context, userID snowflake.ID) (*types.Member, error) {
	row := s.ex.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE user_id = ?`, int64(userID))
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.Error("Failed to get member", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// ListMembers returns every tracked member ordered by user id.
func (s *Store) ListMembers(ctx context.Context) ([]types.Member, error) {
	rows, err := s.ex.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY user_id`)
	if err != nil {
		logger.Error("Failed to list members", zap.Error(err))
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []types.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// MemberIDs returns the set of tracked user ids.
func (s *Store) MemberIDs(ctx context.Context) (map[snowflake.ID]struct{}, error) {
	rows, err := s.ex.QueryContext(ctx, `SELECT user_id FROM members`)
	if err != nil {
		return nil, fmt.Errorf("failed to list member ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[snowflake.ID]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids[snowflake.ID(id)] = struct{}{}
	}
	return ids, rows.Err()
}

// UpsertJoinDate creates the member or overwrites its join date, preserving counters.
func (s *Store) UpsertJoinDate(ctx context.Context, userID snowflake.ID, joinedAt time.Time) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO members (user_id, join_date, participation_count, host_count)
		VALUES (?, ?, 0, 0)
		ON CONFLICT(user_id) DO UPDATE SET join_date = excluded.join_date`,
		int64(userID), toUnix(joinedAt),
	)
	if err != nil {
		logger.Error("Failed to upsert member join date", zap.Error(err), zap.String("user_id", userID.String()))
		return fmt.Errorf("failed to upsert member join date: %w", err)
	}
	return nil
}

// IncrementParticipation adds one to the member's participation count, creating
// the record with joinedAt when it does not exist yet.
func (s *Store) IncrementParticipation(ctx context.Context, userID snowflake.ID, joinedAt time.Time) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO members (user_id, join_date, participation_count, host_count)
		VALUES (?, ?, 1, 0)
		ON CONFLICT(user_id) DO UPDATE SET participation_count = participation_count + 1`,
		int64(userID), toUnix(joinedAt),
	)
	if err != nil {
		logger.Error("Failed to increment participation", zap.Error(err), zap.String("user_id", userID.String()))
		return fmt.Errorf("failed to increment participation: %w", err)
	}
	return nil
}

// IncrementHostCount adds one to the member's host count, creating the record if needed.
func (s *Store) IncrementHostCount(ctx context.Context, userID snowflake.ID, joinedAt time.Time) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO members (user_id, join_date, participation_count, host_count)
		VALUES (?, ?, 0, 1)
		ON CONFLICT(user_id) DO UPDATE SET host_count = host_count + 1`,
		int64(userID), toUnix(joinedAt),
	)
	if err != nil {
		logger.Error("Failed to increment host count", zap.Error(err), zap.String("user_id", userID.String()))
		return fmt.Errorf("failed to increment host count: %w", err)
	}
	return nil
}

// InsertMembersIfAbsent bulk-inserts members in one transaction, ignoring ids
// that are already tracked. Returns the number of rows actually inserted.
func (s *Store) InsertMembersIfAbsent(ctx context.Context, members []types.Member) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	var inserted int64
	err := s.RunInTransaction(ctx, func(tx *Store) error {
		for _, m := range members {
			res, err := tx.ex.ExecContext(ctx, `
				INSERT OR IGNORE INTO members (user_id, join_date, participation_count, host_count)
				VALUES (?, ?, ?, ?)`,
				int64(m.UserID), toUnix(m.JoinDate), m.ParticipationCount, m.HostCount,
			)
			if err != nil {
				return fmt.Errorf("failed to insert member %s: %w", m.UserID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to bulk insert members", zap.Error(err), zap.Int("requested", len(members)))
		return 0, err
	}

	logger.Info("Bulk inserted members",
		zap.Int("requested", len(members)),
		zap.Int64("rows_affected", inserted))
	return inserted, nil
}

// TopParticipants returns members with a positive participation count, highest first.
func (s *Store) TopParticipants(ctx context.Context, limit int) ([]types.Member, error) {
	return s.topMembersBy(ctx, "participation_count", limit)
}

// TopHosts returns members with a positive host count, highest first.
func (s *Store) TopHosts(ctx context.Context, limit int) ([]types.Member, error) {
	return s.topMembersBy(ctx, "host_count", limit)
}

func (s *Store) topMembersBy(ctx context.Context, column string, limit int) ([]types.Member, error) {
	switch column {
	case "participation_count", "host_count":
	default:
		return nil, fmt.Errorf("unsupported ranking column: %s", column)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.ex.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE `+column+` > 0 ORDER BY `+column+` DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank members by %s: %w", column, err)
	}
	defer rows.Close()

	members := []types.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
