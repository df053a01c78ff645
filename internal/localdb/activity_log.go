package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

// ActivityQuery selects the events counted toward a ranking.
// The window is half-open: Since <= timestamp < Until.
type ActivityQuery struct {
	Since    time.Time
	Until    time.Time
	Scope    types.Scope
	TargetID snowflake.ID
}

// RecordActivity appends one event to the ledger.
func (s *Store) RecordActivity(ctx context.Context, ev types.ActivityEvent) error {
	var category sql.NullInt64
	if ev.CategoryID != 0 {
		category = sql.NullInt64{Int64: int64(ev.CategoryID), Valid: true}
	}

	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO activity_log (user_id, channel_id, category_id, timestamp)
		VALUES (?, ?, ?, ?)`,
		int64(ev.UserID), int64(ev.ChannelID), category, toUnix(ev.Timestamp),
	)
	if err != nil {
		logger.Error("Failed to record activity", zap.Error(err), zap.String("user_id", ev.UserID.String()))
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// RankActivity counts events per member inside the query window, highest count first.
// Members with equal counts come back in whatever order sqlite groups them.
func (s *Store) RankActivity(ctx context.Context, q ActivityQuery, limit int) ([]types.ActivityCount, error) {
	where := `timestamp >= ? AND timestamp < ?`
	args := []any{toUnix(q.Since), toUnix(q.Until)}

	switch q.Scope {
	case types.ScopeServer, "":
	case types.ScopeChannel:
		where += ` AND channel_id = ?`
		args = append(args, int64(q.TargetID))
	case types.ScopeCategory:
		where += ` AND category_id = ?`
		args = append(args, int64(q.TargetID))
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidScope, q.Scope)
	}
	if limit <= 0 {
		limit = 1
	}
	args = append(args, limit)

	rows, err := s.ex.QueryContext(ctx, `
		SELECT user_id, COUNT(*) AS msg_count
		FROM activity_log
		WHERE `+where+`
		GROUP BY user_id
		ORDER BY msg_count DESC
		LIMIT ?`, args...)
	if err != nil {
		logger.Error("Failed to rank activity", zap.Error(err), zap.String("scope", string(q.Scope)))
		return nil, fmt.Errorf("failed to rank activity: %w", err)
	}
	defer rows.Close()

	counts := []types.ActivityCount{}
	for rows.Next() {
		var (
			userID int64
			c      types.ActivityCount
		)
		if err := rows.Scan(&userID, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan activity count: %w", err)
		}
		c.UserID = snowflake.ID(userID)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity counts: %w", err)
	}
	return counts, nil
}

// TopActivity returns the single most active member for the query, if any.
func (s *Store) TopActivity(ctx context.Context, q ActivityQuery) (types.ActivityCount, bool, error) {
	counts, err := s.RankActivity(ctx, q, 1)
	if err != nil {
		return types.ActivityCount{}, false, err
	}
	if len(counts) == 0 {
		return types.ActivityCount{}, false, nil
	}
	return counts[0], true, nil
}

// CountActivity returns how many events the member logged at or after since.
func (s *Store) CountActivity(ctx context.Context, userID snowflake.ID, since time.Time) (int, error) {
	var n int
	err := s.ex.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_log WHERE user_id = ? AND timestamp >= ?`,
		int64(userID), toUnix(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count activity: %w", err)
	}
	return n, nil
}

// PurgeActivityBefore deletes every event strictly older than cutoff in a single
// statement and returns how many rows were removed.
func (s *Store) PurgeActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.ex.ExecContext(ctx, `DELETE FROM activity_log WHERE timestamp < ?`, toUnix(cutoff))
	if err != nil {
		logger.Error("Failed to purge activity log", zap.Error(err))
		return 0, fmt.Errorf("failed to purge activity log: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purged row count: %w", err)
	}

	logger.Info("Purged activity log",
		zap.Int64("rows_affected", n),
		zap.Time("cutoff", cutoff.UTC()))
	return n, nil
}
