package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

const awardColumns = `award_name, award_type, frequency, role_id, target_id`

func scanAward(scanner interface{ Scan(...any) error }) (types.AwardDefinition, error) {
	var (
		a         types.AwardDefinition
		scope     string
		frequency string
		roleID    int64
		targetID  sql.NullInt64
	)
	if err := scanner.Scan(&a.Name, &scope, &frequency, &roleID, &targetID); err != nil {
		return types.AwardDefinition{}, err
	}
	a.Scope = types.Scope(scope)
	a.Frequency = types.Frequency(frequency)
	a.RoleID = snowflake.ID(roleID)
	if targetID.Valid {
		a.TargetID = snowflake.ID(targetID.Int64)
	}
	return a, nil
}

// UpsertAward stores the definition; an existing award with the same name is replaced.
func (s *Store) UpsertAward(ctx context.Context, a types.AwardDefinition) error {
	if err := a.Validate(); err != nil {
		return err
	}

	var target sql.NullInt64
	if a.Scope != types.ScopeServer {
		target = sql.NullInt64{Int64: int64(a.TargetID), Valid: true}
	}

	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO award_configs (`+awardColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(award_name) DO UPDATE SET
			award_type = excluded.award_type,
			frequency = excluded.frequency,
			role_id = excluded.role_id,
			target_id = excluded.target_id`,
		a.Name, string(a.Scope), string(a.Frequency), int64(a.RoleID), target,
	)
	if err != nil {
		logger.Error("Failed to upsert award", zap.Error(err), zap.String("award", a.Name))
		return fmt.Errorf("failed to upsert award: %w", err)
	}
	return nil
}

// DeleteAward removes the named award; reports whether it existed.
func (s *Store) DeleteAward(ctx context.Context, name string) (bool, error) {
	res, err := s.ex.ExecContext(ctx, `DELETE FROM award_configs WHERE award_name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete award: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListAwards returns every award definition ordered by name.
func (s *Store) ListAwards(ctx context.Context) ([]types.AwardDefinition, error) {
	return s.queryAwards(ctx, `SELECT `+awardColumns+` FROM award_configs ORDER BY award_name`)
}

// ListAwardsByFrequency returns the awards processed by one award cycle.
func (s *Store) ListAwardsByFrequency(ctx context.Context, freq types.Frequency) ([]types.AwardDefinition, error) {
	return s.queryAwards(ctx,
		`SELECT `+awardColumns+` FROM award_configs WHERE frequency = ? ORDER BY award_name`, string(freq))
}

func (s *Store) queryAwards(ctx context.Context, query string, args ...any) ([]types.AwardDefinition, error) {
	rows, err := s.ex.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Failed to list awards", zap.Error(err))
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	defer rows.Close()

	awards := []types.AwardDefinition{}
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}
