package localdb

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"go.uber.org/zap"
)

// milestoneTable maps a dimension to its table and threshold column.
func milestoneTable(dim types.Dimension) (table, column string, err error) {
	switch dim {
	case types.DimensionTenure:
		return "tenure_roles", "days", nil
	case types.DimensionParticipation:
		return "participation_roles", "count", nil
	}
	return "", "", fmt.Errorf("unknown milestone dimension: %q", dim)
}

// SetMilestoneRule creates or replaces the rule for the given threshold.
func (s *Store) SetMilestoneRule(ctx context.Context, dim types.Dimension, rule types.MilestoneRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	table, column, err := milestoneTable(dim)
	if err != nil {
		return err
	}

	_, err = s.ex.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+table+` (`+column+`, role_id) VALUES (?, ?)`,
		rule.Threshold, int64(rule.RoleID),
	)
	if err != nil {
		logger.Error("Failed to set milestone rule", zap.Error(err),
			zap.String("dimension", string(dim)), zap.Int("threshold", rule.Threshold))
		return fmt.Errorf("failed to set %s rule: %w", dim, err)
	}
	return nil
}

// DeleteMilestoneRule removes the rule for threshold; reports whether one existed.
func (s *Store) DeleteMilestoneRule(ctx context.Context, dim types.Dimension, threshold int) (bool, error) {
	table, column, err := milestoneTable(dim)
	if err != nil {
		return false, err
	}

	res, err := s.ex.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+column+` = ?`, threshold)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s rule: %w", dim, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListMilestoneRules returns the dimension's rules ordered by threshold, highest first.
func (s *Store) ListMilestoneRules(ctx context.Context, dim types.Dimension) ([]types.MilestoneRule, error) {
	table, column, err := milestoneTable(dim)
	if err != nil {
		return nil, err
	}

	rows, err := s.ex.QueryContext(ctx,
		`SELECT `+column+`, role_id FROM `+table+` ORDER BY `+column+` DESC`)
	if err != nil {
		logger.Error("Failed to list milestone rules", zap.Error(err), zap.String("dimension", string(dim)))
		return nil, fmt.Errorf("failed to list %s rules: %w", dim, err)
	}
	defer rows.Close()

	rules := []types.MilestoneRule{}
	for rows.Next() {
		var (
			r      types.MilestoneRule
			roleID int64
		)
		if err := rows.Scan(&r.Threshold, &roleID); err != nil {
			return nil, fmt.Errorf("failed to scan %s rule: %w", dim, err)
		}
		r.RoleID = snowflake.ID(roleID)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
