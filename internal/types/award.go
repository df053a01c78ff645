package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTier      = errors.New("invalid tier")
	ErrInvalidScope     = errors.New("invalid award type")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrMissingTarget    = errors.New("award type requires a target channel or category")
	ErrInvalidThreshold = errors.New("threshold must be a positive integer")
)

// Scope はアワードの集計範囲
type Scope string

const (
	ScopeServer   Scope = "server"
	ScopeChannel  Scope = "channel"
	ScopeCategory Scope = "category"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeServer:
		return ScopeServer, nil
	case ScopeChannel:
		return ScopeChannel, nil
	case ScopeCategory:
		return ScopeCategory, nil
	}
	return "", fmt.Errorf("%w: %q (must be server, channel, or category)", ErrInvalidScope, s)
}

// Frequency はアワードの周期
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	case FrequencyQuarterly:
		return FrequencyQuarterly, nil
	}
	return "", fmt.Errorf("%w: %q (must be monthly or quarterly)", ErrInvalidFrequency, s)
}

// Tier selects which frequency an award cycle or purge operates on.
type Tier string

const (
	TierGamma Tier = "gamma"
	TierBeta  Tier = "beta"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierGamma:
		return TierGamma, nil
	case TierBeta:
		return TierBeta, nil
	}
	return "", fmt.Errorf("%w: %q (use gamma (monthly) or beta (quarterly))", ErrInvalidTier, s)
}

// Frequency maps gamma to monthly and beta to quarterly.
func (t Tier) Frequency() Frequency {
	if t == TierBeta {
		return FrequencyQuarterly
	}
	return FrequencyMonthly
}

// Days is the length of the tier's rolling window.
func (t Tier) Days() int {
	if t == TierBeta {
		return 90
	}
	return 30
}

func (t Tier) Window() time.Duration {
	return time.Duration(t.Days()) * 24 * time.Hour
}

func (t Tier) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// AwardDefinition は周期アワードの設定
type AwardDefinition struct {
	Name      string       `json:"award_name" db:"award_name"`
	Scope     Scope        `json:"award_type" db:"award_type"`
	Frequency Frequency    `json:"frequency" db:"frequency"`
	RoleID    snowflake.ID `json:"role_id" db:"role_id"`
	TargetID  snowflake.ID `json:"target_id,omitempty" db:"target_id"` // server スコープでは 0
}

// Validate checks the definition invariants: a non-empty name, a known scope and
// frequency, and a target exactly when the scope is not server-wide.
func (a AwardDefinition) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("award name is required")
	}
	if _, err := ParseScope(string(a.Scope)); err != nil {
		return err
	}
	if _, err := ParseFrequency(string(a.Frequency)); err != nil {
		return err
	}
	if a.Scope != ScopeServer && a.TargetID == 0 {
		return fmt.Errorf("%w: %s", ErrMissingTarget, a.Scope)
	}
	if a.RoleID == 0 {
		return errors.New("award role is required")
	}
	return nil
}

// Dimension is the counter a milestone rule is measured against.
type Dimension string

const (
	DimensionTenure        Dimension = "tenure"
	DimensionParticipation Dimension = "participation"
)

// MilestoneRule は閾値とロールの対応（tenure: 日数, participation: 参加回数）
type MilestoneRule struct {
	Threshold int          `json:"threshold"`
	RoleID    snowflake.ID `json:"role_id"`
}

func (r MilestoneRule) Validate() error {
	if r.Threshold <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, r.Threshold)
	}
	if r.RoleID == 0 {
		return errors.New("milestone role is required")
	}
	return nil
}
