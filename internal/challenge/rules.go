package challenge

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound               = errors.New("challenge not found")
	ErrInvalidRule            = errors.New("invalid challenge rules")
	ErrConcurrentModification = errors.New("challenge modified concurrently")
	// ErrTerminalTransition signals an attempted write to a challenge that
	// already reached COMPLETED, FAILED or EXPIRED. This is a programming
	// error, not a retryable condition.
	ErrTerminalTransition = errors.New("challenge is in a terminal status")
)

// Rules is a closed set of optional fields; exactly the subset relevant to
// the challenge type is allowed to be set, enforced by Validate so the
// evaluator never has to guard against missing fields.
type Rules struct {
	TargetAmount int64      `json:"target_amount,omitempty"`
	Category     string     `json:"category,omitempty"`
	StreakDays   int        `json:"streak_days,omitempty"`
	Percentage   float64    `json:"percentage,omitempty"`
	GoalID       *uuid.UUID `json:"goal_id,omitempty"`
}

// Validate checks that the rules carry everything the given type needs.
func (r Rules) Validate(t Type) error {
	switch t {
	case TypeSavings:
		if r.TargetAmount <= 0 {
			return fmt.Errorf("%w: SAVINGS requires a positive target_amount", ErrInvalidRule)
		}
	case TypeSpendingLimit:
		if r.TargetAmount <= 0 {
			return fmt.Errorf("%w: SPENDING_LIMIT requires a positive target_amount", ErrInvalidRule)
		}
	case TypeCategoryBan:
		if r.Category == "" {
			return fmt.Errorf("%w: CATEGORY_BAN requires a category", ErrInvalidRule)
		}
	case TypeStreak:
		if r.StreakDays <= 0 {
			return fmt.Errorf("%w: STREAK requires a positive streak_days", ErrInvalidRule)
		}
		if r.Category == "" {
			return fmt.Errorf("%w: STREAK requires a category", ErrInvalidRule)
		}
	case TypeGoalContribution:
		if r.GoalID == nil {
			return fmt.Errorf("%w: GOAL_CONTRIBUTION requires a goal_id", ErrInvalidRule)
		}
		if r.TargetAmount <= 0 {
			return fmt.Errorf("%w: GOAL_CONTRIBUTION requires a positive target_amount", ErrInvalidRule)
		}
	case TypeIncomePercentage:
		if r.Percentage <= 0 || r.Percentage > 100 {
			return fmt.Errorf("%w: INCOME_PERCENTAGE requires a percentage in (0, 100]", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown challenge type %q", ErrInvalidRule, t)
	}
	return nil
}

// ValidateDraft rejects drafts that could never evaluate sensibly.
func ValidateDraft(d Draft) error {
	if err := d.Rules.Validate(d.Type); err != nil {
		return err
	}
	if d.RewardPoints <= 0 {
		return fmt.Errorf("%w: reward_points must be positive", ErrInvalidRule)
	}
	if !d.StartDate.Before(d.EndDate) {
		return fmt.Errorf("%w: start_date must be before end_date", ErrInvalidRule)
	}
	return nil
}
