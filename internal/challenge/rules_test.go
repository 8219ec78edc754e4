package challenge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRulesValidatePerType(t *testing.T) {
	goalID := uuid.New()

	cases := []struct {
		name  string
		t     Type
		rules Rules
		ok    bool
	}{
		{"savings with target", TypeSavings, Rules{TargetAmount: 10000}, true},
		{"savings without target", TypeSavings, Rules{}, false},
		{"spending limit with target", TypeSpendingLimit, Rules{TargetAmount: 5000}, true},
		{"spending limit negative target", TypeSpendingLimit, Rules{TargetAmount: -1}, false},
		{"category ban with category", TypeCategoryBan, Rules{Category: "delivery"}, true},
		{"category ban without category", TypeCategoryBan, Rules{}, false},
		{"streak complete", TypeStreak, Rules{StreakDays: 7, Category: "delivery"}, true},
		{"streak without days", TypeStreak, Rules{Category: "delivery"}, false},
		{"streak without category", TypeStreak, Rules{StreakDays: 7}, false},
		{"goal contribution complete", TypeGoalContribution, Rules{GoalID: &goalID, TargetAmount: 100}, true},
		{"goal contribution without goal", TypeGoalContribution, Rules{TargetAmount: 100}, false},
		{"income percentage in range", TypeIncomePercentage, Rules{Percentage: 20}, true},
		{"income percentage over 100", TypeIncomePercentage, Rules{Percentage: 120}, false},
		{"unknown type", Type("LOTTERY"), Rules{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rules.Validate(tc.t)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRule)
			}
		})
	}
}

func TestValidateDraftRejectsInvertedWindow(t *testing.T) {
	d := Draft{
		Type:         TypeSavings,
		Rules:        Rules{TargetAmount: 1000},
		RewardPoints: 50,
		StartDate:    time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.ErrorIs(t, ValidateDraft(d), ErrInvalidRule)
}

func TestValidateDraftRejectsZeroReward(t *testing.T) {
	d := Draft{
		Type:      TypeSavings,
		Rules:     Rules{TargetAmount: 1000},
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC),
	}
	assert.ErrorIs(t, ValidateDraft(d), ErrInvalidRule)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusExpired.Terminal())
}
