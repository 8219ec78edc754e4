package challenge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savquestAPI/internal/goal"
	"savquestAPI/internal/transaction"
)

var t0 = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func tx(txType transaction.TxType, amount int64, category string, at time.Time) transaction.Transaction {
	return transaction.Transaction{
		ID:         uuid.New(),
		Amount:     amount,
		Type:       txType,
		Category:   category,
		OccurredAt: at,
	}
}

func active(ct Type, rules Rules) Challenge {
	return Challenge{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Type:         ct,
		Rules:        rules,
		RewardPoints: 100,
		StartDate:    t0,
		EndDate:      t0.Add(7 * 24 * time.Hour),
		Status:       StatusActive,
	}
}

func TestEvaluateSavingsCompletes(t *testing.T) {
	c := active(TypeSavings, Rules{TargetAmount: 200000})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeIncome, 250000, "salary", t0.Add(time.Hour)),
	}, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(2*time.Hour))
	assert.Equal(t, VerdictComplete, verdict)
	assert.Equal(t, int64(250000), progress.CurrentAmount)
}

func TestEvaluateSavingsIgnoresExpensesAndOldTransactions(t *testing.T) {
	c := active(TypeSavings, Rules{TargetAmount: 200000})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeIncome, 150000, "salary", t0.Add(-time.Hour)), // before start
		tx(transaction.TypeExpense, 300000, "rent", t0.Add(time.Hour)),
		tx(transaction.TypeIncome, 100000, "salary", t0.Add(2*time.Hour)),
	}, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(3*time.Hour))
	assert.Equal(t, VerdictContinue, verdict)
	assert.Equal(t, int64(100000), progress.CurrentAmount)
}

func TestEvaluateSpendingLimitFailsAtTheMomentBudgetIsExceeded(t *testing.T) {
	c := active(TypeSpendingLimit, Rules{TargetAmount: 50000})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 35000, "groceries", t0.Add(24*time.Hour)),
		tx(transaction.TypeExpense, 25000, "dining", t0.Add(48*time.Hour)),
	}, nil)

	// Fails as soon as the 60000 total exists, well before the end date.
	progress, verdict := Evaluate(c, snap, t0.Add(49*time.Hour))
	assert.Equal(t, VerdictFail, verdict)
	assert.Equal(t, int64(60000), progress.CurrentAmount)
}

func TestEvaluateSpendingLimitStaysContinueWhileUnderBudget(t *testing.T) {
	c := active(TypeSpendingLimit, Rules{TargetAmount: 50000})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 20000, "groceries", t0.Add(24*time.Hour)),
	}, nil)

	// Under budget before the end date is not yet a win.
	_, verdict := Evaluate(c, snap, t0.Add(48*time.Hour))
	assert.Equal(t, VerdictContinue, verdict)
}

func TestEvaluateSpendingLimitCompletesOnlyAtEndDate(t *testing.T) {
	c := active(TypeSpendingLimit, Rules{TargetAmount: 50000})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 20000, "groceries", t0.Add(24*time.Hour)),
	}, nil)

	progress, verdict := Evaluate(c, snap, c.EndDate)
	assert.Equal(t, VerdictComplete, verdict)
	assert.Equal(t, int64(20000), progress.CurrentAmount)
}

func TestEvaluateSpendingLimitRespectsCategoryFilter(t *testing.T) {
	c := active(TypeSpendingLimit, Rules{TargetAmount: 50000, Category: "dining"})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 80000, "rent", t0.Add(time.Hour)),
		tx(transaction.TypeExpense, 30000, "dining", t0.Add(2*time.Hour)),
	}, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(3*time.Hour))
	assert.Equal(t, VerdictContinue, verdict)
	assert.Equal(t, int64(30000), progress.CurrentAmount)
}

func TestEvaluateCategoryBanFailsOnBannedExpense(t *testing.T) {
	c := active(TypeCategoryBan, Rules{Category: "delivery"})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 4500, "delivery", t0.Add(72*time.Hour)),
	}, nil)

	_, verdict := Evaluate(c, snap, t0.Add(73*time.Hour))
	assert.Equal(t, VerdictFail, verdict)
}

func TestEvaluateCategoryBanNeverCompletesFromEvaluation(t *testing.T) {
	c := active(TypeCategoryBan, Rules{Category: "delivery"})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 4500, "groceries", t0.Add(24*time.Hour)),
	}, nil)

	// Even past the end date the evaluator only says CONTINUE; turning that
	// into EXPIRED (the success path for a ban) is lifecycle policy.
	_, verdict := Evaluate(c, snap, c.EndDate.Add(time.Second))
	assert.Equal(t, VerdictContinue, verdict)
}

func TestEvaluateStreakFailsAndResetsOnViolation(t *testing.T) {
	c := active(TypeStreak, Rules{StreakDays: 7, Category: "delivery"})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeExpense, 3000, "delivery", t0.Add(3*24*time.Hour)),
	}, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(3*24*time.Hour+time.Hour))
	assert.Equal(t, VerdictFail, verdict)
	assert.Equal(t, 0, progress.CurrentStreak)
}

func TestEvaluateStreakCountsWholeDays(t *testing.T) {
	c := active(TypeStreak, Rules{StreakDays: 7, Category: "delivery"})
	snap := NewSnapshot(nil, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(3*24*time.Hour+5*time.Hour))
	assert.Equal(t, VerdictContinue, verdict)
	assert.Equal(t, 3, progress.CurrentStreak)
}

func TestEvaluateStreakCompletes(t *testing.T) {
	c := active(TypeStreak, Rules{StreakDays: 7, Category: "delivery"})
	c.EndDate = t0.Add(14 * 24 * time.Hour)
	snap := NewSnapshot(nil, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(7*24*time.Hour))
	assert.Equal(t, VerdictComplete, verdict)
	assert.Equal(t, 7, progress.CurrentStreak)
}

func TestEvaluateGoalContributionUsesCurrentBalance(t *testing.T) {
	goalID := uuid.New()
	c := active(TypeGoalContribution, Rules{GoalID: &goalID, TargetAmount: 100000})
	snap := NewSnapshot(nil, map[uuid.UUID]goal.Goal{
		goalID: {ID: goalID, CurrentAmount: 120000, TargetAmount: 500000},
	})

	progress, verdict := Evaluate(c, snap, t0.Add(time.Hour))
	assert.Equal(t, VerdictComplete, verdict)
	assert.Equal(t, int64(120000), progress.CurrentAmount)
}

func TestEvaluateGoalContributionMissingGoalContinuesAtZero(t *testing.T) {
	goalID := uuid.New()
	c := active(TypeGoalContribution, Rules{GoalID: &goalID, TargetAmount: 100000})

	progress, verdict := Evaluate(c, NewSnapshot(nil, nil), t0.Add(time.Hour))
	assert.Equal(t, VerdictContinue, verdict)
	assert.Equal(t, int64(0), progress.CurrentAmount)
}

func TestEvaluateIncomePercentageUsesDerivedTarget(t *testing.T) {
	c := active(TypeIncomePercentage, Rules{Percentage: 20, TargetAmount: 60000})
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeIncome, 65000, "salary", t0.Add(time.Hour)),
	}, nil)

	progress, verdict := Evaluate(c, snap, t0.Add(2*time.Hour))
	assert.Equal(t, VerdictComplete, verdict)
	assert.Equal(t, int64(65000), progress.CurrentAmount)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	goalID := uuid.New()
	snap := NewSnapshot([]transaction.Transaction{
		tx(transaction.TypeIncome, 50000, "salary", t0.Add(time.Hour)),
		tx(transaction.TypeExpense, 12000, "delivery", t0.Add(26*time.Hour)),
		tx(transaction.TypeExpense, 9000, "groceries", t0.Add(30*time.Hour)),
	}, map[uuid.UUID]goal.Goal{goalID: {ID: goalID, CurrentAmount: 40000}})
	now := t0.Add(48 * time.Hour)

	for _, ct := range AllTypes() {
		rules := Rules{TargetAmount: 100000, Category: "delivery", StreakDays: 7, Percentage: 10}
		if ct == TypeGoalContribution {
			rules.GoalID = &goalID
		}
		c := active(ct, rules)

		p1, v1 := Evaluate(c, snap, now)
		p2, v2 := Evaluate(c, snap, now)
		require.Equal(t, v1, v2, "verdict not reproducible for %s", ct)
		require.Equal(t, p1, p2, "progress not reproducible for %s", ct)
	}
}

func TestSnapshotAppendKeepsOrder(t *testing.T) {
	late := tx(transaction.TypeExpense, 100, "misc", t0.Add(5*time.Hour))
	early := tx(transaction.TypeIncome, 200, "salary", t0.Add(time.Hour))

	snap := NewSnapshot([]transaction.Transaction{late}, nil).Append(early)
	require.Len(t, snap.Transactions, 2)
	assert.Equal(t, early.ID, snap.Transactions[0].ID)
	assert.Equal(t, late.ID, snap.Transactions[1].ID)
}
