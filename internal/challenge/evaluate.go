package challenge

import (
	"time"

	"savquestAPI/internal/transaction"
)

// Verdict is the evaluator's recommendation before terminal-state policy
// (expiry handling, reward issuance) is applied by the caller.
type Verdict string

const (
	VerdictContinue Verdict = "CONTINUE"
	VerdictComplete Verdict = "COMPLETE"
	VerdictFail     Verdict = "FAIL"
)

// Evaluate recomputes a challenge's progress from scratch against the given
// activity snapshot at the given instant. It is a pure function: no I/O, no
// hidden state, identical inputs always produce identical output. Both the
// per-transaction path and the scheduled batch sweep go through it, which
// is what keeps the two from diverging.
//
// Expiry is not decided here: a CONTINUE verdict at or past the end date is
// turned into EXPIRED by the lifecycle layer, and EXPIRED never pays out.
func Evaluate(c Challenge, snap Snapshot, now time.Time) (Progress, Verdict) {
	checked := now
	progress := Progress{LastCheckedAt: &checked}

	switch c.Type {
	case TypeSavings, TypeIncomePercentage:
		// INCOME_PERCENTAGE carries a target pre-derived from the user's
		// reference income at creation time; after that it evaluates
		// exactly like SAVINGS.
		progress.CurrentAmount = sumByType(snap.window(c.StartDate, now), transaction.TypeIncome, "")
		if progress.CurrentAmount >= c.Rules.TargetAmount {
			return progress, VerdictComplete
		}
		return progress, VerdictContinue

	case TypeSpendingLimit:
		progress.CurrentAmount = sumByType(snap.window(c.StartDate, now), transaction.TypeExpense, c.Rules.Category)
		if progress.CurrentAmount > c.Rules.TargetAmount {
			return progress, VerdictFail
		}
		// Staying under budget only counts once the window has closed.
		if !now.Before(c.EndDate) {
			return progress, VerdictComplete
		}
		return progress, VerdictContinue

	case TypeCategoryBan:
		// A single banned expense fails the challenge on the spot. There is
		// no COMPLETE branch: surviving untouched until the end date is the
		// success path, reached through expiry.
		if hasExpenseInCategory(snap.window(c.StartDate, now), c.Rules.Category) {
			return progress, VerdictFail
		}
		return progress, VerdictContinue

	case TypeStreak:
		if hasExpenseInCategory(snap.window(c.StartDate, now), c.Rules.Category) {
			progress.CurrentStreak = 0
			return progress, VerdictFail
		}
		progress.CurrentStreak = wholeDaysSince(c.StartDate, now)
		if progress.CurrentStreak >= c.Rules.StreakDays {
			return progress, VerdictComplete
		}
		return progress, VerdictContinue

	case TypeGoalContribution:
		// Goal balance as of the evaluation instant, not windowed.
		if c.Rules.GoalID != nil {
			if g, ok := snap.Goals[*c.Rules.GoalID]; ok {
				progress.CurrentAmount = g.CurrentAmount
			}
		}
		if progress.CurrentAmount >= c.Rules.TargetAmount {
			return progress, VerdictComplete
		}
		return progress, VerdictContinue
	}

	return progress, VerdictContinue
}

// StreakMatured reports whether elapsed time alone already satisfies a
// STREAK challenge's day count, meaning it can complete without any new
// transaction arriving.
func StreakMatured(c Challenge, now time.Time) bool {
	return c.Type == TypeStreak && wholeDaysSince(c.StartDate, now) >= c.Rules.StreakDays
}

func sumByType(txs []transaction.Transaction, t transaction.TxType, category string) int64 {
	var total int64
	for _, tx := range txs {
		if tx.Type != t {
			continue
		}
		if category != "" && tx.Category != category {
			continue
		}
		total += tx.Amount
	}
	return total
}

func hasExpenseInCategory(txs []transaction.Transaction, category string) bool {
	for _, tx := range txs {
		if tx.Type == transaction.TypeExpense && tx.Category == category {
			return true
		}
	}
	return false
}

func wholeDaysSince(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / (24 * time.Hour))
}
