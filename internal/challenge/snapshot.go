package challenge

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"savquestAPI/internal/goal"
	"savquestAPI/internal/transaction"
)

// Snapshot is the activity a single evaluation pass sees: the user's
// transactions ordered by occurrence time, plus the current state of any
// savings goals referenced by active challenges. It is derived, never
// persisted, and together with the challenge and the evaluation instant it
// is the sole input to Evaluate.
type Snapshot struct {
	Transactions []transaction.Transaction
	Goals        map[uuid.UUID]goal.Goal
}

// NewSnapshot sorts transactions by occurrence time so evaluation order is
// reproducible regardless of how the feed returned them.
func NewSnapshot(txs []transaction.Transaction, goals map[uuid.UUID]goal.Goal) Snapshot {
	sorted := make([]transaction.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})
	if goals == nil {
		goals = make(map[uuid.UUID]goal.Goal)
	}
	return Snapshot{Transactions: sorted, Goals: goals}
}

// Append returns a new snapshot extended by one transaction, keeping order.
// The incremental evaluation path uses this to stay equivalent to a full
// rescan.
func (s Snapshot) Append(tx transaction.Transaction) Snapshot {
	txs := make([]transaction.Transaction, 0, len(s.Transactions)+1)
	txs = append(txs, s.Transactions...)
	txs = append(txs, tx)
	return NewSnapshot(txs, s.Goals)
}

// window returns the transactions counting toward a challenge: occurred at
// or after the challenge start, and not after the evaluation instant.
func (s Snapshot) window(start, now time.Time) []transaction.Transaction {
	var out []transaction.Transaction
	for _, tx := range s.Transactions {
		if tx.OccurredAt.Before(start) || tx.OccurredAt.After(now) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
