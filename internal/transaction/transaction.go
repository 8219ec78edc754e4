package transaction

import (
	"time"

	"github.com/google/uuid"
)

type TxType string

const (
	TypeIncome  TxType = "income"
	TypeExpense TxType = "expense"
)

// Transaction amounts are positive magnitudes in integer currency units
// (cents); Type says which direction the money moved.
type Transaction struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"`
	Type        TxType    `json:"type" db:"type"`
	Category    string    `json:"category" db:"category"`
	Description string    `json:"description,omitempty" db:"description"`
	OccurredAt  time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type CreateTransactionRequest struct {
	Amount      int64     `json:"amount"`
	Type        TxType    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// MonthlySummary aggregates one calendar month of activity.
type MonthlySummary struct {
	Month         string `json:"month"` // "2026-08"
	TotalIncome   int64  `json:"total_income"`
	TotalExpenses int64  `json:"total_expenses"`
	Net           int64  `json:"net"`
}
