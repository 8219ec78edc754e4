package goal

import (
	"time"

	"github.com/google/uuid"
)

type Goal struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	Name          string     `json:"name" db:"name"`
	TargetAmount  int64      `json:"target_amount" db:"target_amount"`
	CurrentAmount int64      `json:"current_amount" db:"current_amount"`
	Deadline      *time.Time `json:"deadline,omitempty" db:"deadline"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateGoalRequest struct {
	Name         string     `json:"name"`
	TargetAmount int64      `json:"target_amount"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

type ContributeRequest struct {
	Amount int64 `json:"amount"`
}
