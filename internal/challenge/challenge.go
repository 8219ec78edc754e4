package challenge

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeSavings          Type = "SAVINGS"
	TypeSpendingLimit    Type = "SPENDING_LIMIT"
	TypeCategoryBan      Type = "CATEGORY_BAN"
	TypeStreak           Type = "STREAK"
	TypeGoalContribution Type = "GOAL_CONTRIBUTION"
	TypeIncomePercentage Type = "INCOME_PERCENTAGE"
)

func AllTypes() []Type {
	return []Type{
		TypeSavings,
		TypeSpendingLimit,
		TypeCategoryBan,
		TypeStreak,
		TypeGoalContribution,
		TypeIncomePercentage,
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Frequency is advisory only; it describes the cadence a challenge was
// designed around but never drives evaluation.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether a challenge in this status can never change
// again. ACTIVE is the sole non-terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

type Provenance string

const (
	ProvenanceManual    Provenance = "manual"
	ProvenanceGenerated Provenance = "generated"
	ProvenanceFallback  Provenance = "fallback"
)

type Progress struct {
	CurrentAmount int64      `json:"current_amount" db:"current_amount"`
	CurrentStreak int        `json:"current_streak" db:"current_streak"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type Challenge struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	Type         Type       `json:"type" db:"type"`
	Difficulty   Difficulty `json:"difficulty" db:"difficulty"`
	Frequency    Frequency  `json:"frequency" db:"frequency"`
	Title        string     `json:"title" db:"title"`
	Description  string     `json:"description" db:"description"`
	Rules        Rules      `json:"rules" db:"rules"`
	RewardPoints int        `json:"reward_points" db:"reward_points"`
	StartDate    time.Time  `json:"start_date" db:"start_date"`
	EndDate      time.Time  `json:"end_date" db:"end_date"`
	Status       Status     `json:"status" db:"status"`
	Progress     Progress   `json:"progress"`
	Provenance   Provenance `json:"provenance" db:"provenance"`
	// GenerationContext holds the prompt context a generated challenge was
	// produced from; empty for manual challenges.
	GenerationContext string `json:"generation_context,omitempty" db:"generation_context"`
	// RewardPending is set while a COMPLETED transition has been persisted
	// but the points award has not been confirmed yet.
	RewardPending bool      `json:"-" db:"reward_pending"`
	Version       int       `json:"-" db:"version"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Draft is what the generator (or a manual create request) produces before
// a challenge is persisted as ACTIVE.
type Draft struct {
	Type              Type       `json:"type"`
	Difficulty        Difficulty `json:"difficulty"`
	Frequency         Frequency  `json:"frequency"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Rules             Rules      `json:"rules"`
	RewardPoints      int        `json:"reward_points"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           time.Time  `json:"end_date"`
	Provenance        Provenance `json:"provenance"`
	GenerationContext string     `json:"generation_context,omitempty"`
}
