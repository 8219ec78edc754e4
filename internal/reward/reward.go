package reward

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry records a single points movement. Awards carry an idempotency
// key (the challenge id for challenge rewards) so a retried award is a
// no-op at the database level.
type LedgerEntry struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Points         int       `json:"points" db:"points"`
	Reason         string    `json:"reason" db:"reason"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CatalogItem is something points can be redeemed for.
type CatalogItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	ItemType    string    `json:"item_type" db:"item_type"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	PointsPrice int       `json:"points_price" db:"points_price"`
	IsActive    bool      `json:"is_active" db:"is_active"`
}

type Redemption struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	ItemID     uuid.UUID `json:"item_id" db:"item_id"`
	PointsPaid int       `json:"points_paid" db:"points_paid"`
	Status     string    `json:"status" db:"status"`
	RedeemedAt time.Time `json:"redeemed_at" db:"redeemed_at"`
}

type RedeemRequest struct {
	ItemID string `json:"item_id"`
}
