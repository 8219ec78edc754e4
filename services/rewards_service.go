package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/reward"
)

// RewardsService owns the points ledger and the redeemable catalog. It is
// the concrete RewardLedger the challenge engine gets injected with.
type RewardsService struct {
	db *pgxpool.Pool
}

func NewRewardsService(db *pgxpool.Pool) *RewardsService {
	return &RewardsService{db: db}
}

// AwardPoints credits points exactly once per idempotency key. The ledger
// insert and the balance bump happen in one transaction; a repeated call
// with the same key hits the unique constraint and changes nothing.
func (s *RewardsService) AwardPoints(ctx context.Context, userID uuid.UUID, points int, reason string, idempotencyKey string) error {
	if points <= 0 {
		return fmt.Errorf("points must be positive, got %d", points)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO points_ledger (id, user_id, points, reason, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insertQuery,
		uuid.New(), userID, points, reason, idempotencyKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already awarded under this key; nothing more to do.
		log.Printf("Points already awarded for key %s, skipping", idempotencyKey)
		return nil
	}

	_, err = tx.Exec(ctx, `UPDATE users SET points = points + $1 WHERE id = $2`, points, userID)
	if err != nil {
		return fmt.Errorf("failed to update user points: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *RewardsService) GetLedger(ctx context.Context, userID uuid.UUID, limit int) ([]*reward.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT id, user_id, points, reason, idempotency_key, created_at
		FROM points_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*reward.LedgerEntry
	for rows.Next() {
		var e reward.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &e.Reason, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *RewardsService) GetCatalog(ctx context.Context) (map[string][]*reward.CatalogItem, error) {
	query := `
		SELECT id, name, description, item_type, image_url, points_price, is_active
		FROM reward_catalog
		WHERE is_active = true
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	catalog := make(map[string][]*reward.CatalogItem)
	for rows.Next() {
		var item reward.CatalogItem
		err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.ItemType,
			&item.ImageURL, &item.PointsPrice, &item.IsActive,
		)
		if err != nil {
			return nil, err
		}
		catalog[item.ItemType] = append(catalog[item.ItemType], &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// RedeemItem exchanges points for a catalog item inside one transaction:
// price check, balance deduction, redemption record.
func (s *RewardsService) RedeemItem(ctx context.Context, clerkID string, itemID string) (*reward.Redemption, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	itemUUID, err := uuid.Parse(itemID)
	if err != nil {
		return nil, fmt.Errorf("invalid item ID: %w", err)
	}

	var item reward.CatalogItem
	err = tx.QueryRow(ctx,
		`SELECT id, points_price, is_active FROM reward_catalog WHERE id = $1`, itemUUID,
	).Scan(&item.ID, &item.PointsPrice, &item.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("catalog item not found")
		}
		return nil, fmt.Errorf("failed to get catalog item: %w", err)
	}
	if !item.IsActive {
		return nil, fmt.Errorf("catalog item is not available")
	}

	var userID uuid.UUID
	var points int
	err = tx.QueryRow(ctx, `SELECT id, points FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID, &points)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if points < item.PointsPrice {
		return nil, fmt.Errorf("not enough points to redeem this item")
	}

	_, err = tx.Exec(ctx, `UPDATE users SET points = points - $1 WHERE id = $2`, item.PointsPrice, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to deduct points: %w", err)
	}

	redemption := reward.Redemption{
		ID:         uuid.New(),
		UserID:     userID,
		ItemID:     itemUUID,
		PointsPaid: item.PointsPrice,
		Status:     "completed",
		RedeemedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO redemptions (id, user_id, item_id, points_paid, status, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		redemption.ID, redemption.UserID, redemption.ItemID,
		redemption.PointsPaid, redemption.Status, redemption.RedeemedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &redemption, nil
}
