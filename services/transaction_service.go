package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/challenge"
	"savquestAPI/internal/transaction"
)

// TransactionService records financial activity and is the TransactionFeed
// the challenge engine reads from.
type TransactionService struct {
	db         *pgxpool.Pool
	challenges *ChallengeService
}

func NewTransactionService(db *pgxpool.Pool) *TransactionService {
	return &TransactionService{db: db}
}

// SetChallengeService wires the engine in after construction; main.go does
// this once both services exist.
func (s *TransactionService) SetChallengeService(cs *ChallengeService) {
	s.challenges = cs
}

// RecordTransaction persists a transaction and runs the reactive evaluation
// path. Challenge evaluation failures are logged, never returned: a broken
// engine must not lose the transaction.
func (s *TransactionService) RecordTransaction(ctx context.Context, clerkID string, req *transaction.CreateTransactionRequest) (*transaction.Transaction, []*challenge.Challenge, error) {
	if req.Amount <= 0 {
		return nil, nil, fmt.Errorf("amount must be a positive magnitude")
	}
	if req.Type != transaction.TypeIncome && req.Type != transaction.TypeExpense {
		return nil, nil, fmt.Errorf("type must be income or expense")
	}

	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, nil, err
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx := transaction.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      req.Amount,
		Type:        req.Type,
		Category:    req.Category,
		Description: req.Description,
		OccurredAt:  occurredAt,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
		INSERT INTO transactions (id, user_id, amount, type, category, description, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.Exec(ctx, query,
		tx.ID, tx.UserID, tx.Amount, tx.Type, tx.Category, tx.Description, tx.OccurredAt, tx.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	var changed []*challenge.Challenge
	if s.challenges != nil {
		changed, err = s.challenges.RecordTransactionAndEvaluate(ctx, userID, tx)
		if err != nil {
			log.Printf("Challenge evaluation failed after transaction %s: %v", tx.ID, err)
			changed = nil
		}
	}
	return &tx, changed, nil
}

// ListSince implements TransactionFeed: all of a user's transactions with
// occurred_at >= since, oldest first.
func (s *TransactionService) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]transaction.Transaction, error) {
	query := `
		SELECT id, user_id, amount, type, category, description, occurred_at, created_at
		FROM transactions
		WHERE user_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []transaction.Transaction
	for rows.Next() {
		var tx transaction.Transaction
		err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.Category,
			&tx.Description, &tx.OccurredAt, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *TransactionService) ListForUser(ctx context.Context, clerkID string, since time.Time) ([]transaction.Transaction, error) {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.ListSince(ctx, userID, since)
}

func (s *TransactionService) userIDForClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, fmt.Errorf("user not found")
		}
		return uuid.Nil, fmt.Errorf("failed to get user: %w", err)
	}
	return userID, nil
}
