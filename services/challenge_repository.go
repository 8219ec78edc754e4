package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/challenge"
)

// PostgresChallengeRepository implements ChallengeRepository on pgx. Writes
// to live challenges go through a version check so the reactive path and
// the batch sweep can run at the same time without trampling each other.
type PostgresChallengeRepository struct {
	db *pgxpool.Pool
}

func NewPostgresChallengeRepository(db *pgxpool.Pool) *PostgresChallengeRepository {
	return &PostgresChallengeRepository{db: db}
}

const challengeColumns = `
	id, user_id, type, difficulty, frequency, title, description, rules,
	reward_points, start_date, end_date, status,
	current_amount, current_streak, last_checked_at, completed_at,
	provenance, generation_context, reward_pending, version, created_at, updated_at
`

func (r *PostgresChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	rulesJSON, err := json.Marshal(c.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	query := `
		INSERT INTO challenges (` + challengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = r.db.Exec(ctx, query,
		c.ID, c.UserID, c.Type, c.Difficulty, c.Frequency, c.Title, c.Description, rulesJSON,
		c.RewardPoints, c.StartDate, c.EndDate, c.Status,
		c.Progress.CurrentAmount, c.Progress.CurrentStreak, c.Progress.LastCheckedAt, c.Progress.CompletedAt,
		c.Provenance, c.GenerationContext, c.RewardPending, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert challenge: %w", err)
	}
	return nil
}

func (r *PostgresChallengeRepository) GetByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	c, err := scanChallenge(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, challenge.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return c, nil
}

func (r *PostgresChallengeRepository) ListByUser(ctx context.Context, userID uuid.UUID, status *challenge.Status) ([]*challenge.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var out []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateVersioned persists progress and status conditioned on the row still
// holding the version the caller read, and still being ACTIVE. A miss means
// another evaluator got there first.
func (r *PostgresChallengeRepository) UpdateVersioned(ctx context.Context, c *challenge.Challenge) error {
	query := `
		UPDATE challenges
		SET status = $1,
			current_amount = $2,
			current_streak = $3,
			last_checked_at = $4,
			completed_at = $5,
			reward_pending = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9 AND status = 'ACTIVE'
	`
	tag, err := r.db.Exec(ctx, query,
		c.Status,
		c.Progress.CurrentAmount, c.Progress.CurrentStreak, c.Progress.LastCheckedAt, c.Progress.CompletedAt,
		c.RewardPending, c.UpdatedAt,
		c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return challenge.ErrConcurrentModification
	}
	c.Version++
	return nil
}

func (r *PostgresChallengeRepository) ClearRewardPending(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE challenges SET reward_pending = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to clear reward_pending: %w", err)
	}
	return nil
}

func (r *PostgresChallengeRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM challenges WHERE user_id = $1 AND status = 'ACTIVE'`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active challenges: %w", err)
	}
	return count, nil
}

func (r *PostgresChallengeRepository) ListUsersWithActive(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT user_id FROM challenges WHERE status = 'ACTIVE'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with active challenges: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var c challenge.Challenge
	var rulesJSON []byte
	err := row.Scan(
		&c.ID, &c.UserID, &c.Type, &c.Difficulty, &c.Frequency, &c.Title, &c.Description, &rulesJSON,
		&c.RewardPoints, &c.StartDate, &c.EndDate, &c.Status,
		&c.Progress.CurrentAmount, &c.Progress.CurrentStreak, &c.Progress.LastCheckedAt, &c.Progress.CompletedAt,
		&c.Provenance, &c.GenerationContext, &c.RewardPending, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &c.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
	}
	return &c, nil
}
