package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/goal"
)

// GoalService manages savings goals and is the GoalLookup the challenge
// engine resolves GOAL_CONTRIBUTION balances through.
type GoalService struct {
	db         *pgxpool.Pool
	challenges *ChallengeService
}

func NewGoalService(db *pgxpool.Pool) *GoalService {
	return &GoalService{db: db}
}

func (s *GoalService) SetChallengeService(cs *ChallengeService) {
	s.challenges = cs
}

func (s *GoalService) CreateGoal(ctx context.Context, clerkID string, req *goal.CreateGoalRequest) (*goal.Goal, error) {
	if req.Name == "" || req.TargetAmount <= 0 {
		return nil, fmt.Errorf("goal needs a name and a positive target amount")
	}

	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g := goal.Goal{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		Deadline:     req.Deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO goals (id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
	`
	_, err = s.db.Exec(ctx, query, g.ID, g.UserID, g.Name, g.TargetAmount, g.Deadline, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert goal: %w", err)
	}
	return &g, nil
}

func (s *GoalService) ListGoals(ctx context.Context, clerkID string) ([]*goal.Goal, error) {
	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []*goal.Goal
	for rows.Next() {
		var g goal.Goal
		err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
			&g.Deadline, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

// Contribute adds to a goal's balance and runs the reactive challenge path,
// since GOAL_CONTRIBUTION challenges track goal balances.
func (s *GoalService) Contribute(ctx context.Context, clerkID string, goalID uuid.UUID, amount int64) (*goal.Goal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("contribution must be positive")
	}

	userID, err := s.userIDForClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE goals
		SET current_amount = current_amount + $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at
	`
	var g goal.Goal
	err = s.db.QueryRow(ctx, query, amount, goalID, userID).Scan(
		&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
		&g.Deadline, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("goal not found")
		}
		return nil, fmt.Errorf("failed to update goal: %w", err)
	}

	if s.challenges != nil {
		if _, err := s.challenges.RunScheduledEvaluation(ctx, userID); err != nil {
			log.Printf("Challenge evaluation failed after contribution to goal %s: %v", goalID, err)
		}
	}
	return &g, nil
}

// GetGoals implements GoalLookup for the challenge engine.
func (s *GoalService) GetGoals(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]goal.Goal, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]goal.Goal{}, nil
	}

	query := `
		SELECT id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at
		FROM goals
		WHERE user_id = $1 AND id = ANY($2)
	`
	rows, err := s.db.Query(ctx, query, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]goal.Goal, len(ids))
	for rows.Next() {
		var g goal.Goal
		err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
			&g.Deadline, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out[g.ID] = g
	}
	return out, rows.Err()
}

// ListAll implements the rest of GoalLookup: every goal the user has, for
// generator context.
func (s *GoalService) ListAll(ctx context.Context, userID uuid.UUID) ([]goal.Goal, error) {
	query := `
		SELECT id, user_id, name, target_amount, current_amount, deadline, created_at, updated_at
		FROM goals
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []goal.Goal
	for rows.Next() {
		var g goal.Goal
		err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.CurrentAmount,
			&g.Deadline, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (s *GoalService) userIDForClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
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
