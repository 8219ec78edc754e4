package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"savquestAPI/internal/stats"
	"savquestAPI/internal/transaction"
)

type AnalyticsService struct {
	db *pgxpool.Pool
}

func NewAnalyticsService(db *pgxpool.Pool) *AnalyticsService {
	return &AnalyticsService{db: db}
}

// GetMonthlySummaries aggregates the last n calendar months of activity,
// newest first.
func (s *AnalyticsService) GetMonthlySummaries(ctx context.Context, userID uuid.UUID, months int) ([]*transaction.MonthlySummary, error) {
	if months <= 0 || months > 24 {
		months = 6
	}

	query := `
		SELECT to_char(date_trunc('month', occurred_at), 'YYYY-MM') AS month,
			COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0) AS income,
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0) AS expenses
		FROM transactions
		WHERE user_id = $1 AND occurred_at >= date_trunc('month', NOW()) - ($2 || ' months')::interval
		GROUP BY 1
		ORDER BY 1 DESC
	`
	rows, err := s.db.Query(ctx, query, userID, months)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly summaries: %w", err)
	}
	defer rows.Close()

	var out []*transaction.MonthlySummary
	for rows.Next() {
		var m transaction.MonthlySummary
		if err := rows.Scan(&m.Month, &m.TotalIncome, &m.TotalExpenses); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		m.Net = m.TotalIncome - m.TotalExpenses
		out = append(out, &m)
	}
	return out, rows.Err()
}

// SavingsRate is income minus expenses over income for the given window,
// as a percentage with two decimals. Exact arithmetic, no float drift.
func (s *AnalyticsService) SavingsRate(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var income, expenses int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)
		FROM transactions
		WHERE user_id = $1 AND occurred_at >= $2
	`, userID, since).Scan(&income, &expenses)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute savings rate: %w", err)
	}
	if income == 0 {
		return decimal.Zero, nil
	}

	return decimal.NewFromInt(income - expenses).
		Div(decimal.NewFromInt(income)).
		Mul(decimal.NewFromInt(100)).
		Round(2), nil
}

// GetUserStats assembles the profile-page numbers in one pass.
func (s *AnalyticsService) GetUserStats(ctx context.Context, userID uuid.UUID) (*stats.UserStats, error) {
	var st stats.UserStats

	err := s.db.QueryRow(ctx, `SELECT points FROM users WHERE id = $1`, userID).Scan(&st.PointsBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to get points balance: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE type = 'income'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'expense'), 0)
		FROM transactions WHERE user_id = $1
	`, userID).Scan(&st.TotalSaved, &st.TotalSpent)
	if err != nil {
		return nil, fmt.Errorf("failed to get totals: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM goals WHERE user_id = $1 AND current_amount < target_amount
	`, userID).Scan(&st.ActiveGoals)
	if err != nil {
		return nil, fmt.Errorf("failed to count goals: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COALESCE(MAX(current_streak), 0)
		FROM challenges WHERE user_id = $1
	`, userID).Scan(&st.ChallengesWon, &st.CurrentBestStreak)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge stats: %w", err)
	}

	return &st, nil
}
