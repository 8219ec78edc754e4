package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"savquestAPI/internal/user"
)

type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

// CreateUser provisions a user row from a Clerk webhook event.
func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	now := time.Now().UTC()
	u := user.User{
		ID:        uuid.New().String(),
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ImageURL:  req.ImageURL,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url,
			email_verified, currency, monthly_income, points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, 0, 0, $9, $10)
		ON CONFLICT (clerk_id) DO NOTHING
	`
	_, err := s.db.Exec(ctx, query,
		u.ID, u.ClerkID, u.Email, u.Username, u.FirstName, u.LastName, u.ImageURL,
		u.Currency, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	log.Printf("Provisioned user %s (clerk %s)", u.ID, u.ClerkID)
	return &u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
		SELECT id, clerk_id, email, username, first_name, last_name, image_url,
			email_verified, currency, monthly_income, points, created_at, updated_at
		FROM users
		WHERE clerk_id = $1
	`
	var u user.User
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID, &u.ClerkID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.ImageURL,
		&u.EmailVerified, &u.Currency, &u.MonthlyIncome, &u.Points, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	query := `
		UPDATE users
		SET username = COALESCE(NULLIF($1, ''), username),
			first_name = COALESCE(NULLIF($2, ''), first_name),
			last_name = COALESCE(NULLIF($3, ''), last_name),
			image_url = COALESCE(NULLIF($4, ''), image_url),
			currency = COALESCE(NULLIF($5, ''), currency),
			monthly_income = COALESCE($6, monthly_income),
			updated_at = NOW()
		WHERE clerk_id = $7
	`
	tag, err := s.db.Exec(ctx, query,
		req.Username, req.FirstName, req.LastName, req.ImageURL, req.Currency,
		req.MonthlyIncome, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("user not found")
	}
	return s.GetUserByClerkID(ctx, clerkID)
}

func (s *UserService) UpdateFromClerk(ctx context.Context, clerkID, email, username, firstName, lastName, imageURL string) error {
	query := `
		UPDATE users
		SET email = COALESCE(NULLIF($1, ''), email),
			username = COALESCE(NULLIF($2, ''), username),
			first_name = COALESCE(NULLIF($3, ''), first_name),
			last_name = COALESCE(NULLIF($4, ''), last_name),
			image_url = COALESCE(NULLIF($5, ''), image_url),
			updated_at = NOW()
		WHERE clerk_id = $6
	`
	_, err := s.db.Exec(ctx, query, email, username, firstName, lastName, imageURL, clerkID)
	if err != nil {
		return fmt.Errorf("failed to sync user from clerk: %w", err)
	}
	return nil
}

func (s *UserService) DeleteUser(ctx context.Context, clerkID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// MonthlyIncome implements IncomeSource for the challenge engine. The
// profile figure wins when the user set one; otherwise it is inferred from
// the last 30 days of income transactions.
func (s *UserService) MonthlyIncome(ctx context.Context, userID uuid.UUID) (int64, error) {
	var declared int64
	err := s.db.QueryRow(ctx, `SELECT monthly_income FROM users WHERE id = $1`, userID).Scan(&declared)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("user not found")
		}
		return 0, fmt.Errorf("failed to get user income: %w", err)
	}
	if declared > 0 {
		return declared, nil
	}

	var inferred int64
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND type = 'income' AND occurred_at >= NOW() - INTERVAL '30 days'
	`, userID).Scan(&inferred)
	if err != nil {
		return 0, fmt.Errorf("failed to infer income: %w", err)
	}
	return inferred, nil
}
