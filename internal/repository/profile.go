package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sessionguard/platform/internal/domain"
)

type pgProfileRepo struct {
	db DBTX
}

const profileColumns = `user_id, username, risk_score, account_status, last_login_at, status_updated_at, created_at`

// FindByUserID returns a profile, or nil if not found.
func (r *pgProfileRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID)
	return scanProfile(row)
}

func (r *pgProfileRepo) LockForUpdate(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1 FOR UPDATE`, userID)
	return scanProfile(row)
}

// Create inserts a new profile.
func (r *pgProfileRepo) Create(ctx context.Context, p *domain.UserProfile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_profiles (user_id, username, risk_score, account_status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.UserID, p.Username, p.RiskScore, string(p.AccountStatus), p.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict("username already exists")
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// Update writes the login-driven fields of a profile.
func (r *pgProfileRepo) Update(ctx context.Context, p *domain.UserProfile) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_profiles SET
		 risk_score = $2, account_status = $3, last_login_at = $4, status_updated_at = $5
		 WHERE user_id = $1`,
		p.UserID, p.RiskScore, string(p.AccountStatus), p.LastLoginAt, p.StatusUpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("profile", p.UserID.String())
	}
	return nil
}

func scanProfile(row pgx.Row) (*domain.UserProfile, error) {
	p := &domain.UserProfile{}
	var status string
	err := row.Scan(&p.UserID, &p.Username, &p.RiskScore, &status,
		&p.LastLoginAt, &p.StatusUpdatedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.AccountStatus = domain.AccountStatus(status)
	return p, nil
}
