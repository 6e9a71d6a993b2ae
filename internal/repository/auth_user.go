package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sessionguard/platform/internal/domain"
)

type pgAuthUserRepo struct {
	db DBTX
}

// FindByUsername returns an auth user by username, or nil if not found.
func (r *pgAuthUserRepo) FindByUsername(ctx context.Context, username string) (*domain.AuthUser, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at, updated_at
		 FROM auth_users WHERE username = $1`, username)

	u := &domain.AuthUser{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create inserts a new auth user.
func (r *pgAuthUserRepo) Create(ctx context.Context, user *domain.AuthUser) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO auth_users (id, username, password_hash) VALUES ($1, $2, $3)`,
		user.ID, user.Username, user.PasswordHash)
	if isUniqueViolation(err) {
		return domain.ErrConflict("username already exists")
	}
	if err != nil {
		return fmt.Errorf("insert auth user: %w", err)
	}
	return nil
}
