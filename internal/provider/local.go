package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the username is unknown so both paths
// cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sessionguard-timing-equalizer"), bcrypt.DefaultCost)

// LocalIdentity authenticates against bcrypt hashes in auth_users.
type LocalIdentity struct {
	users repository.AuthUserRepository
	cost  int
}

// NewLocalIdentity creates a LocalIdentity reading from users.
func NewLocalIdentity(users repository.AuthUserRepository) *LocalIdentity {
	return &LocalIdentity{users: users, cost: bcrypt.DefaultCost}
}

func (l *LocalIdentity) Authenticate(ctx context.Context, username, password string) (uuid.UUID, error) {
	user, err := l.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return uuid.Nil, unavailable(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return uuid.Nil, ErrInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return uuid.Nil, ErrInvalidCredentials
	}
	if err != nil {
		return uuid.Nil, unavailable(fmt.Errorf("compare hash: %w", err))
	}
	return user.ID, nil
}

// CreateCredentials hashes password and inserts a new auth user through users,
// which may be bound to the caller's transaction.
func (l *LocalIdentity) CreateCredentials(ctx context.Context, users repository.AuthUserRepository, username, password string) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.AuthUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}
