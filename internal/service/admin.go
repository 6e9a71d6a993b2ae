package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/repository"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// CredentialIssuer creates local credentials inside the caller's transaction.
type CredentialIssuer interface {
	CreateCredentials(ctx context.Context, users repository.AuthUserRepository, username, password string) (uuid.UUID, error)
}

// AdminService serves the audit views and user provisioning.
type AdminService struct {
	store       repository.Store
	credentials CredentialIssuer
	logger      *slog.Logger
	now         func() time.Time
}

// NewAdminService creates an AdminService. A nil credentials issuer disables
// provisioning, for deployments whose users live in an external provider.
func NewAdminService(store repository.Store, credentials CredentialIssuer, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:       store,
		credentials: credentials,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateUserInput holds the provisioning request fields.
type CreateUserInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUser provisions credentials and an active, zero-risk profile in one
// transaction.
func (s *AdminService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.UserProfile, error) {
	if s.credentials == nil {
		return nil, domain.ErrForbidden("users are provisioned by the external identity provider")
	}
	username := strings.TrimSpace(input.Username)
	if err := domain.ValidateNewCredentials(username, input.Password); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	var profile *domain.UserProfile
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		userID, err := s.credentials.CreateCredentials(ctx, tx.AuthUsers(), username, input.Password)
		if err != nil {
			return err
		}
		profile = &domain.UserProfile{
			UserID:        userID,
			Username:      username,
			AccountStatus: domain.StatusActive,
			CreatedAt:     s.now().UTC(),
		}
		return tx.Profiles().Create(ctx, profile)
	})
	if domain.IsCode(err, domain.CodeConflict) {
		return nil, err
	}
	if err != nil {
		s.logger.Error("create user failed", "username", username, "error", err)
		return nil, domain.ErrInternal("create user failed", err)
	}

	s.logger.Info("user created", "user_id", profile.UserID, "username", username)
	return profile, nil
}

// ListAnomalies returns a user's anomaly log, newest first.
func (s *AdminService) ListAnomalies(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AnomalyLogEntry, error) {
	entries, err := s.store.Anomalies().ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, domain.ErrInternal("list anomalies failed", fmt.Errorf("user %s: %w", userID, err))
	}
	if entries == nil {
		entries = []domain.AnomalyLogEntry{}
	}
	return entries, nil
}

// ListSessions returns a user's sessions, newest first, active or not.
func (s *AdminService) ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Session, error) {
	sessions, err := s.store.Sessions().ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, domain.ErrInternal("list sessions failed", fmt.Errorf("user %s: %w", userID, err))
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// GetProfile returns a user's profile.
func (s *AdminService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	p, err := s.store.Profiles().FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("find profile failed", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("profile", userID.String())
	}
	return p, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultAuditLimit
	case limit > maxAuditLimit:
		return maxAuditLimit
	default:
		return limit
	}
}
