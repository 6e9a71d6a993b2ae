package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/repository"
)

// SessionRegistry manages session records for one unit of work.
type SessionRegistry struct {
	sessions repository.SessionRepository
	window   time.Duration
	now      func() time.Time
}

// NewSessionRegistry binds a registry to sessions. Sessions last seen within
// window count as current.
func NewSessionRegistry(sessions repository.SessionRepository, window time.Duration, now func() time.Time) *SessionRegistry {
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{sessions: sessions, window: window, now: now}
}

// FindRecentActive returns the user's most recently seen active session
// within the activity window, or nil.
func (r *SessionRegistry) FindRecentActive(ctx context.Context, userID uuid.UUID) (*domain.Session, error) {
	s, err := r.sessions.FindRecentActive(ctx, userID, r.now().Add(-r.window))
	if err != nil {
		return nil, fmt.Errorf("find recent active session: %w", err)
	}
	return s, nil
}

// Create inserts s as an active session.
func (r *SessionRegistry) Create(ctx context.Context, s *domain.Session) error {
	s.IsActive = true
	if err := r.sessions.Insert(ctx, s); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Evict closes a session with reason. It reports false when the session was
// already inactive or does not exist.
func (r *SessionRegistry) Evict(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	changed, err := r.sessions.Deactivate(ctx, id, &reason, r.now())
	if err != nil {
		return false, fmt.Errorf("evict session: %w", err)
	}
	return changed, nil
}

// Deactivate closes a session without stamping a kicked reason.
func (r *SessionRegistry) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	changed, err := r.sessions.Deactivate(ctx, id, nil, r.now())
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return changed, nil
}

// Touch stamps last_seen_at. Unknown ids yield a NOT_FOUND AppError.
func (r *SessionRegistry) Touch(ctx context.Context, id uuid.UUID) error {
	return r.sessions.Touch(ctx, id, r.now())
}

// Get returns a session by id, or nil.
func (r *SessionRegistry) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	s, err := r.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}
