package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sessionguard/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ProfileRepository provides access to user_profiles.
type ProfileRepository interface {
	// FindByUserID returns a profile, or nil if not found.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the profile.
	// Outside a transaction it behaves like FindByUserID.
	LockForUpdate(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)

	// Create inserts a new profile.
	Create(ctx context.Context, profile *domain.UserProfile) error

	// Update persists risk_score, account_status, last_login_at and status_updated_at.
	Update(ctx context.Context, profile *domain.UserProfile) error
}

// SessionRepository provides access to user_sessions.
type SessionRepository interface {
	// FindByID returns a session, or nil if not found.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	// FindRecentActive returns the most recently seen active session of the
	// user with last_seen_at >= since, or nil.
	FindRecentActive(ctx context.Context, userID uuid.UUID, since time.Time) (*domain.Session, error)

	// ListByUser returns the user's sessions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Session, error)

	// Insert creates a new session row.
	Insert(ctx context.Context, s *domain.Session) error

	// Deactivate closes the session if it is still active, stamping the kicked
	// reason (nil leaves it empty) and last_seen_at. It reports whether this call
	// changed the row; closing an inactive or unknown session returns false, nil.
	Deactivate(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (bool, error)

	// Touch sets last_seen_at. Returns domain.ErrNotFound if the session does not exist.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AnomalyRepository provides access to the append-only account_anomaly_logs.
type AnomalyRepository interface {
	// Append inserts a new entry. Entries are never updated.
	Append(ctx context.Context, entry *domain.AnomalyLogEntry) error

	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AnomalyLogEntry, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, draft domain.OutboxDraft) error

	// FetchUnpublished returns the oldest unpublished events for the outbox relay.
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error)

	// MarkPublished deletes published events.
	MarkPublished(ctx context.Context, ids []int64) error
}

// AuthUserRepository provides access to auth_users.
type AuthUserRepository interface {
	// FindByUsername returns an auth user, or nil if not found.
	FindByUsername(ctx context.Context, username string) (*domain.AuthUser, error)

	// Create inserts a new auth user. Returns domain.ErrConflict if the username is taken.
	Create(ctx context.Context, user *domain.AuthUser) error
}

// Store groups the repositories over one storage backend.
type Store interface {
	Profiles() ProfileRepository
	Sessions() SessionRepository
	Anomalies() AnomalyRepository
	Outbox() OutboxRepository
	AuthUsers() AuthUserRepository

	// InTx runs fn in a single unit of work. The Store passed to fn is bound to
	// that unit; fn's error rolls it back. Calling InTx on a bound Store runs fn
	// in the existing unit.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}
