package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sessionguard/platform/internal/domain"
)

type pgSessionRepo struct {
	db DBTX
}

const sessionColumns = `id, user_id, fingerprint_raw, fingerprint_hash, ip_address, user_agent,
	is_active, created_at, last_seen_at, similarity_score, kicked_reason`

func (r *pgSessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FindRecentActive tolerates several matching rows and returns the most recently seen.
func (r *pgSessionRepo) FindRecentActive(ctx context.Context, userID uuid.UUID, since time.Time) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1 AND is_active AND last_seen_at >= $2
		ORDER BY last_seen_at DESC, created_at DESC
		LIMIT 1`, userID, since)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *pgSessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *pgSessionRepo) Insert(ctx context.Context, s *domain.Session) error {
	raw, err := json.Marshal(s.FingerprintRaw)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO user_sessions
		  (id, user_id, fingerprint_raw, fingerprint_hash, ip_address, user_agent,
		   is_active, created_at, last_seen_at, similarity_score, kicked_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, json.RawMessage(raw), s.FingerprintHash, s.IPAddress, s.UserAgent,
		s.IsActive, s.CreatedAt, s.LastSeenAt, s.SimilarityScore, s.KickedReason,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Deactivate only matches active rows, so two racing closers cannot both win.
func (r *pgSessionRepo) Deactivate(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_sessions
		SET is_active = false, kicked_reason = COALESCE($2, kicked_reason), last_seen_at = $3
		WHERE id = $1 AND is_active`, id, reason, at)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgSessionRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE user_sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("session", id.String())
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	s := &domain.Session{}
	var raw []byte
	err := row.Scan(&s.ID, &s.UserID, &raw, &s.FingerprintHash, &s.IPAddress, &s.UserAgent,
		&s.IsActive, &s.CreatedAt, &s.LastSeenAt, &s.SimilarityScore, &s.KickedReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.FingerprintRaw); err != nil {
			return nil, fmt.Errorf("decode fingerprint: %w", err)
		}
	}
	return s, nil
}
