package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
)

type pgAnomalyRepo struct {
	db DBTX
}

func (r *pgAnomalyRepo) Append(ctx context.Context, e *domain.AnomalyLogEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode anomaly details: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO account_anomaly_logs (id, user_id, event_type, details, risk_score_change, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, string(e.EventType), json.RawMessage(details), e.RiskScoreChange, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (r *pgAnomalyRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AnomalyLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, event_type, details, risk_score_change, created_at
		FROM account_anomaly_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var entries []domain.AnomalyLogEntry
	for rows.Next() {
		var e domain.AnomalyLogEntry
		var eventType string
		var details []byte
		if err := rows.Scan(&e.ID, &e.UserID, &eventType, &details, &e.RiskScoreChange, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		e.EventType = domain.AnomalyEventType(eventType)
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("decode anomaly details: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
