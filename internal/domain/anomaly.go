package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyEventType is the closed set of anomaly kinds the risk system records.
type AnomalyEventType string

const (
	AnomalyConcurrentLoginDifferentDevice AnomalyEventType = "concurrent_login_different_device"
)

// AnomalyDetails is the structured payload stored with an anomaly entry.
type AnomalyDetails struct {
	OldFingerprintHash string  `json:"old_fingerprint_hash"`
	NewFingerprintHash string  `json:"new_fingerprint_hash"`
	SimilarityScore    float64 `json:"similarity_score"`
	OldIPCountry       string  `json:"old_ip_country,omitempty"`
	NewIPCountry       string  `json:"new_ip_country,omitempty"`
}

// AnomalyLogEntry is an append-only account_anomaly_logs row.
type AnomalyLogEntry struct {
	ID              uuid.UUID        `json:"id"`
	UserID          uuid.UUID        `json:"user_id"`
	EventType       AnomalyEventType `json:"event_type"`
	Details         AnomalyDetails   `json:"details"`
	RiskScoreChange int              `json:"risk_score_change"`
	CreatedAt       time.Time        `json:"created_at"`
}
