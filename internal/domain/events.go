package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(aggregate AggregateType, aggregateID string, userID uuid.UUID, evtType EventType, payload any, at time.Time) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		EventType:     evtType,
		PartitionKey:  userID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}

// NewSessionCreatedEvent records a session opened by login.
func NewSessionCreatedEvent(s *Session) OutboxDraft {
	return newDraft(AggregateSession, s.ID.String(), s.UserID, EventSessionCreated, map[string]interface{}{
		"session_id":       s.ID.String(),
		"user_id":          s.UserID.String(),
		"fingerprint_hash": s.FingerprintHash,
		"similarity_score": s.SimilarityScore,
		"ip_address":       s.IPAddress,
	}, s.CreatedAt)
}

// NewSessionRevokedEvent records a session closed by eviction, ban or logout.
func NewSessionRevokedEvent(sessionID, userID uuid.UUID, reason string, at time.Time) OutboxDraft {
	return newDraft(AggregateSession, sessionID.String(), userID, EventSessionRevoked, map[string]string{
		"session_id": sessionID.String(),
		"user_id":    userID.String(),
		"reason":     reason,
	}, at)
}

// NewAnomalyDetectedEvent mirrors an anomaly log entry onto the event stream.
func NewAnomalyDetectedEvent(entry *AnomalyLogEntry) OutboxDraft {
	return newDraft(AggregateAccount, entry.UserID.String(), entry.UserID, EventAnomalyDetected, entry, entry.CreatedAt)
}

// NewAccountStatusChangedEvent records a risk-driven status transition.
func NewAccountStatusChangedEvent(userID uuid.UUID, from, to AccountStatus, riskScore int, at time.Time) OutboxDraft {
	return newDraft(AggregateAccount, userID.String(), userID, EventAccountStatusChanged, map[string]interface{}{
		"user_id":    userID.String(),
		"from":       from,
		"to":         to,
		"risk_score": riskScore,
	}, at)
}
