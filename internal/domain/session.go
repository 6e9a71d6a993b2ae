package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kicked reasons stamped on sessions closed by the system. RevokeReasonLogout
// only appears on session.revoked events.
const (
	KickedReasonNewLogin = "new_login"
	KickedReasonBanned   = "account_banned"
	RevokeReasonLogout   = "logout"
)

// Fingerprint maps named device signals to opaque comparable values, as sent
// by the client. Values decoded from JSON are strings, float64 or bool.
type Fingerprint map[string]any

// Session represents a user_sessions row.
type Session struct {
	ID              uuid.UUID   `json:"id"`
	UserID          uuid.UUID   `json:"user_id"`
	FingerprintRaw  Fingerprint `json:"fingerprint_raw"`
	FingerprintHash string      `json:"fingerprint_hash"`
	IPAddress       string      `json:"ip_address,omitempty"`
	UserAgent       string      `json:"user_agent,omitempty"`
	IsActive        bool        `json:"is_active"`
	CreatedAt       time.Time   `json:"created_at"`
	LastSeenAt      time.Time   `json:"last_seen_at"`
	SimilarityScore float64     `json:"similarity_score"`
	KickedReason    *string     `json:"kicked_reason,omitempty"`
}

// SeenSince reports whether the session is active and was seen at or after t.
func (s *Session) SeenSince(t time.Time) bool {
	return s.IsActive && !s.LastSeenAt.Before(t)
}
