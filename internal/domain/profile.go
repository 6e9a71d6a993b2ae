package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is derived from a profile's risk score.
type AccountStatus string

const (
	StatusActive  AccountStatus = "active"
	StatusLimited AccountStatus = "limited"
	StatusBanned  AccountStatus = "banned"
)

// Severity orders statuses from least to most restrictive.
func (s AccountStatus) Severity() int {
	switch s {
	case StatusActive:
		return 0
	case StatusLimited:
		return 1
	case StatusBanned:
		return 2
	default:
		return -1
	}
}

// UserProfile holds a user_profiles row.
type UserProfile struct {
	UserID          uuid.UUID     `json:"user_id"`
	Username        string        `json:"username"`
	RiskScore       int           `json:"risk_score"`
	AccountStatus   AccountStatus `json:"account_status"`
	LastLoginAt     *time.Time    `json:"last_login_at,omitempty"`
	StatusUpdatedAt *time.Time    `json:"status_updated_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// AuthUser holds locally managed credentials from auth_users.
type AuthUser struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
