package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	minPasswordLen        = 6
	maxUsernameLen        = 128
	maxFingerprintHashLen = 256
	maxFingerprintSignals = 64
)

// ValidateCredentials checks that both credential fields are present.
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}
	if len(username) > maxUsernameLen {
		return fmt.Errorf("username too long")
	}
	return nil
}

// ValidateNewCredentials applies the provisioning rules on top of ValidateCredentials.
func ValidateNewCredentials(username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return err
	}
	if strings.ContainsAny(username, " @\t\n") {
		return fmt.Errorf("username must not contain spaces or '@'")
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

// ValidateFingerprint checks that a device fingerprint and its digest are present.
func ValidateFingerprint(raw Fingerprint, hash string) error {
	if len(raw) == 0 || strings.TrimSpace(hash) == "" {
		return fmt.Errorf("device fingerprint is required")
	}
	if len(raw) > maxFingerprintSignals {
		return fmt.Errorf("device fingerprint has too many signals")
	}
	if len(hash) > maxFingerprintHashLen {
		return fmt.Errorf("fingerprint hash too long")
	}
	return nil
}

// ParseSessionID parses a session identifier.
func ParseSessionID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session_id")
	}
	return id, nil
}
