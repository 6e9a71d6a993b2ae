package policy

import (
	"fmt"
	"time"

	"github.com/sessionguard/platform/internal/domain"
)

// Thresholds maps a risk score onto an account status.
type Thresholds struct {
	Limited int `json:"limited"`
	Banned  int `json:"banned"`
}

// DefaultThresholds: >= 70 banned, >= 40 limited, otherwise active.
var DefaultThresholds = Thresholds{Limited: 40, Banned: 70}

// StatusFor returns the account status for a score under DefaultThresholds.
func StatusFor(riskScore int) domain.AccountStatus {
	return DefaultThresholds.StatusFor(riskScore)
}

// StatusFor is total and monotone: a higher score never yields a less severe status.
func (t Thresholds) StatusFor(riskScore int) domain.AccountStatus {
	switch {
	case riskScore >= t.Banned:
		return domain.StatusBanned
	case riskScore >= t.Limited:
		return domain.StatusLimited
	default:
		return domain.StatusActive
	}
}

// StatusChanged reports whether moving from oldScore to newScore crosses a threshold.
func (t Thresholds) StatusChanged(oldScore, newScore int) bool {
	return t.StatusFor(oldScore) != t.StatusFor(newScore)
}

// ApplyDelta adds a risk delta to the current score. Risk only accumulates
// here: negative deltas are ignored.
func ApplyDelta(currentScore, delta int) int {
	if delta < 0 {
		return currentScore
	}
	return currentScore + delta
}

// Config holds the tunables of the concurrent-login policy.
type Config struct {
	// ActivityWindow bounds how recently a session must have been seen to
	// count as the user's current active session.
	ActivityWindow time.Duration
	// SimilarityThreshold: a superseded session scoring below it is anomalous.
	SimilarityThreshold float64
	// AnomalyRiskDelta is added to the risk score per anomaly.
	AnomalyRiskDelta int
	Thresholds       Thresholds
	Weights          Weights
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ActivityWindow:      15 * time.Minute,
		SimilarityThreshold: 0.5,
		AnomalyRiskDelta:    15,
		Thresholds:          DefaultThresholds,
		Weights:             DefaultWeights,
	}
}

// Validate rejects configurations that would break the status ordering or
// let risk decrease.
func (c Config) Validate() error {
	if c.ActivityWindow <= 0 {
		return fmt.Errorf("activity window must be positive, got %s", c.ActivityWindow)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be within [0,1], got %v", c.SimilarityThreshold)
	}
	if c.AnomalyRiskDelta < 0 {
		return fmt.Errorf("anomaly risk delta must not be negative, got %d", c.AnomalyRiskDelta)
	}
	if c.Thresholds.Limited < 0 || c.Thresholds.Limited >= c.Thresholds.Banned {
		return fmt.Errorf("limited threshold (%d) must be non-negative and below banned threshold (%d)",
			c.Thresholds.Limited, c.Thresholds.Banned)
	}
	if len(c.Weights) == 0 {
		return fmt.Errorf("fingerprint weight table is empty")
	}
	for _, sw := range c.Weights {
		if sw.Weight < 0 {
			return fmt.Errorf("fingerprint weight for %s must not be negative, got %d", sw.Signal, sw.Weight)
		}
	}
	if total := c.Weights.Total(); total != WeightScale {
		return fmt.Errorf("fingerprint weights must sum to %d, got %d", WeightScale, total)
	}
	return nil
}

// Anomalous reports whether a superseding login at this similarity counts as
// a different device. It does not depend on the configured delta.
func (c Config) Anomalous(similarity float64) bool {
	return similarity < c.SimilarityThreshold
}

// Assess scores a new fingerprint against the one it supersedes and returns
// the similarity and the risk delta to apply.
func (c Config) Assess(previous, current domain.Fingerprint) (similarity float64, delta int) {
	similarity = c.Weights.Similarity(previous, current)
	if c.Anomalous(similarity) {
		return similarity, c.AnomalyRiskDelta
	}
	return similarity, 0
}
