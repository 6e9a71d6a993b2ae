package policy

import (
	"testing"
	"time"

	"github.com/sessionguard/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  domain.AccountStatus
	}{
		{0, domain.StatusActive},
		{39, domain.StatusActive},
		{40, domain.StatusLimited},
		{69, domain.StatusLimited},
		{70, domain.StatusBanned},
		{1000, domain.StatusBanned},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.score), "score %d", tt.score)
	}
}

func TestStatusFor_Monotone(t *testing.T) {
	prev := StatusFor(0)
	for score := 1; score <= 200; score++ {
		cur := StatusFor(score)
		assert.GreaterOrEqual(t, cur.Severity(), prev.Severity(), "score %d", score)
		prev = cur
	}
}

func TestThresholds_Custom(t *testing.T) {
	th := Thresholds{Limited: 10, Banned: 20}
	assert.Equal(t, domain.StatusActive, th.StatusFor(9))
	assert.Equal(t, domain.StatusLimited, th.StatusFor(10))
	assert.Equal(t, domain.StatusBanned, th.StatusFor(20))
}

func TestThresholds_StatusChanged(t *testing.T) {
	assert.False(t, DefaultThresholds.StatusChanged(0, 15))
	assert.True(t, DefaultThresholds.StatusChanged(30, 45))
	assert.False(t, DefaultThresholds.StatusChanged(45, 60))
	assert.True(t, DefaultThresholds.StatusChanged(60, 75))
}

func TestApplyDelta(t *testing.T) {
	assert.Equal(t, 15, ApplyDelta(0, 15))
	assert.Equal(t, 25, ApplyDelta(25, 0))
	assert.Equal(t, 25, ApplyDelta(25, -10), "risk never decreases here")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Minute, cfg.ActivityWindow)
	assert.Equal(t, 0.5, cfg.SimilarityThreshold)
	assert.Equal(t, 15, cfg.AnomalyRiskDelta)
	assert.Equal(t, Thresholds{Limited: 40, Banned: 70}, cfg.Thresholds)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.ActivityWindow = 0 }},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.SimilarityThreshold = -0.1 }},
		{"negative delta", func(c *Config) { c.AnomalyRiskDelta = -1 }},
		{"limited equals banned", func(c *Config) { c.Thresholds = Thresholds{Limited: 50, Banned: 50} }},
		{"no weights", func(c *Config) { c.Weights = nil }},
		{"weights short of scale", func(c *Config) { c.Weights = Weights{{SignalCanvasHash, 60}} }},
		{"negative weight", func(c *Config) {
			c.Weights = Weights{{SignalCanvasHash, 110}, {SignalAudioHash, -10}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Assess(t *testing.T) {
	cfg := DefaultConfig()
	a := fullFingerprint()

	t.Run("same device", func(t *testing.T) {
		sim, delta := cfg.Assess(a, fullFingerprint())
		assert.Equal(t, 1.0, sim)
		assert.Equal(t, 0, delta)
	})

	t.Run("exactly at threshold is not anomalous", func(t *testing.T) {
		halves := cfg
		halves.Weights = Weights{{"x", 50}, {"y", 50}}
		sim, delta := halves.Assess(
			domain.Fingerprint{"x": "1", "y": "1"},
			domain.Fingerprint{"x": "1", "y": "2"},
		)
		assert.Equal(t, 0.5, sim)
		assert.Equal(t, 0, delta)
	})

	t.Run("canvas and audio differ, default weights", func(t *testing.T) {
		b := fullFingerprint()
		b[SignalCanvasHash] = "other"
		b[SignalAudioHash] = "other"
		sim, delta := cfg.Assess(a, b)
		assert.Equal(t, 0.5, sim)
		assert.Equal(t, 0, delta)
		assert.False(t, cfg.Anomalous(sim))
	})

	t.Run("different device", func(t *testing.T) {
		b := fullFingerprint()
		b[SignalCanvasHash] = "other"
		b[SignalAudioHash] = "other"
		b[SignalPlatform] = "Win32"
		sim, delta := cfg.Assess(a, b)
		assert.Equal(t, 0.4, sim)
		assert.Equal(t, 15, delta)
		assert.True(t, cfg.Anomalous(sim))
	})
}
