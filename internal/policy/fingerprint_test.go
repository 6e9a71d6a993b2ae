package policy

import (
	"testing"

	"github.com/sessionguard/platform/internal/domain"
	"github.com/stretchr/testify/assert"
)

func fullFingerprint() domain.Fingerprint {
	return domain.Fingerprint{
		SignalCanvasHash:       "c0ffee",
		SignalAudioHash:        "124.04",
		SignalScreenWidth:      float64(1920),
		SignalScreenHeight:     float64(1080),
		SignalDevicePixelRatio: float64(2),
		SignalPlatform:         "MacIntel",
		SignalBrowserFamily:    "Chrome",
		SignalBrowserMajor:     "126",
		SignalTimezoneOffset:   float64(-480),
	}
}

func TestDefaultWeights_SumToOne(t *testing.T) {
	assert.Equal(t, WeightScale, DefaultWeights.Total())
}

func TestSimilarity_IdenticalIsOne(t *testing.T) {
	fp := fullFingerprint()
	assert.Equal(t, 1.0, Similarity(fp, fp))
	assert.Equal(t, 1.0, Similarity(fp, fullFingerprint()))
}

func TestSimilarity_EmptyIsZero(t *testing.T) {
	fp := fullFingerprint()

	assert.Equal(t, 0.0, Similarity(domain.Fingerprint{}, fp))
	assert.Equal(t, 0.0, Similarity(fp, domain.Fingerprint{}))
	assert.Equal(t, 0.0, Similarity(nil, fp))
	assert.Equal(t, 0.0, Similarity(fp, nil))
	assert.Equal(t, 0.0, Similarity(nil, nil))
}

func TestSimilarity_CanvasAndAudioDiffer(t *testing.T) {
	a := fullFingerprint()
	b := fullFingerprint()
	b[SignalCanvasHash] = "different"
	b[SignalAudioHash] = "different"

	assert.Equal(t, 0.5, Similarity(a, b))
}

func TestSimilarity_MissingSignalsAreIgnored(t *testing.T) {
	a := domain.Fingerprint{SignalCanvasHash: "x", SignalPlatform: "Win32"}
	b := domain.Fingerprint{SignalCanvasHash: "x", SignalAudioHash: "only-here"}

	// Only canvas_hash is shared, and it matches.
	assert.Equal(t, 1.0, Similarity(a, b))

	b[SignalCanvasHash] = "y"
	assert.Equal(t, 0.0, Similarity(a, b))
}

func TestSimilarity_NoSharedKnownSignals(t *testing.T) {
	a := domain.Fingerprint{"unknown_signal": "x"}
	b := domain.Fingerprint{"unknown_signal": "x"}
	assert.Equal(t, 0.0, Similarity(a, b))
}

func TestSimilarity_NumericTypesCompareByValue(t *testing.T) {
	a := domain.Fingerprint{SignalScreenWidth: 1920, SignalScreenHeight: int64(1080)}
	b := domain.Fingerprint{SignalScreenWidth: float64(1920), SignalScreenHeight: float64(1080)}
	assert.Equal(t, 1.0, Similarity(a, b))

	c := domain.Fingerprint{SignalScreenWidth: "1920", SignalScreenHeight: float64(1080)}
	assert.Equal(t, 0.5, Similarity(b, c))
}

func TestSimilarity_IsSymmetric(t *testing.T) {
	a := fullFingerprint()
	b := fullFingerprint()
	b[SignalPlatform] = "Linux x86_64"
	delete(b, SignalTimezoneOffset)

	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestSimilarity_Deterministic(t *testing.T) {
	a := fullFingerprint()
	b := fullFingerprint()
	b[SignalScreenWidth] = float64(1280)
	b[SignalBrowserMajor] = "125"

	first := Similarity(a, b)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Similarity(a, b))
	}
}

func TestSimilarity_Range(t *testing.T) {
	a := fullFingerprint()
	b := domain.Fingerprint{}
	for k := range a {
		b[k] = "mismatch"
	}
	s := Similarity(a, b)
	assert.Equal(t, 0.0, s)

	b[SignalCanvasHash] = a[SignalCanvasHash]
	s = Similarity(a, b)
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
	assert.Equal(t, 0.3, s)
}
