package policy

import (
	"reflect"

	"github.com/sessionguard/platform/internal/domain"
)

// Fingerprint signal names sent by the client.
const (
	SignalCanvasHash       = "canvas_hash"
	SignalAudioHash        = "audio_hash"
	SignalScreenWidth      = "screen_width"
	SignalScreenHeight     = "screen_height"
	SignalDevicePixelRatio = "device_pixel_ratio"
	SignalPlatform         = "platform"
	SignalBrowserFamily    = "browser_family"
	SignalBrowserMajor     = "browser_major"
	SignalTimezoneOffset   = "timezone_offset"
)

// WeightScale is the sum of a complete weight table. Weights are integer
// hundredths so partial sums are exact and the score is a single division.
const WeightScale = 100

// SignalWeight assigns a weight, in hundredths, to one fingerprint signal.
type SignalWeight struct {
	Signal string
	Weight int
}

// Weights is an ordered weight table.
type Weights []SignalWeight

// DefaultWeights sum to WeightScale.
var DefaultWeights = Weights{
	{SignalCanvasHash, 30},
	{SignalAudioHash, 20},
	{SignalScreenWidth, 10},
	{SignalScreenHeight, 10},
	{SignalDevicePixelRatio, 5},
	{SignalPlatform, 10},
	{SignalBrowserFamily, 5},
	{SignalBrowserMajor, 5},
	{SignalTimezoneOffset, 5},
}

// Similarity scores two fingerprints with DefaultWeights.
func Similarity(a, b domain.Fingerprint) float64 {
	return DefaultWeights.Similarity(a, b)
}

// Similarity returns a score in [0,1]. Only signals present in both
// fingerprints count toward the denominator; a signal missing from either side
// is neither penalized nor rewarded. An empty fingerprint on either side
// scores 0.
func (w Weights) Similarity(a, b domain.Fingerprint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	var totalScore, totalWeight int
	for _, sw := range w {
		av, okA := a[sw.Signal]
		bv, okB := b[sw.Signal]
		if !okA || !okB {
			continue
		}
		totalWeight += sw.Weight
		if sameSignal(av, bv) {
			totalScore += sw.Weight
		}
	}

	if totalWeight <= 0 {
		return 0.0
	}
	return float64(totalScore) / float64(totalWeight)
}

// Total returns the sum of all weights.
func (w Weights) Total() int {
	var sum int
	for _, sw := range w {
		sum += sw.Weight
	}
	return sum
}

// sameSignal compares numbers by value regardless of Go type (JSON decodes to
// float64, callers may pass ints) and everything else structurally.
func sameSignal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
