package usage

import (
	"math"
	"time"
)

// RemainingMinutes prefers the projection's figure, then falls back to the
// block end time. A missing or unparseable end time yields false.
func RemainingMinutes(block SessionBlock, now time.Time) (int, bool) {
	if block.Projection != nil && block.Projection.RemainingMinutes != nil {
		return int(roundHalfUp(*block.Projection.RemainingMinutes)), true
	}
	if block.EndTime == nil {
		return 0, false
	}
	end, err := time.Parse(time.RFC3339Nano, *block.EndTime)
	if err != nil {
		return 0, false
	}
	minutes := int(roundHalfUp(end.Sub(now).Minutes()))
	if minutes < 0 {
		return 0, true
	}
	return minutes, true
}

// PercentageConsumed compares the block's tokens against tokenLimit when it is
// positive, otherwise against the projected total. Results are clamped to 0-100.
func PercentageConsumed(block SessionBlock, tokenLimit int64) (int, bool) {
	if block.TotalTokens == nil || *block.TotalTokens <= 0 {
		return 0, false
	}
	current := *block.TotalTokens

	if tokenLimit > 0 {
		return clampPercent(current / float64(tokenLimit) * 100), true
	}
	if block.Projection != nil && block.Projection.TotalTokens != nil && *block.Projection.TotalTokens > 0 {
		return clampPercent(current / *block.Projection.TotalTokens * 100), true
	}
	return 0, false
}

// ComputeMetrics derives both figures for one refresh.
func ComputeMetrics(block SessionBlock, tokenLimit int64, now time.Time) Metrics {
	var out Metrics
	if minutes, ok := RemainingMinutes(block, now); ok {
		out.RemainingMinutes = &minutes
	}
	if pct, ok := PercentageConsumed(block, tokenLimit); ok {
		out.PercentageConsumed = &pct
	}
	return out
}

func clampPercent(raw float64) int {
	pct := roundHalfUp(raw)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
