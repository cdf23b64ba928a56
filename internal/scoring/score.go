// Package scoring turns raw weekly KPI values into completion percentages
// and status tiers. Everything here is pure: callers resolve overrides and
// fetch records, this package only computes.
package scoring

import (
	"math"

	"github.com/quietloop/pulse-server/internal/catalog"
)

// Status is the tier derived from a percentage.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
)

// Score is the output of scoring one KPI for one week. Percentage is
// always clamped to [0,100]; clamping is part of this contract, not the
// aggregator's job.
type Score struct {
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
}

// Targets is the effective target pair for a KPI in a given week: either
// the definition's own values or a per-week override.
type Targets struct {
	Target    float64
	MinTarget float64
	HasMin    bool
}

// TargetsFor returns the definition's own targets.
func TargetsFor(k catalog.KPI) Targets {
	return Targets{Target: k.Target, MinTarget: k.MinTarget, HasMin: k.HasMinTarget}
}

// primary returns the target used for ratio math: the minimum target when
// a range is defined, otherwise the point target.
func (t Targets) primary() float64 {
	if t.HasMin {
		return t.MinTarget
	}
	return t.Target
}

// ScoreKPI scores a single current value against the effective targets
// under the KPI's curve. Invalid numeric input normalizes to 0 rather
// than failing.
func ScoreKPI(k catalog.KPI, t Targets, current float64) Score {
	current = sanitize(current)

	switch k.Curve {
	case catalog.CurveBand:
		return scoreBand(k, t, current)
	case catalog.CurveEqual:
		return scoreEqual(t, current)
	case catalog.CurveReverse:
		return scoreReverse(t, current)
	default:
		return scoreStandard(t, current)
	}
}

// scoreBand implements the bounded optimal-window curve. The window
// [low,high] scores 100; the curve is deliberately non-monotonic on both
// flanks so that overshooting loses points too.
func scoreBand(k catalog.KPI, t Targets, avg float64) Score {
	low, high := k.EffectiveBand()

	minT := 6.0
	if t.HasMin {
		minT = t.MinTarget
	}
	maxT := 7.0
	if t.Target > 0 {
		maxT = t.Target
	}

	switch {
	case avg >= low && avg <= high:
		return Score{Percentage: 100, Status: StatusExcellent}
	case avg >= minT && avg < low:
		pct := 80 + (avg-minT)/(low-minT)*20
		return Score{Percentage: clamp(pct), Status: statusAbove90(pct)}
	case avg > high && avg <= maxT+1:
		pct := 100 - (avg-high)*20
		return Score{Percentage: clamp(pct), Status: statusAbove90(pct)}
	case avg < minT:
		pct := 0.0
		if minT > 0 {
			pct = avg / minT * 80
		}
		return Score{Percentage: clamp(pct), Status: statusFairPoor(pct)}
	default: // avg > maxT+1
		pct := math.Max(0, 80-(avg-(maxT+1))/2*80)
		return Score{Percentage: clamp(pct), Status: statusFairPoor(pct)}
	}
}

func scoreEqual(t Targets, current float64) Score {
	target := t.primary()
	diff := math.Abs(current - target)
	tolerance := target * 0.1
	maxDiff := target * 0.5

	if diff <= tolerance {
		return Score{Percentage: 100, Status: StatusExcellent}
	}
	// Zero target with a nonzero value: the tolerance window is empty and
	// there is no meaningful scale, so score 0.
	if maxDiff <= tolerance {
		return Score{Percentage: 0, Status: StatusPoor}
	}
	pct := math.Max(0, 100-(diff-tolerance)/(maxDiff-tolerance)*100)
	return Score{Percentage: clamp(pct), Status: statusLadder(pct)}
}

func scoreReverse(t Targets, current float64) Score {
	target := t.primary()
	if current <= target {
		return Score{Percentage: 100, Status: StatusExcellent}
	}
	maxExcess := target * 0.5
	if maxExcess <= 0 {
		return Score{Percentage: 0, Status: StatusPoor}
	}
	excess := current - target
	pct := math.Max(0, 100-excess/maxExcess*100)
	return Score{Percentage: clamp(pct), Status: statusLadder(pct)}
}

func scoreStandard(t Targets, current float64) Score {
	target := t.primary()
	if target <= 0 {
		return Score{Percentage: 0, Status: StatusPoor}
	}
	pct := math.Min(100, current/target*100)
	var status Status
	switch {
	case pct >= 100:
		status = StatusExcellent
	case pct >= 80:
		status = StatusGood
	case pct >= 50:
		status = StatusFair
	default:
		status = StatusPoor
	}
	return Score{Percentage: clamp(pct), Status: status}
}

// statusLadder applies the good/fair/poor thresholds shared by the equal
// and reverse curves below their 100% condition.
func statusLadder(pct float64) Status {
	switch {
	case pct >= 80:
		return StatusGood
	case pct >= 50:
		return StatusFair
	default:
		return StatusPoor
	}
}

func statusAbove90(pct float64) Status {
	if pct >= 90 {
		return StatusExcellent
	}
	return StatusGood
}

func statusFairPoor(pct float64) Status {
	if pct >= 50 {
		return StatusFair
	}
	return StatusPoor
}

// clamp bounds a percentage to [0,100].
func clamp(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// sanitize normalizes NaN and infinities to 0.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// AverageOfDays returns the mean of the nonzero entries of a daily-values
// slice. Zero entries mean "no data logged" and are excluded from both the
// numerator and the divisor. Returns 0 when no day has data.
func AverageOfDays(daily []float64) float64 {
	var sum float64
	var n int
	for _, v := range daily {
		v = sanitize(v)
		if v != 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
