// Package analytics provides stateless statistics over weekly history:
// rolling averages, trends, correlations, streaks, personal records and
// yearly pace projections. Degenerate inputs yield absence values, never
// errors.
package analytics

import (
	"math"
	"sort"
)

// WeekPoint is one observation in a weekly series.
type WeekPoint struct {
	WeekKey string  `json:"week_key"`
	Value   float64 `json:"value"`
}

// TrendDirection classifies the movement between two windows.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// stableThreshold is the minimum relative change treated as movement.
const stableThreshold = 0.01

// Trend compares the mean of the last lookback points against the mean of
// what came before them.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Magnitude float64        `json:"magnitude"` // absolute percentage delta
}

// RollingAverage returns, for each index, the mean of the trailing window
// ending there. Windows shorter than `window` at the start use what exists.
func RollingAverage(values []float64, window int) []float64 {
	if len(values) == 0 || window <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for _, v := range values[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(i-start+1)
	}
	return out
}

// ComputeTrend compares the most recent lookback points against the
// preceding lookback points (or all prior points when fewer exist).
// Returns nil when there is nothing to compare against.
func ComputeTrend(values []float64, lookback int) *Trend {
	if lookback <= 0 || len(values) <= lookback {
		return nil
	}

	recent := values[len(values)-lookback:]
	priorStart := len(values) - 2*lookback
	if priorStart < 0 {
		priorStart = 0
	}
	prior := values[priorStart : len(values)-lookback]
	if len(prior) == 0 {
		return nil
	}

	recentMean := mean(recent)
	priorMean := mean(prior)

	delta := recentMean - priorMean
	magnitude := math.Abs(delta)

	var relative float64
	if priorMean != 0 {
		relative = math.Abs(delta / priorMean)
	} else if delta != 0 {
		relative = 1
	}

	direction := TrendStable
	if relative >= stableThreshold {
		if delta > 0 {
			direction = TrendUp
		} else {
			direction = TrendDown
		}
	}
	return &Trend{Direction: direction, Magnitude: magnitude}
}

// Pearson returns the correlation coefficient of two paired series, or
// false when either series has zero variance or fewer than 2 points.
func Pearson(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, false
	}
	a, b = a[:n], b[:n]

	meanA, meanB := mean(a), mean(b)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}

// CorrelationPair is one upper-triangle entry of the correlation matrix.
type CorrelationPair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Coefficient float64 `json:"coefficient"`
}

// CorrelationMatrix computes pairwise Pearson coefficients over all
// series, upper triangle only, skipping degenerate pairs. Values are
// paired by week key, so KPIs logged over different week sets are only
// compared on the weeks both have data. Keys are paired in sorted order
// so output is deterministic.
func CorrelationMatrix(seriesByID map[string][]WeekPoint) []CorrelationPair {
	ids := make([]string, 0, len(seriesByID))
	for id := range seriesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var pairs []CorrelationPair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := alignByWeek(seriesByID[ids[i]], seriesByID[ids[j]])
			coeff, ok := Pearson(a, b)
			if !ok {
				continue
			}
			pairs = append(pairs, CorrelationPair{A: ids[i], B: ids[j], Coefficient: coeff})
		}
	}
	return pairs
}

// alignByWeek pairs two series on the weeks present in both, preserving
// the first series' chronological order.
func alignByWeek(sa, sb []WeekPoint) (a, b []float64) {
	byKey := make(map[string]float64, len(sb))
	for _, p := range sb {
		byKey[p.WeekKey] = p.Value
	}
	for _, p := range sa {
		if v, ok := byKey[p.WeekKey]; ok {
			a = append(a, p.Value)
			b = append(b, v)
		}
	}
	return a, b
}

// Streak is a maximal run of consecutive weeks at or above a threshold.
type Streak struct {
	StartKey string `json:"start_key"`
	EndKey   string `json:"end_key"`
	Length   int    `json:"length"`
}

// Streaks scans a chronological series and emits every maximal run of
// points with value >= threshold. Callers typically filter for length >= 2.
func Streaks(series []WeekPoint, threshold float64) []Streak {
	var runs []Streak
	var current *Streak
	for _, p := range series {
		if p.Value >= threshold {
			if current == nil {
				current = &Streak{StartKey: p.WeekKey}
			}
			current.EndKey = p.WeekKey
			current.Length++
			continue
		}
		if current != nil {
			runs = append(runs, *current)
			current = nil
		}
	}
	if current != nil {
		runs = append(runs, *current)
	}
	return runs
}

// Record is the best week ever observed for one KPI.
type Record struct {
	KPIID   string  `json:"kpi_id"`
	WeekKey string  `json:"week_key"`
	Value   float64 `json:"value"`
}

// PersonalRecords finds the single maximum value in each KPI's history.
// Ties go to the earliest occurrence. Output is sorted by KPI id.
func PersonalRecords(historyByID map[string][]WeekPoint) []Record {
	ids := make([]string, 0, len(historyByID))
	for id := range historyByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var records []Record
	for _, id := range ids {
		history := historyByID[id]
		if len(history) == 0 {
			continue
		}
		best := history[0]
		for _, p := range history[1:] {
			if p.Value > best.Value {
				best = p
			}
		}
		records = append(records, Record{KPIID: id, WeekKey: best.WeekKey, Value: best.Value})
	}
	return records
}

// Pace is a linear projection of a cumulative yearly metric.
type Pace struct {
	Expected  float64 `json:"expected"`
	Projected float64 `json:"projected"`
	OnTrack   bool    `json:"on_track"`
}

// ComputePace extrapolates the year-end total from the elapsed-day rate.
// With dayOfYear 0 there is no rate to extrapolate from and the projection
// stays 0.
func ComputePace(currentTotal, yearlyTarget float64, dayOfYear, daysInYear int) Pace {
	if daysInYear <= 0 {
		daysInYear = 365
	}
	p := Pace{}
	p.Expected = yearlyTarget * float64(dayOfYear) / float64(daysInYear)
	if dayOfYear > 0 {
		p.Projected = currentTotal * float64(daysInYear) / float64(dayOfYear)
	}
	p.OnTrack = currentTotal >= p.Expected
	return p
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
