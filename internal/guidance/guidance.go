// Package guidance computes "what should I log today" suggestions for the
// remaining empty days of the current week. Suggestions are read-only
// advice; they are never written back as actual values.
package guidance

import (
	"math"

	"github.com/quietloop/pulse-server/internal/catalog"
	"github.com/quietloop/pulse-server/internal/weekkey"
)

// Suggestion is the advice for one day slot.
type Suggestion struct {
	Day   int     `json:"day"` // Monday-first index 0-6
	Value float64 `json:"value"`
	// Passive marks a reminder shown after the weekly target is already
	// met, as opposed to a value still required to reach it.
	Passive bool `json:"passive,omitempty"`
}

// ForWeek computes suggestions for the empty future days of a week.
// todayIndex is injected by the caller (0-6, Monday-first) so the function
// stays pure; callers only pass the week containing the real current date.
// Days with an existing value and past days never receive a suggestion.
func ForWeek(daily []float64, minTarget float64, todayIndex int, isAverage bool, unit catalog.UnitKind) []Suggestion {
	if todayIndex < 0 || todayIndex >= weekkey.DaysPerWeek {
		return nil
	}
	if minTarget <= 0 || math.IsNaN(minTarget) {
		return nil
	}

	day := make([]float64, weekkey.DaysPerWeek)
	copy(day, daily)
	for i, v := range day {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			day[i] = 0
		}
	}

	var emptyFuture []int
	for i := todayIndex; i < weekkey.DaysPerWeek; i++ {
		if day[i] == 0 {
			emptyFuture = append(emptyFuture, i)
		}
	}
	if len(emptyFuture) == 0 {
		return nil
	}

	var accumulated float64
	for _, v := range day {
		accumulated += v
	}

	if isAverage {
		return averageSuggestions(emptyFuture, minTarget, accumulated)
	}

	remaining := math.Max(0, minTarget-accumulated)
	if remaining == 0 {
		return nil
	}
	if unit == catalog.UnitDiscrete {
		return discreteSuggestions(emptyFuture, remaining)
	}
	return continuousSuggestions(emptyFuture, remaining)
}

// averageSuggestions spreads the shortfall against minTarget*7 evenly over
// the empty future days. When the week is already covered, the raw daily
// minimum is shown as a passive reminder instead.
func averageSuggestions(emptyFuture []int, minTarget, accumulated float64) []Suggestion {
	totalNeeded := minTarget * weekkey.DaysPerWeek
	remaining := math.Max(0, totalNeeded-accumulated)

	if remaining == 0 {
		out := make([]Suggestion, 0, len(emptyFuture))
		for _, i := range emptyFuture {
			out = append(out, Suggestion{Day: i, Value: minTarget, Passive: true})
		}
		return out
	}

	perDay := round1(remaining / float64(len(emptyFuture)))
	out := make([]Suggestion, 0, len(emptyFuture))
	for _, i := range emptyFuture {
		out = append(out, Suggestion{Day: i, Value: perDay})
	}
	return out
}

// discreteSuggestions hands out whole items. With enough empty days each
// of the first `remaining` days gets exactly 1; otherwise the load is
// split largest-remainder style so the suggested values sum to remaining.
func discreteSuggestions(emptyFuture []int, remaining float64) []Suggestion {
	n := len(emptyFuture)
	need := int(math.Ceil(remaining))

	out := make([]Suggestion, 0, n)
	if n >= need {
		for idx, i := range emptyFuture {
			if idx < need {
				out = append(out, Suggestion{Day: i, Value: 1})
			}
		}
		return out
	}

	base := need / n
	extra := need % n
	for idx, i := range emptyFuture {
		v := float64(base)
		if idx < extra {
			v++
		}
		out = append(out, Suggestion{Day: i, Value: v})
	}
	return out
}

// continuousSuggestions rounds the even split up on every day, so the
// cumulative suggestions slightly overshoot rather than undershoot.
func continuousSuggestions(emptyFuture []int, remaining float64) []Suggestion {
	perDay := math.Ceil(remaining / float64(len(emptyFuture)))
	out := make([]Suggestion, 0, len(emptyFuture))
	for _, i := range emptyFuture {
		out = append(out, Suggestion{Day: i, Value: perDay})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
