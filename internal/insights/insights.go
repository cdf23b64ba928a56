// Package insights turns analytics output into human-readable highlights
// and recommendations. The heuristics are deliberately simple; the value
// is a stable, deterministic ordering.
package insights

import (
	"fmt"
	"sort"

	"github.com/quietloop/pulse-server/internal/analytics"
)

// Kind classifies an insight and fixes its rank: records beat streaks,
// streaks beat trend reversals, then correlations, then pace warnings.
type Kind string

const (
	KindRecord      Kind = "record"
	KindStreak      Kind = "streak"
	KindTrend       Kind = "trend"
	KindCorrelation Kind = "correlation"
	KindPace        Kind = "pace"
)

var kindRank = map[Kind]int{
	KindRecord:      0,
	KindStreak:      1,
	KindTrend:       2,
	KindCorrelation: 3,
	KindPace:        4,
}

// Insight is one ranked highlight or recommendation.
type Insight struct {
	Kind           Kind   `json:"kind"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Input bundles the analytics results the generator consumes. Names maps
// KPI ids to display names; missing entries fall back to the id.
type Input struct {
	Names        map[string]string
	Records      []analytics.Record
	BestWeek     *analytics.WeekPoint // highest completion week, if known
	Streaks      []analytics.Streak
	Trends       map[string]*analytics.Trend
	Correlations []analytics.CorrelationPair
	Pace         map[string]analytics.Pace
}

// Minimum correlation strength worth surfacing.
const correlationCutoff = 0.6

// Generate produces the ranked insight list. Identical inputs always
// yield identical output.
func Generate(in Input) []Insight {
	var out []Insight

	if in.BestWeek != nil {
		out = append(out, Insight{
			Kind:    KindRecord,
			Message: fmt.Sprintf("Best week ever: %.0f%% completion in %s", in.BestWeek.Value, in.BestWeek.WeekKey),
		})
	}
	for _, r := range in.Records {
		out = append(out, Insight{
			Kind:    KindRecord,
			Message: fmt.Sprintf("Personal record on %s: %.1f in %s", in.name(r.KPIID), r.Value, r.WeekKey),
		})
	}

	for _, s := range in.Streaks {
		if s.Length < 2 {
			continue
		}
		out = append(out, Insight{
			Kind:    KindStreak,
			Message: fmt.Sprintf("%d-week streak from %s to %s", s.Length, s.StartKey, s.EndKey),
		})
	}

	for _, id := range sortedKeys(in.Trends) {
		tr := in.Trends[id]
		if tr == nil || tr.Direction == analytics.TrendStable {
			continue
		}
		ins := Insight{
			Kind:    KindTrend,
			Message: fmt.Sprintf("%s trending %s by %.1f", in.name(id), tr.Direction, tr.Magnitude),
		}
		if tr.Direction == analytics.TrendDown {
			ins.Recommendation = fmt.Sprintf("Recent weeks dipped on %s — worth a look", in.name(id))
		}
		out = append(out, ins)
	}

	for _, p := range in.Correlations {
		if p.Coefficient < correlationCutoff && p.Coefficient > -correlationCutoff {
			continue
		}
		relation := "moves with"
		if p.Coefficient < 0 {
			relation = "moves against"
		}
		out = append(out, Insight{
			Kind:           KindCorrelation,
			Message:        fmt.Sprintf("%s %s %s (r=%.2f)", in.name(p.A), relation, in.name(p.B), p.Coefficient),
			Recommendation: fmt.Sprintf("%s correlates with %s — consider scheduling them together", in.name(p.A), in.name(p.B)),
		})
	}

	for _, id := range sortedPaceKeys(in.Pace) {
		p := in.Pace[id]
		if p.OnTrack {
			continue
		}
		out = append(out, Insight{
			Kind:           KindPace,
			Message:        fmt.Sprintf("Behind pace on %s: projected %.0f vs expected %.0f", in.name(id), p.Projected, p.Expected),
			Recommendation: fmt.Sprintf("Catching up on %s needs a higher weekly rate", in.name(id)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return kindRank[out[i].Kind] < kindRank[out[j].Kind]
	})
	return out
}

func (in Input) name(id string) string {
	if n, ok := in.Names[id]; ok && n != "" {
		return n
	}
	return id
}

func sortedKeys(m map[string]*analytics.Trend) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedPaceKeys(m map[string]analytics.Pace) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
