package insights

import (
	"reflect"
	"strings"
	"testing"

	"github.com/quietloop/pulse-server/internal/analytics"
)

func fullInput() Input {
	return Input{
		Names: map[string]string{"dw": "Deep work", "sl": "Sleep"},
		Records: []analytics.Record{
			{KPIID: "dw", WeekKey: "2025-W10", Value: 25},
		},
		BestWeek: &analytics.WeekPoint{WeekKey: "2025-W12", Value: 94},
		Streaks: []analytics.Streak{
			{StartKey: "2025-W08", EndKey: "2025-W12", Length: 5},
			{StartKey: "2025-W01", EndKey: "2025-W01", Length: 1}, // filtered
		},
		Trends: map[string]*analytics.Trend{
			"dw": {Direction: analytics.TrendDown, Magnitude: 12},
			"sl": {Direction: analytics.TrendStable, Magnitude: 0.2}, // filtered
		},
		Correlations: []analytics.CorrelationPair{
			{A: "dw", B: "sl", Coefficient: 0.82},
			{A: "dw", B: "weak", Coefficient: 0.2}, // filtered
		},
		Pace: map[string]analytics.Pace{
			"dw": {Expected: 500, Projected: 320, OnTrack: false},
			"sl": {Expected: 100, Projected: 150, OnTrack: true}, // filtered
		},
	}
}

func TestGenerateOrdering(t *testing.T) {
	out := Generate(fullInput())

	var kinds []Kind
	for _, ins := range out {
		kinds = append(kinds, ins.Kind)
	}
	want := []Kind{KindRecord, KindRecord, KindStreak, KindTrend, KindCorrelation, KindPace}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("kind order = %v, want %v", kinds, want)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(fullInput())
	b := Generate(fullInput())
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different insight lists")
	}
}

func TestGenerateContent(t *testing.T) {
	out := Generate(fullInput())

	joined := ""
	for _, ins := range out {
		joined += ins.Message + "\n" + ins.Recommendation + "\n"
	}

	for _, want := range []string{
		"Best week ever",
		"Personal record on Deep work",
		"5-week streak",
		"Deep work trending down",
		"Deep work moves with Sleep",
		"Behind pace on Deep work",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("output missing %q\n%s", want, joined)
		}
	}

	// Short streaks, stable trends, weak correlations and on-track pace
	// are all filtered.
	for _, reject := range []string{"1-week streak", "Sleep trending", "weak", "Behind pace on Sleep"} {
		if strings.Contains(joined, reject) {
			t.Errorf("output should not contain %q\n%s", reject, joined)
		}
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	if out := Generate(Input{}); len(out) != 0 {
		t.Errorf("empty input produced %+v", out)
	}
}

func TestNameFallsBackToID(t *testing.T) {
	out := Generate(Input{
		Records: []analytics.Record{{KPIID: "mystery", WeekKey: "2025-W01", Value: 3}},
	})
	if len(out) != 1 || !strings.Contains(out[0].Message, "mystery") {
		t.Errorf("expected id fallback in %+v", out)
	}
}
