package scoring

import "github.com/quietloop/pulse-server/internal/catalog"

// KPIResult pairs a definition with its computed score and the values it
// was scored from, ready for aggregation or display.
type KPIResult struct {
	KPI     catalog.KPI `json:"kpi"`
	Targets Targets     `json:"-"`
	Current float64     `json:"current"`
	Score   Score       `json:"score"`
}

// WeekCompletion aggregates per-KPI scores into one weighted completion
// percentage. Only KPIs with positive weight participate; with none, the
// result is 0. Inputs are already clamped, so the weighted mean needs no
// further clamping.
func WeekCompletion(results []KPIResult) float64 {
	var weighted, totalWeight float64
	for _, r := range results {
		if r.KPI.Weight <= 0 {
			continue
		}
		weighted += r.Score.Percentage * r.KPI.Weight
		totalWeight += r.KPI.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

// ScoreWeek scores every definition against a week's values. For
// average-type KPIs the current value is derived from the daily breakdown
// when one exists; a stored representative value is only used when no
// breakdown was logged at all.
func ScoreWeek(kpis []catalog.KPI, targetsByID map[string]Targets, values map[string]float64, daily map[string][]float64) []KPIResult {
	results := make([]KPIResult, 0, len(kpis))
	for _, k := range kpis {
		t, ok := targetsByID[k.ID]
		if !ok {
			t = TargetsFor(k)
		}

		var current float64
		if k.IsAverage {
			if d, ok := daily[k.ID]; ok {
				current = AverageOfDays(d)
			} else {
				current = sanitize(values[k.ID])
			}
		} else {
			current = sanitize(values[k.ID])
		}

		results = append(results, KPIResult{
			KPI:     k,
			Targets: t,
			Current: current,
			Score:   ScoreKPI(k, t, current),
		})
	}
	return results
}
