// Package rank maps an accumulated point total onto a discrete tier
// ladder with progress within the current tier.
package rank

// Tier is one step of the ladder.
type Tier struct {
	Name string
	Min  float64
	Max  float64 // inclusive upper bound; the top tier has no bound
}

// tiers are fixed ascending thresholds. The top tier's Max is unused.
var tiers = []Tier{
	{Name: "Bronze", Min: 0, Max: 999},
	{Name: "Silver", Min: 1000, Max: 2499},
	{Name: "Gold", Min: 2500, Max: 4999},
	{Name: "Platinum", Min: 5000, Max: 9999},
	{Name: "Diamond", Min: 10000, Max: 0},
}

// Rank is the tier placement for a point total.
type Rank struct {
	Tier        string  `json:"tier"`
	ProgressPct float64 `json:"progress_pct"`
	DeltaToNext float64 `json:"delta_to_next"` // 0 at the top tier
}

// FromPoints places a point total on the ladder. Negative totals count
// as 0. The top tier always reports 100% progress and no delta.
func FromPoints(points float64) Rank {
	if points < 0 {
		points = 0
	}

	idx := 0
	for i, t := range tiers {
		if points >= t.Min {
			idx = i
		}
	}
	t := tiers[idx]

	if idx == len(tiers)-1 {
		return Rank{Tier: t.Name, ProgressPct: 100, DeltaToNext: 0}
	}

	progress := (points - t.Min) / (t.Max - t.Min + 1) * 100
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return Rank{
		Tier:        t.Name,
		ProgressPct: progress,
		DeltaToNext: tiers[idx+1].Min - points,
	}
}

// Tiers returns a copy of the ladder, lowest first.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}
