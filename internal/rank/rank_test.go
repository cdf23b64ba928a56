package rank

import (
	"math"
	"testing"
)

func TestFromPoints(t *testing.T) {
	tests := []struct {
		name         string
		points       float64
		wantTier     string
		wantProgress float64
		wantDelta    float64
	}{
		{"zero points", 0, "Bronze", 0, 1000},
		{"mid bronze", 500, "Bronze", 50, 500},
		{"tier boundary", 1000, "Silver", 0, 1500},
		{"just under boundary", 999, "Bronze", 99.9, 1},
		{"gold", 3000, "Gold", 20, 2000},
		{"top tier floor", 10000, "Diamond", 100, 0},
		{"beyond top tier", 50000, "Diamond", 100, 0},
		{"negative clamps to zero", -10, "Bronze", 0, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromPoints(tt.points)
			if got.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", got.Tier, tt.wantTier)
			}
			if math.Abs(got.ProgressPct-tt.wantProgress) > 0.001 {
				t.Errorf("progress = %v, want %v", got.ProgressPct, tt.wantProgress)
			}
			if math.Abs(got.DeltaToNext-tt.wantDelta) > 0.001 {
				t.Errorf("delta = %v, want %v", got.DeltaToNext, tt.wantDelta)
			}
		})
	}
}

func TestProgressStaysInBounds(t *testing.T) {
	for points := 0.0; points <= 12000; points += 37 {
		r := FromPoints(points)
		if r.ProgressPct < 0 || r.ProgressPct > 100 {
			t.Fatalf("points %v: progress %v out of [0,100]", points, r.ProgressPct)
		}
	}
}
