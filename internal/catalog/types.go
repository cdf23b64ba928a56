// Package catalog holds KPI definitions: what is tracked, how it is
// targeted, and which scoring curve applies.
package catalog

import "strings"

// Curve selects the scoring policy for a KPI.
type Curve string

const (
	// CurveStandard scores higher values better, as a ratio to target.
	CurveStandard Curve = "standard"
	// CurveReverse scores lower values better; at or under target is 100%.
	CurveReverse Curve = "reverse"
	// CurveEqual scores values closest to target best.
	CurveEqual Curve = "equal"
	// CurveBand scores a bounded optimal window; both too little and too
	// much lose points (e.g. average nightly sleep).
	CurveBand Curve = "band"
)

// Default band window: values in [6.5, 7.0] score 100%.
const (
	DefaultBandLow  = 6.5
	DefaultBandHigh = 7.0
)

// UnitKind classifies a unit for daily guidance distribution.
type UnitKind string

const (
	// UnitDiscrete units are counted in whole items and get whole-number
	// guidance.
	UnitDiscrete UnitKind = "discrete"
	// UnitContinuous units accept fractional guidance.
	UnitContinuous UnitKind = "continuous"
)

// KPI is a single tracked metric definition.
type KPI struct {
	ID           string  `yaml:"id" json:"id"`
	Name         string  `yaml:"name" json:"name"`
	Target       float64 `yaml:"target" json:"target"`
	MinTarget    float64 `yaml:"min_target,omitempty" json:"min_target,omitempty"`
	HasMinTarget bool    `yaml:"-" json:"has_min_target"`
	Unit         string  `yaml:"unit,omitempty" json:"unit,omitempty"`
	Weight       float64 `yaml:"weight,omitempty" json:"weight"`
	IsAverage    bool    `yaml:"is_average,omitempty" json:"is_average"`
	Curve        Curve   `yaml:"curve,omitempty" json:"curve"`
	BandLow      float64 `yaml:"band_low,omitempty" json:"band_low,omitempty"`
	BandHigh     float64 `yaml:"band_high,omitempty" json:"band_high,omitempty"`
	Category     string  `yaml:"category,omitempty" json:"category,omitempty"`
	YearlyTarget float64 `yaml:"yearly_target,omitempty" json:"yearly_target,omitempty"`
}

// discreteUnits are units conventionally counted in whole items.
var discreteUnits = map[string]bool{
	"sessions": true,
	"session":  true,
	"requests": true,
	"request":  true,
	"bugs":     true,
	"bug":      true,
	"items":    true,
	"item":     true,
	"days":     true,
	"day":      true,
	"prs":      true,
	"commits":  true,
	"posts":    true,
	"workouts": true,
}

// KindOfUnit returns the guidance distribution kind for a unit string.
func KindOfUnit(unit string) UnitKind {
	if discreteUnits[strings.ToLower(strings.TrimSpace(unit))] {
		return UnitDiscrete
	}
	return UnitContinuous
}

// UnitKind returns the guidance distribution kind for this KPI's unit.
func (k KPI) UnitKind() UnitKind {
	return KindOfUnit(k.Unit)
}

// EffectiveBand returns the optimal window for a band-curve KPI, falling
// back to the defaults when unset.
func (k KPI) EffectiveBand() (low, high float64) {
	low, high = k.BandLow, k.BandHigh
	if low == 0 {
		low = DefaultBandLow
	}
	if high == 0 {
		high = DefaultBandHigh
	}
	return low, high
}
