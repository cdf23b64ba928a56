package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rawKPI is the YAML wire form. Optional numerics are pointers so absence
// can be told apart from zero. The legacy reverse_scoring/equal_is_better
// booleans are still accepted and folded into the curve field.
type rawKPI struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Target        float64  `yaml:"target"`
	MinTarget     *float64 `yaml:"min_target"`
	Unit          string   `yaml:"unit"`
	Weight        *float64 `yaml:"weight"`
	IsAverage     bool     `yaml:"is_average"`
	Curve         string   `yaml:"curve"`
	BandLow       float64  `yaml:"band_low"`
	BandHigh      float64  `yaml:"band_high"`
	Category      string   `yaml:"category"`
	YearlyTarget  float64  `yaml:"yearly_target"`
	ReverseLegacy bool     `yaml:"reverse_scoring"`
	EqualLegacy   bool     `yaml:"equal_is_better"`
}

type rawCatalog struct {
	KPIs []rawKPI `yaml:"kpis"`
}

// LoadFile reads and validates a KPI catalog YAML file.
func LoadFile(path string) ([]KPI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a KPI catalog document.
func Parse(data []byte) ([]KPI, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(raw.KPIs) == 0 {
		return nil, fmt.Errorf("catalog contains no KPIs")
	}

	seen := make(map[string]bool, len(raw.KPIs))
	kpis := make([]KPI, 0, len(raw.KPIs))
	for i, r := range raw.KPIs {
		kpi, err := fromRaw(r)
		if err != nil {
			return nil, fmt.Errorf("kpis[%d]: %w", i, err)
		}
		if seen[kpi.ID] {
			return nil, fmt.Errorf("kpis[%d]: duplicate id %q", i, kpi.ID)
		}
		seen[kpi.ID] = true
		kpis = append(kpis, kpi)
	}
	return kpis, nil
}

func fromRaw(r rawKPI) (KPI, error) {
	kpi := KPI{
		ID:           r.ID,
		Name:         r.Name,
		Target:       r.Target,
		Unit:         r.Unit,
		Weight:       1,
		IsAverage:    r.IsAverage,
		BandLow:      r.BandLow,
		BandHigh:     r.BandHigh,
		Category:     r.Category,
		YearlyTarget: r.YearlyTarget,
	}
	if r.MinTarget != nil {
		kpi.MinTarget = *r.MinTarget
		kpi.HasMinTarget = true
	}
	if r.Weight != nil {
		kpi.Weight = *r.Weight
	}
	kpi.Curve = resolveCurve(r)
	return kpi, Validate(kpi)
}

// resolveCurve folds the legacy boolean flags into the curve enum.
// When both legacy flags are set equal_is_better wins; authoring a
// definition with both is a catalog error upstream, so the fold just has
// to be deterministic.
func resolveCurve(r rawKPI) Curve {
	if r.Curve != "" {
		return Curve(r.Curve)
	}
	if r.EqualLegacy {
		return CurveEqual
	}
	if r.ReverseLegacy {
		return CurveReverse
	}
	return CurveStandard
}

// Validate checks a single definition for authoring errors.
func Validate(k KPI) error {
	if k.ID == "" {
		return fmt.Errorf("kpi id is required")
	}
	if k.Name == "" {
		return fmt.Errorf("kpi %s: name is required", k.ID)
	}
	if k.Target <= 0 && k.Curve == CurveStandard {
		return fmt.Errorf("kpi %s: target must be positive", k.ID)
	}
	if k.Weight < 0 {
		return fmt.Errorf("kpi %s: weight must not be negative", k.ID)
	}
	switch k.Curve {
	case CurveStandard, CurveReverse, CurveEqual, CurveBand:
	default:
		return fmt.Errorf("kpi %s: unknown curve %q", k.ID, k.Curve)
	}
	if k.HasMinTarget && k.MinTarget >= k.Target {
		return fmt.Errorf("kpi %s: min_target %.2f must be below target %.2f", k.ID, k.MinTarget, k.Target)
	}
	if k.Curve == CurveBand {
		low, high := k.EffectiveBand()
		if low >= high {
			return fmt.Errorf("kpi %s: band_low %.2f must be below band_high %.2f", k.ID, low, high)
		}
	}
	return nil
}
