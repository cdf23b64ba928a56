package models

import (
	"github.com/quietloop/pulse-server/internal/analytics"
	"github.com/quietloop/pulse-server/internal/catalog"
	"github.com/quietloop/pulse-server/internal/guidance"
	"github.com/quietloop/pulse-server/internal/insights"
	"github.com/quietloop/pulse-server/internal/rank"
)

// KPIListResponse is returned by the kpis endpoint.
type KPIListResponse struct {
	KPIs []catalog.KPI `json:"kpis"`
}

// UpsertValuesRequest writes values for one week. Both maps are optional;
// daily breakdowns are 7 Monday-first numbers with 0 meaning no data.
type UpsertValuesRequest struct {
	Values map[string]float64   `json:"values,omitempty"`
	Daily  map[string][]float64 `json:"daily,omitempty"`
}

// OverrideRequest replaces a KPI's targets for one week.
type OverrideRequest struct {
	Target    float64  `json:"target"`
	MinTarget *float64 `json:"min_target,omitempty"`
}

// KPIScore is one KPI's state within a week response.
type KPIScore struct {
	KPIID       string                `json:"kpi_id"`
	Name        string                `json:"name"`
	Unit        string                `json:"unit,omitempty"`
	Current     float64               `json:"current"`
	Target      float64               `json:"target"`
	MinTarget   *float64              `json:"min_target,omitempty"`
	Overridden  bool                  `json:"overridden,omitempty"`
	Percentage  float64               `json:"percentage"`
	Status      string                `json:"status"`
	Suggestions []guidance.Suggestion `json:"suggestions,omitempty"`
}

// WeekResponse is the scored state of one week.
type WeekResponse struct {
	WeekKey     string     `json:"week_key"`
	CurrentWeek bool       `json:"current_week"`
	Completion  float64    `json:"completion"`
	KPIs        []KPIScore `json:"kpis"`
}

// AnalyticsResponse bundles the history statistics.
type AnalyticsResponse struct {
	Completion     []analytics.WeekPoint       `json:"completion"`
	RollingAverage []float64                   `json:"rolling_average"`
	Trend          *analytics.Trend            `json:"trend,omitempty"`
	Correlations   []analytics.CorrelationPair `json:"correlations"`
	Streaks        []analytics.Streak          `json:"streaks"`
	Records        []analytics.Record          `json:"records"`
}

// InsightsResponse is returned by the insights endpoint.
type InsightsResponse struct {
	Insights []insights.Insight `json:"insights"`
}

// PaceResponse reports yearly pace for one KPI.
type PaceResponse struct {
	KPIID        string         `json:"kpi_id"`
	YearlyTarget float64        `json:"yearly_target"`
	CurrentTotal float64        `json:"current_total"`
	Pace         analytics.Pace `json:"pace"`
}

// RankResponse places a point total on the tier ladder.
type RankResponse struct {
	Points float64   `json:"points"`
	Rank   rank.Rank `json:"rank"`
}

// ImportResponse summarizes a CSV import.
type ImportResponse struct {
	BatchID      string   `json:"batch_id"`
	RowsImported int      `json:"rows_imported"`
	WeeksTouched int      `json:"weeks_touched"`
	Skipped      []string `json:"skipped,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	DB      string `json:"db"`
	Version string `json:"version"`
}
