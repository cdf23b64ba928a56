package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quietloop/pulse-server/internal/analytics"
	"github.com/quietloop/pulse-server/internal/catalog"
	"github.com/quietloop/pulse-server/internal/config"
	"github.com/quietloop/pulse-server/internal/db"
	"github.com/quietloop/pulse-server/internal/guidance"
	"github.com/quietloop/pulse-server/internal/importer"
	"github.com/quietloop/pulse-server/internal/insights"
	"github.com/quietloop/pulse-server/internal/models"
	"github.com/quietloop/pulse-server/internal/rank"
	"github.com/quietloop/pulse-server/internal/scoring"
	"github.com/quietloop/pulse-server/internal/weekkey"
)

// Completion streaks below this threshold don't count.
const streakThreshold = 70.0

// Weeks of history a trend comparison looks back over.
const trendLookback = 4

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

type Handlers struct {
	cfg      *config.Config
	db       *db.DB
	timezone *time.Location
	now      func() time.Time
}

func NewHandlers(cfg *config.Config, database *db.DB) *Handlers {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}
	return &Handlers{
		cfg:      cfg,
		db:       database,
		timezone: tz,
		now:      time.Now,
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:  "ok",
		DB:      h.checkDB(),
		Version: "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkDB() string {
	if err := h.db.Ping(); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

// ListKPIs handles GET /kpis
func (h *Handlers) ListKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.db.ListKPIs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing kpis failed", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, models.KPIListResponse{KPIs: kpis})
}

// UpsertKPI handles POST /kpis
func (h *Handlers) UpsertKPI(w http.ResponseWriter, r *http.Request) {
	var k catalog.KPI
	if err := json.NewDecoder(r.Body).Decode(&k); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if k.Curve == "" {
		k.Curve = catalog.CurveStandard
	}
	if err := catalog.Validate(k); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_KPI")
		return
	}
	if err := h.db.UpsertKPI(k); err != nil {
		writeError(w, http.StatusInternalServerError, "saving kpi failed", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

// GetWeek handles GET /weeks/{weekKey}
func (h *Handlers) GetWeek(w http.ResponseWriter, r *http.Request) {
	weekKey := chi.URLParam(r, "weekKey")
	if !weekkey.Valid(weekKey) {
		writeError(w, http.StatusBadRequest, "malformed week key", "INVALID_WEEK_KEY")
		return
	}

	kpis, rec, overrides, err := h.loadWeek(weekKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading week failed", "DB_ERROR")
		return
	}

	targets := effectiveTargets(kpis, overrides)
	results := scoring.ScoreWeek(kpis, targets, rec.Values, rec.Daily)

	now := h.now().In(h.timezone)
	currentWeek := weekKey == weekkey.FromTime(now)
	todayIndex := weekkey.DayIndex(now)

	resp := models.WeekResponse{
		WeekKey:     weekKey,
		CurrentWeek: currentWeek,
		Completion:  scoring.WeekCompletion(results),
	}

	for _, res := range results {
		score := models.KPIScore{
			KPIID:      res.KPI.ID,
			Name:       res.KPI.Name,
			Unit:       res.KPI.Unit,
			Current:    res.Current,
			Target:     res.Targets.Target,
			Percentage: res.Score.Percentage,
			Status:     string(res.Score.Status),
		}
		if res.Targets.HasMin {
			mt := res.Targets.MinTarget
			score.MinTarget = &mt
		}
		if _, ok := overrides[res.KPI.ID]; ok {
			score.Overridden = true
		}
		if currentWeek {
			minTarget := res.Targets.MinTarget
			if !res.Targets.HasMin {
				minTarget = res.Targets.Target
			}
			score.Suggestions = guidance.ForWeek(
				rec.Daily[res.KPI.ID],
				minTarget,
				todayIndex,
				res.KPI.IsAverage,
				res.KPI.UnitKind(),
			)
		}
		resp.KPIs = append(resp.KPIs, score)
	}

	writeJSON(w, http.StatusOK, resp)
}

// PutValues handles PUT /weeks/{weekKey}/values
func (h *Handlers) PutValues(w http.ResponseWriter, r *http.Request) {
	weekKey := chi.URLParam(r, "weekKey")
	if !weekkey.Valid(weekKey) {
		writeError(w, http.StatusBadRequest, "malformed week key", "INVALID_WEEK_KEY")
		return
	}

	var req models.UpsertValuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if len(req.Values) == 0 && len(req.Daily) == 0 {
		writeError(w, http.StatusBadRequest, "values or daily required", "EMPTY_REQUEST")
		return
	}

	kpis, err := h.db.ListKPIs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing kpis failed", "DB_ERROR")
		return
	}
	byID := make(map[string]catalog.KPI, len(kpis))
	for _, k := range kpis {
		byID[k.ID] = k
	}

	// Collect every touched KPI id so a daily-only write still lands.
	touched := make(map[string]bool)
	for id := range req.Values {
		touched[id] = true
	}
	for id, daily := range req.Daily {
		if len(daily) != weekkey.DaysPerWeek {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("daily breakdown for %s must have %d entries", id, weekkey.DaysPerWeek),
				"INVALID_DAILY")
			return
		}
		touched[id] = true
	}
	for id := range touched {
		if _, ok := byID[id]; !ok {
			writeError(w, http.StatusBadRequest, "unknown kpi "+id, "UNKNOWN_KPI")
			return
		}
	}

	for id := range touched {
		daily := req.Daily[id]
		value, explicit := req.Values[id]
		if !explicit {
			// Derive the weekly value from the breakdown.
			if byID[id].IsAverage {
				value = scoring.AverageOfDays(daily)
			} else {
				for _, v := range daily {
					value += v
				}
			}
		}
		if err := h.db.UpsertWeekValue(weekKey, id, value, daily); err != nil {
			writeError(w, http.StatusInternalServerError, "saving values failed", "DB_ERROR")
			return
		}
	}

	h.GetWeek(w, r)
}

// PutOverride handles PUT /weeks/{weekKey}/overrides/{kpiID}
func (h *Handlers) PutOverride(w http.ResponseWriter, r *http.Request) {
	weekKey := chi.URLParam(r, "weekKey")
	kpiID := chi.URLParam(r, "kpiID")
	if !weekkey.Valid(weekKey) {
		writeError(w, http.StatusBadRequest, "malformed week key", "INVALID_WEEK_KEY")
		return
	}

	kpi, err := h.db.GetKPI(kpiID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading kpi failed", "DB_ERROR")
		return
	}
	if kpi == nil {
		writeError(w, http.StatusNotFound, "unknown kpi "+kpiID, "UNKNOWN_KPI")
		return
	}

	var req models.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if req.Target <= 0 {
		writeError(w, http.StatusBadRequest, "target must be positive", "INVALID_TARGET")
		return
	}
	if req.MinTarget != nil && *req.MinTarget >= req.Target {
		writeError(w, http.StatusBadRequest, "min_target must be below target", "INVALID_TARGET")
		return
	}

	o := db.Override{Target: req.Target}
	if req.MinTarget != nil {
		o.MinTarget = *req.MinTarget
		o.HasMin = true
	}
	if err := h.db.SetOverride(weekKey, kpiID, o); err != nil {
		writeError(w, http.StatusInternalServerError, "saving override failed", "DB_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteOverride handles DELETE /weeks/{weekKey}/overrides/{kpiID}
func (h *Handlers) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	weekKey := chi.URLParam(r, "weekKey")
	kpiID := chi.URLParam(r, "kpiID")
	if !weekkey.Valid(weekKey) {
		writeError(w, http.StatusBadRequest, "malformed week key", "INVALID_WEEK_KEY")
		return
	}

	existed, err := h.db.DeleteOverride(weekKey, kpiID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "deleting override failed", "DB_ERROR")
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "no override for "+kpiID, "NOT_FOUND")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analytics handles GET /analytics
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	hist, err := h.buildHistory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "computing analytics failed", "DB_ERROR")
		return
	}

	completionValues := make([]float64, len(hist.completion))
	for i, p := range hist.completion {
		completionValues[i] = p.Value
	}

	resp := models.AnalyticsResponse{
		Completion:     hist.completion,
		RollingAverage: analytics.RollingAverage(completionValues, trendLookback),
		Trend:          analytics.ComputeTrend(completionValues, trendLookback),
		Correlations:   analytics.CorrelationMatrix(hist.histories),
		Streaks:        analytics.Streaks(hist.completion, streakThreshold),
		Records:        analytics.PersonalRecords(hist.histories),
	}
	writeJSON(w, http.StatusOK, resp)
}

// Insights handles GET /insights
func (h *Handlers) Insights(w http.ResponseWriter, r *http.Request) {
	hist, err := h.buildHistory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "computing insights failed", "DB_ERROR")
		return
	}

	trends := make(map[string]*analytics.Trend)
	for id, series := range hist.histories {
		values := make([]float64, len(series))
		for i, p := range series {
			values[i] = p.Value
		}
		if t := analytics.ComputeTrend(values, trendLookback); t != nil {
			trends[id] = t
		}
	}

	paceByID := make(map[string]analytics.Pace)
	for _, k := range hist.kpis {
		if k.YearlyTarget <= 0 {
			continue
		}
		total, dayOfYear, daysInYear := h.yearToDate(hist, k.ID)
		paceByID[k.ID] = analytics.ComputePace(total, k.YearlyTarget, dayOfYear, daysInYear)
	}

	var best *analytics.WeekPoint
	for i := range hist.completion {
		if best == nil || hist.completion[i].Value > best.Value {
			best = &hist.completion[i]
		}
	}

	out := insights.Generate(insights.Input{
		Names:        hist.names(),
		Records:      analytics.PersonalRecords(hist.histories),
		BestWeek:     best,
		Streaks:      analytics.Streaks(hist.completion, streakThreshold),
		Trends:       trends,
		Correlations: analytics.CorrelationMatrix(hist.histories),
		Pace:         paceByID,
	})
	writeJSON(w, http.StatusOK, models.InsightsResponse{Insights: out})
}

// Pace handles GET /pace/{kpiID}
func (h *Handlers) Pace(w http.ResponseWriter, r *http.Request) {
	kpiID := chi.URLParam(r, "kpiID")
	kpi, err := h.db.GetKPI(kpiID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading kpi failed", "DB_ERROR")
		return
	}
	if kpi == nil {
		writeError(w, http.StatusNotFound, "unknown kpi "+kpiID, "UNKNOWN_KPI")
		return
	}
	if kpi.YearlyTarget <= 0 {
		writeError(w, http.StatusBadRequest, "kpi has no yearly target", "NO_YEARLY_TARGET")
		return
	}

	hist, err := h.buildHistory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "computing pace failed", "DB_ERROR")
		return
	}
	total, dayOfYear, daysInYear := h.yearToDate(hist, kpiID)

	writeJSON(w, http.StatusOK, models.PaceResponse{
		KPIID:        kpiID,
		YearlyTarget: kpi.YearlyTarget,
		CurrentTotal: total,
		Pace:         analytics.ComputePace(total, kpi.YearlyTarget, dayOfYear, daysInYear),
	})
}

// Rank handles GET /rank?points=N
func (h *Handlers) Rank(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("points")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "points query parameter required", "MISSING_POINTS")
		return
	}
	points, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "points must be a number", "INVALID_POINTS")
		return
	}

	writeJSON(w, http.StatusOK, models.RankResponse{
		Points: points,
		Rank:   rank.FromPoints(points),
	})
}

// Import handles POST /import. The body is either a multipart upload
// with a "file" field or the raw CSV itself.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var reader io.Reader = r.Body
	source := "upload"

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_BODY")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "multipart body missing file field", "INVALID_BODY")
			return
		}
		defer file.Close()
		reader = file
		source = header.Filename
	}

	result, err := importer.New(h.db).ImportCSV(reader, source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "IMPORT_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, models.ImportResponse{
		BatchID:      result.BatchID,
		RowsImported: result.RowsImported,
		WeeksTouched: result.WeeksTouched,
		Skipped:      result.Skipped,
	})
}

func (h *Handlers) loadWeek(weekKey string) ([]catalog.KPI, *db.WeekRecord, map[string]db.Override, error) {
	kpis, err := h.db.ListKPIs()
	if err != nil {
		return nil, nil, nil, err
	}
	rec, err := h.db.GetWeek(weekKey)
	if err != nil {
		return nil, nil, nil, err
	}
	overrides, err := h.db.GetOverrides(weekKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return kpis, rec, overrides, nil
}

func effectiveTargets(kpis []catalog.KPI, overrides map[string]db.Override) map[string]scoring.Targets {
	targets := make(map[string]scoring.Targets, len(kpis))
	for _, k := range kpis {
		t := scoring.TargetsFor(k)
		if ov, ok := overrides[k.ID]; ok {
			t = scoring.Targets{Target: ov.Target, MinTarget: ov.MinTarget, HasMin: ov.HasMin}
		}
		targets[k.ID] = t
	}
	return targets
}

// history is everything the analytics endpoints derive from stored weeks.
type history struct {
	kpis       []catalog.KPI
	weeks      []db.WeekRecord
	completion []analytics.WeekPoint
	histories  map[string][]analytics.WeekPoint
}

// buildHistory scores every stored week with that week's effective
// targets and assembles the per-KPI value series.
func (h *Handlers) buildHistory() (*history, error) {
	kpis, err := h.db.ListKPIs()
	if err != nil {
		return nil, err
	}
	weeks, err := h.db.ListWeeks()
	if err != nil {
		return nil, err
	}

	hist := &history{
		kpis:      kpis,
		weeks:     weeks,
		histories: make(map[string][]analytics.WeekPoint),
	}

	for _, week := range weeks {
		overrides, err := h.db.GetOverrides(week.WeekKey)
		if err != nil {
			return nil, err
		}
		targets := effectiveTargets(kpis, overrides)
		results := scoring.ScoreWeek(kpis, targets, week.Values, week.Daily)
		hist.completion = append(hist.completion, analytics.WeekPoint{
			WeekKey: week.WeekKey,
			Value:   scoring.WeekCompletion(results),
		})
		for id, v := range week.Values {
			hist.histories[id] = append(hist.histories[id], analytics.WeekPoint{WeekKey: week.WeekKey, Value: v})
		}
	}
	return hist, nil
}

func (hist *history) names() map[string]string {
	out := make(map[string]string, len(hist.kpis))
	for _, k := range hist.kpis {
		out[k.ID] = k.Name
	}
	return out
}

// yearToDate sums a KPI's weekly values for the current pace year.
// Weeks are keyed by ISO week-year, so the pace year is today's ISO
// week-year too; around New Year this keeps the current week inside its
// own year's total instead of splitting it on the calendar boundary.
func (h *Handlers) yearToDate(hist *history, kpiID string) (total float64, dayOfYear, daysInYear int) {
	year, dayOfYear, daysInYear := weekkey.PaceYear(h.now().In(h.timezone))
	yearPrefix := fmt.Sprintf("%d-", year)

	for _, week := range hist.weeks {
		if strings.HasPrefix(week.WeekKey, yearPrefix) {
			total += week.Values[kpiID]
		}
	}
	return total, dayOfYear, daysInYear
}
