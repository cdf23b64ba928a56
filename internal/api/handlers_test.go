package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quietloop/pulse-server/internal/catalog"
	"github.com/quietloop/pulse-server/internal/config"
	"github.com/quietloop/pulse-server/internal/db"
	"github.com/quietloop/pulse-server/internal/models"
)

const testToken = "test-token"

func setupTestServer(t *testing.T) (*httptest.Server, *db.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "api_test.db")
	store, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.Remove(dbPath)
	})

	cfg := &config.Config{Token: testToken, Timezone: "UTC"}
	handlers := NewHandlers(cfg, store)
	// Pin the clock to a Thursday in ISO week 31.
	handlers.now = func() time.Time {
		return time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC)
	}

	srv := httptest.NewServer(routerFor(cfg, handlers))
	t.Cleanup(srv.Close)
	return srv, store
}

func seedCatalog(t *testing.T, store *db.DB) {
	t.Helper()
	kpis := []catalog.KPI{
		{ID: "deep_work", Name: "Deep Work", Target: 20, Unit: "hours", Weight: 2, Curve: catalog.CurveStandard, YearlyTarget: 1000},
		{ID: "workouts", Name: "Workouts", Target: 4, Unit: "sessions", Weight: 1, Curve: catalog.CurveStandard},
		{ID: "sleep", Name: "Sleep", Target: 7, MinTarget: 6, HasMinTarget: true, Unit: "hours", Weight: 1, IsAverage: true, Curve: catalog.CurveBand},
	}
	for _, k := range kpis {
		if err := store.UpsertKPI(k); err != nil {
			t.Fatalf("seeding kpi %s: %v", k.ID, err)
		}
	}
}

func doRequest(t *testing.T, srv *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var health models.HealthResponse
	decode(t, resp, &health)
	if health.Status != "ok" || health.DB != "connected" {
		t.Errorf("health = %+v", health)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/kpis", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestKPIEndpoints(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/kpis", nil)
	var list models.KPIListResponse
	decode(t, resp, &list)
	if len(list.KPIs) != 3 {
		t.Fatalf("got %d kpis, want 3", len(list.KPIs))
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/kpis", catalog.KPI{
		ID: "reading", Name: "Reading", Target: 5, Unit: "hours", Weight: 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPost, "/api/v1/kpis", catalog.KPI{ID: "broken"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid kpi status = %d, want 400", resp.StatusCode)
	}
}

func TestWeekScoringFlow(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	resp := doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/values", models.UpsertValuesRequest{
		Values: map[string]float64{"deep_work": 20, "workouts": 2},
		Daily:  map[string][]float64{"sleep": {7, 6.5, 7.5, 0, 0, 0, 0}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put values status = %d", resp.StatusCode)
	}

	var week models.WeekResponse
	decode(t, resp, &week)
	if !week.CurrentWeek {
		t.Error("expected 2025-W31 to be the current week")
	}

	byID := make(map[string]models.KPIScore)
	for _, s := range week.KPIs {
		byID[s.KPIID] = s
	}
	if byID["deep_work"].Percentage != 100 {
		t.Errorf("deep_work = %v, want 100", byID["deep_work"].Percentage)
	}
	if byID["workouts"].Percentage != 50 {
		t.Errorf("workouts = %v, want 50", byID["workouts"].Percentage)
	}
	// Sleep average is 7.0, inside the ideal band.
	if byID["sleep"].Percentage != 100 {
		t.Errorf("sleep = %v, want 100", byID["sleep"].Percentage)
	}
	// The current week gets suggestions for the remaining empty days.
	if len(byID["workouts"].Suggestions) == 0 {
		t.Error("expected suggestions for workouts in the current week")
	}
	for _, s := range byID["workouts"].Suggestions {
		if s.Day < 3 {
			t.Errorf("suggestion for day %d, want only today or later", s.Day)
		}
	}

	// Past weeks never carry suggestions.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W30/values", models.UpsertValuesRequest{
		Values: map[string]float64{"workouts": 1},
	})
	var pastWeek models.WeekResponse
	decode(t, resp, &pastWeek)
	if pastWeek.CurrentWeek {
		t.Error("2025-W30 should not be the current week")
	}
	for _, s := range pastWeek.KPIs {
		if len(s.Suggestions) != 0 {
			t.Errorf("past week has suggestions for %s", s.KPIID)
		}
	}
}

func TestWeekRejectsBadInput(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/weeks/banana", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad week key status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/values", models.UpsertValuesRequest{
		Values: map[string]float64{"nope": 5},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown kpi status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/values", models.UpsertValuesRequest{
		Daily: map[string][]float64{"sleep": {7, 7}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short daily status = %d, want 400", resp.StatusCode)
	}
}

func TestOverrideLifecycle(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	resp := doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/values", models.UpsertValuesRequest{
		Values: map[string]float64{"deep_work": 10},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put values status = %d", resp.StatusCode)
	}

	// Halve the target for a travel week; 10/10 becomes 100%.
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/overrides/deep_work", models.OverrideRequest{Target: 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put override status = %d", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/weeks/2025-W31", nil)
	var week models.WeekResponse
	decode(t, resp, &week)
	for _, s := range week.KPIs {
		if s.KPIID == "deep_work" {
			if s.Percentage != 100 || !s.Overridden || s.Target != 10 {
				t.Errorf("overridden deep_work = %+v", s)
			}
		}
	}

	resp = doRequest(t, srv, http.MethodDelete, "/api/v1/weeks/2025-W31/overrides/deep_work", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete override status = %d, want 204", resp.StatusCode)
	}
	resp = doRequest(t, srv, http.MethodDelete, "/api/v1/weeks/2025-W31/overrides/deep_work", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/overrides/nope", models.OverrideRequest{Target: 10})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kpi override status = %d, want 404", resp.StatusCode)
	}
	resp = doRequest(t, srv, http.MethodPut, "/api/v1/weeks/2025-W31/overrides/deep_work", models.OverrideRequest{Target: -1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative target status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalyticsAndInsights(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	weeks := []struct {
		key      string
		deepWork float64
		workouts float64
	}{
		{"2025-W27", 10, 2},
		{"2025-W28", 14, 3},
		{"2025-W29", 16, 3},
		{"2025-W30", 18, 4},
		{"2025-W31", 20, 4},
	}
	for _, w := range weeks {
		body := models.UpsertValuesRequest{
			Values: map[string]float64{"deep_work": w.deepWork, "workouts": w.workouts},
		}
		if resp := doRequest(t, srv, http.MethodPut, "/api/v1/weeks/"+w.key+"/values", body); resp.StatusCode != http.StatusOK {
			t.Fatalf("seeding %s: status %d", w.key, resp.StatusCode)
		}
	}

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/analytics", nil)
	var an models.AnalyticsResponse
	decode(t, resp, &an)

	if len(an.Completion) != 5 {
		t.Fatalf("completion series length = %d, want 5", len(an.Completion))
	}
	if an.Completion[0].WeekKey != "2025-W27" {
		t.Errorf("series not chronological: %v", an.Completion[0].WeekKey)
	}
	if len(an.Records) == 0 {
		t.Error("expected personal records")
	}
	for _, r := range an.Records {
		if r.KPIID == "deep_work" && (r.Value != 20 || r.WeekKey != "2025-W31") {
			t.Errorf("deep_work record = %+v", r)
		}
	}
	// deep_work and workouts rise together.
	foundPair := false
	for _, c := range an.Correlations {
		if c.A == "deep_work" && c.B == "workouts" {
			foundPair = true
			if c.Coefficient < 0.8 {
				t.Errorf("correlation = %v, want strongly positive", c.Coefficient)
			}
		}
	}
	if !foundPair {
		t.Error("expected deep_work/workouts correlation")
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/insights", nil)
	var ins models.InsightsResponse
	decode(t, resp, &ins)
	if len(ins.Insights) == 0 {
		t.Fatal("expected insights")
	}
	foundRecord := false
	for _, i := range ins.Insights {
		if strings.Contains(i.Message, "Personal record on Deep Work") {
			foundRecord = true
		}
	}
	if !foundRecord {
		t.Errorf("expected a Deep Work record insight, got %+v", ins.Insights)
	}
}

func TestAnalyticsAlignsGappedHistories(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	// deep_work has one week more of history than workouts; on the weeks
	// both were logged the series are identical.
	seed := []struct {
		week     string
		kpiID    string
		value    float64
	}{
		{"2025-W27", "deep_work", 10},
		{"2025-W28", "deep_work", 1},
		{"2025-W29", "deep_work", 2},
		{"2025-W30", "deep_work", 3},
		{"2025-W28", "workouts", 1},
		{"2025-W29", "workouts", 2},
		{"2025-W30", "workouts", 3},
	}
	for _, s := range seed {
		if err := store.UpsertWeekValue(s.week, s.kpiID, s.value, nil); err != nil {
			t.Fatalf("seeding %s/%s: %v", s.week, s.kpiID, err)
		}
	}

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/analytics", nil)
	var an models.AnalyticsResponse
	decode(t, resp, &an)

	found := false
	for _, c := range an.Correlations {
		if c.A == "deep_work" && c.B == "workouts" {
			found = true
			if c.Coefficient < 0.999 {
				t.Errorf("coefficient = %v, want 1: values must pair by week, not by index", c.Coefficient)
			}
		}
	}
	if !found {
		t.Fatalf("expected deep_work/workouts pair, got %+v", an.Correlations)
	}
}

func TestPaceEndpoint(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	if err := store.UpsertWeekValue("2025-W30", "deep_work", 200, nil); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if err := store.UpsertWeekValue("2024-W50", "deep_work", 999, nil); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/pace/deep_work", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pace status = %d", resp.StatusCode)
	}
	var pace models.PaceResponse
	decode(t, resp, &pace)
	// Only the current year's weeks count.
	if pace.CurrentTotal != 200 {
		t.Errorf("current total = %v, want 200", pace.CurrentTotal)
	}
	if pace.YearlyTarget != 1000 {
		t.Errorf("yearly target = %v", pace.YearlyTarget)
	}
	if pace.Pace.OnTrack {
		t.Error("200 of 1000 in late July should be behind pace")
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/pace/workouts", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no yearly target status = %d, want 400", resp.StatusCode)
	}
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/pace/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kpi status = %d, want 404", resp.StatusCode)
	}
}

func TestPaceUsesISOWeekYear(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "api_pace_test.db")
	store, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.Remove(dbPath)
	})
	seedCatalog(t, store)

	cfg := &config.Config{Token: testToken, Timezone: "UTC"}
	handlers := NewHandlers(cfg, store)
	// Dec 30 2025 already belongs to ISO week 2026-W01.
	handlers.now = func() time.Time {
		return time.Date(2025, 12, 30, 12, 0, 0, 0, time.UTC)
	}
	srv := httptest.NewServer(routerFor(cfg, handlers))
	t.Cleanup(srv.Close)

	if err := store.UpsertWeekValue("2026-W01", "deep_work", 30, nil); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if err := store.UpsertWeekValue("2025-W30", "deep_work", 999, nil); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/pace/deep_work", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pace status = %d", resp.StatusCode)
	}
	var pace models.PaceResponse
	decode(t, resp, &pace)

	// The current week counts toward its own ISO week-year, not the
	// calendar year of the wall clock.
	if pace.CurrentTotal != 30 {
		t.Errorf("current total = %v, want 30 (2026-W01 only)", pace.CurrentTotal)
	}
}

func TestRankEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/api/v1/rank?points=3000", nil)
	var rk models.RankResponse
	decode(t, resp, &rk)
	if rk.Rank.Tier != "Gold" {
		t.Errorf("tier = %s, want Gold", rk.Rank.Tier)
	}

	resp = doRequest(t, srv, http.MethodGet, "/api/v1/rank", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing points status = %d, want 400", resp.StatusCode)
	}
	resp = doRequest(t, srv, http.MethodGet, "/api/v1/rank?points=abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad points status = %d, want 400", resp.StatusCode)
	}
}

func TestImportEndpoint(t *testing.T) {
	srv, store := setupTestServer(t)
	seedCatalog(t, store)

	csvBody := "user_id,date,data\n" +
		`u1,2025-07-28,"{""deep_work"": ""4"", ""sleep"": ""7""}"` + "\n"

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/import", strings.NewReader(csvBody))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "text/csv")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", resp.StatusCode)
	}

	var imported models.ImportResponse
	decode(t, resp, &imported)
	if imported.RowsImported != 1 || imported.WeeksTouched != 1 {
		t.Errorf("import summary = %+v", imported)
	}

	week, err := store.GetWeek("2025-W31")
	if err != nil {
		t.Fatalf("reading imported week: %v", err)
	}
	if week.Values["deep_work"] != 4 {
		t.Errorf("imported deep_work = %v, want 4", week.Values["deep_work"])
	}
}
