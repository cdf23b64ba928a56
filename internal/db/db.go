package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quietloop/pulse-server/internal/catalog"
)

const schema = `
-- KPI definition catalog
CREATE TABLE IF NOT EXISTS kpis (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    target REAL NOT NULL,
    min_target REAL,
    unit TEXT,
    weight REAL NOT NULL DEFAULT 1,
    is_average INTEGER NOT NULL DEFAULT 0,
    curve TEXT NOT NULL DEFAULT 'standard',
    band_low REAL,
    band_high REAL,
    category TEXT,
    yearly_target REAL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Logged values per ISO week and KPI; daily is a JSON array of 7 numbers,
-- Monday first, 0 meaning no data for that day. Rows are never deleted.
CREATE TABLE IF NOT EXISTS weekly_values (
    week_key TEXT NOT NULL,
    kpi_id TEXT NOT NULL,
    value REAL NOT NULL DEFAULT 0,
    daily TEXT,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (week_key, kpi_id)
);

-- Per-week target overrides, created and removed explicitly
CREATE TABLE IF NOT EXISTS target_overrides (
    week_key TEXT NOT NULL,
    kpi_id TEXT NOT NULL,
    target REAL NOT NULL,
    min_target REAL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (week_key, kpi_id)
);

-- Weekly completion snapshots written by the scheduler
CREATE TABLE IF NOT EXISTS week_snapshots (
    week_key TEXT PRIMARY KEY,
    completion REAL NOT NULL,
    computed_at TEXT NOT NULL
);

-- CSV import audit trail
CREATE TABLE IF NOT EXISTS import_batches (
    batch_id TEXT PRIMARY KEY,
    source TEXT,
    row_count INTEGER NOT NULL,
    imported_at TEXT NOT NULL
);

-- Scheduler job tracking
CREATE TABLE IF NOT EXISTS scheduler_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_weekly_values_kpi ON weekly_values(kpi_id, week_key);
CREATE INDEX IF NOT EXISTS idx_overrides_week ON target_overrides(week_key);
CREATE INDEX IF NOT EXISTS idx_scheduler_job ON scheduler_runs(job_type, started_at DESC);
`

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// Ping verifies the underlying connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// UpsertKPI creates or replaces a KPI definition.
func (db *DB) UpsertKPI(k catalog.KPI) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var minTarget interface{}
	if k.HasMinTarget {
		minTarget = k.MinTarget
	}
	_, err := db.conn.Exec(`
		INSERT INTO kpis (id, name, target, min_target, unit, weight, is_average, curve, band_low, band_high, category, yearly_target, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			target = excluded.target,
			min_target = excluded.min_target,
			unit = excluded.unit,
			weight = excluded.weight,
			is_average = excluded.is_average,
			curve = excluded.curve,
			band_low = excluded.band_low,
			band_high = excluded.band_high,
			category = excluded.category,
			yearly_target = excluded.yearly_target,
			updated_at = excluded.updated_at
	`, k.ID, k.Name, k.Target, minTarget, k.Unit, k.Weight, boolToInt(k.IsAverage), string(k.Curve), k.BandLow, k.BandHigh, k.Category, k.YearlyTarget, now, now)
	return err
}

// GetKPI returns a definition by id, or nil when absent.
func (db *DB) GetKPI(id string) (*catalog.KPI, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, target, min_target, unit, weight, is_average, curve, band_low, band_high, category, yearly_target
		FROM kpis WHERE id = ?
	`, id)
	k, err := scanKPI(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKPIs returns all definitions ordered by id.
func (db *DB) ListKPIs() ([]catalog.KPI, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, target, min_target, unit, weight, is_average, curve, band_low, band_high, category, yearly_target
		FROM kpis ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kpis []catalog.KPI
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return nil, err
		}
		kpis = append(kpis, k)
	}
	return kpis, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKPI(row rowScanner) (catalog.KPI, error) {
	var k catalog.KPI
	var minTarget, bandLow, bandHigh, yearlyTarget sql.NullFloat64
	var unit, curve, category sql.NullString
	var isAverage int
	err := row.Scan(&k.ID, &k.Name, &k.Target, &minTarget, &unit, &k.Weight, &isAverage, &curve, &bandLow, &bandHigh, &category, &yearlyTarget)
	if err != nil {
		return k, err
	}
	if minTarget.Valid {
		k.MinTarget = minTarget.Float64
		k.HasMinTarget = true
	}
	k.Unit = unit.String
	k.Curve = catalog.Curve(curve.String)
	k.BandLow = bandLow.Float64
	k.BandHigh = bandHigh.Float64
	k.Category = category.String
	k.YearlyTarget = yearlyTarget.Float64
	k.IsAverage = isAverage == 1
	return k, nil
}

// WeekRecord is the logged state of one week.
type WeekRecord struct {
	WeekKey string
	Values  map[string]float64
	Daily   map[string][]float64
}

// UpsertWeekValue writes a value (and optional daily breakdown) for a
// week. A nil daily slice keeps any breakdown already stored.
func (db *DB) UpsertWeekValue(weekKey, kpiID string, value float64, daily []float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var dailyJSON interface{}
	if daily != nil {
		data, err := json.Marshal(daily)
		if err != nil {
			return fmt.Errorf("encoding daily values: %w", err)
		}
		dailyJSON = string(data)
	}
	_, err := db.conn.Exec(`
		INSERT INTO weekly_values (week_key, kpi_id, value, daily, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(week_key, kpi_id) DO UPDATE SET
			value = excluded.value,
			daily = COALESCE(excluded.daily, weekly_values.daily),
			updated_at = excluded.updated_at
	`, weekKey, kpiID, value, dailyJSON, now)
	return err
}

// GetWeek returns the record for a week. An unlogged week yields empty
// maps, not an error.
func (db *DB) GetWeek(weekKey string) (*WeekRecord, error) {
	rows, err := db.conn.Query(`
		SELECT kpi_id, value, daily FROM weekly_values WHERE week_key = ?
	`, weekKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec := &WeekRecord{
		WeekKey: weekKey,
		Values:  make(map[string]float64),
		Daily:   make(map[string][]float64),
	}
	for rows.Next() {
		var kpiID string
		var value float64
		var dailyJSON sql.NullString
		if err := rows.Scan(&kpiID, &value, &dailyJSON); err != nil {
			return nil, err
		}
		rec.Values[kpiID] = value
		if dailyJSON.Valid {
			var daily []float64
			if err := json.Unmarshal([]byte(dailyJSON.String), &daily); err == nil {
				rec.Daily[kpiID] = daily
			}
		}
	}
	return rec, rows.Err()
}

// ListWeeks returns every logged week in chronological order. Week keys
// sort correctly as strings because weeks are zero-padded.
func (db *DB) ListWeeks() ([]WeekRecord, error) {
	rows, err := db.conn.Query(`
		SELECT week_key, kpi_id, value, daily FROM weekly_values ORDER BY week_key ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	byKey := make(map[string]*WeekRecord)
	for rows.Next() {
		var weekKey, kpiID string
		var value float64
		var dailyJSON sql.NullString
		if err := rows.Scan(&weekKey, &kpiID, &value, &dailyJSON); err != nil {
			return nil, err
		}
		rec, ok := byKey[weekKey]
		if !ok {
			rec = &WeekRecord{WeekKey: weekKey, Values: make(map[string]float64), Daily: make(map[string][]float64)}
			byKey[weekKey] = rec
			keys = append(keys, weekKey)
		}
		rec.Values[kpiID] = value
		if dailyJSON.Valid {
			var daily []float64
			if err := json.Unmarshal([]byte(dailyJSON.String), &daily); err == nil {
				rec.Daily[kpiID] = daily
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]WeekRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out, nil
}

// Override is a per-week replacement for a KPI's targets.
type Override struct {
	Target    float64
	MinTarget float64
	HasMin    bool
}

// SetOverride creates or replaces a per-week target override.
func (db *DB) SetOverride(weekKey, kpiID string, o Override) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var minTarget interface{}
	if o.HasMin {
		minTarget = o.MinTarget
	}
	_, err := db.conn.Exec(`
		INSERT INTO target_overrides (week_key, kpi_id, target, min_target, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(week_key, kpi_id) DO UPDATE SET
			target = excluded.target,
			min_target = excluded.min_target
	`, weekKey, kpiID, o.Target, minTarget, now)
	return err
}

// DeleteOverride removes an override; reports whether one existed.
func (db *DB) DeleteOverride(weekKey, kpiID string) (bool, error) {
	result, err := db.conn.Exec(`
		DELETE FROM target_overrides WHERE week_key = ? AND kpi_id = ?
	`, weekKey, kpiID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// GetOverrides returns all overrides for a week keyed by KPI id.
func (db *DB) GetOverrides(weekKey string) (map[string]Override, error) {
	rows, err := db.conn.Query(`
		SELECT kpi_id, target, min_target FROM target_overrides WHERE week_key = ?
	`, weekKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make(map[string]Override)
	for rows.Next() {
		var kpiID string
		var o Override
		var minTarget sql.NullFloat64
		if err := rows.Scan(&kpiID, &o.Target, &minTarget); err != nil {
			return nil, err
		}
		if minTarget.Valid {
			o.MinTarget = minTarget.Float64
			o.HasMin = true
		}
		overrides[kpiID] = o
	}
	return overrides, rows.Err()
}

// Snapshot is a stored weekly completion percentage.
type Snapshot struct {
	WeekKey    string
	Completion float64
	ComputedAt time.Time
}

// SaveSnapshot records (or refreshes) a week's completion percentage.
func (db *DB) SaveSnapshot(weekKey string, completion float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.conn.Exec(`
		INSERT INTO week_snapshots (week_key, completion, computed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(week_key) DO UPDATE SET
			completion = excluded.completion,
			computed_at = excluded.computed_at
	`, weekKey, completion, now)
	return err
}

// ListSnapshots returns all snapshots in chronological order.
func (db *DB) ListSnapshots() ([]Snapshot, error) {
	rows, err := db.conn.Query(`
		SELECT week_key, completion, computed_at FROM week_snapshots ORDER BY week_key ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var s Snapshot
		var computedStr string
		if err := rows.Scan(&s.WeekKey, &s.Completion, &computedStr); err != nil {
			return nil, err
		}
		s.ComputedAt, _ = time.Parse(time.RFC3339, computedStr)
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// RecordImportBatch writes an audit row for a completed CSV import.
func (db *DB) RecordImportBatch(batchID, source string, rowCount int) error {
	_, err := db.conn.Exec(`
		INSERT INTO import_batches (batch_id, source, row_count, imported_at)
		VALUES (?, ?, ?, ?)
	`, batchID, source, rowCount, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SchedulerRun tracks a scheduler job execution.
type SchedulerRun struct {
	ID           int64
	JobType      string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// StartSchedulerRun records the start of a scheduler job.
func (db *DB) StartSchedulerRun(jobType string) (int64, error) {
	result, err := db.conn.Exec(`
		INSERT INTO scheduler_runs (job_type, status, started_at)
		VALUES (?, 'running', ?)
	`, jobType, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSchedulerRun marks a scheduler job as completed.
func (db *DB) CompleteSchedulerRun(runID int64, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	_, err := db.conn.Exec(`
		UPDATE scheduler_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339), errMsg, runID)
	return err
}

// GetLastSchedulerRun returns the last run for a job type.
func (db *DB) GetLastSchedulerRun(jobType string) (*SchedulerRun, error) {
	var run SchedulerRun
	var startedStr string
	var completedStr, errMsg sql.NullString
	err := db.conn.QueryRow(`
		SELECT id, job_type, status, started_at, completed_at, error_message
		FROM scheduler_runs
		WHERE job_type = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, jobType).Scan(&run.ID, &run.JobType, &run.Status, &startedStr, &completedStr, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedStr)
	if completedStr.Valid {
		t, _ := time.Parse(time.RFC3339, completedStr.String)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
