// Package scheduler runs the background jobs: nightly completion
// snapshots, Sunday week-close with a markdown report, and an hourly
// heartbeat.
package scheduler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/quietloop/pulse-server/internal/analytics"
	"github.com/quietloop/pulse-server/internal/db"
	"github.com/quietloop/pulse-server/internal/insights"
	"github.com/quietloop/pulse-server/internal/report"
	"github.com/quietloop/pulse-server/internal/scoring"
	"github.com/quietloop/pulse-server/internal/weekkey"
)

const (
	jobDailySnapshot = "daily-snapshot"
	jobWeekClose     = "week-close"
	jobHeartbeat     = "heartbeat"
)

// Scheduler manages scheduled jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	db        *db.DB
	reports   *report.Writer
	timezone  *time.Location
	now       func() time.Time
}

// Config holds scheduler configuration.
type Config struct {
	Timezone string
}

// New creates a new scheduler.
func New(database *db.DB, reports *report.Writer, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz))
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		scheduler: s,
		db:        database,
		reports:   reports,
		timezone:  tz,
		now:       time.Now,
	}, nil
}

// Start registers all jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	// Snapshot the current week's completion every night at 23:30
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(23, 30, 0))),
		gocron.NewTask(s.runDailySnapshot),
		gocron.WithName(jobDailySnapshot),
	)
	if err != nil {
		return err
	}

	// Close out the week on Sunday at 21:00: final snapshot plus report
	_, err = s.scheduler.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Sunday), gocron.NewAtTimes(gocron.NewAtTime(21, 0, 0))),
		gocron.NewTask(s.runWeekClose),
		gocron.WithName(jobWeekClose),
	)
	if err != nil {
		return err
	}

	// Heartbeat every hour so a stalled scheduler is visible in the audit table
	_, err = s.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(s.runHeartbeat),
		gocron.WithName(jobHeartbeat),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	log.Println("Scheduler started")
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) runDailySnapshot() {
	runID, err := s.db.StartSchedulerRun(jobDailySnapshot)
	if err != nil {
		log.Printf("Error recording %s run: %v", jobDailySnapshot, err)
		return
	}
	s.finishRun(runID, jobDailySnapshot, s.SnapshotNow())
}

func (s *Scheduler) runWeekClose() {
	runID, err := s.db.StartSchedulerRun(jobWeekClose)
	if err != nil {
		log.Printf("Error recording %s run: %v", jobWeekClose, err)
		return
	}
	s.finishRun(runID, jobWeekClose, s.CloseWeekNow())
}

func (s *Scheduler) runHeartbeat() {
	runID, err := s.db.StartSchedulerRun(jobHeartbeat)
	if err != nil {
		log.Printf("Error recording %s run: %v", jobHeartbeat, err)
		return
	}
	s.finishRun(runID, jobHeartbeat, nil)
}

func (s *Scheduler) finishRun(runID int64, jobType string, jobErr error) {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
		log.Printf("Job %s failed: %v", jobType, jobErr)
	}
	if err := s.db.CompleteSchedulerRun(runID, msg); err != nil {
		log.Printf("Error completing %s run: %v", jobType, err)
	}
}

// SnapshotNow scores the current week and stores its completion.
func (s *Scheduler) SnapshotNow() error {
	weekKey := weekkey.FromTime(s.now().In(s.timezone))
	results, completion, err := s.scoreWeek(weekKey)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	if err := s.db.SaveSnapshot(weekKey, completion); err != nil {
		return err
	}
	log.Printf("Snapshot %s: %.1f%% completion", weekKey, completion)
	return nil
}

// CloseWeekNow writes the final snapshot for the current week and
// renders its markdown report.
func (s *Scheduler) CloseWeekNow() error {
	weekKey := weekkey.FromTime(s.now().In(s.timezone))
	results, completion, err := s.scoreWeek(weekKey)
	if err != nil {
		return err
	}
	if err := s.db.SaveSnapshot(weekKey, completion); err != nil {
		return err
	}

	weekInsights, err := s.buildInsights()
	if err != nil {
		log.Printf("Error building insights for %s report: %v", weekKey, err)
		weekInsights = nil
	}

	path, err := s.reports.WriteWeekly(report.WeekReport{
		WeekKey:     weekKey,
		Completion:  completion,
		Results:     results,
		Insights:    weekInsights,
		GeneratedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	log.Printf("Closed week %s: %.1f%% completion, report at %s", weekKey, completion, path)
	return nil
}

func (s *Scheduler) scoreWeek(weekKey string) ([]scoring.KPIResult, float64, error) {
	kpis, err := s.db.ListKPIs()
	if err != nil {
		return nil, 0, err
	}
	rec, err := s.db.GetWeek(weekKey)
	if err != nil {
		return nil, 0, err
	}
	overrides, err := s.db.GetOverrides(weekKey)
	if err != nil {
		return nil, 0, err
	}

	targets := make(map[string]scoring.Targets, len(kpis))
	for _, k := range kpis {
		t := scoring.TargetsFor(k)
		if ov, ok := overrides[k.ID]; ok {
			t = scoring.Targets{Target: ov.Target, MinTarget: ov.MinTarget, HasMin: ov.HasMin}
		}
		targets[k.ID] = t
	}

	results := scoring.ScoreWeek(kpis, targets, rec.Values, rec.Daily)
	return results, scoring.WeekCompletion(results), nil
}

func (s *Scheduler) buildInsights() ([]insights.Insight, error) {
	kpis, err := s.db.ListKPIs()
	if err != nil {
		return nil, err
	}
	weeks, err := s.db.ListWeeks()
	if err != nil {
		return nil, err
	}
	snaps, err := s.db.ListSnapshots()
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(kpis))
	for _, k := range kpis {
		names[k.ID] = k.Name
	}

	histories := make(map[string][]analytics.WeekPoint)
	for _, w := range weeks {
		for id, v := range w.Values {
			histories[id] = append(histories[id], analytics.WeekPoint{WeekKey: w.WeekKey, Value: v})
		}
	}

	paceByID := make(map[string]analytics.Pace)
	for _, k := range kpis {
		if k.YearlyTarget <= 0 {
			continue
		}
		total, dayOfYear, daysInYear := s.yearToDate(weeks, k.ID)
		paceByID[k.ID] = analytics.ComputePace(total, k.YearlyTarget, dayOfYear, daysInYear)
	}

	var best *analytics.WeekPoint
	var completion []analytics.WeekPoint
	for _, snap := range snaps {
		p := analytics.WeekPoint{WeekKey: snap.WeekKey, Value: snap.Completion}
		completion = append(completion, p)
		if best == nil || p.Value > best.Value {
			pt := p
			best = &pt
		}
	}

	trends := make(map[string]*analytics.Trend)
	for id, series := range histories {
		values := make([]float64, len(series))
		for i, p := range series {
			values[i] = p.Value
		}
		if t := analytics.ComputeTrend(values, 4); t != nil {
			trends[id] = t
		}
	}

	return insights.Generate(insights.Input{
		Names:        names,
		Records:      analytics.PersonalRecords(histories),
		BestWeek:     best,
		Streaks:      analytics.Streaks(completion, 70),
		Trends:       trends,
		Correlations: analytics.CorrelationMatrix(histories),
		Pace:         paceByID,
	}), nil
}

// yearToDate sums a KPI's weekly values for the current pace year, keyed
// by ISO week-year like the stored week keys.
func (s *Scheduler) yearToDate(weeks []db.WeekRecord, kpiID string) (total float64, dayOfYear, daysInYear int) {
	year, dayOfYear, daysInYear := weekkey.PaceYear(s.now().In(s.timezone))
	yearPrefix := fmt.Sprintf("%d-", year)

	for _, week := range weeks {
		if strings.HasPrefix(week.WeekKey, yearPrefix) {
			total += week.Values[kpiID]
		}
	}
	return total, dayOfYear, daysInYear
}
