// Package importer loads the legacy daily-log CSV export into the store.
// Rows are `user_id,date,data` where data is a JSON object of KPI id to
// value; values arrive as strings (the export stringifies everything) or
// null for days without data.
package importer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quietloop/pulse-server/internal/catalog"
	"github.com/quietloop/pulse-server/internal/db"
	"github.com/quietloop/pulse-server/internal/scoring"
	"github.com/quietloop/pulse-server/internal/weekkey"
)

// Result summarizes one import batch.
type Result struct {
	BatchID      string
	RowsImported int
	WeeksTouched int
	Skipped      []string
}

type Importer struct {
	db *db.DB
}

func New(database *db.DB) *Importer {
	return &Importer{db: database}
}

// weekAccumulator gathers one week's imported day slots per KPI.
type weekAccumulator map[string][]float64 // kpi id -> 7 day slots

// ImportCSV reads the export, groups rows into ISO weeks and Monday-first
// day slots, and upserts daily breakdowns plus derived weekly values.
// Unknown KPI keys and unparseable cells are skipped and reported, not
// fatal.
func (im *Importer) ImportCSV(r io.Reader, source string) (*Result, error) {
	kpis, err := im.db.ListKPIs()
	if err != nil {
		return nil, fmt.Errorf("loading kpi catalog: %w", err)
	}
	kpiByID := make(map[string]catalog.KPI, len(kpis))
	for _, k := range kpis {
		kpiByID[k.ID] = k
	}

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	dateCol, dataCol := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case "date":
			dateCol = i
		case "data":
			dataCol = i
		}
	}
	if dateCol == -1 || dataCol == -1 {
		return nil, fmt.Errorf("csv header missing date/data columns: %v", header)
	}

	result := &Result{BatchID: uuid.NewString()}
	skipped := make(map[string]bool)
	weeks := make(map[string]weekAccumulator)

	for lineNo := 2; ; lineNo++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", lineNo, err)
		}
		if len(row) <= dateCol || len(row) <= dataCol {
			skipped[fmt.Sprintf("line %d: short row", lineNo)] = true
			continue
		}

		day, err := time.Parse("2006-01-02", strings.TrimSpace(row[dateCol]))
		if err != nil {
			skipped[fmt.Sprintf("line %d: bad date %q", lineNo, row[dateCol])] = true
			continue
		}

		var data map[string]interface{}
		if err := json.Unmarshal([]byte(row[dataCol]), &data); err != nil {
			skipped[fmt.Sprintf("line %d: bad data json", lineNo)] = true
			continue
		}

		wk := weekkey.FromTime(day)
		dayIdx := weekkey.DayIndex(day)
		acc, ok := weeks[wk]
		if !ok {
			acc = make(weekAccumulator)
			weeks[wk] = acc
		}

		rowHadData := false
		for key, raw := range data {
			if raw == nil {
				continue
			}
			if _, known := kpiByID[key]; !known {
				skipped["unknown kpi "+key] = true
				continue
			}
			value, ok := parseCell(raw)
			if !ok {
				skipped[fmt.Sprintf("line %d: unparseable %s value", lineNo, key)] = true
				continue
			}
			slots := acc[key]
			if slots == nil {
				slots = make([]float64, weekkey.DaysPerWeek)
				acc[key] = slots
			}
			slots[dayIdx] = value
			rowHadData = true
		}
		if rowHadData {
			result.RowsImported++
		}
	}

	if err := im.flush(weeks, kpiByID, result); err != nil {
		return nil, err
	}

	result.Skipped = sortedSet(skipped)
	if err := im.db.RecordImportBatch(result.BatchID, source, result.RowsImported); err != nil {
		return nil, fmt.Errorf("recording import batch: %w", err)
	}
	return result, nil
}

// flush merges accumulated day slots with anything already stored and
// writes the result. Imported nonzero days win over stored ones; the
// weekly value is re-derived from the merged breakdown.
func (im *Importer) flush(weeks map[string]weekAccumulator, kpiByID map[string]catalog.KPI, result *Result) error {
	for wk, acc := range weeks {
		if len(acc) == 0 {
			continue
		}
		existing, err := im.db.GetWeek(wk)
		if err != nil {
			return fmt.Errorf("reading week %s: %w", wk, err)
		}
		for kpiID, slots := range acc {
			merged := make([]float64, weekkey.DaysPerWeek)
			if prev, ok := existing.Daily[kpiID]; ok {
				copy(merged, prev)
			}
			for i, v := range slots {
				if v != 0 {
					merged[i] = v
				}
			}

			var value float64
			if kpiByID[kpiID].IsAverage {
				value = scoring.AverageOfDays(merged)
			} else {
				for _, v := range merged {
					value += v
				}
			}
			if err := im.db.UpsertWeekValue(wk, kpiID, value, merged); err != nil {
				return fmt.Errorf("writing week %s kpi %s: %w", wk, kpiID, err)
			}
		}
		result.WeeksTouched++
	}
	return nil
}

// parseCell coerces an exported cell to a number. Strings go through
// decimal so cash amounts like "1,234.50" or "$12.99" survive exactly.
func parseCell(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimPrefix(s, "€")
		s = strings.TrimPrefix(s, "£")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
