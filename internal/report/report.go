// Package report renders weekly markdown summaries to disk.
package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/quietloop/pulse-server/internal/insights"
	"github.com/quietloop/pulse-server/internal/scoring"
	"github.com/quietloop/pulse-server/internal/weekkey"
)

// WeekReport is everything a rendered weekly summary needs.
type WeekReport struct {
	WeekKey     string
	Completion  float64
	Results     []scoring.KPIResult
	Insights    []insights.Insight
	GeneratedAt time.Time
}

type Writer struct {
	basePath string
}

func NewWriter(basePath string) *Writer {
	return &Writer{basePath: basePath}
}

// WriteWeekly renders the report and writes it to
// {base}/{year}/{weekKey}.md atomically. Returns the relative path.
func (w *Writer) WriteWeekly(rep WeekReport) (string, error) {
	year, _, err := weekkey.Parse(rep.WeekKey)
	if err != nil {
		return "", fmt.Errorf("bad week key %q: %w", rep.WeekKey, err)
	}

	relPath := filepath.Join(fmt.Sprintf("%d", year), rep.WeekKey+".md")
	fullPath := filepath.Join(w.basePath, relPath)

	content := buildWeekly(rep)
	if err := writeFileAtomic(fullPath, []byte(content)); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	return relPath, nil
}

func buildWeekly(rep WeekReport) string {
	var b strings.Builder

	generated := rep.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	fmt.Fprintf(&b, "---\nweek: %s\ncompletion: %.1f\ngenerated: %s\n---\n\n",
		rep.WeekKey, rep.Completion, generated.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "# Week %s\n\n", rep.WeekKey)
	fmt.Fprintf(&b, "**Completion: %.1f%%**\n\n", rep.Completion)

	if len(rep.Results) > 0 {
		b.WriteString("| KPI | Current | Target | Score | Status |\n")
		b.WriteString("| --- | ---: | ---: | ---: | --- |\n")
		for _, r := range rep.Results {
			fmt.Fprintf(&b, "| %s | %s | %s | %.0f%% | %s |\n",
				r.KPI.Name,
				trimFloat(r.Current),
				trimFloat(r.Targets.Target),
				r.Score.Percentage,
				r.Score.Status)
		}
		b.WriteString("\n")
	}

	if len(rep.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, ins := range rep.Insights {
			fmt.Fprintf(&b, "- %s\n", ins.Message)
			if ins.Recommendation != "" {
				fmt.Fprintf(&b, "  - %s\n", ins.Recommendation)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// trimFloat formats a value without trailing zero noise.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
