// Package analytics builds the read-only dashboard projections over committed
// records: the monthly completion trend, the summary-scale history and the
// surgery distribution. Projections are recomputed on every query.
//
// Records without a surgery name are left out of every projection and
// reported back to the caller as skipped.
package analytics

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/internal/domain/scoring"
)

// monthLayout renders the YYYY-MM grouping key.
const monthLayout = "2006-01"

// TrendPoint is one record's completion on the trend chart.
type TrendPoint struct {
	RecordID    string    `json:"recordId"`
	SurgeryName string    `json:"surgeryName"`
	Month       string    `json:"month"`
	Date        time.Time `json:"date"`
	Completion  int       `json:"completion"`
}

// ScalePoint is one entry of a surgery's summary-scale history.
type ScalePoint struct {
	RecordID     string             `json:"recordId"`
	SurgeryName  string             `json:"surgeryName"`
	Date         time.Time          `json:"date"`
	SummaryScale model.SummaryScale `json:"summaryScale"`
}

// DistributionRow counts records of one surgery.
type DistributionRow struct {
	SurgeryName string `json:"surgeryName"`
	Count       int    `json:"count"`
}

// Eligible reports whether rec takes part in analytics: corrected or reviewed
// and not deleted.
func Eligible(rec *model.Record) bool {
	return !rec.Deleted && (rec.Status == model.StatusCorrected || rec.Status == model.StatusReviewed)
}

// EligibleStatuses are the statuses analytics read.
func EligibleStatuses() []model.Status {
	return []model.Status{model.StatusCorrected, model.StatusReviewed}
}

func surgeryName(rec *model.Record) string {
	return strings.TrimSpace(rec.SurgeryName)
}

// CompletionTrend emits one point per record, grouped by surgery name and
// month, ordered by date ascending. Ties on date are broken by surgery name,
// then record id. skipped lists the ids of records without a surgery name.
func CompletionTrend(recs []model.Record) (points []TrendPoint, skipped []string) {
	points = make([]TrendPoint, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		name := surgeryName(rec)
		if name == "" {
			skipped = append(skipped, rec.ID)
			continue
		}
		points = append(points, TrendPoint{
			RecordID:    rec.ID,
			SurgeryName: name,
			Month:       rec.Date.UTC().Format(monthLayout),
			Date:        rec.Date,
			Completion:  scoring.PercentCompleted(rec.Steps),
		})
	}
	slices.SortStableFunc(points, func(a, b TrendPoint) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SurgeryName, b.SurgeryName); c != 0 {
			return c
		}
		return cmp.Compare(a.RecordID, b.RecordID)
	})
	return points, skipped
}

// SummaryScaleHistory returns the (date, summary scale) pairs of the records
// of one surgery, newest first. An empty name keeps every surgery. last > 0
// keeps only the newest last entries.
func SummaryScaleHistory(recs []model.Record, name string, last int) (history []ScalePoint, skipped []string) {
	name = strings.TrimSpace(name)
	history = make([]ScalePoint, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		n := surgeryName(rec)
		if n == "" {
			skipped = append(skipped, rec.ID)
			continue
		}
		if name != "" && n != name {
			continue
		}
		history = append(history, ScalePoint{
			RecordID:     rec.ID,
			SurgeryName:  n,
			Date:         rec.Date,
			SummaryScale: rec.SummaryScale,
		})
	}
	slices.SortStableFunc(history, func(a, b ScalePoint) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.RecordID, b.RecordID)
	})
	if last > 0 && len(history) > last {
		history = history[:last]
	}
	return history, skipped
}

// SurgeryDistribution counts records per surgery name, ordered by name.
func SurgeryDistribution(recs []model.Record) (rows []DistributionRow, skipped []string) {
	counts := make(map[string]int)
	for i := range recs {
		rec := &recs[i]
		n := surgeryName(rec)
		if n == "" {
			skipped = append(skipped, rec.ID)
			continue
		}
		counts[n]++
	}
	rows = make([]DistributionRow, 0, len(counts))
	for n, c := range counts {
		rows = append(rows, DistributionRow{SurgeryName: n, Count: c})
	}
	slices.SortFunc(rows, func(a, b DistributionRow) int {
		return cmp.Compare(a.SurgeryName, b.SurgeryName)
	})
	return rows, skipped
}
