package reporting

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vitalink/platform/internal/appointment"
)

// ageBins are the adult histogram buckets. Ages below 18 fall outside every
// bin and are dropped from the histogram, but they still count toward the
// percentage denominator: bins therefore sum to less than 100 whenever
// under-18 records exist. That is the documented dashboard behavior.
var ageBins = []struct {
	label string
	min   int
	max   int
}{
	{"18-25", 18, 25},
	{"26-35", 26, 35},
	{"36-45", 36, 45},
	{"46-55", 46, 55},
	{"56-65", 56, 65},
	{"65+", 66, math.MaxInt},
}

const topN = 10

// AgeGroup is one histogram bucket
type AgeGroup struct {
	Range   string `json:"range"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// MonthVisits splits one month's visit count into new and returning patients
type MonthVisits struct {
	Month             string `json:"month"` // 3-letter month name
	NewPatients       int    `json:"new_patients"`
	ReturningPatients int    `json:"returning_patients"`
}

// Condition is one entry of the top-diagnoses table. Trend is the share of
// this diagnosis's total volume that occurred in the previous calendar month,
// rendered as "+N%" -- not a month-over-month growth rate.
type Condition struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Trend string `json:"trend"`
}

// Symptom is one entry of the top-symptoms table
type Symptom struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Dashboard is the aggregated reporting view
type Dashboard struct {
	TotalRecords   int           `json:"total_records"`
	AgeGroups      []AgeGroup    `json:"age_groups"`
	VisitFrequency []MonthVisits `json:"visit_frequency"`
	TopConditions  []Condition   `json:"top_conditions"`
	TopSymptoms    []Symptom     `json:"top_symptoms"`
}

// Aggregate reduces a flat appointment list to the dashboard statistics.
// Records are never mutated; running twice over the same input yields
// identical output.
func Aggregate(records []*appointment.Appointment, now time.Time) Dashboard {
	return Dashboard{
		TotalRecords:   len(records),
		AgeGroups:      ageHistogram(records),
		VisitFrequency: visitFrequency(records, now),
		TopConditions:  topConditions(records, now),
		TopSymptoms:    topSymptoms(records),
	}
}

func ageHistogram(records []*appointment.Appointment) []AgeGroup {
	groups := make([]AgeGroup, len(ageBins))
	for i, bin := range ageBins {
		groups[i] = AgeGroup{Range: bin.label}
	}

	for _, rec := range records {
		for i, bin := range ageBins {
			if rec.PatientAge >= bin.min && rec.PatientAge <= bin.max {
				groups[i].Count++
				break
			}
		}
	}

	// Denominator is the full unfiltered record count, see ageBins comment
	if len(records) > 0 {
		for i := range groups {
			groups[i].Percent = roundPercent(groups[i].Count, len(records))
		}
	}

	return groups
}

// visitFrequency buckets records by the calendar month of CreatedAt over a
// rolling 12-month window ending now, split into new vs returning patients.
// The output starts at the oldest month of the window (the month after the
// current month, one year back) and ends at the current month.
func visitFrequency(records []*appointment.Appointment, now time.Time) []MonthVisits {
	type monthKey struct {
		year  int
		month time.Month
	}

	// anchor at the first of the month so AddDate cannot skip short months
	base := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	index := make(map[monthKey]int, 12)
	months := make([]MonthVisits, 12)
	for i := 0; i < 12; i++ {
		m := base.AddDate(0, i-11, 0)
		index[monthKey{m.Year(), m.Month()}] = i
		months[i] = MonthVisits{Month: m.Format("Jan")}
	}

	for _, rec := range records {
		i, ok := index[monthKey{rec.CreatedAt.Year(), rec.CreatedAt.Month()}]
		if !ok {
			continue
		}
		if rec.PreviousVisit == "yes" {
			months[i].ReturningPatients++
		} else {
			months[i].NewPatients++
		}
	}

	return months
}

func topConditions(records []*appointment.Appointment, now time.Time) []Condition {
	lastMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	lmYear, lmMonth := lastMonth.Year(), lastMonth.Month()

	type tally struct {
		total     int
		lastMonth int
		order     int
	}

	counts := make(map[string]*tally)
	order := 0
	for _, rec := range records {
		if rec.Prescription == nil || rec.Prescription.PrimaryDiagnosis == "" {
			continue
		}
		name := rec.Prescription.PrimaryDiagnosis
		t, ok := counts[name]
		if !ok {
			t = &tally{order: order}
			order++
			counts[name] = t
		}
		t.total++
		if rec.CreatedAt.Year() == lmYear && rec.CreatedAt.Month() == lmMonth {
			t.lastMonth++
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	// descending by total, ties broken by first-encountered order
	sort.Slice(names, func(i, j int) bool {
		a, b := counts[names[i]], counts[names[j]]
		if a.total != b.total {
			return a.total > b.total
		}
		return a.order < b.order
	})

	if len(names) > topN {
		names = names[:topN]
	}

	conditions := make([]Condition, len(names))
	for i, name := range names {
		t := counts[name]
		conditions[i] = Condition{
			Name:  name,
			Count: t.total,
			Trend: fmt.Sprintf("+%d%%", roundPercent(t.lastMonth, t.total)),
		}
	}

	return conditions
}

func topSymptoms(records []*appointment.Appointment) []Symptom {
	type tally struct {
		count int
		order int
	}

	counts := make(map[string]*tally)
	order := 0
	for _, rec := range records {
		if rec.Prescription == nil || rec.Prescription.Symptoms == "" {
			continue
		}
		// exact-string grouping, no normalization
		name := rec.Prescription.Symptoms
		t, ok := counts[name]
		if !ok {
			t = &tally{order: order}
			order++
			counts[name] = t
		}
		t.count++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := counts[names[i]], counts[names[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return a.order < b.order
	})

	if len(names) > topN {
		names = names[:topN]
	}

	symptoms := make([]Symptom, len(names))
	for i, name := range names {
		symptoms[i] = Symptom{Name: name, Count: counts[name].count}
	}

	return symptoms
}

func roundPercent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
