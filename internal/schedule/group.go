package schedule

import (
	"sort"
	"time"
)

// Dated is implemented by records that carry a calendar date and an optional
// time of day, the two fields the grouper buckets and orders by.
type Dated interface {
	Day() string       // YYYY-MM-DD grouping key
	TimeOfDay() string // "hh:mm AM/PM", may be empty
}

// Order controls how group keys are arranged in the result
type Order int

const (
	// OrderEncounter keeps groups in the order their date was first seen
	OrderEncounter Order = iota
	// OrderAscending sorts group dates ascending (upcoming views)
	OrderAscending
	// OrderDescending sorts group dates descending (history views)
	OrderDescending
)

// Options configure a grouping pass
type Options struct {
	// From, when set, keeps only records whose date is >= From's calendar day
	From *time.Time
	// Order arranges the resulting groups
	Order Order
}

// DayGroup is one date bucket of records with its derived display fields
type DayGroup[T Dated] struct {
	Date    string `json:"date"`
	Status  Status `json:"status"`
	Label   string `json:"label"`
	Records []T    `json:"records"`
}

// GroupByDay partitions records into date buckets. Bucketing is exact string
// equality on the date key. Within a bucket, records are ordered by their
// parsed time of day; records whose time does not parse sort after all
// parseable ones, and ties keep input order. Every input record that passes
// the From filter appears in exactly one group.
func GroupByDay[T Dated](records []T, opts Options, now time.Time) []DayGroup[T] {
	var fromKey string
	if opts.From != nil {
		fromKey = FormatDay(*opts.From)
	}

	index := make(map[string]int)
	var groups []DayGroup[T]

	for _, rec := range records {
		day := rec.Day()
		// The key comparison only holds for well-formed YYYY-MM-DD strings;
		// malformed dates fall through the filter and still bucket by string.
		if fromKey != "" && len(day) == len(fromKey) && day < fromKey {
			continue
		}

		i, ok := index[day]
		if !ok {
			status, label := Classify(day, now)
			groups = append(groups, DayGroup[T]{Date: day, Status: status, Label: label})
			i = len(groups) - 1
			index[day] = i
		}
		groups[i].Records = append(groups[i].Records, rec)
	}

	for i := range groups {
		sortByTimeOfDay(groups[i].Records)
	}

	switch opts.Order {
	case OrderAscending:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date < groups[j].Date })
	case OrderDescending:
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
	}

	return groups
}

// sortByTimeOfDay orders records by minutes since midnight, stable so that
// equal and unparseable times keep their input order
func sortByTimeOfDay[T Dated](records []T) {
	const unparseable = 1 << 30

	keys := make([]int, len(records))
	for i, rec := range records {
		if m, ok := ParseTimeOfDay(rec.TimeOfDay()); ok {
			keys[i] = m
		} else {
			keys[i] = unparseable
		}
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	sorted := make([]T, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}
