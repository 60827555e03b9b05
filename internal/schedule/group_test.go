package schedule

import (
	"testing"
	"time"
)

type slot struct {
	date string
	tod  string
	id   string
}

func (s slot) Day() string       { return s.date }
func (s slot) TimeOfDay() string { return s.tod }

func TestGroupByDayUpcoming(t *testing.T) {
	records := []slot{
		{"2024-01-09", "11:00 AM", "b"},
		{"2024-01-08", "09:30 AM", "a"},
		{"2024-01-09", "08:00 AM", "c"},
	}

	groups := GroupByDay(records, Options{Order: OrderAscending}, clock)

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	if groups[0].Date != "2024-01-08" || groups[0].Label != "Today" {
		t.Errorf("first group = %s/%q, want 2024-01-08/Today", groups[0].Date, groups[0].Label)
	}
	if groups[1].Date != "2024-01-09" || groups[1].Label != "Tomorrow" {
		t.Errorf("second group = %s/%q, want 2024-01-09/Tomorrow", groups[1].Date, groups[1].Label)
	}

	// within tomorrow's group, 08:00 AM must precede 11:00 AM
	if groups[1].Records[0].id != "c" || groups[1].Records[1].id != "b" {
		t.Errorf("tomorrow's records out of order: %v", groups[1].Records)
	}
}

func TestGroupByDayMorningBeforeAfternoon(t *testing.T) {
	records := []slot{
		{"2024-01-10", "02:00 PM", "pm"},
		{"2024-01-10", "09:00 AM", "am"},
	}

	groups := GroupByDay(records, Options{}, clock)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Records[0].id != "am" {
		t.Error("09:00 AM should precede 02:00 PM")
	}
}

func TestGroupByDayPreservesEveryRecord(t *testing.T) {
	records := []slot{
		{"2024-01-08", "09:00 AM", "a"},
		{"2024-01-10", "10:00 AM", "b"},
		{"2024-01-08", "08:00 AM", "c"},
		{"2024-01-12", "", "d"},
		{"garbage-date", "01:00 PM", "e"},
	}

	groups := GroupByDay(records, Options{}, clock)

	seen := make(map[string]int)
	total := 0
	for _, g := range groups {
		for _, r := range g.Records {
			seen[r.id]++
			total++
		}
	}

	if total != len(records) {
		t.Fatalf("expected %d records across groups, got %d", len(records), total)
	}
	for _, r := range records {
		if seen[r.id] != 1 {
			t.Errorf("record %s appears %d times, want exactly once", r.id, seen[r.id])
		}
	}
}

func TestGroupByDayEncounterOrder(t *testing.T) {
	records := []slot{
		{"2024-01-12", "09:00 AM", "a"},
		{"2024-01-08", "09:00 AM", "b"},
		{"2024-01-10", "09:00 AM", "c"},
	}

	groups := GroupByDay(records, Options{}, clock)
	want := []string{"2024-01-12", "2024-01-08", "2024-01-10"}
	for i, g := range groups {
		if g.Date != want[i] {
			t.Errorf("group %d = %s, want %s (first-encounter order)", i, g.Date, want[i])
		}
	}
}

func TestGroupByDayHistoryDescending(t *testing.T) {
	records := []slot{
		{"2023-12-01", "09:00 AM", "a"},
		{"2024-01-05", "09:00 AM", "b"},
		{"2023-11-11", "09:00 AM", "c"},
	}

	groups := GroupByDay(records, Options{Order: OrderDescending}, clock)
	want := []string{"2024-01-05", "2023-12-01", "2023-11-11"}
	for i, g := range groups {
		if g.Date != want[i] {
			t.Errorf("group %d = %s, want %s", i, g.Date, want[i])
		}
	}
}

func TestGroupByDayFromFilter(t *testing.T) {
	from := time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC) // time of day must not matter
	records := []slot{
		{"2024-01-07", "09:00 AM", "past"},
		{"2024-01-08", "09:00 AM", "today"},
		{"2024-01-09", "09:00 AM", "future"},
	}

	groups := GroupByDay(records, Options{From: &from, Order: OrderAscending}, clock)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups after filter, got %d", len(groups))
	}
	if groups[0].Records[0].id != "today" || groups[1].Records[0].id != "future" {
		t.Error("From filter kept the wrong records")
	}
}

func TestGroupByDayUnparseableTimesSortLast(t *testing.T) {
	records := []slot{
		{"2024-01-10", "bogus", "x"},
		{"2024-01-10", "03:00 PM", "pm"},
		{"2024-01-10", "also-bogus", "y"},
		{"2024-01-10", "09:00 AM", "am"},
	}

	groups := GroupByDay(records, Options{}, clock)
	got := make([]string, 0, 4)
	for _, r := range groups[0].Records {
		got = append(got, r.id)
	}

	want := []string{"am", "pm", "x", "y"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestGroupByDayEqualTimesKeepInputOrder(t *testing.T) {
	records := []slot{
		{"2024-01-10", "09:00 AM", "first"},
		{"2024-01-10", "09:00 AM", "second"},
	}

	groups := GroupByDay(records, Options{}, clock)
	if groups[0].Records[0].id != "first" || groups[0].Records[1].id != "second" {
		t.Error("tie-break must preserve input order")
	}
}
