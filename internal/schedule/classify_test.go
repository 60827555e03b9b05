package schedule

import (
	"testing"
	"time"
)

// fixed clock: Monday 2024-01-08
var clock = time.Date(2024, 1, 8, 10, 30, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		day        string
		wantStatus Status
		wantLabel  string
	}{
		{"today", "2024-01-08", StatusConfirmed, "Today"},
		{"tomorrow", "2024-01-09", StatusPending, "Tomorrow"},
		{"within week", "2024-01-12", StatusPending, "Fri, Jan 12"},
		{"exactly seven days", "2024-01-15", StatusPending, "Mon, Jan 15"},
		{"beyond week same year", "2024-02-20", StatusPending, "Tuesday, February 20"},
		{"beyond week next year", "2025-01-03", StatusPending, "Friday, January 3, 2025"},
		{"yesterday", "2024-01-07", StatusCompleted, "Sunday, January 7"},
		{"past previous year", "2023-11-20", StatusCompleted, "Monday, November 20, 2023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, label := Classify(tt.day, clock)
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if label != tt.wantLabel {
				t.Errorf("label = %q, want %q", label, tt.wantLabel)
			}
		})
	}
}

func TestClassifyMalformedDate(t *testing.T) {
	status, label := Classify("not-a-date", clock)
	if status != StatusPending {
		t.Errorf("status = %s, want pending", status)
	}
	if label != "" {
		t.Errorf("label = %q, want empty", label)
	}
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	// 23:59 on the same calendar day must still classify as today
	late := time.Date(2024, 1, 8, 23, 59, 59, 0, time.UTC)
	status, label := Classify("2024-01-08", late)
	if status != StatusConfirmed || label != "Today" {
		t.Errorf("got (%s, %q), want (confirmed, Today)", status, label)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantOK  bool
	}{
		{"09:00 AM", 9 * 60, true},
		{"9:00 AM", 9 * 60, true},
		{"02:00 PM", 14 * 60, true},
		{"12:00 AM", 0, true},
		{"12:30 PM", 12*60 + 30, true},
		{"14:00", 0, false},
		{"", 0, false},
		{"noonish", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseTimeOfDay(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseTimeOfDay(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
