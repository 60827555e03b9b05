package patient

import (
	"testing"
	"time"

	"github.com/vitalink/platform/internal/shared/types"
)

var now = time.Date(2024, 1, 8, 10, 30, 0, 0, time.UTC)

func validMRN(t *testing.T) types.MRN {
	t.Helper()

	mrn, err := types.ParseMRN("123456782")
	if err != nil {
		t.Fatalf("ParseMRN: %v", err)
	}
	return mrn
}

func newTestPatient(t *testing.T) *Patient {
	t.Helper()

	p, err := New(
		validMRN(t),
		"Maria", "Santos",
		time.Date(1989, 4, 12, 0, 0, 0, 0, time.UTC),
		"female",
		types.ContactInfo{Email: "maria.santos@example.com", Phone: "555-0142"},
		types.NewAddress("12 Oak St", "Springfield", "62704"),
		now,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	p := newTestPatient(t)

	if p.ID.IsZero() {
		t.Error("expected generated id")
	}
	if p.FullName() != "Maria Santos" {
		t.Errorf("FullName() = %q", p.FullName())
	}
	if p.Address.Country != "US" {
		t.Errorf("country = %q, want default US", p.Address.Country)
	}
}

func TestNewValidation(t *testing.T) {
	mrn := validMRN(t)
	dob := time.Date(1989, 4, 12, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		mrn   types.MRN
		first string
		last  string
		dob   time.Time
	}{
		{"bad mrn", types.MRN("123456789"), "Maria", "Santos", dob},
		{"missing first name", mrn, "", "Santos", dob},
		{"missing last name", mrn, "Maria", "", dob},
		{"zero date of birth", mrn, "Maria", "Santos", time.Time{}},
		{"future date of birth", mrn, "Maria", "Santos", now.AddDate(1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mrn, tt.first, tt.last, tt.dob, "", types.ContactInfo{}, types.Address{}, now)
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAge(t *testing.T) {
	p := newTestPatient(t)

	// Born 1989-04-12
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"before this year's birthday", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), 34},
		{"on the birthday", time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC), 35},
		{"after the birthday", time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Age(tt.at); got != tt.want {
				t.Errorf("Age(%s) = %d, want %d", tt.at.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestUpdateDemographics(t *testing.T) {
	p := newTestPatient(t)
	later := now.Add(time.Hour)

	err := p.UpdateDemographics("Maria", "Okafor", "female",
		types.ContactInfo{Email: "maria.okafor@example.com"},
		types.NewAddress("44 Elm St", "Springfield", "62704"),
		later,
	)
	if err != nil {
		t.Fatalf("UpdateDemographics: %v", err)
	}

	if p.LastName != "Okafor" {
		t.Errorf("last name = %q, want Okafor", p.LastName)
	}
	if !p.UpdatedAt.Equal(later) {
		t.Errorf("updated at not bumped")
	}

	if err := p.UpdateDemographics("", "Okafor", "", types.ContactInfo{}, types.Address{}, later); err == nil {
		t.Error("expected error for empty first name")
	}
}
