package reporting

import (
	"reflect"
	"testing"
	"time"

	"github.com/vitalink/platform/internal/appointment"
	"github.com/vitalink/platform/internal/shared/types"
)

var now = time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

func record(age int, createdAt time.Time, previousVisit string, prescription *appointment.Prescription) *appointment.Appointment {
	return &appointment.Appointment{
		ID:            types.NewID(),
		PatientID:     types.NewID(),
		DoctorID:      types.NewID(),
		VisitDate:     createdAt.Format("2006-01-02"),
		VisitTime:     "09:00 AM",
		PatientAge:    age,
		Status:        appointment.StatusCompleted,
		PreviousVisit: previousVisit,
		Prescription:  prescription,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestAgeHistogramFullDenominator(t *testing.T) {
	// Out-of-bin ages (under 18) stay in the denominator, so bins sum < 100
	records := []*appointment.Appointment{
		record(20, now, "no", nil),
		record(30, now, "no", nil),
		record(70, now, "no", nil),
		record(16, now, "no", nil),
	}

	d := Aggregate(records, now)

	got := make(map[string]AgeGroup)
	for _, g := range d.AgeGroups {
		got[g.Range] = g
	}

	if got["18-25"].Count != 1 || got["18-25"].Percent != 25 {
		t.Errorf("18-25 = %+v, want count 1 percent 25", got["18-25"])
	}
	if got["26-35"].Count != 1 || got["26-35"].Percent != 25 {
		t.Errorf("26-35 = %+v, want count 1 percent 25", got["26-35"])
	}
	if got["65+"].Count != 1 || got["65+"].Percent != 25 {
		t.Errorf("65+ = %+v, want count 1 percent 25", got["65+"])
	}

	sum := 0
	counted := 0
	for _, g := range d.AgeGroups {
		sum += g.Percent
		counted += g.Count
	}
	if counted != 3 {
		t.Errorf("binned count = %d, want 3 (age 16 dropped)", counted)
	}
	if sum >= 100 {
		t.Errorf("percent sum = %d, want < 100 with an out-of-bin age present", sum)
	}
}

func TestAgeHistogramSumsToHundredWhenAllBinned(t *testing.T) {
	records := []*appointment.Appointment{
		record(20, now, "no", nil),
		record(40, now, "no", nil),
		record(60, now, "no", nil),
		record(80, now, "no", nil),
	}

	d := Aggregate(records, now)

	sum := 0
	for _, g := range d.AgeGroups {
		sum += g.Percent
	}
	if sum != 100 {
		t.Errorf("percent sum = %d, want exactly 100 when every age is binned", sum)
	}
}

func TestVisitFrequencyRollingWindow(t *testing.T) {
	records := []*appointment.Appointment{
		record(30, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), "no", nil),   // current month, new
		record(30, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "yes", nil),  // current month, returning
		record(30, time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC), "yes", nil), // last month
		record(30, time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), "no", nil),   // oldest month in window
		record(30, time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC), "no", nil),  // outside window, dropped
	}

	d := Aggregate(records, now)

	if len(d.VisitFrequency) != 12 {
		t.Fatalf("expected 12 months, got %d", len(d.VisitFrequency))
	}

	// window runs Feb 2023 .. Jan 2024
	if d.VisitFrequency[0].Month != "Feb" {
		t.Errorf("first month = %s, want Feb (month after current, a year back)", d.VisitFrequency[0].Month)
	}
	if d.VisitFrequency[11].Month != "Jan" {
		t.Errorf("last month = %s, want Jan (current month)", d.VisitFrequency[11].Month)
	}

	jan := d.VisitFrequency[11]
	if jan.NewPatients != 1 || jan.ReturningPatients != 1 {
		t.Errorf("Jan = %+v, want 1 new / 1 returning", jan)
	}

	dec := d.VisitFrequency[10]
	if dec.Month != "Dec" || dec.ReturningPatients != 1 {
		t.Errorf("Dec = %+v, want 1 returning", dec)
	}

	feb := d.VisitFrequency[0]
	if feb.NewPatients != 1 {
		t.Errorf("Feb = %+v, want 1 new (Dec 2022 record must be dropped)", feb)
	}
}

func TestTopConditionsTrend(t *testing.T) {
	lastMonth := time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC)

	var records []*appointment.Appointment
	// Hypertension: 10 total, 3 in the preceding calendar month -> +30%
	for i := 0; i < 7; i++ {
		records = append(records, record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: "Hypertension"}))
	}
	for i := 0; i < 3; i++ {
		records = append(records, record(40, lastMonth, "no", &appointment.Prescription{PrimaryDiagnosis: "Hypertension"}))
	}
	records = append(records, record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: "Diabetes"}))

	d := Aggregate(records, now)

	if len(d.TopConditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(d.TopConditions))
	}
	top := d.TopConditions[0]
	if top.Name != "Hypertension" || top.Count != 10 {
		t.Errorf("top condition = %+v, want Hypertension/10", top)
	}
	if top.Trend != "+30%" {
		t.Errorf("trend = %s, want +30%%", top.Trend)
	}
}

func TestTopConditionsOrderAndCap(t *testing.T) {
	var records []*appointment.Appointment
	// 12 distinct diagnoses; diagnosis i appears i+1 times
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}
	for i, name := range names {
		for j := 0; j <= i; j++ {
			records = append(records, record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: name}))
		}
	}

	d := Aggregate(records, now)

	if len(d.TopConditions) != 10 {
		t.Fatalf("expected top 10, got %d", len(d.TopConditions))
	}
	for i := 1; i < len(d.TopConditions); i++ {
		if d.TopConditions[i].Count > d.TopConditions[i-1].Count {
			t.Fatalf("conditions not sorted descending at %d: %v", i, d.TopConditions)
		}
	}
	if d.TopConditions[0].Name != "L" {
		t.Errorf("most frequent = %s, want L", d.TopConditions[0].Name)
	}
}

func TestTopConditionsTieBreakFirstEncounter(t *testing.T) {
	records := []*appointment.Appointment{
		record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: "Asthma"}),
		record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: "Anemia"}),
		record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: "Asthma"}),
		record(40, now, "no", &appointment.Prescription{PrimaryDiagnosis: "Anemia"}),
	}

	d := Aggregate(records, now)
	if d.TopConditions[0].Name != "Asthma" {
		t.Errorf("tie should break by first encounter, got %s first", d.TopConditions[0].Name)
	}
}

func TestTopSymptomsExactMatch(t *testing.T) {
	records := []*appointment.Appointment{
		record(40, now, "no", &appointment.Prescription{Symptoms: "headache"}),
		record(40, now, "no", &appointment.Prescription{Symptoms: "Headache"}),
		record(40, now, "no", &appointment.Prescription{Symptoms: "headache"}),
		record(40, now, "no", &appointment.Prescription{Symptoms: "fever"}),
	}

	d := Aggregate(records, now)

	if d.TopSymptoms[0].Name != "headache" || d.TopSymptoms[0].Count != 2 {
		t.Errorf("top symptom = %+v, want headache/2", d.TopSymptoms[0])
	}
	// "Headache" must not be folded into "headache"
	if len(d.TopSymptoms) != 3 {
		t.Errorf("expected 3 distinct symptoms (exact-string grouping), got %d", len(d.TopSymptoms))
	}
}

func TestAggregateIdempotent(t *testing.T) {
	records := []*appointment.Appointment{
		record(20, now, "no", &appointment.Prescription{Symptoms: "cough", PrimaryDiagnosis: "Bronchitis"}),
		record(35, time.Date(2023, 12, 2, 0, 0, 0, 0, time.UTC), "yes", &appointment.Prescription{PrimaryDiagnosis: "Bronchitis"}),
		record(16, now, "no", nil),
	}

	first := Aggregate(records, now)
	second := Aggregate(records, now)

	if !reflect.DeepEqual(first, second) {
		t.Error("Aggregate is not idempotent over immutable input")
	}
}
