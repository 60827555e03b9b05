package appointment

import (
	"strings"
	"testing"
	"time"

	"github.com/vitalink/platform/internal/shared/types"
)

var now = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

func newTestAppointment(t *testing.T) *Appointment {
	t.Helper()
	a, err := New(types.NewID(), types.NewID(), "2024-01-10", "09:30 AM", 34, "checkup", "no", now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew(t *testing.T) {
	patientID := types.NewID()
	doctorID := types.NewID()

	a, err := New(patientID, doctorID, "2024-01-10", "09:30 AM", 34, "checkup", "yes", now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if a.ID.IsZero() {
		t.Error("Expected non-zero ID")
	}
	if a.Status != StatusScheduled {
		t.Errorf("Expected status scheduled, got %s", a.Status)
	}
	if a.PatientID != patientID || a.DoctorID != doctorID {
		t.Error("Participant IDs mismatch")
	}
	if a.PreviousVisit != "yes" {
		t.Errorf("Expected previous_visit yes, got %s", a.PreviousVisit)
	}
	if len(a.Timeline) != 1 || a.Timeline[0].Type != EventTypeBooked {
		t.Errorf("Expected a single booked timeline event, got %v", a.Timeline)
	}
	if a.Day() != "2024-01-10" || a.TimeOfDay() != "09:30 AM" {
		t.Error("Dated accessors mismatch")
	}
}

func TestNewValidation(t *testing.T) {
	patientID := types.NewID()
	doctorID := types.NewID()

	tests := []struct {
		name          string
		patientID     types.ID
		doctorID      types.ID
		date          string
		timeOfDay     string
		age           int
		errorContains string
	}{
		{"missing patient", "", doctorID, "2024-01-10", "09:30 AM", 34, "patient"},
		{"missing doctor", patientID, "", "2024-01-10", "09:30 AM", 34, "doctor"},
		{"bad date", patientID, doctorID, "01/10/2024", "09:30 AM", 34, "invalid date"},
		{"bad time", patientID, doctorID, "2024-01-10", "14:00", 34, "invalid time"},
		{"negative age", patientID, doctorID, "2024-01-10", "09:30 AM", -1, "age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.patientID, tt.doctorID, tt.date, tt.timeOfDay, tt.age, "", "no", now)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error %q does not mention %q", err, tt.errorContains)
			}
		})
	}
}

func TestNormalizesPreviousVisit(t *testing.T) {
	a, err := New(types.NewID(), types.NewID(), "2024-01-10", "09:30 AM", 34, "", "maybe", now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.PreviousVisit != "no" {
		t.Errorf("Expected previous_visit normalized to no, got %s", a.PreviousVisit)
	}
}

func TestConfirm(t *testing.T) {
	a := newTestAppointment(t)
	actor := types.NewID()

	if err := a.Confirm(actor, now); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if a.Status != StatusConfirmed {
		t.Errorf("Expected confirmed, got %s", a.Status)
	}

	// confirming twice fails
	if err := a.Confirm(actor, now); err == nil {
		t.Error("Expected error confirming an already confirmed appointment")
	}
}

func TestReschedule(t *testing.T) {
	a := newTestAppointment(t)
	actor := types.NewID()

	if err := a.Confirm(actor, now); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if err := a.Reschedule("2024-01-15", "02:00 PM", actor, now); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	if a.VisitDate != "2024-01-15" || a.VisitTime != "02:00 PM" {
		t.Error("Slot not updated")
	}
	if a.Status != StatusScheduled {
		t.Errorf("Reschedule should reset status to scheduled, got %s", a.Status)
	}

	if err := a.Reschedule("2024-01-16", "25:00 XX", actor, now); err == nil {
		t.Error("Expected error for malformed time")
	}
}

func TestCancel(t *testing.T) {
	a := newTestAppointment(t)
	actor := types.NewID()

	if err := a.Cancel(actor, "patient request", now); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if a.Status != StatusCancelled || a.CancelledAt == nil {
		t.Error("Cancel did not record state")
	}

	if err := a.Cancel(actor, "again", now); err == nil {
		t.Error("Expected error cancelling twice")
	}
	if err := a.Reschedule("2024-01-16", "09:00 AM", actor, now); err == nil {
		t.Error("Expected error rescheduling a cancelled appointment")
	}
}

func TestComplete(t *testing.T) {
	a := newTestAppointment(t)
	actor := types.NewID()

	prescription := &Prescription{Symptoms: "headache", PrimaryDiagnosis: "Migraine"}
	if err := a.Complete(actor, prescription, now); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if a.Status != StatusCompleted || a.CompletedAt == nil {
		t.Error("Complete did not record state")
	}
	if a.Prescription == nil || a.Prescription.PrimaryDiagnosis != "Migraine" {
		t.Error("Prescription not recorded")
	}

	var sawPrescribed bool
	for _, ev := range a.Timeline {
		if ev.Type == EventTypePrescribed {
			sawPrescribed = true
		}
	}
	if !sawPrescribed {
		t.Error("Expected a prescribed timeline event")
	}

	if err := a.Complete(actor, nil, now); err == nil {
		t.Error("Expected error completing twice")
	}
}

func TestCompleteCancelledFails(t *testing.T) {
	a := newTestAppointment(t)
	actor := types.NewID()

	if err := a.Cancel(actor, "", now); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := a.Complete(actor, nil, now); err == nil {
		t.Error("Expected error completing a cancelled appointment")
	}
}
