package booking

import (
	"sync"
	"testing"
	"time"

	"github.com/vitalink/platform/internal/shared/types"
)

var now = time.Date(2024, 1, 8, 10, 30, 0, 0, time.UTC)

func validPersonal() *PersonalInfo {
	return &PersonalInfo{
		FirstName:   "Maria",
		LastName:    "Santos",
		Email:       "maria.santos@example.com",
		Phone:       "555-0142",
		DateOfBirth: "1989-04-12",
	}
}

func validDetails() *AppointmentDetails {
	return &AppointmentDetails{
		DoctorID: types.NewID(),
		Date:     "2024-01-15",
		Time:     "09:30 AM",
		Reason:   "Annual checkup",
	}
}

func validMedical() *MedicalInfo {
	return &MedicalInfo{
		Symptoms:      "None",
		PreviousVisit: "yes",
	}
}

func validPayment() *PaymentInfo {
	return &PaymentInfo{Method: "card", CardLast4: "4242"}
}

func advanceToPayment(t *testing.T) *Session {
	t.Helper()

	s, err := NewSession(types.NewID(), time.Hour, now)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	steps := []StepPayload{
		{Personal: validPersonal()},
		{Details: validDetails()},
		{Medical: validMedical()},
	}
	for _, payload := range steps {
		fieldErrors, err := s.Next(payload, now)
		if err != nil {
			t.Fatalf("Next on %s: %v", s.Step, err)
		}
		if fieldErrors != nil {
			t.Fatalf("Next on %s: unexpected field errors %v", s.Step, fieldErrors)
		}
	}

	if s.Step != StepPayment {
		t.Fatalf("step = %s, want %s", s.Step, StepPayment)
	}
	return s
}

func TestWizardHappyPath(t *testing.T) {
	s := advanceToPayment(t)

	fieldErrors, err := s.Submit(StepPayload{Payment: validPayment()}, now)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fieldErrors != nil {
		t.Fatalf("Submit: unexpected field errors %v", fieldErrors)
	}

	apptID := types.NewID()
	s.Complete(apptID, now)

	if s.Step != StepSuccess {
		t.Errorf("step = %s, want %s", s.Step, StepSuccess)
	}
	if s.AppointmentID != apptID {
		t.Errorf("appointment id = %s, want %s", s.AppointmentID, apptID)
	}
	if s.SubmittedAt == nil || !s.SubmittedAt.Equal(now) {
		t.Errorf("submitted at = %v, want %v", s.SubmittedAt, now)
	}
}

func TestPersonalInfoValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PersonalInfo)
		field  string
	}{
		{"missing first name", func(p *PersonalInfo) { p.FirstName = "" }, "first_name"},
		{"missing last name", func(p *PersonalInfo) { p.LastName = "" }, "last_name"},
		{"missing email", func(p *PersonalInfo) { p.Email = "" }, "email"},
		{"malformed email", func(p *PersonalInfo) { p.Email = "not-an-email" }, "email"},
		{"email without domain dot", func(p *PersonalInfo) { p.Email = "maria@localhost" }, "email"},
		{"missing phone", func(p *PersonalInfo) { p.Phone = "" }, "phone"},
		{"garbage date of birth", func(p *PersonalInfo) { p.DateOfBirth = "April 12" }, "date_of_birth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewSession(types.NewID(), time.Hour, now)

			personal := validPersonal()
			tt.mutate(personal)

			fieldErrors, err := s.Next(StepPayload{Personal: personal}, now)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if fieldErrors[tt.field] == "" {
				t.Errorf("expected field error for %s, got %v", tt.field, fieldErrors)
			}
			if s.Step != StepPersonalInfo {
				t.Errorf("step advanced to %s despite invalid input", s.Step)
			}
			// The form keeps what the user typed
			if s.Personal.FirstName != personal.FirstName {
				t.Errorf("payload not retained on validation failure")
			}
		})
	}
}

func TestAppointmentDetailsValidation(t *testing.T) {
	s, _ := NewSession(types.NewID(), time.Hour, now)
	if _, err := s.Next(StepPayload{Personal: validPersonal()}, now); err != nil {
		t.Fatalf("Next: %v", err)
	}

	details := validDetails()
	details.Time = "half past nine"

	fieldErrors, err := s.Next(StepPayload{Details: details}, now)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if fieldErrors["time"] == "" {
		t.Errorf("expected time field error, got %v", fieldErrors)
	}
	if s.Step != StepAppointmentDetails {
		t.Errorf("step = %s, want %s", s.Step, StepAppointmentDetails)
	}
}

func TestPreviousKeepsData(t *testing.T) {
	s, _ := NewSession(types.NewID(), time.Hour, now)
	if _, err := s.Next(StepPayload{Personal: validPersonal()}, now); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if err := s.Previous(now); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if s.Step != StepPersonalInfo {
		t.Errorf("step = %s, want %s", s.Step, StepPersonalInfo)
	}
	if s.Personal.Email != "maria.santos@example.com" {
		t.Errorf("personal info lost on step back")
	}

	if err := s.Previous(now); err == nil {
		t.Error("expected error stepping back from the first step")
	}
}

func TestSubmitOnlyFromPayment(t *testing.T) {
	s, _ := NewSession(types.NewID(), time.Hour, now)

	if _, err := s.Submit(StepPayload{Payment: validPayment()}, now); err == nil {
		t.Error("expected error submitting from the first step")
	}
}

func TestNextRefusesPaymentStep(t *testing.T) {
	s := advanceToPayment(t)

	if _, err := s.Next(StepPayload{Payment: validPayment()}, now); err == nil {
		t.Error("expected error advancing past the payment step without submit")
	}
}

func TestPaymentValidation(t *testing.T) {
	tests := []struct {
		name    string
		payment PaymentInfo
		field   string
	}{
		{"unknown method", PaymentInfo{Method: "cash"}, "method"},
		{"card without last4", PaymentInfo{Method: "card"}, "card_last4"},
		{"insurance without provider", PaymentInfo{Method: "insurance"}, "insurance_provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := advanceToPayment(t)

			fieldErrors, err := s.Submit(StepPayload{Payment: &tt.payment}, now)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if fieldErrors[tt.field] == "" {
				t.Errorf("expected field error for %s, got %v", tt.field, fieldErrors)
			}
			if s.Step != StepPayment {
				t.Errorf("step = %s, want %s", s.Step, StepPayment)
			}
		})
	}
}

func TestSubmitIdempotent(t *testing.T) {
	s := advanceToPayment(t)

	if _, err := s.Submit(StepPayload{Payment: validPayment()}, now); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	apptID := types.NewID()
	s.Complete(apptID, now)

	// A repeated submit must not reopen the wizard or clear the result
	fieldErrors, err := s.Submit(StepPayload{Payment: validPayment()}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeated Submit: %v", err)
	}
	if fieldErrors != nil {
		t.Fatalf("repeated Submit: unexpected field errors %v", fieldErrors)
	}
	if s.AppointmentID != apptID {
		t.Errorf("appointment id changed on repeated submit")
	}
	if !s.Submitted() {
		t.Error("Submitted() = false after completion")
	}
}

func TestPatientAge(t *testing.T) {
	s := advanceToPayment(t)

	// Born 1989-04-12, visiting 2024-01-15: birthday not yet reached
	if got := s.PatientAge(); got != 34 {
		t.Errorf("PatientAge() = %d, want 34", got)
	}

	s.Personal.DateOfBirth = "1989-01-15"
	if got := s.PatientAge(); got != 35 {
		t.Errorf("PatientAge() on birthday = %d, want 35", got)
	}

	s.Personal.DateOfBirth = "bad"
	if got := s.PatientAge(); got != 0 {
		t.Errorf("PatientAge() with bad dob = %d, want 0", got)
	}
}

func TestStoreExpiry(t *testing.T) {
	current := now
	clock := func() time.Time { return current }

	store := NewStore(30*time.Minute, clock)

	session, err := store.Create(types.NewID())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.Get(session.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	current = now.Add(31 * time.Minute)
	if _, err := store.Get(session.ID); err == nil {
		t.Error("expected not-found for expired session")
	}

	// Expired entries are swept when new sessions are created
	if _, err := store.Create(types.NewID()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := store.Len(); got != 1 {
		t.Errorf("Len() = %d after sweep, want 1", got)
	}
}

func TestStoreSubmitAtomic(t *testing.T) {
	store := NewStore(time.Hour, func() time.Time { return now })

	created, err := store.Create(types.NewID())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	steps := []StepPayload{
		{Personal: validPersonal()},
		{Details: validDetails()},
		{Medical: validMedical()},
	}
	for _, payload := range steps {
		if _, fieldErrors, err := store.Advance(created.ID, payload); err != nil || fieldErrors != nil {
			t.Fatalf("Advance: err=%v fieldErrors=%v", err, fieldErrors)
		}
	}

	// Every concurrent submit on one session must resolve to the single
	// appointment the first one books
	booked := 0
	results := make(chan types.ID, 8)

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			session, _, fieldErrors, err := store.Submit(created.ID, StepPayload{Payment: validPayment()}, func(*Session) (types.ID, error) {
				booked++ // the book callback runs under the store lock
				return types.NewID(), nil
			})
			if err != nil || fieldErrors != nil {
				t.Errorf("Submit: err=%v fieldErrors=%v", err, fieldErrors)
				return
			}
			results <- session.AppointmentID
		}()
	}
	wg.Wait()
	close(results)

	if booked != 1 {
		t.Fatalf("book callback ran %d times, want 1", booked)
	}

	var first types.ID
	for id := range results {
		if id.IsZero() {
			t.Error("submit returned a session without an appointment")
		}
		if first.IsZero() {
			first = id
		} else if id != first {
			t.Errorf("appointment id %s diverged from %s", id, first)
		}
	}

	final, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Step != StepSuccess || final.AppointmentID != first {
		t.Errorf("final session step=%s appointment=%s, want %s/%s", final.Step, final.AppointmentID, StepSuccess, first)
	}
}

func TestStoreRequiresPatient(t *testing.T) {
	store := NewStore(time.Hour, func() time.Time { return now })

	if _, err := store.Create(types.ID("")); err == nil {
		t.Error("expected error creating a session without a patient")
	}
}
