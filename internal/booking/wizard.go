package booking

import (
	"fmt"
	"regexp"
	"time"

	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/types"
)

// Step identifies a wizard step. The flow is strictly linear:
// personal_info -> appointment_details -> medical_info -> payment -> success.
type Step string

const (
	StepPersonalInfo       Step = "personal_info"
	StepAppointmentDetails Step = "appointment_details"
	StepMedicalInfo        Step = "medical_info"
	StepPayment            Step = "payment"
	StepSuccess            Step = "success"
)

var stepOrder = []Step{StepPersonalInfo, StepAppointmentDetails, StepMedicalInfo, StepPayment, StepSuccess}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// PersonalInfo is the first step's data
type PersonalInfo struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
}

// AppointmentDetails is the second step's data
type AppointmentDetails struct {
	DoctorID types.ID `json:"doctor_id"`
	Date     string   `json:"date"`
	Time     string   `json:"time"`
	Reason   string   `json:"reason"`
}

// MedicalInfo is the third step's data
type MedicalInfo struct {
	Symptoms      string `json:"symptoms"`
	Allergies     string `json:"allergies"`
	Medications   string `json:"medications"`
	PreviousVisit string `json:"previous_visit"` // "yes" or "no"
}

// PaymentInfo is the final step's data
type PaymentInfo struct {
	Method            string `json:"method"` // card or insurance
	CardLast4         string `json:"card_last4,omitempty"`
	InsuranceProvider string `json:"insurance_provider,omitempty"`
}

// StepPayload carries the data for whichever step is being advanced
type StepPayload struct {
	Personal *PersonalInfo       `json:"personal,omitempty"`
	Details  *AppointmentDetails `json:"details,omitempty"`
	Medical  *MedicalInfo        `json:"medical,omitempty"`
	Payment  *PaymentInfo        `json:"payment,omitempty"`
}

// Session is one patient's pass through the booking wizard
type Session struct {
	ID        types.ID `json:"id"`
	PatientID types.ID `json:"patient_id"`
	Step      Step     `json:"step"`

	Personal PersonalInfo       `json:"personal"`
	Details  AppointmentDetails `json:"details"`
	Medical  MedicalInfo        `json:"medical"`
	Payment  PaymentInfo        `json:"payment"`

	// AppointmentID is set on the first successful submit; later submits
	// return the same appointment instead of creating another
	AppointmentID types.ID   `json:"appointment_id,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession starts a wizard session for a patient
func NewSession(patientID types.ID, ttl time.Duration, now time.Time) (*Session, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}

	return &Session{
		ID:        types.NewID(),
		PatientID: patientID,
		Step:      StepPersonalInfo,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Next applies the payload for the current step and advances if the step
// validates. On validation failure the returned map carries field-level
// error strings and the session stays on the current step with the payload
// retained, matching how the form keeps what the user typed.
func (s *Session) Next(payload StepPayload, now time.Time) (map[string]string, error) {
	if s.Step == StepSuccess {
		return nil, fmt.Errorf("wizard already completed")
	}
	if s.Step == StepPayment {
		return nil, fmt.Errorf("final step must be submitted, not advanced")
	}

	s.apply(payload)
	s.UpdatedAt = now

	if fieldErrors := s.validateStep(s.Step); len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	s.Step = nextStep(s.Step)
	return nil, nil
}

// Previous steps back without validating and without clearing any data
func (s *Session) Previous(now time.Time) error {
	switch s.Step {
	case StepPersonalInfo:
		return fmt.Errorf("already on the first step")
	case StepSuccess:
		return fmt.Errorf("wizard already completed")
	}

	s.Step = prevStep(s.Step)
	s.UpdatedAt = now
	return nil
}

// Submit validates the payment step and marks the wizard complete. The
// appointment itself is created by the caller; Complete records the result.
func (s *Session) Submit(payload StepPayload, now time.Time) (map[string]string, error) {
	if s.Step == StepSuccess {
		// Idempotent: the first submit already produced the appointment
		return nil, nil
	}
	if s.Step != StepPayment {
		return nil, fmt.Errorf("cannot submit from step %s", s.Step)
	}

	s.apply(payload)
	s.UpdatedAt = now

	if fieldErrors := s.validateStep(StepPayment); len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	return nil, nil
}

// Complete records the created appointment and moves to the terminal step
func (s *Session) Complete(appointmentID types.ID, now time.Time) {
	s.AppointmentID = appointmentID
	s.SubmittedAt = &now
	s.UpdatedAt = now
	s.Step = StepSuccess
}

// Submitted reports whether an appointment was already created
func (s *Session) Submitted() bool {
	return !s.AppointmentID.IsZero()
}

// Expired reports whether the session TTL has passed
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PatientAge computes the patient's age in whole years at the visit date
func (s *Session) PatientAge() int {
	dob, err := schedule.ParseDay(s.Personal.DateOfBirth)
	if err != nil {
		return 0
	}
	visit, err := schedule.ParseDay(s.Details.Date)
	if err != nil {
		return 0
	}

	age := visit.Year() - dob.Year()
	if visit.Month() < dob.Month() || (visit.Month() == dob.Month() && visit.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func (s *Session) apply(payload StepPayload) {
	switch s.Step {
	case StepPersonalInfo:
		if payload.Personal != nil {
			s.Personal = *payload.Personal
		}
	case StepAppointmentDetails:
		if payload.Details != nil {
			s.Details = *payload.Details
		}
	case StepMedicalInfo:
		if payload.Medical != nil {
			s.Medical = *payload.Medical
		}
	case StepPayment:
		if payload.Payment != nil {
			s.Payment = *payload.Payment
		}
	}
}

func (s *Session) validateStep(step Step) map[string]string {
	fieldErrors := make(map[string]string)

	switch step {
	case StepPersonalInfo:
		if s.Personal.FirstName == "" {
			fieldErrors["first_name"] = "first name is required"
		}
		if s.Personal.LastName == "" {
			fieldErrors["last_name"] = "last name is required"
		}
		if s.Personal.Email == "" {
			fieldErrors["email"] = "email is required"
		} else if !emailRegex.MatchString(s.Personal.Email) {
			fieldErrors["email"] = "invalid email address"
		}
		if s.Personal.Phone == "" {
			fieldErrors["phone"] = "phone is required"
		}
		if s.Personal.DateOfBirth == "" {
			fieldErrors["date_of_birth"] = "date of birth is required"
		} else if _, err := schedule.ParseDay(s.Personal.DateOfBirth); err != nil {
			fieldErrors["date_of_birth"] = "invalid date of birth"
		}

	case StepAppointmentDetails:
		if s.Details.DoctorID.IsZero() {
			fieldErrors["doctor_id"] = "doctor is required"
		}
		if s.Details.Date == "" {
			fieldErrors["date"] = "date is required"
		} else if _, err := schedule.ParseDay(s.Details.Date); err != nil {
			fieldErrors["date"] = "invalid date"
		}
		if s.Details.Time == "" {
			fieldErrors["time"] = "time is required"
		} else if _, ok := schedule.ParseTimeOfDay(s.Details.Time); !ok {
			fieldErrors["time"] = "invalid time"
		}

	case StepMedicalInfo:
		if s.Medical.Symptoms == "" {
			fieldErrors["symptoms"] = "symptoms are required"
		}
		if s.Medical.PreviousVisit != "yes" && s.Medical.PreviousVisit != "no" {
			fieldErrors["previous_visit"] = "previous visit must be yes or no"
		}

	case StepPayment:
		switch s.Payment.Method {
		case "card":
			if len(s.Payment.CardLast4) != 4 {
				fieldErrors["card_last4"] = "card last four digits are required"
			}
		case "insurance":
			if s.Payment.InsuranceProvider == "" {
				fieldErrors["insurance_provider"] = "insurance provider is required"
			}
		default:
			fieldErrors["method"] = "payment method must be card or insurance"
		}
	}

	if len(fieldErrors) == 0 {
		return nil
	}
	return fieldErrors
}

func nextStep(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i < len(stepOrder)-1 {
			return stepOrder[i+1]
		}
	}
	return s
}

func prevStep(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i > 0 {
			return stepOrder[i-1]
		}
	}
	return s
}
