package appointment

import (
	"fmt"
	"time"

	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/types"
)

// Status defines the persisted status of an appointment. The display status
// on grouped views is derived from the visit date instead (see schedule).
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// EventType identifies entries on an appointment's timeline
type EventType string

const (
	EventTypeBooked      EventType = "booked"
	EventTypeConfirmed   EventType = "confirmed"
	EventTypeRescheduled EventType = "rescheduled"
	EventTypeCancelled   EventType = "cancelled"
	EventTypeCompleted   EventType = "completed"
	EventTypePrescribed  EventType = "prescribed"
)

// Prescription captures the outcome of a completed visit
type Prescription struct {
	Symptoms         string `json:"symptoms,omitempty"`
	PrimaryDiagnosis string `json:"primary_diagnosis,omitempty"`
}

// Appointment is the aggregate root for a scheduled visit
type Appointment struct {
	ID        types.ID `json:"id"`
	PatientID types.ID `json:"patient_id"`
	DoctorID  types.ID `json:"doctor_id"`

	// VisitDate is the calendar day (YYYY-MM-DD) and VisitTime the
	// time-of-day slot ("hh:mm AM/PM"); together they are what the
	// grouped views bucket and order by.
	VisitDate string `json:"date"`
	VisitTime string `json:"time"`

	PatientAge    int    `json:"patient_age"`
	Status        Status `json:"status"`
	Reason        string `json:"reason,omitempty"`
	PreviousVisit string `json:"previous_visit"` // "yes" marks a returning patient

	Prescription *Prescription `json:"prescription,omitempty"`

	Timeline []TimelineEvent `json:"timeline,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TimelineEvent is one entry in an appointment's history
type TimelineEvent struct {
	ID            types.ID  `json:"id"`
	AppointmentID types.ID  `json:"appointment_id"`
	Type          EventType `json:"type"`
	ActorID       types.ID  `json:"actor_id,omitempty"`
	Description   string    `json:"description,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Day implements schedule.Dated
func (a *Appointment) Day() string { return a.VisitDate }

// TimeOfDay implements schedule.Dated
func (a *Appointment) TimeOfDay() string { return a.VisitTime }

// New creates a new appointment with validation
func New(patientID, doctorID types.ID, visitDate, visitTime string, patientAge int, reason, previousVisit string, now time.Time) (*Appointment, error) {
	if patientID.IsZero() {
		return nil, fmt.Errorf("patient is required")
	}
	if doctorID.IsZero() {
		return nil, fmt.Errorf("doctor is required")
	}
	if _, err := schedule.ParseDay(visitDate); err != nil {
		return nil, err
	}
	if _, ok := schedule.ParseTimeOfDay(visitTime); !ok {
		return nil, fmt.Errorf("invalid time %q: expected hh:mm AM/PM", visitTime)
	}
	if patientAge < 0 {
		return nil, fmt.Errorf("patient age cannot be negative")
	}
	if previousVisit != "yes" {
		previousVisit = "no"
	}

	a := &Appointment{
		ID:            types.NewID(),
		PatientID:     patientID,
		DoctorID:      doctorID,
		VisitDate:     visitDate,
		VisitTime:     visitTime,
		PatientAge:    patientAge,
		Status:        StatusScheduled,
		Reason:        reason,
		PreviousVisit: previousVisit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	a.addTimeline(EventTypeBooked, patientID, "Appointment booked", now)

	return a, nil
}

// Confirm transitions a scheduled appointment to confirmed
func (a *Appointment) Confirm(actorID types.ID, now time.Time) error {
	if a.Status != StatusScheduled {
		return fmt.Errorf("can only confirm a scheduled appointment")
	}

	a.Status = StatusConfirmed
	a.UpdatedAt = now
	a.addTimeline(EventTypeConfirmed, actorID, "Appointment confirmed", now)

	return nil
}

// Reschedule moves the appointment to a new date and time slot
func (a *Appointment) Reschedule(visitDate, visitTime string, actorID types.ID, now time.Time) error {
	if a.Status == StatusCompleted || a.Status == StatusCancelled {
		return fmt.Errorf("cannot reschedule a %s appointment", a.Status)
	}
	if _, err := schedule.ParseDay(visitDate); err != nil {
		return err
	}
	if _, ok := schedule.ParseTimeOfDay(visitTime); !ok {
		return fmt.Errorf("invalid time %q: expected hh:mm AM/PM", visitTime)
	}

	old := a.VisitDate + " " + a.VisitTime
	a.VisitDate = visitDate
	a.VisitTime = visitTime
	a.Status = StatusScheduled
	a.UpdatedAt = now
	a.addTimeline(EventTypeRescheduled, actorID,
		fmt.Sprintf("Rescheduled from %s to %s %s", old, visitDate, visitTime), now)

	return nil
}

// Cancel cancels the appointment
func (a *Appointment) Cancel(actorID types.ID, reason string, now time.Time) error {
	if a.Status == StatusCompleted {
		return fmt.Errorf("cannot cancel a completed appointment")
	}
	if a.Status == StatusCancelled {
		return fmt.Errorf("appointment is already cancelled")
	}

	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.UpdatedAt = now
	a.addTimeline(EventTypeCancelled, actorID, reason, now)

	return nil
}

// Complete marks the visit as completed, optionally recording a prescription
func (a *Appointment) Complete(actorID types.ID, prescription *Prescription, now time.Time) error {
	if a.Status == StatusCancelled {
		return fmt.Errorf("cannot complete a cancelled appointment")
	}
	if a.Status == StatusCompleted {
		return fmt.Errorf("appointment is already completed")
	}

	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.UpdatedAt = now
	a.addTimeline(EventTypeCompleted, actorID, "Visit completed", now)

	if prescription != nil {
		a.Prescription = prescription
		a.addTimeline(EventTypePrescribed, actorID, prescription.PrimaryDiagnosis, now)
	}

	return nil
}

func (a *Appointment) addTimeline(eventType EventType, actorID types.ID, description string, now time.Time) {
	a.Timeline = append(a.Timeline, TimelineEvent{
		ID:            types.NewID(),
		AppointmentID: a.ID,
		Type:          eventType,
		ActorID:       actorID,
		Description:   description,
		OccurredAt:    now,
	})
}

// --- Request/Response types ---

type CreateAppointmentRequest struct {
	PatientID     types.ID `json:"patient_id"`
	DoctorID      types.ID `json:"doctor_id"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	PatientAge    int      `json:"patient_age"`
	Reason        string   `json:"reason,omitempty"`
	PreviousVisit string   `json:"previous_visit,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CompleteRequest struct {
	Symptoms         string `json:"symptoms,omitempty"`
	PrimaryDiagnosis string `json:"primary_diagnosis,omitempty"`
}

type ListFilter struct {
	PatientID *types.ID
	DoctorID  *types.ID
	Status    *Status
	FromDate  string
	ToDate    string
	Limit     int
	Offset    int
}
