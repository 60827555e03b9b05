package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitalink/platform/internal/shared/errors"
	"github.com/vitalink/platform/internal/shared/types"
)

// Repository provides database operations for appointments
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new appointment repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save saves a new appointment with its timeline
func (r *Repository) Save(ctx context.Context, a *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO care.appointments (
			id, patient_id, doctor_id, visit_date, time_of_day,
			patient_age, status, reason, previous_visit,
			symptoms, primary_diagnosis,
			created_at, updated_at, cancelled_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var symptoms, diagnosis *string
	if a.Prescription != nil {
		symptoms = &a.Prescription.Symptoms
		diagnosis = &a.Prescription.PrimaryDiagnosis
	}

	_, err = tx.Exec(ctx, query,
		a.ID, a.PatientID, a.DoctorID, a.VisitDate, a.VisitTime,
		a.PatientAge, a.Status, a.Reason, a.PreviousVisit,
		symptoms, diagnosis,
		a.CreatedAt, a.UpdatedAt, a.CancelledAt, a.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save appointment")
	}

	for _, ev := range a.Timeline {
		if err := saveTimelineEvent(ctx, tx, &ev); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds an appointment by ID, including its timeline
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, visit_date, time_of_day,
			patient_age, status, reason, previous_visit,
			symptoms, primary_diagnosis,
			created_at, updated_at, cancelled_at, completed_at
		FROM care.appointments
		WHERE id = $1`

	a, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find appointment")
	}

	timeline, err := r.getTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Timeline = timeline

	return a, nil
}

// Update persists changed appointment fields and any new timeline entries
func (r *Repository) Update(ctx context.Context, a *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE care.appointments SET
			visit_date = $2, time_of_day = $3, status = $4, reason = $5,
			symptoms = $6, primary_diagnosis = $7,
			updated_at = $8, cancelled_at = $9, completed_at = $10
		WHERE id = $1`

	var symptoms, diagnosis *string
	if a.Prescription != nil {
		symptoms = &a.Prescription.Symptoms
		diagnosis = &a.Prescription.PrimaryDiagnosis
	}

	result, err := tx.Exec(ctx, query,
		a.ID, a.VisitDate, a.VisitTime, a.Status, a.Reason,
		symptoms, diagnosis,
		a.UpdatedAt, a.CancelledAt, a.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update appointment")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("appointment", a.ID.String())
	}

	// Timeline entries are append-only; re-insert any that are new
	for _, ev := range a.Timeline {
		_, err := tx.Exec(ctx, `
			INSERT INTO care.appointment_events (id, appointment_id, event_type, actor_id, description, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.AppointmentID, ev.Type, ev.ActorID, ev.Description, ev.OccurredAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to save timeline event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// Delete deletes an appointment
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM care.appointments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete appointment")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("appointment", id.String())
	}
	return nil
}

// List lists appointments matching the filter
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argN := 1

	if filter.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argN)
		args = append(args, *filter.PatientID)
		argN++
	}
	if filter.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", argN)
		args = append(args, *filter.DoctorID)
		argN++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, *filter.Status)
		argN++
	}
	if filter.FromDate != "" {
		where += fmt.Sprintf(" AND visit_date >= $%d", argN)
		args = append(args, filter.FromDate)
		argN++
	}
	if filter.ToDate != "" {
		where += fmt.Sprintf(" AND visit_date <= $%d", argN)
		args = append(args, filter.ToDate)
		argN++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM care.appointments " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count appointments")
	}

	query := `
		SELECT id, patient_id, doctor_id, visit_date, time_of_day,
			patient_age, status, reason, previous_visit,
			symptoms, primary_diagnosis,
			created_at, updated_at, cancelled_at, completed_at
		FROM care.appointments ` + where + " ORDER BY visit_date, time_of_day, created_at"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list appointments")
	}
	defer rows.Close()

	var appointments []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan appointment")
		}
		appointments = append(appointments, a)
	}

	return appointments, total, nil
}

// ListCreatedSince returns appointments created at or after the cutoff,
// the input window the reporting aggregator works over
func (r *Repository) ListCreatedSince(ctx context.Context, cutoff time.Time) ([]*Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, visit_date, time_of_day,
			patient_age, status, reason, previous_visit,
			symptoms, primary_diagnosis,
			created_at, updated_at, cancelled_at, completed_at
		FROM care.appointments
		WHERE created_at >= $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list appointments for reporting")
	}
	defer rows.Close()

	var appointments []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan appointment")
		}
		appointments = append(appointments, a)
	}

	return appointments, nil
}

func (r *Repository) getTimeline(ctx context.Context, appointmentID types.ID) ([]TimelineEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, event_type, actor_id, description, occurred_at
		FROM care.appointment_events
		WHERE appointment_id = $1
		ORDER BY occurred_at`, appointmentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load timeline")
	}
	defer rows.Close()

	var timeline []TimelineEvent
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.AppointmentID, &ev.Type, &ev.ActorID, &ev.Description, &ev.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan timeline event")
		}
		timeline = append(timeline, ev)
	}

	return timeline, nil
}

func saveTimelineEvent(ctx context.Context, tx pgx.Tx, ev *TimelineEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO care.appointment_events (id, appointment_id, event_type, actor_id, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.AppointmentID, ev.Type, ev.ActorID, ev.Description, ev.OccurredAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save timeline event")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	a := &Appointment{}
	var symptoms, diagnosis *string

	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.VisitDate, &a.VisitTime,
		&a.PatientAge, &a.Status, &a.Reason, &a.PreviousVisit,
		&symptoms, &diagnosis,
		&a.CreatedAt, &a.UpdatedAt, &a.CancelledAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if symptoms != nil || diagnosis != nil {
		a.Prescription = &Prescription{}
		if symptoms != nil {
			a.Prescription.Symptoms = *symptoms
		}
		if diagnosis != nil {
			a.Prescription.PrimaryDiagnosis = *diagnosis
		}
	}

	return a, nil
}
