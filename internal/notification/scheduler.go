package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vitalink/platform/internal/appointment"
	"github.com/vitalink/platform/internal/patient"
	"github.com/vitalink/platform/internal/schedule"
	"github.com/vitalink/platform/internal/shared/types"
)

// Scheduler periodically scans for appointments inside the reminder lead
// window and enqueues a reminder per patient contact channel. Each
// appointment is reminded at most once per process lifetime.
type Scheduler struct {
	service      *Service
	appointments *appointment.Repository
	patients     *patient.Repository

	lead     time.Duration
	interval time.Duration
	clock    func() time.Time

	mu       sync.Mutex
	reminded map[types.ID]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a reminder scheduler
func NewScheduler(service *Service, appointments *appointment.Repository, patients *patient.Repository, lead, interval time.Duration, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		service:      service,
		appointments: appointments,
		patients:     patients,
		lead:         lead,
		interval:     interval,
		clock:        clock,
		reminded:     make(map[types.ID]bool),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the scan loop until Stop or context cancellation
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					log.Printf("reminder scan failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the scan loop
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce scans the lead-window day and enqueues reminders
func (s *Scheduler) RunOnce(ctx context.Context) error {
	day := schedule.FormatDay(s.clock().Add(s.lead))

	appointments, _, err := s.appointments.List(ctx, appointment.ListFilter{
		FromDate: day,
		ToDate:   day,
	})
	if err != nil {
		return err
	}

	for _, a := range appointments {
		if a.Status != appointment.StatusScheduled && a.Status != appointment.StatusConfirmed {
			continue
		}

		s.mu.Lock()
		done := s.reminded[a.ID]
		if !done {
			s.reminded[a.ID] = true
		}
		s.mu.Unlock()
		if done {
			continue
		}

		if err := s.remind(ctx, a); err != nil {
			log.Printf("failed to enqueue reminder for appointment %s: %v", a.ID, err)
		}
	}

	return nil
}

func (s *Scheduler) remind(ctx context.Context, a *appointment.Appointment) error {
	p, err := s.patients.FindByID(ctx, a.PatientID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Appointment reminder: %s at %s", a.VisitDate, a.VisitTime)
	body := fmt.Sprintf("Hi %s, this is a reminder of your appointment on %s at %s.",
		p.FirstName, a.VisitDate, a.VisitTime)

	var enqueued bool
	if p.Contact.Email != "" {
		err := s.service.Enqueue(&Reminder{
			AppointmentID: a.ID,
			PatientID:     p.ID,
			Channel:       ChannelEmail,
			Recipient:     p.Contact.Email,
			Subject:       subject,
			Body:          body,
		})
		if err != nil {
			return err
		}
		enqueued = true
	}
	if p.Contact.Phone != "" {
		err := s.service.Enqueue(&Reminder{
			AppointmentID: a.ID,
			PatientID:     p.ID,
			Channel:       ChannelSMS,
			Recipient:     p.Contact.Phone,
			Subject:       subject,
			Body:          body,
		})
		if err != nil {
			return err
		}
		enqueued = true
	}

	if !enqueued {
		return fmt.Errorf("patient %s has no contact channel", p.ID)
	}
	return nil
}
