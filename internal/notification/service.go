package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitalink/platform/internal/shared/config"
	"github.com/vitalink/platform/internal/shared/metrics"
	"github.com/vitalink/platform/internal/shared/types"
)

// Service delivers reminders through a fixed pool of workers reading from
// a buffered channel. Failed sends are retried with a delay until the
// attempts are spent.
type Service struct {
	providers map[Channel]Provider

	mu      sync.RWMutex
	pending map[types.ID]*Reminder
	stats   Stats

	reminderCh chan *Reminder
	workers    int

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	retryAttempts int
	retryDelay    time.Duration
}

// NewService creates a reminder service with the given providers
func NewService(providers map[Channel]Provider, cfg config.NotificationConfig) *Service {
	return &Service{
		providers:     providers,
		pending:       make(map[types.ID]*Reminder),
		reminderCh:    make(chan *Reminder, cfg.BufferSize),
		workers:       cfg.Workers,
		stopCh:        make(chan struct{}),
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
}

// Start launches the worker pool
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return nil
}

// Stop waits for in-flight deliveries to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not started")
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// Enqueue submits a reminder for delivery. It fails fast when the buffer
// is full rather than blocking the caller.
func (s *Service) Enqueue(reminder *Reminder) error {
	if reminder.ID.IsZero() {
		reminder.ID = types.NewID()
	}
	now := time.Now()
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = now
	}
	reminder.UpdatedAt = now
	reminder.Status = StatusPending

	s.mu.Lock()
	s.pending[reminder.ID] = reminder
	s.stats.TotalQueued++
	s.mu.Unlock()

	select {
	case s.reminderCh <- reminder:
		return nil
	default:
		s.mu.Lock()
		delete(s.pending, reminder.ID)
		s.stats.TotalQueued--
		s.mu.Unlock()
		return fmt.Errorf("reminder buffer full")
	}
}

// Pending reports the number of reminders not yet resolved
func (s *Service) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// GetStats returns a snapshot of delivery statistics
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.ByChannel = make(map[Channel]int64, len(s.stats.ByChannel))
	for k, v := range s.stats.ByChannel {
		stats.ByChannel[k] = v
	}
	return stats
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case reminder := <-s.reminderCh:
			s.process(ctx, reminder)
		}
	}
}

func (s *Service) process(ctx context.Context, reminder *Reminder) {
	provider, ok := s.providers[reminder.Channel]

	var err error
	if !ok {
		err = fmt.Errorf("no provider for channel %s", reminder.Channel)
	} else {
		err = provider.Send(ctx, reminder)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reminder.UpdatedAt = now

	if err != nil {
		reminder.ErrorMessage = err.Error()
		reminder.RetryCount++
		reminder.LastRetryAt = &now

		if reminder.RetryCount >= s.retryAttempts {
			reminder.Status = StatusFailed
			delete(s.pending, reminder.ID)
			s.recordOutcome(reminder, false)
			return
		}

		// Re-queue after the retry delay
		go s.requeue(ctx, reminder)
		return
	}

	reminder.Status = StatusSent
	reminder.SentAt = &now
	delete(s.pending, reminder.ID)
	s.recordOutcome(reminder, true)
}

// requeue puts a reminder back on the channel after the retry delay. A
// reminder that cannot be re-queued is marked failed so it never sits in
// pending with no worker coming back for it.
func (s *Service) requeue(ctx context.Context, reminder *Reminder) {
	select {
	case <-time.After(s.retryDelay):
	case <-s.stopCh:
		return
	case <-ctx.Done():
		return
	}

	select {
	case s.reminderCh <- reminder:
	default:
		s.mu.Lock()
		defer s.mu.Unlock()

		reminder.Status = StatusFailed
		reminder.ErrorMessage = "retry queue full"
		reminder.UpdatedAt = time.Now()
		delete(s.pending, reminder.ID)
		s.recordOutcome(reminder, false)
	}
}

// recordOutcome updates stats; callers hold s.mu
func (s *Service) recordOutcome(reminder *Reminder, success bool) {
	if s.stats.ByChannel == nil {
		s.stats.ByChannel = make(map[Channel]int64)
	}
	s.stats.ByChannel[reminder.Channel]++

	if success {
		s.stats.TotalSent++
		metrics.ReminderSent(string(reminder.Channel), "sent")
	} else {
		s.stats.TotalFailed++
		metrics.ReminderSent(string(reminder.Channel), "failed")
	}

	resolved := s.stats.TotalSent + s.stats.TotalFailed
	if resolved > 0 {
		s.stats.DeliveryRate = float64(s.stats.TotalSent) / float64(resolved)
	}
}
