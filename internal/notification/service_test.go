package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vitalink/platform/internal/shared/config"
	"github.com/vitalink/platform/internal/shared/types"
)

func testConfig() config.NotificationConfig {
	return config.NotificationConfig{
		Workers:       2,
		BufferSize:    16,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	}
}

func newTestService(t *testing.T, providers map[Channel]Provider) *Service {
	t.Helper()

	s := NewService(providers, testConfig())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testReminder(channel Channel) *Reminder {
	return &Reminder{
		AppointmentID: types.NewID(),
		PatientID:     types.NewID(),
		Channel:       channel,
		Recipient:     "maria.santos@example.com",
		Subject:       "Appointment reminder",
		Body:          "See you tomorrow at 09:30 AM.",
	}
}

func TestDeliversThroughProvider(t *testing.T) {
	email := NewMockProvider()
	s := newTestService(t, map[Channel]Provider{ChannelEmail: email})

	r := testReminder(ChannelEmail)
	if err := s.Enqueue(r); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(email.Sent()) == 1 })

	waitFor(t, time.Second, func() bool { return s.Pending() == 0 })

	stats := s.GetStats()
	if stats.TotalSent != 1 || stats.TotalFailed != 0 {
		t.Errorf("stats = %+v, want one sent", stats)
	}
	if stats.ByChannel[ChannelEmail] != 1 {
		t.Errorf("by channel = %v", stats.ByChannel)
	}
}

func TestRetriesUntilBudgetSpent(t *testing.T) {
	email := NewMockProvider()
	email.SetFailOnSend(true)
	s := newTestService(t, map[Channel]Provider{ChannelEmail: email})

	r := testReminder(ChannelEmail)
	if err := s.Enqueue(r); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return s.GetStats().TotalFailed == 1
	})

	if r.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", r.RetryCount)
	}
	if r.Status != StatusFailed {
		t.Errorf("status = %s, want %s", r.Status, StatusFailed)
	}
	if r.ErrorMessage == "" {
		t.Error("expected error message recorded")
	}
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	email := NewMockProvider()
	email.SetFailOnSend(true)
	s := newTestService(t, map[Channel]Provider{ChannelEmail: email})

	if err := s.Enqueue(testReminder(ChannelEmail)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Let the first attempt fail, then heal the provider
	waitFor(t, time.Second, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.stats.TotalQueued == 1 && len(s.pending) == 1
	})
	email.SetFailOnSend(false)

	waitFor(t, 2*time.Second, func() bool { return s.GetStats().TotalSent == 1 })
}

func TestUnknownChannelFails(t *testing.T) {
	s := newTestService(t, map[Channel]Provider{})

	if err := s.Enqueue(testReminder(ChannelSMS)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return s.GetStats().TotalFailed == 1 })
}

func TestEnqueueFailsWhenBufferFull(t *testing.T) {
	// Not started, so nothing drains the channel
	cfg := testConfig()
	cfg.BufferSize = 1
	s := NewService(map[Channel]Provider{ChannelEmail: NewMockProvider()}, cfg)

	if err := s.Enqueue(testReminder(ChannelEmail)); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := s.Enqueue(testReminder(ChannelEmail)); err == nil {
		t.Error("expected error when buffer is full")
	}
	if s.Pending() != 1 {
		t.Errorf("pending = %d, want only the queued reminder", s.Pending())
	}
}

func TestRequeueIntoFullBufferMarksFailed(t *testing.T) {
	// Not started, so the buffered reminder stays put and blocks the retry
	cfg := testConfig()
	cfg.BufferSize = 1
	cfg.RetryDelay = time.Millisecond
	s := NewService(map[Channel]Provider{ChannelEmail: NewMockProvider()}, cfg)

	if err := s.Enqueue(testReminder(ChannelEmail)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	r := testReminder(ChannelEmail)
	r.ID = types.NewID()
	s.mu.Lock()
	s.pending[r.ID] = r
	s.stats.TotalQueued++
	s.mu.Unlock()

	s.requeue(context.Background(), r)

	if r.Status != StatusFailed {
		t.Errorf("status = %s, want %s", r.Status, StatusFailed)
	}
	if r.ErrorMessage == "" {
		t.Error("expected error message recorded")
	}
	if s.Pending() != 1 {
		t.Errorf("pending = %d, want only the buffered reminder", s.Pending())
	}
	if s.GetStats().TotalFailed != 1 {
		t.Errorf("total failed = %d, want 1", s.GetStats().TotalFailed)
	}
}

func TestStatsEndpoint(t *testing.T) {
	email := NewMockProvider()
	s := newTestService(t, map[Channel]Provider{ChannelEmail: email})

	if err := s.Enqueue(testReminder(ChannelEmail)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.GetStats().TotalSent == 1 })

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	NewHandler(s).Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var body struct {
		Stats   Stats `json:"stats"`
		Pending int   `json:"pending"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.TotalSent != 1 {
		t.Errorf("total sent = %d, want 1", body.Stats.TotalSent)
	}
	if body.Stats.ByChannel[ChannelEmail] != 1 {
		t.Errorf("by channel = %v", body.Stats.ByChannel)
	}
}

func TestStartTwiceFails(t *testing.T) {
	s := newTestService(t, map[Channel]Provider{})

	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error starting twice")
	}
}
