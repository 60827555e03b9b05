package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Provider delivers a reminder over one channel
type Provider interface {
	Send(ctx context.Context, reminder *Reminder) error
}

// ConsoleProvider logs reminders instead of delivering them. Used in
// development and as the default when no real provider is configured.
type ConsoleProvider struct {
	prefix string
}

// NewConsoleProvider creates a console provider
func NewConsoleProvider(prefix string) *ConsoleProvider {
	return &ConsoleProvider{prefix: prefix}
}

func (p *ConsoleProvider) Send(ctx context.Context, reminder *Reminder) error {
	log.Printf("[%s] to=%s subject=%q", p.prefix, reminder.Recipient, reminder.Subject)
	return nil
}

// MockProvider records sent reminders for tests
type MockProvider struct {
	mu         sync.Mutex
	sent       []*Reminder
	failOnSend bool
	sendDelay  time.Duration
}

// NewMockProvider creates a mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Send(ctx context.Context, reminder *Reminder) error {
	if p.sendDelay > 0 {
		select {
		case <-time.After(p.sendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOnSend {
		return fmt.Errorf("mock send failure")
	}

	p.sent = append(p.sent, reminder)
	return nil
}

// SetFailOnSend makes subsequent sends fail
func (p *MockProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// SetSendDelay adds latency to each send
func (p *MockProvider) SetSendDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendDelay = delay
}

// Sent returns a copy of the delivered reminders
func (p *MockProvider) Sent() []*Reminder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Reminder, len(p.sent))
	copy(out, p.sent)
	return out
}
