package notification

import (
	"time"

	"github.com/vitalink/platform/internal/shared/types"
)

// Channel is the delivery channel for a reminder
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Status is the delivery status of a reminder
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Reminder is one appointment reminder to deliver
type Reminder struct {
	ID            types.ID `json:"id"`
	AppointmentID types.ID `json:"appointment_id"`
	PatientID     types.ID `json:"patient_id"`

	Channel   Channel `json:"channel"`
	Recipient string  `json:"recipient"` // email address or phone number
	Subject   string  `json:"subject"`
	Body      string  `json:"body"`

	Status       Status     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats counts reminder outcomes since startup
type Stats struct {
	TotalQueued  int64             `json:"total_queued"`
	TotalSent    int64             `json:"total_sent"`
	TotalFailed  int64             `json:"total_failed"`
	ByChannel    map[Channel]int64 `json:"by_channel"`
	DeliveryRate float64           `json:"delivery_rate"`
}
