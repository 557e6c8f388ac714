package queue

import (
	"time"

	"github.com/akmatori/incidentd/internal/alerts"
)

// Redis keys of the pipeline queues
const (
	RawAlerts              = "alerts:raw"
	RetryAlerts            = "alerts:retry"
	ErrorAlerts            = "alerts:error"
	SuccessAlerts          = "alerts:success"
	Incidents              = "incidents:queue"
	IncidentDeadLetter     = "incidents:dead-letter"
	Notifications          = "notifications:queue"
	NotificationDeadLetter = "notifications:dead-letter"
)

// Pipeline stages recorded on error queue entries
const (
	StageVerification  = "verification"
	StageNormalization = "normalization"
)

// Notification types understood by the notification worker
const (
	NotificationIncidentAssignment = "incident_assignment"
	NotificationEscalation         = "escalation"
	NotificationAcknowledged       = "acknowledged"
	NotificationResolved           = "resolved"
)

// Delivery channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// DefaultChannels is used when a notification request names no channel
var DefaultChannels = []string{ChannelEmail, ChannelSMS}

// RawAlertMessage is queued on alerts:raw
type RawAlertMessage struct {
	Alert        alerts.RawAlert `json:"alert"`
	AttemptCount int             `json:"attemptCount"`
	EnqueuedAt   *time.Time      `json:"enqueuedAt,omitempty"`
}

// RetryAlertMessage is queued on alerts:retry after a normalization failure
type RetryAlertMessage struct {
	Alert        alerts.RawAlert `json:"alert"`
	AttemptCount int             `json:"attemptCount"`
	LastError    string          `json:"lastError"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ErrorAlertMessage is the terminal record on alerts:error
type ErrorAlertMessage struct {
	Alert     alerts.RawAlert `json:"alert"`
	Reason    string          `json:"reason"`
	Stage     string          `json:"stage"`
	Attempts  int             `json:"attempts,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// SuccessAlertMessage is queued on alerts:success for correlation
type SuccessAlertMessage struct {
	Alert       alerts.NormalizedAlert `json:"alert"`
	ProcessedAt time.Time              `json:"processedAt"`
	Attempts    int                    `json:"attempts"`
}

// IncidentMessage asks the assignment worker to route a new incident
type IncidentMessage struct {
	IncidentID string    `json:"incident_id"`
	Title      string    `json:"title"`
	Severity   string    `json:"severity"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	Retries    int       `json:"_retries,omitempty"`
}

// Contact identifies a responder in a notification
type Contact struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// IncidentSnapshot is the incident as rendered into a notification
type IncidentSnapshot struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Severity    string    `json:"severity"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	AckURL      string    `json:"ack_url,omitempty"`
	ResolveURL  string    `json:"resolve_url,omitempty"`
}

// NotificationRequest is queued on notifications:queue
type NotificationRequest struct {
	Type             string            `json:"type"`
	Incident         *IncidentSnapshot `json:"incident,omitempty"`
	Engineer         *Contact          `json:"engineer,omitempty"`
	OriginalEngineer *Contact          `json:"originalEngineer,omitempty"`
	Channels         []string          `json:"channels,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	RetryCount       int               `json:"_retryCount,omitempty"`
}

// RequestedChannels returns the channels to deliver on, defaulting to email and sms
func (n *NotificationRequest) RequestedChannels() []string {
	if len(n.Channels) == 0 {
		return DefaultChannels
	}
	return n.Channels
}

// DeadLetterEntry wraps a message that will not be processed again.
// OriginalMessage is the serialized payload as it was popped.
type DeadLetterEntry struct {
	OriginalMessage string    `json:"originalMessage"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}
