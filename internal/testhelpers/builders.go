package testhelpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/akmatori/incidentd/internal/alerts"
	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/queue"
)

// RawAlertBuilder builds Alertmanager alerts for testing
type RawAlertBuilder struct {
	alert alerts.RawAlert
}

// NewRawAlertBuilder creates a firing warning alert that passes verification
func NewRawAlertBuilder() *RawAlertBuilder {
	return &RawAlertBuilder{
		alert: alerts.RawAlert{
			Status: "firing",
			Labels: map[string]string{
				"alertname": "HighCPUUsage",
				"severity":  "warning",
				"instance":  "web-01",
			},
			Annotations: map[string]string{
				"summary": "CPU usage above 90%",
			},
			StartsAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// WithName sets the alertname label
func (b *RawAlertBuilder) WithName(name string) *RawAlertBuilder {
	b.alert.Labels["alertname"] = name
	return b
}

// WithSeverity sets the severity label
func (b *RawAlertBuilder) WithSeverity(severity string) *RawAlertBuilder {
	b.alert.Labels["severity"] = severity
	return b
}

// WithInstance sets the instance label
func (b *RawAlertBuilder) WithInstance(instance string) *RawAlertBuilder {
	b.alert.Labels["instance"] = instance
	return b
}

// WithLabel sets an arbitrary label
func (b *RawAlertBuilder) WithLabel(key, value string) *RawAlertBuilder {
	b.alert.Labels[key] = value
	return b
}

// WithoutLabel removes a label
func (b *RawAlertBuilder) WithoutLabel(key string) *RawAlertBuilder {
	delete(b.alert.Labels, key)
	return b
}

// WithStatus sets the alert status
func (b *RawAlertBuilder) WithStatus(status string) *RawAlertBuilder {
	b.alert.Status = status
	return b
}

// StartedAt sets startsAt
func (b *RawAlertBuilder) StartedAt(t time.Time) *RawAlertBuilder {
	b.alert.StartsAt = t.UTC().Format(time.RFC3339)
	return b
}

// Build returns the constructed alert
func (b *RawAlertBuilder) Build() alerts.RawAlert {
	return b.alert
}

// NormalizedAlertBuilder builds NormalizedAlert instances for testing
type NormalizedAlertBuilder struct {
	alert alerts.NormalizedAlert
}

// NewAlertBuilder creates a new normalized alert builder with defaults
func NewAlertBuilder() *NormalizedAlertBuilder {
	return &NormalizedAlertBuilder{
		alert: alerts.NormalizedAlert{
			ID:        uuid.New().String(),
			Service:   "web-01",
			Severity:  database.AlertSeverityWarning,
			Message:   "Test alert summary",
			Timestamp: time.Now().UTC(),
			Labels:    map[string]string{"alertname": "TestAlert"},
			Source:    alerts.SourcePrometheus,
		},
	}
}

// WithName sets the alertname label
func (b *NormalizedAlertBuilder) WithName(name string) *NormalizedAlertBuilder {
	b.alert.Labels["alertname"] = name
	return b
}

// WithSeverity sets the severity
func (b *NormalizedAlertBuilder) WithSeverity(severity database.AlertSeverity) *NormalizedAlertBuilder {
	b.alert.Severity = severity
	return b
}

// WithService sets the service the alert fired for
func (b *NormalizedAlertBuilder) WithService(service string) *NormalizedAlertBuilder {
	b.alert.Service = service
	return b
}

// FiringSince sets the alert timestamp
func (b *NormalizedAlertBuilder) FiringSince(t time.Time) *NormalizedAlertBuilder {
	b.alert.Timestamp = t
	return b
}

// Build returns the constructed alert with a fresh ID
func (b *NormalizedAlertBuilder) Build() alerts.NormalizedAlert {
	out := b.alert
	out.ID = uuid.New().String()
	out.Labels = make(map[string]string, len(b.alert.Labels))
	for k, v := range b.alert.Labels {
		out.Labels[k] = v
	}
	return out
}

// NotificationBuilder builds notification requests for testing
type NotificationBuilder struct {
	req queue.NotificationRequest
}

// NewNotificationBuilder creates an incident_assignment request for alice
func NewNotificationBuilder() *NotificationBuilder {
	return &NotificationBuilder{
		req: queue.NotificationRequest{
			Type: queue.NotificationIncidentAssignment,
			Incident: &queue.IncidentSnapshot{
				ID:        uuid.New().String(),
				Title:     "ServiceDown",
				Severity:  "critical",
				Source:    "web-01",
				Status:    string(database.IncidentStatusOpen),
				CreatedAt: time.Now().UTC(),
			},
			Engineer: &queue.Contact{Name: "Alice", Email: "alice@example.com", Phone: "+15550100"},
			Channels: []string{queue.ChannelEmail, queue.ChannelSMS},
		},
	}
}

// WithType sets the notification type
func (b *NotificationBuilder) WithType(kind string) *NotificationBuilder {
	b.req.Type = kind
	return b
}

// WithoutEngineer clears the recipient
func (b *NotificationBuilder) WithoutEngineer() *NotificationBuilder {
	b.req.Engineer = nil
	return b
}

// WithRetryCount sets the carried retry count
func (b *NotificationBuilder) WithRetryCount(n int) *NotificationBuilder {
	b.req.RetryCount = n
	return b
}

// Build returns the constructed request
func (b *NotificationBuilder) Build() queue.NotificationRequest {
	return b.req
}
