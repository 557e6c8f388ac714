package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		// sqlite hands TEXT columns back as strings
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// IncidentStatus represents the lifecycle state of an incident
type IncidentStatus string

const (
	IncidentStatusOpen         IncidentStatus = "open"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusResolved     IncidentStatus = "resolved"
	IncidentStatusClosed       IncidentStatus = "closed"
)

// ValidIncidentStatuses lists every status an incident can hold
func ValidIncidentStatuses() []IncidentStatus {
	return []IncidentStatus{
		IncidentStatusOpen,
		IncidentStatusAcknowledged,
		IncidentStatusResolved,
		IncidentStatusClosed,
	}
}

// IsValid reports whether s is one of the known incident statuses
func (s IncidentStatus) IsValid() bool {
	for _, v := range ValidIncidentStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// AlertSeverity represents normalized severity levels
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityInfo     AlertSeverity = "info"
)

// Alert is a persisted alert. Every alert that reaches the correlation stage is
// stored here, linked or not, so that storm detection can count it.
type Alert struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Source      string    `gorm:"type:varchar(255);not null;index:idx_alerts_similar,priority:1" json:"source"`
	Title       string    `gorm:"type:varchar(255);not null;index:idx_alerts_similar,priority:2" json:"title"`
	Severity    string    `gorm:"type:varchar(20);not null" json:"severity"`
	Description string    `gorm:"type:text" json:"description"`
	Labels      JSONB     `gorm:"type:jsonb" json:"labels"`
	Fingerprint string    `gorm:"type:varchar(255);index" json:"fingerprint,omitempty"`
	ReceivedAt  time.Time `gorm:"not null;index:idx_alerts_similar,priority:3" json:"received_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// Incident is a tracked unit of operational response. Incidents are never deleted.
type Incident struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Severity    string         `gorm:"type:varchar(20);not null" json:"severity"`
	Source      string         `gorm:"type:varchar(255);not null;index:idx_incidents_source_status,priority:1" json:"source"`
	Description string         `gorm:"type:text" json:"description"`
	Status      IncidentStatus `gorm:"type:varchar(20);not null;default:'open';index:idx_incidents_source_status,priority:2" json:"status"`

	// Magic link secrets. They are only ever handed out inside notifications.
	AckToken     string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ResolveToken *string `gorm:"type:varchar(64);uniqueIndex" json:"-"`

	AssignedTo     *string    `gorm:"type:varchar(255);index" json:"assigned_to"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
}

func (Incident) TableName() string {
	return "incidents"
}

// Assignee returns the assigned responder or an empty string
func (i *Incident) Assignee() string {
	if i.AssignedTo == nil {
		return ""
	}
	return *i.AssignedTo
}
