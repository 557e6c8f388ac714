package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akmatori/incidentd/internal/alerts"
	"github.com/akmatori/incidentd/internal/database"
)

// ErrAlertNotFound is returned when no alert matches the lookup
var ErrAlertNotFound = errors.New("alert not found")

// AlertService persists and reads correlated alerts
type AlertService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAlertService creates a new AlertService
func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AlertFromNormalized maps a normalized alert onto its stored form.
// The source is the service the alert fired for and the title is its alertname.
func AlertFromNormalized(n *alerts.NormalizedAlert) *database.Alert {
	labels := make(database.JSONB, len(n.Labels))
	for k, v := range n.Labels {
		labels[k] = v
	}
	return &database.Alert{
		ID:          n.ID,
		Source:      n.Service,
		Title:       n.AlertName(),
		Severity:    string(n.Severity),
		Description: n.Message,
		Labels:      labels,
		Fingerprint: n.Raw.Fingerprint,
	}
}

// RecordAlert stores an alert stamped with the current time and reports
// whether the row is new. Recording the same ID twice is a no-op.
func (s *AlertService) RecordAlert(ctx context.Context, alert *database.Alert) (bool, error) {
	if alert.ReceivedAt.IsZero() {
		alert.ReceivedAt = s.now()
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record alert %s: %w", alert.ID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetAlert returns an alert by ID
func (s *AlertService) GetAlert(ctx context.Context, id string) (*database.Alert, error) {
	var alert database.Alert
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListAlerts returns alerts newest first with the total count
func (s *AlertService) ListAlerts(ctx context.Context, source string, limit, offset int) ([]database.Alert, int64, error) {
	query := s.db.WithContext(ctx).Model(&database.Alert{})
	if source != "" {
		query = query.Where("source = ?", source)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}

	var list []database.Alert
	err := query.Order("received_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// AlertsForIncident returns the alerts linked to an incident, oldest link first
func (s *AlertService) AlertsForIncident(ctx context.Context, incidentID string) ([]database.Alert, error) {
	var list []database.Alert
	err := s.db.WithContext(ctx).
		Joins("JOIN incident_alerts ON incident_alerts.alert_id = alerts.id").
		Where("incident_alerts.incident_id = ?", incidentID).
		Order("incident_alerts.attached_at ASC").
		Find(&list).Error
	return list, err
}
