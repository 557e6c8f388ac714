package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/utils"
)

var (
	// ErrIncidentNotFound is returned when no incident matches the lookup
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrInvalidStatus is returned for a status outside the known set
	ErrInvalidStatus = errors.New("invalid incident status")
)

// CreateIncidentParams describes a new incident
type CreateIncidentParams struct {
	Title       string
	Severity    string
	Source      string
	Description string
	// AlertID links the triggering alert when set
	AlertID string
}

// IncidentFilter narrows ListIncidents
type IncidentFilter struct {
	Status     database.IncidentStatus
	AssignedTo string
	Limit      int
	Offset     int
}

// IncidentService is the incident store
type IncidentService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIncidentService creates a new incident service
func NewIncidentService(db *gorm.DB) *IncidentService {
	return &IncidentService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateIncident inserts an open incident with a fresh ack token and links
// the triggering alert in the same transaction
func (s *IncidentService) CreateIncident(ctx context.Context, p CreateIncidentParams) (*database.Incident, error) {
	ackToken, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	incident := &database.Incident{
		ID:          uuid.New().String(),
		Title:       p.Title,
		Severity:    p.Severity,
		Source:      p.Source,
		Description: p.Description,
		Status:      database.IncidentStatusOpen,
		AckToken:    ackToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(incident).Error; err != nil {
			return err
		}
		if p.AlertID == "" {
			return nil
		}
		return linkAlert(tx, incident.ID, p.AlertID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}
	return incident, nil
}

// AttachAlert links an alert to an existing incident and bumps its updated_at.
// Linking the same alert twice is a no-op.
func (s *IncidentService) AttachAlert(ctx context.Context, incidentID, alertID string) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := linkAlert(tx, incidentID, alertID, now); err != nil {
			return err
		}
		return tx.Model(&database.Incident{}).Where("id = ?", incidentID).Update("updated_at", now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to attach alert %s to incident %s: %w", alertID, incidentID, err)
	}
	return nil
}

func linkAlert(tx *gorm.DB, incidentID, alertID string, at time.Time) error {
	link := &database.IncidentAlert{AlertID: alertID, IncidentID: incidentID, AttachedAt: at}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error
}

// FindOpenIncidentForSource returns the newest open incident for source created
// after since, or nil when there is none
func (s *IncidentService) FindOpenIncidentForSource(ctx context.Context, source string, since time.Time) (*database.Incident, error) {
	var incidents []database.Incident
	err := s.db.WithContext(ctx).
		Where("source = ? AND status = ? AND created_at > ?", source, database.IncidentStatusOpen, since).
		Order("created_at DESC").
		Limit(1).
		Find(&incidents).Error
	if err != nil {
		return nil, err
	}
	if len(incidents) == 0 {
		return nil, nil
	}
	return &incidents[0], nil
}

// CountSimilarAlerts counts alerts sharing source and title received after since
func (s *IncidentService) CountSimilarAlerts(ctx context.Context, source, title string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.Alert{}).
		Where("source = ? AND title = ? AND received_at > ?", source, title, since).
		Count(&count).Error
	return count, err
}

// GetIncident returns an incident by ID
func (s *IncidentService) GetIncident(ctx context.Context, id string) (*database.Incident, error) {
	var incident database.Incident
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// ListIncidents returns incidents newest first together with the unpaginated total
func (s *IncidentService) ListIncidents(ctx context.Context, f IncidentFilter) ([]database.Incident, int64, error) {
	query := s.db.WithContext(ctx).Model(&database.Incident{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.AssignedTo != "" {
		query = query.Where("assigned_to = ?", f.AssignedTo)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var incidents []database.Incident
	err := query.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&incidents).Error
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

// AssignIncident sets the responder of an incident
func (s *IncidentService) AssignIncident(ctx context.Context, id, assignee string) (*database.Incident, error) {
	res := s.db.WithContext(ctx).Model(&database.Incident{}).Where("id = ?", id).Updates(map[string]interface{}{
		"assigned_to": assignee,
		"updated_at":  s.now(),
	})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to assign incident %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrIncidentNotFound
	}
	return s.GetIncident(ctx, id)
}

// UpdateStatus moves an incident to any status. It is the administrative
// path: no ordering is enforced and no resolve token is minted. Entering
// acknowledged or resolved stamps the matching timestamp.
func (s *IncidentService) UpdateStatus(ctx context.Context, id string, status database.IncidentStatus) (*database.Incident, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case database.IncidentStatusAcknowledged:
		updates["acknowledged_at"] = now
	case database.IncidentStatusResolved:
		updates["resolved_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&database.Incident{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update incident %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrIncidentNotFound
	}
	return s.GetIncident(ctx, id)
}

// IncidentForAlert returns the incident an alert was first linked to, or nil
// when the alert is not linked
func (s *IncidentService) IncidentForAlert(ctx context.Context, alertID string) (*database.Incident, error) {
	var incidents []database.Incident
	err := s.db.WithContext(ctx).
		Joins("JOIN incident_alerts ON incident_alerts.incident_id = incidents.id").
		Where("incident_alerts.alert_id = ?", alertID).
		Order("incident_alerts.attached_at ASC").
		Limit(1).
		Find(&incidents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up incident for alert %s: %w", alertID, err)
	}
	if len(incidents) == 0 {
		return nil, nil
	}
	return &incidents[0], nil
}

// AlertCountForIncident returns how many alerts are linked to an incident
func (s *IncidentService) AlertCountForIncident(ctx context.Context, id string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.IncidentAlert{}).Where("incident_id = ?", id).Count(&count).Error
	return count, err
}
