package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/oncall"
	"github.com/akmatori/incidentd/internal/queue"
)

// NotificationPusher enqueues notification requests
type NotificationPusher interface {
	Push(ctx context.Context, msg queue.NotificationRequest) error
}

// LifecycleService drives token-gated and administrative status changes and
// tells the assignee about them
type LifecycleService struct {
	incidents *IncidentService
	notify    NotificationPusher
	oncall    oncall.Provider
	links     Links
	log       *zap.Logger
}

// NewLifecycleService creates a lifecycle service
func NewLifecycleService(incidents *IncidentService, notify NotificationPusher, provider oncall.Provider, links Links, log *zap.Logger) *LifecycleService {
	return &LifecycleService{
		incidents: incidents,
		notify:    notify,
		oncall:    provider,
		links:     links,
		log:       log.Named("lifecycle"),
	}
}

// Acknowledge applies an ack token. On the first successful use the assignee
// receives a confirmation carrying the resolve link.
func (s *LifecycleService) Acknowledge(ctx context.Context, token string) (TransitionResult, error) {
	result, err := s.incidents.Acknowledge(ctx, token)
	if err != nil {
		return result, err
	}
	if result.Outcome == OutcomeAcknowledged {
		s.log.Info("Incident acknowledged", zap.String("incident_id", result.Incident.ID))
		s.emit(ctx, queue.NotificationAcknowledged, result.Incident)
	}
	return result, nil
}

// Resolve applies a resolve token
func (s *LifecycleService) Resolve(ctx context.Context, token string) (TransitionResult, error) {
	result, err := s.incidents.Resolve(ctx, token)
	if err != nil {
		return result, err
	}
	if result.Outcome == OutcomeResolved {
		s.log.Info("Incident resolved", zap.String("incident_id", result.Incident.ID))
		s.emit(ctx, queue.NotificationResolved, result.Incident)
	}
	return result, nil
}

// UpdateStatus is the administrative transition. It sends no notification.
func (s *LifecycleService) UpdateStatus(ctx context.Context, id string, status database.IncidentStatus) (*database.Incident, error) {
	incident, err := s.incidents.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.Info("Incident status updated", zap.String("incident_id", id), zap.String("status", string(status)))
	return incident, nil
}

// emit is best effort: the transition already happened and is not undone
// when the notification cannot be queued
func (s *LifecycleService) emit(ctx context.Context, kind string, incident *database.Incident) {
	assignee := incident.Assignee()
	if assignee == "" {
		s.log.Debug("No assignee to notify", zap.String("incident_id", incident.ID), zap.String("type", kind))
		return
	}

	contact := oncall.ResolveContact(ctx, s.oncall, assignee)
	req := queue.NotificationRequest{
		Type:     kind,
		Incident: s.links.Snapshot(incident),
		Engineer: &contact,
		Channels: []string{queue.ChannelEmail},
	}
	if err := s.notify.Push(ctx, req); err != nil {
		s.log.Error("Failed to queue notification",
			zap.String("incident_id", incident.ID),
			zap.String("type", kind),
			zap.Error(err))
	}
}
