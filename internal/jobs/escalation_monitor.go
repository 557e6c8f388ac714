package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/escalation"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/oncall"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
)

// EscalationMonitor reassigns incidents that were not acknowledged in time
// to the secondary responder
type EscalationMonitor struct {
	due       *escalation.DueQueue
	incidents *services.IncidentService
	queues    *queue.Set
	oncall    oncall.Provider
	links     services.Links
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewEscalationMonitor creates a new escalation monitor. timeout is only
// used to word the escalation notice.
func NewEscalationMonitor(due *escalation.DueQueue, incidents *services.IncidentService, queues *queue.Set, provider oncall.Provider, links services.Links, timeout time.Duration, log *zap.Logger) *EscalationMonitor {
	return &EscalationMonitor{
		due:       due,
		incidents: incidents,
		queues:    queues,
		oncall:    provider,
		links:     links,
		timeout:   timeout,
		log:       log.Named("escalation-monitor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckAndEscalate processes every due entry and returns how many incidents
// were escalated. An entry whose processing fails stays scheduled.
func (m *EscalationMonitor) CheckAndEscalate(ctx context.Context) (int, error) {
	due, err := m.due.Due(ctx, m.now())
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, entry := range due {
		if entry.DecodeErr != nil {
			m.log.Error("Discarding undecodable escalation entry", zap.Error(entry.DecodeErr))
			if err := m.due.Remove(ctx, entry.Member); err != nil {
				return escalated, err
			}
			continue
		}

		done, err := m.escalate(ctx, entry.Entry)
		if err != nil {
			m.log.Error("Failed to escalate incident",
				zap.String("incident_id", entry.IncidentID),
				zap.Error(err))
			continue
		}
		if done {
			escalated++
		}
		if err := m.due.Remove(ctx, entry.Member); err != nil {
			return escalated, err
		}
	}
	return escalated, nil
}

// escalate reports whether the incident was handed to the secondary.
// A false result with a nil error means the entry no longer applies.
func (m *EscalationMonitor) escalate(ctx context.Context, entry escalation.Entry) (bool, error) {
	log := m.log.With(zap.String("incident_id", entry.IncidentID))

	incident, err := m.incidents.GetIncident(ctx, entry.IncidentID)
	if errors.Is(err, services.ErrIncidentNotFound) {
		log.Info("Incident not found, skipping escalation")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if incident.Status != database.IncidentStatusOpen {
		log.Info("No escalation needed", zap.String("status", string(incident.Status)))
		return false, nil
	}
	if entry.SecondaryEmail == "" {
		log.Warn("No secondary engineer, cannot escalate")
		return false, nil
	}

	secondary := oncall.ResolveContact(ctx, m.oncall, entry.SecondaryEmail)
	primary := oncall.ResolveContact(ctx, m.oncall, entry.PrimaryEmail)

	incident, err = m.incidents.AssignIncident(ctx, incident.ID, entry.SecondaryEmail)
	if err != nil {
		return false, err
	}
	log.Info("Incident escalated",
		zap.String("from", entry.PrimaryEmail),
		zap.String("to", entry.SecondaryEmail))

	reason := fmt.Sprintf("Primary engineer (%s) did not acknowledge within %d minutes",
		primary.Name, int(m.timeout.Minutes()))
	snap := m.links.Snapshot(incident)
	snap.Title = "[ESCALATED] " + incident.Title
	snap.Description = "ESCALATED: " + reason + ".\n\n" + incident.Description

	req := queue.NotificationRequest{
		Type:             queue.NotificationEscalation,
		Incident:         snap,
		Engineer:         &secondary,
		OriginalEngineer: &primary,
		Channels:         []string{queue.ChannelEmail, queue.ChannelSMS},
		Metadata: map[string]string{
			"assignment_type": "escalation",
			"reason":          reason,
			"escalated_at":    m.now().Format(time.RFC3339),
		},
	}
	if err := m.queues.Notifications.Push(ctx, req); err != nil {
		return false, err
	}
	metrics.QueuePushes.WithLabelValues(queue.Notifications).Inc()
	metrics.Escalations.Inc()
	return true, nil
}

// Start begins the periodic monitoring
func (m *EscalationMonitor) Start(ctx context.Context, interval time.Duration) {
	m.log.Info("Escalation monitor started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			escalated, err := m.CheckAndEscalate(ctx)
			if err != nil {
				m.log.Error("Escalation check failed", zap.Error(err))
			} else if escalated > 0 {
				m.log.Info("Escalated incidents", zap.Int("count", escalated))
			}
		case <-ctx.Done():
			m.log.Info("Escalation monitor stopped")
			return
		}
	}
}
