package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/escalation"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/oncall"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
)

// IncidentWorkerConfig holds the assignment worker's knobs
type IncidentWorkerConfig struct {
	MaxRetries        int
	EscalationTimeout time.Duration
	Loop              LoopConfig
}

// IncidentWorker assigns new incidents to the primary responder, notifies
// them and schedules the escalation
type IncidentWorker struct {
	queues    *queue.Set
	incidents *services.IncidentService
	oncall    oncall.Provider
	due       *escalation.DueQueue
	links     services.Links
	cfg       IncidentWorkerConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewIncidentWorker creates an assignment worker
func NewIncidentWorker(queues *queue.Set, incidents *services.IncidentService, provider oncall.Provider, due *escalation.DueQueue, links services.Links, cfg IncidentWorkerConfig, log *zap.Logger) *IncidentWorker {
	return &IncidentWorker{
		queues:    queues,
		incidents: incidents,
		oncall:    provider,
		due:       due,
		links:     links,
		cfg:       cfg,
		log:       log.Named("incident-worker"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run assigns incidents until ctx is cancelled
func (w *IncidentWorker) Run(ctx context.Context) {
	runLoop(ctx, w.log, w.cfg.Loop, w.ProcessOne)
}

// ProcessOne pops one incident message and assigns it. Assignment failures
// are re-queued or dead-lettered; only queue errors are returned.
func (w *IncidentWorker) ProcessOne(ctx context.Context) (bool, error) {
	d, err := w.queues.Incidents.Pop(ctx, w.cfg.Loop.PopTimeout)
	var decodeErr *queue.DecodeError
	if errors.As(err, &decodeErr) {
		w.log.Error("Dropping undecodable incident message", zap.Error(decodeErr.Err))
		return true, nil
	}
	if err != nil || d == nil {
		return false, err
	}

	msg := d.Message
	if err := w.Assign(ctx, msg); err != nil {
		return true, w.retryOrDeadLetter(ctx, msg, err)
	}
	return true, nil
}

// Assign routes one incident to the current primary responder
func (w *IncidentWorker) Assign(ctx context.Context, msg queue.IncidentMessage) error {
	log := w.log.With(zap.String("incident_id", msg.IncidentID))

	rotation, err := w.oncall.PrimaryAndSecondary(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up on-call rotation: %w", err)
	}
	if rotation.Primary == "" {
		log.Warn("No on-call engineer found, incident left unassigned")
		return nil
	}

	incident, err := w.incidents.AssignIncident(ctx, msg.IncidentID, rotation.Primary)
	if err != nil {
		return err
	}
	log.Info("Incident assigned", zap.String("assignee", rotation.Primary))

	engineer := oncall.ResolveContact(ctx, w.oncall, rotation.Primary)
	now := w.now()
	req := queue.NotificationRequest{
		Type:     queue.NotificationIncidentAssignment,
		Incident: w.links.Snapshot(incident),
		Engineer: &engineer,
		Channels: []string{queue.ChannelEmail, queue.ChannelSMS},
		Metadata: map[string]string{
			"assignment_type": "primary",
			"assigned_at":     now.Format(time.RFC3339),
		},
	}
	if err := w.queues.Notifications.Push(ctx, req); err != nil {
		return err
	}
	metrics.QueuePushes.WithLabelValues(queue.Notifications).Inc()

	entry := escalation.NewEntry(incident.ID, rotation.Primary, rotation.Secondary, now, w.cfg.EscalationTimeout)
	if err := w.due.Schedule(ctx, entry); err != nil {
		return err
	}
	log.Info("Escalation scheduled",
		zap.String("secondary", rotation.Secondary),
		zap.Time("escalation_at", entry.EscalationAt))
	return nil
}

func (w *IncidentWorker) retryOrDeadLetter(ctx context.Context, msg queue.IncidentMessage, cause error) error {
	msg.Retries++
	log := w.log.With(zap.String("incident_id", msg.IncidentID), zap.Int("retries", msg.Retries), zap.Error(cause))

	if msg.Retries < w.cfg.MaxRetries {
		log.Warn("Assignment failed, re-queuing")
		return w.queues.Incidents.Push(ctx, msg)
	}
	log.Error("Assignment retries exhausted, moving to dead letter queue")
	return w.queues.IncidentDeadLetter.Push(ctx, msg)
}
