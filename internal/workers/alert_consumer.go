package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/alerts"
	"github.com/akmatori/incidentd/internal/decision"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
)

// AlertConsumer correlates normalized alerts into incidents
type AlertConsumer struct {
	queues    *queue.Set
	alerts    *services.AlertService
	incidents *services.IncidentService
	engine    *decision.Engine
	loop      LoopConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewAlertConsumer creates an alert consumer
func NewAlertConsumer(queues *queue.Set, alertSvc *services.AlertService, incidents *services.IncidentService, engine *decision.Engine, loop LoopConfig, log *zap.Logger) *AlertConsumer {
	return &AlertConsumer{
		queues:    queues,
		alerts:    alertSvc,
		incidents: incidents,
		engine:    engine,
		loop:      loop,
		log:       log.Named("alert-consumer"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes normalized alerts until ctx is cancelled
func (c *AlertConsumer) Run(ctx context.Context) {
	runLoop(ctx, c.log, c.loop, c.ProcessOne)
}

// ProcessOne pops one normalized alert and correlates it
func (c *AlertConsumer) ProcessOne(ctx context.Context) (bool, error) {
	d, err := c.queues.Success.Pop(ctx, c.loop.PopTimeout)
	var decodeErr *queue.DecodeError
	if errors.As(err, &decodeErr) {
		c.log.Error("Dropping undecodable normalized alert", zap.Error(decodeErr.Err))
		return true, nil
	}
	if err != nil || d == nil {
		return false, err
	}
	_, err = c.Process(ctx, d.Message.Alert)
	return true, err
}

// Process persists the alert, decides what to do with it and carries the
// decision out
func (c *AlertConsumer) Process(ctx context.Context, alert alerts.NormalizedAlert) (decision.Decision, error) {
	record := services.AlertFromNormalized(&alert)
	record.ReceivedAt = c.now()
	inserted, err := c.alerts.RecordAlert(ctx, record)
	if err != nil {
		return decision.Decision{}, err
	}
	if !inserted {
		existing, err := c.incidents.IncidentForAlert(ctx, record.ID)
		if err != nil {
			return decision.Decision{}, err
		}
		// a redelivered alert that never got linked is correlated again
		if existing != nil {
			d := decision.Decision{Action: decision.ActionSkip, Reason: "alert already correlated", Existing: existing}
			metrics.Decisions.WithLabelValues(string(d.Action)).Inc()
			c.log.Info("Skipping redelivered alert",
				zap.String("alert_id", record.ID),
				zap.String("incident_id", existing.ID))
			return d, nil
		}
	}

	candidate := decision.Candidate{
		AlertID:     record.ID,
		Source:      record.Source,
		Title:       record.Title,
		Description: record.Description,
		Severity:    record.Severity,
	}
	if !alert.Timestamp.IsZero() {
		candidate.FiringDuration = c.now().Sub(alert.Timestamp)
	}

	d, err := c.engine.Decide(ctx, candidate)
	if err != nil {
		return d, err
	}
	metrics.Decisions.WithLabelValues(string(d.Action)).Inc()

	log := c.log.With(
		zap.String("alert_id", record.ID),
		zap.String("source", record.Source),
		zap.String("title", record.Title),
		zap.String("severity", record.Severity),
		zap.String("reason", d.Reason))

	switch d.Action {
	case decision.ActionCreate:
		return d, c.create(ctx, log, candidate)
	case decision.ActionAttach:
		if err := c.incidents.AttachAlert(ctx, d.Existing.ID, record.ID); err != nil {
			return d, err
		}
		count, err := c.incidents.AlertCountForIncident(ctx, d.Existing.ID)
		if err != nil {
			log.Warn("Alert attached but counting linked alerts failed", zap.String("incident_id", d.Existing.ID), zap.Error(err))
			return d, nil
		}
		log.Info("Alert attached to incident", zap.String("incident_id", d.Existing.ID), zap.Int64("alert_count", count))
	default:
		log.Info("Alert recorded without incident")
	}
	return d, nil
}

func (c *AlertConsumer) create(ctx context.Context, log *zap.Logger, candidate decision.Candidate) error {
	incident, err := c.incidents.CreateIncident(ctx, services.CreateIncidentParams{
		Title:       candidate.Title,
		Severity:    candidate.Severity,
		Source:      candidate.Source,
		Description: candidate.Description,
		AlertID:     candidate.AlertID,
	})
	if err != nil {
		return err
	}
	metrics.IncidentsCreated.Inc()
	log.Info("Incident created", zap.String("incident_id", incident.ID))

	if err := c.queues.Incidents.Push(ctx, queue.IncidentMessage{
		IncidentID: incident.ID,
		Title:      incident.Title,
		Severity:   incident.Severity,
		Source:     incident.Source,
		CreatedAt:  incident.CreatedAt,
	}); err != nil {
		return fmt.Errorf("incident %s created but not queued for assignment: %w", incident.ID, err)
	}
	metrics.QueuePushes.WithLabelValues(queue.Incidents).Inc()
	return nil
}
