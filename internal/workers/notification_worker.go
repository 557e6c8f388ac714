package workers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/notify"
	"github.com/akmatori/incidentd/internal/queue"
)

// Dead letter reasons
const (
	ReasonParseError  = "parse_error"
	ReasonInvalidData = "invalid_data"
	ReasonMaxRetries  = "max_retries"
	reasonUnknownType = "unknown_type:"
)

// Dispatcher delivers a notification request on its channels
type Dispatcher interface {
	Dispatch(ctx context.Context, req queue.NotificationRequest) (notify.Result, error)
}

// NotificationWorkerConfig holds the notification worker's knobs
type NotificationWorkerConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	Loop          LoopConfig
}

// NotificationWorker validates notification requests and dispatches them
type NotificationWorker struct {
	queues     *queue.Set
	dispatcher Dispatcher
	cfg        NotificationWorkerConfig
	log        *zap.Logger
	now        func() time.Time
}

// NewNotificationWorker creates a notification worker
func NewNotificationWorker(queues *queue.Set, dispatcher Dispatcher, cfg NotificationWorkerConfig, log *zap.Logger) *NotificationWorker {
	return &NotificationWorker{
		queues:     queues,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.Named("notification-worker"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run dispatches notifications until ctx is cancelled
func (w *NotificationWorker) Run(ctx context.Context) {
	runLoop(ctx, w.log, w.cfg.Loop, w.ProcessOne)
}

// ProcessOne pops one notification request and handles it
func (w *NotificationWorker) ProcessOne(ctx context.Context) (bool, error) {
	d, err := w.queues.Notifications.Pop(ctx, w.cfg.Loop.PopTimeout)
	var decodeErr *queue.DecodeError
	if errors.As(err, &decodeErr) {
		w.log.Error("Failed to parse notification message", zap.Error(decodeErr.Err))
		return true, w.deadLetter(ctx, decodeErr.Raw, ReasonParseError, "unknown")
	}
	if err != nil || d == nil {
		return false, err
	}
	return true, w.Handle(ctx, d.Message)
}

// Handle validates and dispatches one request. Delivery failures are retried
// up to RetryAttempts times and then dead-lettered.
func (w *NotificationWorker) Handle(ctx context.Context, req queue.NotificationRequest) error {
	if req.Type == "" || req.Incident == nil || req.Engineer == nil {
		w.log.Warn("Invalid notification data", zap.String("type", req.Type))
		return w.deadLetter(ctx, encode(req), ReasonInvalidData, req.Type)
	}

	switch req.Type {
	case queue.NotificationIncidentAssignment, queue.NotificationEscalation,
		queue.NotificationAcknowledged, queue.NotificationResolved:
	default:
		w.log.Warn("Unknown notification type", zap.String("type", req.Type))
		return w.deadLetter(ctx, encode(req), reasonUnknownType+req.Type, "unknown")
	}

	log := w.log.With(zap.String("type", req.Type), zap.String("incident_id", req.Incident.ID))

	result, err := w.dispatcher.Dispatch(ctx, req)
	if err == nil {
		metrics.Notifications.WithLabelValues(req.Type, "sent").Inc()
		log.Info("Notification processed", zap.Bool("delivered", result.Delivered()))
		return nil
	}

	req.RetryCount++
	if req.RetryCount <= w.cfg.RetryAttempts {
		metrics.Notifications.WithLabelValues(req.Type, "retried").Inc()
		log.Warn("Notification failed, retrying",
			zap.Int("retry", req.RetryCount),
			zap.Int("max_retries", w.cfg.RetryAttempts),
			zap.Error(err))
		if err := sleep(ctx, w.cfg.RetryDelay); err != nil {
			// shutting down: hand the request back before leaving
			return errors.Join(err, w.queues.Notifications.Push(context.WithoutCancel(ctx), req))
		}
		return w.queues.Notifications.Push(ctx, req)
	}

	log.Error("Notification retries exhausted", zap.Error(err))
	return w.deadLetter(ctx, encode(req), ReasonMaxRetries, req.Type)
}

func (w *NotificationWorker) deadLetter(ctx context.Context, original, reason, kind string) error {
	metrics.Notifications.WithLabelValues(kind, "dead_letter").Inc()
	return w.queues.NotificationDeadLetter.Push(ctx, queue.DeadLetterEntry{
		OriginalMessage: original,
		Reason:          reason,
		Timestamp:       w.now(),
	})
}

func encode(req queue.NotificationRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	return string(data)
}
