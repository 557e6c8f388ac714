package workers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/alerts"
	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/utils"
)

// errInvalidNormalized is the failure recorded when a normalized alert does
// not pass the structural gate
var errInvalidNormalized = errors.New("Normalized alert structure is invalid")

// Stats are the processor's running counters
type Stats struct {
	Processed  int64       `json:"processed"`
	Verified   int64       `json:"verified"`
	Normalized int64       `json:"normalized"`
	Retried    int64       `json:"retried"`
	Errors     int64       `json:"errors"`
	Queues     StatsQueues `json:"queues"`
}

// StatsQueues names the queues the processor works with
type StatsQueues struct {
	Raw     string `json:"raw"`
	Success string `json:"success"`
	Retry   string `json:"retry"`
	Error   string `json:"error"`
}

// AlertProcessor verifies and normalizes raw alerts and routes them to the
// success, retry or error queue
type AlertProcessor struct {
	queues     *queue.Set
	maxRetries int
	loop       LoopConfig
	normalize  alerts.Normalizer
	log        *zap.Logger
	now        func() time.Time

	processed  atomic.Int64
	verified   atomic.Int64
	normalized atomic.Int64
	retried    atomic.Int64
	failures   atomic.Int64
}

// NewAlertProcessor creates a processor allowing maxRetries normalization retries
func NewAlertProcessor(queues *queue.Set, maxRetries int, loop LoopConfig, log *zap.Logger) *AlertProcessor {
	return &AlertProcessor{
		queues:     queues,
		maxRetries: maxRetries,
		loop:       loop,
		normalize:  alerts.Normalize,
		log:        log.Named("alert-processor"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue pushes a fresh raw alert and returns its job id
func (p *AlertProcessor) Enqueue(ctx context.Context, alert alerts.RawAlert) (string, error) {
	now := p.now()
	if err := p.queues.Raw.Push(ctx, queue.RawAlertMessage{Alert: alert, AttemptCount: 0, EnqueuedAt: &now}); err != nil {
		return "", err
	}
	metrics.QueuePushes.WithLabelValues(queue.RawAlerts).Inc()
	return uuid.New().String(), nil
}

// Stats returns a snapshot of the counters
func (p *AlertProcessor) Stats() Stats {
	return Stats{
		Processed:  p.processed.Load(),
		Verified:   p.verified.Load(),
		Normalized: p.normalized.Load(),
		Retried:    p.retried.Load(),
		Errors:     p.failures.Load(),
		Queues: StatsQueues{
			Raw:     p.queues.Raw.Name(),
			Success: p.queues.Success.Name(),
			Retry:   p.queues.Retry.Name(),
			Error:   p.queues.Error.Name(),
		},
	}
}

// Run processes raw alerts until ctx is cancelled
func (p *AlertProcessor) Run(ctx context.Context) {
	runLoop(ctx, p.log, p.loop, p.ProcessOne)
}

// ProcessOne pops one raw alert and processes it. It reports whether a
// message was popped.
func (p *AlertProcessor) ProcessOne(ctx context.Context) (bool, error) {
	d, err := p.queues.Raw.Pop(ctx, p.loop.PopTimeout)
	var decodeErr *queue.DecodeError
	if errors.As(err, &decodeErr) {
		p.processed.Add(1)
		p.failures.Add(1)
		p.log.Error("Dropping undecodable raw alert",
			zap.String("payload", utils.EscapeForLogging(decodeErr.Raw, 200)),
			zap.Error(decodeErr.Err))
		return true, p.fail(ctx, queue.ErrorAlertMessage{
			Reason: "Invalid payload: " + decodeErr.Err.Error(),
			Stage:  queue.StageVerification,
		})
	}
	if err != nil || d == nil {
		return false, err
	}
	return true, p.Process(ctx, d.Message)
}

// Process runs one raw alert message through verification and normalization.
// The returned error is an infrastructure error; rejected alerts are routed,
// not returned.
func (p *AlertProcessor) Process(ctx context.Context, msg queue.RawAlertMessage) error {
	p.processed.Add(1)
	alert := msg.Alert
	log := p.log.With(zap.String("alertname", alert.AlertName()), zap.Int("attempt", msg.AttemptCount))

	verification := alerts.Verify(alert)
	if !verification.Valid {
		p.failures.Add(1)
		metrics.AlertsVerified.WithLabelValues("invalid").Inc()
		log.Info("Alert verification failed", zap.String("reason", verification.Reason))
		return p.fail(ctx, queue.ErrorAlertMessage{
			Alert:  alert,
			Reason: verification.Reason,
			Stage:  queue.StageVerification,
		})
	}
	p.verified.Add(1)
	metrics.AlertsVerified.WithLabelValues("valid").Inc()

	normalized, err := p.normalize(alert)
	if err == nil && !alerts.IsValid(normalized) {
		err = errInvalidNormalized
	}
	if err != nil {
		return p.retryOrFail(ctx, log, msg, err)
	}

	p.normalized.Add(1)
	metrics.AlertsNormalized.Inc()
	if err := p.queues.Success.Push(ctx, queue.SuccessAlertMessage{
		Alert:       *normalized,
		ProcessedAt: p.now(),
		Attempts:    msg.AttemptCount + 1,
	}); err != nil {
		return err
	}
	metrics.QueuePushes.WithLabelValues(queue.SuccessAlerts).Inc()
	log.Debug("Alert normalized", zap.String("alert_id", normalized.ID), zap.String("service", normalized.Service))
	return nil
}

func (p *AlertProcessor) retryOrFail(ctx context.Context, log *zap.Logger, msg queue.RawAlertMessage, cause error) error {
	if msg.AttemptCount < p.maxRetries {
		p.retried.Add(1)
		metrics.AlertsRetried.Inc()
		log.Warn("Normalization failed, scheduling retry",
			zap.Int("next_attempt", msg.AttemptCount+1),
			zap.Int("max_retries", p.maxRetries),
			zap.Error(cause))
		if err := p.queues.Retry.Push(ctx, queue.RetryAlertMessage{
			Alert:        msg.Alert,
			AttemptCount: msg.AttemptCount + 1,
			LastError:    cause.Error(),
			Timestamp:    p.now(),
		}); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		metrics.QueuePushes.WithLabelValues(queue.RetryAlerts).Inc()
		return nil
	}

	p.failures.Add(1)
	log.Warn("Normalization retries exhausted", zap.Error(cause))
	return p.fail(ctx, queue.ErrorAlertMessage{
		Alert:    msg.Alert,
		Reason:   cause.Error(),
		Stage:    queue.StageNormalization,
		Attempts: msg.AttemptCount + 1,
	})
}

func (p *AlertProcessor) fail(ctx context.Context, entry queue.ErrorAlertMessage) error {
	entry.Timestamp = p.now()
	if err := p.queues.Error.Push(ctx, entry); err != nil {
		return err
	}
	metrics.AlertsFailed.WithLabelValues(entry.Stage).Inc()
	metrics.QueuePushes.WithLabelValues(queue.ErrorAlerts).Inc()
	return nil
}
