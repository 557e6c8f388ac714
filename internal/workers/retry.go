package workers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/metrics"
	"github.com/akmatori/incidentd/internal/queue"
)

// RetryWorker moves alerts from the retry queue back onto the raw queue
// after a fixed delay
type RetryWorker struct {
	queues *queue.Set
	delay  time.Duration
	loop   LoopConfig
	log    *zap.Logger
}

// NewRetryWorker creates a retry worker
func NewRetryWorker(queues *queue.Set, delay time.Duration, loop LoopConfig, log *zap.Logger) *RetryWorker {
	return &RetryWorker{queues: queues, delay: delay, loop: loop, log: log.Named("retry-worker")}
}

// Run re-queues retries until ctx is cancelled
func (w *RetryWorker) Run(ctx context.Context) {
	runLoop(ctx, w.log, w.loop, w.ProcessOne)
}

// ProcessOne pops one retry message, waits the retry delay and re-queues it
func (w *RetryWorker) ProcessOne(ctx context.Context) (bool, error) {
	d, err := w.queues.Retry.Pop(ctx, w.loop.PopTimeout)
	var decodeErr *queue.DecodeError
	if errors.As(err, &decodeErr) {
		w.log.Error("Dropping undecodable retry message", zap.Error(decodeErr.Err))
		return true, nil
	}
	if err != nil || d == nil {
		return false, err
	}

	msg := d.Message
	if err := sleep(ctx, w.delay); err != nil {
		// put it back so shutdown does not lose the retry
		pushErr := w.queues.Retry.Push(context.WithoutCancel(ctx), msg)
		return true, errors.Join(err, pushErr)
	}

	w.log.Info("Retrying alert",
		zap.String("alertname", msg.Alert.AlertName()),
		zap.Int("attempt", msg.AttemptCount))
	if err := w.queues.Raw.Push(ctx, queue.RawAlertMessage{Alert: msg.Alert, AttemptCount: msg.AttemptCount}); err != nil {
		return true, err
	}
	metrics.QueuePushes.WithLabelValues(queue.RawAlerts).Inc()
	return true, nil
}
