// Package workers holds the queue consumers of the alert pipeline. Each
// worker exposes ProcessOne, which pops and handles at most one message, and
// Run, which calls it until the context is cancelled.
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoopConfig controls how a worker waits on its queue
type LoopConfig struct {
	// PopTimeout bounds each blocking pop so cancellation is noticed
	PopTimeout time.Duration
	// ErrorDelay is slept after an infrastructure error before resuming
	ErrorDelay time.Duration
}

// DefaultLoopConfig mirrors the configuration defaults
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{PopTimeout: 5 * time.Second, ErrorDelay: 2 * time.Second}
}

// runLoop calls step until ctx is cancelled. Errors are logged and followed
// by cfg.ErrorDelay; they never stop the loop.
func runLoop(ctx context.Context, log *zap.Logger, cfg LoopConfig, step func(context.Context) (bool, error)) {
	log.Info("Worker started")
	defer log.Info("Worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := step(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Worker iteration failed", zap.Error(err))
			if sleep(ctx, cfg.ErrorDelay) != nil {
				return
			}
		}
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
