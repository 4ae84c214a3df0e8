package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mezonai/omniverse/logx"
)

// RunTrigger executes every cooled-down entry each interval until ctx is done.
func (e *Engine) RunTrigger(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("trigger interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logx.Info("ENGINE", fmt.Sprintf("Trigger loop started | interval=%s", interval))
	for {
		e.Drain()
		select {
		case <-ctx.Done():
			logx.Info("ENGINE", "Trigger loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain executes queued entries until the head is missing or still cooling down.
// It returns the number of executed entries.
func (e *Engine) Drain() int {
	executed := 0
	for {
		err := e.TriggerExecution()
		switch {
		case err == nil:
			executed++
		case errors.Is(err, ErrNoDelayedTx), errors.Is(err, ErrNotExecutable):
			return executed
		case errors.Is(err, ErrPersist):
			// executed in memory; keep going
			executed++
		default:
			logx.Error("ENGINE", fmt.Sprintf("Trigger execution failed: %v", err))
			return executed
		}
	}
}
