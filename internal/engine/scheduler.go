package engine

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the engine on a fixed interval: each cycle fuses the
// trailing window and cross-validates the same readings. Fusion failures back
// off exponentially; the interval resets after a successful cycle.
type Scheduler struct {
	engine   *Engine
	logger   *slog.Logger
	interval time.Duration
	window   time.Duration
	validate bool
}

// NewScheduler creates a Scheduler running every interval over a trailing
// window of data. validate enables the cross-validation pass after each
// fusion run.
func NewScheduler(e *Engine, logger *slog.Logger, interval, window time.Duration, validate bool) *Scheduler {
	return &Scheduler{
		engine:   e,
		logger:   logger,
		interval: interval,
		window:   window,
		validate: validate,
	}
}

// Run executes the fusion loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "window", s.window)
	s.engine.metrics.EngineRunning.Set(1)
	defer s.engine.metrics.EngineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retries short without hammering a struggling upstream.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		default:
		}

		end := time.Now().UTC()
		start := end.Add(-s.window)

		if _, err := s.engine.RunFusion(ctx, start, end); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduled fusion failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		if s.validate {
			if _, err := s.engine.RunCrossValidation(ctx, start, end); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled cross-validation failed", "error", err)
			}
		}

		if !sleepWithContext(ctx, s.interval) {
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
