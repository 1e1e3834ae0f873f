// Package poll runs one self-rescheduling loop per upstream feed. A loop
// is not a fixed-interval ticker: after a cycle that produced new items it
// realigns to the upstream's rotation grid, and after an empty or failed
// cycle it probes with exponential backoff until the upstream rotates.
package poll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/inkwatch/inkwatch/internal/metrics"
)

// Epsilon is added past each grid tick so a fetch never fires before the
// upstream has actually published the rotation.
const Epsilon = 5 * time.Second

// backoffCap bounds the probe interval while waiting for a rotation.
const backoffCap = 30 * time.Minute

// Cycle fetches the feed, diffs it, and dispatches whatever came out.
// It returns the number of newly visible items.
type Cycle func(ctx context.Context) (int, error)

// Loop drives one feed. Loops are strictly sequential with themselves: one
// fetch at a time, at most one outstanding dispatch batch.
type Loop struct {
	name    string
	period  time.Duration // the feed's rotation grid, aligned to UTC midnight
	probe   time.Duration // nominal fetch interval; caps the backoff probe
	cycle   Cycle
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a loop for a feed with rotation period R and nominal fetch
// interval probe. metrics may be nil in tests.
func New(name string, period, probe time.Duration, cycle Cycle, logger *zap.Logger, met *metrics.Metrics) *Loop {
	return &Loop{
		name:    name,
		period:  period,
		probe:   probe,
		cycle:   cycle,
		logger:  logger.Named("poll").With(zap.String("loop", name)),
		metrics: met,
	}
}

// Run executes the loop until ctx is cancelled. The first fetch fires
// immediately; in-flight fetches are never cancelled mid-cycle, only the
// sleeps observe ctx.
func (l *Loop) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = minDuration(backoffCap, l.probe)
	bo.MaxElapsedTime = 0 // probe forever; only shutdown stops the loop
	bo.Reset()

	l.logger.Info("loop started",
		zap.Duration("period", l.period),
		zap.Duration("probe", l.probe),
	)

	for {
		start := time.Now()
		n, err := l.cycle(context.WithoutCancel(ctx))
		elapsed := time.Since(start)

		switch {
		case err != nil:
			l.observe("error")
			l.logger.Warn("cycle failed", zap.Error(err))
		case n == 0:
			l.observe("empty")
			l.logger.Debug("no rotation yet")
		default:
			l.observe("ok")
			l.logger.Info("cycle complete", zap.Int("items", n), zap.Duration("elapsed", elapsed))
		}

		var wake time.Time
		if err == nil && n > 0 {
			// Realign to the grid and reset the probe for the next miss.
			bo.Reset()
			wake = NextTick(start, elapsed, l.period)
			l.logger.Debug("realigned", zap.Time("next", wake))
		} else {
			wake = time.Now().Add(bo.NextBackOff())
		}

		if !l.sleepUntil(ctx, wake) {
			l.logger.Info("loop stopped")
			return
		}
	}
}

// NextTick computes the next grid-aligned wake-up after a cycle that
// started at start and ran for elapsed: the smallest instant of the form
// gridTick+Epsilon strictly after the cycle's end. Rotation grids divide
// 24 h and are aligned to UTC midnight.
func NextTick(start time.Time, elapsed, period time.Duration) time.Time {
	next := start.UTC().Truncate(period).Add(period + Epsilon)
	for !next.After(start.Add(elapsed)) {
		next = next.Add(period)
	}
	return next
}

// sleepUntil blocks until the wake time or cancellation; false means the
// loop should exit.
func (l *Loop) sleepUntil(ctx context.Context, wake time.Time) bool {
	d := time.Until(wake)
	if d <= 0 {
		return ctx.Err() == nil
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

func (l *Loop) observe(outcome string) {
	if l.metrics != nil {
		l.metrics.FetchTotal.WithLabelValues(l.name, outcome).Inc()
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
