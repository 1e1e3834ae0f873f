// Package dispatch fans matched rotation items out to delivery agents.
// For each item it asks the matcher for interested (user, target) rows,
// runs every row as its own retrying task, and records the successful
// delivery watermark so the same item is never delivered twice.
package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inkwatch/inkwatch/internal/agent"
	"github.com/inkwatch/inkwatch/internal/errs"
	"github.com/inkwatch/inkwatch/internal/feed"
	"github.com/inkwatch/inkwatch/internal/matcher"
	"github.com/inkwatch/inkwatch/internal/metrics"
	"github.com/inkwatch/inkwatch/internal/repository"
)

// RetryPolicy bounds one (target, item) delivery attempt sequence.
type RetryPolicy struct {
	Initial    time.Duration
	Cap        time.Duration
	MaxElapsed time.Duration
}

// DefaultRetryPolicy is the production envelope: exponential backoff from
// 5 s capped at 10 min, giving up after 1 h of wall time.
var DefaultRetryPolicy = RetryPolicy{
	Initial:    5 * time.Second,
	Cap:        10 * time.Minute,
	MaxElapsed: time.Hour,
}

// Dispatcher coordinates matching, delivery and watermark updates.
type Dispatcher struct {
	matcher *matcher.Matcher
	actions *repository.Actions
	agents  agent.Registry
	env     *agent.Env
	retry   RetryPolicy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a dispatcher. metrics may be nil in tests.
func New(
	m *matcher.Matcher,
	actions *repository.Actions,
	agents agent.Registry,
	env *agent.Env,
	retry RetryPolicy,
	logger *zap.Logger,
	met *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		matcher: m,
		actions: actions,
		agents:  agents,
		env:     env,
		retry:   retry,
		logger:  logger.Named("dispatch"),
		metrics: met,
	}
}

// DispatchPVP delivers a batch of pvp rotation items. All per-item work
// runs in parallel, and within an item all per-row tasks run in parallel;
// the call returns when every task has succeeded, exhausted its retries, or
// been classified permanent. Matches for the same target across items may
// complete in any order — the max() watermark update keeps that harmless.
func (d *Dispatcher) DispatchPVP(ctx context.Context, items []feed.PVPItem) {
	var g errgroup.Group
	for i := range items {
		item := items[i]
		g.Go(func() error {
			d.dispatchItem(ctx, &item)
			return nil
		})
	}
	_ = g.Wait()
}

// DispatchCoop accounts co-op items. Co-op queries are forward-compat only,
// so the batch is logged and dropped.
func (d *Dispatcher) DispatchCoop(_ context.Context, items []feed.CoopItem) {
	if len(items) == 0 {
		return
	}
	d.count("coop", len(items))
	d.logger.Info("coop items observed, no coop queries modeled", zap.Int("count", len(items)))
}

// DispatchGear accounts gear items. Gear queries are forward-compat only,
// so the batch is logged and dropped.
func (d *Dispatcher) DispatchGear(_ context.Context, items []feed.GearItem) {
	if len(items) == 0 {
		return
	}
	d.count("gear", len(items))
	d.logger.Info("gear items observed, no gear queries modeled", zap.Int("count", len(items)))
}

func (d *Dispatcher) dispatchItem(ctx context.Context, item *feed.PVPItem) {
	d.count("pvp", 1)

	matches, err := d.matcher.LookupPVP(ctx, item)
	if err != nil {
		d.logger.Error("match lookup failed",
			zap.String("mode", item.Mode.String()),
			zap.Time("start_time", item.StartTime),
			zap.Error(err),
		)
		return
	}
	if d.metrics != nil {
		d.metrics.MatchRows.Observe(float64(len(matches)))
	}
	if len(matches) == 0 {
		return
	}

	var g errgroup.Group
	for i := range matches {
		row := matches[i]
		g.Go(func() error {
			d.deliver(ctx, &row, item)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver runs one (target, item) task: resolve the agent, retry transient
// emit failures inside the policy envelope, then raise the watermark.
func (d *Dispatcher) deliver(ctx context.Context, row *matcher.Match, item *feed.PVPItem) {
	log := d.logger.With(
		zap.String("task_id", uuid.NewString()),
		zap.Int64("uid", row.UID),
		zap.Int64("target_id", row.TargetID),
		zap.String("agent", row.Agent),
		zap.Time("start_time", item.StartTime),
	)

	a, ok := d.agents.Lookup(row.Agent)
	if !ok {
		log.Warn("unknown delivery agent, skipping")
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.retry.Initial
	bo.MaxInterval = d.retry.Cap
	bo.MaxElapsedTime = d.retry.MaxElapsed

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := a.Emit(ctx, d.env, row.UID, row.TargetID, item)
		if err == nil {
			return nil
		}
		if !errs.Transient(err) {
			return backoff.Permanent(err)
		}
		if d.metrics != nil {
			d.metrics.RetryTotal.Inc()
		}
		log.Warn("transient delivery failure", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		d.outcome(row.Agent, "failed")
		log.Error("delivery failed", zap.Int("attempts", attempt), zap.Error(err))
		return
	}

	d.outcome(row.Agent, "success")

	// Best-effort: a failed update is not retried here. The target keeps
	// its older watermark and later items still filter against it.
	if err := d.actions.AdvanceWatermark(ctx, row.UID, row.TargetID, kindForMode(item.Mode), item.StartTime.Unix()); err != nil {
		log.Warn("watermark update failed", zap.Error(err))
	}
}

// kindForMode routes an item's mode to its watermark feed.
func kindForMode(m feed.Mode) feed.Kind {
	if m == feed.ModeEvent {
		return feed.KindPVPEvent
	}
	return feed.KindPVPRegular
}

func (d *Dispatcher) count(class string, n int) {
	if d.metrics != nil {
		d.metrics.DiffItems.WithLabelValues(class).Add(float64(n))
	}
}

func (d *Dispatcher) outcome(agentName, outcome string) {
	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(agentName, outcome).Inc()
	}
}
