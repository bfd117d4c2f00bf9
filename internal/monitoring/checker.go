package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
)

// Checker watches reconciliation health in the background: failed runs,
// clarification backlog and spend. An alert is raised once when its
// threshold is crossed and again only after the condition has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	// raised holds the alert types whose condition was still true at the
	// last check. Only the Run goroutine touches it.
	raised map[AlertType]bool
}

// NewChecker creates a health checker. Zero interval or lookback settings
// fall back to 5 minutes and 24 hours.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		raised:    make(map[AlertType]bool),
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackHours
	}
	return c
}

// Run checks once immediately and then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("watching reconciliation health",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			log.Info("health checker stopped")
			return
		}
		c.check(ctx, log)

		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// check collects one snapshot and sends the alerts that were not already
// raised. It returns the newly raised alerts.
func (c *Checker) check(ctx context.Context, log *zap.Logger) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Warn("monitoring: health snapshot failed", zap.Error(err))
		return nil
	}

	log.Debug("monitoring: reconciliation health",
		zap.Int("runs", snap.RunsTotal),
		zap.Int("needs_clarification", snap.RunsNeedsClarification),
		zap.Int("failed", snap.RunsFailed),
		zap.Float64("fail_rate", snap.RunFailRate),
		zap.Int("open_clarifications", snap.OpenPending),
		zap.Float64("cost_usd", snap.RunCostUSD),
	)

	active := c.alerter.Evaluate(snap)
	var fresh []Alert
	now := make(map[AlertType]bool, len(active))
	for _, a := range active {
		now[a.Type] = true
		if !c.raised[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.raised {
		if !now[t] {
			log.Info("monitoring: condition cleared", zap.String("type", string(t)))
		}
	}
	c.raised = now

	if len(fresh) == 0 {
		return nil
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Warn("monitoring: alerts raised",
		zap.Int("raised", len(fresh)),
		zap.Int("sent", sent),
		zap.Int("open_clarifications", snap.OpenPending),
	)
	return fresh
}
