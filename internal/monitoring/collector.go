package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/itinerary-cli/internal/model"
	"github.com/sells-group/itinerary-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of reconciliation health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal              int     `json:"runs_total"`
	RunsSucceeded          int     `json:"runs_succeeded"`
	RunsFailed             int     `json:"runs_failed"`
	RunsNeedsClarification int     `json:"runs_needs_clarification"`
	RunFailRate            float64 `json:"run_fail_rate"`
	RunCostUSD             float64 `json:"run_cost_usd"`
	RunAvgTokens           int     `json:"run_avg_tokens"`

	// Clarification requests currently awaiting an answer, across all trips.
	OpenPending int `json:"open_pending"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the slice of the store the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	CountOpenPendingActions(ctx context.Context) (int, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store   RunSource
	nowFunc func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunSource) *Collector {
	return &Collector{store: st, nowFunc: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.nowFunc().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalTokens int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusSucceeded:
			snap.RunsSucceeded++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusNeedsClarification:
			snap.RunsNeedsClarification++
		}
		snap.RunCostUSD += r.Usage.CostUSD
		totalTokens += r.Usage.InputTokens + r.Usage.OutputTokens
	}

	if snap.RunsTotal > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
		snap.RunAvgTokens = totalTokens / snap.RunsTotal
	}

	open, err := c.store.CountOpenPendingActions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count open pending actions")
	}
	snap.OpenPending = open

	return snap, nil
}
