package reconcile

import (
	"time"

	"github.com/sells-group/itinerary-cli/internal/cost"
	"github.com/sells-group/itinerary-cli/internal/monitoring"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRawChars caps the input sent to the service. The newest (trailing)
// text is kept.
func WithMaxRawChars(n int) Option {
	return func(e *Engine) { e.maxRawChars = n }
}

// WithDefaultTimezone sets the timezone used when neither the client nor the
// trip has one.
func WithDefaultTimezone(tz string) Option {
	return func(e *Engine) { e.defaultTZ = tz }
}

// WithServiceTimeout bounds each reconstruction call.
func WithServiceTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithMetrics records outcomes and service latency.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCalculator prices token usage on runs.
func WithCalculator(c *cost.Calculator) Option {
	return func(e *Engine) { e.pricer = c }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
