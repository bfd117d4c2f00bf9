package reconstructor

import (
	"context"

	"github.com/sells-group/itinerary-cli/internal/resilience"
)

type breakerService struct {
	next Service
	cb   *resilience.CircuitBreaker
}

// WithBreaker guards svc with a circuit breaker. While the circuit is open,
// calls fail fast with resilience.ErrCircuitOpen.
func WithBreaker(svc Service, cb *resilience.CircuitBreaker) Service {
	return &breakerService{next: svc, cb: cb}
}

func (b *breakerService) Reconstruct(ctx context.Context, req Request) (*Response, error) {
	return resilience.Call(ctx, b.cb, func(ctx context.Context) (*Response, error) {
		return b.next.Reconstruct(ctx, req)
	})
}
