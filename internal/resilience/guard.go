package resilience

import (
	"context"

	"github.com/rotisserie/eris"
)

// Capability service names used for breakers and logs.
const (
	ServiceGeocode  = "geocode"
	ServiceCadastre = "cadastre"
	ServiceSales    = "sales"
	ServiceVision   = "vision"
	ServiceLanguage = "language"
)

// Guard applies retry and a per-service breaker to capability calls.
// A nil Guard calls straight through.
type Guard struct {
	retry    RetryConfig
	breakers *Breakers
}

// NewGuard creates a Guard.
func NewGuard(retry RetryConfig, breaker BreakerConfig) *Guard {
	return &Guard{retry: retry, breakers: NewBreakers(breaker)}
}

// States exposes breaker states for health reporting.
func (g *Guard) States() map[string]BreakerState {
	if g == nil {
		return nil
	}
	return g.breakers.States()
}

// Call runs fn for service. Once ctx is done it fails fast without calling fn.
func Call[T any](ctx context.Context, g *Guard, service string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, eris.Wrapf(err, "resilience: %s skipped", service)
	}
	if g == nil {
		return fn(ctx)
	}

	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(service)
	}
	b := g.breakers.Get(service)
	return DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, b, fn)
	})
}
