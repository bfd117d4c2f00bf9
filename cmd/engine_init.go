package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/itinerary-cli/internal/config"
	"github.com/sells-group/itinerary-cli/internal/cost"
	"github.com/sells-group/itinerary-cli/internal/lock"
	"github.com/sells-group/itinerary-cli/internal/monitoring"
	"github.com/sells-group/itinerary-cli/internal/reconcile"
	"github.com/sells-group/itinerary-cli/internal/reconstructor"
	"github.com/sells-group/itinerary-cli/internal/resilience"
	"github.com/sells-group/itinerary-cli/internal/store"
	anthropicpkg "github.com/sells-group/itinerary-cli/pkg/anthropic"
)

// appEnv holds the store, engine and metrics registry used by the trip,
// ingest, resolve, items, reconstruct and serve commands.
type appEnv struct {
	Store    store.Store
	Engine   *reconcile.Engine
	Registry *prometheus.Registry
	closers  []func() error
}

// Close releases resources held by the environment.
func (ae *appEnv) Close() {
	for i := len(ae.closers) - 1; i >= 0; i-- {
		if err := ae.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
}

// initEnv validates the config for mode, opens the store and builds the
// engine. In "store" mode no reconstruction service is configured and the
// engine only serves trip bookkeeping. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Registry: prometheus.NewRegistry()}
	env.closers = append(env.closers, st.Close)

	var svc reconstructor.Service
	if mode != "store" {
		svc, err = initService(cfg)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	locker, err := initLocker(cfg.Lock)
	if err != nil {
		env.Close()
		return nil, err
	}
	if c, ok := locker.(interface{ Close() error }); ok {
		env.closers = append(env.closers, c.Close)
	}

	env.Engine = reconcile.New(st, svc, locker, engineOptions(cfg, monitoring.NewMetrics(env.Registry))...)
	return env, nil
}

// initService builds the configured reconstruction service behind a
// circuit breaker.
func initService(c *config.Config) (reconstructor.Service, error) {
	var svc reconstructor.Service
	switch c.Reconstruct.Provider {
	case "anthropic":
		client := anthropicpkg.NewClient(c.Anthropic.Key, c.Resilience.RetryAttempts)
		svc = reconstructor.NewAnthropicService(client, c.Anthropic.Model, c.Anthropic.MaxTokens)
	case "http":
		svc = reconstructor.NewHTTPService(reconstructor.HTTPOptions{
			BaseURL:    c.Reconstruct.BaseURL,
			APIKey:     c.Reconstruct.APIKey,
			Timeout:    time.Duration(c.Reconstruct.TimeoutSecs) * time.Second,
			RatePerSec: c.Reconstruct.RatePerSec,
			Burst:      c.Reconstruct.Burst,
		})
	case "fixture":
		fs, err := reconstructor.LoadFixtures(c.Reconstruct.FixturePath)
		if err != nil {
			return nil, err
		}
		zap.L().Warn("using fixture reconstruction service", zap.String("path", c.Reconstruct.FixturePath))
		svc = fs
	default:
		return nil, eris.Errorf("unsupported reconstruct provider: %s", c.Reconstruct.Provider)
	}

	breakerCfg := resilience.CircuitConfig(c.Resilience.BreakerThreshold, c.Resilience.BreakerResetSecs)
	breakerCfg.ShouldTrip = func(err error) bool {
		// Canceled calls do not count as failures.
		return !errors.Is(err, context.Canceled)
	}
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("reconstruction circuit state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	svc = reconstructor.WithBreaker(svc, resilience.NewCircuitBreaker(breakerCfg))

	if c.Reconstruct.CacheTTLSecs > 0 {
		svc = reconstructor.WithCache(svc, time.Duration(c.Reconstruct.CacheTTLSecs)*time.Second)
	}
	return svc, nil
}

func initLocker(c config.LockConfig) (lock.Locker, error) {
	switch c.Driver {
	case "", "local":
		return lock.NewLocal(), nil
	case "redis":
		l, err := lock.NewRedisFromURL(c.RedisURL,
			time.Duration(c.TTLSecs)*time.Second,
			time.Duration(c.WaitSecs)*time.Second,
		)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using redis trip locks")
		return l, nil
	default:
		return nil, eris.Errorf("unsupported lock driver: %s", c.Driver)
	}
}

func engineOptions(c *config.Config, metrics *monitoring.Metrics) []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithMaxRawChars(c.Reconstruct.MaxRawChars),
		reconcile.WithDefaultTimezone(c.Reconstruct.DefaultTimezone),
		reconcile.WithServiceTimeout(time.Duration(c.Reconstruct.TimeoutSecs) * time.Second),
		reconcile.WithMetrics(metrics),
		reconcile.WithCalculator(cost.NewCalculator(pricingRates(c.Pricing))),
	}
}

// pricingRates converts configured pricing to calculator rates. Empty config
// keeps the calculator defaults.
func pricingRates(p config.PricingConfig) map[string]cost.ModelRate {
	if len(p.Anthropic) == 0 {
		return nil
	}
	rates := make(map[string]cost.ModelRate, len(p.Anthropic))
	for name, mp := range p.Anthropic {
		rates[name] = cost.ModelRate{
			Input:         mp.Input,
			Output:        mp.Output,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	return rates
}

// retryPolicy is the caller-side retry around engine calls that reach the
// reconstruction service. Only upstream failures are retried.
func retryPolicy(op string, attempts int) resilience.RetryConfig {
	rc := resilience.RetryFromConfig(attempts, cfg.Resilience.InitialBackoffMs, cfg.Resilience.MaxBackoffMs)
	rc.ShouldRetry = reconcile.IsRetryable
	rc.OnRetry = resilience.RetryLogger(op)
	return rc
}
