// Package gateway wraps a cloud provider behind per-account rate and
// concurrency ceilings. The collector's own worker bound protects local
// resources; the gateway's bound protects the remote API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kulu-io/kulu/providers"
	"github.com/kulu-io/kulu/telemetry"
	"github.com/kulu-io/kulu/types"
)

// Config bounds one account's traffic to its provider
type Config struct {
	RequestsPerSecond float64
	Burst             int
	MaxInFlight       int64
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

// DefaultConfig returns conservative provider-facing limits
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxInFlight:       8,
		RetryAttempts:     4,
		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     10 * time.Second,
	}
}

// Gateway is a rate-limited view of one provider account. Callers that
// exceed the ceiling suspend until a slot frees rather than failing.
type Gateway struct {
	provider providers.CloudProvider
	account  providers.Account
	limiter  *rate.Limiter
	slots    *semaphore.Weighted
	cfg      Config
	logger   *telemetry.Logger
}

// New creates a gateway for one provider account
func New(provider providers.CloudProvider, account providers.Account, cfg Config) *Gateway {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultConfig().RetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultConfig().RetryMaxDelay
	}

	return &Gateway{
		provider: provider,
		account:  account,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		slots:    semaphore.NewWeighted(cfg.MaxInFlight),
		cfg:      cfg,
		logger:   telemetry.NewLogger("gateway"),
	}
}

// Account returns the account this gateway serves
func (g *Gateway) Account() providers.Account { return g.account }

// DiscoverResources lists resources through the rate limiter
func (g *Gateway) DiscoverResources(ctx context.Context, kinds []string) ([]types.Resource, error) {
	var resources []types.Resource
	err := g.do(ctx, "discover_resources", func() error {
		var opErr error
		resources, opErr = g.provider.DiscoverResources(ctx, g.account, kinds)
		return opErr
	})
	return resources, err
}

// ReadMetric reads one metric series through the rate limiter
func (g *Gateway) ReadMetric(ctx context.Context, resource types.Resource, metricName string, window providers.TimeWindow, agg types.Aggregation) ([]providers.Point, error) {
	var points []providers.Point
	err := g.do(ctx, "read_metric", func() error {
		var opErr error
		points, opErr = g.provider.ReadMetric(ctx, resource, metricName, window, agg)
		return opErr
	})
	return points, err
}

// do runs one provider call: wait for a rate token and an in-flight
// slot, then retry provider throttling with capped, jittered
// exponential backoff. After exhausting retries the rate-limit error
// surfaces to the caller instead of retrying forever.
func (g *Gateway) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	operation := func() (struct{}, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if err := g.slots.Acquire(ctx, 1); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		defer g.slots.Release(1)

		err := fn()
		if err == nil {
			return struct{}{}, nil
		}

		var rl *providers.RateLimitError
		if errors.As(err, &rl) {
			g.logger.WithContext(ctx).Warn().
				Str("op", op).
				Str("account", g.account.ID).
				Dur("retry_after", rl.RetryAfter).
				Msg("provider throttled request, backing off")

			// Honor the provider's retry hint when one was supplied
			lastErr = err
			if rl.RetryAfter > 0 {
				return struct{}{}, backoff.RetryAfter(int(rl.RetryAfter.Seconds()) + 1)
			}
			return struct{}{}, err
		}

		// Auth and plain provider errors are not this layer's concern
		return struct{}{}, backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = g.cfg.RetryBaseDelay
	expo.MaxInterval = g.cfg.RetryMaxDelay

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(g.cfg.RetryAttempts)),
	)
	if err != nil {
		// Retry hints are reported as RetryAfterError; surface the
		// provider's own rate-limit error instead
		var ra *backoff.RetryAfterError
		if errors.As(err, &ra) && lastErr != nil {
			err = lastErr
		}
		return fmt.Errorf("%s for account %s: %w", op, g.account.ID, err)
	}
	return nil
}
