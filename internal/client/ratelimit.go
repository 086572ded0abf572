// Package client implements the upstream request path: admission control,
// conditional caching, and the request executor every upstream call funnels
// through.
package client

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/pkg/logger"
)

// Verdict is the rate limiter's admission decision. A denial carries the wait
// until the current window closes; deciding whether to wait is the caller's
// job, not the limiter's.
type Verdict struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter applies a sliding-window admission ceiling per endpoint key.
// Counters live in the shared store, so the window spans every process that
// talks to upstream.
type RateLimiter struct {
	instance *limiter.Limiter
	metrics  *metrics.Metrics
}

// NewRateLimiter creates a rate limiter backed by Redis. Pass a nil client to
// fall back to an in-process store (single-instance deployments and tests).
func NewRateLimiter(cfg config.RateLimitConfig, redisClient redis.UniversalClient, m *metrics.Metrics) (*RateLimiter, error) {
	var st limiter.Store
	if redisClient != nil {
		var err error
		st, err = redisstore.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: cfg.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
	} else {
		st = memory.NewStore()
	}

	rate := limiter.Rate{
		Period: cfg.Window,
		Limit:  cfg.Ceiling,
	}

	if m == nil {
		m = metrics.Default
	}

	return &RateLimiter{
		instance: limiter.New(st, rate),
		metrics:  m,
	}, nil
}

// CheckAndReserve reserves one slot in the current window for endpointKey.
// On store failure the limiter fails open: upstream enforces its own ceiling
// and will answer 429 if we overrun it, which beats blocking all traffic on a
// store outage.
func (l *RateLimiter) CheckAndReserve(ctx context.Context, endpointKey string) Verdict {
	lctx, err := l.instance.Get(ctx, endpointKey)
	if err != nil {
		logger.Warn("rate limiter store error, failing open",
			logger.String("endpoint", endpointKey),
			logger.Err(err))
		return Verdict{Allowed: true}
	}

	if lctx.Reached {
		l.metrics.RateLimitDenialsTotal.WithLabelValues(endpointKey).Inc()
		retryAfter := time.Until(time.Unix(lctx.Reset, 0))
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Verdict{Allowed: false, RetryAfter: retryAfter}
	}

	return Verdict{Allowed: true}
}
