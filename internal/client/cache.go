package client

import (
	"context"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/internal/store"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/logger"
)

// ConditionalCache remembers the last validated ETag and body per endpoint so
// the executor can issue conditional GETs and answer 304s locally. The body
// TTL is deliberately shorter than the ETag TTL; a 304 with no cached body
// means the executor must re-issue the request unconditionally.
type ConditionalCache struct {
	store   store.Store
	cfg     config.CacheConfig
	metrics *metrics.Metrics
}

// NewConditionalCache creates a conditional cache over the shared store.
func NewConditionalCache(cfg config.CacheConfig, st store.Store, m *metrics.Metrics) *ConditionalCache {
	if m == nil {
		m = metrics.Default
	}
	return &ConditionalCache{store: st, cfg: cfg, metrics: m}
}

// GetETag returns the last validated ETag for endpointKey, if any. Store
// failures degrade to a miss; a skipped conditional header only costs a full
// response.
func (c *ConditionalCache) GetETag(ctx context.Context, endpointKey string) (string, bool) {
	data, err := c.store.Get(ctx, c.etagKey(endpointKey))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Debug("etag cache get error", logger.String("endpoint", endpointKey), logger.Err(err))
		}
		c.metrics.CacheMissesTotal.WithLabelValues("etag").Inc()
		return "", false
	}
	c.metrics.CacheHitsTotal.WithLabelValues("etag").Inc()
	return string(data), true
}

// StoreETag remembers the ETag upstream validated for endpointKey.
func (c *ConditionalCache) StoreETag(ctx context.Context, endpointKey, etag string) {
	if err := c.store.Set(ctx, c.etagKey(endpointKey), []byte(etag), c.cfg.ETagTTL); err != nil {
		logger.Debug("etag cache set error", logger.String("endpoint", endpointKey), logger.Err(err))
	}
}

// GetBody returns the body stored alongside the last validated ETag.
func (c *ConditionalCache) GetBody(ctx context.Context, endpointKey string) ([]byte, bool) {
	data, err := c.store.Get(ctx, c.bodyKey(endpointKey))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Debug("body cache get error", logger.String("endpoint", endpointKey), logger.Err(err))
		}
		c.metrics.CacheMissesTotal.WithLabelValues("body").Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.WithLabelValues("body").Inc()
	return data, true
}

// StoreBody keeps the response body as the 304 fallback for endpointKey.
func (c *ConditionalCache) StoreBody(ctx context.Context, endpointKey string, body []byte) {
	if err := c.store.Set(ctx, c.bodyKey(endpointKey), body, c.cfg.BodyTTL); err != nil {
		logger.Debug("body cache set error", logger.String("endpoint", endpointKey), logger.Err(err))
	}
}

func (c *ConditionalCache) etagKey(endpointKey string) string {
	return c.cfg.KeyPrefix + "etag:" + endpointKey
}

func (c *ConditionalCache) bodyKey(endpointKey string) string {
	return c.cfg.KeyPrefix + "body:" + endpointKey
}
