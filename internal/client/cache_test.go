package client

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/internal/store"
)

func newTestCache(t *testing.T) (*ConditionalCache, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	cache := NewConditionalCache(config.CacheConfig{
		ETagTTL:   time.Hour,
		BodyTTL:   5 * time.Minute,
		KeyPrefix: "cache:",
	}, st, metrics.New(prometheus.NewRegistry()))
	return cache, st
}

func TestConditionalCache_ETagRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.GetETag(ctx, "GET /v1/assets/")
	require.False(t, ok)

	cache.StoreETag(ctx, "GET /v1/assets/", `"abc123"`)

	etag, ok := cache.GetETag(ctx, "GET /v1/assets/")
	require.True(t, ok)
	assert.Equal(t, `"abc123"`, etag)
}

func TestConditionalCache_BodyRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.GetBody(ctx, "GET /v1/assets/")
	require.False(t, ok)

	cache.StoreBody(ctx, "GET /v1/assets/", []byte(`[{"item_id":1}]`))

	body, ok := cache.GetBody(ctx, "GET /v1/assets/")
	require.True(t, ok)
	assert.Equal(t, []byte(`[{"item_id":1}]`), body)
}

func TestConditionalCache_BodyExpiresBeforeETag(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	cache := NewConditionalCache(config.CacheConfig{
		ETagTTL:   time.Hour,
		BodyTTL:   10 * time.Millisecond,
		KeyPrefix: "cache:",
	}, st, metrics.New(prometheus.NewRegistry()))
	ctx := context.Background()

	cache.StoreETag(ctx, "GET /v1/orders/", `"e1"`)
	cache.StoreBody(ctx, "GET /v1/orders/", []byte("cached"))

	time.Sleep(30 * time.Millisecond)

	_, ok := cache.GetETag(ctx, "GET /v1/orders/")
	assert.True(t, ok)
	_, ok = cache.GetBody(ctx, "GET /v1/orders/")
	assert.False(t, ok)
}

func TestConditionalCache_KeysAreIndependent(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.StoreETag(ctx, "GET /v1/assets/", `"a"`)
	cache.StoreETag(ctx, "GET /v1/orders/", `"b"`)

	etag, ok := cache.GetETag(ctx, "GET /v1/assets/")
	require.True(t, ok)
	assert.Equal(t, `"a"`, etag)

	etag, ok = cache.GetETag(ctx, "GET /v1/orders/")
	require.True(t, ok)
	assert.Equal(t, `"b"`, etag)
}
