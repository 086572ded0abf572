package esiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/crypto"
	"github.com/your-org/esi-client/internal/domain"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/internal/store"
)

type nopDirectory struct{}

func (nopDirectory) Get(context.Context, int64, int64) (*domain.CredentialRecord, error) {
	return nil, nil
}
func (nopDirectory) ListExpiring(context.Context, time.Duration) ([]*domain.CredentialRecord, error) {
	return nil, nil
}
func (nopDirectory) Save(context.Context, *domain.CredentialRecord) error { return nil }
func (nopDirectory) MarkRevoked(context.Context, int64, int64) error      { return nil }
func (nopDirectory) Delete(context.Context, int64, int64) error           { return nil }

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			AuthURL:      "https://login.example.com/v2/oauth/authorize",
			TokenURL:     baseURL + "/token",
			VerifyURL:    baseURL + "/verify",
			BaseURL:      baseURL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "https://local.example.com/callback",
			Scopes:       []string{"read-assets"},
			UserAgent:    "esi-client-test",
		},
		RateLimit: config.RateLimitConfig{Ceiling: 100, Window: time.Second},
		Cache:     config.CacheConfig{ETagTTL: time.Hour, BodyTTL: 5 * time.Minute, KeyPrefix: "cache:"},
		Executor:  config.ExecutorConfig{Timeout: 5 * time.Second, MaxRetries: 3, RetryAfterCap: 60 * time.Second},
		Breaker:   config.BreakerConfig{Enabled: true, FailureThreshold: 10, OpenTimeout: time.Second, MaxRequests: 1},
		Sweep:     config.SweepConfig{Interval: 15 * time.Minute, ExpiryWindow: 5 * time.Minute},
		Cipher:    config.CipherConfig{Key: key},
	}

	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	c, err := New(cfg, nopDirectory{}, WithStore(st), WithMetrics(metrics.New(prometheus.NewRegistry())))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsWeakCipherKey(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{ClientID: "id", ClientSecret: "s", RedirectURI: "https://local/cb"},
		Cipher:   config.CipherConfig{Key: "just-a-password"},
	}

	_, err := New(cfg, nopDirectory{}, WithStore(store.NewMemoryStore()))
	require.Error(t, err)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/status/", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]int{"players": 31337})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var out struct {
		Players int `json:"players"`
	}
	err := c.Get(context.Background(), "/v1/status/", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, 31337, out.Players)
}

func TestClient_HandshakeRoundTrip(t *testing.T) {
	c := newTestClient(t, "http://upstream.invalid")
	ctx := context.Background()

	authorizationURL, verifier, err := c.BeginAuthorization(ctx, "state-1")
	require.NoError(t, err)
	assert.Contains(t, authorizationURL, "code_challenge_method=S256")

	got, err := c.GetVerifier(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, verifier, got)
}

func TestClient_HandshakeHandler(t *testing.T) {
	c := newTestClient(t, "http://upstream.invalid")

	h := c.HandshakeHandler(func(*http.Request) (int64, error) { return 42, nil })
	require.NotNil(t, h)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
}
