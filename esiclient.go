// Package esiclient mirrors a player's upstream account data dependencies:
// it provides the authorization handshake, encrypted credential handling, and
// the rate-limited, cache-aware request executor that every data sync flow
// funnels through.
package esiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/your-org/esi-client/internal/auth"
	"github.com/your-org/esi-client/internal/authweb"
	"github.com/your-org/esi-client/internal/client"
	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/crypto"
	"github.com/your-org/esi-client/internal/domain"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/internal/store"
	"github.com/your-org/esi-client/internal/sweep"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/resilience/circuitbreaker"
)

// Re-exported types forming the public surface.
type (
	Config           = config.Config
	Request          = client.Request
	CredentialRecord = domain.CredentialRecord
	IdentityClaims   = domain.IdentityClaims
	SweepResult      = sweep.Result

	// CredentialDirectory is the persistence collaborator the consumer
	// provides; this library never owns the schema behind it.
	CredentialDirectory = domain.CredentialDirectory

	// ClientError is the structured error every operation surfaces.
	ClientError = errors.ClientError
)

// LoadConfig reads configuration from file and environment.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Client is the upstream API client. Construct one at process start and pass
// it by reference to all callers; it holds no ambient global state.
type Client struct {
	cfg       *config.Config
	store     store.Store
	cipher    *crypto.Cipher
	flow      *auth.PKCEFlow
	tokens    *auth.TokenService
	executor  *client.Executor
	sweeper   *sweep.Sweeper
	directory domain.CredentialDirectory
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	store   store.Store
	metrics *metrics.Metrics
}

// WithStore overrides the ephemeral store. Useful for single-instance
// deployments and tests that have no Redis.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithMetrics overrides the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New constructs the client. The credential directory is the consumer's
// persistence layer for credential records.
func New(cfg *config.Config, directory domain.CredentialDirectory, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cipher, err := crypto.New(cfg.Cipher)
	if err != nil {
		return nil, err
	}

	st := o.store
	var redisStore *store.RedisStore
	if st == nil {
		redisStore, err = store.NewRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		st = redisStore
	}

	m := o.metrics
	if m == nil {
		m = metrics.Default
	}

	var limiter *client.RateLimiter
	if redisStore != nil {
		limiter, err = client.NewRateLimiter(cfg.RateLimit, redisStore.UniversalClient(), m)
	} else {
		limiter, err = client.NewRateLimiter(cfg.RateLimit, nil, m)
	}
	if err != nil {
		st.Close()
		return nil, err
	}

	cache := client.NewConditionalCache(cfg.Cache, st, m)
	breaker := circuitbreaker.New("upstream", cfg.Breaker)
	tokens := auth.NewTokenService(cfg.Upstream, cipher)

	return &Client{
		cfg:       cfg,
		store:     st,
		cipher:    cipher,
		flow:      auth.NewPKCEFlow(cfg.Upstream, st),
		tokens:    tokens,
		executor:  client.NewExecutor(cfg.Upstream, cfg.Executor, limiter, cache, cipher, breaker, m),
		sweeper:   sweep.NewSweeper(tokens, directory, cfg.Sweep, m),
		directory: directory,
	}, nil
}

// Do performs one upstream operation with the given (encrypted) credentials.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	return c.executor.Do(ctx, req)
}

// DoJSON performs the operation and unmarshals the response into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	return c.executor.DoJSON(ctx, req, out)
}

// Get performs an authenticated GET against the upstream resource API.
func (c *Client) Get(ctx context.Context, endpoint string, creds *CredentialRecord, query url.Values, out any) error {
	return c.executor.DoJSON(ctx, Request{
		Method:      http.MethodGet,
		Endpoint:    endpoint,
		Credentials: creds,
		Query:       query,
	}, out)
}

// BeginAuthorization starts a login attempt.
func (c *Client) BeginAuthorization(ctx context.Context, state string) (authorizationURL, codeVerifier string, err error) {
	return c.flow.BeginAuthorization(ctx, state)
}

// GetVerifier redeems the staged code verifier for state.
func (c *Client) GetVerifier(ctx context.Context, state string) (string, error) {
	return c.flow.GetVerifier(ctx, state)
}

// ExchangeCode redeems an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*domain.TokenResponse, error) {
	return c.tokens.ExchangeCode(ctx, code, codeVerifier, redirectURI)
}

// VerifyAccessToken resolves a bearer token to its upstream identity.
func (c *Client) VerifyAccessToken(ctx context.Context, accessToken string) (*IdentityClaims, error) {
	return c.tokens.VerifyAccessToken(ctx, accessToken)
}

// RefreshRecord rotates one credential record's token pair immediately,
// serialized against any concurrent refresh of the same record.
func (c *Client) RefreshRecord(ctx context.Context, rec *CredentialRecord) error {
	return c.sweeper.RefreshRecord(ctx, rec)
}

// Sweep runs one refresh sweep over records nearing expiry.
func (c *Client) Sweep(ctx context.Context) (SweepResult, error) {
	return c.sweeper.Sweep(ctx)
}

// RunSweeper runs the sweep on its configured interval until ctx is canceled.
func (c *Client) RunSweeper(ctx context.Context) {
	c.sweeper.Run(ctx)
}

// HandshakeHandler returns the login/callback HTTP surface for mounting on
// the consumer's router.
func (c *Client) HandshakeHandler(resolveOwner authweb.OwnerResolver) http.Handler {
	return authweb.NewHandler(c.flow, c.tokens, c.directory, resolveOwner, c.cfg.Upstream.RedirectURI).Routes()
}

// Close releases the underlying store.
func (c *Client) Close() error {
	return c.store.Close()
}
