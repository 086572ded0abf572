package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/crypto"
	"github.com/your-org/esi-client/internal/domain"
	"github.com/your-org/esi-client/internal/metrics"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/logger"
	"github.com/your-org/esi-client/pkg/resilience/circuitbreaker"
)

// Request describes one upstream operation.
type Request struct {
	// Method is the HTTP method.
	Method string

	// Endpoint is the path under the upstream base URL.
	Endpoint string

	// Credentials, when set, supplies the encrypted token pair whose access
	// token authenticates the call. Decryption is transient to this call.
	Credentials *domain.CredentialRecord

	// Query holds optional query parameters.
	Query url.Values

	// Body is an optional JSON body for writes.
	Body []byte
}

func (r *Request) idempotent() bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

// cacheKey identifies the resource for conditional caching, including query
// parameters since they address different upstream data.
func (r *Request) cacheKey() string {
	if len(r.Query) == 0 {
		return r.Endpoint
	}
	return r.Endpoint + "?" + r.Query.Encode()
}

// Executor is the single chokepoint all upstream calls funnel through. It
// composes admission control, conditional caching, bearer injection, and the
// retry/backoff policy.
type Executor struct {
	httpClient *http.Client
	limiter    *RateLimiter
	cache      *ConditionalCache
	cipher     *crypto.Cipher
	breaker    *circuitbreaker.Breaker
	cfg        config.ExecutorConfig
	upstream   config.UpstreamConfig
	metrics    *metrics.Metrics

	// sleep is replaceable so retry timing is testable.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates the request executor.
func NewExecutor(
	upstream config.UpstreamConfig,
	cfg config.ExecutorConfig,
	limiter *RateLimiter,
	cache *ConditionalCache,
	cipher *crypto.Cipher,
	breaker *circuitbreaker.Breaker,
	m *metrics.Metrics,
) *Executor {
	if m == nil {
		m = metrics.Default
	}
	return &Executor{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		cache:      cache,
		cipher:     cipher,
		breaker:    breaker,
		cfg:        cfg,
		upstream:   upstream,
		metrics:    m,
		sleep:      sleepContext,
	}
}

// Do performs one upstream operation and returns the response body. GETs are
// idempotent from the caller's perspective: transient failures are retried
// with bounded backoff before a typed error surfaces. Non-idempotent methods
// are never retried on ambiguous transport failures; retrying them risks
// duplicate side effects upstream.
func (e *Executor) Do(ctx context.Context, req Request) ([]byte, error) {
	var bearer string
	if req.Credentials != nil {
		tok, err := e.cipher.Decrypt(req.Credentials.AccessTokenCipher)
		if err != nil {
			return nil, err
		}
		bearer = tok
	}

	isGet := req.Method == http.MethodGet
	cacheKey := req.cacheKey()
	skipConditional := false
	servedUnconditional304 := false

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if verdict := e.limiter.CheckAndReserve(ctx, req.Endpoint); !verdict.Allowed {
			return nil, errors.RateLimitError(req.Endpoint, ceilSeconds(verdict.RetryAfter), attempt-1)
		}

		etag := ""
		if isGet && !skipConditional {
			etag, _ = e.cache.GetETag(ctx, cacheKey)
		}

		resp, body, err := e.issue(ctx, req, bearer, etag)
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrOpenState) {
				return nil, errors.UpstreamError(req.Endpoint, 0, attempt-1, errors.ErrServiceUnavailable)
			}
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "upstream call canceled")
			}
			if !req.idempotent() {
				return nil, errors.UpstreamError(req.Endpoint, 0, attempt, err)
			}
			if attempt < e.cfg.MaxRetries {
				e.metrics.UpstreamRetriesTotal.WithLabelValues("network").Inc()
				if serr := e.sleep(ctx, backoff(attempt)); serr != nil {
					return nil, errors.Wrap(serr, "upstream call canceled")
				}
				continue
			}
			return nil, errors.UpstreamError(req.Endpoint, 0, attempt, err)
		}

		switch {
		case resp.StatusCode == http.StatusNotModified:
			if cached, ok := e.cache.GetBody(ctx, cacheKey); ok {
				return cached, nil
			}
			// The ETag memo outlived its body. Re-issue once without the
			// conditional header instead of returning empty data.
			if !servedUnconditional304 {
				servedUnconditional304 = true
				skipConditional = true
				attempt--
				continue
			}
			return nil, errors.UpstreamError(req.Endpoint, resp.StatusCode, attempt, errors.ErrUpstreamFailed)

		case resp.StatusCode == http.StatusUnauthorized:
			// A stale token does not become valid by waiting.
			return nil, errors.TokenError(req.Endpoint, resp.StatusCode, errors.ErrTokenInvalid)

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := e.retryAfter(resp, attempt)
			if attempt < e.cfg.MaxRetries {
				e.metrics.UpstreamRetriesTotal.WithLabelValues("rate_limited").Inc()
				if serr := e.sleep(ctx, wait); serr != nil {
					return nil, errors.Wrap(serr, "upstream call canceled")
				}
				continue
			}
			return nil, errors.RateLimitError(req.Endpoint, ceilSeconds(wait), attempt)

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if isGet && resp.StatusCode == http.StatusOK {
				if respETag := resp.Header.Get("ETag"); respETag != "" {
					e.cache.StoreETag(ctx, cacheKey, respETag)
					e.cache.StoreBody(ctx, cacheKey, body)
				}
			}
			return body, nil

		default:
			if attempt < e.cfg.MaxRetries {
				e.metrics.UpstreamRetriesTotal.WithLabelValues("upstream_error").Inc()
				logger.Debug("retrying upstream call",
					logger.String("endpoint", req.Endpoint),
					logger.Int("status", resp.StatusCode),
					logger.Int("attempt", attempt))
				if serr := e.sleep(ctx, backoff(attempt)); serr != nil {
					return nil, errors.Wrap(serr, "upstream call canceled")
				}
				continue
			}
			return nil, errors.UpstreamError(req.Endpoint, resp.StatusCode, attempt, errors.ErrUpstreamFailed)
		}
	}

	return nil, errors.UpstreamError(req.Endpoint, 0, e.cfg.MaxRetries, errors.ErrUpstreamFailed)
}

// DoJSON performs the operation and unmarshals the response body into out.
func (e *Executor) DoJSON(ctx context.Context, req Request, out any) error {
	body, err := e.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse upstream response")
	}
	return nil
}

// issue sends a single HTTP attempt and reads the full response body.
func (e *Executor) issue(ctx context.Context, req Request, bearer, etag string) (*http.Response, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, e.upstream.BaseURL+req.Endpoint, bodyReader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create upstream request")
	}

	if len(req.Query) > 0 {
		httpReq.URL.RawQuery = req.Query.Encode()
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", e.upstream.UserAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}
	if etag != "" {
		httpReq.Header.Set("If-None-Match", etag)
	}

	start := time.Now()
	resp, err := e.breaker.Execute(func() (*http.Response, error) {
		return e.httpClient.Do(httpReq)
	})
	e.metrics.UpstreamRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.UpstreamRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, nil, err
	}
	defer resp.Body.Close()

	e.metrics.UpstreamRequestsTotal.WithLabelValues(req.Method, metrics.StatusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read upstream response")
	}

	return resp, body, nil
}

// retryAfter reads the upstream Retry-After header, capped so a hostile or
// broken header cannot stall a caller for minutes.
func (e *Executor) retryAfter(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			wait := time.Duration(secs) * time.Second
			if wait > e.cfg.RetryAfterCap {
				wait = e.cfg.RetryAfterCap
			}
			return wait
		}
	}
	return backoff(attempt)
}

// backoff returns the exponential delay before the next attempt.
func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// ceilSeconds converts a wait into whole seconds, rounding up so callers
// never retry early.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// sleepContext sleeps for d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
