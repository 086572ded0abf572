// Package auth implements the upstream authorization handshake: the PKCE
// login flow and the token exchange/refresh/verify operations.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/store"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/logger"
)

const (
	// handshakeTTL bounds how long a login attempt stays redeemable.
	handshakeTTL = 10 * time.Minute

	verifierKeyPrefix = "pkce:"
)

// PKCEFlow builds authorization redirects and stages code verifiers in the
// shared ephemeral store until the callback consumes them.
type PKCEFlow struct {
	cfg   config.UpstreamConfig
	store store.Store
}

// NewPKCEFlow creates a new PKCE flow.
func NewPKCEFlow(cfg config.UpstreamConfig, st store.Store) *PKCEFlow {
	return &PKCEFlow{cfg: cfg, store: st}
}

// BeginAuthorization builds the authorization URL for a new login attempt and
// stages its code verifier under state. If state is empty a random one is
// generated. A store failure does not block the redirect; the verifier lookup
// will fail later at exchange time with a typed error instead.
func (f *PKCEFlow) BeginAuthorization(ctx context.Context, state string) (authorizationURL, codeVerifier string, err error) {
	if state == "" {
		state, err = randomToken()
		if err != nil {
			return "", "", fmt.Errorf("failed to generate state: %w", err)
		}
	}

	codeVerifier, err = randomToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	sum := sha256.Sum256([]byte(codeVerifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", f.cfg.ClientID)
	q.Set("redirect_uri", f.cfg.RedirectURI)
	q.Set("scope", strings.Join(f.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")

	if err := f.store.Set(ctx, verifierKeyPrefix+state, []byte(codeVerifier), handshakeTTL); err != nil {
		logger.Warn("failed to stage code verifier; exchange for this state will fail",
			logger.String("state", state),
			logger.Err(err))
	}

	return f.cfg.AuthURL + "?" + q.Encode(), codeVerifier, nil
}

// GetVerifier returns the staged code verifier for state and removes it, so a
// verifier is redeemable at most once. Callers must treat ErrStateNotFound as
// an invalid or expired login attempt and abort.
func (f *PKCEFlow) GetVerifier(ctx context.Context, state string) (string, error) {
	data, err := f.store.GetDel(ctx, verifierKeyPrefix+state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errors.ErrStateNotFound
		}
		return "", errors.Wrap(errors.ErrVerifierLost, err.Error())
	}
	return string(data), nil
}

// randomToken returns 32 random bytes, URL-safe encoded (43 characters,
// within the 43-128 range PKCE requires of a verifier).
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
