package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/store"
	"github.com/your-org/esi-client/pkg/errors"
)

func testUpstreamConfig() config.UpstreamConfig {
	return config.UpstreamConfig{
		AuthURL:     "https://login.example.com/v2/oauth/authorize",
		ClientID:    "client-id",
		RedirectURI: "https://local.example.com/callback",
		Scopes:      []string{"read-assets", "read-orders"},
	}
}

func TestBeginAuthorization_BuildsURL(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)

	authorizationURL, verifier, err := flow.BeginAuthorization(context.Background(), "my-state")
	require.NoError(t, err)

	u, err := url.Parse(authorizationURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authorizationURL, "https://login.example.com/v2/oauth/authorize?"))

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://local.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "read-assets read-orders", q.Get("scope"))
	assert.Equal(t, "my-state", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), q.Get("code_challenge"))
}

func TestBeginAuthorization_GeneratesState(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)

	authorizationURL, _, err := flow.BeginAuthorization(context.Background(), "")
	require.NoError(t, err)

	u, err := url.Parse(authorizationURL)
	require.NoError(t, err)

	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	// 32 random bytes, URL-safe encoded without padding.
	assert.Len(t, state, 43)
}

func TestVerifierLength(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)

	_, verifier, err := flow.BeginAuthorization(context.Background(), "s")
	require.NoError(t, err)

	// PKCE requires 43-128 characters.
	assert.GreaterOrEqual(t, len(verifier), 43)
	assert.LessOrEqual(t, len(verifier), 128)
}

func TestGetVerifier_RoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)
	ctx := context.Background()

	_, staged, err := flow.BeginAuthorization(ctx, "state-1")
	require.NoError(t, err)

	got, err := flow.GetVerifier(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, staged, got)
}

func TestGetVerifier_SingleUse(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)
	ctx := context.Background()

	_, _, err := flow.BeginAuthorization(ctx, "state-1")
	require.NoError(t, err)

	_, err = flow.GetVerifier(ctx, "state-1")
	require.NoError(t, err)

	_, err = flow.GetVerifier(ctx, "state-1")
	assert.ErrorIs(t, err, errors.ErrStateNotFound)
}

func TestGetVerifier_UnknownState(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)

	_, err := flow.GetVerifier(context.Background(), "never-staged")
	assert.ErrorIs(t, err, errors.ErrStateNotFound)
}

func TestBeginAuthorization_StateCollisionProducesFreshVerifiers(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()
	flow := NewPKCEFlow(testUpstreamConfig(), st)
	ctx := context.Background()

	_, v1, err := flow.BeginAuthorization(ctx, "s")
	require.NoError(t, err)
	_, v2, err := flow.BeginAuthorization(ctx, "s")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)

	// Last write wins in the store.
	got, err := flow.GetVerifier(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, v2, got)
}
