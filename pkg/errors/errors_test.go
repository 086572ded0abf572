package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientError_Error(t *testing.T) {
	err := NewClientError(CodeUpstream, "upstream request failed", nil)
	assert.Equal(t, "UPSTREAM_ERROR: upstream request failed", err.Error())

	err = NewClientError(CodeUpstream, "upstream request failed", ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestClientError_Unwrap(t *testing.T) {
	err := TokenError("/v1/assets/", 401, ErrTokenInvalid)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenError(t *testing.T) {
	err := TokenError("/v1/assets/", 401, ErrTokenInvalid)
	assert.Equal(t, CodeTokenError, err.Code)
	assert.Equal(t, "/v1/assets/", err.Endpoint)
	assert.Equal(t, 401, err.Status)
	assert.True(t, IsTokenError(err))
	assert.False(t, IsRateLimited(err))
}

func TestRateLimitError(t *testing.T) {
	err := RateLimitError("/v1/orders/", 5, 3)
	assert.Equal(t, CodeRateLimited, err.Code)
	assert.Equal(t, 429, err.Status)
	assert.Equal(t, 5, err.RetryAfterSeconds)
	assert.Equal(t, 3, err.Attempts)
	assert.True(t, IsRateLimited(err))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestIsGrantRevoked(t *testing.T) {
	err := TokenError("token", 400, ErrGrantRevoked)
	assert.True(t, IsGrantRevoked(err))

	// Matches through further wrapping.
	wrapped := fmt.Errorf("refresh failed: %w", err)
	assert.True(t, IsGrantRevoked(wrapped))

	assert.False(t, IsGrantRevoked(TokenError("token", 401, ErrTokenInvalid)))
	assert.False(t, IsGrantRevoked(nil))
}

func TestHelpersMatchThroughWrapping(t *testing.T) {
	err := Wrap(UpstreamError("/v1/wallet/", 503, 3, ErrUpstreamFailed), "sweep failed")

	var ce *ClientError
	require.True(t, As(err, &ce))
	assert.Equal(t, CodeUpstream, ce.Code)
	assert.Equal(t, 3, ce.Attempts)
	assert.True(t, Is(err, ErrUpstreamFailed))
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}
