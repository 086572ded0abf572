package errors

import (
	"errors"
	"fmt"
)

// Standard error types for the upstream client.
var (
	// Authorization errors
	ErrTokenInvalid  = errors.New("access token rejected by upstream")
	ErrTokenExpired  = errors.New("access token has expired")
	ErrGrantRevoked  = errors.New("refresh grant is no longer valid")
	ErrStateNotFound = errors.New("authorization state not found or expired")
	ErrVerifierLost  = errors.New("code verifier unavailable for state")

	// Transport errors
	ErrRateLimited        = errors.New("upstream rate limit exceeded")
	ErrUpstreamFailed     = errors.New("upstream request failed")
	ErrServiceUnavailable = errors.New("service unavailable")

	// Cipher errors
	ErrCipherKeyInvalid = errors.New("cipher key is invalid")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ClientError represents a structured error surfaced by the upstream client.
type ClientError struct {
	// Code is the error code
	Code string `json:"code"`

	// Message is the error message
	Message string `json:"message"`

	// Endpoint is the upstream endpoint that produced the error, if any
	Endpoint string `json:"endpoint,omitempty"`

	// Status is the upstream HTTP status, if any
	Status int `json:"status,omitempty"`

	// Attempts is how many attempts were made before surfacing
	Attempts int `json:"attempts,omitempty"`

	// RetryAfterSeconds is the suggested wait before retrying, if any
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`

	// Cause is the underlying error
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NewClientError creates a new ClientError.
func NewClientError(code, message string, cause error) *ClientError {
	return &ClientError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	CodeTokenError  = "TOKEN_ERROR"
	CodeRateLimited = "RATE_LIMITED"
	CodeUpstream    = "UPSTREAM_ERROR"
	CodeCipher      = "CIPHER_ERROR"
	CodeState       = "STATE_NOT_FOUND"
	CodeConfig      = "CONFIG_ERROR"
)

// TokenError builds an authorization failure. It is never retried locally;
// callers should treat it as "re-authenticate".
func TokenError(endpoint string, status int, cause error) *ClientError {
	return &ClientError{
		Code:     CodeTokenError,
		Message:  "upstream rejected credentials",
		Endpoint: endpoint,
		Status:   status,
		Cause:    cause,
	}
}

// RateLimitError builds a quota-exceeded failure with the suggested wait.
func RateLimitError(endpoint string, retryAfterSeconds, attempts int) *ClientError {
	return &ClientError{
		Code:              CodeRateLimited,
		Message:           "rate limit exceeded",
		Endpoint:          endpoint,
		Status:            429,
		Attempts:          attempts,
		RetryAfterSeconds: retryAfterSeconds,
		Cause:             ErrRateLimited,
	}
}

// UpstreamError builds a generic non-2xx failure after retries were exhausted.
func UpstreamError(endpoint string, status, attempts int, cause error) *ClientError {
	return &ClientError{
		Code:     CodeUpstream,
		Message:  "upstream request failed",
		Endpoint: endpoint,
		Status:   status,
		Attempts: attempts,
		Cause:    cause,
	}
}

// CipherError builds a cipher failure. Always fatal to the calling operation.
func CipherError(cause error) *ClientError {
	return &ClientError{
		Code:    CodeCipher,
		Message: "credential cipher failure",
		Cause:   cause,
	}
}

// IsTokenError reports whether err is an authorization failure.
func IsTokenError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Code == CodeTokenError
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Code == CodeRateLimited
}

// IsGrantRevoked reports whether err indicates a permanently dead refresh
// grant (upstream invalid_grant class).
func IsGrantRevoked(err error) bool {
	return errors.Is(err, ErrGrantRevoked)
}

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
