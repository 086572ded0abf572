// Package domain holds the credential model shared by the auth, client, and
// sweep packages. The persistence layer behind CredentialDirectory is an
// external collaborator; only its contract lives here.
package domain

import (
	"context"
	"fmt"
	"time"
)

// CredentialStatus is the lifecycle state of a credential record.
type CredentialStatus string

const (
	// StatusActive means the record holds a usable token pair.
	StatusActive CredentialStatus = "active"

	// StatusRevoked is terminal: the record was logged out or its refresh
	// grant was rejected by upstream. A new login creates a fresh record.
	StatusRevoked CredentialStatus = "revoked"
)

// CredentialRecord is one upstream identity's access grant. Token fields hold
// ciphertext only; decryption happens transiently inside the request path.
type CredentialRecord struct {
	// OwnerID is the stable local identity the grant belongs to
	OwnerID int64 `json:"owner_id"`

	// SubjectID is the upstream character the grant is for
	SubjectID int64 `json:"subject_id"`

	// AccessTokenCipher is the encrypted bearer token
	AccessTokenCipher string `json:"-"`

	// RefreshTokenCipher is the encrypted refresh token
	RefreshTokenCipher string `json:"-"`

	// ExpiresAt is when the access token stops being accepted
	ExpiresAt time.Time `json:"expires_at"`

	// Scopes granted by the user at authorization time
	Scopes []string `json:"scopes"`

	// TokenType is the upstream token type, normally "Bearer"
	TokenType string `json:"token_type"`

	// Status is the record lifecycle state
	Status CredentialStatus `json:"status"`

	// LastRefreshedAt is when the token pair was last rotated
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

// IsExpired reports whether the access token has already expired.
func (r *CredentialRecord) IsExpired() bool {
	return !r.ExpiresAt.IsZero() && time.Now().After(r.ExpiresAt)
}

// IsExpiringSoon reports whether the access token expires within the window.
func (r *CredentialRecord) IsExpiringSoon(within time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(within).After(r.ExpiresAt)
}

// Key identifies the record for locking and logging.
func (r *CredentialRecord) Key() string {
	return fmt.Sprintf("%d:%d", r.OwnerID, r.SubjectID)
}

// TokenResponse is the upstream token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ExpiresAt converts the relative expiry into an absolute timestamp.
func (t *TokenResponse) ExpiresAt() time.Time {
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IdentityClaims is the upstream verification endpoint response. Field naming
// is upstream-defined and treated as an opaque contract.
type IdentityClaims struct {
	CharacterID        int64  `json:"CharacterID"`
	CharacterName      string `json:"CharacterName"`
	ExpiresOn          string `json:"ExpiresOn"`
	Scopes             string `json:"Scopes"`
	TokenType          string `json:"TokenType"`
	CharacterOwnerHash string `json:"CharacterOwnerHash"`
}

// CredentialDirectory is the external persistence collaborator holding
// credential records. Implementations must ensure Save replaces the stored
// token pair atomically.
type CredentialDirectory interface {
	// Get returns the record for (owner, subject), or nil if absent.
	Get(ctx context.Context, ownerID, subjectID int64) (*CredentialRecord, error)

	// ListExpiring returns active records whose access token expires within
	// the window and has not already expired.
	ListExpiring(ctx context.Context, window time.Duration) ([]*CredentialRecord, error)

	// Save creates or replaces a record.
	Save(ctx context.Context, rec *CredentialRecord) error

	// MarkRevoked transitions a record to the terminal revoked state.
	MarkRevoked(ctx context.Context, ownerID, subjectID int64) error

	// Delete removes a record on explicit logout.
	Delete(ctx context.Context, ownerID, subjectID int64) error
}
