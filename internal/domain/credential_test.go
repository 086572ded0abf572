package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialRecord_IsExpired(t *testing.T) {
	rec := &CredentialRecord{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, rec.IsExpired())

	rec.ExpiresAt = time.Now().Add(time.Minute)
	assert.False(t, rec.IsExpired())

	// No expiry known means not expired.
	rec.ExpiresAt = time.Time{}
	assert.False(t, rec.IsExpired())
}

func TestCredentialRecord_IsExpiringSoon(t *testing.T) {
	rec := &CredentialRecord{ExpiresAt: time.Now().Add(2 * time.Minute)}

	assert.True(t, rec.IsExpiringSoon(5*time.Minute))
	assert.False(t, rec.IsExpiringSoon(time.Minute))

	rec.ExpiresAt = time.Time{}
	assert.False(t, rec.IsExpiringSoon(5*time.Minute))
}

func TestCredentialRecord_Key(t *testing.T) {
	rec := &CredentialRecord{OwnerID: 42, SubjectID: 91126314}
	assert.Equal(t, "42:91126314", rec.Key())
}

func TestCredentialRecord_JSONHidesCiphers(t *testing.T) {
	rec := &CredentialRecord{
		OwnerID:            42,
		SubjectID:          91126314,
		AccessTokenCipher:  "cipher-a",
		RefreshTokenCipher: "cipher-r",
		Status:             StatusActive,
	}

	out, err := json.Marshal(rec)
	assert.NoError(t, err)
	assert.NotContains(t, string(out), "cipher-a")
	assert.NotContains(t, string(out), "cipher-r")
	assert.Contains(t, string(out), `"subject_id":91126314`)
}

func TestTokenResponse_ExpiresAt(t *testing.T) {
	resp := &TokenResponse{ExpiresIn: 1200}

	at := resp.ExpiresAt()
	assert.WithinDuration(t, time.Now().Add(20*time.Minute), at, 2*time.Second)
}
