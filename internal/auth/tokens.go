package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/your-org/esi-client/internal/config"
	"github.com/your-org/esi-client/internal/crypto"
	"github.com/your-org/esi-client/internal/domain"
	"github.com/your-org/esi-client/pkg/errors"
	"github.com/your-org/esi-client/pkg/logger"
)

// TokenService performs code exchange, token refresh, and bearer verification
// against the upstream login server.
type TokenService struct {
	client *http.Client
	cfg    config.UpstreamConfig
	cipher *crypto.Cipher
}

// NewTokenService creates a new token service.
func NewTokenService(cfg config.UpstreamConfig, cipher *crypto.Cipher) *TokenService {
	return &TokenService{
		client: &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		cipher: cipher,
	}
}

// RotatedCredential is a freshly obtained token pair, encrypted for storage.
// The caller must persist it before the old pair is reused: upstream refresh
// tokens are single-use, and the old one is already invalidated.
type RotatedCredential struct {
	AccessTokenCipher  string
	RefreshTokenCipher string
	ExpiresAt          time.Time
	TokenType          string
	Scopes             []string
}

// ExchangeCode redeems an authorization code for a token pair. redirectURI
// must be the exact URI used at authorization time; upstream rejects a
// mismatch.
func (s *TokenService) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*domain.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", codeVerifier)
	form.Set("redirect_uri", redirectURI)

	return s.postToken(ctx, form)
}

// Refresh redeems a stored (encrypted) refresh token for a new token pair and
// returns both tokens re-encrypted. The returned refresh token is always
// different from the one sent; the old one is invalidated upstream on use.
func (s *TokenService) Refresh(ctx context.Context, refreshTokenCipher string) (*RotatedCredential, error) {
	refreshToken, err := s.cipher.Decrypt(refreshTokenCipher)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	resp, err := s.postToken(ctx, form)
	if err != nil {
		return nil, err
	}

	return s.Seal(resp)
}

// Seal encrypts a token response into its storage form.
func (s *TokenService) Seal(resp *domain.TokenResponse) (*RotatedCredential, error) {
	accessCipher, err := s.cipher.Encrypt(resp.AccessToken)
	if err != nil {
		return nil, errors.CipherError(err)
	}
	refreshCipher, err := s.cipher.Encrypt(resp.RefreshToken)
	if err != nil {
		return nil, errors.CipherError(err)
	}

	var scopes []string
	if resp.Scope != "" {
		scopes = strings.Fields(resp.Scope)
	}

	return &RotatedCredential{
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		ExpiresAt:          resp.ExpiresAt(),
		TokenType:          resp.TokenType,
		Scopes:             scopes,
	}, nil
}

// VerifyAccessToken resolves a bearer token to its upstream identity. Used
// once per login to bind a credential record to an owner.
func (s *TokenService) VerifyAccessToken(ctx context.Context, accessToken string) (*domain.IdentityClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.VerifyURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create verify request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "verify request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.TokenError(s.cfg.VerifyURL, resp.StatusCode, errors.ErrTokenInvalid)
	}

	var claims domain.IdentityClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, errors.Wrap(err, "failed to parse verify response")
	}

	return &claims, nil
}

// postToken performs a credential-authenticated POST to the token endpoint
// and classifies the response.
func (s *TokenService) postToken(ctx context.Context, form url.Values) (*domain.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create token request")
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(body, &errResp)

		logger.Warn("token endpoint rejected request",
			logger.Int("status", resp.StatusCode),
			logger.String("grant_type", form.Get("grant_type")),
			logger.String("error", errResp.Error))

		if errResp.Error == "invalid_grant" || errResp.Error == "invalid_token" {
			return nil, errors.TokenError(s.cfg.TokenURL, resp.StatusCode, errors.ErrGrantRevoked)
		}

		cause := fmt.Errorf("%s: %s", errResp.Error, errResp.ErrorDescription)
		if errResp.Error == "" {
			cause = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
		}
		return nil, errors.TokenError(s.cfg.TokenURL, resp.StatusCode, cause)
	}

	var tokenResp domain.TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.Wrap(err, "failed to parse token response")
	}

	logger.Debug("token grant successful",
		logger.String("grant_type", form.Get("grant_type")),
		logger.Int("expires_in", tokenResp.ExpiresIn))

	return &tokenResp, nil
}
