// Package authweb exposes the login/callback HTTP surface of the
// authorization handshake. Consumers mount Routes on their own server; the
// domain-entity API lives elsewhere.
package authweb

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/esi-client/internal/auth"
	"github.com/your-org/esi-client/internal/domain"
	"github.com/your-org/esi-client/pkg/logger"
)

// OwnerResolver maps an incoming request to the local identity initiating or
// completing a login. Typically backed by the consumer's session layer.
type OwnerResolver func(r *http.Request) (int64, error)

// Handler serves the authorization handshake endpoints.
type Handler struct {
	flow         *auth.PKCEFlow
	tokens       *auth.TokenService
	directory    domain.CredentialDirectory
	resolveOwner OwnerResolver
	redirectURI  string
}

// NewHandler creates a handshake handler.
func NewHandler(flow *auth.PKCEFlow, tokens *auth.TokenService, directory domain.CredentialDirectory, resolveOwner OwnerResolver, redirectURI string) *Handler {
	return &Handler{
		flow:         flow,
		tokens:       tokens,
		directory:    directory,
		resolveOwner: resolveOwner,
		redirectURI:  redirectURI,
	}
}

// Routes returns the handshake routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/login", h.HandleLogin)
	r.Get("/callback", h.HandleCallback)
	r.Post("/logout/{subjectID}", h.HandleLogout)
	return r
}

// HandleLogin starts a login attempt and redirects to the upstream
// authorization endpoint.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := h.resolveOwner(r); err != nil {
		h.renderError(w, "Not signed in", http.StatusUnauthorized)
		return
	}

	authorizationURL, _, err := h.flow.BeginAuthorization(r.Context(), "")
	if err != nil {
		logger.Error("failed to begin authorization", logger.Err(err))
		h.renderError(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authorizationURL, http.StatusFound)
}

// HandleCallback completes a login attempt: it redeems the staged verifier,
// exchanges the authorization code, binds the token pair to the upstream
// identity, and persists the credential record.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.resolveOwner(r)
	if err != nil {
		h.renderError(w, "Not signed in", http.StatusUnauthorized)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.renderError(w, "Missing code or state", http.StatusBadRequest)
		return
	}

	verifier, err := h.flow.GetVerifier(r.Context(), state)
	if err != nil {
		// State is unknown or expired; say no more than that.
		h.renderError(w, "Login attempt is invalid or has expired", http.StatusBadRequest)
		return
	}

	tokenResp, err := h.tokens.ExchangeCode(r.Context(), code, verifier, h.redirectURI)
	if err != nil {
		logger.Warn("code exchange failed", logger.Err(err))
		h.renderError(w, "Login failed", http.StatusBadGateway)
		return
	}

	claims, err := h.tokens.VerifyAccessToken(r.Context(), tokenResp.AccessToken)
	if err != nil {
		logger.Warn("token verification failed", logger.Err(err))
		h.renderError(w, "Login failed", http.StatusBadGateway)
		return
	}

	rotated, err := h.tokens.Seal(tokenResp)
	if err != nil {
		logger.Error("failed to seal token pair", logger.Err(err))
		h.renderError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	rec := &domain.CredentialRecord{
		OwnerID:            ownerID,
		SubjectID:          claims.CharacterID,
		AccessTokenCipher:  rotated.AccessTokenCipher,
		RefreshTokenCipher: rotated.RefreshTokenCipher,
		ExpiresAt:          rotated.ExpiresAt,
		Scopes:             rotated.Scopes,
		TokenType:          rotated.TokenType,
		Status:             domain.StatusActive,
		LastRefreshedAt:    time.Now(),
	}

	if err := h.directory.Save(r.Context(), rec); err != nil {
		logger.Error("failed to persist credential record", logger.Err(err))
		h.renderError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	logger.Info("authorization completed",
		logger.Int64("owner_id", ownerID),
		logger.Int64("subject_id", claims.CharacterID))

	h.renderJSON(w, http.StatusOK, map[string]any{
		"subject_id":   claims.CharacterID,
		"subject_name": claims.CharacterName,
	})
}

// HandleLogout deletes the credential record for the given subject.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.resolveOwner(r)
	if err != nil {
		h.renderError(w, "Not signed in", http.StatusUnauthorized)
		return
	}

	subjectID, err := strconv.ParseInt(chi.URLParam(r, "subjectID"), 10, 64)
	if err != nil {
		h.renderError(w, "Invalid subject", http.StatusBadRequest)
		return
	}

	if err := h.directory.Delete(r.Context(), ownerID, subjectID); err != nil {
		logger.Error("failed to delete credential record", logger.Err(err))
		h.renderError(w, "Logout failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) renderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) renderError(w http.ResponseWriter, message string, status int) {
	h.renderJSON(w, status, map[string]string{"error": message})
}
