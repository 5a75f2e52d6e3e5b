package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/auth/middleware"
	"github.com/codemurf/auth-gateway/internal/auth/providers"
	"github.com/codemurf/auth-gateway/internal/auth/state"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/codemurf/auth-gateway/internal/logger"
	"github.com/codemurf/auth-gateway/internal/token"
	"github.com/codemurf/auth-gateway/internal/utils"
	"go.uber.org/zap"
)

// Stable error codes surfaced to the front end on the error redirect.
// Provider-supplied error tokens (e.g. access_denied) pass through as-is.
const (
	ErrCodeUnsupportedProvider = "unsupported_provider"
	ErrCodeMissingCode         = "missing_code"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeOAuthFailed         = "oauth_failed"
)

// Handler handles the login, callback, and session endpoints
type Handler struct {
	providers map[string]providers.Provider
	states    *state.Store
	accounts  account.Store
	issuer    *token.Issuer
	frontend  config.FrontendConfig
}

// NewHandler creates a new Handler instance
func NewHandler(
	provs map[string]providers.Provider,
	states *state.Store,
	accounts account.Store,
	issuer *token.Issuer,
	frontend config.FrontendConfig,
) *Handler {
	return &Handler{
		providers: provs,
		states:    states,
		accounts:  accounts,
		issuer:    issuer,
		frontend:  frontend,
	}
}

// HandleLogin initiates the authorization-code flow: it records a single-use
// state token and redirects the user agent to the provider's consent screen.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	provider, ok := h.providers[name]
	if !ok {
		h.redirectError(w, r, ErrCodeUnsupportedProvider)
		return
	}

	st, err := h.states.Issue(name)
	if err != nil {
		logger.Error("Failed to generate state", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, ErrCodeOAuthFailed)
		return
	}

	http.Redirect(w, r, provider.AuthCodeURL(st), http.StatusFound)
}

// HandleCallback processes the provider redirect. Every outcome is itself a
// redirect back to the front end: the browser arrived here following the
// provider's redirect, so nothing is listening for a JSON body. Checks run
// in strict order and stop at the first failure, so a provider error or a
// bad state never reaches the token exchange.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		h.redirectError(w, r, provErr)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectError(w, r, ErrCodeMissingCode)
		return
	}

	provider, ok := h.providers[name]
	if !ok {
		h.redirectError(w, r, ErrCodeUnsupportedProvider)
		return
	}

	if !h.states.Consume(q.Get("state"), name) {
		logger.Warn("Rejected callback with bad state", zap.String("provider", name))
		h.redirectError(w, r, ErrCodeInvalidState)
		return
	}

	// One exchange attempt only: authorization codes are single-use, a
	// retry would fail regardless.
	providerToken, err := provider.Exchange(r.Context(), code)
	if err != nil {
		logger.Error("Code exchange failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, ErrCodeOAuthFailed)
		return
	}

	identity, err := provider.ResolveIdentity(r.Context(), providerToken)
	if err != nil {
		logger.Error("Identity resolution failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, ErrCodeOAuthFailed)
		return
	}

	user, err := h.accounts.Upsert(r.Context(), name, *identity)
	if err != nil {
		logger.Error("Account upsert failed", zap.String("provider", name), zap.Error(err))
		h.redirectError(w, r, ErrCodeOAuthFailed)
		return
	}

	session, err := h.issuer.IssueSession(user)
	if err != nil {
		logger.Error("Session issuance failed", zap.String("user_id", user.ID), zap.Error(err))
		h.redirectError(w, r, ErrCodeOAuthFailed)
		return
	}

	logger.Info("Login completed",
		zap.String("provider", name),
		zap.String("user_id", user.ID),
	)
	h.redirectSession(w, r, user, session)
}

// HandleRefresh trades a valid refresh token for a new session pair. Unlike
// the callback, this endpoint is called by front-end code, so outcomes are
// JSON.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	refreshToken := h.refreshTokenFromRequest(r)
	if refreshToken == "" {
		utils.WriteError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
		return
	}

	userID, err := h.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		utils.WriteError(w, "invalid_token", "refresh token is invalid or expired", http.StatusUnauthorized)
		return
	}

	user, err := h.accounts.FindByID(r.Context(), userID)
	if errors.Is(err, account.ErrNotFound) {
		utils.WriteError(w, "invalid_token", "unknown user", http.StatusUnauthorized)
		return
	}
	if err != nil {
		logger.Error("Failed to load user for refresh", zap.String("user_id", userID), zap.Error(err))
		utils.WriteError(w, "server_error", "failed to refresh session", http.StatusInternalServerError)
		return
	}

	session, err := h.issuer.IssueSession(user)
	if err != nil {
		logger.Error("Session issuance failed", zap.String("user_id", user.ID), zap.Error(err))
		utils.WriteError(w, "server_error", "failed to refresh session", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, map[string]string{
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
		"user_id":       user.ID,
	})
}

// HandleMe returns the authenticated user. Must run behind the
// authentication middleware.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	info, ok := middleware.AuthFromContext(r.Context())
	if !ok {
		utils.WriteError(w, "unauthorized", "Authentication required", http.StatusUnauthorized)
		return
	}

	user, err := h.accounts.FindByID(r.Context(), info.UserID)
	if errors.Is(err, account.ErrNotFound) {
		utils.WriteError(w, "unauthorized", "unknown user", http.StatusUnauthorized)
		return
	}
	if err != nil {
		logger.Error("Failed to load user", zap.String("user_id", info.UserID), zap.Error(err))
		utils.WriteError(w, "server_error", "failed to load user", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, map[string]interface{}{
		"user_id":      user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"role":         string(user.Role),
	})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) refreshTokenFromRequest(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return body.RefreshToken
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.FormValue("refresh_token")
}

// redirectSession sends the browser to the front-end callback URL with the
// minted credentials as query parameters. Bearer tokens in a URL are visible
// to browser history and proxy logs; this mirrors the contract the front end
// expects today.
func (h *Handler) redirectSession(w http.ResponseWriter, r *http.Request, user *account.User, session *token.Session) {
	dest := h.frontendURL(h.frontend.CallbackPath, url.Values{
		"access_token":  {session.AccessToken},
		"refresh_token": {session.RefreshToken},
		"user_id":       {user.ID},
	})
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	dest := h.frontendURL(h.frontend.ErrorPath, url.Values{"error": {code}})
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) frontendURL(path string, query url.Values) string {
	return h.frontend.BaseURL + path + "?" + query.Encode()
}
