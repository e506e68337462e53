package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/utils"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName = "oauth_state"
	// SessionCookieName is the cookie name for the session token
	SessionCookieName = "session"
	stateCookieMaxAge = 600
)

// Authorizer builds the Open Humans authorization URL
type Authorizer interface {
	AuthorizeURL(state string) string
}

// MemberLogin completes the code exchange and stores the member
type MemberLogin interface {
	Login(ctx context.Context, code string) (*models.Member, error)
}

// Handler handles the Open Humans OAuth2 flow (login, callback, logout).
type Handler struct {
	cfg        *config.Config
	authorizer Authorizer
	members    MemberLogin
	sessions   *SessionManager
	logger     *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(cfg *config.Config, authorizer Authorizer, members MemberLogin, sessions *SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		authorizer: authorizer,
		members:    members,
		sessions:   sessions,
		logger:     logger,
	}
}

func (h *Handler) secure() bool {
	return strings.HasPrefix(h.cfg.OpenHumans.AppBaseURL, "https")
}

// HandleLogin redirects to Open Humans for OAuth2 authorization
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.cfg.OpenHumans.ClientID == "" {
		h.logger.Error("open humans client not configured")
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.authorizer.AuthorizeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code, stores the member and
// sets the session cookie
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	member, err := h.members.Login(r.Context(), code)
	if err != nil {
		h.logger.Warn("open humans login failed", zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	token, err := h.sessions.Issue(member.ID, member.Username)
	if err != nil {
		h.logger.Error("failed to issue session", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/api/v1/dashboard", http.StatusFound)
}

// HandleLogout clears the session cookie
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
