package handlers

import (
	"net/http"

	"github.com/openhumans/loggather/auth"
	"github.com/openhumans/loggather/utils"
)

// AuthDeps provides the Open Humans login handler, which is nil when no
// OAuth2 client is configured
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

const loginUnavailable = "Open Humans login is not configured"

// withAuthHandler resolves the auth handler per request so a process
// started without OAuth2 credentials still serves everything else
func withAuthHandler(deps AuthDeps, pick func(*auth.Handler) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := deps.AuthHandler()
		if h == nil {
			_ = utils.WriteError(w, http.StatusServiceUnavailable, loginUnavailable, nil)
			return
		}
		pick(h)(w, r)
	}
}

// AuthLoginHandler redirects to the Open Humans authorization page
func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, func(h *auth.Handler) http.HandlerFunc { return h.HandleLogin })
}

// AuthCallbackHandler completes the OAuth2 code exchange
func AuthCallbackHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, func(h *auth.Handler) http.HandlerFunc { return h.HandleCallback })
}

// AuthLogoutHandler clears the session
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, func(h *auth.Handler) http.HandlerFunc { return h.HandleLogout })
}
