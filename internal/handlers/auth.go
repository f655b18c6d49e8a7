package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"material-search/internal/logging"
	"material-search/internal/metrics"
)

const loginPage = "/login.html"

// LoginRequest carries the credentials of a JSON login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse represents the response from authentication endpoints
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Username  string `json:"username,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"` // Seconds until session expires
}

// Login checks the username and password. Form posts are redirected to the
// index or back to the login page, JSON posts get an AuthResponse.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)

	if !h.authEnabled() {
		h.loginDone(w, r, asJSON, "")
		return
	}

	var req LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	ip := clientIP(r)
	if !h.checkCredentials(req.Username, req.Password) {
		logging.Warn("Failed login attempt from %s", ip)
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		if asJSON {
			writeJSONError(w, "invalid username or password", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, loginPage+"?error=1", http.StatusFound)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	logging.Info("User %s logged in from %s", req.Username, ip)

	// Replace any previous session so a fixed cookie cannot be promoted.
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		h.sessions.Delete(cookie.Value)
	}
	sess := h.sessions.Create(req.Username, true)
	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	h.loginDone(w, r, asJSON, req.Username)
}

func (h *Handlers) loginDone(w http.ResponseWriter, r *http.Request, asJSON bool, username string) {
	if !asJSON {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success:   true,
		Username:  username,
		ExpiresIn: int(h.sessions.TTL().Seconds()),
	})
}

func (h *Handlers) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// Logout ends the current session and returns to the login page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		removeUpload(h.sessions.Delete(cookie.Value))
	}
	h.clearSessionCookie(w)

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, AuthResponse{Success: true, Message: "Logged out successfully"})
		return
	}
	http.Redirect(w, r, loginPage, http.StatusFound)
}

// CheckAuth reports whether the request carries a logged-in session.
func (h *Handlers) CheckAuth(w http.ResponseWriter, r *http.Request) {
	if !h.authEnabled() {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, AuthResponse{Success: true})
		return
	}
	sess, ok := h.currentSession(r)
	if !ok || !sess.Authenticated {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, AuthResponse{
		Success:   true,
		Username:  sess.Username,
		ExpiresIn: int(time.Until(sess.ExpiresAt).Seconds()),
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/login", "/logout", loginPage, "/favicon.ico",
		"/health", "/healthz", "/livez", "/readyz", "/api/version":
		return true
	}
	return strings.HasPrefix(path, "/css/") || strings.HasPrefix(path, "/static/login")
}

// AuthMiddleware protects routes that require authentication. It is a
// pass-through when no password hash is configured.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.authEnabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sess, ok := h.currentSession(r)
		if !ok || !sess.Authenticated {
			if ok {
				h.sessions.Delete(sess.Token)
			}
			h.clearSessionCookie(w)
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			} else {
				http.Redirect(w, r, loginPage, http.StatusFound)
			}
			return
		}

		// Sliding expiration
		h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
		next.ServeHTTP(w, r)
	})
}

// currentSession looks up and extends the request's session.
func (h *Handlers) currentSession(r *http.Request) (Session, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return Session{}, false
	}
	return h.sessions.Touch(cookie.Value)
}

// ensureSession returns the request's session, creating an anonymous one
// when login is disabled.
func (h *Handlers) ensureSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	if sess, ok := h.currentSession(r); ok {
		return sess, true
	}
	if h.authEnabled() {
		return Session{}, false
	}
	sess := h.sessions.Create("", false)
	h.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	return sess, true
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
