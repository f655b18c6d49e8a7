package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func formLogin(username, password string) *http.Request {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	f := newFixture(t, "")
	rec := httptest.NewRecorder()
	f.h.AuthMiddleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with login disabled", rec.Code)
	}
}

func TestAuthMiddlewareRejectsAnonymous(t *testing.T) {
	f := newFixture(t, "secret")
	mw := f.h.AuthMiddleware(okHandler())

	tests := []struct {
		name         string
		path         string
		wantCode     int
		wantLocation string
	}{
		{"api gets 401", "/api/match", http.StatusUnauthorized, ""},
		{"page redirects", "/", http.StatusFound, loginPage},
		{"login page is public", loginPage, http.StatusOK, ""},
		{"health is public", "/healthz", http.StatusOK, ""},
		{"version is public", "/api/version", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantLocation != "" && rec.Header().Get("Location") != tt.wantLocation {
				t.Errorf("Location = %q, want %q", rec.Header().Get("Location"), tt.wantLocation)
			}
		})
	}
}

func TestFormLogin(t *testing.T) {
	tests := []struct {
		name         string
		username     string
		password     string
		wantLocation string
		wantCookie   bool
	}{
		{"valid credentials", "admin", "secret", "/", true},
		{"wrong password", "admin", "nope", loginPage + "?error=1", false},
		{"wrong username", "root", "secret", loginPage + "?error=1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "secret")
			rec := httptest.NewRecorder()
			f.h.Login(rec, formLogin(tt.username, tt.password))

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tt.wantLocation {
				t.Errorf("Location = %q, want %q", loc, tt.wantLocation)
			}
			if got := f.h.sessions.Len() == 1; got != tt.wantCookie {
				t.Errorf("session created = %v, want %v", got, tt.wantCookie)
			}
		})
	}
}

func TestLoginSessionPassesMiddleware(t *testing.T) {
	f := newFixture(t, "secret")

	rec := httptest.NewRecorder()
	f.h.Login(rec, formLogin("admin", "secret"))
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.h.AuthMiddleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a valid session", rec.Code)
	}

	logout := httptest.NewRequest(http.MethodGet, "/logout", nil)
	logout.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.h.Logout(rec, logout)
	if rec.Header().Get("Location") != loginPage {
		t.Errorf("logout Location = %q, want %q", rec.Header().Get("Location"), loginPage)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	f.h.AuthMiddleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status after logout = %d, want 401", rec.Code)
	}
}

func TestJSONLogin(t *testing.T) {
	f := newFixture(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"admin","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp AuthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Username != "admin" || resp.ExpiresIn <= 0 {
		t.Errorf("response = %+v", resp)
	}
	sessionCookie(t, rec)
}

func TestUploadRequiresLogin(t *testing.T) {
	f := newFixture(t, "secret")
	rec := httptest.NewRecorder()
	f.h.Upload(rec, uploadRequest(t, []byte("x")))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a session", rec.Code)
	}
}
