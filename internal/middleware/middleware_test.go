package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	if rw.statusCode != http.StatusOK || rw.wroteHeader {
		t.Fatalf("new writer = %d, wroteHeader %v", rw.statusCode, rw.wroteHeader)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want first value 404", rw.statusCode)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	data := []byte("test data")
	n, err := rw.Write(data)
	if err != nil || n != len(data) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if rw.bytesWritten != int64(len(data)) || !rw.wroteHeader {
		t.Errorf("bytesWritten = %d, wroteHeader = %v", rw.bytesWritten, rw.wroteHeader)
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("Hijack() on a recorder returned nil error")
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"api request", "/api/match", DefaultLoggingConfig(), false},
		{"static asset", "/js/app.js", DefaultLoggingConfig(), true},
		{"static logging on", "/js/app.js", LoggingConfig{LogStaticFiles: true, SkipExtensions: []string{".js"}}, false},
		{"served image is never static", "/api/get_image/3.png", DefaultLoggingConfig(), false},
		{"health logged", "/healthz", LoggingConfig{LogHealthChecks: true}, false},
		{"health skipped", "/healthz", LoggingConfig{LogHealthChecks: false}, true},
		{"explicit skip", "/api/events", LoggingConfig{SkipPaths: []string{"/api/events"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\nb\rc", "a b c"},
		{"\x1b[31mred", "[31mred"},
		{"nul\x00byte", "nulbyte"},
		{"tab\there", "tab\there"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAccessLine(t *testing.T) {
	var line string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		rw.WriteHeader(http.StatusCreated)
		_, _ = rw.Write([]byte("hello"))
		line = formatAccessLine(r, rw, 12*time.Millisecond)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/upload?x=1", http.NoBody)
	req.RemoteAddr = "10.0.0.7:51234"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11)")
	req.Header.Set(RequestIDHeader, "0b7cf4a4-3a56-4c35-9a4e-0f2bd1f6b5d1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	for _, want := range []string{
		"10.0.0.7 POST /api/upload x=1 201 5 12 -",
		`"Mozilla/5.0 (X11)"`,
		"0b7cf4a4-3a56-4c35-9a4e-0f2bd1f6b5d1",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("access line %q missing %q", line, want)
		}
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"reused", "7a0e8d7e-8b5f-4a7e-9c1f-0d2a9c0b7e11", true},
		{"malformed replaced", "not\na-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFrom(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("request ID %q is not a UUID", seen)
			}
			if w.Header().Get(RequestIDHeader) != seen {
				t.Errorf("response header = %q, context = %q", w.Header().Get(RequestIDHeader), seen)
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("request ID = %q, want incoming %q", seen, tt.incoming)
			}
		})
	}
}

func TestLoggerPassesThrough(t *testing.T) {
	h := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/match", "/api/match"},
		{"/api/get_image/42", "/api/get_image/{id}"},
		{"/api/get_video/L21lZGlhL2EubXA0", "/api/get_video/{id}"},
		{"/healthz", "/healthz"},
		{"/login", "/login"},
		{"/index.html", "/static"},
		{"/js/app.js", "/static"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddlewareKeepsStatus(t *testing.T) {
	h := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	for _, path := range []string{"/api/match", "/healthz"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, http.NoBody))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestCompression(t *testing.T) {
	large := strings.Repeat(`{"path":"/media/a.jpg","score":0.5},`, 100)

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		contentType    string
		body           string
		wantGzip       bool
	}{
		{"large json", "/api/match", "gzip", "application/json", large, true},
		{"small json", "/api/status", "gzip", "application/json", `{"ok":true}`, false},
		{"client without gzip", "/api/match", "", "application/json", large, false},
		{"binary type", "/api/match", "gzip", "application/octet-stream", large, false},
		{"served media", "/api/get_image/1", "gzip", "application/json", large, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				// Split writes across the buffering threshold.
				half := len(tt.body) / 2
				_, _ = w.Write([]byte(tt.body[:half]))
				_, _ = w.Write([]byte(tt.body[half:]))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			gzipped := w.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("Content-Encoding gzip = %v, want %v", gzipped, tt.wantGzip)
			}

			body := w.Body.Bytes()
			if gzipped {
				zr, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatalf("gzip.NewReader() error = %v", err)
				}
				if body, err = io.ReadAll(zr); err != nil {
					t.Fatalf("reading gzip body: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}

func TestCompressionKeepsStatusForSmallBodies(t *testing.T) {
	h := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/get_video_missing", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w.Body.String() != `{"error":"not found"}` {
		t.Errorf("body = %q", w.Body.String())
	}
}
