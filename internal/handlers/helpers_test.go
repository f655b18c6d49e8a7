package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"material-search/internal/assets"
	"material-search/internal/indexer"
	"material-search/internal/media"
	"material-search/internal/search"
	"material-search/internal/startup"
)

// =============================================================================
// Mocks
// =============================================================================

// mockStore implements the lookups the handlers use. Calling any other
// assets.Store method panics on the nil embedded interface.
type mockStore struct {
	assets.Store
	images   map[int64]string
	videos   map[string]bool
	countErr error
}

func (m *mockStore) ImagePathByID(_ context.Context, id int64) (string, error) {
	if p, ok := m.images[id]; ok {
		return p, nil
	}
	return "", assets.ErrNotFound
}

func (m *mockStore) ExistsVideo(_ context.Context, path string) (bool, error) {
	return m.videos[path], nil
}

func (m *mockStore) ImageCount(_ context.Context) (int64, error) {
	return int64(len(m.images)), m.countErr
}

type mockSearcher struct {
	mu   sync.Mutex
	reqs []search.Request
	res  search.Result
	err  error
}

func (m *mockSearcher) Match(_ context.Context, req search.Request) (search.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	return m.res, m.err
}

func (m *mockSearcher) last() search.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[len(m.reqs)-1]
}

type mockScanner struct{ start bool }

func (m *mockScanner) TriggerScan() bool { return m.start }

type mockWatcher struct{ running bool }

func (m *mockWatcher) Running() bool { return m.running }

type mockQueue struct{ n int }

func (m *mockQueue) Len() int { return m.n }

// =============================================================================
// Fixtures
// =============================================================================

type fixture struct {
	h        *Handlers
	store    *mockStore
	searcher *mockSearcher
	scanner  *mockScanner
	dir      string
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := &startup.Config{
		Username:  "admin",
		TempPath:  filepath.Join(dir, "tmp"),
		FileWatch: true,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		cfg.PasswordHash = string(hash)
	}

	clips, err := media.NewClipCache(filepath.Join(dir, "clips"), media.NewFFmpeg(), 1)
	if err != nil {
		t.Fatalf("NewClipCache: %v", err)
	}

	f := &fixture{
		store:    &mockStore{images: map[int64]string{}, videos: map[string]bool{}},
		searcher: &mockSearcher{},
		scanner:  &mockScanner{start: true},
		dir:      dir,
	}
	f.h = New(cfg, Dependencies{
		Store:    f.store,
		Search:   f.searcher,
		Scanner:  f.scanner,
		Status:   &indexer.Status{},
		Watcher:  &mockWatcher{running: true},
		Queue:    &mockQueue{n: 3},
		Previews: media.NewPreviewer(filepath.Join(dir, "preview")),
		Clips:    clips,
	})
	return f
}

// writePNG writes a solid image and returns its path.
func writePNG(t *testing.T, dir, name string, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// uploadRequest builds a multipart upload of data.
func uploadRequest(t *testing.T, data []byte, cookies ...*http.Cookie) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "query.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookieName)
	return nil
}
