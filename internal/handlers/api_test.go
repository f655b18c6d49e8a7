package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"material-search/internal/search"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name  string
		start bool
		want  string
	}{
		{"idle scanner starts", true, "start scanning"},
		{"running scanner", false, "already scanning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			f.scanner.start = tt.start

			rec := httptest.NewRecorder()
			f.h.Scan(rec, httptest.NewRequest(http.MethodGet, "/api/scan", nil))

			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.want {
				t.Errorf("status = %q, want %q", body["status"], tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "")

	rec := httptest.NewRecorder()
	f.h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]any{
		"file_watch_enabled": true,
		"file_watch_running": true,
		"queue_length":       float64(3),
		"scanning":           false,
		"total_images":       float64(0),
	} {
		if body[key] != want {
			t.Errorf("%s = %v, want %v", key, body[key], want)
		}
	}
}

func TestUploadThenMatchConsumesUpload(t *testing.T) {
	f := newFixture(t, "")
	f.searcher.res = search.Result{Images: []search.ImageResult{{ID: 1, Score: 90}}}

	src := writePNG(t, f.dir, "q.png", 8, 8, color.White)
	data, _ := os.ReadFile(src)

	rec := httptest.NewRecorder()
	f.h.Upload(rec, uploadRequest(t, data))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "file uploaded successfully" {
		t.Errorf("upload body = %q", got)
	}
	cookie := sessionCookie(t, rec)

	match := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{"search_type":1,"top_n":6}`))
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		f.h.Match(rec, req)
		return rec
	}

	first := match()
	if first.Code != http.StatusOK {
		t.Fatalf("match status = %d, body %s", first.Code, first.Body)
	}
	uploaded := f.searcher.last().UploadPath
	if uploaded == "" || !strings.HasPrefix(uploaded, f.h.uploadDir) {
		t.Errorf("UploadPath = %q, want a file under %s", uploaded, f.h.uploadDir)
	}
	var results []search.ImageResult
	if err := json.NewDecoder(first.Body).Decode(&results); err != nil || len(results) != 1 {
		t.Errorf("results = %v (err %v), want one image", results, err)
	}
	if _, err := os.Stat(uploaded); !os.IsNotExist(err) {
		t.Errorf("used upload %s still exists", uploaded)
	}

	if second := match(); second.Code != http.StatusBadRequest {
		t.Errorf("second match status = %d, want 400 after the upload was used", second.Code)
	}
}

func TestUploadReplacesPrevious(t *testing.T) {
	f := newFixture(t, "")

	a, _ := os.ReadFile(writePNG(t, f.dir, "a.png", 4, 4, color.White))
	b, _ := os.ReadFile(writePNG(t, f.dir, "b.png", 4, 4, color.Black))

	rec := httptest.NewRecorder()
	f.h.Upload(rec, uploadRequest(t, a))
	cookie := sessionCookie(t, rec)
	first := f.h.sessions.Upload(cookie.Value)

	rec = httptest.NewRecorder()
	f.h.Upload(rec, uploadRequest(t, b, cookie))
	second := f.h.sessions.Upload(cookie.Value)

	if first == second {
		t.Fatalf("different files share upload path %s", first)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("previous upload %s still exists", first)
	}
	if _, err := os.Stat(second); err != nil {
		t.Errorf("new upload missing: %v", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	f := newFixture(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("nothing"))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	f.h.Upload(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMatchResponses(t *testing.T) {
	score := 87.5

	tests := []struct {
		name     string
		body     string
		res      search.Result
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "text to image list",
			body:     `{"search_type":0,"positive":"a dog"}`,
			res:      search.Result{Images: []search.ImageResult{{ID: 7, Path: "/m/dog.jpg", Score: 42}}},
			wantCode: http.StatusOK,
			wantBody: `"id":7`,
		},
		{
			name:     "text to video list",
			body:     `{"search_type":2,"positive":"a dog"}`,
			res:      search.Result{Videos: []search.VideoResult{{Path: "/m/dog.mp4", StartTime: 2, EndTime: 4}}},
			wantCode: http.StatusOK,
			wantBody: `"start_time":2`,
		},
		{
			name:     "no results is an empty list",
			body:     `{"search_type":0,"positive":"nothing"}`,
			wantCode: http.StatusOK,
			wantBody: `[]`,
		},
		{
			name:     "stored image score",
			body:     `{"search_type":5,"img_id":3}`,
			res:      search.Result{Score: &score},
			wantCode: http.StatusOK,
			wantBody: `{"score":"87.50"}`,
		},
		{
			name:     "unknown type",
			body:     `{"search_type":9}`,
			err:      fmt.Errorf("%w: 9", search.ErrUnknownSearchType),
			wantCode: http.StatusBadRequest,
			wantBody: `"error"`,
		},
		{
			name:     "internal failure",
			body:     `{"search_type":0}`,
			err:      errors.New("database is locked"),
			wantCode: http.StatusInternalServerError,
			wantBody: `database is locked`,
		},
		{
			name:     "empty body",
			body:     ``,
			wantCode: http.StatusBadRequest,
			wantBody: `empty request`,
		},
		{
			name:     "wrong parameter type",
			body:     `{"search_type":"zero"}`,
			wantCode: http.StatusBadRequest,
			wantBody: `invalid parameters`,
		},
		{
			name:     "upload search without upload",
			body:     `{"search_type":3}`,
			wantCode: http.StatusBadRequest,
			wantBody: `no file uploaded`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			f.searcher.res = tt.res
			f.searcher.err = tt.err

			rec := httptest.NewRecorder()
			f.h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body, tt.wantBody)
			}
		})
	}
}

func TestMatchAppliesDefaults(t *testing.T) {
	f := newFixture(t, "")

	rec := httptest.NewRecorder()
	f.h.Match(rec, httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{"search_type":0,"positive":"cat"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	got := f.searcher.last()
	want := search.NewRequest()
	if got.TopN != want.TopN || got.PositiveThreshold != want.PositiveThreshold || got.ImageID != want.ImageID {
		t.Errorf("request = %+v, want defaults from NewRequest", got)
	}
	if got.Positive != "cat" {
		t.Errorf("Positive = %q, want cat", got.Positive)
	}
}
