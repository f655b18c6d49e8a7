package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"material-search/internal/filesystem"
	"material-search/internal/indexer"
	"material-search/internal/logging"
	"material-search/internal/search"
)

// MaxUploadSize bounds query image uploads.
const MaxUploadSize = 64 << 20

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	indexer.Snapshot
	FileWatchEnabled bool `json:"file_watch_enabled"`
	FileWatchRunning bool `json:"file_watch_running"`
	QueueLength      int  `json:"queue_length"`
}

// Scan starts a full scan unless one is running.
func (h *Handlers) Scan(w http.ResponseWriter, _ *http.Request) {
	if h.scanner.TriggerScan() {
		logging.Info("Scan requested through the API")
		writeJSONStatus(w, "start scanning")
		return
	}
	writeJSONStatus(w, "already scanning")
}

// Status reports library counters, scan progress and watcher state.
func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Snapshot:         h.status.Snapshot(),
		FileWatchEnabled: h.fileWatch,
	}
	if h.watcher != nil {
		resp.FileWatchRunning = h.watcher.Running()
	}
	if h.queue != nil {
		resp.QueueLength = h.queue.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}

// Upload stores the query image for the next upload-based search. The file
// is named by its content hash and replaces the session's previous upload.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ensureSession(w, r)
	if !ok {
		writeJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "missing file", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	path, err := h.saveUpload(file)
	if err != nil {
		logging.Error("Failed to save upload: %v", err)
		writeJSONError(w, "failed to save upload", http.StatusInternalServerError)
		return
	}

	previous, _ := h.sessions.SetUpload(sess.Token, path)
	if previous != path {
		removeUpload(previous)
	}
	logging.Debug("Stored upload %s", path)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "file uploaded successfully")
}

// saveUpload copies r into the upload directory while hashing it, then
// renames the file to the hash.
func (h *Handlers) saveUpload(r io.Reader) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	tmp, err := os.CreateTemp(h.uploadDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	digest := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(tmp, digest), r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	path := filepath.Join(h.uploadDir, strconv.FormatUint(digest.Sum64(), 16))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

// removeUpload deletes a stored upload, ignoring files already gone.
func removeUpload(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("Failed to remove upload %s: %v", path, err)
	}
}

// Match runs a search. Image and video searches return a JSON list of
// results, the text-image score returns {"score": "NN.NN"}.
func (h *Handlers) Match(w http.ResponseWriter, r *http.Request) {
	req := search.NewRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSONError(w, "empty request", http.StatusBadRequest)
			return
		}
		writeJSONError(w, fmt.Sprintf("invalid parameters: %v", err), http.StatusBadRequest)
		return
	}

	if req.Type.NeedsUpload() {
		token := ""
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			token = cookie.Value
		}
		path := h.sessions.Upload(token)
		if path == "" || !filesystem.Exists(path) {
			writeJSONError(w, "no file uploaded", http.StatusBadRequest)
			return
		}
		h.sessions.TakeUpload(token)
		defer removeUpload(path)
		req.UploadPath = path
	}

	logging.Debug("Search request: type=%s top_n=%d path=%q", req.Type, req.TopN, req.Path)
	res, err := h.search.Match(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrUnknownSearchType), errors.Is(err, search.ErrNoQuery):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logging.Error("Search failed: %v", err)
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case res.Score != nil:
		writeJSON(w, map[string]string{"score": fmt.Sprintf("%.2f", *res.Score)})
	case res.Videos != nil:
		writeJSON(w, res.Videos)
	case res.Images != nil:
		writeJSON(w, res.Images)
	default:
		writeJSON(w, []struct{}{})
	}
}
