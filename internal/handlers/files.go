package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"material-search/internal/assets"
	"material-search/internal/filesystem"
	"material-search/internal/logging"
	"material-search/internal/mediatypes"
	"material-search/internal/search"
)

// GetImage serves an indexed image by id. With ?thumbnail=1 it serves a
// JPEG preview instead, except for GIFs which keep their animation.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid image id", http.StatusBadRequest)
		return
	}

	path, err := h.store.ImagePathByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		logging.Error("Failed to look up image %d: %v", id, err)
		http.Error(w, "Failed to look up image", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("thumbnail") == "1" && h.previews != nil && !strings.EqualFold(filepath.Ext(path), ".gif") {
		data, err := h.previews.Preview(r.Context(), path)
		if err == nil {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Cache-Control", "private, max-age=3600")
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			_, _ = w.Write(data)
			return
		}
		logging.Warn("Preview failed for %s, serving original: %v", path, err)
	}

	h.serveFile(w, r, path, "")
}

// GetVideo serves an indexed video. Paths not in the index are rejected so
// the endpoint cannot be used to read arbitrary files.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	path, ok := h.indexedVideo(w, r)
	if !ok {
		return
	}
	h.serveFile(w, r, path, "")
}

// DownloadVideoClip cuts the requested segment, padded on both sides, and
// serves it as an attachment.
func (h *Handlers) DownloadVideoClip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	start, err1 := strconv.ParseInt(vars["start"], 10, 64)
	end, err2 := strconv.ParseInt(vars["end"], 10, 64)
	if err1 != nil || err2 != nil || start < 0 || end < start {
		http.Error(w, "Invalid clip range", http.StatusBadRequest)
		return
	}

	path, ok := h.indexedVideo(w, r)
	if !ok {
		return
	}
	if h.clips == nil {
		http.Error(w, "Clipping is not available", http.StatusServiceUnavailable)
		return
	}

	clip, err := h.clips.Clip(r.Context(), path, start, end)
	if err != nil {
		logging.Error("Failed to clip %s [%d-%d]: %v", path, start, end, err)
		http.Error(w, "Failed to create clip", http.StatusInternalServerError)
		return
	}
	h.serveFile(w, r, clip, filepath.Base(clip))
}

func (h *Handlers) indexedVideo(w http.ResponseWriter, r *http.Request) (string, bool) {
	path, err := search.DecodeVideoPath(mux.Vars(r)["path"])
	if err != nil {
		http.Error(w, "Invalid video path", http.StatusBadRequest)
		return "", false
	}
	exists, err := h.store.ExistsVideo(r.Context(), path)
	if err != nil {
		logging.Error("Failed to look up video %s: %v", path, err)
		http.Error(w, "Failed to look up video", http.StatusInternalServerError)
		return "", false
	}
	if !exists {
		http.NotFound(w, r)
		return "", false
	}
	return path, true
}

// serveFile streams path with range support. A non-empty attachment name
// makes the browser download the file.
func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, path, attachment string) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Warn("Cannot open %s: %v", path, err)
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if ct := mediatypes.GetMimeType(filepath.Ext(path)); ct != "application/octet-stream" {
		w.Header().Set("Content-Type", ct)
	}
	if attachment != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": attachment}))
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Events upgrades to the index change stream.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.Error(w, fmt.Sprintf("%s is not available", r.URL.Path), http.StatusNotFound)
		return
	}
	h.events.ServeHTTP(w, r)
}
