package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, that is compressed.
	MinSize int
	// Level is the gzip level. Pooled writers are created at this level.
	Level int
	// CompressibleTypes lists media types worth compressing.
	CompressibleTypes []string
	// SkipPaths are path prefixes served untouched, such as range-served
	// media.
	SkipPaths []string
}

// DefaultCompressionConfig compresses JSON and text over 1 KiB. Search
// results are the main beneficiary.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"application/json",
			"application/javascript",
			"text/html",
			"text/css",
			"text/plain",
			"text/javascript",
			"image/svg+xml",
		},
		SkipPaths: []string{"/api/get_image/", "/api/get_video/", "/api/download_video_clip/", "/api/events"},
	}
}

// gzipResponseWriter buffers up to MinSize bytes, then decides once whether
// the response is compressed.
type gzipResponseWriter struct {
	http.ResponseWriter
	config  CompressionConfig
	pool    *sync.Pool
	gz      *gzip.Writer
	buffer  []byte
	status  int
	decided bool
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if !g.decided {
		g.status = statusCode
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.gz != nil {
			return g.gz.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	if g.Header().Get("Content-Encoding") != "" {
		return false
	}
	mediaType, _, _ := strings.Cut(g.Header().Get("Content-Type"), ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide writes the status line and flushes the buffer, through gzip when
// the body is large enough and of a compressible type.
func (g *gzipResponseWriter) decide() error {
	g.decided = true
	buffered := g.buffer
	g.buffer = nil

	if len(buffered) >= g.config.MinSize && g.compressible() {
		g.Header().Del("Content-Length")
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Add("Vary", "Accept-Encoding")
		g.gz = g.pool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
		g.ResponseWriter.WriteHeader(g.status)
		_, err := g.gz.Write(buffered)
		return err
	}

	g.ResponseWriter.WriteHeader(g.status)
	_, err := g.ResponseWriter.Write(buffered)
	return err
}

// Close flushes anything buffered and returns the gzip writer to the pool.
func (g *gzipResponseWriter) Close() error {
	var err error
	if !g.decided {
		err = g.decide()
	}
	if g.gz != nil {
		if closeErr := g.gz.Close(); err == nil {
			err = closeErr
		}
		g.pool.Put(g.gz)
		g.gz = nil
	}
	return err
}

func (g *gzipResponseWriter) Flush() {
	if !g.decided {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compression returns a middleware that gzips responses for clients that
// accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := &sync.Pool{
		New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, config.Level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				r.Header.Get("Upgrade") != "" ||
				r.Method == http.MethodHead ||
				skipCompression(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{
				ResponseWriter: w,
				config:         config,
				pool:           pool,
				status:         http.StatusOK,
				buffer:         make([]byte, 0, config.MinSize+1),
			}
			defer func() { _ = gzw.Close() }()

			next.ServeHTTP(gzw, r)
		})
	}
}

func skipCompression(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
