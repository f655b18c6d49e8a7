// Package middleware provides the HTTP middleware chain: request IDs, W3C
// access logging, Prometheus request metrics and gzip compression. Every
// wrapper keeps http.Hijacker working for the websocket event stream.
package middleware
