// Package handlers provides the HTTP API of the search server.
//
// It includes handlers for:
//   - Searching images and videos by text or by example image
//   - Uploading query images, kept per browser session
//   - Serving indexed images, previews, videos and video clips
//   - Starting scans and reporting index status
//   - Login sessions and the authentication middleware
//   - Health checks and version information
package handlers
