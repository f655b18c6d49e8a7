// Package memory keeps the Go heap inside a container's memory limit.
//
// CLIP inference and video decoding allocate outside the Go heap (ONNX
// Runtime, libvips and FFmpeg all run through cgo), so GOMEMLIMIT is set to
// a fraction of the container limit rather than the whole of it:
//
//   - GOMEMLIMIT: standard Go variable; when set it wins and is only reported.
//   - MEMORY_LIMIT: container limit in bytes, usually from the Kubernetes
//     Downward API (resourceFieldRef limits.memory).
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap, 0 < r <= 1.
//     Defaults to 0.75.
//
// A [Monitor] samples heap usage against that limit. Scanner workers call
// [Monitor.Wait] before each file so a full rescan stalls instead of pushing
// the process into the OOM killer while the embedding model is loaded.
package memory
