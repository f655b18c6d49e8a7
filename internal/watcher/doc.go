// Package watcher feeds file-system changes under the asset roots into the
// debounced indexing queue.
//
// fsnotify is not recursive, so every directory below each root is
// registered at start and new directories are added as they appear. A
// directory moved into a root produces a single Create, so its existing
// media files are enqueued by walking it. Records for directories moved
// out of a root are reconciled by the next full scan.
package watcher
