// Package events streams index changes to websocket subscribers of
// /api/events. The indexer publishes "indexed" and "deleted" messages.
package events
