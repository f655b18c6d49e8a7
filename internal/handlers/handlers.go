package handlers

import (
	"context"
	"net/http"
	"time"

	"material-search/internal/assets"
	"material-search/internal/indexer"
	"material-search/internal/media"
	"material-search/internal/search"
	"material-search/internal/startup"
)

// Searcher answers /api/match requests.
type Searcher interface {
	Match(ctx context.Context, req search.Request) (search.Result, error)
}

// ScanTrigger starts a full scan in the background and reports false when
// one is already running.
type ScanTrigger interface {
	TriggerScan() bool
}

// WatchState reports whether the file watcher is delivering events.
type WatchState interface {
	Running() bool
}

// QueueLength reports how many paths wait in the event queue.
type QueueLength interface {
	Len() int
}

// Dependencies are the services the handlers call into. Watcher, Queue and
// Events may be nil.
type Dependencies struct {
	Store    assets.Store
	Search   Searcher
	Scanner  ScanTrigger
	Status   *indexer.Status
	Watcher  WatchState
	Queue    QueueLength
	Events   http.Handler
	Previews *media.Previewer
	Clips    *media.ClipCache
}

type Handlers struct {
	store    assets.Store
	search   Searcher
	scanner  ScanTrigger
	status   *indexer.Status
	watcher  WatchState
	queue    QueueLength
	events   http.Handler
	previews *media.Previewer
	clips    *media.ClipCache
	sessions *SessionStore

	username     string
	passwordHash []byte
	uploadDir    string
	fileWatch    bool
	startTime    time.Time
}

func New(config *startup.Config, deps Dependencies) *Handlers {
	return &Handlers{
		store:        deps.Store,
		search:       deps.Search,
		scanner:      deps.Scanner,
		status:       deps.Status,
		watcher:      deps.Watcher,
		queue:        deps.Queue,
		events:       deps.Events,
		previews:     deps.Previews,
		clips:        deps.Clips,
		sessions:     NewSessionStore(DefaultSessionDuration),
		username:     config.Username,
		passwordHash: []byte(config.PasswordHash),
		uploadDir:    config.UploadDir(),
		fileWatch:    config.FileWatch,
		startTime:    time.Now(),
	}
}

// Sessions exposes the session store so the caller can schedule Cleanup.
func (h *Handlers) Sessions() *SessionStore {
	return h.sessions
}

func (h *Handlers) authEnabled() bool {
	return len(h.passwordHash) > 0
}
