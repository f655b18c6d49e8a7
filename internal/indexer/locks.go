package indexer

import "sync"

// PathLocks hands out one mutex per path so that the incremental indexer and
// the scanner never extract or delete the same file at the same time.
// Entries are reference counted and removed when the last holder unlocks.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewPathLocks creates an empty lock table.
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*pathLock)}
}

// Lock blocks until path is free and returns the function that releases it.
func (l *PathLocks) Lock(path string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[path]
	if !ok {
		pl = &pathLock{}
		l.locks[path] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			pl.mu.Unlock()

			l.mu.Lock()
			pl.refs--
			if pl.refs == 0 {
				delete(l.locks, path)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of paths currently locked or waited on.
func (l *PathLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
