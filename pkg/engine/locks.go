package engine

import "sync"

// scheduleLocks hands out one mutex per schedule ID. Entries are reference
// counted and dropped once nobody holds or waits for them, so the map only
// grows with the number of schedules being worked on concurrently.
type scheduleLocks struct {
	mu    sync.Mutex
	locks map[string]*scheduleLock
}

type scheduleLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the caller owns the schedule and returns the release func.
func (l *scheduleLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*scheduleLock)
	}
	entry, ok := l.locks[id]
	if !ok {
		entry = &scheduleLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// size returns the number of live entries.
func (l *scheduleLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
