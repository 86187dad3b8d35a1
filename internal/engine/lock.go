package engine

import "sync"

// occurrenceLocks serializes capacity decisions per (activity, date) so two
// concurrent enrollments cannot both read a free slot. The SQLite pool is
// already a single connection; the lock keeps the read-decide-write span
// atomic above it.
type occurrenceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOccurrenceLocks() *occurrenceLocks {
	return &occurrenceLocks{locks: map[string]*sync.Mutex{}}
}

func (l *occurrenceLocks) lock(activityID, date string) func() {
	key := activityID + "|" + date
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
