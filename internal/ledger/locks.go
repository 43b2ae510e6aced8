package ledger

import "sync"

// lockTable serializes appends per context id. Entries are reference
// counted and removed once the last holder releases, so the table stays
// proportional to the number of contexts with an append in flight.
//
// This is an in-process lock: it is only correct while a single process
// owns the database file, which SQLite enforces anyway.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the exclusive lock for key, blocking until it is free,
// and returns the release function.
func (t *lockTable) lock(key string) (unlock func()) {
	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[string]*lockEntry)
	}
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}
