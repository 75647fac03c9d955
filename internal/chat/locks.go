package chat

import "sync"

// inflight tracks which chats have a mutation in progress. A second mutation
// of the same chat is rejected rather than queued.
type inflight struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{busy: make(map[string]struct{})}
}

// tryAcquire marks key busy and reports whether it was free.
func (f *inflight) tryAcquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.busy[key]; ok {
		return false
	}
	f.busy[key] = struct{}{}
	return true
}

func (f *inflight) release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.busy, key)
}
