// Package hotreload implements the mtime-polled, retried, history-recorded
// reinitialization of loaded Plugin/Adapter artifacts.
package hotreload

import (
	"container/list"
	"sync"
	"time"
)

// LRUTracker is a bounded map from artifact path to last-observed mtime,
// evicting the least-recently-touched entry once capacity is exceeded.
type LRUTracker struct {
	capacity int

	mu    sync.Mutex
	order *list.List
	elems map[string]*list.Element
}

type lruEntry struct {
	path  string
	mtime time.Time
}

// NewLRUTracker constructs a tracker bounded at the given capacity. A
// capacity <= 0 is treated as 1.
func NewLRUTracker(capacity int) *LRUTracker {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRUTracker{
		capacity: capacity,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
	}
}

// Observe records mtime as the last-observed modification time for path,
// touching it to the most-recently-used position. It returns true if the
// recorded mtime changed (or the path is new), signaling a reload should be
// triggered.
func (t *LRUTracker) Observe(path string, mtime time.Time) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.elems[path]; ok {
		entry := elem.Value.(*lruEntry)
		changed = !entry.mtime.Equal(mtime)
		entry.mtime = mtime
		t.order.MoveToFront(elem)
		return changed
	}

	entry := &lruEntry{path: path, mtime: mtime}
	elem := t.order.PushFront(entry)
	t.elems[path] = elem

	if t.order.Len() > t.capacity {
		t.evictOldest()
	}
	return true
}

func (t *LRUTracker) evictOldest() {
	oldest := t.order.Back()
	if oldest == nil {
		return
	}
	t.order.Remove(oldest)
	delete(t.elems, oldest.Value.(*lruEntry).path)
}

// Len reports how many paths are currently tracked.
func (t *LRUTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// Contains reports whether path is currently tracked.
func (t *LRUTracker) Contains(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.elems[path]
	return ok
}
