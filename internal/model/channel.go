package model

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Channel is per-(kind,id) state owned by the ChannelManager. It carries an
// opaque scratch map that Workers may use to stash per-channel state across
// Packages without the framework knowing its shape.
type Channel struct {
	ID         ulid.ULID
	Key        ChannelKey
	CreatedAt  time.Time
	lastAccess atomic.Int64 // UnixNano, written/read lock-free

	mu      sync.RWMutex
	scratch map[string]any
}

// NewChannel constructs a Channel for key, stamped with the current time as
// both creation and last-access time, and assigned a fresh sortable ULID
// identity distinct from its (kind,id) routing Key.
func NewChannel(key ChannelKey) *Channel {
	now := time.Now()
	c := &Channel{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader),
		Key:       key,
		CreatedAt: now,
		scratch:   make(map[string]any),
	}
	c.lastAccess.Store(c.CreatedAt.UnixNano())
	return c
}

// Touch records that the channel was just accessed.
func (c *Channel) Touch() {
	c.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess returns the last time Touch was called, or the creation time if
// it never was.
func (c *Channel) LastAccess() time.Time {
	return time.Unix(0, c.lastAccess.Load())
}

// Get reads a scratch value by key.
func (c *Channel) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.scratch[key]
	return v, ok
}

// Set writes a scratch value by key.
func (c *Channel) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scratch[key] = value
}

// Delete removes a scratch value by key.
func (c *Channel) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scratch, key)
}
