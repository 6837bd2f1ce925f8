// Package channel implements the ChannelManager: lazy creation and idle
// eviction of per-(kind,id) Channel state, behind a reader-preferring lock
// so lookups never contend with each other.
package channel

import (
	"errors"
	"sync"
	"time"

	"github.com/loquat-fw/loquat/internal/model"
)

// ErrUnknownChannel is returned by Get when auto-creation is disabled and no
// Channel exists for the requested key.
var ErrUnknownChannel = errors.New("channel: unknown channel")

// Manager owns the live set of Channels, keyed by (kind,id).
type Manager struct {
	autoCreate bool

	mu    sync.RWMutex
	byKey map[model.ChannelKey]*model.Channel
}

// NewManager constructs an empty Manager. autoCreate controls whether Get
// implicitly creates a missing Channel (mirroring GetOrCreate) or fails with
// ErrUnknownChannel.
func NewManager(autoCreate bool) *Manager {
	return &Manager{
		autoCreate: autoCreate,
		byKey:      make(map[model.ChannelKey]*model.Channel),
	}
}

// Get looks up the Channel for key. If auto-creation is enabled, this
// behaves exactly like GetOrCreate; otherwise a missing Channel fails with
// ErrUnknownChannel.
func (m *Manager) Get(key model.ChannelKey) (*model.Channel, error) {
	if m.autoCreate {
		return m.GetOrCreate(key), nil
	}

	m.mu.RLock()
	c, ok := m.byKey[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownChannel
	}
	c.Touch()
	return c, nil
}

// GetOrCreate returns the existing Channel for key, or atomically creates
// one if none exists. Concurrent GetOrCreate calls for the same key race
// only on the write lock; exactly one Channel is ever visible for a key.
func (m *Manager) GetOrCreate(key model.ChannelKey) *model.Channel {
	m.mu.RLock()
	c, ok := m.byKey[key]
	m.mu.RUnlock()
	if ok {
		c.Touch()
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.byKey[key]; ok {
		c.Touch()
		return c
	}
	c = model.NewChannel(key)
	m.byKey[key] = c
	return c
}

// Count reports how many Channels currently exist.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

// EvictIdle drops every Channel whose last-access time is older than ttl,
// as observed at the moment EvictIdle took its snapshot. Channels touched
// after the snapshot (even if the sweep is still running) are preserved:
// each candidate's LastAccess is re-read under the write lock immediately
// before deleting it, so a Touch that lands between snapshot and delete
// wins over the stale decision.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	now := time.Now()

	m.mu.RLock()
	candidates := make([]*model.Channel, 0, len(m.byKey))
	for _, c := range m.byKey {
		if now.Sub(c.LastAccess()) >= ttl {
			candidates = append(candidates, c)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	evicted := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candidates {
		if now.Sub(c.LastAccess()) < ttl {
			continue // touched since the snapshot was taken; skip it
		}
		if existing, ok := m.byKey[c.Key]; ok && existing == c {
			delete(m.byKey, c.Key)
			evicted++
		}
	}
	return evicted
}
