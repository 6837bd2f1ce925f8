package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquat-fw/loquat/internal/model"
)

func key(id string) model.ChannelKey {
	return model.ChannelKey{Kind: model.KindGroup, ID: id}
}

func TestManager_GetOrCreate_ConcurrentSingleInstance(t *testing.T) {
	m := NewManager(true)
	k := key("room1")

	const n = 50
	results := make([]*model.Channel, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate(k)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, m.Count())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestManager_GetFailsWithoutAutoCreate(t *testing.T) {
	m := NewManager(false)
	_, err := m.Get(key("missing"))
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestManager_GetSucceedsAfterCreate(t *testing.T) {
	m := NewManager(false)
	k := key("room1")
	created := m.GetOrCreate(k)

	got, err := m.Get(k)
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestManager_EvictIdle_SkipsRecentlyTouched(t *testing.T) {
	m := NewManager(true)
	stale := m.GetOrCreate(key("stale"))
	fresh := m.GetOrCreate(key("fresh"))

	// Let both channels age past the TTL, then touch only the fresh one.
	stale.Touch()
	time.Sleep(2 * time.Millisecond)
	fresh.Touch()

	evicted := m.EvictIdle(time.Millisecond)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, m.Count())

	_, err := m.Get(fresh.Key)
	require.NoError(t, err)
}

func TestManager_EvictIdle_NothingToEvict(t *testing.T) {
	m := NewManager(true)
	m.GetOrCreate(key("a"))
	assert.Equal(t, 0, m.EvictIdle(time.Hour))
}
