package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	exts []string
	fail map[string]bool
}

func (s *stubLoader) Extensions() []string { return s.exts }

func (s *stubLoader) Load(_ context.Context, path string) (Adapter, error) {
	name := filepath.Base(path)
	if s.fail[name] {
		return nil, assert.AnError
	}
	return &fakeAdapter{name: name, factoryType: "stub"}, nil
}

func TestCompositeLoader_DispatchesByExtension(t *testing.T) {
	c := NewCompositeLoader()
	c.Register(&stubLoader{exts: []string{".so"}})
	c.Register(&stubLoader{exts: []string{".py"}})

	assert.ElementsMatch(t, []string{".py", ".so"}, c.Extensions())

	_, err := c.Load(context.Background(), "/tmp/x.so")
	assert.NoError(t, err)

	_, err = c.Load(context.Background(), "/tmp/x.unknown")
	assert.Error(t, err)
}

func TestManager_DiscoverFiltersAndLoads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.so"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "excluded.so"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	loader := NewCompositeLoader()
	loader.Register(&stubLoader{exts: []string{".so"}})

	m := NewManager(dir, nil, []string{"excluded"}, loader, nil)
	require.NoError(t, m.Discover(context.Background()))

	assert.Equal(t, 1, m.Count())
	_, ok := m.Get("good.so")
	assert.True(t, ok)
	_, ok = m.Get("excluded.so")
	assert.False(t, ok)
}

func TestManager_DiscoverMissingDirectoryIsNotFatal(t *testing.T) {
	loader := NewCompositeLoader()
	m := NewManager("/does/not/exist", nil, nil, loader, nil)
	assert.NoError(t, m.Discover(context.Background()))
	assert.Equal(t, 0, m.Count())
}

func TestManager_LoadFailureDoesNotAbortScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.so"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.so"), []byte("x"), 0o600))

	loader := NewCompositeLoader()
	loader.Register(&stubLoader{exts: []string{".so"}, fail: map[string]bool{"bad.so": true}})

	m := NewManager(dir, nil, nil, loader, nil)
	require.NoError(t, m.Discover(context.Background()))

	assert.Equal(t, 1, m.Count())
	_, ok := m.Get("good.so")
	assert.True(t, ok)
}

func TestManager_InitializeAndStartAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.so"), []byte("x"), 0o600))

	loader := NewCompositeLoader()
	loader.Register(&stubLoader{exts: []string{".so"}})

	m := NewManager(dir, nil, nil, loader, nil)
	require.NoError(t, m.Discover(context.Background()))

	m.InitializeAndStartAll(context.Background())
	h, ok := m.Get("a.so")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, h.Status())

	m.StopAll(context.Background())
	assert.Equal(t, StatusStopped, h.Status())
}
