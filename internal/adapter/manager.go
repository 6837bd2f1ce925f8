package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/loquat-fw/loquat/internal/errutil"
	"github.com/loquat-fw/loquat/internal/hotreload"
)

// Loader constructs an Adapter from an artifact on disk. Composite
// dispatch by file extension lets native (.so/.dylib/.dll) and scripted
// (.py/.js/.mjs/.ts) artifacts share one discovery pass.
type Loader interface {
	// Extensions lists the file extensions (including the leading dot)
	// this Loader handles.
	Extensions() []string
	// Load constructs the Adapter described by the artifact at path.
	Load(ctx context.Context, path string) (Adapter, error)
}

// CompositeLoader dispatches Load calls to a registered Loader by file
// extension. Failure to load one artifact never aborts the scan of others.
type CompositeLoader struct {
	mu    sync.RWMutex
	byExt map[string]Loader
}

// NewCompositeLoader constructs an empty CompositeLoader.
func NewCompositeLoader() *CompositeLoader {
	return &CompositeLoader{byExt: make(map[string]Loader)}
}

// Register installs l for every extension it declares.
func (c *CompositeLoader) Register(l Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ext := range l.Extensions() {
		c.byExt[strings.ToLower(ext)] = l
	}
}

// Load dispatches to the Loader registered for path's extension.
func (c *CompositeLoader) Load(ctx context.Context, path string) (Adapter, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c.mu.RLock()
	l, ok := c.byExt[ext]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapter: no loader registered for extension %q", ext)
	}
	return l.Load(ctx, path)
}

// Extensions returns every extension with a registered Loader.
func (c *CompositeLoader) Extensions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.byExt))
	for ext := range c.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Manager discovers adapter artifacts in a directory, loads them through a
// CompositeLoader, and drives their lifecycle. A *Manager is shared by
// pointer; List returns a fresh slice of Snapshots, never duplicating
// adapter state.
type Manager struct {
	directory string
	whitelist []string
	blacklist []string
	loader    *CompositeLoader
	logger    *slog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewManager constructs a Manager scanning directory, filtered by an
// optional whitelist/blacklist of artifact base names (without extension).
// An empty whitelist means "all names allowed".
func NewManager(directory string, whitelist, blacklist []string, loader *CompositeLoader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		directory: directory,
		whitelist: whitelist,
		blacklist: blacklist,
		loader:    loader,
		logger:    logger.With("component", "AdapterManager"),
		handles:   make(map[string]*Handle),
	}
}

func (m *Manager) allowed(name string) bool {
	for _, b := range m.blacklist {
		if b == name {
			return false
		}
	}
	if len(m.whitelist) == 0 {
		return true
	}
	for _, w := range m.whitelist {
		if w == name {
			return true
		}
	}
	return false
}

// Discover scans the configured directory for artifacts with a registered
// loader extension, allowed by the whitelist/blacklist, and loads each one.
// A load failure for one artifact is logged and does not abort the scan.
func (m *Manager) Discover(ctx context.Context) error {
	entries, err := os.ReadDir(m.directory)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn("artifact directory missing, skipping discovery", "directory", m.directory)
			return nil
		}
		return fmt.Errorf("reading artifact directory: %w", err)
	}

	supported := make(map[string]bool)
	for _, ext := range m.loader.Extensions() {
		supported[ext] = true
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !supported[ext] {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if !m.allowed(name) {
			m.logger.Debug("artifact excluded by whitelist/blacklist", "name", name)
			continue
		}

		path := filepath.Join(m.directory, entry.Name())
		a, err := m.loader.Load(ctx, path)
		if err != nil {
			errutil.LogAndContinue(m.logger, "failed to load artifact", err, "path", path)
			continue
		}

		h := NewHandle(a, path)
		m.mu.Lock()
		m.handles[a.Name()] = h
		m.mu.Unlock()
	}
	return nil
}

// Get returns the Handle registered under name, if any.
func (m *Manager) Get(name string) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[name]
	return h, ok
}

// List returns a snapshot of every registered Handle's identity and status.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count reports how many adapters are currently registered.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// Targets returns every registered Handle as a hotreload.Target, for
// handing to a hotreload.Watcher.
func (m *Manager) Targets() []hotreload.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hotreload.Target, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	return out
}

// InitializeAndStartAll drives every registered Handle through
// Initialize -> Start, logging (not aborting) per-adapter failures.
func (m *Manager) InitializeAndStartAll(ctx context.Context) {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	for _, h := range handles {
		if err := h.Initialize(ctx); err != nil {
			errutil.LogAndContinue(m.logger, "adapter initialize failed", err, "name", h.Name())
			continue
		}
		if err := h.Start(ctx); err != nil {
			errutil.LogAndContinue(m.logger, "adapter start failed", err, "name", h.Name())
		}
	}
}

// StopAll drives every registered Handle's Stop, logging (not aborting)
// per-adapter failures.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	for _, h := range handles {
		if h.Status() != StatusRunning && h.Status() != StatusPaused {
			continue
		}
		if err := h.Stop(ctx); err != nil {
			errutil.LogAndContinue(m.logger, "adapter stop failed", err, "name", h.Name())
		}
	}
}
