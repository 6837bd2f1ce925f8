// Package plugin implements Plugin discovery and loading: externally
// supplied units that contribute Workers, Adapters, or Aspects to a running
// Engine. Unlike Adapters, Plugins have no factory_type — construction is
// entirely the Loader's responsibility.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/loquat-fw/loquat/internal/adapter"
	"github.com/loquat-fw/loquat/internal/errutil"
	"github.com/loquat-fw/loquat/internal/hotreload"
	"github.com/loquat-fw/loquat/internal/pool"
	"github.com/loquat-fw/loquat/internal/worker"
)

// Registrar is the capability a Plugin receives at Init time to contribute
// Workers into the Stream's extensible Pools and Adapters into the
// AdapterFactoryRegistry. It is a narrow interface so Plugins cannot reach
// framework-internal state.
type Registrar interface {
	RegisterWorker(kind pool.Kind, w worker.Worker, priority int) error
	RegisterAdapterFactory(factoryType string, f adapter.Factory)
}

// Plugin is the contract an externally loaded unit implements.
type Plugin interface {
	Name() string
	Init(ctx context.Context, reg Registrar) error
	Shutdown(ctx context.Context) error
}

// Reloadable is implemented by a Plugin that supports in-place reload
// rather than the default shutdown-then-reinitialize cycle.
type Reloadable interface {
	Reload(ctx context.Context) error
}

// Status is a Plugin's coarse lifecycle state.
type Status int

const (
	StatusDiscovered Status = iota
	StatusLoaded
	StatusFailed
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusDiscovered:
		return "Discovered"
	case StatusLoaded:
		return "Loaded"
	case StatusFailed:
		return "Failed"
	case StatusShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Handle wraps a loaded Plugin instance and its lifecycle status.
type Handle struct {
	mu     sync.Mutex
	plugin Plugin
	status Status
	err    error
	path   string
	reg    Registrar
}

// Path reports the artifact file this Handle's Plugin was loaded from,
// satisfying hotreload.Target.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Reload invokes the wrapped Plugin's Reload if it implements Reloadable;
// otherwise it falls back to Shutdown followed by Init against the same
// Registrar, since most Plugins only know how to (re)register from scratch.
func (h *Handle) Reload(ctx context.Context) error {
	h.mu.Lock()
	p := h.plugin
	reg := h.reg
	h.mu.Unlock()

	if r, ok := p.(Reloadable); ok {
		return r.Reload(ctx)
	}
	if err := p.Shutdown(ctx); err != nil {
		return err
	}
	return p.Init(ctx, reg)
}

// Snapshot is a read-only copy of a Handle's identity and status.
type Snapshot struct {
	Name   string
	Status Status
	Error  string
}

// Snapshot returns a cheap, read-only copy of this Handle's state.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Snapshot{Name: h.plugin.Name(), Status: h.status}
	if h.err != nil {
		s.Error = h.err.Error()
	}
	return s
}

// Loader constructs a Plugin from an artifact on disk, dispatched by file
// extension through a CompositeLoader, mirroring the adapter package's
// discovery shape.
type Loader interface {
	Extensions() []string
	Load(ctx context.Context, path string) (Plugin, error)
}

// CompositeLoader dispatches Load calls to a registered Loader by
// extension.
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
func (c *CompositeLoader) Load(ctx context.Context, path string) (Plugin, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c.mu.RLock()
	l, ok := c.byExt[ext]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin: no loader registered for extension %q", ext)
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

// Manager discovers plugin artifacts in a directory, loads them, and
// initializes them against a Registrar.
type Manager struct {
	directory string
	whitelist []string
	blacklist []string
	loader    *CompositeLoader
	reg       Registrar
	logger    *slog.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewManager constructs a Manager scanning directory, filtered by an
// optional whitelist/blacklist of artifact base names.
func NewManager(directory string, whitelist, blacklist []string, loader *CompositeLoader, reg Registrar, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		directory: directory,
		whitelist: whitelist,
		blacklist: blacklist,
		loader:    loader,
		reg:       reg,
		logger:    logger.With("component", "PluginManager"),
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

// Discover scans the configured directory, loads every allowed artifact
// with a registered loader extension, and initializes it against the
// Manager's Registrar. A failure on one artifact is logged and does not
// abort the scan of others.
func (m *Manager) Discover(ctx context.Context) error {
	entries, err := os.ReadDir(m.directory)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn("plugin directory missing, skipping discovery", "directory", m.directory)
			return nil
		}
		return fmt.Errorf("reading plugin directory: %w", err)
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
			m.logger.Debug("plugin excluded by whitelist/blacklist", "name", name)
			continue
		}

		path := filepath.Join(m.directory, entry.Name())
		p, err := m.loader.Load(ctx, path)
		if err != nil {
			errutil.LogAndContinue(m.logger, "failed to load plugin", err, "path", path)
			continue
		}

		h := &Handle{plugin: p, status: StatusDiscovered, path: path, reg: m.reg}
		if err := p.Init(ctx, m.reg); err != nil {
			h.status = StatusFailed
			h.err = err
			errutil.LogAndContinue(m.logger, "plugin init failed", err, "name", p.Name())
		} else {
			h.status = StatusLoaded
		}

		m.mu.Lock()
		m.handles[p.Name()] = h
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

// List returns a snapshot of every registered Handle.
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

// Count reports how many plugins are currently registered.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// Targets returns every loaded Handle as a hotreload.Target, for handing
// to a hotreload.Watcher.
func (m *Manager) Targets() []hotreload.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hotreload.Target, 0, len(m.handles))
	for _, h := range m.handles {
		if h.Snapshot().Status == StatusLoaded {
			out = append(out, h)
		}
	}
	return out
}

// ShutdownAll invokes Shutdown on every loaded plugin, logging (not
// aborting) per-plugin failures.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.RLock()
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	for _, h := range handles {
		h.mu.Lock()
		p := h.plugin
		status := h.status
		h.mu.Unlock()
		if status != StatusLoaded {
			continue
		}
		if err := p.Shutdown(ctx); err != nil {
			errutil.LogAndContinue(m.logger, "plugin shutdown failed", err, "name", p.Name())
			continue
		}
		h.mu.Lock()
		h.status = StatusShutdown
		h.mu.Unlock()
	}
}
