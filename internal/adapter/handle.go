package adapter

import (
	"context"
	"fmt"
	"sync"
)

// Handle wraps a live Adapter instance with its lifecycle Status, enforcing
// legal transitions and serializing lifecycle calls. Callers that only read,
// like the HTTP surface, take a Snapshot rather than sharing the lock.
type Handle struct {
	mu      sync.Mutex
	adapter Adapter
	status  Status
	path    string
}

// NewHandle wraps adapter in an Uninitialized Handle. path is the artifact
// file the Adapter was loaded from, used by the hot-reload watcher to poll
// for modification.
func NewHandle(a Adapter, path string) *Handle {
	return &Handle{adapter: a, status: StatusUninitialized, path: path}
}

// Path reports the artifact file this Handle's Adapter was loaded from,
// satisfying hotreload.Target.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Name reports the wrapped Adapter's name.
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.adapter.Name()
}

// FactoryType reports the wrapped Adapter's factory_type.
func (h *Handle) FactoryType() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.adapter.FactoryType()
}

// Status reports the current lifecycle status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// transition validates and applies a status move under the lock, returning
// ErrIllegalTransition rather than applying an illegal move.
func (h *Handle) transition(to Status) error {
	if !CanTransition(h.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, h.status, to)
	}
	h.status = to
	return nil
}

// Initialize drives Uninitialized -> Initializing -> Ready. A failure pins
// status to Error and excludes the adapter from dispatch.
func (h *Handle) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.transition(StatusInitializing); err != nil {
		return err
	}
	if err := h.adapter.Initialize(ctx); err != nil {
		h.status = StatusError
		return fmt.Errorf("initialize: %w", err)
	}
	return h.transition(StatusReady)
}

// Start drives Ready -> Running.
func (h *Handle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.transition(StatusRunning); err != nil {
		return err
	}
	if err := h.adapter.Start(ctx); err != nil {
		h.status = StatusError
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// Stop drives Running or Paused -> Stopped.
func (h *Handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.transition(StatusStopped); err != nil {
		return err
	}
	if err := h.adapter.Stop(ctx); err != nil {
		h.status = StatusError
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Pause drives Running -> Paused.
func (h *Handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transition(StatusPaused)
}

// Resume drives Paused -> Running.
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transition(StatusRunning)
}

// Reload invokes the wrapped Adapter's Reload if it implements Reloadable;
// otherwise it is a no-op success, since not every Adapter supports partial
// reload.
func (h *Handle) Reload(ctx context.Context) error {
	h.mu.Lock()
	a := h.adapter
	h.mu.Unlock()

	if r, ok := a.(Reloadable); ok {
		return r.Reload(ctx)
	}
	return nil
}

// Snapshot returns a cheap, read-only copy of this Handle's identity and
// status, safe to hand to the HTTP surface without sharing the underlying
// lock.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Name:        h.adapter.Name(),
		FactoryType: h.adapter.FactoryType(),
		Status:      h.status,
	}
}

// Snapshot is a cheap, read-only copy of a Handle's identity and status.
type Snapshot struct {
	Name        string
	FactoryType string
	Status      Status
}
