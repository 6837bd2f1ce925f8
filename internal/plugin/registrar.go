package plugin

import (
	"github.com/loquat-fw/loquat/internal/adapter"
	"github.com/loquat-fw/loquat/internal/pool"
	"github.com/loquat-fw/loquat/internal/stream"
	"github.com/loquat-fw/loquat/internal/worker"
)

// StreamRegistrar is the default Registrar implementation: it registers
// Workers directly into a Stream's extensible Pools and Adapter factories
// into an adapter.FactoryRegistry.
type StreamRegistrar struct {
	Stream    *stream.Stream
	Factories *adapter.FactoryRegistry
}

// RegisterWorker registers w into the Stream's Pool of the given kind.
func (r *StreamRegistrar) RegisterWorker(kind pool.Kind, w worker.Worker, priority int) error {
	p := r.Stream.ExtensiblePool(kind)
	if p == nil {
		return pool.ErrNotExtensible
	}
	return p.Register(w, priority)
}

// RegisterAdapterFactory installs f under factoryType in the shared
// AdapterFactoryRegistry.
func (r *StreamRegistrar) RegisterAdapterFactory(factoryType string, f adapter.Factory) {
	r.Factories.Register(factoryType, f)
}
