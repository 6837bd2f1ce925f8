// Package stream owns the nine fixed Pool slots and drives a Package through
// them in order, using an explicit work queue rather than recursive calls so
// the iteration cap and shutdown are both easy to reason about.
package stream

import (
	"context"
	"log/slog"

	"github.com/loquat-fw/loquat/internal/model"
	"github.com/loquat-fw/loquat/internal/pool"
)

// slotCount is the fixed number of Pools every Stream owns.
const slotCount = 9

// slotKinds fixes the nine Pool slots in order and type. Slots 0,2,4,6,8
// (1-indexed: 1,3,5,7,9) are framework-internal; slots 1,3,5,7 (1-indexed:
// 2,4,6,8) are extensible.
var slotKinds = [slotCount]pool.Kind{
	pool.KindIntake,
	pool.KindInput,
	pool.KindValidate,
	pool.KindPreProcess,
	pool.KindDispatch,
	pool.KindProcess,
	pool.KindFinalize,
	pool.KindOutput,
	pool.KindEgress,
}

// workItem is one entry in the Stream's FIFO work queue.
type workItem struct {
	slot int
	pkg  *model.Package
}

// Stream owns the nine Pools and pushes Packages through them in order.
type Stream struct {
	pools  [slotCount]*pool.Pool
	logger *slog.Logger
}

// New constructs a Stream with all nine Pool slots populated. internalWorkers
// registers the framework's built-in Workers into Pools 1,3,5,7,9 (slots
// 0,2,4,6,8); it may be nil if the caller wires them in separately via
// ExtensiblePool.
func New(logger *slog.Logger, internalWorkers func(s *Stream) error) (*Stream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{logger: logger.With("component", "Stream")}
	for i, kind := range slotKinds {
		s.pools[i] = pool.New(kind, logger)
	}
	if internalWorkers != nil {
		if err := internalWorkers(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Pool returns the Pool occupying the given 1-indexed slot (1..9).
func (s *Stream) Pool(slot int) *pool.Pool {
	return s.pools[slot-1]
}

// ExtensiblePool returns the Pool for one of the four extensible kinds, for
// callers registering third-party Workers by kind rather than slot number.
func (s *Stream) ExtensiblePool(kind pool.Kind) *pool.Pool {
	for _, p := range s.pools {
		if p.Kind() == kind {
			return p
		}
	}
	return nil
}

// Run drives pkg through Pools 1..9 in order, returning the final set of
// Packages that exited Pool 9. The FIFO work queue is seeded with
// (slot=1, pkg); each Pool's Process call already internalizes its own
// Modify/iteration-cap loop (see pool.Pool.Process), so an item advances
// exactly one slot per queue pop.
func (s *Stream) Run(ctx context.Context, pkg *model.Package) ([]*model.Package, error) {
	queue := []workItem{{slot: 1, pkg: pkg}}
	var output []*model.Package

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		released, err := s.pools[item.slot-1].Process(ctx, item.pkg)
		if err != nil {
			return nil, err
		}
		for _, out := range released {
			if item.slot == slotCount {
				output = append(output, out)
				continue
			}
			queue = append(queue, workItem{slot: item.slot + 1, pkg: out})
		}
	}

	return output, nil
}
