// Package pool implements the dispatch discipline for a single pipeline
// stage: priority-ordered Worker registrations, first-match invocation, the
// Modify re-dispatch loop, and the dead-loop guard that bounds it.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/loquat-fw/loquat/internal/model"
	"github.com/loquat-fw/loquat/internal/worker"
)

// Kind names one of the nine fixed pipeline slots. The four extensible kinds
// accept third-party Worker registrations; the five internal kinds are
// populated only by the Stream's own built-in Workers.
type Kind string

const (
	// Extensible slots (2, 4, 6, 8).
	KindInput      Kind = "input"
	KindPreProcess Kind = "pre_process"
	KindProcess    Kind = "process"
	KindOutput     Kind = "output"

	// Framework-internal slots (1, 3, 5, 7, 9).
	KindIntake   Kind = "intake"
	KindValidate Kind = "validate"
	KindDispatch Kind = "dispatch"
	KindFinalize Kind = "finalize"
	KindEgress   Kind = "egress"
)

// extensible reports whether third parties may register Workers in a Pool
// of this Kind.
func (k Kind) extensible() bool {
	switch k {
	case KindInput, KindPreProcess, KindProcess, KindOutput:
		return true
	default:
		return false
	}
}

// ErrNotExtensible is returned by Register when the Pool's Kind does not
// accept external registrations.
var ErrNotExtensible = errors.New("pool: not extensible")

// ErrNotFound is returned by Unregister when no Worker with the given name
// is registered.
var ErrNotFound = errors.New("pool: worker not found")

// DefaultIterationCap bounds how many times a single input Package may be
// re-dispatched within one Pool before the Pool forces a Release.
const DefaultIterationCap = 64

type registration struct {
	w        worker.Worker
	priority int
	seq      int // insertion order, used to break priority ties
}

// Pool holds one pipeline stage's ordered Worker registrations and dispatches
// Packages against them.
type Pool struct {
	kind         Kind
	iterationCap int
	logger       *slog.Logger

	mu      sync.RWMutex
	regs    []registration
	nextSeq int
}

// New constructs an empty Pool of the given Kind. A nil logger falls back to
// slog.Default().
func New(kind Kind, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		kind:         kind,
		iterationCap: DefaultIterationCap,
		logger:       logger.With("component", fmt.Sprintf("Pool[%s]", kind)),
	}
}

// Kind reports this Pool's slot kind.
func (p *Pool) Kind() Kind { return p.kind }

// Register inserts w into the priority-ordered registration list. Ties in
// priority are broken by insertion order. Fails with ErrNotExtensible if
// this Pool's Kind does not accept external registrations.
func (p *Pool) Register(w worker.Worker, priority int) error {
	if !p.kind.extensible() {
		return fmt.Errorf("%w: pool %s", ErrNotExtensible, p.kind)
	}
	return p.insert(w, priority)
}

// RegisterInternal installs a framework-owned Worker regardless of Kind.
// It exists so the Stream can seed Pools 1,3,5,7,9 with their built-in
// Workers; third-party callers must use Register.
func (p *Pool) RegisterInternal(w worker.Worker, priority int) error {
	return p.insert(w, priority)
}

func (p *Pool) insert(w worker.Worker, priority int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := registration{w: w, priority: priority, seq: p.nextSeq}
	p.nextSeq++
	p.regs = append(p.regs, r)
	sort.SliceStable(p.regs, func(i, j int) bool {
		if p.regs[i].priority != p.regs[j].priority {
			return p.regs[i].priority < p.regs[j].priority
		}
		return p.regs[i].seq < p.regs[j].seq
	})
	return nil
}

// Unregister removes the Worker with the given name.
func (p *Pool) Unregister(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.regs {
		if r.w.Name() == name {
			p.regs = append(p.regs[:i], p.regs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// WorkerCount reports how many Workers are currently registered.
func (p *Pool) WorkerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.regs)
}

func (p *Pool) snapshot() []registration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]registration, len(p.regs))
	copy(out, p.regs)
	return out
}

// Process dispatches pkg through this Pool's registrations to completion,
// internalizing the Modify re-dispatch loop and the per-package iteration
// cap, and returns the Packages that should advance to the next Pool.
//
// A single input Package may fan out into more than one released Package
// when a Worker's Modify outcome carries more than one replacement; each
// replacement independently re-enters dispatch from the highest-priority
// Worker.
func (p *Pool) Process(ctx context.Context, pkg *model.Package) ([]*model.Package, error) {
	pending := []*model.Package{pkg}
	var released []*model.Package
	iterations := 0

	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]

		regs := p.snapshot()
		var matched *registration
		for i := range regs {
			if regs[i].w.Matches(cur.TargetSites) {
				matched = &regs[i]
				break
			}
		}
		if matched == nil {
			released = append(released, cur)
			continue
		}

		iterations++
		if iterations > p.iterationCap {
			p.logger.Error("iteration cap exceeded, forcing release",
				"cap", p.iterationCap, "package_id", cur.ID.String())
			released = append(released, cur)
			continue
		}

		outcome, err := matched.w.HandleBatch(ctx, cur)
		if err != nil {
			p.logger.Error("worker handler failed, treating as release",
				"worker", matched.w.Name(), "error", err, "package_id", cur.ID.String())
			released = append(released, cur)
			continue
		}

		switch outcome.Kind {
		case worker.Release:
			out := outcome.Package
			if out == nil {
				out = cur
			}
			released = append(released, out)
		case worker.Modify:
			nexts := outcome.Packages
			if len(nexts) == 0 {
				p.logger.Warn("modify outcome carried no replacement packages, forcing release",
					"worker", matched.w.Name(), "package_id", cur.ID.String())
				released = append(released, cur)
				continue
			}
			for _, next := range nexts {
				if next == nil || !matched.w.IsOutputSafe(cur, next) {
					p.logger.Warn("dead-loop guard triggered, forcing release",
						"worker", matched.w.Name(), "package_id", cur.ID.String())
					released = append(released, cur)
					continue
				}
				pending = append(pending, next)
			}
		default:
			released = append(released, cur)
		}
	}

	return released, nil
}
