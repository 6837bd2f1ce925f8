package stream

import (
	"context"

	"github.com/loquat-fw/loquat/internal/model"
	"github.com/loquat-fw/loquat/internal/pool"
	"github.com/loquat-fw/loquat/internal/worker"
)

// passThrough is the framework-internal Worker installed in each of Pools
// 1,3,5,7,9. It never rejects a Package; fn lets each slot stamp its own
// bookkeeping (metadata, logging) before releasing.
type passThrough struct {
	worker.DefaultOutputSafety
	name string
	fn   func(pkg *model.Package)
}

func (p *passThrough) Name() string                     { return p.name }
func (p *passThrough) WorkerType() worker.Type           { return worker.Type(p.name) }
func (p *passThrough) Matches(_ []model.TargetSite) bool { return true }

func (p *passThrough) HandleBatch(_ context.Context, pkg *model.Package) (worker.Outcome, error) {
	if p.fn != nil {
		p.fn(pkg)
	}
	return worker.ReleaseWith(pkg), nil
}

// RegisterBuiltins installs the framework-internal Workers for Pools
// 1 (Intake), 3 (Validate), 5 (Dispatch), 7 (Finalize), 9 (Egress). Each
// internal Pool is not extensible, so this bypasses the normal Register path
// and appends directly via the Pool's own registration (internal pools have
// at most one built-in Worker, so priority/ties never matter).
func RegisterBuiltins(s *Stream) error {
	stamps := []struct {
		slot int
		kind pool.Kind
		name string
		fn   func(pkg *model.Package)
	}{
		{1, pool.KindIntake, "builtin.intake", func(pkg *model.Package) {
			if pkg.Metadata == nil {
				pkg.Metadata = make(map[string]string)
			}
		}},
		{3, pool.KindValidate, "builtin.validate", func(pkg *model.Package) {
			pkg.Metadata["validated"] = "true"
		}},
		{5, pool.KindDispatch, "builtin.dispatch", func(pkg *model.Package) {
			pkg.Metadata["dispatched"] = "true"
		}},
		{7, pool.KindFinalize, "builtin.finalize", func(pkg *model.Package) {
			pkg.Metadata["finalized"] = "true"
		}},
		{9, pool.KindEgress, "builtin.egress", func(pkg *model.Package) {
			pkg.Metadata["egressed"] = "true"
		}},
	}

	for _, st := range stamps {
		p := s.Pool(st.slot)
		if p.Kind() != st.kind {
			continue
		}
		if err := p.RegisterInternal(&passThrough{name: st.name, fn: st.fn}, 0); err != nil {
			return err
		}
	}
	return nil
}
