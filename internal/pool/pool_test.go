package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquat-fw/loquat/internal/model"
	"github.com/loquat-fw/loquat/internal/worker"
)

type fakeWorker struct {
	worker.DefaultOutputSafety
	name    string
	rule    worker.MatchingRule
	handler func(ctx context.Context, pkg *model.Package) (worker.Outcome, error)
	calls   int
}

func (f *fakeWorker) Name() string                       { return f.name }
func (f *fakeWorker) WorkerType() worker.Type             { return worker.TypeInput }
func (f *fakeWorker) Matches(s []model.TargetSite) bool   { return f.rule.Matches(s) }
func (f *fakeWorker) HandleBatch(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
	f.calls++
	return f.handler(ctx, pkg)
}

func newPkg(t *testing.T, id string) *model.Package {
	t.Helper()
	p, err := model.NewPackage(id)
	require.NoError(t, err)
	return p
}

func TestPool_RegisterRejectsNonExtensible(t *testing.T) {
	p := New(KindIntake, nil)
	w := &fakeWorker{name: "w1", rule: worker.MatchAll()}
	err := p.Register(w, 0)
	require.ErrorIs(t, err, ErrNotExtensible)
}

func TestPool_SingleReleasePath(t *testing.T) {
	p := New(KindInput, nil)
	w1 := &fakeWorker{
		name: "w1",
		rule: worker.MatchAll(),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			return worker.ReleaseWith(pkg), nil
		},
	}
	require.NoError(t, p.Register(w1, 0))

	pkg := newPkg(t, "group:1")
	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, pkg, out[0])
	assert.Equal(t, 1, w1.calls)
}

func TestPool_ModifyThenRelease(t *testing.T) {
	p := New(KindProcess, nil)

	w1 := &fakeWorker{
		name: "w1",
		rule: worker.MatchGroup("g"),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			// Drop the group-g site so w1 no longer matches once dispatch
			// restarts from the top and w2 picks the package up.
			modified := pkg.Clone()
			modified.RemoveTargetSite("x")
			modified.AddTargetSite(model.TargetSite{Name: "done"})
			return worker.ModifyWith(modified), nil
		},
	}
	w2 := &fakeWorker{
		name: "w2",
		rule: worker.MatchWorker("sentinel"),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			return worker.ReleaseWith(pkg), nil
		},
	}
	require.NoError(t, p.Register(w1, 0))
	require.NoError(t, p.Register(w2, 1))

	pkg := newPkg(t, "group:1")
	pkg.AddTargetSite(model.TargetSite{Name: "x", GroupName: "g"})
	pkg.AddTargetSite(model.TargetSite{Name: "sentinel"})

	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].HasTargetSite("done"))
	assert.Equal(t, 1, w1.calls)
	assert.Equal(t, 1, w2.calls)
}

func TestPool_DeadLoopGuard(t *testing.T) {
	p := New(KindOutput, nil)
	w1 := &fakeWorker{
		name: "w1",
		rule: worker.MatchAll(),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			return worker.ModifyWith(pkg), nil // same package back: unsafe
		},
	}
	require.NoError(t, p.Register(w1, 0))

	pkg := newPkg(t, "group:1")
	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, pkg, out[0])
	assert.Equal(t, 1, w1.calls, "dead-loop guard must stop after the first dispatch")
}

func TestPool_ModifyFansOutToMultiplePackages(t *testing.T) {
	p := New(KindProcess, nil)

	w1 := &fakeWorker{
		name: "splitter",
		rule: worker.MatchAll(),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			if pkg.HasTargetSite("split") {
				return worker.ReleaseWith(pkg), nil
			}
			a := pkg.Clone()
			a.AddTargetSite(model.TargetSite{Name: "split"})
			b := pkg.Clone()
			b.AddTargetSite(model.TargetSite{Name: "split"})
			b.AddTargetSite(model.TargetSite{Name: "second"})
			return worker.ModifyWith(a, b), nil
		},
	}
	require.NoError(t, p.Register(w1, 0))

	pkg := newPkg(t, "group:1")
	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 2, "one Modify call fanning out two replacements must yield two released packages")
	assert.True(t, out[0].HasTargetSite("split"))
	assert.True(t, out[1].HasTargetSite("split"))
	assert.True(t, out[1].HasTargetSite("second"))
}

func TestPool_ModifyFanOutForcesReleaseOfUnsafeReplacement(t *testing.T) {
	p := New(KindProcess, nil)

	w1 := &fakeWorker{
		name: "mixed",
		rule: worker.MatchAll(),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			if pkg.HasTargetSite("tagged") {
				return worker.ReleaseWith(pkg), nil
			}
			tagged := pkg.Clone()
			tagged.AddTargetSite(model.TargetSite{Name: "tagged"})
			// pkg itself is returned unmodified alongside tagged: unsafe, must be
			// force-released rather than looping forever.
			return worker.ModifyWith(tagged, pkg), nil
		},
	}
	require.NoError(t, p.Register(w1, 0))

	pkg := newPkg(t, "group:1")
	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestPool_IterationCapForcesRelease(t *testing.T) {
	p := New(KindProcess, nil)
	p.iterationCap = 3

	count := 0
	w1 := &fakeWorker{
		name: "w1",
		rule: worker.MatchAll(),
		handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
			count++
			modified := pkg.Clone()
			modified.AddTargetSite(model.TargetSite{Name: "tag"})
			return worker.ModifyWith(modified), nil
		},
	}
	require.NoError(t, p.Register(w1, 0))

	pkg := newPkg(t, "group:1")
	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, count, 3)
}

func TestPool_NoMatchReleases(t *testing.T) {
	p := New(KindInput, nil)
	w1 := &fakeWorker{name: "w1", rule: worker.MatchWorker("nope")}
	require.NoError(t, p.Register(w1, 0))

	pkg := newPkg(t, "group:1")
	out, err := p.Process(context.Background(), pkg)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, pkg, out[0])
}

func TestPool_PriorityOrderAndTieBreakByInsertion(t *testing.T) {
	p := New(KindInput, nil)
	var order []string

	mk := func(name string) *fakeWorker {
		return &fakeWorker{
			name: name,
			rule: worker.MatchAll(),
			handler: func(ctx context.Context, pkg *model.Package) (worker.Outcome, error) {
				order = append(order, name)
				return worker.ReleaseWith(pkg), nil
			},
		}
	}

	require.NoError(t, p.Register(mk("second"), 5))
	require.NoError(t, p.Register(mk("first"), 1))
	require.NoError(t, p.Register(mk("third"), 5))

	_, err := p.Process(context.Background(), newPkg(t, "group:1"))
	require.NoError(t, err)

	// Only the first-matching (lowest priority, then insertion order) Worker
	// is invoked per dispatch; "first" has the lowest priority.
	require.Equal(t, []string{"first"}, order)
}

func TestPool_UnregisterNotFound(t *testing.T) {
	p := New(KindInput, nil)
	err := p.Unregister("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPool_WorkerCount(t *testing.T) {
	p := New(KindInput, nil)
	assert.Equal(t, 0, p.WorkerCount())
	require.NoError(t, p.Register(&fakeWorker{name: "w1", rule: worker.MatchAll()}, 0))
	assert.Equal(t, 1, p.WorkerCount())
	require.NoError(t, p.Unregister("w1"))
	assert.Equal(t, 0, p.WorkerCount())
}
