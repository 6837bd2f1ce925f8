// Package worker defines the contract third parties implement to extend a
// Pool, along with the outcome types a Worker returns from handling a batch.
package worker

import (
	"context"
	"regexp"

	"github.com/loquat-fw/loquat/internal/model"
)

// Type names the extensible Pool a Worker registers into.
type Type string

const (
	TypeInput      Type = "input"
	TypePreProcess Type = "pre_process"
	TypeProcess    Type = "process"
	TypeOutput     Type = "output"
)

// Worker is the contract a third party implements to participate in one of
// the extensible Pools. Implementations must be safe for concurrent use: a
// single Worker instance may be invoked from multiple Pool goroutines.
type Worker interface {
	// Name uniquely identifies this Worker within its Pool for logging and
	// registry lookups.
	Name() string

	// WorkerType reports which extensible Pool this Worker belongs to.
	WorkerType() Type

	// Matches reports whether this Worker should be invoked for the given
	// package's target sites. Matching is independent of priority ordering.
	Matches(sites []model.TargetSite) bool

	// HandleBatch processes pkg and returns an Outcome describing whether
	// the Pool should release the (possibly unchanged) package downstream
	// or restart dispatch with a modified one.
	HandleBatch(ctx context.Context, pkg *model.Package) (Outcome, error)

	// IsOutputSafe reports whether modified may be re-dispatched after this
	// Worker returns Modify; false makes the dead-loop guard release original
	// instead. A Worker that always returns true here is responsible for its
	// own termination guarantees. The zero-value default (when a Worker
	// embeds DefaultOutputSafety) falls back to model.Package.Equal.
	IsOutputSafe(original, modified *model.Package) bool
}

// DefaultOutputSafety is embeddable by Workers that want the framework's
// default dead-loop guard: a Modify is only unsafe when the modified package
// is value-equal to the original per model.Package.Equal.
type DefaultOutputSafety struct{}

// IsOutputSafe implements Worker.IsOutputSafe using model.Package.Equal.
func (DefaultOutputSafety) IsOutputSafe(original, modified *model.Package) bool {
	return !original.Equal(modified)
}

// OutcomeKind discriminates the two outcomes a Worker may return.
type OutcomeKind int

const (
	// Release tells the Pool to stop iterating further Workers and send the
	// (possibly unchanged) Package on to the next Pool in the Stream.
	Release OutcomeKind = iota
	// Modify tells the Pool to restart dispatch at the highest-priority
	// matching Worker with the returned Package.
	Modify
)

func (k OutcomeKind) String() string {
	if k == Modify {
		return "Modify"
	}
	return "Release"
}

// Outcome is what HandleBatch returns: either Release with the (possibly
// unchanged) package, or Modify with one or more replacement packages that
// should each re-enter dispatch from the top of the Pool's priority order.
// A single HandleBatch call can fan a Package out into several by returning
// more than one entry in Packages.
type Outcome struct {
	Kind     OutcomeKind
	Package  *model.Package
	Packages []*model.Package
}

// ReleaseWith builds a Release outcome carrying pkg unchanged or mutated
// in place.
func ReleaseWith(pkg *model.Package) Outcome {
	return Outcome{Kind: Release, Package: pkg}
}

// ModifyWith builds a Modify outcome carrying one or more replacement
// packages, each of which independently re-enters dispatch.
func ModifyWith(pkgs ...*model.Package) Outcome {
	return Outcome{Kind: Modify, Packages: pkgs}
}

// MatchingRule is a small tagged union of the common ways a Worker selects
// which packages it applies to. Workers are free to implement Matches
// directly instead; MatchingRule exists so simple Workers don't need to
// hand-roll the common cases.
type MatchingRule struct {
	kind    matchKind
	worker  string
	group   string
	pattern *regexp.Regexp
}

type matchKind int

const (
	matchAll matchKind = iota
	matchWorker
	matchGroup
	matchRegex
)

// MatchAll selects every package regardless of target site.
func MatchAll() MatchingRule { return MatchingRule{kind: matchAll} }

// MatchWorker selects packages carrying a target site whose Name equals
// workerName exactly.
func MatchWorker(workerName string) MatchingRule {
	return MatchingRule{kind: matchWorker, worker: workerName}
}

// MatchGroup selects packages carrying a target site whose GroupName equals
// groupName exactly.
func MatchGroup(groupName string) MatchingRule {
	return MatchingRule{kind: matchGroup, group: groupName}
}

// MatchRegex selects packages carrying a target site whose Name matches the
// given compiled regular expression.
func MatchRegex(pattern *regexp.Regexp) MatchingRule {
	return MatchingRule{kind: matchRegex, pattern: pattern}
}

// Matches evaluates the rule against a package's target sites.
func (r MatchingRule) Matches(sites []model.TargetSite) bool {
	switch r.kind {
	case matchAll:
		return true
	case matchWorker:
		for _, s := range sites {
			if s.Name == r.worker {
				return true
			}
		}
		return false
	case matchGroup:
		for _, s := range sites {
			if s.GroupName == r.group {
				return true
			}
		}
		return false
	case matchRegex:
		for _, s := range sites {
			if r.pattern.MatchString(s.Name) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
