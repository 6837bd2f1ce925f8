// Package router maps a Package to a processing context: which adapter it
// should be delivered through and which Channel owns its conversation
// state. Routing itself performs no I/O and is safe to cache by callers.
package router

import (
	"errors"
	"fmt"

	"github.com/loquat-fw/loquat/internal/model"
)

// ErrNoRoute is returned when auto-routing is disabled and the Package
// carries no explicit target site to route by.
var ErrNoRoute = errors.New("router: no route")

// Decision is the outcome of routing a Package: which adapter should carry
// it and which Channel its state lives under.
type Decision struct {
	AdapterTarget string
	ChannelKey    model.ChannelKey
}

// Router is a pure function of (package id, target sites) to Decision. It
// holds no mutable state and performs no I/O; its zero value is ready to
// use.
type Router struct {
	// AutoRoute allows routing by package id alone when no TargetSite is
	// present. When false, a Package with no TargetSites fails NoRoute.
	AutoRoute bool
}

// New constructs a Router with the given auto-route policy.
func New(autoRoute bool) *Router {
	return &Router{AutoRoute: autoRoute}
}

// Route produces a Decision for pkg. The channel key is always derived
// deterministically from the package id; the adapter target comes from the
// first TargetSite present, falling back to the package id's kind when
// AutoRoute is enabled and no TargetSite exists.
func (r *Router) Route(pkg *model.Package) (Decision, error) {
	channelKey := pkg.ID.ChannelKey()

	if len(pkg.TargetSites) > 0 {
		return Decision{
			AdapterTarget: pkg.TargetSites[0].Name,
			ChannelKey:    channelKey,
		}, nil
	}

	if !r.AutoRoute {
		return Decision{}, fmt.Errorf("%w: package %s has no target site", ErrNoRoute, pkg.ID)
	}

	return Decision{
		AdapterTarget: string(pkg.ID.Kind),
		ChannelKey:    channelKey,
	}, nil
}
