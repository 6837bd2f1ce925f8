// Package model defines the message containers carried through the Loquat
// pipeline: Package, Block, Group, Event, TargetSite, and the channel
// identity derived from a package id.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the routing domain a Package or Channel belongs to.
type Kind string

const (
	KindGroup   Kind = "group"
	KindPrivate Kind = "private"
	KindChannel Kind = "channel"
)

// ErrInvalidPackageID is returned when a package id does not match the
// "<kind>:<id>" grammar.
var ErrInvalidPackageID = errors.New("model: invalid package id")

// PackageID is the parsed form of a Package's stable "<kind>:<id>" string.
type PackageID struct {
	Kind Kind
	ID   string
}

// ParsePackageID parses "<kind>:<id>" where kind is one of group, private,
// channel and id is any non-empty string containing no colons.
func ParsePackageID(s string) (PackageID, error) {
	if s == "" {
		return PackageID{}, fmt.Errorf("%w: empty", ErrInvalidPackageID)
	}
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return PackageID{}, fmt.Errorf("%w: missing ':' in %q", ErrInvalidPackageID, s)
	}
	kindPart, idPart := s[:idx], s[idx+1:]
	if strings.IndexByte(idPart, ':') >= 0 {
		return PackageID{}, fmt.Errorf("%w: id contains ':' in %q", ErrInvalidPackageID, s)
	}
	if idPart == "" {
		return PackageID{}, fmt.Errorf("%w: empty id in %q", ErrInvalidPackageID, s)
	}
	switch Kind(kindPart) {
	case KindGroup, KindPrivate, KindChannel:
		return PackageID{Kind: Kind(kindPart), ID: idPart}, nil
	default:
		return PackageID{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPackageID, kindPart)
	}
}

// String renders the package id back to its "<kind>:<id>" form.
func (p PackageID) String() string {
	return string(p.Kind) + ":" + p.ID
}

// ChannelKey derives the ChannelType key this package id routes to.
func (p PackageID) ChannelKey() ChannelKey {
	return ChannelKey{Kind: p.Kind, ID: p.ID}
}

// ChannelKey is the (kind,id) identity under which ChannelManager state is
// stored. It is always derived deterministically from a PackageID.
type ChannelKey struct {
	Kind Kind
	ID   string
}

func (c ChannelKey) String() string {
	return string(c.Kind) + ":" + c.ID
}

// TargetSite is a routing label attached to a Package. Equality is by
// Name only; duplicates are tolerated but discouraged.
type TargetSite struct {
	Name      string
	GroupName string
}

// Equal reports whether two TargetSites refer to the same routing label.
func (t TargetSite) Equal(other TargetSite) bool {
	return t.Name == other.Name
}

// EventKind discriminates the Event variant.
type EventKind int

const (
	EventMessage EventKind = iota
	EventNotice
	EventRequest
	EventMeta
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "Message"
	case EventNotice:
		return "Notice"
	case EventRequest:
		return "Request"
	case EventMeta:
		return "Meta"
	default:
		return "Unknown"
	}
}

// Event is a discriminated variant carried inside a Group. Workers
// pattern-match on Kind() before inspecting a variant-specific payload.
type Event interface {
	Kind() EventKind
}

// MessageEvent carries a plain text/media message payload.
type MessageEvent struct {
	Text string
	Meta map[string]string
}

func (MessageEvent) Kind() EventKind { return EventMessage }

// NoticeEvent carries an out-of-band system notice (join/leave, topic change, etc).
type NoticeEvent struct {
	Notice string
	Meta   map[string]string
}

func (NoticeEvent) Kind() EventKind { return EventNotice }

// RequestEvent carries a request that expects an application-level response.
type RequestEvent struct {
	Action string
	Args   map[string]string
}

func (RequestEvent) Kind() EventKind { return EventRequest }

// MetaEvent carries framework/plugin metadata that rides alongside the
// substantive events in a Group without being a message itself.
type MetaEvent struct {
	Key   string
	Value string
}

func (MetaEvent) Kind() EventKind { return EventMeta }

// Group is a named event grouping within a Block. Worker matching rules may
// select on Group name (MatchingRule.Group).
type Group struct {
	Name   string
	Events []Event
}

// Block is an ordered sequence of Events (organized into named Groups) plus
// a string metadata map.
type Block struct {
	Groups   []Group
	Metadata map[string]string
}

// NewBlock creates an empty Block ready for group/event population.
func NewBlock() Block {
	return Block{Metadata: make(map[string]string)}
}

// Events flattens all Groups into a single ordered Event slice.
func (b Block) Events() []Event {
	var out []Event
	for _, g := range b.Groups {
		out = append(out, g.Events...)
	}
	return out
}

// GroupNames returns the distinct Group names present in the Block, in
// first-seen order.
func (b Block) GroupNames() []string {
	seen := make(map[string]bool, len(b.Groups))
	var out []string
	for _, g := range b.Groups {
		if !seen[g.Name] {
			seen[g.Name] = true
			out = append(out, g.Name)
		}
	}
	return out
}

// Package is the top-level unit traversing the pipeline.
type Package struct {
	ID          PackageID
	TargetSites []TargetSite
	Blocks      []Block
	Metadata    map[string]string
}

// NewPackage constructs a Package from a raw "<kind>:<id>" string, failing
// if it does not parse per the package id grammar.
func NewPackage(rawID string) (*Package, error) {
	id, err := ParsePackageID(rawID)
	if err != nil {
		return nil, err
	}
	return &Package{
		ID:       id,
		Metadata: make(map[string]string),
	}, nil
}

// HasTargetSite reports whether a TargetSite with the given name is present.
func (p *Package) HasTargetSite(name string) bool {
	for _, t := range p.TargetSites {
		if t.Name == name {
			return true
		}
	}
	return false
}

// AddTargetSite appends a TargetSite. Duplicates are tolerated, per spec.
func (p *Package) AddTargetSite(t TargetSite) {
	p.TargetSites = append(p.TargetSites, t)
}

// RemoveTargetSite removes the first TargetSite matching name, if present.
func (p *Package) RemoveTargetSite(name string) {
	for i, t := range p.TargetSites {
		if t.Name == name {
			p.TargetSites = append(p.TargetSites[:i], p.TargetSites[i+1:]...)
			return
		}
	}
}

// Clone returns a deep-enough copy of the Package for Workers that need to
// produce a modified Package without mutating the one they were handed.
// TargetSites and top-level Blocks/Metadata are copied; Event payloads
// (which are treated as immutable once constructed) are shared.
func (p *Package) Clone() *Package {
	clone := &Package{
		ID:       p.ID,
		Metadata: make(map[string]string, len(p.Metadata)),
	}
	clone.TargetSites = append(clone.TargetSites, p.TargetSites...)
	clone.Blocks = append(clone.Blocks, p.Blocks...)
	for k, v := range p.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// Equal reports whether two Packages are value-equal: same id, same
// target sites in order, same number of blocks with equal metadata and
// group names. This is the default notion of "identical Package" used by
// the Pool's dead-loop guard when a Worker does not supply its own
// IsOutputSafe check.
func (p *Package) Equal(other *Package) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.ID != other.ID {
		return false
	}
	if len(p.TargetSites) != len(other.TargetSites) {
		return false
	}
	for i := range p.TargetSites {
		if p.TargetSites[i] != other.TargetSites[i] {
			return false
		}
	}
	if len(p.Blocks) != len(other.Blocks) {
		return false
	}
	for i := range p.Blocks {
		if !blockEqual(p.Blocks[i], other.Blocks[i]) {
			return false
		}
	}
	return true
}

func blockEqual(a, b Block) bool {
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if b.Metadata[k] != v {
			return false
		}
	}
	agn, bgn := a.GroupNames(), b.GroupNames()
	if len(agn) != len(bgn) {
		return false
	}
	for i := range agn {
		if agn[i] != bgn[i] {
			return false
		}
	}
	return len(a.Events()) == len(b.Events())
}
