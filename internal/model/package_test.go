package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePackageID_RoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		kind Kind
		id   string
	}{
		{"group:abc", KindGroup, "abc"},
		{"private:xyz", KindPrivate, "xyz"},
		{"channel:42", KindChannel, "42"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			pid, err := ParsePackageID(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, pid.Kind)
			assert.Equal(t, tc.id, pid.ID)
			assert.Equal(t, tc.raw, pid.String())
		})
	}
}

func TestParsePackageID_Rejects(t *testing.T) {
	for _, raw := range []string{"", "foo", ":x", "group:", "bogus:abc", "group:a:b"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParsePackageID(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPackageID))
		})
	}
}

func TestPackageID_ChannelKey(t *testing.T) {
	pid, err := ParsePackageID("channel:42")
	require.NoError(t, err)
	assert.Equal(t, ChannelKey{Kind: KindChannel, ID: "42"}, pid.ChannelKey())
	assert.Equal(t, "channel:42", pid.ChannelKey().String())
}

func TestNewPackage(t *testing.T) {
	p, err := NewPackage("group:room1")
	require.NoError(t, err)
	assert.Equal(t, KindGroup, p.ID.Kind)
	assert.NotNil(t, p.Metadata)

	_, err = NewPackage("nope")
	assert.Error(t, err)
}

func TestPackage_TargetSites(t *testing.T) {
	p, err := NewPackage("private:u1")
	require.NoError(t, err)

	assert.False(t, p.HasTargetSite("sink-a"))
	p.AddTargetSite(TargetSite{Name: "sink-a"})
	p.AddTargetSite(TargetSite{Name: "sink-b"})
	assert.True(t, p.HasTargetSite("sink-a"))
	assert.Len(t, p.TargetSites, 2)

	p.RemoveTargetSite("sink-a")
	assert.False(t, p.HasTargetSite("sink-a"))
	assert.Len(t, p.TargetSites, 1)

	// Removing an absent site is a no-op.
	p.RemoveTargetSite("sink-a")
	assert.Len(t, p.TargetSites, 1)
}

func TestPackage_CloneIsIndependent(t *testing.T) {
	p, err := NewPackage("group:abc")
	require.NoError(t, err)
	p.AddTargetSite(TargetSite{Name: "sink-a"})
	p.Metadata["corr"] = "1"

	clone := p.Clone()
	require.True(t, p.Equal(clone))

	clone.AddTargetSite(TargetSite{Name: "sink-b"})
	clone.Metadata["corr"] = "2"

	assert.Len(t, p.TargetSites, 1)
	assert.Equal(t, "1", p.Metadata["corr"])
	assert.False(t, p.Equal(clone))
}

func TestPackage_Equal(t *testing.T) {
	a, err := NewPackage("group:abc")
	require.NoError(t, err)
	b, err := NewPackage("group:abc")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	b.AddTargetSite(TargetSite{Name: "x"})
	assert.False(t, a.Equal(b))

	var nilA, nilB *Package
	assert.True(t, nilA.Equal(nilB))
	assert.False(t, a.Equal(nilB))
}

func TestBlock_EventsAndGroupNames(t *testing.T) {
	b := NewBlock()
	b.Groups = []Group{
		{Name: "g1", Events: []Event{MessageEvent{Text: "hi"}, NoticeEvent{Notice: "joined"}}},
		{Name: "g2", Events: []Event{RequestEvent{Action: "ping"}}},
		{Name: "g1", Events: []Event{MetaEvent{Key: "k", Value: "v"}}},
	}

	assert.Equal(t, []string{"g1", "g2"}, b.GroupNames())
	assert.Len(t, b.Events(), 4)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "Message", EventMessage.String())
	assert.Equal(t, "Notice", EventNotice.String())
	assert.Equal(t, "Request", EventRequest.String())
	assert.Equal(t, "Meta", EventMeta.String())
	assert.Equal(t, "Unknown", EventKind(99).String())
}

func TestTargetSite_Equal(t *testing.T) {
	a := TargetSite{Name: "sink", GroupName: "g1"}
	b := TargetSite{Name: "sink", GroupName: "g2"}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(TargetSite{Name: "other"}))
}
