package worker

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loquat-fw/loquat/internal/model"
)

func TestMatchingRule_All(t *testing.T) {
	rule := MatchAll()
	assert.True(t, rule.Matches(nil))
	assert.True(t, rule.Matches([]model.TargetSite{{Name: "x"}}))
}

func TestMatchingRule_Worker(t *testing.T) {
	rule := MatchWorker("sink-a")
	assert.True(t, rule.Matches([]model.TargetSite{{Name: "sink-a"}}))
	assert.False(t, rule.Matches([]model.TargetSite{{Name: "sink-b"}}))
	assert.False(t, rule.Matches(nil))
}

func TestMatchingRule_Group(t *testing.T) {
	rule := MatchGroup("ops")
	assert.True(t, rule.Matches([]model.TargetSite{{Name: "x", GroupName: "ops"}}))
	assert.False(t, rule.Matches([]model.TargetSite{{Name: "x", GroupName: "other"}}))
}

func TestMatchingRule_Regex(t *testing.T) {
	rule := MatchRegex(regexp.MustCompile(`^sink-\d+$`))
	assert.True(t, rule.Matches([]model.TargetSite{{Name: "sink-42"}}))
	assert.False(t, rule.Matches([]model.TargetSite{{Name: "sink-abc"}}))
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "Release", Release.String())
	assert.Equal(t, "Modify", Modify.String())
}

func TestReleaseAndModifyWith(t *testing.T) {
	pkg, err := model.NewPackage("group:1")
	assert.NoError(t, err)

	rel := ReleaseWith(pkg)
	assert.Equal(t, Release, rel.Kind)
	assert.Same(t, pkg, rel.Package)

	mod := ModifyWith(pkg)
	assert.Equal(t, Modify, mod.Kind)
	assert.Equal(t, []*model.Package{pkg}, mod.Packages)

	other, err := model.NewPackage("group:2")
	assert.NoError(t, err)
	fanOut := ModifyWith(pkg, other)
	assert.Equal(t, Modify, fanOut.Kind)
	assert.Equal(t, []*model.Package{pkg, other}, fanOut.Packages)
}

func TestDefaultOutputSafety(t *testing.T) {
	var d DefaultOutputSafety
	a, _ := model.NewPackage("group:1")
	b, _ := model.NewPackage("group:1")

	assert.False(t, d.IsOutputSafe(a, b), "identical packages are unsafe to loop on")

	b.AddTargetSite(model.TargetSite{Name: "x"})
	assert.True(t, d.IsOutputSafe(a, b), "a genuine change is safe")
}
