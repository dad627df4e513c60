package modelcontext

import (
	"testing"

	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten_PreservesOrderAcrossNesting(t *testing.T) {
	a := NewPointer(ProjectVersion{GroupID: "g", ArtifactID: "a", Version: "1.0.0"})
	b := NewPointer(Workspace{ProjectID: "p", WorkspaceID: "w"})
	d1 := model.NewData(model.Element{Path: "x::One", Kind: model.KindClass})
	d2 := model.NewData(model.Element{Path: "x::Two", Kind: model.KindClass})

	f := Flatten(Combine(
		NewData(d1),
		Combine(a, NewText("elements: []"), Combine(NewData(d2))),
		b,
	))

	require.Len(t, f.Pointers, 2)
	assert.Same(t, a, f.Pointers[0])
	assert.Same(t, b, f.Pointers[1])

	require.Len(t, f.Concretes, 3)
	assert.Same(t, d1, f.Concretes[0].Data)
	assert.Equal(t, "elements: []", f.Concretes[1].Text.Text)
	assert.Same(t, d2, f.Concretes[2].Data)
	assert.False(t, f.IsEmpty())
}

func TestFlatten_Empty(t *testing.T) {
	assert.True(t, Flatten(Combine()).IsEmpty())
	assert.True(t, Flatten(Combine(Combine(), Combine())).IsEmpty())
	assert.True(t, Flatten(nil).IsEmpty())
}

func TestKinds(t *testing.T) {
	assert.Equal(t, KindPointer, NewPointer(ArchivedVersion{}).Kind())
	assert.Equal(t, KindData, NewData(nil).Kind())
	assert.Equal(t, KindText, NewText("").Kind())
	assert.Equal(t, KindCombination, Combine().Kind())
}

func TestProjectVersionQualifiers(t *testing.T) {
	assert.True(t, ProjectVersion{Version: "latest"}.IsLatest())
	assert.True(t, ProjectVersion{Version: "LATEST"}.IsLatest())
	assert.True(t, ProjectVersion{Version: "1.2.0-SNAPSHOT"}.IsSnapshot())
	assert.False(t, ProjectVersion{Version: "1.2.0"}.IsSnapshot())
	assert.Equal(t, "g:a:1.2.0", ProjectVersion{GroupID: "g", ArtifactID: "a", Version: "1.2.0"}.String())
}

func TestProjectRevisionHead(t *testing.T) {
	assert.True(t, ProjectRevision{ProjectID: "p"}.IsHead())
	assert.True(t, ProjectRevision{ProjectID: "p", Revision: "head"}.IsHead())
	assert.False(t, ProjectRevision{ProjectID: "p", Revision: "r42"}.IsHead())
	assert.Equal(t, "p@HEAD", ProjectRevision{ProjectID: "p"}.String())
}

func TestWorkspaceString(t *testing.T) {
	assert.Equal(t, "p/workspace/w", Workspace{ProjectID: "p", WorkspaceID: "w"}.String())
	assert.Equal(t, "p/groupWorkspace/w", Workspace{ProjectID: "p", WorkspaceID: "w", GroupWorkspace: true}.String())
}

func TestFlatten_SkipsTypedNilMembers(t *testing.T) {
	d := model.NewData(model.Element{Path: "x::One", Kind: model.KindClass})

	f := Flatten(Combine(
		(*Data)(nil),
		NewData(d),
		(*Text)(nil),
		(*Pointer)(nil),
		(*Combination)(nil),
	))

	assert.Empty(t, f.Pointers)
	assert.Empty(t, f.Unsupported)
	require.Len(t, f.Concretes, 1)
	assert.Same(t, d, f.Concretes[0].Data)
}
