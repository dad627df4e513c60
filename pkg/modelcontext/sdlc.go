package modelcontext

import (
	"fmt"
	"strings"
)

// Mutable version qualifiers.
const (
	// VersionLatest resolves to the newest published version at load time.
	VersionLatest = "latest"

	// SnapshotSuffix marks a version whose content may change.
	SnapshotSuffix = "-SNAPSHOT"

	// RevisionHead is the moving head of a project.
	RevisionHead = "HEAD"
)

// SDLC identifies a resource within a versioned store.
type SDLC interface {
	// Store names the store kind (e.g. "depot", "sdlc", "archive").
	Store() string

	// String renders a readable identifier.
	String() string

	isSDLC()
}

// ProjectVersion is a published, versioned project artifact.
type ProjectVersion struct {
	GroupID    string `json:"groupId" yaml:"groupId"`
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Version    string `json:"version" yaml:"version"`
}

// Workspace is an in-progress branch of an SDLC project.
type Workspace struct {
	ProjectID      string `json:"projectId" yaml:"projectId"`
	WorkspaceID    string `json:"workspaceId" yaml:"workspaceId"`
	GroupWorkspace bool   `json:"groupWorkspace,omitempty" yaml:"groupWorkspace,omitempty"`
}

// ProjectRevision is an SDLC project at a given revision.
type ProjectRevision struct {
	ProjectID string `json:"projectId" yaml:"projectId"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// ArchivedVersion is a project version held in the local archive.
type ArchivedVersion struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// Store implements SDLC.
func (ProjectVersion) Store() string { return "depot" }

// Store implements SDLC.
func (Workspace) Store() string { return "sdlc" }

// Store implements SDLC.
func (ProjectRevision) Store() string { return "sdlc" }

// Store implements SDLC.
func (ArchivedVersion) Store() string { return "archive" }

func (ProjectVersion) isSDLC()  {}
func (Workspace) isSDLC()       {}
func (ProjectRevision) isSDLC() {}
func (ArchivedVersion) isSDLC() {}

// String implements SDLC.
func (p ProjectVersion) String() string {
	return fmt.Sprintf("%s:%s:%s", p.GroupID, p.ArtifactID, p.Version)
}

// Coordinates returns group:artifact without the version.
func (p ProjectVersion) Coordinates() string {
	return p.GroupID + ":" + p.ArtifactID
}

// IsLatest reports whether the version is the moving "latest" qualifier.
func (p ProjectVersion) IsLatest() bool {
	return strings.EqualFold(p.Version, VersionLatest)
}

// IsSnapshot reports whether the version content may change over time.
func (p ProjectVersion) IsSnapshot() bool {
	return strings.HasSuffix(p.Version, SnapshotSuffix)
}

// String implements SDLC.
func (w Workspace) String() string {
	kind := "workspace"
	if w.GroupWorkspace {
		kind = "groupWorkspace"
	}
	return fmt.Sprintf("%s/%s/%s", w.ProjectID, kind, w.WorkspaceID)
}

// String implements SDLC.
func (r ProjectRevision) String() string {
	return fmt.Sprintf("%s@%s", r.ProjectID, r.EffectiveRevision())
}

// EffectiveRevision returns the revision, defaulting to HEAD.
func (r ProjectRevision) EffectiveRevision() string {
	if r.Revision == "" {
		return RevisionHead
	}
	return r.Revision
}

// IsHead reports whether the revision follows the moving head.
func (r ProjectRevision) IsHead() bool {
	return strings.EqualFold(r.EffectiveRevision(), RevisionHead)
}

// String implements SDLC.
func (a ArchivedVersion) String() string {
	return fmt.Sprintf("%s@%s", a.Name, a.Version)
}
