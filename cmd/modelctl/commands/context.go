package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/modelresolver/pkg/loaders/archive"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
)

// contextOptions collect the sources of a model context.
type contextOptions struct {
	versions        []string
	workspaces      []string
	groupWorkspaces []string
	revisions       []string
	archived        []string
	textFiles       []string
	dataFiles       []string
}

func (c *contextOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVar(&c.versions, "version", nil, "published project version group:artifact:version (version may be 'latest')")
	f.StringArrayVar(&c.workspaces, "workspace", nil, "SDLC workspace project/workspace")
	f.StringArrayVar(&c.groupWorkspaces, "group-workspace", nil, "SDLC group workspace project/workspace")
	f.StringArrayVar(&c.revisions, "revision", nil, "SDLC project revision project[@revision], HEAD by default")
	f.StringArrayVar(&c.archived, "archived", nil, "archived version name@version")
	f.StringArrayVar(&c.textFiles, "text", nil, "model text file")
	f.StringArrayVar(&c.dataFiles, "data", nil, "model data file (YAML or JSON)")
}

// build assembles the context. One source yields that source; several
// yield a combination in flag order: pointers first, then inline members.
func (c *contextOptions) build() (modelcontext.Context, error) {
	var members []modelcontext.Context

	for _, v := range c.versions {
		pv, err := parseProjectVersion(v)
		if err != nil {
			return nil, err
		}
		members = append(members, modelcontext.NewPointer(pv))
	}
	for _, w := range c.workspaces {
		ws, err := parseWorkspace(w, false)
		if err != nil {
			return nil, err
		}
		members = append(members, modelcontext.NewPointer(ws))
	}
	for _, w := range c.groupWorkspaces {
		ws, err := parseWorkspace(w, true)
		if err != nil {
			return nil, err
		}
		members = append(members, modelcontext.NewPointer(ws))
	}
	for _, r := range c.revisions {
		project, revision, _ := strings.Cut(r, "@")
		if project == "" {
			return nil, fmt.Errorf("invalid revision %q: want project[@revision]", r)
		}
		members = append(members, modelcontext.NewPointer(modelcontext.ProjectRevision{ProjectID: project, Revision: revision}))
	}
	for _, a := range c.archived {
		name, version, ok := strings.Cut(a, "@")
		if !ok || name == "" || version == "" {
			return nil, fmt.Errorf("invalid archived version %q: want name@version", a)
		}
		members = append(members, modelcontext.NewPointer(modelcontext.ArchivedVersion{Name: name, Version: version}))
	}
	for _, path := range c.textFiles {
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model text: %w", err)
		}
		members = append(members, modelcontext.NewText(string(text)))
	}
	for _, path := range c.dataFiles {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open model data: %w", err)
		}
		data, err := archive.Decode(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		members = append(members, modelcontext.NewData(data))
	}

	switch len(members) {
	case 0:
		return nil, fmt.Errorf("no model context given: use --version, --workspace, --revision, --archived, --text or --data")
	case 1:
		return members[0], nil
	default:
		return modelcontext.Combine(members...), nil
	}
}

func parseProjectVersion(s string) (modelcontext.ProjectVersion, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return modelcontext.ProjectVersion{}, fmt.Errorf("invalid project version %q: want group:artifact:version", s)
	}
	return modelcontext.ProjectVersion{GroupID: parts[0], ArtifactID: parts[1], Version: parts[2]}, nil
}

func parseWorkspace(s string, group bool) (modelcontext.Workspace, error) {
	project, ws, ok := strings.Cut(s, "/")
	if !ok || project == "" || ws == "" {
		return modelcontext.Workspace{}, fmt.Errorf("invalid workspace %q: want project/workspace", s)
	}
	return modelcontext.Workspace{ProjectID: project, WorkspaceID: ws, GroupWorkspace: group}, nil
}
