// Package sdlc loads model data for workspaces and project revisions from
// an SDLC server. Upstream project versions a project depends on are
// resolved back through the resolver so they share its cache.
package sdlc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/remote"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

// Name identifies the loader.
const Name = "sdlc"

// store is the store name used in error messages.
const store = "project"

// Config configures the SDLC loader.
type Config struct {
	BaseURL string             `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration      `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	Retry   remote.RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// Loader implements loader.Loader for Workspace and ProjectRevision
// pointers.
type Loader struct {
	client   *remote.Client
	resolver loader.Resolver
	authz    loader.Authorizer
	logger   *telemetry.Logger
}

// upstream is one entry of a project's upstream dependency list.
type upstream struct {
	ProjectID string `json:"projectId"`
	VersionID string `json:"versionId"`
}

// NewProvider returns a loader.Provider building an SDLC loader from cfg.
func NewProvider(cfg Config) loader.Provider {
	return func(deps loader.Deps) (loader.Loader, error) {
		return New(cfg, deps)
	}
}

// New creates an SDLC loader.
func New(cfg Config, deps loader.Deps) (*Loader, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("%s loader requires a resolver", Name)
	}

	client, err := remote.NewClient(remote.Config{
		Name:    Name,
		Store:   store,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Retry:   cfg.Retry,
		Tracer:  deps.Tracer,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
		Events:  deps.Events,
	})
	if err != nil {
		return nil, err
	}

	authz := deps.Authorizer
	if authz == nil {
		authz = loader.AllowAll{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	return &Loader{
		client:   client,
		resolver: deps.Resolver,
		authz:    authz,
		logger:   logger.NewComponentLogger("loader." + Name),
	}, nil
}

// Name implements loader.Loader.
func (l *Loader) Name() string { return Name }

// Supports implements loader.Loader.
func (l *Loader) Supports(mctx modelcontext.Context) bool {
	s, ok := loader.SDLCOf(mctx)
	if !ok {
		return false
	}
	switch s.(type) {
	case modelcontext.Workspace, modelcontext.ProjectRevision:
		return true
	}
	return false
}

// ShouldCache implements loader.Loader. Only project revisions pinned to a
// concrete revision are immutable.
func (l *Loader) ShouldCache(ptr *modelcontext.Pointer) bool {
	rev, ok := ptr.SDLC.(modelcontext.ProjectRevision)
	return ok && !rev.IsHead()
}

// CacheKey implements loader.Loader.
func (l *Loader) CacheKey(_ context.Context, ptr *modelcontext.Pointer, id identity.Identity) (loader.Key, error) {
	switch s := ptr.SDLC.(type) {
	case modelcontext.ProjectRevision:
		return loader.Key(fmt.Sprintf("sdlc:%s:%s@%s", s.ProjectID, s.EffectiveRevision(), id.ScopeKey())), nil
	case modelcontext.Workspace:
		return loader.Key(fmt.Sprintf("sdlc:%s:%s@%s", s.ProjectID, s.String(), id.ScopeKey())), nil
	default:
		return "", fmt.Errorf("%s loader cannot key %s", Name, ptr)
	}
}

// target locates a pointer's entities and upstream list on the server.
type target struct {
	what      string
	entities  string
	upstreams string
}

func targetOf(ptr *modelcontext.Pointer) (target, error) {
	switch s := ptr.SDLC.(type) {
	case modelcontext.Workspace:
		kind := "workspaces"
		if s.GroupWorkspace {
			kind = "groupWorkspaces"
		}
		base := fmt.Sprintf("projects/%s/%s/%s", url.PathEscape(s.ProjectID), kind, url.PathEscape(s.WorkspaceID))
		return target{
			what:      "workspace " + s.String(),
			entities:  base + "/entities",
			upstreams: base + "/revisions/HEAD/upstreamProjects",
		}, nil

	case modelcontext.ProjectRevision:
		base := fmt.Sprintf("projects/%s/revisions/%s", url.PathEscape(s.ProjectID), url.PathEscape(s.EffectiveRevision()))
		return target{
			what:      "project " + s.String(),
			entities:  base + "/entities",
			upstreams: base + "/upstreamProjects",
		}, nil

	default:
		return target{}, fmt.Errorf("%s loader does not support %s", Name, ptr)
	}
}

// Load implements loader.Loader. The project's own entities come first,
// followed by each upstream version's data in list order.
func (l *Loader) Load(ctx context.Context, req loader.Request) (*model.Data, error) {
	ptr := req.Pointer
	t, err := targetOf(ptr)
	if err != nil {
		return nil, err
	}

	if err := l.authz.Authorize(ctx, req.Identity, ptr); err != nil {
		return nil, err
	}

	base := remote.Request{
		What:          t.what,
		Kind:          modelcontext.KindPointer,
		Identity:      req.Identity,
		ClientVersion: req.ClientVersion,
	}

	entitiesReq := base
	entitiesReq.Op = "sdlc.entities"
	entitiesReq.Path = t.entities
	var entities []remote.Entity
	if err := l.client.GetJSON(ctx, entitiesReq, &entities); err != nil {
		return nil, err
	}

	own, skipped, err := remote.DecodeEntities(entities, "sdlc:"+ptr.SDLC.String())
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", t.what, err)
	}
	if len(skipped) > 0 {
		telemetry.FromContext(ctx).Debugf("skipped %d unsupported entities of %s", len(skipped), t.what)
	}

	upstreamReq := base
	upstreamReq.Op = "sdlc.upstreams"
	upstreamReq.Path = t.upstreams
	var upstreams []upstream
	if err := l.client.GetJSON(ctx, upstreamReq, &upstreams); err != nil {
		return nil, err
	}

	deps := make([]*model.Data, 0, len(upstreams))
	for _, u := range upstreams {
		pv, err := u.projectVersion()
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", t.what, err)
		}
		data, err := l.resolver.ResolveData(ctx, &modelcontext.Pointer{SDLC: pv}, req.ClientVersion, req.Identity)
		if err != nil {
			return nil, err
		}
		deps = append(deps, data)
	}

	return model.CombineAll(own, deps...), nil
}

// projectVersion parses "group:artifact" plus the version id.
func (u upstream) projectVersion() (modelcontext.ProjectVersion, error) {
	group, artifact, ok := strings.Cut(u.ProjectID, ":")
	if !ok || group == "" || artifact == "" || u.VersionID == "" {
		return modelcontext.ProjectVersion{}, fmt.Errorf("invalid upstream project %q version %q", u.ProjectID, u.VersionID)
	}
	return modelcontext.ProjectVersion{GroupID: group, ArtifactID: artifact, Version: u.VersionID}, nil
}
