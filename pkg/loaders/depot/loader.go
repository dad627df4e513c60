// Package depot loads published project versions from a depot server.
// The depot serves a version's entities with its transitive dependencies
// already flattened, so the loader never recurses.
package depot

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
const Name = "depot"

// Config configures the depot loader.
type Config struct {
	BaseURL string             `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration      `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	Retry   remote.RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// Loader implements loader.Loader for ProjectVersion pointers.
type Loader struct {
	client *remote.Client
	authz  loader.Authorizer
}

// versionInfo is the depot's description of a resolved version.
type versionInfo struct {
	GroupID    string `json:"groupId"`
	ArtifactID string `json:"artifactId"`
	VersionID  string `json:"versionId"`
}

// NewProvider returns a loader.Provider building a depot loader from cfg.
func NewProvider(cfg Config) loader.Provider {
	return func(deps loader.Deps) (loader.Loader, error) {
		return New(cfg, deps)
	}
}

// New creates a depot loader.
func New(cfg Config, deps loader.Deps) (*Loader, error) {
	client, err := remote.NewClient(remote.Config{
		Name:    Name,
		Store:   Name,
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
	return &Loader{client: client, authz: authz}, nil
}

// Name implements loader.Loader.
func (l *Loader) Name() string { return Name }

// Supports implements loader.Loader.
func (l *Loader) Supports(mctx modelcontext.Context) bool {
	s, ok := loader.SDLCOf(mctx)
	if !ok {
		return false
	}
	_, ok = s.(modelcontext.ProjectVersion)
	return ok
}

// ShouldCache implements loader.Loader. Snapshot versions may be
// republished and are never cached.
func (l *Loader) ShouldCache(ptr *modelcontext.Pointer) bool {
	pv, ok := ptr.SDLC.(modelcontext.ProjectVersion)
	return ok && !pv.IsSnapshot()
}

// CacheKey implements loader.Loader. "latest" is resolved against the
// depot so it shares entries with the concrete version it denotes.
func (l *Loader) CacheKey(ctx context.Context, ptr *modelcontext.Pointer, id identity.Identity) (loader.Key, error) {
	pv, ok := ptr.SDLC.(modelcontext.ProjectVersion)
	if !ok {
		return "", fmt.Errorf("%s loader cannot key %s", Name, ptr)
	}

	version, err := l.resolveVersion(ctx, pv, id)
	if err != nil {
		return "", err
	}
	return loader.Key(fmt.Sprintf("depot:%s:%s:%s@%s",
		strings.ToLower(pv.GroupID), strings.ToLower(pv.ArtifactID), version, id.ScopeKey())), nil
}

// Load implements loader.Loader.
func (l *Loader) Load(ctx context.Context, req loader.Request) (*model.Data, error) {
	pv, ok := req.Pointer.SDLC.(modelcontext.ProjectVersion)
	if !ok {
		return nil, fmt.Errorf("%s loader does not support %s", Name, req.Pointer)
	}

	if err := l.authz.Authorize(ctx, req.Identity, req.Pointer); err != nil {
		return nil, err
	}

	version, err := l.resolveVersion(ctx, pv, req.Identity)
	if err != nil {
		return nil, err
	}
	resolved := pv
	resolved.Version = version

	var entities []remote.Entity
	err = l.client.GetJSON(ctx, remote.Request{
		Op:            "depot.entities",
		What:          "project " + resolved.String(),
		Path:          versionPath(pv, version) + "/entities",
		Query:         url.Values{"includeDependencies": []string{"true"}},
		Kind:          modelcontext.KindPointer,
		Identity:      req.Identity,
		ClientVersion: req.ClientVersion,
	}, &entities)
	if err != nil {
		return nil, err
	}

	data, skipped, err := remote.DecodeEntities(entities, "depot:"+resolved.String())
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", resolved, err)
	}
	if len(skipped) > 0 {
		telemetry.FromContext(ctx).Debugf("skipped %d unsupported entities of %s", len(skipped), resolved)
	}
	return data, nil
}

// resolveVersion returns the concrete version of pv, asking the depot when
// pv is "latest".
func (l *Loader) resolveVersion(ctx context.Context, pv modelcontext.ProjectVersion, id identity.Identity) (string, error) {
	if !pv.IsLatest() {
		return pv.Version, nil
	}

	var info versionInfo
	err := l.client.GetJSON(ctx, remote.Request{
		Op:       "depot.latest",
		What:     "latest version of " + pv.Coordinates(),
		Path:     versionPath(pv, modelcontext.VersionLatest),
		Kind:     modelcontext.KindPointer,
		Identity: id,
	}, &info)
	if err != nil {
		return "", err
	}
	if info.VersionID == "" {
		return "", fmt.Errorf("depot returned no version for latest of %s", pv.Coordinates())
	}
	return info.VersionID, nil
}

func versionPath(pv modelcontext.ProjectVersion, version string) string {
	return fmt.Sprintf("projects/%s/%s/versions/%s",
		url.PathEscape(pv.GroupID), url.PathEscape(pv.ArtifactID), url.PathEscape(version))
}
