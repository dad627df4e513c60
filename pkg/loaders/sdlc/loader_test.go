package sdlc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/modelresolver/pkg/compiler"
	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/grammar"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/loaders/depot"
	"github.com/openfroyo/modelresolver/pkg/loaders/sdlc"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/remote"
	"github.com/openfroyo/modelresolver/pkg/resolver"
)

type upstream struct {
	ProjectID string `json:"projectId"`
	VersionID string `json:"versionId"`
}

// fakeServer serves both the SDLC and the depot API.
type fakeServer struct {
	workspace  []model.Element
	upstreams  []upstream
	depot      map[string][]model.Element
	entityCode int

	sdlcCalls  atomic.Int32
	depotCalls atomic.Int32
	lastPath   atomic.Value
	clientVer  atomic.Value
}

func writeEntities(t *testing.T, w http.ResponseWriter, elements []model.Element) {
	entities, err := remote.EncodeEntities(model.NewData(elements...))
	require.NoError(t, err)
	_ = json.NewEncoder(w).Encode(entities)
}

func (f *fakeServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	entities := func(w http.ResponseWriter, r *http.Request) {
		f.sdlcCalls.Add(1)
		f.lastPath.Store(r.URL.Path)
		f.clientVer.Store(r.Header.Get(remote.ClientVersionHeader))
		if f.entityCode != 0 {
			w.WriteHeader(f.entityCode)
			return
		}
		writeEntities(t, w, f.workspace)
	}
	upstreams := func(w http.ResponseWriter, r *http.Request) {
		f.sdlcCalls.Add(1)
		_ = json.NewEncoder(w).Encode(f.upstreams)
	}

	mux.HandleFunc("GET /sdlc/projects/{p}/workspaces/{w}/entities", entities)
	mux.HandleFunc("GET /sdlc/projects/{p}/groupWorkspaces/{w}/entities", entities)
	mux.HandleFunc("GET /sdlc/projects/{p}/workspaces/{w}/revisions/HEAD/upstreamProjects", upstreams)
	mux.HandleFunc("GET /sdlc/projects/{p}/groupWorkspaces/{w}/revisions/HEAD/upstreamProjects", upstreams)
	mux.HandleFunc("GET /sdlc/projects/{p}/revisions/{r}/entities", entities)
	mux.HandleFunc("GET /sdlc/projects/{p}/revisions/{r}/upstreamProjects", upstreams)

	mux.HandleFunc("GET /depot/projects/{g}/{a}/versions/{v}/entities", func(w http.ResponseWriter, r *http.Request) {
		f.depotCalls.Add(1)
		key := r.PathValue("g") + ":" + r.PathValue("a") + ":" + r.PathValue("v")
		elements, ok := f.depot[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeEntities(t, w, elements)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, srv *httptest.Server) *resolver.Manager {
	t.Helper()
	retry := remote.RetryConfig{InitialInterval: time.Millisecond}
	m, err := resolver.New(resolver.Options{}, compiler.New(), grammar.NewParser(),
		sdlc.NewProvider(sdlc.Config{BaseURL: srv.URL + "/sdlc", Retry: retry}),
		depot.NewProvider(depot.Config{BaseURL: srv.URL + "/depot", Retry: retry}),
	)
	require.NoError(t, err)
	return m
}

func workspace() *modelcontext.Pointer {
	return &modelcontext.Pointer{SDLC: modelcontext.Workspace{ProjectID: "PROD-1", WorkspaceID: "ws"}}
}

func revision(rev string) *modelcontext.Pointer {
	return &modelcontext.Pointer{SDLC: modelcontext.ProjectRevision{ProjectID: "PROD-1", Revision: rev}}
}

func TestWorkspaceWithoutUpstreams(t *testing.T) {
	f := &fakeServer{
		workspace: []model.Element{{Path: "pkg::pkg::myClass", Kind: model.KindClass}},
		upstreams: []upstream{},
	}
	m := newManager(t, f.start(t))

	data, err := m.ResolveData(context.Background(), workspace(), "v1_0_0", identity.New("alice"))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]string{"pkg::pkg::myClass"}, data.Paths()))
	assert.Equal(t, "/sdlc/projects/PROD-1/workspaces/ws/entities", f.lastPath.Load())
	assert.Equal(t, "v1_0_0", f.clientVer.Load())
	assert.Zero(t, f.depotCalls.Load())
}

func TestWorkspaceWithUpstream(t *testing.T) {
	f := &fakeServer{
		workspace: []model.Element{{Path: "pkg::pkg::myAnotherClass", Kind: model.KindClass}},
		upstreams: []upstream{{ProjectID: "org.finos:base", VersionID: "1.0.0"}},
		depot: map[string][]model.Element{
			"org.finos:base:1.0.0": {{Path: "pkg::pkg::myClass", Kind: model.KindClass}},
		},
	}
	m := newManager(t, f.start(t))
	ctx := context.Background()
	alice := identity.New("alice")

	data, err := m.ResolveData(ctx, workspace(), "", alice)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]string{"pkg::pkg::myAnotherClass", "pkg::pkg::myClass"}, data.Paths()))

	t.Run("workspaces are refetched but upstream versions are cached", func(t *testing.T) {
		_, err := m.ResolveData(ctx, workspace(), "", alice)
		require.NoError(t, err)
		assert.Equal(t, int32(4), f.sdlcCalls.Load())
		assert.Equal(t, int32(1), f.depotCalls.Load())
	})

	t.Run("compiles across the upstream", func(t *testing.T) {
		compiled, err := m.ResolveModel(ctx, workspace(), "", alice, "")
		require.NoError(t, err)
		assert.Equal(t, 2, compiled.Len())
	})
}

func TestGroupWorkspace(t *testing.T) {
	f := &fakeServer{upstreams: []upstream{}}
	m := newManager(t, f.start(t))

	ptr := &modelcontext.Pointer{SDLC: modelcontext.Workspace{ProjectID: "PROD-1", WorkspaceID: "shared", GroupWorkspace: true}}
	_, err := m.ResolveData(context.Background(), ptr, "", identity.New("alice"))
	require.NoError(t, err)
	assert.Equal(t, "/sdlc/projects/PROD-1/groupWorkspaces/shared/entities", f.lastPath.Load())
}

func TestWorkspaceBadRequestIsHard(t *testing.T) {
	f := &fakeServer{entityCode: http.StatusBadRequest}
	m := newManager(t, f.start(t))

	_, err := m.ResolveData(context.Background(), workspace(), "", identity.New("alice"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRemoteHard))
	assert.Contains(t, err.Error(), "Error loading workspace PROD-1/workspace/ws: unable to load information from the project SDLC using")
	assert.Equal(t, int32(1), f.sdlcCalls.Load())
}

func TestMissingUpstreamFailsTheWorkspace(t *testing.T) {
	f := &fakeServer{
		upstreams: []upstream{{ProjectID: "org.finos:gone", VersionID: "1.0.0"}},
		depot:     map[string][]model.Element{},
	}
	m := newManager(t, f.start(t))

	_, err := m.ResolveData(context.Background(), workspace(), "", identity.New("alice"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRemoteHard))
}

func TestRevisionCaching(t *testing.T) {
	f := &fakeServer{
		workspace: []model.Element{{Path: "a::A", Kind: model.KindClass}},
		upstreams: []upstream{},
	}
	m := newManager(t, f.start(t))
	ctx := context.Background()
	alice := identity.New("alice")

	for i := 0; i < 2; i++ {
		_, err := m.ResolveData(ctx, revision("abc123"), "", alice)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.sdlcCalls.Load(), "pinned revisions are fetched once")
	assert.Equal(t, "/sdlc/projects/PROD-1/revisions/abc123/entities", f.lastPath.Load())

	for i := 0; i < 2; i++ {
		_, err := m.ResolveData(ctx, revision(""), "", alice)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(6), f.sdlcCalls.Load(), "HEAD is never cached")
	assert.Equal(t, "/sdlc/projects/PROD-1/revisions/HEAD/entities", f.lastPath.Load())
}

func TestLoaderContract(t *testing.T) {
	l, err := sdlc.New(sdlc.Config{BaseURL: "http://sdlc.invalid"}, loader.Deps{Resolver: stubResolver{}})
	require.NoError(t, err)

	assert.True(t, l.Supports(workspace()))
	assert.True(t, l.Supports(revision("1")))
	assert.False(t, l.Supports(&modelcontext.Pointer{SDLC: modelcontext.ProjectVersion{GroupID: "g", ArtifactID: "a", Version: "1"}}))

	assert.False(t, l.ShouldCache(workspace()))
	assert.False(t, l.ShouldCache(revision("")))
	assert.False(t, l.ShouldCache(revision("head")))
	assert.True(t, l.ShouldCache(revision("abc123")))

	key, err := l.CacheKey(context.Background(), revision("abc123"), identity.New("alice"))
	require.NoError(t, err)
	assert.Equal(t, loader.Key("sdlc:PROD-1:abc123@alice"), key)

	_, err = sdlc.New(sdlc.Config{BaseURL: "http://sdlc.invalid"}, loader.Deps{})
	assert.Error(t, err)
}

type stubResolver struct{}

func (stubResolver) ResolveData(context.Context, modelcontext.Context, string, identity.Identity) (*model.Data, error) {
	return model.NewData(), nil
}
