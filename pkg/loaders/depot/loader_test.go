package depot

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

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/remote"
)

type fakeDepot struct {
	versions map[string][]model.Element
	latest   string
	status   int

	entityCalls atomic.Int32
	latestCalls atomic.Int32
	query       atomic.Value
}

func (f *fakeDepot) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects/{group}/{artifact}/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		f.latestCalls.Add(1)
		_ = json.NewEncoder(w).Encode(versionInfo{
			GroupID:    r.PathValue("group"),
			ArtifactID: r.PathValue("artifact"),
			VersionID:  f.latest,
		})
	})
	mux.HandleFunc("GET /projects/{group}/{artifact}/versions/{version}/entities", func(w http.ResponseWriter, r *http.Request) {
		f.entityCalls.Add(1)
		f.query.Store(r.URL.RawQuery)
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		elements, ok := f.versions[r.PathValue("version")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		entities, err := remote.EncodeEntities(model.NewData(elements...))
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(entities)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newLoader(t *testing.T, baseURL string, authz loader.Authorizer) *Loader {
	t.Helper()
	l, err := New(Config{
		BaseURL: baseURL,
		Retry:   remote.RetryConfig{InitialInterval: time.Millisecond},
	}, loader.Deps{Authorizer: authz})
	require.NoError(t, err)
	return l
}

func pointer(version string) *modelcontext.Pointer {
	return &modelcontext.Pointer{SDLC: modelcontext.ProjectVersion{GroupID: "org.Finos", ArtifactID: "Model", Version: version}}
}

func TestSupports(t *testing.T) {
	l := newLoader(t, "http://depot.invalid", nil)

	assert.True(t, l.Supports(pointer("1.0.0")))
	assert.False(t, l.Supports(&modelcontext.Pointer{SDLC: modelcontext.Workspace{ProjectID: "p", WorkspaceID: "w"}}))
	assert.False(t, l.Supports(&modelcontext.Text{Text: "x"}))
	assert.False(t, l.Supports(&modelcontext.Pointer{}))
}

func TestShouldCache(t *testing.T) {
	l := newLoader(t, "http://depot.invalid", nil)

	assert.True(t, l.ShouldCache(pointer("1.0.0")))
	assert.True(t, l.ShouldCache(pointer("latest")))
	assert.False(t, l.ShouldCache(pointer("1.1.0-SNAPSHOT")))
}

func TestCacheKey(t *testing.T) {
	ctx := context.Background()
	depot := &fakeDepot{latest: "2.3.0"}
	l := newLoader(t, depot.server(t).URL, nil)
	alice := identity.New("alice")

	key, err := l.CacheKey(ctx, pointer("1.0.0"), alice)
	require.NoError(t, err)
	assert.Equal(t, loader.Key("depot:org.finos:model:1.0.0@alice"), key)
	assert.Zero(t, depot.latestCalls.Load())

	t.Run("latest shares the concrete version key", func(t *testing.T) {
		latest, err := l.CacheKey(ctx, pointer("LATEST"), alice)
		require.NoError(t, err)
		concrete, err := l.CacheKey(ctx, pointer("2.3.0"), alice)
		require.NoError(t, err)
		assert.Equal(t, concrete, latest)
		assert.Equal(t, int32(1), depot.latestCalls.Load())
	})

	t.Run("scoped by identity", func(t *testing.T) {
		bob, err := l.CacheKey(ctx, pointer("1.0.0"), identity.New("bob"))
		require.NoError(t, err)
		assert.NotEqual(t, key, bob)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	depot := &fakeDepot{
		latest: "2.0.0",
		versions: map[string][]model.Element{
			"1.0.0": {
				{Path: "org::finos::Trade", Kind: model.KindClass},
				{Path: "org::finos::Side", Kind: model.KindEnumeration, Values: []string{"BUY", "SELL"}},
			},
			"2.0.0": {
				{Path: "org::finos::Trade", Kind: model.KindClass},
			},
		},
	}
	l := newLoader(t, depot.server(t).URL, nil)

	data, err := l.Load(ctx, loader.Request{Identity: identity.New("alice"), Pointer: pointer("1.0.0")})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]string{"org::finos::Trade", "org::finos::Side"}, data.Paths()))
	assert.Equal(t, "includeDependencies=true", depot.query.Load())
	assert.Equal(t, "depot:org.Finos:Model:1.0.0", data.Provenance.Origin)

	side, ok := data.Find("org::finos::Side")
	require.True(t, ok)
	assert.Equal(t, []string{"BUY", "SELL"}, side.Values)

	latest, err := l.Load(ctx, loader.Request{Identity: identity.New("alice"), Pointer: pointer("latest")})
	require.NoError(t, err)
	assert.Equal(t, "depot:org.Finos:Model:2.0.0", latest.Provenance.Origin)
}

func TestLoadUnknownVersionIsHard(t *testing.T) {
	depot := &fakeDepot{versions: map[string][]model.Element{}}
	l := newLoader(t, depot.server(t).URL, nil)

	_, err := l.Load(context.Background(), loader.Request{Pointer: pointer("9.9.9")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRemoteHard))
	assert.Contains(t, err.Error(), "Error loading project org.Finos:Model:9.9.9: unable to load information from the depot SDLC using")
	assert.Contains(t, err.Error(), "(status 404)")
	assert.Equal(t, int32(1), depot.entityCalls.Load())
}

func TestLoadRetriesServerErrors(t *testing.T) {
	depot := &fakeDepot{status: http.StatusBadGateway}
	l := newLoader(t, depot.server(t).URL, nil)

	_, err := l.Load(context.Background(), loader.Request{Pointer: pointer("1.0.0")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRemoteTransient))
	assert.Equal(t, int32(remote.MinAttempts), depot.entityCalls.Load())
}

type denyAll struct{}

func (denyAll) Authorize(_ context.Context, id identity.Identity, ptr *modelcontext.Pointer) error {
	return failure.Unauthorized(id.Name, ptr.String(), "")
}

func TestLoadAuthorizesBeforeFetching(t *testing.T) {
	depot := &fakeDepot{}
	l := newLoader(t, depot.server(t).URL, denyAll{})

	_, err := l.Load(context.Background(), loader.Request{Identity: identity.New("eve"), Pointer: pointer("1.0.0")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrUnauthorized))
	assert.Zero(t, depot.entityCalls.Load())
}
