// Package archive loads project versions from the local SQLite archive and
// imports model documents into it.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/stores"
)

// Name identifies the loader.
const Name = "archive"

// Loader implements loader.Loader for ArchivedVersion pointers.
type Loader struct {
	store stores.Store
	authz loader.Authorizer
}

// NewProvider returns a loader.Provider reading from store.
func NewProvider(store stores.Store) loader.Provider {
	return func(deps loader.Deps) (loader.Loader, error) {
		return New(store, deps)
	}
}

// New creates an archive loader.
func New(store stores.Store, deps loader.Deps) (*Loader, error) {
	if store == nil {
		return nil, fmt.Errorf("%s loader requires a store", Name)
	}
	authz := deps.Authorizer
	if authz == nil {
		authz = loader.AllowAll{}
	}
	return &Loader{store: store, authz: authz}, nil
}

// Name implements loader.Loader.
func (l *Loader) Name() string { return Name }

// Supports implements loader.Loader.
func (l *Loader) Supports(mctx modelcontext.Context) bool {
	s, ok := loader.SDLCOf(mctx)
	if !ok {
		return false
	}
	_, ok = s.(modelcontext.ArchivedVersion)
	return ok
}

// ShouldCache implements loader.Loader. Archived versions never change in
// place without an explicit overwrite.
func (l *Loader) ShouldCache(*modelcontext.Pointer) bool { return true }

// CacheKey implements loader.Loader.
func (l *Loader) CacheKey(_ context.Context, ptr *modelcontext.Pointer, id identity.Identity) (loader.Key, error) {
	av, ok := ptr.SDLC.(modelcontext.ArchivedVersion)
	if !ok {
		return "", fmt.Errorf("%s loader cannot key %s", Name, ptr)
	}
	return loader.Key(fmt.Sprintf("archive:%s:%s@%s", av.Name, av.Version, id.ScopeKey())), nil
}

// Load implements loader.Loader. The stored document is verified against
// its checksum before it is decoded.
func (l *Loader) Load(ctx context.Context, req loader.Request) (*model.Data, error) {
	av, ok := req.Pointer.SDLC.(modelcontext.ArchivedVersion)
	if !ok {
		return nil, fmt.Errorf("%s loader does not support %s", Name, req.Pointer)
	}

	if err := l.authz.Authorize(ctx, req.Identity, req.Pointer); err != nil {
		return nil, err
	}

	stored, err := l.store.Get(ctx, av.Name, av.Version)
	if errors.Is(err, stores.ErrNotFound) {
		return nil, failure.RemoteHard(
			fmt.Sprintf("Error loading archived version %s: not found in the archive", av), err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading archived version %s: %w", av, err)
	}

	if err := stored.Verify(); err != nil {
		return nil, failure.Integrity(fmt.Sprintf("archived version %s failed verification", av), err)
	}

	var data model.Data
	if err := json.Unmarshal(stored.Document, &data); err != nil {
		return nil, failure.Integrity(fmt.Sprintf("archived version %s is not a model document", av), err)
	}

	origin := "archive:" + av.String()
	if stored.Origin != "" {
		origin = stored.Origin
	}
	return data.WithProvenance(origin, "json"), nil
}
