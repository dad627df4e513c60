// Package loader defines the contract between the resolver and the
// strategies that fetch raw model data for pointer contexts.
//
// Loaders are plugged in through Providers. The resolver builds an
// immutable Registry from a static provider list at start-up and selects
// exactly one loader per pointer.
package loader

import (
	"context"

	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Key is a normalized, identity-scoped cache key.
type Key string

// Request describes a single load.
type Request struct {
	// Identity is the calling principal.
	Identity identity.Identity

	// Pointer is the resource to load.
	Pointer *modelcontext.Pointer

	// ClientVersion is the model protocol version requested by the caller.
	ClientVersion string
}

// Loader fetches raw model data for the pointer contexts it supports.
// Trace context travels in the context.Context passed to Load.
type Loader interface {
	// Name identifies the loader in logs, metrics and registry errors.
	Name() string

	// Supports reports whether this loader handles the context.
	Supports(mctx modelcontext.Context) bool

	// Load fetches the data. Remote failures are reported as
	// failure.RemoteTransient or failure.RemoteHard.
	Load(ctx context.Context, req Request) (*model.Data, error)

	// ShouldCache reports whether the pointer denotes immutable content.
	ShouldCache(ptr *modelcontext.Pointer) bool

	// CacheKey derives the normalized key for the pointer and principal.
	// Pointers denoting the same effective resource yield equal keys.
	CacheKey(ctx context.Context, ptr *modelcontext.Pointer, id identity.Identity) (Key, error)
}

// Resolver resolves contexts to raw data through the shared cache. Loaders
// that depend on other projects call back into it so upstream versions are
// fetched at most once.
type Resolver interface {
	ResolveData(ctx context.Context, mctx modelcontext.Context, clientVersion string, id identity.Identity) (*model.Data, error)
}

// Authorizer decides whether a principal may load a pointer.
type Authorizer interface {
	Authorize(ctx context.Context, id identity.Identity, ptr *modelcontext.Pointer) error
}

// AllowAll is an Authorizer that permits every load.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, identity.Identity, *modelcontext.Pointer) error {
	return nil
}

// Deps are the shared collaborators handed to every Provider.
type Deps struct {
	Resolver   Resolver
	Authorizer Authorizer
	Logger     *telemetry.Logger
	Tracer     trace.Tracer
	Metrics    *telemetry.Metrics
	Events     *telemetry.EventPublisher
}

// Provider constructs a loader from the shared dependencies.
type Provider func(deps Deps) (Loader, error)

// SDLCOf returns the SDLC descriptor of a pointer context, if any.
func SDLCOf(mctx modelcontext.Context) (modelcontext.SDLC, bool) {
	ptr, ok := mctx.(*modelcontext.Pointer)
	if !ok || ptr == nil || ptr.SDLC == nil {
		return nil, false
	}
	return ptr.SDLC, true
}
