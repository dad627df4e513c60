package loader

import (
	"fmt"
	"sort"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
)

// Registry is an immutable set of loaders built once at start-up.
type Registry struct {
	loaders []Loader
}

// NewRegistry builds every provider with deps and validates the result.
// Duplicate loader names fail construction.
func NewRegistry(deps Deps, providers ...Provider) (*Registry, error) {
	seen := make(map[string]bool, len(providers))
	loaders := make([]Loader, 0, len(providers))

	for i, provide := range providers {
		if provide == nil {
			return nil, fmt.Errorf("loader provider %d is nil", i)
		}

		l, err := provide(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to build loader provider %d: %w", i, err)
		}

		name := l.Name()
		if name == "" {
			return nil, fmt.Errorf("loader provider %d returned a loader without a name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("loader %q registered more than once", name)
		}
		seen[name] = true
		loaders = append(loaders, l)
	}

	return &Registry{loaders: loaders}, nil
}

// Select returns the single loader supporting mctx.
func (r *Registry) Select(mctx modelcontext.Context) (Loader, error) {
	var matches []Loader
	for _, l := range r.loaders {
		if l.Supports(mctx) {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, failure.LoaderNotFound(describe(mctx))
	default:
		names := make([]string, len(matches))
		for i, l := range matches {
			names[i] = l.Name()
		}
		sort.Strings(names)
		return nil, failure.AmbiguousLoader(describe(mctx), names)
	}
}

// Names returns the registered loader names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.loaders))
	for i, l := range r.loaders {
		names[i] = l.Name()
	}
	return names
}

func describe(mctx modelcontext.Context) string {
	if ptr, ok := mctx.(*modelcontext.Pointer); ok {
		return ptr.String()
	}
	if mctx == nil {
		return "<nil>"
	}
	return mctx.Kind()
}
