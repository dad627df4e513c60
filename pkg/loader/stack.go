package loader

import (
	"context"

	"github.com/openfroyo/modelresolver/pkg/failure"
)

type stackKey struct{}

// Enter records resource on the resolution stack carried by ctx. It fails
// with failure.DependencyCycle if resource is already being resolved
// further up the same chain.
func Enter(ctx context.Context, resource string) (context.Context, error) {
	stack, _ := ctx.Value(stackKey{}).([]string)
	for _, r := range stack {
		if r == resource {
			chain := append(append([]string(nil), stack...), resource)
			return ctx, failure.DependencyCycle(chain)
		}
	}

	next := make([]string, len(stack), len(stack)+1)
	copy(next, stack)
	next = append(next, resource)
	return context.WithValue(ctx, stackKey{}, next), nil
}

// Stack returns the resources currently being resolved, outermost first.
func Stack(ctx context.Context) []string {
	stack, _ := ctx.Value(stackKey{}).([]string)
	return append([]string(nil), stack...)
}
