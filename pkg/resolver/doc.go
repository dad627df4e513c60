// Package resolver turns model contexts into compiled models.
//
// A Manager dispatches on the context kind:
//
//   - Pointer: load through the single loader that supports it, caching
//     raw data and the compiled model under the loader's normalized key
//   - Data: compile the given data as is
//   - Text: parse, then compile
//   - Combination: flatten, merge pointer data first and inline data after,
//     then compile; the merged result is never cached
//
// Both cache tiers are single-flight: concurrent requests for the same key
// share one load or one compilation. Failures are returned to every waiter
// and never cached.
//
// Loaders that depend on other projects call back into the Manager through
// loader.Resolver, so upstream versions are served from the raw data tier.
package resolver
