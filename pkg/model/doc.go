// Package model defines the uncompiled representation of a semantic model.
//
// A model is an ordered collection of elements (classes, enumerations,
// associations, functions) addressed by their fully qualified path, for
// example "pkg::pkg::myClass". Data values are produced by loaders and by
// the grammar parser and are consumed by the compiler.
//
// # Combination
//
// Several Data values are merged with Combine, a left-fold concatenation:
//
//	merged := model.Combine(workspace, upstream)
//
// Combine never deduplicates. Conflicting or duplicate elements are only
// reported later by the compiler, which sees the merged element order.
//
// # Sharing
//
// Data values returned from a resolver may be held by its cache and handed
// to many callers at once. They must be treated as immutable: Combine always
// allocates a new value and never writes to its inputs.
package model
