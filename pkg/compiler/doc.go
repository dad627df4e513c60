// Package compiler is the default model compiler.
//
// Compile checks raw model data and produces an immutable *Model:
//
//   - every element passes struct validation (path, kind, property shape)
//   - element paths are unique
//   - every referenced type is a primitive or an element of the right kind
//   - class generalization is acyclic
//   - association ends refer to classes
//
// Relative element paths (no "::") are placed under Options.PackageOffset.
// When Options.Pool is set, elements are checked concurrently; failures are
// still reported in element order so results do not depend on scheduling.
//
// LambdaReturnType infers the static type of a navigation lambda such as
// "$p.firm.name" against a compiled model.
package compiler
