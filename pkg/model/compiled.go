package model

// Compiled is a compiled, type-checked model. Implementations are immutable
// and safe for concurrent use.
type Compiled interface {
	// Len returns the number of elements in the model.
	Len() int

	// Lookup returns the element with the given fully qualified path.
	Lookup(path string) (Element, bool)
}
