package model

import "fmt"

// Lambda is a typed expression evaluated against a compiled model.
//
// The body is a navigation expression rooted at one of the parameters,
// e.g. "$p.firm.name" for a parameter p of type "model::Person".
type Lambda struct {
	Parameters []Property `json:"parameters" yaml:"parameters" validate:"dive"`
	Body       string     `json:"body" yaml:"body" validate:"required"`
}

// TypeDescriptor is the static type of an expression.
type TypeDescriptor struct {
	// Path is the element path or primitive name (e.g. "String").
	Path string `json:"path" yaml:"path"`

	// Multiplicity is the lower..upper bound (e.g. "1", "0..1", "*").
	Multiplicity string `json:"multiplicity,omitempty" yaml:"multiplicity,omitempty"`
}

// String renders the descriptor as Path[Multiplicity].
func (t TypeDescriptor) String() string {
	if t.Multiplicity == "" {
		return t.Path
	}
	return fmt.Sprintf("%s[%s]", t.Path, t.Multiplicity)
}

// Primitive type names understood by the compiler.
var Primitives = map[string]bool{
	"String":     true,
	"Boolean":    true,
	"Integer":    true,
	"Float":      true,
	"Decimal":    true,
	"Number":     true,
	"Date":       true,
	"StrictDate": true,
	"DateTime":   true,
	"Any":        true,
}
