// Package modelcontext describes where a model comes from.
//
// A Context is one of:
//
//   - *Pointer: a reference into a versioned project or workspace store
//   - *Data: inline, already parsed model data
//   - *Text: inline model text to be parsed
//   - *Combination: an ordered list of contexts, possibly nested
//
// The set of variants is closed: Context has an unexported marker method,
// so only this package can add kinds. Consumers switch on the concrete type
// and keep a default branch that reports an unsupported kind.
package modelcontext

import (
	"github.com/openfroyo/modelresolver/pkg/model"
)

// Kind names used in errors, spans and metrics.
const (
	KindPointer     = "Pointer"
	KindData        = "Data"
	KindText        = "Text"
	KindCombination = "Combination"
)

// Context describes a model source. Values are immutable once built.
type Context interface {
	// Kind returns the variant name.
	Kind() string

	isContext()
}

// Pointer references a model held by a versioned store.
type Pointer struct {
	// SDLC identifies the store and the resource within it.
	SDLC SDLC
}

// Data carries inline model data. The resolver returns the same *model.Data
// it was given.
type Data struct {
	Data *model.Data
}

// Text carries inline model text in the grammar understood by the parser.
type Text struct {
	Text string
}

// Combination is an ordered list of contexts. Later members may refer to
// elements defined by earlier members once compiled.
type Combination struct {
	Contexts []Context
}

// Kind implements Context.
func (*Pointer) Kind() string { return KindPointer }

// Kind implements Context.
func (*Data) Kind() string { return KindData }

// Kind implements Context.
func (*Text) Kind() string { return KindText }

// Kind implements Context.
func (*Combination) Kind() string { return KindCombination }

func (*Pointer) isContext()     {}
func (*Data) isContext()        {}
func (*Text) isContext()        {}
func (*Combination) isContext() {}

// NewPointer creates a pointer context.
func NewPointer(sdlc SDLC) *Pointer {
	return &Pointer{SDLC: sdlc}
}

// NewData creates an inline data context.
func NewData(d *model.Data) *Data {
	return &Data{Data: d}
}

// NewText creates an inline text context.
func NewText(text string) *Text {
	return &Text{Text: text}
}

// Combine creates a combination of the given contexts.
func Combine(contexts ...Context) *Combination {
	return &Combination{Contexts: contexts}
}

// String describes the pointer for logs and errors.
func (p *Pointer) String() string {
	if p == nil || p.SDLC == nil {
		return "pointer(<nil>)"
	}
	return "pointer(" + p.SDLC.String() + ")"
}
