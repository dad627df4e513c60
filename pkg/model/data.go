package model

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// Data is raw, uncompiled model data: an ordered list of elements plus
// optional provenance.
type Data struct {
	// Elements are the packageable elements in encounter order.
	Elements []Element `json:"elements" yaml:"elements" validate:"dive"`

	// Provenance records where the data came from, if known.
	Provenance *Provenance `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// Provenance describes the origin of model data.
type Provenance struct {
	// Origin names the store or source that produced the data
	// (e.g. "sdlc:project-1:workspace-a", "inline").
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`

	// Serializer is the serialization hint of the producer
	// (e.g. "json", "cue").
	Serializer string `json:"serializer,omitempty" yaml:"serializer,omitempty"`
}

// NewData creates model data from the given elements.
func NewData(elements ...Element) *Data {
	return &Data{Elements: elements}
}

// WithProvenance returns a shallow copy of d carrying the given provenance.
func (d *Data) WithProvenance(origin, serializer string) *Data {
	out := &Data{Provenance: &Provenance{Origin: origin, Serializer: serializer}}
	if d != nil {
		out.Elements = d.Elements
	}
	return out
}

// Len returns the number of elements. A nil Data has no elements.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Elements)
}

// Paths returns the element paths in encounter order.
func (d *Data) Paths() []string {
	if d == nil {
		return nil
	}
	paths := make([]string, len(d.Elements))
	for i := range d.Elements {
		paths[i] = d.Elements[i].Path
	}
	return paths
}

// Find returns the first element with the given path.
func (d *Data) Find(path string) (Element, bool) {
	if d == nil {
		return Element{}, false
	}
	for i := range d.Elements {
		if d.Elements[i].Path == path {
			return d.Elements[i], true
		}
	}
	return Element{}, false
}

// Fingerprint returns a hex blake3 digest of the canonical JSON encoding.
func (d *Data) Fingerprint() (string, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Combine concatenates the elements of b after those of a into a new Data.
// Neither input is modified. The result keeps a's provenance, since a is
// the base of the fold. A nil input is treated as empty.
func Combine(a, b *Data) *Data {
	out := &Data{
		Elements: make([]Element, 0, a.Len()+b.Len()),
	}
	if a != nil {
		out.Elements = append(out.Elements, a.Elements...)
		out.Provenance = a.Provenance
	}
	if b != nil {
		out.Elements = append(out.Elements, b.Elements...)
		if out.Provenance == nil {
			out.Provenance = b.Provenance
		}
	}
	return out
}

// CombineAll left-folds Combine over first and rest, in order.
func CombineAll(first *Data, rest ...*Data) *Data {
	acc := first
	for _, next := range rest {
		acc = Combine(acc, next)
	}
	if acc == first && first != nil {
		return first
	}
	return acc
}
