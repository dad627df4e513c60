package modelcontext

import (
	"github.com/openfroyo/modelresolver/pkg/model"
)

// Member is one leaf of a flattened combination: exactly one field is set.
type Member struct {
	Data    *model.Data
	Text    *Text
	Pointer *Pointer
}

// Flattened is a combination reduced to its leaves, split by kind.
type Flattened struct {
	// Concretes are the inline members (Data or Text) in encounter order.
	Concretes []Member

	// Pointers are the pointer members in encounter order.
	Pointers []*Pointer

	// Unsupported holds the kinds of members that are none of the above.
	Unsupported []string
}

// Flatten walks a combination depth first and collects its leaves, keeping
// the caller-supplied order within each list. Nil members, typed or not,
// contribute nothing.
func Flatten(c *Combination) Flattened {
	var out Flattened
	flattenInto(&out, c)
	return out
}

func flattenInto(out *Flattened, c *Combination) {
	if c == nil {
		return
	}
	for _, member := range c.Contexts {
		switch m := member.(type) {
		case *Combination:
			flattenInto(out, m)
		case *Pointer:
			if m != nil {
				out.Pointers = append(out.Pointers, m)
			}
		case *Data:
			if m != nil {
				out.Concretes = append(out.Concretes, Member{Data: m.Data})
			}
		case *Text:
			if m != nil {
				out.Concretes = append(out.Concretes, Member{Text: m})
			}
		case nil:
			continue
		default:
			out.Unsupported = append(out.Unsupported, member.Kind())
		}
	}
}

// IsEmpty reports whether the flattened combination has no content.
func (f Flattened) IsEmpty() bool {
	return len(f.Concretes) == 0 && len(f.Pointers) == 0
}
