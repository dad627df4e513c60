package remote

import (
	"encoding/json"
	"fmt"

	"github.com/openfroyo/modelresolver/pkg/model"
)

// Classifier paths of the entity kinds understood by the resolver.
const (
	ClassifierClass       = "meta::pure::metamodel::type::Class"
	ClassifierEnumeration = "meta::pure::metamodel::type::Enumeration"
	ClassifierAssociation = "meta::pure::metamodel::relationship::Association"
	ClassifierFunction    = "meta::pure::metamodel::function::ConcreteFunctionDefinition"
	ClassifierProfile     = "meta::pure::metamodel::extension::Profile"
)

var classifierKinds = map[string]model.ElementKind{
	ClassifierClass:       model.KindClass,
	ClassifierEnumeration: model.KindEnumeration,
	ClassifierAssociation: model.KindAssociation,
	ClassifierFunction:    model.KindFunction,
	ClassifierProfile:     model.KindProfile,
}

// Entity is a stored model element as served by the SDLC and depot APIs.
type Entity struct {
	Path           string          `json:"path"`
	ClassifierPath string          `json:"classifierPath"`
	Content        json.RawMessage `json:"content"`
}

// ClassifierFor returns the classifier path of an element kind.
func ClassifierFor(kind model.ElementKind) string {
	for classifier, k := range classifierKinds {
		if k == kind {
			return classifier
		}
	}
	return ""
}

// DecodeEntities converts entities into model data, preserving order.
// Entities with classifiers the resolver does not model are skipped and
// reported by path.
func DecodeEntities(entities []Entity, origin string) (*model.Data, []string, error) {
	elements := make([]model.Element, 0, len(entities))
	var skipped []string

	for _, e := range entities {
		kind, ok := classifierKinds[e.ClassifierPath]
		if !ok {
			skipped = append(skipped, e.Path)
			continue
		}

		var el model.Element
		if len(e.Content) > 0 {
			if err := json.Unmarshal(e.Content, &el); err != nil {
				return nil, nil, fmt.Errorf("decoding entity %s: %w", e.Path, err)
			}
		}
		el.Path = e.Path
		el.Kind = kind
		elements = append(elements, el)
	}

	return model.NewData(elements...).WithProvenance(origin, "json"), skipped, nil
}

// EncodeEntities converts model data into entities.
func EncodeEntities(data *model.Data) ([]Entity, error) {
	if data == nil {
		return nil, nil
	}
	entities := make([]Entity, 0, len(data.Elements))
	for _, el := range data.Elements {
		content, err := json.Marshal(el)
		if err != nil {
			return nil, fmt.Errorf("encoding entity %s: %w", el.Path, err)
		}
		entities = append(entities, Entity{
			Path:           el.Path,
			ClassifierPath: ClassifierFor(el.Kind),
			Content:        content,
		})
	}
	return entities, nil
}
