package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/model"
)

var multiplicityPattern = regexp.MustCompile(`^(\d+|\*)(\.\.(\d+|\*))?$`)

// Compiler compiles raw model data.
type Compiler struct {
	validator *validator.Validate
}

// New creates a compiler.
func New() *Compiler {
	return &Compiler{validator: validator.New()}
}

// Compile validates and type-checks data.
func (c *Compiler) Compile(ctx context.Context, data *model.Data, opts Options) (model.Compiled, error) {
	m := &Model{
		elements:          make([]model.Element, 0, data.Len()),
		index:             make(map[string]int, data.Len()),
		associations:      make(map[string][]model.Property),
		DeploymentMode:    opts.DeploymentMode,
		Principal:         opts.Principal,
		ProcessParameters: opts.ProcessParameters,
	}

	if data != nil {
		for _, el := range data.Elements {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if err := c.validator.Struct(el); err != nil {
				return nil, failure.Compilation(
					fmt.Sprintf("invalid element %q", el.Path), el.SourceInformation,
					fmt.Errorf("validation failed: %w", err))
			}

			el = qualify(el, opts.PackageOffset)
			if _, dup := m.index[el.Path]; dup {
				return nil, failure.Compilation(
					fmt.Sprintf("Duplicated element '%s'", el.Path), el.SourceInformation, nil)
			}

			m.index[el.Path] = len(m.elements)
			m.elements = append(m.elements, el)
		}
	}

	for _, el := range m.elements {
		if el.Kind != model.KindAssociation || len(el.Properties) != 2 {
			continue
		}
		a, b := el.Properties[0], el.Properties[1]
		m.associations[b.Type] = append(m.associations[b.Type], a)
		m.associations[a.Type] = append(m.associations[a.Type], b)
	}

	errs := make([]error, len(m.elements))
	check := func(i int) func() error {
		return func() error {
			errs[i] = m.check(m.elements[i])
			return nil
		}
	}

	if opts.Pool != nil {
		for i := range m.elements {
			opts.Pool.Go(check(i))
		}
		if err := opts.Pool.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range m.elements {
			_ = check(i)()
		}
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// qualify applies the package offset without mutating el's shared slices.
func qualify(el model.Element, offset string) model.Element {
	if offset == "" {
		return el
	}

	el.Path = withOffset(el.Path, offset)
	el.SuperTypes = mapStrings(el.SuperTypes, func(s string) string { return withOffset(s, offset) })
	el.Properties = qualifyProperties(el.Properties, offset)
	el.Parameters = qualifyProperties(el.Parameters, offset)
	if el.ReturnType != nil {
		rt := *el.ReturnType
		rt.Path = withOffset(rt.Path, offset)
		el.ReturnType = &rt
	}
	return el
}

func qualifyProperties(props []model.Property, offset string) []model.Property {
	if props == nil {
		return nil
	}
	out := make([]model.Property, len(props))
	for i, p := range props {
		p.Type = withOffset(p.Type, offset)
		out[i] = p
	}
	return out
}

func withOffset(path, offset string) string {
	if path == "" || model.Primitives[path] || strings.Contains(path, model.PathSeparator) {
		return path
	}
	return offset + model.PathSeparator + path
}

func mapStrings(in []string, fn func(string) string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fn(s)
	}
	return out
}

func (m *Model) check(el model.Element) error {
	loc := el.SourceInformation

	switch el.Kind {
	case model.KindClass:
		for _, super := range el.SuperTypes {
			if kind, ok := m.kindOf(super); !ok || kind != model.KindClass {
				return failure.Compilation(fmt.Sprintf("Can't find type '%s'", super), loc, nil)
			}
		}
		if m.inheritsFrom(el.Path) {
			return failure.Compilation(fmt.Sprintf("Class '%s' is involved in a generalization cycle", el.Path), loc, nil)
		}
		return m.checkProperties(el.Properties, loc)

	case model.KindEnumeration:
		if len(el.Values) == 0 {
			return failure.Compilation(fmt.Sprintf("Enumeration '%s' has no values", el.Path), loc, nil)
		}
		seen := make(map[string]bool, len(el.Values))
		for _, v := range el.Values {
			if seen[v] {
				return failure.Compilation(fmt.Sprintf("Duplicated value '%s' in enumeration '%s'", v, el.Path), loc, nil)
			}
			seen[v] = true
		}
		return nil

	case model.KindAssociation:
		if len(el.Properties) != 2 {
			return failure.Compilation(fmt.Sprintf("Association '%s' must have exactly 2 properties", el.Path), loc, nil)
		}
		for _, p := range el.Properties {
			if kind, ok := m.kindOf(p.Type); !ok || kind != model.KindClass {
				return failure.Compilation(fmt.Sprintf("Association '%s' end '%s' must refer to a class, found '%s'", el.Path, p.Name, p.Type), loc, nil)
			}
		}
		return m.checkProperties(el.Properties, loc)

	case model.KindFunction:
		if err := m.checkProperties(el.Parameters, loc); err != nil {
			return err
		}
		if el.ReturnType == nil {
			return failure.Compilation(fmt.Sprintf("Function '%s' has no return type", el.Path), loc, nil)
		}
		if !m.resolvable(el.ReturnType.Path) {
			return failure.Compilation(fmt.Sprintf("Can't find type '%s'", el.ReturnType.Path), loc, nil)
		}
		return checkMultiplicity(el.ReturnType.Multiplicity, loc)

	default:
		return nil
	}
}

func (m *Model) checkProperties(props []model.Property, loc *model.SourceLocation) error {
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		if seen[p.Name] {
			return failure.Compilation(fmt.Sprintf("Property '%s' is defined more than once", p.Name), loc, nil)
		}
		seen[p.Name] = true

		if !m.resolvable(p.Type) {
			return failure.Compilation(fmt.Sprintf("Can't find type '%s'", p.Type), loc, nil)
		}
		if err := checkMultiplicity(p.Multiplicity, loc); err != nil {
			return err
		}
	}
	return nil
}

func checkMultiplicity(mult string, loc *model.SourceLocation) error {
	if mult == "" || multiplicityPattern.MatchString(mult) {
		return nil
	}
	return failure.Compilation(fmt.Sprintf("Invalid multiplicity '%s'", mult), loc, nil)
}

// resolvable reports whether path names a primitive or a class-like type.
func (m *Model) resolvable(path string) bool {
	if model.Primitives[path] {
		return true
	}
	kind, ok := m.kindOf(path)
	return ok && (kind == model.KindClass || kind == model.KindEnumeration)
}

// inheritsFrom reports whether path is reachable from its own super types.
func (m *Model) inheritsFrom(path string) bool {
	el, _ := m.Lookup(path)
	visited := make(map[string]bool)
	queue := append([]string(nil), el.SuperTypes...)

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == path {
			return true
		}
		if visited[next] {
			continue
		}
		visited[next] = true
		if super, ok := m.Lookup(next); ok {
			queue = append(queue, super.SuperTypes...)
		}
	}
	return false
}
