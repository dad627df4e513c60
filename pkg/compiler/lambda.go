package compiler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/model"
)

var (
	variablePattern    = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z_][A-Za-z0-9_]*)*)$`)
	newInstancePattern = regexp.MustCompile(`^\^([A-Za-z0-9_:]+)\(.*\)$`)
	enumValuePattern   = regexp.MustCompile(`^([A-Za-z0-9_]+(?:::[A-Za-z0-9_]+)+)\.([A-Za-z0-9_]+)$`)
)

// LambdaReturnType infers the static return type of lambda against m.
//
// Supported bodies are literals ('text', 42, 4.2, true), enumeration values
// (pkg::Enum.VALUE), new instances (^pkg::Class(...)) and property
// navigation from a parameter ($p.firm.name). A leading "|" is ignored.
func (c *Compiler) LambdaReturnType(ctx context.Context, compiled model.Compiled, lambda model.Lambda) (model.TypeDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return model.TypeDescriptor{}, err
	}

	m, ok := compiled.(*Model)
	if !ok {
		return model.TypeDescriptor{}, fmt.Errorf("compiled model of type %T is not supported", compiled)
	}

	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lambda.Body), "|"))
	if body == "" {
		return model.TypeDescriptor{}, failure.Compilation("Lambda body is empty", nil, nil)
	}

	if t, ok := literalType(body); ok {
		return t, nil
	}

	if match := newInstancePattern.FindStringSubmatch(body); match != nil {
		if kind, ok := m.kindOf(match[1]); !ok || kind != model.KindClass {
			return model.TypeDescriptor{}, failure.Compilation(fmt.Sprintf("Can't find class '%s'", match[1]), nil, nil)
		}
		return model.TypeDescriptor{Path: match[1], Multiplicity: "1"}, nil
	}

	if match := enumValuePattern.FindStringSubmatch(body); match != nil {
		el, ok := m.Lookup(match[1])
		if !ok || el.Kind != model.KindEnumeration {
			return model.TypeDescriptor{}, failure.Compilation(fmt.Sprintf("Can't find enumeration '%s'", match[1]), nil, nil)
		}
		for _, v := range el.Values {
			if v == match[2] {
				return model.TypeDescriptor{Path: el.Path, Multiplicity: "1"}, nil
			}
		}
		return model.TypeDescriptor{}, failure.Compilation(fmt.Sprintf("Can't find value '%s' in enumeration '%s'", match[2], el.Path), nil, nil)
	}

	if match := variablePattern.FindStringSubmatch(body); match != nil {
		return m.navigate(lambda.Parameters, match[1], match[2])
	}

	return model.TypeDescriptor{}, failure.Compilation(fmt.Sprintf("Unsupported lambda expression '%s'", body), nil, nil)
}

func (m *Model) navigate(params []model.Property, variable, path string) (model.TypeDescriptor, error) {
	var current model.Property
	found := false
	for _, p := range params {
		if p.Name == variable {
			current, found = p, true
			break
		}
	}
	if !found {
		return model.TypeDescriptor{}, failure.Compilation(fmt.Sprintf("Can't find variable '$%s'", variable), nil, nil)
	}
	if !m.resolvable(current.Type) {
		return model.TypeDescriptor{}, failure.Compilation(fmt.Sprintf("Can't find type '%s'", current.Type), nil, nil)
	}

	toMany := isToMany(current.Multiplicity)
	for _, name := range strings.Split(strings.TrimPrefix(path, "."), ".") {
		if name == "" {
			continue
		}
		if kind, _ := m.kindOf(current.Type); kind != model.KindClass {
			return model.TypeDescriptor{}, failure.Compilation(
				fmt.Sprintf("Can't navigate property '%s' from non-class type '%s'", name, current.Type), nil, nil)
		}

		next, ok := m.FindProperty(current.Type, name)
		if !ok {
			return model.TypeDescriptor{}, failure.Compilation(
				fmt.Sprintf("Can't find property '%s' in class '%s'", name, current.Type), nil, nil)
		}
		toMany = toMany || isToMany(next.Multiplicity)
		current = next
	}

	mult := multiplicityOrOne(current.Multiplicity)
	if toMany && !isToMany(mult) {
		mult = "*"
	}
	return model.TypeDescriptor{Path: current.Type, Multiplicity: mult}, nil
}

func literalType(body string) (model.TypeDescriptor, bool) {
	switch {
	case len(body) >= 2 && body[0] == '\'' && body[len(body)-1] == '\'':
		return model.TypeDescriptor{Path: "String", Multiplicity: "1"}, true
	case body == "true" || body == "false":
		return model.TypeDescriptor{Path: "Boolean", Multiplicity: "1"}, true
	}
	if _, err := strconv.ParseInt(body, 10, 64); err == nil {
		return model.TypeDescriptor{Path: "Integer", Multiplicity: "1"}, true
	}
	if _, err := strconv.ParseFloat(body, 64); err == nil && strings.Contains(body, ".") {
		return model.TypeDescriptor{Path: "Float", Multiplicity: "1"}, true
	}
	return model.TypeDescriptor{}, false
}

func multiplicityOrOne(mult string) string {
	if mult == "" {
		return "1"
	}
	return mult
}

// isToMany reports whether the upper bound of mult exceeds one.
func isToMany(mult string) bool {
	upper := mult
	if i := strings.Index(mult, ".."); i >= 0 {
		upper = mult[i+2:]
	}
	if upper == "*" {
		return true
	}
	n, err := strconv.Atoi(upper)
	return err == nil && n > 1
}
