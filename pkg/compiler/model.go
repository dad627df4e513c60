package compiler

import (
	"github.com/openfroyo/modelresolver/pkg/model"
)

// Model is a compiled, type-checked model.
type Model struct {
	elements     []model.Element
	index        map[string]int
	associations map[string][]model.Property

	// DeploymentMode and Principal echo the options the model was built with.
	DeploymentMode    string
	Principal         string
	ProcessParameters map[string]string
}

var _ model.Compiled = (*Model)(nil)

// Len implements model.Compiled.
func (m *Model) Len() int {
	return len(m.elements)
}

// Lookup implements model.Compiled.
func (m *Model) Lookup(path string) (model.Element, bool) {
	i, ok := m.index[path]
	if !ok {
		return model.Element{}, false
	}
	return m.elements[i], true
}

// Paths returns the element paths in source order.
func (m *Model) Paths() []string {
	paths := make([]string, len(m.elements))
	for i, el := range m.elements {
		paths[i] = el.Path
	}
	return paths
}

// FindProperty looks up a property on a class, its super types, and the
// association ends that point at it.
func (m *Model) FindProperty(classPath, name string) (model.Property, bool) {
	visited := make(map[string]bool)
	queue := []string{classPath}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if visited[path] {
			continue
		}
		visited[path] = true

		el, ok := m.Lookup(path)
		if !ok {
			continue
		}
		if p, ok := el.Property(name); ok {
			return p, true
		}
		for _, p := range m.associations[path] {
			if p.Name == name {
				return p, true
			}
		}
		queue = append(queue, el.SuperTypes...)
	}

	return model.Property{}, false
}

func (m *Model) kindOf(path string) (model.ElementKind, bool) {
	el, ok := m.Lookup(path)
	if !ok {
		return "", false
	}
	return el.Kind, true
}
