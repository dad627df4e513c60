package model

import (
	"fmt"
	"strings"
)

// ElementKind identifies the type of a packageable element.
type ElementKind string

const (
	// KindClass is a class with properties and optional super types.
	KindClass ElementKind = "Class"

	// KindEnumeration is an enumeration with a fixed set of values.
	KindEnumeration ElementKind = "Enumeration"

	// KindAssociation links two classes through a pair of properties.
	KindAssociation ElementKind = "Association"

	// KindFunction is a concrete function with typed parameters.
	KindFunction ElementKind = "Function"

	// KindProfile carries stereotypes and tags.
	KindProfile ElementKind = "Profile"
)

// PathSeparator separates package segments in an element path.
const PathSeparator = "::"

// Element is a single packageable element of a model.
type Element struct {
	// Path is the fully qualified element path (e.g. "pkg::pkg::myClass").
	Path string `json:"path" yaml:"path" validate:"required"`

	// Kind is the element type.
	Kind ElementKind `json:"kind" yaml:"kind" validate:"required,oneof=Class Enumeration Association Function Profile"`

	// SuperTypes lists the paths of generalized classes.
	SuperTypes []string `json:"superTypes,omitempty" yaml:"superTypes,omitempty"`

	// Properties are the class or association properties.
	Properties []Property `json:"properties,omitempty" yaml:"properties,omitempty" validate:"dive"`

	// Values are the enumeration literals.
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`

	// Parameters are the function parameters.
	Parameters []Property `json:"parameters,omitempty" yaml:"parameters,omitempty" validate:"dive"`

	// ReturnType is the function return type.
	ReturnType *TypeDescriptor `json:"returnType,omitempty" yaml:"returnType,omitempty"`

	// SourceInformation locates the element in its source text, if known.
	SourceInformation *SourceLocation `json:"sourceInformation,omitempty" yaml:"sourceInformation,omitempty"`
}

// Property is a typed, multiplicity-constrained member of a class,
// association or function signature.
type Property struct {
	Name         string `json:"name" yaml:"name" validate:"required"`
	Type         string `json:"type" yaml:"type" validate:"required"`
	Multiplicity string `json:"multiplicity,omitempty" yaml:"multiplicity,omitempty"`
}

// Package returns the package portion of the element path.
func (e Element) Package() string {
	idx := strings.LastIndex(e.Path, PathSeparator)
	if idx < 0 {
		return ""
	}
	return e.Path[:idx]
}

// Name returns the last segment of the element path.
func (e Element) Name() string {
	idx := strings.LastIndex(e.Path, PathSeparator)
	if idx < 0 {
		return e.Path
	}
	return e.Path[idx+len(PathSeparator):]
}

// Property returns the named property and whether it exists.
func (e Element) Property(name string) (Property, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// SourceLocation identifies a span of source text.
type SourceLocation struct {
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	StartLine   int    `json:"startLine,omitempty" yaml:"startLine,omitempty"`
	StartColumn int    `json:"startColumn,omitempty" yaml:"startColumn,omitempty"`
	EndLine     int    `json:"endLine,omitempty" yaml:"endLine,omitempty"`
	EndColumn   int    `json:"endColumn,omitempty" yaml:"endColumn,omitempty"`
}

// String renders the location as source:line:column.
func (l *SourceLocation) String() string {
	if l == nil {
		return ""
	}
	if l.StartLine == 0 {
		return l.Source
	}
	if l.StartColumn == 0 {
		return fmt.Sprintf("%s:%d", l.Source, l.StartLine)
	}
	return fmt.Sprintf("%s:%d:%d", l.Source, l.StartLine, l.StartColumn)
}
