// Package grammar parses model text into raw model data.
//
// Model text is CUE. Each top-level field is an element keyed by its path:
//
//	"model::Person": {
//		kind: "Class"
//		extends: ["model::LegalEntity"]
//		properties: {
//			firstName: "String[1]"
//			nicknames: {type: "String", multiplicity: "*"}
//		}
//	}
//	"model::FirmType": {kind: "Enumeration", values: ["LLC", "CORP"]}
//	"model::greet": {
//		kind: "Function"
//		parameters: p: "model::Person[1]"
//		returns: "String[1]"
//	}
//
// kind defaults to "Class". Properties, parameters and return types are
// either "Type[multiplicity]" strings or {type, multiplicity} structs.
// Field order is preserved. Every element carries the source location of
// its definition.
package grammar

import (
	"context"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/model"
)

// DefaultFilename names inline text in source locations.
const DefaultFilename = "model.cue"

const schemaSource = `
#Typed: string | {
	type:          string
	multiplicity?: string
}

#Element: {
	kind: *"Class" | "Enumeration" | "Association" | "Function" | "Profile"
	extends?: [...string]
	properties?: [string]: #Typed
	values?: [...string]
	parameters?: [string]: #Typed
	returns?: #Typed
	stereotypes?: [...string]
	tags?: [...string]
}

#Model: [string]: #Element
`

// Parser converts CUE model text into model data. A Parser is safe for
// concurrent use.
type Parser struct {
	filename string
}

// Option configures a Parser.
type Option func(*Parser)

// WithFilename sets the source name reported in locations.
func WithFilename(name string) Option {
	return func(p *Parser) { p.filename = name }
}

// NewParser creates a parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{filename: DefaultFilename}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseModel parses text. Syntax and schema errors are reported as
// failure.Parse with the location of the first offending token.
func (p *Parser) ParseModel(ctx context.Context, text string) (*model.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// cue.Context is not safe for concurrent use; each parse gets its own.
	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Model"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile model schema: %w", err)
	}

	val := cctx.CompileString(text, cue.Filename(p.filename))
	if err := val.Err(); err != nil {
		return nil, p.convertError(err)
	}

	raw := val
	val = schema.Unify(val)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, p.convertError(err)
	}

	iter, err := val.Fields()
	if err != nil {
		return nil, p.convertError(err)
	}

	data := &model.Data{Provenance: &model.Provenance{Origin: p.filename, Serializer: "cue"}}
	for iter.Next() {
		pos := raw.LookupPath(cue.MakePath(iter.Selector())).Pos()
		el, err := p.extractElement(iter.Selector().Unquoted(), iter.Value(), pos)
		if err != nil {
			return nil, err
		}
		data.Elements = append(data.Elements, el)
	}

	return data, nil
}

func (p *Parser) extractElement(path string, val cue.Value, pos token.Pos) (model.Element, error) {
	el := model.Element{
		Path:              path,
		SourceInformation: p.location(pos),
	}

	kindVal, _ := val.LookupPath(cue.ParsePath("kind")).Default()
	kind, err := kindVal.String()
	if err != nil {
		return el, p.convertError(err)
	}
	el.Kind = model.ElementKind(kind)

	if el.SuperTypes, err = decodeStrings(val, "extends"); err != nil {
		return el, p.convertError(err)
	}
	if el.Properties, err = p.decodeTyped(val, "properties"); err != nil {
		return el, err
	}
	if el.Parameters, err = p.decodeTyped(val, "parameters"); err != nil {
		return el, err
	}

	values, err := decodeStrings(val, "values")
	if err != nil {
		return el, p.convertError(err)
	}
	if el.Kind == model.KindProfile {
		stereotypes, err := decodeStrings(val, "stereotypes")
		if err != nil {
			return el, p.convertError(err)
		}
		values = append(values, stereotypes...)
	}
	el.Values = values

	if ret := val.LookupPath(cue.ParsePath("returns")); ret.Exists() {
		t, err := p.decodeType(ret)
		if err != nil {
			return el, err
		}
		el.ReturnType = &t
	}

	return el, nil
}

func (p *Parser) decodeTyped(val cue.Value, field string) ([]model.Property, error) {
	v := val.LookupPath(cue.ParsePath(field))
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, p.convertError(err)
	}

	var props []model.Property
	for iter.Next() {
		t, err := p.decodeType(iter.Value())
		if err != nil {
			return nil, err
		}
		props = append(props, model.Property{
			Name:         iter.Selector().Unquoted(),
			Type:         t.Path,
			Multiplicity: t.Multiplicity,
		})
	}
	return props, nil
}

// decodeType accepts "Type[mult]" shorthand or a {type, multiplicity} struct.
func (p *Parser) decodeType(v cue.Value) (model.TypeDescriptor, error) {
	v, _ = v.Default()
	if v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return model.TypeDescriptor{}, p.convertError(err)
		}
		t, ok := ParseTypeRef(s)
		if !ok {
			return model.TypeDescriptor{}, failure.Parse(
				fmt.Sprintf("invalid type reference %q", s), p.location(v.Pos()), nil)
		}
		return t, nil
	}

	var t struct {
		Type         string `json:"type"`
		Multiplicity string `json:"multiplicity"`
	}
	if err := v.Decode(&t); err != nil {
		return model.TypeDescriptor{}, p.convertError(err)
	}
	if t.Multiplicity == "" {
		t.Multiplicity = "1"
	}
	return model.TypeDescriptor{Path: t.Type, Multiplicity: t.Multiplicity}, nil
}

// ParseTypeRef splits "Type[mult]" into a descriptor. A missing
// multiplicity means exactly one.
func ParseTypeRef(s string) (model.TypeDescriptor, bool) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if s == "" {
			return model.TypeDescriptor{}, false
		}
		return model.TypeDescriptor{Path: s, Multiplicity: "1"}, true
	}
	if open == 0 || !strings.HasSuffix(s, "]") {
		return model.TypeDescriptor{}, false
	}
	mult := s[open+1 : len(s)-1]
	if mult == "" {
		return model.TypeDescriptor{}, false
	}
	return model.TypeDescriptor{Path: s[:open], Multiplicity: mult}, true
}

func decodeStrings(val cue.Value, field string) ([]string, error) {
	v := val.LookupPath(cue.ParsePath(field))
	if !v.Exists() {
		return nil, nil
	}
	var out []string
	if err := v.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Parser) location(pos token.Pos) *model.SourceLocation {
	if !pos.IsValid() {
		return &model.SourceLocation{Source: p.filename}
	}
	source := pos.Filename()
	if source == "" {
		source = p.filename
	}
	return &model.SourceLocation{
		Source:      source,
		StartLine:   pos.Line(),
		StartColumn: pos.Column(),
	}
}

// convertError maps CUE errors to a parse failure located at the first
// reported position in the model text.
func (p *Parser) convertError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return failure.Parse(err.Error(), nil, err)
	}

	first := errs[0]
	var loc *model.SourceLocation
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() == p.filename {
			loc = p.location(pos)
			break
		}
	}
	if loc == nil {
		loc = &model.SourceLocation{Source: p.filename}
	}

	msg := cueerrors.Details(first, nil)
	msg = strings.TrimSpace(strings.Split(msg, "\n")[0])
	return failure.Parse(msg, loc, err)
}
