package grammar

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/model"
)

const firmText = `"model::Person": {
	properties: {
		firstName: "String[1]"
		nicknames: {type: "String", multiplicity: "*"}
		employer:  "model::Firm[0..1]"
	}
}
"model::Firm": {
	kind: "Class"
	extends: ["model::LegalEntity"]
}
"model::LegalEntity": properties: name: "String"
"model::FirmType": {kind: "Enumeration", values: ["LLC", "CORP"]}
"model::greet": {
	kind: "Function"
	parameters: p: "model::Person"
	returns: "String[1]"
}
`

func TestParseModel(t *testing.T) {
	data, err := NewParser().ParseModel(context.Background(), firmText)
	require.NoError(t, err)

	want := []string{"model::Person", "model::Firm", "model::LegalEntity", "model::FirmType", "model::greet"}
	if diff := cmp.Diff(want, data.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	person := data.Elements[0]
	assert.Equal(t, model.KindClass, person.Kind)
	assert.Equal(t, []model.Property{
		{Name: "firstName", Type: "String", Multiplicity: "1"},
		{Name: "nicknames", Type: "String", Multiplicity: "*"},
		{Name: "employer", Type: "model::Firm", Multiplicity: "0..1"},
	}, person.Properties)
	require.NotNil(t, person.SourceInformation)
	assert.Equal(t, DefaultFilename, person.SourceInformation.Source)
	assert.Equal(t, 1, person.SourceInformation.StartLine)

	firm := data.Elements[1]
	assert.Equal(t, []string{"model::LegalEntity"}, firm.SuperTypes)
	assert.Equal(t, 8, firm.SourceInformation.StartLine)

	enum := data.Elements[3]
	assert.Equal(t, model.KindEnumeration, enum.Kind)
	assert.Equal(t, []string{"LLC", "CORP"}, enum.Values)

	fn := data.Elements[4]
	assert.Equal(t, model.KindFunction, fn.Kind)
	assert.Equal(t, []model.Property{{Name: "p", Type: "model::Person", Multiplicity: "1"}}, fn.Parameters)
	assert.Equal(t, &model.TypeDescriptor{Path: "String", Multiplicity: "1"}, fn.ReturnType)

	assert.Equal(t, &model.Provenance{Origin: DefaultFilename, Serializer: "cue"}, data.Provenance)
}

func TestParseModelEmpty(t *testing.T) {
	data, err := NewParser().ParseModel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, data.Len())
}

func TestParseModelSyntaxError(t *testing.T) {
	text := "\"a::A\": {\n\tproperties: {\n\t\tname: \"String\"\n\t\n"

	_, err := NewParser(WithFilename("broken.cue")).ParseModel(context.Background(), text)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeParse))

	var ferr *failure.Error
	require.ErrorAs(t, err, &ferr)
	require.NotNil(t, ferr.Location)
	assert.Equal(t, "broken.cue", ferr.Location.Source)
	assert.Greater(t, ferr.Location.StartLine, 0)
}

func TestParseModelSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"unknown kind", `"a::A": kind: "Mapping"`},
		{"unknown field", `"a::A": colour: "blue"`},
		{"non-string super type", `"a::A": extends: [1]`},
		{"bad type reference", `"a::A": properties: x: "String[]"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().ParseModel(context.Background(), tt.text)
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.CodeParse), "got %v", err)
		})
	}
}

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		in   string
		want model.TypeDescriptor
		ok   bool
	}{
		{"String", model.TypeDescriptor{Path: "String", Multiplicity: "1"}, true},
		{"model::Firm[0..1]", model.TypeDescriptor{Path: "model::Firm", Multiplicity: "0..1"}, true},
		{" Integer[*] ", model.TypeDescriptor{Path: "Integer", Multiplicity: "*"}, true},
		{"[1]", model.TypeDescriptor{}, false},
		{"String[", model.TypeDescriptor{}, false},
		{"", model.TypeDescriptor{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseTypeRef(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseModelHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().ParseModel(ctx, firmText)
	assert.ErrorIs(t, err, context.Canceled)
}
