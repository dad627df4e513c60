package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/model"
)

func TestLambdaReturnType(t *testing.T) {
	c := New()
	compiled, err := c.Compile(context.Background(), firmModel(), Options{})
	require.NoError(t, err)

	person := []model.Property{{Name: "p", Type: "model::Person", Multiplicity: "1"}}
	firms := []model.Property{{Name: "f", Type: "model::Firm", Multiplicity: "*"}}

	tests := []struct {
		name   string
		lambda model.Lambda
		want   string
	}{
		{"string literal", model.Lambda{Body: "|'hello'"}, "String[1]"},
		{"integer literal", model.Lambda{Body: "42"}, "Integer[1]"},
		{"float literal", model.Lambda{Body: "4.2"}, "Float[1]"},
		{"boolean literal", model.Lambda{Body: "true"}, "Boolean[1]"},
		{"enum value", model.Lambda{Body: "model::FirmType.LLC"}, "model::FirmType[1]"},
		{"new instance", model.Lambda{Body: "^model::Person(firstName='x')"}, "model::Person[1]"},
		{"parameter", model.Lambda{Parameters: person, Body: "$p"}, "model::Person[1]"},
		{"own property", model.Lambda{Parameters: person, Body: "|$p.firstName"}, "String[1]"},
		{"to-many property", model.Lambda{Parameters: person, Body: "$p.nicknames"}, "String[*]"},
		{"association and inherited", model.Lambda{Parameters: person, Body: "$p.employer.name"}, "String[1]"},
		{"to-many source", model.Lambda{Parameters: firms, Body: "$f.name"}, "String[*]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.LambdaReturnType(context.Background(), compiled, tt.lambda)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestLambdaReturnTypeErrors(t *testing.T) {
	c := New()
	compiled, err := c.Compile(context.Background(), firmModel(), Options{})
	require.NoError(t, err)

	person := []model.Property{{Name: "p", Type: "model::Person", Multiplicity: "1"}}

	tests := []struct {
		name    string
		lambda  model.Lambda
		message string
	}{
		{"unknown variable", model.Lambda{Parameters: person, Body: "$q.name"}, "Can't find variable '$q'"},
		{"unknown property", model.Lambda{Parameters: person, Body: "$p.salary"}, "Can't find property 'salary' in class 'model::Person'"},
		{"primitive navigation", model.Lambda{Parameters: person, Body: "$p.firstName.length"}, "non-class type 'String'"},
		{"unknown enum value", model.Lambda{Body: "model::FirmType.LLP"}, "Can't find value 'LLP'"},
		{"unknown class", model.Lambda{Body: "^model::Robot()"}, "Can't find class 'model::Robot'"},
		{"empty body", model.Lambda{Body: " | "}, "Lambda body is empty"},
		{"unsupported", model.Lambda{Body: "$p->map(x|$x)"}, "Unsupported lambda expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.LambdaReturnType(context.Background(), compiled, tt.lambda)
			require.Error(t, err)
			assert.True(t, failure.Is(err, failure.CodeCompilation))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
