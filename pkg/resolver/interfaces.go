package resolver

import (
	"context"

	"github.com/openfroyo/modelresolver/pkg/compiler"
	"github.com/openfroyo/modelresolver/pkg/model"
)

// Compiled is a compiled, type-checked model.
type Compiled = model.Compiled

// Compiler builds compiled models from raw data.
type Compiler interface {
	// Compile fails with failure.Compilation on invalid data.
	Compile(ctx context.Context, data *model.Data, opts compiler.Options) (Compiled, error)

	// LambdaReturnType infers the static type of lambda against m.
	LambdaReturnType(ctx context.Context, m Compiled, lambda model.Lambda) (model.TypeDescriptor, error)
}

// Parser converts model text into raw data.
type Parser interface {
	// ParseModel fails with failure.Parse on malformed text.
	ParseModel(ctx context.Context, text string) (*model.Data, error)
}
