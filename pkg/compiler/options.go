package compiler

// Pool runs compilation tasks concurrently. *errgroup.Group satisfies it.
type Pool interface {
	Go(f func() error)
	Wait() error
}

// Options controls one compilation.
type Options struct {
	// DeploymentMode is recorded on the compiled model (e.g. "PROD", "TEST").
	DeploymentMode string

	// Principal is the name of the identity the model is compiled for.
	Principal string

	// PackageOffset prefixes element paths and type references that have no
	// package.
	PackageOffset string

	// Pool, when set, checks elements concurrently.
	Pool Pool

	// ProcessParameters are free-form settings recorded on the compiled model.
	ProcessParameters map[string]string
}
