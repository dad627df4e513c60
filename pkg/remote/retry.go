package remote

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff shapes.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// MinAttempts is the lowest attempt cap a client accepts.
const MinAttempts = 3

// RetryConfig controls how transient failures are retried.
type RetryConfig struct {
	// MaxAttempts caps the total number of attempts, first one included.
	// Values below MinAttempts are raised to MinAttempts.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"omitempty,min=3"`

	// Backoff is "constant" or "exponential".
	Backoff string `mapstructure:"backoff" yaml:"backoff" validate:"omitempty,oneof=constant exponential"`

	// InitialInterval is the constant delay, or the first exponential delay.
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`

	// MaxInterval caps exponential delays.
	MaxInterval time.Duration `mapstructure:"max_interval" yaml:"max_interval"`

	// Multiplier grows exponential delays.
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`
}

// DefaultRetryConfig returns three attempts with a constant 500ms delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     MinAttempts,
		Backoff:         BackoffConstant,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}
}

// withDefaults fills unset fields from DefaultRetryConfig.
func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts < MinAttempts {
		c.MaxAttempts = MinAttempts
	}
	if c.Backoff == "" {
		c.Backoff = def.Backoff
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	return c
}

// newBackOff builds a fresh policy; backoff policies are stateful.
func (c RetryConfig) newBackOff() (backoff.BackOff, error) {
	switch c.Backoff {
	case BackoffConstant:
		return backoff.NewConstantBackOff(c.InitialInterval), nil
	case BackoffExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.InitialInterval
		b.MaxInterval = c.MaxInterval
		b.Multiplier = c.Multiplier
		b.Reset()
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backoff %q (must be %q or %q)", c.Backoff, BackoffConstant, BackoffExponential)
	}
}
