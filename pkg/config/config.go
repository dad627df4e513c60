package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openfroyo/modelresolver/pkg/authz"
	"github.com/openfroyo/modelresolver/pkg/loaders/depot"
	"github.com/openfroyo/modelresolver/pkg/loaders/sdlc"
	"github.com/openfroyo/modelresolver/pkg/remote"
	"github.com/openfroyo/modelresolver/pkg/stores"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MODELCTL"

// Config is the complete modelctl configuration.
type Config struct {
	// ClientVersion is sent to remote stores when a command does not set one.
	ClientVersion string `mapstructure:"client_version"`

	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Cache     CacheConfig      `mapstructure:"cache"`
	SDLC      SDLCConfig       `mapstructure:"sdlc"`
	Depot     DepotConfig      `mapstructure:"depot"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
	Authz     authz.Config     `mapstructure:"authz"`
	Compiler  CompilerConfig   `mapstructure:"compiler"`
}

// CacheConfig sizes the resolver cache tiers.
type CacheConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl" validate:"gt=0"`
	MaxDataEntries  int           `mapstructure:"max_data_entries" validate:"gte=0"`
	MaxModelEntries int           `mapstructure:"max_model_entries" validate:"gte=0"`
}

// SDLCConfig enables the SDLC loader.
type SDLCConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	sdlc.Config `mapstructure:",squash"`
}

// DepotConfig enables the depot loader.
type DepotConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	depot.Config `mapstructure:",squash"`
}

// ArchiveConfig enables the archive loader.
type ArchiveConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	stores.Config `mapstructure:",squash"`
}

// CompilerConfig configures model compilation.
type CompilerConfig struct {
	DeploymentMode    string            `mapstructure:"deployment_mode" validate:"oneof=dev test prod"`
	Parallelism       int               `mapstructure:"parallelism" validate:"gte=0,lte=256"`
	ProcessParameters map[string]string `mapstructure:"process_parameters"`
}

// setDefaults registers a default for every key so that environment
// variables can override any of them.
func setDefaults(v *viper.Viper) {
	tel := telemetry.DefaultConfig()
	retry := remote.DefaultRetryConfig()

	v.SetDefault("client_version", "v1_0_0")

	v.SetDefault("telemetry.service_name", tel.ServiceName)
	v.SetDefault("telemetry.service_version", tel.ServiceVersion)
	v.SetDefault("telemetry.environment", tel.Environment)
	v.SetDefault("telemetry.logging.level", tel.Logging.Level)
	v.SetDefault("telemetry.logging.format", tel.Logging.Format)
	v.SetDefault("telemetry.logging.output", tel.Logging.Output)
	v.SetDefault("telemetry.logging.enable_caller", tel.Logging.EnableCaller)
	v.SetDefault("telemetry.logging.time_format", tel.Logging.TimeFormat)
	v.SetDefault("telemetry.tracing.enabled", tel.Tracing.Enabled)
	v.SetDefault("telemetry.tracing.exporter", tel.Tracing.Exporter)
	v.SetDefault("telemetry.tracing.endpoint", tel.Tracing.Endpoint)
	v.SetDefault("telemetry.tracing.sampling_rate", tel.Tracing.SamplingRate)
	v.SetDefault("telemetry.tracing.max_export_batch_size", tel.Tracing.MaxExportBatchSize)
	v.SetDefault("telemetry.tracing.export_timeout", tel.Tracing.ExportTimeout)
	v.SetDefault("telemetry.tracing.insecure", tel.Tracing.Insecure)
	v.SetDefault("telemetry.metrics.enabled", tel.Metrics.Enabled)
	v.SetDefault("telemetry.metrics.listen_address", tel.Metrics.ListenAddress)
	v.SetDefault("telemetry.metrics.path", tel.Metrics.Path)
	v.SetDefault("telemetry.metrics.namespace", tel.Metrics.Namespace)
	v.SetDefault("telemetry.metrics.histogram_buckets", tel.Metrics.DefaultHistogramBuckets)
	v.SetDefault("telemetry.events.enabled", tel.Events.Enabled)
	v.SetDefault("telemetry.events.buffer_size", tel.Events.BufferSize)
	v.SetDefault("telemetry.events.max_batch_size", tel.Events.MaxBatchSize)
	v.SetDefault("telemetry.events.enable_async", tel.Events.EnableAsync)

	v.SetDefault("cache.idle_ttl", 30*time.Minute)
	v.SetDefault("cache.max_data_entries", 0)
	v.SetDefault("cache.max_model_entries", 0)

	for _, section := range []string{"sdlc", "depot"} {
		v.SetDefault(section+".enabled", false)
		v.SetDefault(section+".base_url", "")
		v.SetDefault(section+".timeout", 30*time.Second)
		v.SetDefault(section+".retry.max_attempts", retry.MaxAttempts)
		v.SetDefault(section+".retry.backoff", retry.Backoff)
		v.SetDefault(section+".retry.initial_interval", retry.InitialInterval)
		v.SetDefault(section+".retry.max_interval", retry.MaxInterval)
		v.SetDefault(section+".retry.multiplier", retry.Multiplier)
	}

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", "modelctl-archive.db")
	v.SetDefault("archive.max_open_conns", 0)
	v.SetDefault("archive.max_idle_conns", 0)
	v.SetDefault("archive.conn_max_lifetime", time.Duration(0))

	v.SetDefault("authz.policy_dir", "")
	v.SetDefault("authz.watch", false)

	v.SetDefault("compiler.deployment_mode", "dev")
	v.SetDefault("compiler.parallelism", 0)
}

// Load reads configuration from path (optional), the environment and
// defaults. Environment variables win over the file, which wins over
// defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	var errs []error
	if c.SDLC.Enabled && c.SDLC.BaseURL == "" {
		errs = append(errs, errors.New("sdlc.base_url is required when the sdlc loader is enabled"))
	}
	if c.Depot.Enabled && c.Depot.BaseURL == "" {
		errs = append(errs, errors.New("depot.base_url is required when the depot loader is enabled"))
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, errors.New("archive.path is required when the archive loader is enabled"))
	}
	if c.Authz.Watch && c.Authz.PolicyDir == "" {
		errs = append(errs, errors.New("authz.watch requires authz.policy_dir"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
