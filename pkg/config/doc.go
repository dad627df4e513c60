// Package config loads modelctl configuration from a YAML file and
// MODELCTL_* environment variables, applying defaults for every setting
// and validating the result.
//
// Environment variables map onto nested keys with underscores, so
// MODELCTL_DEPOT_BASE_URL sets depot.base_url and
// MODELCTL_TELEMETRY_LOGGING_LEVEL sets telemetry.logging.level.
package config
