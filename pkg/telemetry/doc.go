// Package telemetry provides the observability stack of the model resolver.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and resolution events.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Tracing
//
// Every resolution runs in a "resolver.resolve" span. Loader invocations
// open a "loader.load" span, and each remote HTTP attempt opens its own
// "remote.<op>" span tagged with context.kind, remote.attempt and
// http.status_code. The enclosing load span records remote.<op>.attempts
// per operation and remote.attempts as the total across the load.
//
// # Metrics
//
//	cache_requests_total{tier,result}   result: hit, miss, shared, bypass
//	cache_entries{tier}
//	loader_attempts_total{loader,outcome}
//	loader_duration_seconds{loader}
//	resolutions_total{kind,status}
//	compile_duration_seconds
//	errors_total{class,code}
//
// A disabled or nil *Metrics silently discards observations.
//
// # Events
//
// The resolver publishes model.resolved and model.failed; remote loaders
// publish loader.retry; the authorizer publishes authz.denied and
// authz.policy_reloaded. Subscribers may filter by type or level.
package telemetry
