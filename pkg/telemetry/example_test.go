package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

func Example_eventPublishing() {
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		panic(err)
	}
	defer events.Shutdown(context.Background())

	events.Subscribe(func(e telemetry.Event) {
		fmt.Printf("%s %s: %s\n", e.Level, e.Type, e.Resource)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = events.PublishResolved("pointer", "depot:org.finos:model:1.0.0", "alice", 12, time.Millisecond)
	_ = events.PublishRetry("depot", "depot:org.finos:model:1.0.0", 1, errors.New("status 503"))
	_ = events.PublishFailed("pointer", "sdlc:p1/workspace/w1", "alice", "REMOTE_HARD", errors.New("status 404"))

	// Output:
	// warning loader.retry: depot:org.finos:model:1.0.0
	// error model.failed: sdlc:p1/workspace/w1
}

func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		panic(err)
	}

	metrics.RecordCacheRequest("data", "miss")
	metrics.RecordCacheRequest("data", "hit")
	metrics.RecordLoaderAttempt("depot", "retry")
	metrics.RecordLoaderAttempt("depot", "ok")
	metrics.RecordResolution("pointer", "ok")

	families, err := metrics.Registry().Gather()
	if err != nil {
		panic(err)
	}
	for _, f := range families {
		fmt.Println(f.GetName())
	}

	// Output:
	// modelresolver_cache_requests_total
	// modelresolver_compile_duration_seconds
	// modelresolver_loader_attempts_total
	// modelresolver_resolutions_total
}
