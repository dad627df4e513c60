package telemetry

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "jaeger"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tracing.SamplingRate = 1.5
	assert.Error(t, cfg.Validate())

	require.NoError(t, ProductionConfig().Validate())
}

func TestLoggerWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("resolver").
		WithLoader("depot", "org.finos:model:1.0.0").
		WithError(errors.New("boom")).
		Debug("load failed")

	out := buf.String()
	assert.Contains(t, out, `"component":"resolver"`)
	assert.Contains(t, out, `"loader":"depot"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"message":"load failed"`)
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContextDefaultsToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info("discarded")

	var buf bytes.Buffer
	stored := NewLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf)
	ctx := stored.WithContext(context.Background())
	assert.Same(t, stored, FromContext(ctx))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordCacheRequest("data", "hit")
	m.RecordLoad("depot", time.Second)
	m.RecordError("transient", "REMOTE_TRANSIENT")
	assert.Nil(t, m.Registry())

	disabled, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)
	disabled.RecordCompile(time.Second)
	_, err = disabled.NewMetricsServer()
	assert.Error(t, err)
}

func TestAsyncEventsDrainOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
	}, FilterByType(EventTypeModelResolved))

	require.NoError(t, ep.PublishResolved("data", "", "alice", 1, time.Millisecond))
	require.NoError(t, ep.PublishRetry("depot", "x", 1, errors.New("503")))
	require.NoError(t, ep.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventTypeModelResolved}, got)

	assert.Error(t, ep.Publish(Event{Type: EventTypeModelFailed}))
}

func TestDisabledPublisherDropsEvents(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{})
	require.NoError(t, err)

	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	require.NoError(t, ep.Publish(Event{Type: EventTypeModelResolved}))
	assert.False(t, called)

	var nilPublisher *EventPublisher
	assert.NoError(t, nilPublisher.Publish(Event{}))
}

func TestNopTelemetry(t *testing.T) {
	tel := Nop()
	ctx, span := tel.Tracer.Start(context.Background(), SpanResolve)
	RecordSuccess(span)
	span.End()
	assert.Empty(t, TraceID(ctx))
	assert.NoError(t, tel.Shutdown(context.Background()))
}
