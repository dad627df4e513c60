package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/modelresolver/pkg/cache"
	"github.com/openfroyo/modelresolver/pkg/compiler"
	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

// Cache tier names used in metrics and stats.
const (
	TierData  = "data"
	TierModel = "model"
)

// Options configures a Manager.
type Options struct {
	// IdleTTL evicts cache entries not read for this long (default 30m).
	IdleTTL time.Duration

	// MaxDataEntries and MaxModelEntries bound the cache tiers; zero means
	// unbounded.
	MaxDataEntries  int
	MaxModelEntries int

	// DeploymentMode and ProcessParameters are forwarded to the compiler.
	DeploymentMode    string
	ProcessParameters map[string]string

	// CompileParallelism greater than one checks elements concurrently.
	CompileParallelism int

	// Telemetry defaults to telemetry.Nop().
	Telemetry *telemetry.Telemetry

	// Authorizer defaults to loader.AllowAll.
	Authorizer loader.Authorizer
}

// Stats reports the activity of both cache tiers.
type Stats struct {
	Data  cache.Stats `json:"data"`
	Model cache.Stats `json:"model"`
}

// Manager resolves contexts to data and compiled models. It is safe for
// concurrent use.
type Manager struct {
	registry *loader.Registry
	compiler Compiler
	parser   Parser

	data   *cache.Cache[*model.Data]
	models *cache.Cache[Compiled]

	opts    Options
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

var _ loader.Resolver = (*Manager)(nil)

// New builds a Manager and its loader registry. Providers receive the
// Manager itself as their loader.Resolver.
func New(opts Options, c Compiler, p Parser, providers ...loader.Provider) (*Manager, error) {
	if c == nil {
		return nil, errors.New("resolver: compiler is required")
	}
	if p == nil {
		return nil, errors.New("resolver: parser is required")
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	authz := opts.Authorizer
	if authz == nil {
		authz = loader.AllowAll{}
	}

	m := &Manager{
		compiler: c,
		parser:   p,
		data:     cache.New[*model.Data](cache.Options{IdleTTL: opts.IdleTTL, MaxEntries: opts.MaxDataEntries}),
		models:   cache.New[Compiled](cache.Options{IdleTTL: opts.IdleTTL, MaxEntries: opts.MaxModelEntries}),
		opts:     opts,
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("resolver"),
		tracer:   tel.Tracer.Tracer(),
		metrics:  tel.Metrics,
	}

	registry, err := loader.NewRegistry(loader.Deps{
		Resolver:   m,
		Authorizer: authz,
		Logger:     tel.Logger.NewComponentLogger("loader"),
		Tracer:     m.tracer,
		Metrics:    tel.Metrics,
		Events:     tel.Events,
	}, providers...)
	if err != nil {
		return nil, fmt.Errorf("failed to build loader registry: %w", err)
	}
	m.registry = registry

	return m, nil
}

// Loaders returns the registered loader names.
func (m *Manager) Loaders() []string {
	return m.registry.Names()
}

// ResolveModel resolves mctx and compiles it. packageOffset places relative
// element paths under a package.
func (m *Manager) ResolveModel(ctx context.Context, mctx modelcontext.Context, clientVersion string, id identity.Identity, packageOffset string) (compiled Compiled, err error) {
	ctx, done := m.begin(ctx, "model", mctx, id)
	defer func() { done(nil, compiled, err) }()

	if ptr, ok := mctx.(*modelcontext.Pointer); ok && ptr != nil {
		return m.pointerModel(ctx, ptr, clientVersion, id, packageOffset)
	}

	data, err := m.resolveData(ctx, mctx, clientVersion, id)
	if err != nil {
		return nil, err
	}
	return m.compile(ctx, data, id, packageOffset)
}

// ResolveModelAndData resolves mctx and returns both the raw data and the
// compiled model.
func (m *Manager) ResolveModelAndData(ctx context.Context, mctx modelcontext.Context, clientVersion string, id identity.Identity, packageOffset string) (data *model.Data, compiled Compiled, err error) {
	ctx, done := m.begin(ctx, "model_and_data", mctx, id)
	defer func() { done(data, compiled, err) }()

	data, err = m.resolveData(ctx, mctx, clientVersion, id)
	if err != nil {
		return nil, nil, err
	}

	if ptr, ok := mctx.(*modelcontext.Pointer); ok {
		// compile the data already fetched so both results come from one load
		loaded := data
		compiled, err = m.compilePointer(ctx, ptr, id, packageOffset, func(context.Context) (*model.Data, error) {
			return loaded, nil
		})
	} else {
		compiled, err = m.compile(ctx, data, id, packageOffset)
	}
	if err != nil {
		return nil, nil, err
	}
	return data, compiled, nil
}

// ResolveData resolves mctx to raw data without compiling. Data contexts
// return their own data unchanged.
func (m *Manager) ResolveData(ctx context.Context, mctx modelcontext.Context, clientVersion string, id identity.Identity) (data *model.Data, err error) {
	ctx, done := m.begin(ctx, "data", mctx, id)
	defer func() { done(data, nil, err) }()

	return m.resolveData(ctx, mctx, clientVersion, id)
}

// LambdaReturnType resolves the model for mctx and infers the return type
// of lambda against it.
func (m *Manager) LambdaReturnType(ctx context.Context, lambda model.Lambda, mctx modelcontext.Context, clientVersion string, id identity.Identity) (model.TypeDescriptor, error) {
	compiled, err := m.ResolveModel(ctx, mctx, clientVersion, id, "")
	if err != nil {
		return model.TypeDescriptor{}, err
	}
	return m.compiler.LambdaReturnType(ctx, compiled, lambda)
}

// Invalidate drops every entry from both cache tiers. Computations already
// in flight complete and store their results.
func (m *Manager) Invalidate() {
	m.data.Purge()
	m.models.Purge()
	m.metrics.SetCacheEntries(TierData, 0)
	m.metrics.SetCacheEntries(TierModel, 0)
	m.logger.Info("model caches invalidated")
	_ = m.tel.Events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeCacheInvalidated,
		Source:  "resolver",
		Message: "model caches invalidated",
	})
}

// Stats returns cache statistics for both tiers.
func (m *Manager) Stats() Stats {
	return Stats{Data: m.data.Stats(), Model: m.models.Stats()}
}

type requestIDKey struct{}

// begin opens the resolution span and, for top-level calls, assigns a
// request id and a request-scoped logger.
func (m *Manager) begin(ctx context.Context, op string, mctx modelcontext.Context, id identity.Identity) (context.Context, func(*model.Data, Compiled, error)) {
	kind := kindOf(mctx)
	nested := ctx.Value(requestIDKey{}) != nil

	if !nested {
		requestID := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		ctx = m.logger.WithRequestID(requestID).WithContextKind(kind).WithContext(ctx)
	}

	ctx, span := m.tracer.Start(ctx, telemetry.SpanResolve, trace.WithAttributes(
		telemetry.AttrContextKind.String(kind),
		attrOp.String(op),
	))
	timer := telemetry.NewTimer()

	return ctx, func(data *model.Data, compiled Compiled, err error) {
		defer span.End()

		resource := describe(mctx)
		if err != nil {
			class, code := classify(err)
			telemetry.RecordError(span, err)
			span.SetAttributes(telemetry.AttrErrorCode.String(code), telemetry.AttrErrorClass.String(class))
			m.metrics.RecordResolution(kind, "error")
			m.metrics.RecordError(class, code)
			telemetry.FromContext(ctx).WithError(err).Warnf("%s resolution failed", op)
			if !nested {
				_ = m.tel.Events.PublishFailed(kind, resource, id.Name, code, err)
			}
			return
		}

		elements := data.Len()
		if compiled != nil {
			elements = compiled.Len()
		}
		span.SetAttributes(telemetry.AttrElementCount.Int(elements))
		telemetry.RecordSuccess(span)
		m.metrics.RecordResolution(kind, "ok")
		if !nested {
			_ = m.tel.Events.PublishResolved(kind, resource, id.Name, elements, timer.Duration())
		}
	}
}

// compile runs the compiler, wrapping foreign errors as compilation failures.
func (m *Manager) compile(ctx context.Context, data *model.Data, id identity.Identity, packageOffset string) (Compiled, error) {
	ctx, span := m.tracer.Start(ctx, telemetry.SpanCompile, trace.WithAttributes(
		telemetry.AttrElementCount.Int(data.Len()),
	))
	defer span.End()
	timer := telemetry.NewTimer()

	opts := compiler.Options{
		DeploymentMode:    m.opts.DeploymentMode,
		Principal:         id.Name,
		PackageOffset:     packageOffset,
		ProcessParameters: m.opts.ProcessParameters,
	}
	if m.opts.CompileParallelism > 1 {
		g := new(errgroup.Group)
		g.SetLimit(m.opts.CompileParallelism)
		opts.Pool = g
	}

	compiled, err := m.compiler.Compile(ctx, data, opts)
	m.metrics.RecordCompile(timer.Duration())
	if err != nil {
		telemetry.RecordError(span, err)
		var ferr *failure.Error
		if !errors.As(err, &ferr) {
			err = failure.Compilation(err.Error(), nil, err)
		}
		return nil, err
	}

	telemetry.RecordSuccess(span)
	return compiled, nil
}

func classify(err error) (class, code string) {
	var ferr *failure.Error
	if errors.As(err, &ferr) {
		return string(ferr.Class), string(ferr.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "transient", "CANCELED"
	}
	return "permanent", "UNKNOWN"
}

func kindOf(mctx modelcontext.Context) string {
	if isNil(mctx) {
		return "nil"
	}
	return mctx.Kind()
}

// isNil reports whether mctx is nil or a typed nil pointer.
func isNil(mctx modelcontext.Context) bool {
	switch c := mctx.(type) {
	case nil:
		return true
	case *modelcontext.Pointer:
		return c == nil
	case *modelcontext.Data:
		return c == nil
	case *modelcontext.Text:
		return c == nil
	case *modelcontext.Combination:
		return c == nil
	default:
		return false
	}
}

func describe(mctx modelcontext.Context) string {
	if ptr, ok := mctx.(*modelcontext.Pointer); ok && ptr != nil {
		return ptr.String()
	}
	return kindOf(mctx)
}
