package resolver

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/modelresolver/pkg/cache"
	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/model"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

var attrOp = attribute.Key("resolver.operation")

// resolveData dispatches on the context kind.
func (m *Manager) resolveData(ctx context.Context, mctx modelcontext.Context, clientVersion string, id identity.Identity) (*model.Data, error) {
	if isNil(mctx) {
		return nil, failure.UnsupportedContext(kindOf(mctx))
	}

	switch c := mctx.(type) {
	case *modelcontext.Pointer:
		return m.pointerData(ctx, c, clientVersion, id)
	case *modelcontext.Data:
		return c.Data, nil
	case *modelcontext.Text:
		return m.parse(ctx, c)
	case *modelcontext.Combination:
		return m.combinationData(ctx, c, clientVersion, id)
	default:
		return nil, failure.UnsupportedContext(kindOf(mctx))
	}
}

// combinationData merges a combination: the first pointer's data, the
// remaining pointers' data in order, then every inline member in order.
func (m *Manager) combinationData(ctx context.Context, c *modelcontext.Combination, clientVersion string, id identity.Identity) (*model.Data, error) {
	flat := modelcontext.Flatten(c)
	if len(flat.Unsupported) > 0 {
		return nil, failure.UnsupportedContext(flat.Unsupported[0])
	}

	concretes := make([]*model.Data, 0, len(flat.Concretes))
	for _, member := range flat.Concretes {
		if member.Text != nil {
			parsed, err := m.parse(ctx, member.Text)
			if err != nil {
				return nil, err
			}
			concretes = append(concretes, parsed)
			continue
		}
		concretes = append(concretes, member.Data)
	}

	if len(flat.Pointers) > 0 {
		var merged *model.Data
		for i, ptr := range flat.Pointers {
			data, err := m.pointerData(ctx, ptr, clientVersion, id)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				merged = data
				continue
			}
			merged = model.Combine(merged, data)
		}
		return model.CombineAll(merged, concretes...), nil
	}

	if len(concretes) > 0 {
		return model.CombineAll(concretes[0], concretes[1:]...), nil
	}

	return nil, failure.NoContent().WithKind(modelcontext.KindCombination)
}

func (m *Manager) parse(ctx context.Context, text *modelcontext.Text) (*model.Data, error) {
	data, err := m.parser.ParseModel(ctx, text.Text)
	if err != nil {
		var ferr *failure.Error
		if !errors.As(err, &ferr) {
			err = failure.Parse(err.Error(), nil, err)
		}
		return nil, err
	}
	return data, nil
}

// pointerData loads raw data for ptr through the data tier.
func (m *Manager) pointerData(ctx context.Context, ptr *modelcontext.Pointer, clientVersion string, id identity.Identity) (*model.Data, error) {
	l, err := m.registry.Select(ptr)
	if err != nil {
		return nil, err
	}

	ctx, err = loader.Enter(ctx, ptr.String())
	if err != nil {
		return nil, err
	}

	return cached(ctx, m, l, ptr, id, TierData, "", m.data, func(ctx context.Context) (*model.Data, error) {
		return m.load(ctx, l, ptr, clientVersion, id)
	})
}

// pointerModel compiles the data for ptr through the model tier, loading
// the data through the data tier on a miss.
func (m *Manager) pointerModel(ctx context.Context, ptr *modelcontext.Pointer, clientVersion string, id identity.Identity, packageOffset string) (Compiled, error) {
	return m.compilePointer(ctx, ptr, id, packageOffset, func(ctx context.Context) (*model.Data, error) {
		return m.pointerData(ctx, ptr, clientVersion, id)
	})
}

// compilePointer serves the compiled model for ptr from the model tier.
// source supplies the data to compile on a miss.
func (m *Manager) compilePointer(ctx context.Context, ptr *modelcontext.Pointer, id identity.Identity, packageOffset string, source func(context.Context) (*model.Data, error)) (Compiled, error) {
	l, err := m.registry.Select(ptr)
	if err != nil {
		return nil, err
	}

	suffix := ""
	if packageOffset != "" {
		suffix = "#" + packageOffset
	}

	return cached(ctx, m, l, ptr, id, TierModel, suffix, m.models, func(ctx context.Context) (Compiled, error) {
		data, err := source(ctx)
		if err != nil {
			return nil, err
		}
		return m.compile(ctx, data, id, packageOffset)
	})
}

// load invokes the loader inside a loader.load span.
func (m *Manager) load(ctx context.Context, l loader.Loader, ptr *modelcontext.Pointer, clientVersion string, id identity.Identity) (*model.Data, error) {
	ctx, span := m.tracer.Start(ctx, telemetry.SpanLoad, trace.WithAttributes(
		telemetry.AttrLoaderName.String(l.Name()),
		telemetry.AttrPointer.String(ptr.String()),
		telemetry.AttrContextKind.String(modelcontext.KindPointer),
	))
	defer span.End()
	ctx = telemetry.WithAttemptTally(ctx)

	logger := telemetry.FromContext(ctx).WithLoader(l.Name(), ptr.String())
	ctx = logger.WithContext(ctx)
	logger.Debug("loading model data")

	timer := telemetry.NewTimer()
	data, err := l.Load(ctx, loader.Request{Identity: id, Pointer: ptr, ClientVersion: clientVersion})
	m.metrics.RecordLoad(l.Name(), timer.Duration())
	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).Error("failed to load model data")
		return nil, err
	}

	span.SetAttributes(telemetry.AttrElementCount.Int(data.Len()))
	telemetry.RecordSuccess(span)
	logger.Debugf("loaded %d elements in %s", data.Len(), timer.Duration())
	return data, nil
}

// cached serves compute through tier when the loader allows caching ptr,
// and calls compute directly otherwise.
func cached[V any](ctx context.Context, m *Manager, l loader.Loader, ptr *modelcontext.Pointer, id identity.Identity, tier, suffix string, c *cache.Cache[V], compute func(context.Context) (V, error)) (V, error) {
	logger := telemetry.FromContext(ctx)

	if !l.ShouldCache(ptr) {
		m.metrics.RecordCacheRequest(tier, "bypass")
		logger.Debugf("%s is not cacheable, bypassing %s cache", ptr, tier)
		return compute(ctx)
	}

	var zero V
	key, err := l.CacheKey(ctx, ptr, id)
	if err != nil {
		return zero, err
	}

	v, outcome, err := c.GetOrCompute(ctx, string(key)+suffix, compute)
	m.metrics.RecordCacheRequest(tier, string(outcome))
	logger.Debugf("%s cache %s for %s", tier, outcome, key)
	m.metrics.SetCacheEntries(tier, c.Len())
	if err != nil {
		return zero, err
	}
	return v, nil
}
