package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openfroyo/modelresolver/pkg/authz"
	"github.com/openfroyo/modelresolver/pkg/compiler"
	"github.com/openfroyo/modelresolver/pkg/config"
	"github.com/openfroyo/modelresolver/pkg/grammar"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/loaders/archive"
	"github.com/openfroyo/modelresolver/pkg/loaders/depot"
	"github.com/openfroyo/modelresolver/pkg/loaders/sdlc"
	"github.com/openfroyo/modelresolver/pkg/resolver"
	"github.com/openfroyo/modelresolver/pkg/stores"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

// app is the wired resolver stack for one command invocation.
type app struct {
	cfg     *config.Config
	tel     *telemetry.Telemetry
	authz   *authz.Authorizer
	store   *stores.SQLiteStore
	manager *resolver.Manager
	metrics *http.Server
	logger  *telemetry.Logger
}

func newApp(ctx context.Context, opts *globalOptions) (_ *app, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if opts.metricsAddr != "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.ListenAddress = opts.metricsAddr
	}
	if opts.clientVersion != "" {
		cfg.ClientVersion = opts.clientVersion
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{cfg: cfg, tel: tel, logger: tel.Logger.NewComponentLogger("modelctl")}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	a.authz, err = authz.New(ctx, cfg.Authz, tel)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policies: %w", err)
	}

	var providers []loader.Provider
	if cfg.SDLC.Enabled {
		providers = append(providers, sdlc.NewProvider(cfg.SDLC.Config))
	}
	if cfg.Depot.Enabled {
		providers = append(providers, depot.NewProvider(cfg.Depot.Config))
	}
	if cfg.Archive.Enabled {
		a.store, err = stores.Open(ctx, cfg.Archive.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		providers = append(providers, archive.NewProvider(a.store))
	}

	a.manager, err = resolver.New(resolver.Options{
		IdleTTL:            cfg.Cache.IdleTTL,
		MaxDataEntries:     cfg.Cache.MaxDataEntries,
		MaxModelEntries:    cfg.Cache.MaxModelEntries,
		DeploymentMode:     cfg.Compiler.DeploymentMode,
		ProcessParameters:  cfg.Compiler.ProcessParameters,
		CompileParallelism: cfg.Compiler.Parallelism,
		Telemetry:          tel,
		Authorizer:         a.authz,
	}, compiler.New(), grammar.NewParser(), providers...)
	if err != nil {
		return nil, err
	}

	if opts.metricsAddr != "" {
		if err := a.serveMetrics(); err != nil {
			return nil, err
		}
	}

	a.logger.Debugf("resolver ready with loaders %v", a.manager.Loaders())
	return a, nil
}

func (a *app) serveMetrics() error {
	srv, err := a.tel.Metrics.NewMetricsServer()
	if err != nil {
		return err
	}
	a.metrics = srv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("metrics server failed")
		}
	}()
	a.logger.Infof("serving metrics on %s", srv.Addr)
	return nil
}

// requireArchive returns the archive store or explains why there is none.
func (a *app) requireArchive() (*stores.SQLiteStore, error) {
	if a.store == nil {
		return nil, errors.New("the archive is disabled (archive.enabled=false)")
	}
	return a.store, nil
}

func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.authz != nil {
		errs = append(errs, a.authz.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// withApp runs fn against a freshly wired stack and tears it down after.
func withApp(ctx context.Context, opts *globalOptions, fn func(*app) error) (err error) {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func (opts *globalOptions) identity() identity.Identity {
	return identity.Identity{Name: opts.principal, Groups: opts.groups, Token: opts.token}
}
