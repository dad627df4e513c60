package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/loader"
	"github.com/openfroyo/modelresolver/pkg/modelcontext"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

// Config selects the policy source.
type Config struct {
	// PolicyDir holds .rego files. Empty selects the built-in policy.
	PolicyDir string `mapstructure:"policy_dir" yaml:"policy_dir"`

	// Watch recompiles the policy set when files under PolicyDir change.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// Authorizer evaluates Rego policies against identity and pointer.
type Authorizer struct {
	cfg    Config
	logger *telemetry.Logger
	events *telemetry.EventPublisher
	policy atomic.Pointer[policySet]

	reloadMu sync.Mutex
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	wg       sync.WaitGroup
}

var _ loader.Authorizer = (*Authorizer)(nil)

// New compiles the configured policy set. tel may be nil.
func New(ctx context.Context, cfg Config, tel *telemetry.Telemetry) (*Authorizer, error) {
	if tel == nil {
		tel = telemetry.Nop()
	}

	a := &Authorizer{
		cfg:    cfg,
		logger: tel.Logger.NewComponentLogger("authz"),
		events: tel.Events,
	}

	if err := a.Reload(ctx); err != nil {
		return nil, err
	}

	if cfg.Watch && cfg.PolicyDir != "" {
		if err := a.watch(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Reload recompiles the policy set from its source. On failure the current
// set stays in force.
func (a *Authorizer) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	var (
		sources []source
		err     error
	)
	if a.cfg.PolicyDir == "" {
		sources, err = builtinSources()
	} else {
		sources, err = dirSources(a.cfg.PolicyDir)
	}
	if err != nil {
		return err
	}

	set, err := compile(ctx, sources)
	if err != nil {
		return err
	}

	a.policy.Store(set)
	a.logger.WithField("modules", len(set.modules)).Info("Authorization policies loaded")
	_ = a.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypePolicyReloaded,
		Source:  "authz",
		Message: fmt.Sprintf("loaded %d policy modules", len(set.modules)),
		Data: map[string]interface{}{
			"modules": set.modules,
		},
	})
	return nil
}

// Modules lists the module names of the active policy set.
func (a *Authorizer) Modules() []string {
	return append([]string(nil), a.policy.Load().modules...)
}

// Authorize implements loader.Authorizer.
func (a *Authorizer) Authorize(ctx context.Context, id identity.Identity, ptr *modelcontext.Pointer) error {
	resource := ptr.String()
	principal := id.Name
	if id.IsAnonymous() {
		principal = identity.Anonymous.Name
	}

	if ptr == nil || ptr.SDLC == nil {
		return failure.Unauthorized(principal, resource, "no resource")
	}

	input, err := buildInput(id, ptr)
	if err != nil {
		return fmt.Errorf("failed to build authorization input: %w", err)
	}

	d, err := a.policy.Load().eval(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to authorize %s: %w", resource, err)
	}
	if d.allow {
		return nil
	}

	reason := strings.Join(d.reasons, "; ")
	if reason == "" {
		reason = "denied by policy"
	}
	a.logger.WithFields(map[string]interface{}{
		"principal": principal,
		"resource":  resource,
		"reason":    reason,
	}).Warn("Access denied")
	_ = a.events.PublishAccessDenied(resource, principal, reason)

	return failure.Unauthorized(principal, resource, reason)
}

// Close stops the policy watcher, if any.
func (a *Authorizer) Close() error {
	if a.watcher == nil {
		return nil
	}
	close(a.stop)
	err := a.watcher.Close()
	a.wg.Wait()
	a.watcher = nil
	return err
}

func buildInput(id identity.Identity, ptr *modelcontext.Pointer) (map[string]interface{}, error) {
	raw, err := json.Marshal(ptr.SDLC)
	if err != nil {
		return nil, err
	}
	var coords map[string]interface{}
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, err
	}

	groups := id.Groups
	if groups == nil {
		groups = []string{}
	}

	return map[string]interface{}{
		"principal": map[string]interface{}{
			"name":      id.Name,
			"groups":    groups,
			"anonymous": id.IsAnonymous(),
		},
		"store":    ptr.SDLC.Store(),
		"kind":     sdlcKind(ptr.SDLC),
		"resource": ptr.SDLC.String(),
		"sdlc":     coords,
	}, nil
}

func sdlcKind(s modelcontext.SDLC) string {
	switch s.(type) {
	case modelcontext.ProjectVersion, *modelcontext.ProjectVersion:
		return "projectVersion"
	case modelcontext.Workspace, *modelcontext.Workspace:
		return "workspace"
	case modelcontext.ProjectRevision, *modelcontext.ProjectRevision:
		return "projectRevision"
	case modelcontext.ArchivedVersion, *modelcontext.ArchivedVersion:
		return "archivedVersion"
	default:
		return "unknown"
	}
}
