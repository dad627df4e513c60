// Package remote fetches model data from HTTP stores with classified retry.
//
// Server errors (5xx), throttling (429) and network failures are transient
// and retried up to the configured attempt cap. Any other non-2xx status is
// a hard failure and is returned at once. Every attempt runs in its own
// "remote.<op>" span; the caller's span receives the final attempt count.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/modelresolver/pkg/failure"
	"github.com/openfroyo/modelresolver/pkg/identity"
	"github.com/openfroyo/modelresolver/pkg/telemetry"
)

// ClientVersionHeader carries the caller's model protocol version.
const ClientVersionHeader = "X-Model-Client-Version"

const maxErrorBody = 512

// Config configures a Client.
type Config struct {
	// Name identifies the owning loader in metrics and events.
	Name string

	// Store names the remote store in error messages.
	Store string

	// BaseURL is the store's API root.
	BaseURL string

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	Retry RetryConfig

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client

	Tracer  trace.Tracer
	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Events  *telemetry.EventPublisher
}

// Client issues GET requests against one store.
type Client struct {
	name    string
	store   string
	baseURL *url.URL
	http    *http.Client
	retry   RetryConfig
	tracer  trace.Tracer
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// Request describes one logical fetch.
type Request struct {
	// Op names the attempt span: "remote." + Op.
	Op string

	// What describes the resource in error messages, e.g. "workspace p/w".
	What string

	// Path is resolved against the base URL.
	Path  string
	Query url.Values

	// Kind is recorded as context.kind on attempt spans.
	Kind string

	Identity      identity.Identity
	ClientVersion string
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", cfg.Name)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base url %q: %w", cfg.Name, cfg.BaseURL, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	retry := cfg.Retry.withDefaults()
	if _, err := retry.newBackOff(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	return &Client{
		name:    cfg.Name,
		store:   cfg.Store,
		baseURL: base,
		http:    httpClient,
		retry:   retry,
		tracer:  telemetry.TracerOrNoop(cfg.Tracer),
		logger:  logger,
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}, nil
}

// GetJSON fetches req and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, req Request, out any) error {
	body, err := c.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return failure.RemoteHard(
			fmt.Sprintf("Error loading %s: invalid response from the %s SDLC using %s", req.What, c.store, c.resolve(req)),
			err)
	}
	return nil
}

// Get fetches req, retrying transient failures. The number of attempts is
// recorded on the span active in ctx, per operation and as a running total.
func (c *Client) Get(ctx context.Context, req Request) ([]byte, error) {
	target := c.resolve(req)
	logger := telemetry.FromContext(ctx)

	bo, err := c.retry.newBackOff()
	if err != nil {
		return nil, err
	}

	attempts := 0
	var lastErr error
	operation := func() ([]byte, error) {
		attempts++
		body, err := c.attempt(ctx, req, target, attempts)
		if err == nil {
			c.metrics.RecordLoaderAttempt(c.name, "ok")
			return body, nil
		}
		lastErr = err

		if failure.Is(err, failure.CodeRemoteHard) || ctx.Err() != nil {
			c.metrics.RecordLoaderAttempt(c.name, "fail")
			return nil, backoff.Permanent(err)
		}
		if attempts < c.retry.MaxAttempts {
			c.metrics.RecordLoaderAttempt(c.name, "retry")
		} else {
			c.metrics.RecordLoaderAttempt(c.name, "fail")
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		logger.WithError(err).Warnf("transient failure loading %s (attempt %d/%d), retrying in %s",
			req.What, attempts, c.retry.MaxAttempts, wait)
		_ = c.events.PublishRetry(c.name, target, attempts, err)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	telemetry.RecordRemoteAttempts(ctx, req.Op, attempts)
	if err == nil {
		return body, nil
	}

	if lastErr == nil {
		lastErr = err
	}
	if failure.Is(lastErr, failure.CodeRemoteHard) {
		return nil, lastErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("loading %s cancelled after %d attempts: %w", req.What, attempts, ctxErr)
	}
	return nil, failure.RemoteTransient(
		fmt.Sprintf("Error loading %s: unable to load information from the %s SDLC using %s after %d attempts",
			req.What, c.store, target, attempts),
		lastErr)
}

// attempt performs one HTTP round trip inside its own span.
func (c *Client) attempt(ctx context.Context, req Request, target string, n int) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "remote."+req.Op, trace.WithAttributes(
		telemetry.AttrContextKind.String(req.Kind),
		telemetry.AttrRemoteAttempt.Int(n),
		telemetry.AttrHTTPURL.String(target),
	))
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		err = failure.RemoteHard(fmt.Sprintf("Error loading %s: invalid request %s", req.What, target), err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.ClientVersion != "" {
		httpReq.Header.Set(ClientVersionHeader, req.ClientVersion)
	}
	if req.Identity.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Identity.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("request to %s failed: %w", target, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(telemetry.AttrHTTPStatus.Int(resp.StatusCode))
	body, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil {
			err = fmt.Errorf("reading response from %s: %w", target, readErr)
			telemetry.RecordError(span, err)
			return nil, err
		}
		telemetry.RecordSuccess(span)
		return body, nil

	case isTransientStatus(resp.StatusCode):
		err = fmt.Errorf("%s returned status %d: %s", target, resp.StatusCode, snippet(body))
		telemetry.RecordError(span, err)
		return nil, err

	default:
		err = failure.RemoteHard(
			fmt.Sprintf("Error loading %s: unable to load information from the %s SDLC using %s (status %d)",
				req.What, c.store, target, resp.StatusCode),
			errors.New(snippet(body)))
		telemetry.RecordError(span, err)
		return nil, err
	}
}

func (c *Client) resolve(req Request) string {
	u := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(req.Path, "/")})
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

func isTransientStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}
