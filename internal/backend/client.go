// Package backend implements typed HTTP clients for the platform
// microservices behind the dashboard: community (subscriptions, reactions),
// profiles, and competitive (leaderboard).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/circuitbreaker"
	"github.com/campushq/campus/internal/telemetry"
)

// Service names used for breakers, metrics and error messages.
const (
	ServiceCommunity   = "community"
	ServiceProfiles    = "profiles"
	ServiceCompetitive = "competitive"
)

const (
	requestIDHeader = "X-Request-Id"
	tenantIDHeader  = "X-Tenant-Id"

	maxResponseBody = 4 << 20
)

// Options carries optional collaborators shared by all clients.
type Options struct {
	Breakers *circuitbreaker.Registry // nil = no circuit breaking
	Metrics  *telemetry.Metrics       // nil = no metrics
}

// Client performs JSON calls against one backend service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	prop    propagation.TextMapPropagator
}

// NewClient creates a Client for service rooted at baseURL.
// The provided http.Client should carry auth in its transport chain.
func NewClient(service, baseURL string, hc *http.Client, opts Options) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		metrics: opts.Metrics,
		tracer:  telemetry.Tracer("github.com/campushq/campus/internal/backend"),
		prop:    propagation.TraceContext{},
	}
	if opts.Breakers != nil {
		c.breaker = opts.Breakers.GetOrCreate(service)
	}
	return c
}

// Service returns the service name.
func (c *Client) Service() string { return c.service }

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// op names the call for spans and metrics.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.breaker != nil && !c.breaker.Allow() {
		c.countError("circuit_open")
		return fmt.Errorf("%s %s: %w", c.service, op, campus.ErrBackendUnavailable)
	}

	ctx, span := c.tracer.Start(ctx, c.service+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("campus.backend.service", c.service),
			semconv.HTTPRequestMethodKey.String(method),
		),
	)
	defer span.End()

	start := time.Now()
	status, err := c.roundTrip(ctx, method, path, in, out)
	if c.metrics != nil {
		c.metrics.BackendDuration.WithLabelValues(c.service, op).Observe(time.Since(start).Seconds())
	}
	if c.breaker != nil {
		c.breaker.Record(err)
	}
	if status != 0 {
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	}
	if err != nil {
		if status == 0 {
			c.countError("network")
		} else {
			c.countError(strconv.Itoa(status))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) countError(status string) {
	if c.metrics != nil {
		c.metrics.BackendErrors.WithLabelValues(c.service, status).Inc()
	}
}

// roundTrip returns the response status (0 if none was received).
func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", c.service, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := campus.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}
	if tenant := campus.TenantFromContext(ctx); tenant != "" {
		req.Header.Set(tenantIDHeader, tenant)
	}
	c.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: do request: %w: %w", c.service, campus.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, ParseAPIError(c.service, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s: decode response: %w: %w", c.service, campus.ErrBackend, err)
	}
	return resp.StatusCode, nil
}
