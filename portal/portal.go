// Package portal wires the SDK subsystems together: one shared
// rate-limit gate and transport, with per-backend job clients and
// layer editors hanging off a single Portal value.
//
// This package sits above the subsystem packages the same way the
// root package sits below them; it exists so the root package (which
// defines the error taxonomy everything imports) never has to import
// its own subpackages back.
package portal

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/edit"
	"github.com/crumplecup/arcgis-sub002/job"
	"github.com/crumplecup/arcgis-sub002/ratelimit"
	"github.com/crumplecup/arcgis-sub002/transport"
)

// Portal is a configured session against one GIS backend base URL.
// All job clients and editors created from it share the same
// transport and rate-limit gate. Safe for concurrent use.
type Portal struct {
	config arcgis.Config
	gate   *ratelimit.Gate
	tp     *transport.Transport
	logger *slog.Logger

	// Deferred transport options collected by Build.
	token      transport.TokenSupplier
	httpClient *http.Client
	tracerProv trace.TracerProvider
}

// Option configures a Portal.
type Option func(*Portal)

// WithConfig replaces the default configuration.
func WithConfig(cfg arcgis.Config) Option {
	return func(p *Portal) { p.config = cfg }
}

// WithToken sets the auth-token supplier for all outbound calls.
func WithToken(s transport.TokenSupplier) Option {
	return func(p *Portal) { p.token = s }
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(p *Portal) { p.logger = l }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Portal) { p.httpClient = c }
}

// WithTracerProvider sets a custom OTel TracerProvider for transport
// spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Portal) { p.tracerProv = tp }
}

// Build creates a Portal for the given base URL.
func Build(baseURL string, opts ...Option) (*Portal, error) {
	p := &Portal{
		config: arcgis.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.gate = ratelimit.New(p.config.RateLimit, p.config.RateBurst, p.config.MaxInFlight)

	tpOpts := []transport.Option{
		transport.WithLogger(p.logger),
		transport.WithGate(p.gate),
		transport.WithTimeout(p.config.RequestTimeout),
	}
	if p.httpClient != nil {
		tpOpts = append(tpOpts, transport.WithHTTPClient(p.httpClient))
	}
	if p.token != nil {
		tpOpts = append(tpOpts, transport.WithTokenSupplier(p.token))
	}
	if p.tracerProv != nil {
		tpOpts = append(tpOpts, transport.WithTracerProvider(p.tracerProv))
	}

	tp, err := transport.New(baseURL, tpOpts...)
	if err != nil {
		return nil, err
	}
	p.tp = tp
	return p, nil
}

// Config returns a copy of the portal's configuration.
func (p *Portal) Config() arcgis.Config { return p.config }

// Transport returns the shared transport for callers composing their
// own components.
func (p *Portal) Transport() transport.Doer { return p.tp }

// jobClient builds a job client rooted at basePath with the portal's
// shared settings.
func (p *Portal) jobClient(basePath string) *job.Client {
	return job.NewClient(p.tp, basePath,
		job.WithLogger(p.logger),
		job.WithSubmitMaxAttempts(p.config.SubmitMaxAttempts),
	)
}

// Geoprocessing returns the job client for one geoprocessing task.
func (p *Portal) Geoprocessing(service, task string) *job.Client {
	return p.jobClient("/services/" + service + "/GPServer/" + task + "/jobs")
}

// Elevation returns the job client for asynchronous elevation
// analysis.
func (p *Portal) Elevation() *job.Client {
	return p.jobClient("/elevation/analysis/jobs")
}

// Publisher returns the job client for portal publish jobs.
func (p *Portal) Publisher() *job.Client {
	return p.jobClient("/portal/publish/jobs")
}

// Poller returns a poller with the given policy, sharing the portal's
// logger. Poll backoff state is per call, so one poller may drive any
// number of concurrent jobs.
func (p *Portal) Poller(policy job.Policy) *job.Poller {
	return job.NewPoller(policy, job.WithPollerLogger(p.logger))
}

// DefaultPolicy returns the poll policy derived from the portal
// configuration.
func (p *Portal) DefaultPolicy() job.Policy {
	return job.Policy{
		BaseInterval: p.config.PollBaseInterval,
		MaxInterval:  p.config.PollMaxInterval,
		Deadline:     p.config.PollDeadline,
		Jitter:       0.1,
	}
}

// Layer returns an editor bound to one feature layer.
func (p *Portal) Layer(layerID string) *Layer {
	return &Layer{
		id: layerID,
		coordinator: edit.NewCoordinator(p.tp,
			edit.WithLogger(p.logger),
		),
	}
}

// Layer is an edit coordinator bound to a single feature layer.
type Layer struct {
	id          string
	coordinator *edit.Coordinator
}

// ID returns the bound layer identifier.
func (l *Layer) ID() string { return l.id }

// ApplyEdits submits one atomic batch edit against the bound layer.
func (l *Layer) ApplyEdits(ctx context.Context, req *edit.Request) (*edit.Result, error) {
	return l.coordinator.ApplyEdits(ctx, l.id, req)
}
