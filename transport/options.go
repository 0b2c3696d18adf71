package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/crumplecup/arcgis-sub002/ratelimit"
)

// tracerName is the instrumentation scope name for transport tracing.
const tracerName = "github.com/crumplecup/arcgis-sub002/transport"

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient sets the underlying *http.Client. When not set, a
// pooled client with a 30s timeout is used.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithTimeout sets the round-trip timeout on the default HTTP client.
// Ignored when WithHTTPClient is also given.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if t.client == nil {
			t.client = defaultHTTPClient()
		}
		t.client.Timeout = d
	}
}

// WithTokenSupplier sets the auth-token source for outbound requests.
func WithTokenSupplier(s TokenSupplier) Option {
	return func(t *Transport) { t.token = s }
}

// WithGate routes all outbound calls through the shared rate-limit
// gate. A nil gate disables limiting.
func WithGate(g *ratelimit.Gate) Option {
	return func(t *Transport) { t.gate = g }
}

// WithLogger sets the structured logger for the transport.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithTracerProvider sets a custom OTel TracerProvider. When not set,
// the global otel.GetTracerProvider() is used (noop by default).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Transport) { t.tracer = tp.Tracer(tracerName) }
}

// defaultHTTPClient returns a pooled client that does not share state
// with other packages.
func defaultHTTPClient() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = 30 * time.Second
	return c
}
