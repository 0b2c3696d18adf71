// Package transport implements the authenticated HTTP collaborator
// the SDK core consumes. It exposes a single Do capability that
// performs one round trip, classifies failures into the arcgis error
// taxonomy, and extracts the server's retry hints. Retry policy
// itself lives with the callers (job client and poller); the
// transport never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/ratelimit"
)

// Request is one logical call against the backend. Body, when
// non-nil, is JSON-encoded.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response carries the raw outcome of a successful round trip.
// RetryAfter is the server's backoff hint when one was present.
type Response struct {
	StatusCode int
	Body       []byte
	RetryAfter time.Duration
}

// Doer is the single capability the core consumes from its transport.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TokenSupplier provides the auth token for a request. The transport
// does not manage credentials itself.
type TokenSupplier func(ctx context.Context) (string, error)

// Transport performs authenticated HTTP calls against one backend
// base URL. All outbound calls pass through the shared rate-limit
// gate when one is configured. Safe for concurrent use.
type Transport struct {
	base   *url.URL
	client *http.Client
	token  TokenSupplier
	gate   *ratelimit.Gate
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Transport for the given base URL.
func New(baseURL string, opts ...Option) (*Transport, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url %q: %w", baseURL, err)
	}

	t := &Transport{
		base:   base,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = defaultHTTPClient()
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(tracerName)
	}
	return t, nil
}

// Do performs one round trip. Non-2xx responses and connection
// failures are returned as *arcgis.Error; the response body (when
// read) is preserved on the Response even for failures so callers can
// log server detail.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	op := fmt.Sprintf("%s %s", req.Method, req.Path)

	release, err := t.gate.Acquire(ctx)
	if err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindNetwork, Op: op, Err: err}
	}
	defer release()

	ctx, span := t.tracer.Start(ctx, "arcgis.transport.do",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.Path),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	httpReq, err := t.buildRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &arcgis.Error{Kind: arcgis.KindNetwork, Op: op, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &arcgis.Error{Kind: arcgis.KindNetwork, Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")),
	}

	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		kind := arcgis.ClassifyStatus(httpResp.StatusCode)
		span.SetStatus(codes.Error, kind.String())
		t.logger.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Int("status", httpResp.StatusCode),
			slog.String("kind", kind.String()),
		)
		return resp, &arcgis.Error{
			Kind:       kind,
			Op:         op,
			StatusCode: httpResp.StatusCode,
			RetryAfter: resp.RetryAfter,
			Err:        serverError(body),
		}
	}

	span.SetStatus(codes.Ok, "")
	t.logger.Debug("request completed",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", httpResp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// buildRequest assembles the *http.Request: resolved URL, JSON body,
// auth token, and a per-request id for server-side correlation.
func (t *Transport) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	op := fmt.Sprintf("%s %s", req.Method, req.Path)

	u := t.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: op, Err: fmt.Errorf("marshal body: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: op, Err: err}
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	if t.token != nil {
		token, err := t.token(ctx)
		if err != nil {
			return nil, &arcgis.Error{Kind: arcgis.KindPermission, Op: op, Err: fmt.Errorf("token supplier: %w", err)}
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return httpReq, nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// serverError extracts the error detail from a failure body. GIS
// backends wrap errors as {"error": {"code": n, "message": "..."}}.
func serverError(body []byte) error {
	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return fmt.Errorf("server code %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return nil
}
