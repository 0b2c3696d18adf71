package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/backoff"
	"github.com/crumplecup/arcgis-sub002/transport"
)

// Service is the capability set a job backend exposes. Client
// implements it over the REST wire contract; tests substitute
// in-memory fakes.
type Service interface {
	Submit(ctx context.Context, params Params) (Handle, error)
	GetStatus(ctx context.Context, h Handle) (StatusInfo, error)
	GetResult(ctx context.Context, h Handle) (json.RawMessage, error)
	GetMessages(ctx context.Context, h Handle) ([]Message, error)
	Cancel(ctx context.Context, h Handle) (Status, error)
}

// Client drives one job backend over its REST mapping:
//
//	POST {base}            submit
//	GET  {base}/{id}/status
//	GET  {base}/{id}/result
//	GET  {base}/{id}/messages
//	POST {base}/{id}/cancel
//
// Submission retries retryable failures with the configured backoff;
// every other operation is a single round trip. Safe for concurrent
// use.
type Client struct {
	doer        transport.Doer
	basePath    string
	logger      *slog.Logger
	bo          backoff.Strategy
	maxAttempts int
}

var _ Service = (*Client)(nil)

// NewClient creates a Client for the backend rooted at basePath
// (for example "/services/Routing/GPServer/Profile/jobs").
func NewClient(d transport.Doer, basePath string, opts ...ClientOption) *Client {
	c := &Client{
		doer:        d,
		basePath:    basePath,
		logger:      slog.Default(),
		bo:          backoff.DefaultStrategy(),
		maxAttempts: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// submitResponse and friends mirror the wire contract.
type submitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type statusResponse struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
}

type cancelResponse struct {
	Status string `json:"status"`
}

type wireMessage struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
	Sequence int    `json:"sequence"`
}

// Submit validates params locally, then posts the job. Network and
// rate-limit failures are retried up to the attempt cap using the
// client's backoff (honoring a server Retry-After hint when larger);
// all other failures surface immediately.
func (c *Client) Submit(ctx context.Context, params Params) (Handle, error) {
	if err := params.Validate(); err != nil {
		return Handle{}, &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.submit", Err: err}
	}

	body := map[string]any{"op": params.Operation}
	if params.Input != nil {
		body["input"] = params.Input
	}

	var resp *transport.Response
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = c.doer.Do(ctx, &transport.Request{
			Method: http.MethodPost,
			Path:   c.basePath,
			Body:   body,
		})
		if err == nil {
			break
		}
		if !arcgis.Retryable(err) || attempt >= c.maxAttempts {
			return Handle{}, err
		}

		delay := c.bo.Delay(attempt)
		if hint := arcgis.RetryAfter(err); hint > delay {
			delay = hint
		}
		c.logger.Warn("job submit retrying",
			slog.String("op", params.Operation),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return Handle{}, sleepErr
		}
	}

	var decoded submitResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return Handle{}, &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.JobID == "" {
		return Handle{}, &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.submit", Err: fmt.Errorf("server returned no job id")}
	}

	h := Handle{ID: decoded.JobID, SubmittedAt: time.Now().UTC()}
	c.logger.Info("job submitted",
		slog.String("job_id", h.ID),
		slog.String("op", params.Operation),
		slog.String("status", decoded.Status),
	)
	return h, nil
}

// GetStatus fetches the current status. Idempotent and side-effect
// free; an expired or unknown handle yields KindNotFound.
func (c *Client) GetStatus(ctx context.Context, h Handle) (StatusInfo, error) {
	resp, err := c.doer.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   c.basePath + "/" + h.ID + "/status",
	})
	if err != nil {
		if arcgis.KindOf(err) == arcgis.KindNotFound {
			return StatusInfo{}, &arcgis.Error{Kind: arcgis.KindNotFound, Op: "job.status", Err: fmt.Errorf("%w: %s", arcgis.ErrJobNotFound, h.ID)}
		}
		return StatusInfo{}, err
	}

	var decoded statusResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return StatusInfo{}, &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.status", Err: fmt.Errorf("decode response: %w", err)}
	}
	status, err := ParseStatus(decoded.Status)
	if err != nil {
		return StatusInfo{}, &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.status", Err: err}
	}

	info := StatusInfo{Status: status}
	if decoded.Progress != nil {
		info.Progress = *decoded.Progress
	}
	return info, nil
}

// GetResult returns the result payload. It checks status first: a
// failed job yields a RemoteFailure carrying the job's messages, any
// other non-succeeded status yields KindNotReady. A stale or garbage
// payload is never returned.
func (c *Client) GetResult(ctx context.Context, h Handle) (json.RawMessage, error) {
	info, err := c.GetStatus(ctx, h)
	if err != nil {
		return nil, err
	}

	switch info.Status {
	case StatusSucceeded:
		// Fall through to the result fetch.
	case StatusFailed:
		msgs, msgErr := c.GetMessages(ctx, h)
		if msgErr != nil {
			c.logger.Warn("failed to fetch messages for failed job",
				slog.String("job_id", h.ID),
				slog.String("error", msgErr.Error()),
			)
		}
		return nil, &arcgis.Error{
			Kind: arcgis.KindRemoteFailure,
			Op:   "job.result",
			Err:  &RemoteFailure{JobID: h.ID, Messages: msgs},
		}
	default:
		return nil, &arcgis.Error{
			Kind: arcgis.KindNotReady,
			Op:   "job.result",
			Err:  fmt.Errorf("%w: status %s", arcgis.ErrResultNotReady, info.Status),
		}
	}

	resp, err := c.doer.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   c.basePath + "/" + h.ID + "/result",
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// GetMessages returns the job's message log, available in any state.
// Messages are ordered by sequence; the sort is a defensive measure
// against backends that interleave message pages.
func (c *Client) GetMessages(ctx context.Context, h Handle) ([]Message, error) {
	resp, err := c.doer.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   c.basePath + "/" + h.ID + "/messages",
	})
	if err != nil {
		return nil, err
	}

	var decoded []wireMessage
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.messages", Err: fmt.Errorf("decode response: %w", err)}
	}

	msgs := make([]Message, 0, len(decoded))
	for _, m := range decoded {
		msgs = append(msgs, Message{
			Severity: parseSeverity(m.Severity),
			Text:     m.Text,
			Sequence: m.Sequence,
		})
	}
	slices.SortStableFunc(msgs, func(a, b Message) int { return a.Sequence - b.Sequence })
	return msgs, nil
}

// Cancel requests best-effort cancellation and returns the status the
// server reports. Cancelling an already-terminal job is a no-op: the
// server echoes the existing terminal status unchanged. The remote
// side may still complete naturally if cancellation loses the race.
func (c *Client) Cancel(ctx context.Context, h Handle) (Status, error) {
	resp, err := c.doer.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   c.basePath + "/" + h.ID + "/cancel",
	})
	if err != nil {
		return "", err
	}

	var decoded cancelResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.cancel", Err: fmt.Errorf("decode response: %w", err)}
	}
	status, err := ParseStatus(decoded.Status)
	if err != nil {
		return "", &arcgis.Error{Kind: arcgis.KindValidation, Op: "job.cancel", Err: err}
	}

	c.logger.Info("job cancel requested",
		slog.String("job_id", h.ID),
		slog.String("status", string(status)),
	)
	return status, nil
}

func parseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError:
		return Severity(s)
	default:
		return SeverityInfo
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
