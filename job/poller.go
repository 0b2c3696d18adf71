package job

import (
	"context"
	"log/slog"
	"time"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/backoff"
)

// StatusGetter is the slice of Service the poller needs.
type StatusGetter interface {
	GetStatus(ctx context.Context, h Handle) (StatusInfo, error)
}

// Policy controls one poll loop. The interval before status check n+1
// is min(MaxInterval, BaseInterval * 2^(n-1)) plus jitter.
type Policy struct {
	// BaseInterval is the delay before the second status check.
	BaseInterval time.Duration

	// MaxInterval caps the exponential growth.
	MaxInterval time.Duration

	// Deadline bounds the whole loop. Zero means poll until terminal
	// or context cancellation. Exceeding the deadline reports a local
	// timeout; the remote job keeps running.
	Deadline time.Duration

	// Jitter is the additive jitter fraction in (0, 1]. Zero disables
	// jitter, which keeps intervals exactly exponential.
	Jitter float64
}

// DefaultPolicy returns the polling defaults: 1s base, 30s cap, 15m
// deadline, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseInterval: 1 * time.Second,
		MaxInterval:  30 * time.Second,
		Deadline:     15 * time.Minute,
		Jitter:       0.1,
	}
}

// strategy builds the backoff strategy the policy describes.
func (p Policy) strategy() backoff.Strategy {
	if p.Jitter > 0 {
		return backoff.NewExponentialWithJitter(p.BaseInterval, p.MaxInterval, p.Jitter)
	}
	return backoff.NewExponential(p.BaseInterval, p.MaxInterval)
}

// Poller drives a job through repeated status checks until a terminal
// state, the policy deadline, or context cancellation. Backoff state
// is local to each PollUntilComplete call, so concurrent polls for
// distinct jobs are fully independent. Safe for concurrent use.
type Poller struct {
	policy           Policy
	logger           *slog.Logger
	failureTolerance int
}

// NewPoller creates a Poller with the given policy.
func NewPoller(policy Policy, opts ...PollerOption) *Poller {
	p := &Poller{
		policy:           policy,
		logger:           slog.Default(),
		failureTolerance: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollUntilComplete polls svc until the job reaches a terminal
// status. It returns the first terminal status observed, or an error:
//
//   - KindTimeout (carrying a *TimeoutError with the last observed
//     status) once elapsed time exceeds the policy deadline;
//   - the context error when ctx is cancelled, which aborts only the
//     local wait loop and never touches the remote job;
//   - any non-retryable status error, immediately.
//
// Retryable status errors are absorbed up to the failure tolerance.
// Stale responses (an earlier state-machine position than already
// observed) are discarded so the reported progression stays
// monotonic.
func (p *Poller) PollUntilComplete(ctx context.Context, svc StatusGetter, h Handle) (Status, error) {
	start := time.Now()
	var deadlineAt time.Time
	if p.policy.Deadline > 0 {
		deadlineAt = start.Add(p.policy.Deadline)
	}

	bo := p.policy.strategy()
	last := StatusSubmitted
	failures := 0

	for attempt := 1; ; attempt++ {
		info, err := svc.GetStatus(ctx, h)
		var hint time.Duration
		switch {
		case err == nil:
			failures = 0
			if info.Status.ordinal() < last.ordinal() {
				p.logger.Warn("discarding stale status read",
					slog.String("job_id", h.ID),
					slog.String("stale", string(info.Status)),
					slog.String("kept", string(last)),
				)
			} else {
				last = info.Status
			}
			if last.Terminal() {
				p.logger.Info("job reached terminal status",
					slog.String("job_id", h.ID),
					slog.String("status", string(last)),
					slog.Duration("elapsed", time.Since(start)),
				)
				return last, nil
			}
		case !arcgis.Retryable(err):
			return last, err
		default:
			failures++
			if failures > p.failureTolerance {
				return last, err
			}
			hint = arcgis.RetryAfter(err)
			p.logger.Warn("status check failed, continuing",
				slog.String("job_id", h.ID),
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
		}

		delay := bo.Delay(attempt)
		if hint > delay {
			delay = hint
		}

		if !deadlineAt.IsZero() {
			remaining := time.Until(deadlineAt)
			if remaining <= 0 {
				return last, p.timeout(h, last)
			}
			if delay >= remaining {
				// The next check would land past the deadline. Wait
				// out the remainder so the timeout lands in
				// [deadline, deadline+interval), then report it.
				if sleepErr := sleep(ctx, remaining); sleepErr != nil {
					return last, sleepErr
				}
				return last, p.timeout(h, last)
			}
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return last, sleepErr
		}
	}
}

func (p *Poller) timeout(h Handle, last Status) error {
	p.logger.Warn("poll deadline exceeded, remote job left running",
		slog.String("job_id", h.ID),
		slog.String("last_status", string(last)),
	)
	return &arcgis.Error{
		Kind: arcgis.KindTimeout,
		Op:   "job.poll",
		Err:  &TimeoutError{LastStatus: last},
	}
}
