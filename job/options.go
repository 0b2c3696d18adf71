package job

import (
	"log/slog"

	"github.com/crumplecup/arcgis-sub002/backoff"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithSubmitBackoff sets the backoff strategy used when retrying
// submission on retryable failures.
func WithSubmitBackoff(b backoff.Strategy) ClientOption {
	return func(c *Client) { c.bo = b }
}

// WithSubmitMaxAttempts caps submission attempts (the first attempt
// counts). Values below 1 are coerced to 1.
func WithSubmitMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.maxAttempts = n
	}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the structured logger for the poller.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithFailureTolerance sets how many consecutive retryable status
// failures a poll loop absorbs before giving up.
func WithFailureTolerance(n int) PollerOption {
	return func(p *Poller) {
		if n < 0 {
			n = 0
		}
		p.failureTolerance = n
	}
}
