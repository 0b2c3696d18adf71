package arcgis

import "time"

// Config holds the shared tuning knobs for a portal session.
type Config struct {
	// RequestTimeout bounds a single HTTP round trip.
	RequestTimeout time.Duration

	// SubmitMaxAttempts caps automatic retries of job submission on
	// retryable failures. The first attempt counts.
	SubmitMaxAttempts int

	// PollBaseInterval is the initial delay between status checks.
	PollBaseInterval time.Duration

	// PollMaxInterval caps the exponential poll backoff.
	PollMaxInterval time.Duration

	// PollDeadline is the default total time a poll loop may run
	// before reporting a local timeout.
	PollDeadline time.Duration

	// RateLimit is the sustained outbound requests per second shared
	// by all jobs and edits. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst size. Defaults to 1 when
	// RateLimit is set but RateBurst is zero.
	RateBurst int

	// MaxInFlight limits concurrent outbound requests. Zero means no
	// limit.
	MaxInFlight int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:    30 * time.Second,
		SubmitMaxAttempts: 4,
		PollBaseInterval:  1 * time.Second,
		PollMaxInterval:   30 * time.Second,
		PollDeadline:      15 * time.Minute,
		RateLimit:         0,
		RateBurst:         1,
		MaxInFlight:       0,
	}
}
