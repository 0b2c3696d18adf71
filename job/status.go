package job

import (
	"fmt"

	arcgis "github.com/crumplecup/arcgis-sub002"
)

// Status represents the lifecycle state of a remote job.
type Status string

const (
	// StatusSubmitted means the server accepted the job but no worker
	// has picked it up yet.
	StatusSubmitted Status = "submitted"
	// StatusExecuting means the remote side is working on the job.
	StatusExecuting Status = "executing"
	// StatusSucceeded means the job finished and a result is available.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job finished unsuccessfully; messages
	// carry the detail.
	StatusFailed Status = "failed"
	// StatusCancelling means a cancel request was acknowledged but the
	// job has not yet stopped.
	StatusCancelling Status = "cancelling"
	// StatusCancelled means the job was stopped before completing.
	StatusCancelled Status = "cancelled"
	// StatusTimedOut is a local classification: the poll deadline
	// lapsed. The remote job may still be running. It is never
	// reported by the server.
	StatusTimedOut Status = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	case StatusSubmitted, StatusExecuting, StatusCancelling:
		return false
	default:
		return false
	}
}

// ordinal positions a status in the state machine so the poller can
// reject stale reads: a response observing an earlier position never
// overwrites a later one.
func (s Status) ordinal() int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusExecuting:
		return 1
	case StatusCancelling:
		return 2
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut:
		return 3
	default:
		return -1
	}
}

// transitions is the legal state DAG. Single entry (Submitted), four
// terminal states. Cancelling may still end in Succeeded or Failed
// when cancellation loses the race against natural completion.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusExecuting, StatusSucceeded, StatusFailed, StatusCancelling, StatusCancelled},
	StatusExecuting:  {StatusSucceeded, StatusFailed, StatusCancelling, StatusCancelled},
	StatusCancelling: {StatusCancelled, StatusSucceeded, StatusFailed},
}

// CanTransition reports whether moving from one status to another is
// legal. Any non-terminal status may transition to the local-only
// TimedOut classification.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if to == StatusTimedOut {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus decodes a wire status string. TimedOut is rejected: it
// is a local classification and a server reporting it indicates a
// protocol violation.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSubmitted, StatusExecuting, StatusSucceeded, StatusFailed, StatusCancelling, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", arcgis.ErrStatusUnknown, s)
	}
}
