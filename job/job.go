// Package job implements the reusable long-running operation
// lifecycle shared by geoprocessing, elevation analysis, and portal
// publish backends: submit, poll with backoff, fetch result and
// messages, best-effort cancel.
//
// Each backend supplies only its request/response mapping (a base
// path on the Client); the state machine and polling policy are
// defined once here.
package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// Handle identifies one submitted job for its whole lifetime. It is
// owned by the caller and must not be reused once a terminal status
// has been observed and consumed.
type Handle struct {
	ID          string
	SubmittedAt time.Time
}

// Severity classifies a job message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Message is one entry in the ordered, append-only log the remote job
// produces. Re-fetching returns the same prefix plus any new entries.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
	Sequence int      `json:"sequence"`
}

// StatusInfo is one status observation. Progress is a percentage in
// [0, 100]; zero when the backend reports none.
type StatusInfo struct {
	Status   Status
	Progress int
}

// Params is the submission payload. Operation names the remote task;
// Input is the JSON-encodable task input.
type Params struct {
	Operation string
	Input     any
}

// Validate performs the local shape checks run before any network
// call.
func (p Params) Validate() error {
	if p.Operation == "" {
		return fmt.Errorf("params: operation must not be empty")
	}
	if p.Input != nil {
		if _, err := json.Marshal(p.Input); err != nil {
			return fmt.Errorf("params: input is not JSON-encodable: %w", err)
		}
	}
	return nil
}

// RemoteFailure reports that the remote job itself failed. Messages
// carry the server's diagnostics verbatim; remote failures are never
// retried automatically.
type RemoteFailure struct {
	JobID    string
	Messages []Message
}

// Error implements the error interface.
func (e *RemoteFailure) Error() string {
	detail := ""
	for _, m := range e.Messages {
		if m.Severity == SeverityError {
			detail = m.Text
			break
		}
	}
	if detail == "" {
		return fmt.Sprintf("job %s failed remotely", e.JobID)
	}
	return fmt.Sprintf("job %s failed remotely: %s", e.JobID, detail)
}

// TimeoutError reports that a poll loop exceeded its deadline. The
// remote job is left running; callers wanting to stop it must call
// Cancel explicitly.
type TimeoutError struct {
	LastStatus Status
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("poll deadline exceeded (last observed status %s)", e.LastStatus)
}
