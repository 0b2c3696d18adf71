// Package edit implements the atomic multi-item feature edit
// protocol: one request carrying adds, updates, and deletes, with
// either all-or-nothing or independent per-item semantics selected by
// the rollback flag.
package edit

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Add inserts a new feature. The server assigns the permanent
// identifier only on success, so the caller supplies ClientTempID to
// correlate the outcome back to this item.
type Add struct {
	Attributes   map[string]any  `json:"attributes"`
	Geometry     json.RawMessage `json:"geometry,omitempty"`
	ClientTempID string          `json:"clientTempId"`
}

// Update modifies an existing feature identified by ID.
type Update struct {
	ID         string          `json:"id"`
	Attributes map[string]any  `json:"attributes"`
	Geometry   json.RawMessage `json:"geometry,omitempty"`
}

// Delete removes an existing feature identified by ID.
type Delete struct {
	ID string `json:"id"`
}

// Request is one atomic batch edit. With RollbackOnFailure the whole
// request is evaluated as a single unit: any item failure means
// nothing is persisted and every item reports failure. Without it,
// items are evaluated independently.
type Request struct {
	Adds              []Add    `json:"adds,omitempty"`
	Updates           []Update `json:"updates,omitempty"`
	Deletes           []Delete `json:"deletes,omitempty"`
	UseGlobalIDs      bool     `json:"useGlobalIds"`
	RollbackOnFailure bool     `json:"rollbackOnFailure"`
}

// Empty reports whether the request carries no items.
func (r *Request) Empty() bool {
	return len(r.Adds) == 0 && len(r.Updates) == 0 && len(r.Deletes) == 0
}

// Validate performs the local shape checks run before any network
// call: the request must carry at least one item, adds need a
// client temp id, and updates/deletes need a feature id.
func (r *Request) Validate() error {
	if r.Empty() {
		return fmt.Errorf("request carries no items")
	}
	for i, a := range r.Adds {
		if a.ClientTempID == "" {
			return fmt.Errorf("adds[%d]: missing clientTempId", i)
		}
	}
	for i, u := range r.Updates {
		if u.ID == "" {
			return fmt.Errorf("updates[%d]: missing id", i)
		}
	}
	for i, d := range r.Deletes {
		if d.ID == "" {
			return fmt.Errorf("deletes[%d]: missing id", i)
		}
	}
	return nil
}

// ItemResult is the outcome of one submitted item. CorrelationID is
// the clientTempId for adds and the feature id for updates/deletes.
// AssignedID carries the server-issued permanent identifier for a
// successful add.
type ItemResult struct {
	CorrelationID string
	Success       bool
	AssignedID    string
	ErrorCode     int
	ErrorMessage  string
}

// Result aggregates the per-item outcomes. Each sequence matches the
// corresponding request sequence 1:1 by position. A Result is only
// ever returned whole; transport-level failures yield an error and no
// Result at all.
type Result struct {
	AddResults    []ItemResult
	UpdateResults []ItemResult
	DeleteResults []ItemResult
}

// Failed returns every item result that reports failure.
func (r *Result) Failed() []ItemResult {
	var failed []ItemResult
	for _, seq := range [][]ItemResult{r.AddResults, r.UpdateResults, r.DeleteResults} {
		for _, item := range seq {
			if !item.Success {
				failed = append(failed, item)
			}
		}
	}
	return failed
}

// NewTempID returns a fresh client temporary identifier for an Add.
func NewTempID() string {
	return uuid.NewString()
}
