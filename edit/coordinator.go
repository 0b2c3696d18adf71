package edit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/transport"
)

// Coordinator submits atomic batch edits against feature layers and
// decodes the per-item outcomes. Stateless and safe for concurrent
// use; every call is a single network round trip.
type Coordinator struct {
	doer     transport.Doer
	basePath string
	logger   *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithBasePath overrides the layer collection path (default
// "/layers").
func WithBasePath(p string) CoordinatorOption {
	return func(c *Coordinator) { c.basePath = p }
}

// NewCoordinator creates a Coordinator over the given transport.
func NewCoordinator(d transport.Doer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		doer:     d,
		basePath: "/layers",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire shapes for POST {base}/{layerId}/applyEdits.
type wireItemError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wireItemResult struct {
	ClientTempID string         `json:"clientTempId,omitempty"`
	ID           string         `json:"id,omitempty"`
	AssignedID   string         `json:"assignedId,omitempty"`
	Success      bool           `json:"success"`
	Error        *wireItemError `json:"error,omitempty"`
}

type applyEditsResponse struct {
	AddResults    []wireItemResult `json:"addResults"`
	UpdateResults []wireItemResult `json:"updateResults"`
	DeleteResults []wireItemResult `json:"deleteResults"`
}

// ApplyEdits submits the request as one call and returns the complete
// per-item outcome. The Result is always whole: a transport-level
// failure yields an error and no Result, never a partial one. With
// RollbackOnFailure set, a response claiming any persisted item
// alongside a failure is rejected as ErrInconsistentRollback.
func (c *Coordinator) ApplyEdits(ctx context.Context, layerID string, req *Request) (*Result, error) {
	if layerID == "" {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: fmt.Errorf("layer id must not be empty")}
	}
	if err := req.Validate(); err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: err}
	}

	resp, err := c.doer.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   c.basePath + "/" + layerID + "/applyEdits",
		Body:   req,
	})
	if err != nil {
		// No partial Result on transport failure: callers must not
		// infer edit outcomes from a transport-level error.
		return nil, err
	}

	var decoded applyEditsResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := &Result{}
	result.AddResults, err = correlateAdds(req.Adds, decoded.AddResults)
	if err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: err}
	}
	result.UpdateResults, err = correlateByID(req.Updates, decoded.UpdateResults, "updates", func(u Update) string { return u.ID })
	if err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: err}
	}
	result.DeleteResults, err = correlateByID(req.Deletes, decoded.DeleteResults, "deletes", func(d Delete) string { return d.ID })
	if err != nil {
		return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: err}
	}

	if req.RollbackOnFailure {
		if err := assertRolledBack(result); err != nil {
			return nil, &arcgis.Error{Kind: arcgis.KindValidation, Op: "edit.apply", Err: err}
		}
	}

	if failed := result.Failed(); len(failed) > 0 {
		c.logger.Warn("batch edit completed with item failures",
			slog.String("layer_id", layerID),
			slog.Int("failed", len(failed)),
			slog.Bool("rollback", req.RollbackOnFailure),
		)
	} else {
		c.logger.Info("batch edit applied",
			slog.String("layer_id", layerID),
			slog.Int("adds", len(req.Adds)),
			slog.Int("updates", len(req.Updates)),
			slog.Int("deletes", len(req.Deletes)),
		)
	}
	return result, nil
}

// correlateAdds places add outcomes by clientTempId. The explicit
// mapping keeps correlation correct even if the backend reorders its
// result sequence; position is only a fallback for backends that omit
// the temp id.
func correlateAdds(adds []Add, wire []wireItemResult) ([]ItemResult, error) {
	if len(wire) != len(adds) {
		return nil, fmt.Errorf("%w: %d add results for %d adds", arcgis.ErrUncorrelatedResult, len(wire), len(adds))
	}

	byTempID := make(map[string]int, len(adds))
	for i, a := range adds {
		byTempID[a.ClientTempID] = i
	}

	out := make([]ItemResult, len(adds))
	placed := make([]bool, len(adds))
	for i, w := range wire {
		pos := i
		if w.ClientTempID != "" {
			mapped, ok := byTempID[w.ClientTempID]
			if !ok {
				return nil, fmt.Errorf("%w: unknown clientTempId %q", arcgis.ErrUncorrelatedResult, w.ClientTempID)
			}
			pos = mapped
		}
		if placed[pos] {
			return nil, fmt.Errorf("%w: duplicate result for adds[%d]", arcgis.ErrUncorrelatedResult, pos)
		}
		placed[pos] = true
		out[pos] = toItemResult(adds[pos].ClientTempID, w)
	}
	return out, nil
}

// correlateByID places update/delete outcomes by feature id, falling
// back to position when the backend omits ids.
func correlateByID[T any](items []T, wire []wireItemResult, kind string, idOf func(T) string) ([]ItemResult, error) {
	if len(wire) != len(items) {
		return nil, fmt.Errorf("%w: %d %s results for %d items", arcgis.ErrUncorrelatedResult, len(wire), kind, len(items))
	}

	byID := make(map[string]int, len(items))
	for i, item := range items {
		byID[idOf(item)] = i
	}

	out := make([]ItemResult, len(items))
	placed := make([]bool, len(items))
	for i, w := range wire {
		pos := i
		if w.ID != "" {
			mapped, ok := byID[w.ID]
			if !ok {
				return nil, fmt.Errorf("%w: unknown %s id %q", arcgis.ErrUncorrelatedResult, kind, w.ID)
			}
			pos = mapped
		}
		if placed[pos] {
			return nil, fmt.Errorf("%w: duplicate result for %s[%d]", arcgis.ErrUncorrelatedResult, kind, pos)
		}
		placed[pos] = true
		out[pos] = toItemResult(idOf(items[pos]), w)
	}
	return out, nil
}

func toItemResult(correlationID string, w wireItemResult) ItemResult {
	r := ItemResult{
		CorrelationID: correlationID,
		Success:       w.Success,
		AssignedID:    w.AssignedID,
	}
	if w.Error != nil {
		r.ErrorCode = w.Error.Code
		r.ErrorMessage = w.Error.Message
	}
	return r
}

// assertRolledBack enforces the all-or-nothing contract: once any
// item fails, every item must report failure and none may carry a
// server-assigned id.
func assertRolledBack(result *Result) error {
	anyFailed := len(result.Failed()) > 0
	if !anyFailed {
		return nil
	}
	for _, seq := range [][]ItemResult{result.AddResults, result.UpdateResults, result.DeleteResults} {
		for _, item := range seq {
			if item.Success {
				return fmt.Errorf("%w: item %q reports success", arcgis.ErrInconsistentRollback, item.CorrelationID)
			}
			if item.AssignedID != "" {
				return fmt.Errorf("%w: item %q carries assigned id %q", arcgis.ErrInconsistentRollback, item.CorrelationID, item.AssignedID)
			}
		}
	}
	return nil
}
