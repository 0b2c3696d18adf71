package portal_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	arcgis "github.com/crumplecup/arcgis-sub002"
	"github.com/crumplecup/arcgis-sub002/edit"
	"github.com/crumplecup/arcgis-sub002/job"
	"github.com/crumplecup/arcgis-sub002/portal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gisBackend fakes one geoprocessing task plus one editable layer.
type gisBackend struct {
	statusCalls atomic.Int32
	gotToken    atomic.Value // string
}

func (b *gisBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/Routing/GPServer/Profile/jobs", func(w http.ResponseWriter, r *http.Request) {
		b.gotToken.Store(r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"jobId": "gp-1", "status": "submitted"})
	})
	mux.HandleFunc("GET /services/Routing/GPServer/Profile/jobs/gp-1/status", func(w http.ResponseWriter, _ *http.Request) {
		// Executing on polls 1-2, succeeded from poll 3.
		if b.statusCalls.Add(1) < 3 {
			writeJSON(w, map[string]any{"status": "executing", "progress": 50})
			return
		}
		writeJSON(w, map[string]any{"status": "succeeded", "progress": 100})
	})
	mux.HandleFunc("GET /services/Routing/GPServer/Profile/jobs/gp-1/result", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"profile": []int{10, 20, 30}})
	})
	mux.HandleFunc("GET /services/Routing/GPServer/Profile/jobs/gp-1/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]any{{"severity": "info", "text": "done", "sequence": 1}})
	})
	mux.HandleFunc("POST /layers/7/applyEdits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"addResults": []map[string]any{
				{"clientTempId": "tmp-1", "assignedId": "501", "success": true},
			},
			"updateResults": []map[string]any{},
			"deleteResults": []map[string]any{},
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func buildPortal(t *testing.T, b *gisBackend) *portal.Portal {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	cfg := arcgis.DefaultConfig()
	cfg.PollBaseInterval = 10 * time.Millisecond
	cfg.PollMaxInterval = 50 * time.Millisecond
	cfg.PollDeadline = 5 * time.Second
	p, err := portal.Build(srv.URL,
		portal.WithConfig(cfg),
		portal.WithLogger(testLogger()),
		portal.WithToken(func(context.Context) (string, error) {
			return "portal-token", nil
		}),
	)
	if err != nil {
		t.Fatalf("portal.Build: %v", err)
	}
	return p
}

func TestPortal_GeoprocessingJobLifecycle(t *testing.T) {
	b := &gisBackend{}
	p := buildPortal(t, b)

	gp := p.Geoprocessing("Routing", "Profile")
	h, err := gp.Submit(context.Background(), job.Params{
		Operation: "profile",
		Input:     map[string]any{"path": []int{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got, _ := b.gotToken.Load().(string); got != "Bearer portal-token" {
		t.Errorf("Authorization = %q, want the portal token", got)
	}

	status, err := p.Poller(p.DefaultPolicy()).PollUntilComplete(context.Background(), gp, h)
	if err != nil {
		t.Fatalf("PollUntilComplete: %v", err)
	}
	if status != job.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", status)
	}
	if b.statusCalls.Load() != 3 {
		t.Errorf("status calls = %d, want 3", b.statusCalls.Load())
	}

	payload, err := gp.GetResult(context.Background(), h)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	var decoded struct {
		Profile []int `json:"profile"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(decoded.Profile) != 3 {
		t.Errorf("result = %s, want the profile payload", payload)
	}
}

func TestPortal_LayerApplyEdits(t *testing.T) {
	b := &gisBackend{}
	p := buildPortal(t, b)

	layer := p.Layer("7")
	if layer.ID() != "7" {
		t.Errorf("Layer.ID() = %q, want 7", layer.ID())
	}

	result, err := layer.ApplyEdits(context.Background(), &edit.Request{
		Adds: []edit.Add{{
			ClientTempID: "tmp-1",
			Attributes:   map[string]any{"name": "well A"},
		}},
	})
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	if len(result.AddResults) != 1 || !result.AddResults[0].Success {
		t.Fatalf("AddResults = %+v, want one success", result.AddResults)
	}
	if result.AddResults[0].AssignedID != "501" {
		t.Errorf("AssignedID = %q, want 501", result.AddResults[0].AssignedID)
	}
}

func TestPortal_BackendPathsAreDistinct(t *testing.T) {
	b := &gisBackend{}
	p := buildPortal(t, b)

	// Elevation and publish clients hit their own roots; the fake
	// backend serves neither, so an unknown job 404s.
	_, err := p.Elevation().GetStatus(context.Background(), job.Handle{ID: "nope"})
	if err == nil {
		t.Error("elevation status against unserved path should fail")
	}
	_, err = p.Publisher().GetStatus(context.Background(), job.Handle{ID: "nope"})
	if err == nil {
		t.Error("publish status against unserved path should fail")
	}
}

func TestPortal_DefaultPolicyTracksConfig(t *testing.T) {
	p, err := portal.Build("https://gis.example.com/arcgis/rest",
		portal.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("portal.Build: %v", err)
	}

	policy := p.DefaultPolicy()
	cfg := p.Config()
	if policy.BaseInterval != cfg.PollBaseInterval {
		t.Errorf("BaseInterval = %v, want %v", policy.BaseInterval, cfg.PollBaseInterval)
	}
	if policy.MaxInterval != cfg.PollMaxInterval {
		t.Errorf("MaxInterval = %v, want %v", policy.MaxInterval, cfg.PollMaxInterval)
	}
	if policy.Deadline != cfg.PollDeadline {
		t.Errorf("Deadline = %v, want %v", policy.Deadline, cfg.PollDeadline)
	}
}
