package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sentry/internal/lidar/l2frames"
	"github.com/banshee-data/sentry/internal/lidar/l3grid"
	"github.com/banshee-data/sentry/internal/lidar/pipeline"
)

type fixedSource struct{ st pipeline.Status }

func (f fixedSource) Status() pipeline.Status { return f.st }

// loopbackRequest creates an httptest request with RemoteAddr set to loopback
// so that tsweb.AllowDebugAccess returns true.
func loopbackRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func armedStatus() pipeline.Status {
	var profile, last l2frames.Distances
	for i := range profile {
		profile[i] = 500
		last[i] = 500
	}
	last[12] = 120
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return pipeline.Status{
		Phase:         l3grid.Armed,
		Frames:        40,
		WarmupFrames:  30,
		Commands:      11,
		Fires:         3,
		StartedAt:     start,
		LastFrameAt:   start.Add(4 * time.Second),
		LastDistances: last,
		LastDetection: &l3grid.Detection{Command: l3grid.NewCommand(12, true), Distance: 120, Reference: 500},
		Profile:       &profile,
	}
}

func newMux(st pipeline.Status) *http.ServeMux {
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, fixedSource{st: st})
	return mux
}

func TestProfileChart_Armed(t *testing.T) {
	mux := newMux(armedStatus())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/profile"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "Reference Profile")
	assert.Contains(t, body, "reference")
	assert.Contains(t, body, "last frame")
	assert.Contains(t, body, "phase=armed")
	assert.Contains(t, body, echartsAssetsPrefix)
}

func TestProfileChart_WarmingUp(t *testing.T) {
	st := pipeline.Status{Phase: l3grid.WarmingUp, Frames: 3, WarmupFrames: 30}
	mux := newMux(st)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/profile"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "phase=warming_up")
	assert.Contains(t, body, "last frame")
	assert.NotContains(t, body, `"name":"reference"`)
}

func TestProfileChart_BadRequests(t *testing.T) {
	mux := newMux(armedStatus())

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"post", http.MethodPost, "/debug/profile", http.StatusMethodNotAllowed},
		{"non-numeric max", http.MethodGet, "/debug/profile?max_distance=far", http.StatusBadRequest},
		{"zero max", http.MethodGet, "/debug/profile?max_distance=0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, loopbackRequest(tt.method, tt.target))
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestProfileChart_MaxDistance(t *testing.T) {
	mux := newMux(armedStatus())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/profile?max_distance=800"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusJSON(t *testing.T) {
	mux := newMux(armedStatus())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/status"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "armed", got["phase"])
	assert.EqualValues(t, 40, got["frames"])
	assert.EqualValues(t, 3, got["fires"])
	assert.EqualValues(t, 10, got["frame_rate"])
	assert.Contains(t, got, "profile")
	assert.Contains(t, got, "last_detection")
}

func TestStatusJSON_MethodNotAllowed(t *testing.T) {
	mux := newMux(armedStatus())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodDelete, "/debug/status"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminRoutes_ListedOnIndex(t *testing.T) {
	mux := newMux(armedStatus())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, loopbackRequest(http.MethodGet, "/debug/"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{"reference profile vs last frame", "pipeline status"} {
		assert.True(t, strings.Contains(body, want), "index missing %q", want)
	}
}
