package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type brokenStore struct{}

func (brokenStore) ListTaskInfos() ([]*types.TaskInfo, error) {
	return nil, errors.New("database closed")
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(&planHolder{}, nil, WithVersion("1.2.3"))

	w := httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotZero(t, resp.Timestamp)

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		w := httptest.NewRecorder()
		s.healthHandler(w, httptest.NewRequest(method, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		assert.Equal(t, http.MethodGet, w.Header().Get("Allow"))
	}
}

func TestReadyHandler(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name         string
		server       *Server
		wantCode     int
		wantContains map[string]string
	}{
		{
			name:     "no store",
			server:   NewServer(f.plans, nil),
			wantCode: http.StatusServiceUnavailable,
			wantContains: map[string]string{
				"storage": "not initialized",
			},
		},
		{
			name:     "store failing",
			server:   NewServer(f.plans, brokenStore{}),
			wantCode: http.StatusServiceUnavailable,
			wantContains: map[string]string{
				"storage": "database closed",
			},
		},
		{
			name:     "no plan",
			server:   NewServer(&planHolder{}, f.store),
			wantCode: http.StatusServiceUnavailable,
			wantContains: map[string]string{
				"storage": "ok",
				"plan":    "none",
			},
		},
		{
			name:     "ready",
			server:   NewServer(f.plans, f.store),
			wantCode: http.StatusOK,
			wantContains: map[string]string{
				"storage": "ok",
				"plan":    f.plan.ID(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()

			tt.server.readyHandler(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response ReadyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			for key, want := range tt.wantContains {
				assert.Contains(t, response.Checks[key], want)
			}
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "not ready", response.Status)
				assert.NotEmpty(t, response.Message)
			}
		})
	}
}

func TestRoutesRegistered(t *testing.T) {
	f := newFixture(t)
	h := NewServer(f.plans, f.store).Handler()

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{path: "/health", expectedStatus: http.StatusOK},
		{path: "/ready", expectedStatus: http.StatusOK},
		{path: "/live", expectedStatus: http.StatusOK},
		{path: "/health/components", expectedStatus: http.StatusOK},
		{path: "/ready/components", expectedStatus: http.StatusServiceUnavailable},
		{path: "/metrics", expectedStatus: http.StatusOK},
		{path: "/nonexistent", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Path: %s", tt.path)
		})
	}
}

func TestProbesConcurrently(t *testing.T) {
	f := newFixture(t)
	s := NewServer(f.plans, f.store)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		for _, probe := range []http.HandlerFunc{s.healthHandler, s.readyHandler} {
			g.Go(func() error {
				w := httptest.NewRecorder()
				probe(w, httptest.NewRequest(http.MethodGet, "/", nil))
				if w.Code != http.StatusOK {
					return fmt.Errorf("probe answered %d", w.Code)
				}
				return nil
			})
		}
	}
	assert.NoError(t, g.Wait())
}
