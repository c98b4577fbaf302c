package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantBody   string
		wantDB     string
	}{
		{"no datastore", nil, http.StatusOK, "healthy", "ok"},
		{"datastore up", stubPinger{}, http.StatusOK, "healthy", "ok"},
		{"datastore down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unhealthy", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("synchub", "1.2.3", tt.db)
			c, w := newTestContext(http.MethodGet, "/health")

			h.Health(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, tt.wantDB, resp.Database)
			assert.NotEmpty(t, resp.Time)
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	api := newTestAPI(t, HealthRoutes(NewHealthHandler("synchub", "1.2.3", stubPinger{})))

	// the tenant middleware lets health checks through without a tenant
	w := api.doAs(t, "", http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.doAs(t, "", http.MethodGet, "/api/v1/health/info", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := decode[InfoResponse](t, w).Data
	assert.Equal(t, "synchub", info.Name)
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.NotEmpty(t, info.Uptime)
}

func TestHealthHandler_RootMount(t *testing.T) {
	engine := gin.New()
	engine.GET("/health", NewHealthHandler("synchub", "dev", nil).Health)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
