package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"github.com/synchub/backend/internal/interfaces/http/middleware"
	"github.com/synchub/backend/internal/interfaces/http/router"
)

// envelope is dto.Response with a typed payload
type envelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
	Meta    *dto.Meta      `json:"meta"`
}

// testAPI serves the route groups behind the production tenant middleware
type testAPI struct {
	engine *gin.Engine
	tenant uuid.UUID
}

func newTestAPI(t *testing.T, groups ...*router.DomainGroup) *testAPI {
	t.Helper()
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	r := router.NewRouter(engine)
	r.Use(middleware.TenantMiddleware())
	for _, g := range groups {
		r.Register(g)
	}
	r.Setup()
	return &testAPI{engine: engine, tenant: uuid.New()}
}

// do sends a request as api.tenant; body is JSON-encoded when non-nil
func (api *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return api.doAs(t, api.tenant.String(), method, path, body)
}

func (api *testAPI) doAs(t *testing.T, tenant, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(middleware.TenantHeaderKey, tenant)
	}
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
