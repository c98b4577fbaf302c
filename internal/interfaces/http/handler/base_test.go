package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/connector"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"github.com/synchub/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name:       "from context string",
			setup:      func(c *gin.Context) { c.Set(middleware.RequestIDKey, "ctx-request-id") },
			expectedID: "ctx-request-id",
		},
		{
			name:       "from header when context empty",
			setup:      func(c *gin.Context) { c.Request.Header.Set(middleware.RequestIDHeader, "header-request-id") },
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "/")
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestGetTenantID(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	_, err := getTenantID(c)
	assert.Error(t, err)

	tenantID := uuid.New()
	c.Set(middleware.TenantIDKey, tenantID)
	got, err := getTenantID(c)
	require.NoError(t, err)
	assert.Equal(t, tenantID, got)
}

func TestBaseHandler_Tenant_WritesUnauthorized(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	_, ok := h.tenant(c)

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeUnauthorized, decodeResponse(t, w).Error.Code)
}

func TestBaseHandler_UUIDParam(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	_, ok := h.uuidParam(c, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid id", decodeResponse(t, w).Error.Message)
}

func TestPage(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/?page=3&page_size=15")
	p, size := page(c)
	assert.Equal(t, 3, p)
	assert.Equal(t, 15, size)

	c, _ = newTestContext(http.MethodGet, "/?limit=7")
	p, size = page(c)
	assert.Equal(t, 0, p)
	assert.Equal(t, 7, size)
}

func TestBaseHandlerSuccess(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	h.Success(c, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResponse(t, w).Success)
}

func TestBaseHandlerSuccessWithMeta(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	h.SuccessWithMeta(c, []string{"item1", "item2"}, 100, 1, 10)

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(100), resp.Meta.Total)
	assert.Equal(t, 10, resp.Meta.TotalPages)
}

func TestBaseHandlerCreatedAndNoContent(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodPost, "/")
	h.Created(c, map[string]string{"id": "123"})
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newTestContext(http.MethodDelete, "/")
	h.NoContent(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBaseHandlerErrorCarriesRequestID(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")
	c.Set(middleware.RequestIDKey, "req-42")

	h.NotFound(c, "Sync record not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "req-42", resp.Error.RequestID)
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"staging not found", shared.NewDomainError("STAGING_NOT_FOUND", "staging record not found"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid transition", shared.ErrInvalidTransition, http.StatusUnprocessableEntity, dto.ErrCodeInvalidTransition},
		{"record rejected", shared.NewDomainError("VALIDATION_FAILED", "record failed validation"), http.StatusUnprocessableEntity, dto.ErrCodeRecordRejected},
		{"already claimed", shared.NewDomainError("ALREADY_CLAIMED", "claimed"), http.StatusConflict, dto.ErrCodeAlreadyClaimed},
		{"connector inactive", shared.NewDomainError("CONNECTOR_INACTIVE", "connector is disabled"), http.StatusUnprocessableEntity, dto.ErrCodeConnectorInactive},
		{"configuration", shared.ErrConfiguration, http.StatusUnprocessableEntity, dto.ErrCodeConfiguration},
		{"upstream status", &connector.UpstreamStatusError{StatusCode: 404, Body: "missing"}, http.StatusBadGateway, dto.ErrCodeUpstream},
		{"no response", &connector.NoResponseError{Err: errors.New("dial tcp: refused")}, http.StatusBadGateway, dto.ErrCodeUpstreamUnavailable},
		{"connector config", &connector.ConfigError{Message: "missing token"}, http.StatusUnprocessableEntity, dto.ErrCodeConfiguration},
		{"delivery superseded", shared.NewDomainError("CONCURRENCY_CONFLICT", "changed"), http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"operation deadline", fmt.Errorf("pull orders: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, dto.ErrCodeTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := newTestContext(http.MethodGet, "/")

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestBaseHandler_HandleError_HidesInternalText(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	h.HandleError(c, errors.New("pq: password authentication failed"))

	resp := decodeResponse(t, w)
	assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
	assert.Len(t, c.Errors, 1)
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	h := &BaseHandler{}
	c, w := newTestContext(http.MethodGet, "/")

	h.HandleError(c, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.Bytes())
}
