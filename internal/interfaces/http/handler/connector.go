package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/synchub/backend/internal/application/integration"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"github.com/synchub/backend/internal/interfaces/http/middleware"
	"github.com/synchub/backend/internal/interfaces/http/router"
)

// ConnectorHandler runs pulls and pushes through API connectors
type ConnectorHandler struct {
	BaseHandler
	connectors *integration.ConnectorService
	pulls      *integration.PullService
	pushes     *integration.PushService
	opTimeout  time.Duration
}

// NewConnectorHandler creates a new ConnectorHandler
func NewConnectorHandler(
	connectors *integration.ConnectorService,
	pulls *integration.PullService,
	pushes *integration.PushService,
) *ConnectorHandler {
	return &ConnectorHandler{connectors: connectors, pulls: pulls, pushes: pushes}
}

// WithOperationTimeout bounds pull, push and staging runs; zero leaves them
// unbounded
func (h *ConnectorHandler) WithOperationTimeout(d time.Duration) *ConnectorHandler {
	h.opTimeout = d
	return h
}

// ConnectorRoutes creates the route group for API connectors
func ConnectorRoutes(h *ConnectorHandler) *router.DomainGroup {
	group := router.NewDomainGroup("api-connectors", "/api-connectors")
	bounded := middleware.Deadline(h.opTimeout)

	group.GET("/:id", h.Get)
	group.POST("/:id/test-connection", h.TestConnection)

	// Pull
	group.POST("/:id/pull", bounded, h.Pull)
	group.GET("/:id/pull-logs", h.ListPullLogs)
	group.GET("/:id/staging", h.ListStaging)
	group.POST("/:id/staging/process", bounded, h.ProcessStaging)
	group.DELETE("/:id/staging/:stagingId", h.DeleteStaging)

	// Push
	group.POST("/:id/push", bounded, h.Push)
	group.POST("/:id/export-document/:documentId", h.ExportDocument)
	group.GET("/:id/export-logs", h.ListExportLogs)
	group.GET("/:id/export-stats", h.GetExportStats)
	group.GET("/:id/pending-exports", h.ListPendingExports)
	group.GET("/:id/documents/:documentId/export-history", h.GetDocumentExportHistory)

	return group
}

// connectorScope resolves the tenant and the :id parameter
func (h *ConnectorHandler) connectorScope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	connectorID, ok := h.uuidParam(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, connectorID, true
}

// Get returns a connector summary
func (h *ConnectorHandler) Get(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	cfg, err := h.connectors.Get(c.Request.Context(), tenantID, connectorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToConnectorResponse(cfg))
}

// TestConnection calls the connector once. A failed attempt is still a 200
// whose body reports success=false.
func (h *ConnectorHandler) TestConnection(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	var req dto.TestConnectionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	result, err := h.connectors.TestConnection(c.Request.Context(), tenantID, connectorID, req.Endpoint)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Pull runs every active pull resource, or only ?resourceId / body.resourceId
func (h *ConnectorHandler) Pull(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	req := dto.PullRequest{ResourceID: c.Query("resourceId")}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	result, err := h.pulls.ExecutePull(c.Request.Context(), tenantID, connectorID, req.ResourceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListPullLogs pages through the connector's pull logs
func (h *ConnectorHandler) ListPullLogs(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	p, size := page(c)
	logs, total, err := h.pulls.ListPullLogs(c.Request.Context(), tenantID, connectorID, p, size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	p, size = pageOrDefault(p, size)
	h.SuccessWithMeta(c, dto.ToPullLogResponses(logs), total, p, size)
}

// ListStaging pages through staged records, filtered by ?status and ?validationStatus
func (h *ConnectorHandler) ListStaging(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	filter := connector.StagingFilter{
		ConnectorID:      connectorID,
		Status:           connector.StagingStatus(c.Query("status")),
		ValidationStatus: connector.ValidationStatus(c.Query("validationStatus")),
	}
	p, size := page(c)
	records, total, err := h.pulls.ListStaging(c.Request.Context(), tenantID, filter, p, size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	p, size = pageOrDefault(p, size)
	h.SuccessWithMeta(c, dto.ToStagingRecordResponses(records), total, p, size)
}

// ProcessStaging imports the selected staged records
func (h *ConnectorHandler) ProcessStaging(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	var req dto.ProcessStagingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.pulls.ProcessStagingBatch(c.Request.Context(), tenantID, connectorID, req.StagingIDs, req.ValidatedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DeleteStaging discards a staged record
func (h *ConnectorHandler) DeleteStaging(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}
	stagingID, ok := h.uuidParam(c, "stagingId")
	if !ok {
		return
	}

	if err := h.pulls.DeleteStaging(c.Request.Context(), tenantID, connectorID, stagingID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Push exports pending Hub records through every active push resource
func (h *ConnectorHandler) Push(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	var req dto.PushRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	result, err := h.pushes.ExecutePush(c.Request.Context(), tenantID, connectorID, integration.PushOptions{
		ForceAll:    req.ForceAll,
		DocumentIDs: req.DocumentIDs,
		Limit:       req.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ExportDocument sends one document regardless of its export state
func (h *ConnectorHandler) ExportDocument(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}
	documentID, ok := h.uuidParam(c, "documentId")
	if !ok {
		return
	}

	result, err := h.pushes.ExportDocument(c.Request.Context(), tenantID, connectorID, documentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// exportFilter reads ?resourceType, ?startDate and ?endDate
func (h *ConnectorHandler) exportFilter(c *gin.Context) (connector.ExportFilter, bool) {
	filter := connector.ExportFilter{Kind: connector.Kind(c.Query("resourceType"))}
	for name, dst := range map[string]**time.Time{"startDate": &filter.StartDate, "endDate": &filter.EndDate} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			h.BadRequest(c, "Invalid "+name)
			return filter, false
		}
		*dst = &t
	}
	return filter, true
}

// parseDate accepts RFC 3339 timestamps and plain dates
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

// ListExportLogs pages through the connector's export logs
func (h *ConnectorHandler) ListExportLogs(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}
	filter, ok := h.exportFilter(c)
	if !ok {
		return
	}

	p, size := page(c)
	logs, total, err := h.pushes.ListExportLogs(c.Request.Context(), tenantID, connectorID, filter, p, size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	p, size = pageOrDefault(p, size)
	h.SuccessWithMeta(c, dto.ToExportLogResponses(logs), total, p, size)
}

// GetExportStats aggregates the connector's exports
func (h *ConnectorHandler) GetExportStats(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}
	filter, ok := h.exportFilter(c)
	if !ok {
		return
	}

	stats, err := h.pushes.GetExportStats(c.Request.Context(), tenantID, connectorID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// ListPendingExports previews what the next push would send
func (h *ConnectorHandler) ListPendingExports(c *gin.Context) {
	tenantID, connectorID, ok := h.connectorScope(c)
	if !ok {
		return
	}

	pending, err := h.pushes.ListPendingExports(c.Request.Context(), tenantID, connectorID, intQuery(c, "limit", 0))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, pending)
}

// GetDocumentExportHistory lists every export of a document
func (h *ConnectorHandler) GetDocumentExportHistory(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	documentID, ok := h.uuidParam(c, "documentId")
	if !ok {
		return
	}

	logs, err := h.pushes.GetDocumentExportHistory(c.Request.Context(), tenantID, documentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToExportLogResponses(logs))
}

// pageOrDefault mirrors the clamping the integration services apply
func pageOrDefault(p, size int) (int, int) {
	if p < 1 {
		p = 1
	}
	if size < 1 {
		size = integration.DefaultPageSize
	}
	if size > integration.MaxPageSize {
		size = integration.MaxPageSize
	}
	return p, size
}
