package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	syncapp "github.com/synchub/backend/internal/application/erpsync"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"github.com/synchub/backend/internal/interfaces/http/middleware"
	"github.com/synchub/backend/internal/interfaces/http/router"
)

// SyncDataHandler exposes the sync queue
type SyncDataHandler struct {
	BaseHandler
	queue     *syncapp.QueueService
	processor *syncapp.DispatchProcessor
	opTimeout time.Duration
}

// NewSyncDataHandler creates a new SyncDataHandler. processor may be nil, in
// which case POST /process answers 501.
func NewSyncDataHandler(queue *syncapp.QueueService, processor *syncapp.DispatchProcessor) *SyncDataHandler {
	return &SyncDataHandler{queue: queue, processor: processor}
}

// WithOperationTimeout bounds POST /process; zero leaves it unbounded
func (h *SyncDataHandler) WithOperationTimeout(d time.Duration) *SyncDataHandler {
	h.opTimeout = d
	return h
}

// SyncDataRoutes creates the route group for the sync queue
func SyncDataRoutes(h *SyncDataHandler) *router.DomainGroup {
	group := router.NewDomainGroup("sync-data", "/sync-data")

	group.POST("", h.Enqueue)
	group.POST("/batch", h.EnqueueBatch)
	group.POST("/retry-failed", h.RetryFailed)
	group.POST("/process", middleware.Deadline(h.opTimeout), h.Process)

	group.GET("/pending", h.GetPending)
	group.GET("/stats", h.GetStats)
	group.GET("/history", h.GetHistory)
	group.GET("/status/:entityType/:entityId", h.GetStatus)

	group.GET("/:id", h.GetByID)
	group.POST("/:id/complete", h.MarkCompleted)
	group.POST("/:id/fail", h.MarkFailed)
	group.DELETE("/:id", h.Delete)

	return group
}

func enqueueInput(req dto.EnqueueRequest) syncapp.EnqueueInput {
	return syncapp.EnqueueInput{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		ERPType:      req.ERPType,
		Payload:      req.Payload,
		Direction:    req.Direction,
		SourceSystem: req.SourceSystem,
		SourceUserID: req.SourceUserID,
	}
}

// Enqueue creates or revises the record of one entity change. A new record
// answers 201, a revision or an unchanged payload 200.
func (h *SyncDataHandler) Enqueue(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	in := enqueueInput(req)
	in.TenantID = tenantID
	result, err := h.queue.Enqueue(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.EnqueueResponse{Action: result.Action, Record: dto.ToSyncRecordResponse(result.Record)}
	if result.Action == erpsync.ActionCreate {
		h.Created(c, resp)
		return
	}
	h.Success(c, resp)
}

// EnqueueBatch enqueues many changes, reporting each item separately
func (h *SyncDataHandler) EnqueueBatch(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	var req dto.EnqueueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	items := make([]syncapp.EnqueueInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, enqueueInput(item))
	}
	h.Success(c, h.queue.EnqueueBatch(c.Request.Context(), tenantID, items))
}

func recordFilter(c *gin.Context) erpsync.RecordFilter {
	return erpsync.RecordFilter{
		EntityType: c.Query("entityType"),
		ERPType:    c.Query("erpType"),
		Status:     erpsync.Status(c.Query("status")),
	}
}

// GetPending lists records waiting for dispatch
func (h *SyncDataHandler) GetPending(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	filter := recordFilter(c)
	filter.TenantID = tenantID
	filter.Status = ""
	records, err := h.queue.GetPending(c.Request.Context(), filter, intQuery(c, "limit", syncapp.DefaultPendingLimit))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncRecordResponses(records))
}

// GetStats returns the tenant's queue statistics
func (h *SyncDataHandler) GetStats(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	stats, err := h.queue.GetStats(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// GetHistory pages through the queue newest first
func (h *SyncDataHandler) GetHistory(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	filter := recordFilter(c)
	filter.TenantID = tenantID
	p, size := page(c)
	result, err := h.queue.GetHistory(c.Request.Context(), filter, p, size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToSyncRecordResponses(result.Records), result.Total, result.Page, result.PageSize)
}

// GetStatus returns the sync state of an entity. With ?erpType the single
// record is returned, otherwise every ERP's record.
func (h *SyncDataHandler) GetStatus(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	entityType, entityID := c.Param("entityType"), c.Param("entityId")
	if erpType := c.Query("erpType"); erpType != "" {
		record, err := h.queue.GetStatus(ctx, tenantID, entityType, entityID, erpType)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, dto.ToSyncRecordResponse(record))
		return
	}

	records, err := h.queue.GetAllStatuses(ctx, tenantID, entityType, entityID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncRecordResponses(records))
}

// GetByID returns one record
func (h *SyncDataHandler) GetByID(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	record, err := h.queue.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncRecordResponse(record))
}

// MarkCompleted records a dispatch performed outside the engine
func (h *SyncDataHandler) MarkCompleted(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req dto.CompleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.queue.GetByID(ctx, tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	record, err := h.queue.MarkCompleted(ctx, id, req.ExternalID, req.Version)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncRecordResponse(record))
}

// MarkFailed records a failed dispatch performed outside the engine
func (h *SyncDataHandler) MarkFailed(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req dto.FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.queue.GetByID(ctx, tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	record, err := h.queue.MarkFailed(ctx, id, req.ErrorMessage, req.Version)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncRecordResponse(record))
}

// RetryFailed moves FAILED records back to PENDING
func (h *SyncDataHandler) RetryFailed(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	var req dto.RetryFailedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	n, err := h.queue.RetryFailed(c.Request.Context(), tenantID, req.EntityType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"retried": n})
}

// Process dispatches one batch of the tenant's pending records now
func (h *SyncDataHandler) Process(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	if h.processor == nil {
		h.ErrorWithCode(c, dto.ErrCodeNotImplemented, "Dispatch processor is not configured")
		return
	}

	var req dto.ProcessRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}

	filter := erpsync.RecordFilter{TenantID: tenantID, EntityType: req.EntityType, ERPType: req.ERPType}
	result, err := h.processor.ProcessPending(c.Request.Context(), filter, req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete removes a record
func (h *SyncDataHandler) Delete(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.queue.Delete(c.Request.Context(), tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
