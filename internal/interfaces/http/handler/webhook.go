package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appwebhook "github.com/synchub/backend/internal/application/webhook"
	"github.com/synchub/backend/internal/domain/webhook"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"github.com/synchub/backend/internal/interfaces/http/router"
)

// WebhookHandler reports on webhook deliveries
type WebhookHandler struct {
	BaseHandler
	dispatcher *appwebhook.Dispatcher
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(dispatcher *appwebhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// WebhookRoutes creates the route group for webhook reporting
func WebhookRoutes(h *WebhookHandler) *router.DomainGroup {
	group := router.NewDomainGroup("webhooks", "/webhooks")

	group.GET("/stats", h.GetStats)
	group.GET("/logs", h.ListLogs)
	group.GET("/events", h.ListEvents)

	return group
}

// GetStats summarizes deliveries over ?days (default 7)
func (h *WebhookHandler) GetStats(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	stats, err := h.dispatcher.GetStats(c.Request.Context(), tenantID, intQuery(c, "days", 7))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// ListLogs pages through delivery attempts, filtered by ?webhookId, ?event and ?success
func (h *WebhookHandler) ListLogs(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	filter := webhook.LogFilter{TenantID: tenantID, Event: c.Query("event")}
	if raw := c.Query("webhookId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid webhookId")
			return
		}
		filter.WebhookID = id
	}
	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "Invalid success flag")
			return
		}
		filter.Success = &success
	}

	p, size := page(c)
	logs, total, err := h.dispatcher.ListLogs(c.Request.Context(), filter, p, size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if p < 1 {
		p = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	h.SuccessWithMeta(c, dto.ToWebhookLogResponses(logs), total, p, size)
}

// ListEvents lists the events a webhook may subscribe to
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	h.Success(c, h.dispatcher.AvailableEvents())
}
