package handler

import (
	"github.com/gin-gonic/gin"
	syncapp "github.com/synchub/backend/internal/application/erpsync"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"github.com/synchub/backend/internal/interfaces/http/router"
)

// SyncConfigHandler manages entity configurations and the ERP connection
type SyncConfigHandler struct {
	BaseHandler
	configs     *syncapp.EntityConfigService
	connections *syncapp.ConnectionService
}

// NewSyncConfigHandler creates a new SyncConfigHandler
func NewSyncConfigHandler(configs *syncapp.EntityConfigService, connections *syncapp.ConnectionService) *SyncConfigHandler {
	return &SyncConfigHandler{configs: configs, connections: connections}
}

// EntityConfigRoutes creates the route group for entity configurations
func EntityConfigRoutes(h *SyncConfigHandler) *router.DomainGroup {
	group := router.NewDomainGroup("sync-entity-configs", "/sync-entity-configs")

	group.GET("", h.ListEntityConfigs)
	group.POST("", h.CreateEntityConfig)
	group.POST("/seed-axioma", h.SeedAxioma)
	group.GET("/:id", h.GetEntityConfig)
	group.PUT("/:id", h.UpdateEntityConfig)
	group.DELETE("/:id", h.DeleteEntityConfig)

	return group
}

// ConnectionRoutes creates the route group for the tenant's ERP connection
func ConnectionRoutes(h *SyncConfigHandler) *router.DomainGroup {
	group := router.NewDomainGroup("sync-connections", "/sync-connections")

	group.GET("", h.GetConnection)
	group.PUT("", h.SaveConnection)

	return group
}

func entityConfigInput(req dto.EntityConfigRequest) syncapp.EntityConfigInput {
	return syncapp.EntityConfigInput{
		EntityType:      req.EntityType,
		ERPType:         req.ERPType,
		SourceTable:     req.SourceTable,
		PrimaryKey:      req.PrimaryKey,
		FieldMapping:    req.FieldMapping,
		InsertStatement: req.InsertStatement,
		UpdateStatement: req.UpdateStatement,
		Direction:       req.Direction,
		Enabled:         req.Enabled,
	}
}

// ListEntityConfigs lists the tenant's entity configurations
func (h *SyncConfigHandler) ListEntityConfigs(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	configs, err := h.configs.List(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.EntityConfigResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, dto.ToEntityConfigResponse(cfg))
	}
	h.Success(c, out)
}

// GetEntityConfig returns one entity configuration
func (h *SyncConfigHandler) GetEntityConfig(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	cfg, err := h.configs.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToEntityConfigResponse(cfg))
}

// CreateEntityConfig creates an entity configuration
func (h *SyncConfigHandler) CreateEntityConfig(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	var req dto.EntityConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	cfg, err := h.configs.Create(c.Request.Context(), tenantID, entityConfigInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToEntityConfigResponse(cfg))
}

// UpdateEntityConfig replaces an entity configuration
func (h *SyncConfigHandler) UpdateEntityConfig(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	var req dto.EntityConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	cfg, err := h.configs.Update(c.Request.Context(), tenantID, id, entityConfigInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToEntityConfigResponse(cfg))
}

// DeleteEntityConfig removes an entity configuration
func (h *SyncConfigHandler) DeleteEntityConfig(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.configs.Delete(c.Request.Context(), tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// SeedAxioma installs the built-in Axioma configurations
func (h *SyncConfigHandler) SeedAxioma(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	results, err := h.configs.SeedAxioma(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, results)
}

// GetConnection returns the tenant's ERP connection with the password redacted
func (h *SyncConfigHandler) GetConnection(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	conn, err := h.connections.Get(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToConnectionResponse(conn))
}

// SaveConnection creates or replaces the tenant's ERP connection
func (h *SyncConfigHandler) SaveConnection(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}

	var req dto.ConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	conn, err := h.connections.Save(c.Request.Context(), tenantID, syncapp.ConnectionInput{
		ERPType:                req.ERPType,
		Host:                   req.Host,
		Port:                   req.Port,
		Database:               req.Database,
		Username:               req.Username,
		Password:               req.Password,
		Encrypt:                req.Encrypt,
		TrustServerCertificate: req.TrustServerCertificate,
		Active:                 active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToConnectionResponse(conn))
}
