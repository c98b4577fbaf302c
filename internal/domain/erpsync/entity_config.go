package erpsync

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// Entity types with built-in ERP handlers
const (
	EntityPurchaseOrder = "PURCHASE_ORDER"
	EntityReception     = "RECEPTION"
)

// ERP types known to the engine
const (
	ERPAxioma   = "AXIOMA"
	ERPSoftland = "SOFTLAND"
)

// EntityConfig tells the dispatcher how a Hub entity type lands in a
// tenant's ERP.
type EntityConfig struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	EntityType      string
	ERPType         string
	SourceTable     string
	PrimaryKey      string
	FieldMapping    map[string]string // Hub dot-path -> ERP parameter name
	InsertStatement string
	UpdateStatement string
	Direction       Direction
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewEntityConfig creates an enabled outbound configuration
func NewEntityConfig(tenantID uuid.UUID, entityType, erpType string) *EntityConfig {
	now := time.Now()
	return &EntityConfig{
		ID:           uuid.New(),
		TenantID:     tenantID,
		EntityType:   entityType,
		ERPType:      erpType,
		FieldMapping: map[string]string{},
		Direction:    DirectionOut,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the configuration before it is stored
func (c *EntityConfig) Validate() error {
	if c.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "tenant id is required")
	}
	if strings.TrimSpace(c.EntityType) == "" || strings.TrimSpace(c.ERPType) == "" {
		return shared.NewDomainError("INVALID_INPUT", "entityType and erpType are required")
	}
	if c.Direction != "" && !c.Direction.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", "direction must be IN or OUT")
	}
	for path, param := range c.FieldMapping {
		if strings.TrimSpace(path) == "" || strings.TrimSpace(param) == "" {
			return shared.NewDomainError("INVALID_INPUT", "field mapping entries need both a Hub path and an ERP parameter")
		}
	}
	return nil
}

// HasStatement reports whether the configuration drives the dispatch path
func (c *EntityConfig) HasStatement() bool {
	return c != nil && strings.TrimSpace(c.InsertStatement) != ""
}

// StatementFor picks the statement for a record, preferring the update
// statement once the ERP has assigned an id.
func (c *EntityConfig) StatementFor(r *Record) string {
	if r.ExternalID != "" && strings.TrimSpace(c.UpdateStatement) != "" {
		return c.UpdateStatement
	}
	return c.InsertStatement
}
