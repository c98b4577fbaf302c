package erpsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// ErrAlreadyClaimed is returned when another worker moved the record out of
// PENDING first.
var ErrAlreadyClaimed = shared.NewDomainError("ALREADY_CLAIMED", "sync record was claimed by another worker")

// ErrClaimLost is returned when a delivery outcome no longer applies because
// the record was revised or reclaimed after it was claimed.
var ErrClaimLost = shared.NewDomainError("CONCURRENCY_CONFLICT", "sync record changed while it was being delivered")

// DefaultProcessingLease is how long a claim holds before the record may be
// claimed again. It must outlast the ERP connect and statement timeouts.
const DefaultProcessingLease = 5 * time.Minute

// RecordFilter narrows queue queries. Zero values match everything.
type RecordFilter struct {
	TenantID   uuid.UUID
	EntityType string
	ERPType    string
	Status     Status
}

// StatusCount is one bucket of the queue statistics
type StatusCount struct {
	EntityType string `json:"entity_type"`
	ERPType    string `json:"erp_type"`
	Status     Status `json:"status"`
	Count      int64  `json:"count"`
}

// RecordRepository persists sync records
type RecordRepository interface {
	// Create inserts a new record
	Create(ctx context.Context, record *Record) error
	// Save updates an existing record
	Save(ctx context.Context, record *Record) error
	// FindByID returns shared.ErrNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// FindByKey looks up the unique (tenant, entityType, entityId, erpType) row
	FindByKey(ctx context.Context, key Key) (*Record, error)
	// FindPending returns deliverable records oldest first, including
	// PROCESSING records whose claim lease has expired
	FindPending(ctx context.Context, filter RecordFilter, limit int) ([]*Record, error)
	// Claim atomically moves a PENDING (or lease-expired PROCESSING) record
	// to PROCESSING and returns the claimed row. A version above zero must
	// also match. ErrAlreadyClaimed reports a lost race.
	Claim(ctx context.Context, id uuid.UUID, version int) (*Record, error)
	// Settle writes a delivery outcome only while the row is still
	// PROCESSING at claimedVersion under the record's ClaimSeq; otherwise it
	// returns ErrClaimLost
	Settle(ctx context.Context, record *Record, claimedVersion int) error
	// ResetFailed moves FAILED records back to PENDING with a fresh budget
	ResetFailed(ctx context.Context, tenantID uuid.UUID, entityType string) (int64, error)
	// FindLatestForEntity returns the most recently updated record for an entity
	FindLatestForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID, erpType string) (*Record, error)
	// FindAllForEntity returns one record per ERP for an entity
	FindAllForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]*Record, error)
	// CountGrouped counts records by entity type, ERP type and status
	CountGrouped(ctx context.Context, tenantID uuid.UUID) ([]StatusCount, error)
	// FindHistory pages through records, newest first
	FindHistory(ctx context.Context, filter RecordFilter, page, pageSize int) ([]*Record, int64, error)
	// Delete removes a record
	Delete(ctx context.Context, id uuid.UUID) error
}

// EntityConfigRepository persists entity configurations
type EntityConfigRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*EntityConfig, error)
	// FindEnabled returns the enabled configuration or shared.ErrNotFound
	FindEnabled(ctx context.Context, tenantID uuid.UUID, entityType, erpType string) (*EntityConfig, error)
	FindAll(ctx context.Context, tenantID uuid.UUID) ([]*EntityConfig, error)
	Save(ctx context.Context, cfg *EntityConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ConnectionConfigRepository persists ERP connection settings
type ConnectionConfigRepository interface {
	// FindActive returns the tenant's active connection or shared.ErrNotFound
	FindActive(ctx context.Context, tenantID uuid.UUID) (*ConnectionConfig, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*ConnectionConfig, error)
	Save(ctx context.Context, cfg *ConnectionConfig) error
}
