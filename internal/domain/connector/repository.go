package connector

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConfigRepository persists connector configurations
type ConfigRepository interface {
	// FindByID returns shared.ErrNotFound when absent
	FindByID(ctx context.Context, id uuid.UUID) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
	// RecordSync stamps the last pull or push outcome without touching the rest
	RecordSync(ctx context.Context, id uuid.UUID, direction Direction, status RunStatus, at time.Time) error
}

// StagingFilter narrows staging queries
type StagingFilter struct {
	ConnectorID      uuid.UUID
	Status           StagingStatus
	ValidationStatus ValidationStatus
}

// StagingRepository persists staged records
type StagingRepository interface {
	Create(ctx context.Context, record *StagingRecord) error
	Save(ctx context.Context, record *StagingRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*StagingRecord, error)
	List(ctx context.Context, filter StagingFilter, page, pageSize int) ([]*StagingRecord, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PullLogRepository appends pull executions
type PullLogRepository interface {
	Create(ctx context.Context, log *PullLog) error
	List(ctx context.Context, connectorID uuid.UUID, page, pageSize int) ([]*PullLog, int64, error)
}

// ExportLogRepository appends exports
type ExportLogRepository interface {
	Create(ctx context.Context, log *ExportLog) error
	List(ctx context.Context, connectorID uuid.UUID, filter ExportFilter, page, pageSize int) ([]*ExportLog, int64, error)
	FindByRecord(ctx context.Context, kind Kind, recordID uuid.UUID) ([]*ExportLog, error)
	Stats(ctx context.Context, connectorID uuid.UUID, filter ExportFilter) (*ExportStats, error)
}
