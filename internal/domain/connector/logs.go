package connector

import (
	"time"

	"github.com/google/uuid"
)

// RecordError describes one record that failed during a run
type RecordError struct {
	Record string `json:"record"`
	Error  string `json:"error"`
}

// PullLog records one resource execution of a pull
type PullLog struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ConnectorID     uuid.UUID
	ResourceID      string
	ResourceName    string
	Status          RunStatus
	RecordsFound    int
	RecordsImported int
	RecordsFailed   int
	RecordsStaged   int
	Errors          []RecordError
	ErrorMessage    string
	DurationMs      int64
	CreatedAt       time.Time
}

// ExportLog records one record sent by a push
type ExportLog struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ConnectorID  uuid.UUID
	Kind         Kind
	RecordID     uuid.UUID
	Status       RunStatus
	ExternalID   string
	Request      map[string]any
	Response     map[string]any
	ErrorMessage string
	CreatedAt    time.Time
}

// ExportFilter narrows export log queries
type ExportFilter struct {
	Kind      Kind
	StartDate *time.Time
	EndDate   *time.Time
}

// KindStats aggregates exports of one kind
type KindStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// ExportStats aggregates a connector's exports
type ExportStats struct {
	Total          int64              `json:"total"`
	Successful     int64              `json:"successful"`
	Failed         int64              `json:"failed"`
	SuccessRate    float64            `json:"successRate"`
	ByResourceType map[Kind]KindStats `json:"byResourceType"`
}
