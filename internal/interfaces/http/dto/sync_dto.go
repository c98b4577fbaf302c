package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/webhook"
)

// EnqueueRequest is the body of POST /sync-data
type EnqueueRequest struct {
	EntityType   string            `json:"entityType" binding:"required,max=50"`
	EntityID     string            `json:"entityId" binding:"required,max=100"`
	ERPType      string            `json:"erpType" binding:"required,oneof=AXIOMA SOFTLAND"`
	Payload      erpsync.Payload   `json:"payload" binding:"required"`
	Direction    erpsync.Direction `json:"direction" binding:"omitempty,oneof=IN OUT"`
	SourceSystem string            `json:"sourceSystem" binding:"max=50"`
	SourceUserID string            `json:"sourceUserId" binding:"max=100"`
}

// EnqueueBatchRequest is the body of POST /sync-data/batch
type EnqueueBatchRequest struct {
	Items []EnqueueRequest `json:"items" binding:"required,min=1,max=500,dive"`
}

// CompleteRequest is the body of POST /sync-data/:id/complete
type CompleteRequest struct {
	ExternalID string `json:"externalId" binding:"max=255"`
	// Version is the payload version that was delivered; zero skips the check
	Version int `json:"version" binding:"min=0"`
}

// FailRequest is the body of POST /sync-data/:id/fail
type FailRequest struct {
	ErrorMessage string `json:"errorMessage" binding:"required"`
	Version      int    `json:"version" binding:"min=0"`
}

// RetryFailedRequest is the body of POST /sync-data/retry-failed
type RetryFailedRequest struct {
	EntityType string `json:"entityType" binding:"max=50"`
}

// ProcessRequest is the body of POST /sync-data/process
type ProcessRequest struct {
	EntityType string `json:"entityType" binding:"max=50"`
	ERPType    string `json:"erpType" binding:"omitempty,oneof=AXIOMA SOFTLAND"`
	Limit      int    `json:"limit" binding:"omitempty,min=1,max=100"`
}

// SyncRecordResponse is a queue record as returned by the API
type SyncRecordResponse struct {
	ID           uuid.UUID         `json:"id"`
	EntityType   string            `json:"entityType"`
	EntityID     string            `json:"entityId"`
	ERPType      string            `json:"erpType"`
	Payload      erpsync.Payload   `json:"payload"`
	Direction    erpsync.Direction `json:"direction"`
	SourceSystem string            `json:"sourceSystem"`
	SourceUserID string            `json:"sourceUserId,omitempty"`
	Status       erpsync.Status    `json:"status"`
	ExternalID   string            `json:"externalId,omitempty"`
	Version      int               `json:"version"`
	RetryCount   int               `json:"retryCount"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	SyncedAt     *time.Time        `json:"syncedAt,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// ToSyncRecordResponse converts a queue record
func ToSyncRecordResponse(r *erpsync.Record) SyncRecordResponse {
	return SyncRecordResponse{
		ID:           r.ID,
		EntityType:   r.EntityType,
		EntityID:     r.EntityID,
		ERPType:      r.ERPType,
		Payload:      r.Payload,
		Direction:    r.Direction,
		SourceSystem: r.SourceSystem,
		SourceUserID: r.SourceUserID,
		Status:       r.Status,
		ExternalID:   r.ExternalID,
		Version:      r.Version,
		RetryCount:   r.RetryCount,
		ErrorMessage: r.ErrorMessage,
		SyncedAt:     r.SyncedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ToSyncRecordResponses converts a slice of queue records
func ToSyncRecordResponses(records []*erpsync.Record) []SyncRecordResponse {
	out := make([]SyncRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ToSyncRecordResponse(r))
	}
	return out
}

// EnqueueResponse reports what an enqueue did
type EnqueueResponse struct {
	Action erpsync.EnqueueAction `json:"action"`
	Record SyncRecordResponse    `json:"record"`
}

// EntityConfigRequest is the body of entity configuration create and update
type EntityConfigRequest struct {
	EntityType      string            `json:"entityType" binding:"required,max=50"`
	ERPType         string            `json:"erpType" binding:"required,oneof=AXIOMA SOFTLAND"`
	SourceTable     string            `json:"sourceTable" binding:"max=200"`
	PrimaryKey      string            `json:"primaryKey" binding:"max=100"`
	FieldMapping    map[string]string `json:"fieldMapping"`
	InsertStatement string            `json:"insertStatement"`
	UpdateStatement string            `json:"updateStatement"`
	Direction       erpsync.Direction `json:"direction" binding:"omitempty,oneof=IN OUT"`
	Enabled         *bool             `json:"enabled"`
}

// EntityConfigResponse is an entity configuration as returned by the API
type EntityConfigResponse struct {
	ID              uuid.UUID         `json:"id"`
	EntityType      string            `json:"entityType"`
	ERPType         string            `json:"erpType"`
	SourceTable     string            `json:"sourceTable"`
	PrimaryKey      string            `json:"primaryKey"`
	FieldMapping    map[string]string `json:"fieldMapping"`
	InsertStatement string            `json:"insertStatement"`
	UpdateStatement string            `json:"updateStatement"`
	Direction       erpsync.Direction `json:"direction"`
	Enabled         bool              `json:"enabled"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// ToEntityConfigResponse converts an entity configuration
func ToEntityConfigResponse(c *erpsync.EntityConfig) EntityConfigResponse {
	return EntityConfigResponse{
		ID:              c.ID,
		EntityType:      c.EntityType,
		ERPType:         c.ERPType,
		SourceTable:     c.SourceTable,
		PrimaryKey:      c.PrimaryKey,
		FieldMapping:    c.FieldMapping,
		InsertStatement: c.InsertStatement,
		UpdateStatement: c.UpdateStatement,
		Direction:       c.Direction,
		Enabled:         c.Enabled,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// ConnectionRequest is the body of PUT /sync-connections. An empty password
// keeps the stored one.
type ConnectionRequest struct {
	ERPType                string `json:"erpType" binding:"omitempty,oneof=AXIOMA SOFTLAND"`
	Host                   string `json:"host" binding:"required,max=255"`
	Port                   int    `json:"port" binding:"omitempty,min=1,max=65535"`
	Database               string `json:"database" binding:"required,max=128"`
	Username               string `json:"username" binding:"required,max=128"`
	Password               string `json:"password"`
	Encrypt                bool   `json:"encrypt"`
	TrustServerCertificate bool   `json:"trustServerCertificate"`
	Active                 *bool  `json:"active"`
}

// RedactedPassword replaces the stored password in responses
const RedactedPassword = "********"

// ConnectionResponse is an ERP connection with its password redacted
type ConnectionResponse struct {
	ID                     uuid.UUID `json:"id"`
	ERPType                string    `json:"erpType"`
	Host                   string    `json:"host"`
	Port                   int       `json:"port"`
	Database               string    `json:"database"`
	Username               string    `json:"username"`
	Password               string    `json:"password"`
	Encrypt                bool      `json:"encrypt"`
	TrustServerCertificate bool      `json:"trustServerCertificate"`
	Active                 bool      `json:"active"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// ToConnectionResponse converts a connection, never exposing the password
func ToConnectionResponse(c *erpsync.ConnectionConfig) ConnectionResponse {
	return ConnectionResponse{
		ID:                     c.ID,
		ERPType:                c.ERPType,
		Host:                   c.Host,
		Port:                   c.EffectivePort(),
		Database:               c.Database,
		Username:               c.Username,
		Password:               RedactedPassword,
		Encrypt:                c.Encrypt,
		TrustServerCertificate: c.TrustServerCertificate,
		Active:                 c.Active,
		UpdatedAt:              c.UpdatedAt,
	}
}

// PullRequest is the optional body of POST /api-connectors/:id/pull
type PullRequest struct {
	ResourceID string `json:"resourceId"`
}

// TestConnectionRequest is the optional body of POST /api-connectors/:id/test-connection
type TestConnectionRequest struct {
	Endpoint string `json:"endpoint"`
}

// ProcessStagingRequest is the body of POST /api-connectors/:id/staging/process
type ProcessStagingRequest struct {
	StagingIDs  []uuid.UUID `json:"stagingIds" binding:"required,min=1,max=500"`
	ValidatedBy string      `json:"validatedBy" binding:"max=100"`
}

// PushRequest is the optional body of POST /api-connectors/:id/push
type PushRequest struct {
	ForceAll    bool        `json:"forceAll"`
	DocumentIDs []uuid.UUID `json:"documentIds"`
	Limit       int         `json:"limit" binding:"omitempty,min=1,max=1000"`
}

// StagingRecordResponse is a staged record as returned by the API
type StagingRecordResponse struct {
	ID               uuid.UUID                   `json:"id"`
	ConnectorID      uuid.UUID                   `json:"connectorId"`
	ResourceID       string                      `json:"resourceId"`
	ResourceType     connector.Kind              `json:"resourceType"`
	RawData          map[string]any              `json:"rawData"`
	TransformedData  map[string]any              `json:"transformedData"`
	ValidationStatus connector.ValidationStatus  `json:"validationStatus"`
	ValidationErrors []connector.ValidationError `json:"validationErrors"`
	Status           connector.StagingStatus     `json:"status"`
	ValidatedBy      string                      `json:"validatedBy,omitempty"`
	ValidatedAt      *time.Time                  `json:"validatedAt,omitempty"`
	CreatedAt        time.Time                   `json:"createdAt"`
}

// ToStagingRecordResponses converts staged records
func ToStagingRecordResponses(records []*connector.StagingRecord) []StagingRecordResponse {
	out := make([]StagingRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, StagingRecordResponse{
			ID:               r.ID,
			ConnectorID:      r.ConnectorID,
			ResourceID:       r.ResourceID,
			ResourceType:     r.Kind,
			RawData:          r.RawData,
			TransformedData:  r.TransformedData,
			ValidationStatus: r.ValidationStatus,
			ValidationErrors: r.ValidationErrors,
			Status:           r.Status,
			ValidatedBy:      r.ValidatedBy,
			ValidatedAt:      r.ValidatedAt,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out
}

// PullLogResponse is one pull log row
type PullLogResponse struct {
	ID              uuid.UUID               `json:"id"`
	ResourceID      string                  `json:"resourceId"`
	ResourceName    string                  `json:"resourceName"`
	Status          connector.RunStatus     `json:"status"`
	RecordsFound    int                     `json:"recordsFound"`
	RecordsImported int                     `json:"recordsImported"`
	RecordsFailed   int                     `json:"recordsFailed"`
	RecordsStaged   int                     `json:"recordsStaged"`
	Errors          []connector.RecordError `json:"errors,omitempty"`
	ErrorMessage    string                  `json:"errorMessage,omitempty"`
	DurationMs      int64                   `json:"durationMs"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// ToPullLogResponses converts pull logs
func ToPullLogResponses(logs []*connector.PullLog) []PullLogResponse {
	out := make([]PullLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, PullLogResponse{
			ID:              l.ID,
			ResourceID:      l.ResourceID,
			ResourceName:    l.ResourceName,
			Status:          l.Status,
			RecordsFound:    l.RecordsFound,
			RecordsImported: l.RecordsImported,
			RecordsFailed:   l.RecordsFailed,
			RecordsStaged:   l.RecordsStaged,
			Errors:          l.Errors,
			ErrorMessage:    l.ErrorMessage,
			DurationMs:      l.DurationMs,
			CreatedAt:       l.CreatedAt,
		})
	}
	return out
}

// ExportLogResponse is one export log row
type ExportLogResponse struct {
	ID           uuid.UUID           `json:"id"`
	ConnectorID  uuid.UUID           `json:"connectorId"`
	ResourceType connector.Kind      `json:"resourceType"`
	RecordID     uuid.UUID           `json:"recordId"`
	Status       connector.RunStatus `json:"status"`
	ExternalID   string              `json:"externalId,omitempty"`
	Request      map[string]any      `json:"requestPayload,omitempty"`
	Response     map[string]any      `json:"responseData,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// ToExportLogResponses converts export logs
func ToExportLogResponses(logs []*connector.ExportLog) []ExportLogResponse {
	out := make([]ExportLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, ExportLogResponse{
			ID:           l.ID,
			ConnectorID:  l.ConnectorID,
			ResourceType: l.Kind,
			RecordID:     l.RecordID,
			Status:       l.Status,
			ExternalID:   l.ExternalID,
			Request:      l.Request,
			Response:     l.Response,
			ErrorMessage: l.ErrorMessage,
			CreatedAt:    l.CreatedAt,
		})
	}
	return out
}

// WebhookLogResponse is one delivery attempt
type WebhookLogResponse struct {
	ID         uuid.UUID      `json:"id"`
	WebhookID  uuid.UUID      `json:"webhookId"`
	EventID    string         `json:"eventId"`
	Event      string         `json:"event"`
	Payload    map[string]any `json:"payload"`
	StatusCode int            `json:"statusCode"`
	Response   string         `json:"response,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	Success    bool           `json:"success"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ToWebhookLogResponses converts delivery logs
func ToWebhookLogResponses(logs []*webhook.Log) []WebhookLogResponse {
	out := make([]WebhookLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, WebhookLogResponse{
			ID:         l.ID,
			WebhookID:  l.WebhookID,
			EventID:    l.EventID,
			Event:      l.Event,
			Payload:    l.Payload,
			StatusCode: l.StatusCode,
			Response:   l.Response,
			Error:      l.Error,
			Attempts:   l.Attempts,
			Success:    l.Success,
			CreatedAt:  l.CreatedAt,
		})
	}
	return out
}

// ConnectorResponse summarizes a connector without its credentials
type ConnectorResponse struct {
	ID                uuid.UUID           `json:"id"`
	Name              string              `json:"name"`
	BaseURL           string              `json:"baseUrl"`
	Direction         connector.Direction `json:"direction"`
	AuthType          connector.AuthType  `json:"authType"`
	RequestsPerMinute int                 `json:"requestsPerMinute"`
	PullResources     int                 `json:"pullResources"`
	PushResources     int                 `json:"pushResources"`
	RequireValidation bool                `json:"requireValidation"`
	Active            bool                `json:"active"`
	LastPullSync      *time.Time          `json:"lastPullSync,omitempty"`
	LastPullStatus    connector.RunStatus `json:"lastPullStatus,omitempty"`
	LastPushSync      *time.Time          `json:"lastPushSync,omitempty"`
	LastPushStatus    connector.RunStatus `json:"lastPushStatus,omitempty"`
}

// ToConnectorResponse converts a connector configuration
func ToConnectorResponse(c *connector.Config) ConnectorResponse {
	return ConnectorResponse{
		ID:                c.ID,
		Name:              c.Name,
		BaseURL:           c.BaseURL,
		Direction:         c.Direction,
		AuthType:          c.AuthType,
		RequestsPerMinute: c.RequestsPerMinute,
		PullResources:     len(c.PullResources),
		PushResources:     len(c.PushResources),
		RequireValidation: c.RequireValidation,
		Active:            c.Active,
		LastPullSync:      c.LastPullSync,
		LastPullStatus:    c.LastPullStatus,
		LastPushSync:      c.LastPushSync,
		LastPushStatus:    c.LastPushStatus,
	}
}
