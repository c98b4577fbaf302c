package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/connector"
	"gorm.io/datatypes"
)

// ConnectorConfigModel is the persistence model of an API connector.
// Durations are stored in milliseconds.
type ConnectorConfigModel struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID           `gorm:"type:uuid;not null;index"`
	Name              string              `gorm:"type:varchar(255);not null"`
	BaseURL           string              `gorm:"column:base_url;type:varchar(1024);not null"`
	Direction         connector.Direction `gorm:"type:varchar(20);not null"`
	AuthType          connector.AuthType  `gorm:"type:varchar(40);not null"`
	AuthConfig        datatypes.JSON
	Headers           datatypes.JSON
	RequestsPerMinute int `gorm:"not null"`
	TimeoutMs         int64
	MaxRetries        int
	RetryDelayMs      int64
	PullResources     datatypes.JSON
	PushResources     datatypes.JSON
	PullFieldMapping  datatypes.JSON
	ValidationRules   datatypes.JSON
	RequireValidation bool `gorm:"not null"`
	Active            bool `gorm:"not null"`
	LastPullSync      *time.Time
	LastPullStatus    connector.RunStatus `gorm:"type:varchar(20)"`
	LastPushSync      *time.Time
	LastPushStatus    connector.RunStatus `gorm:"type:varchar(20)"`
	LastSyncAt        *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConnectorConfigModel) TableName() string {
	return "api_connectors"
}

// ToDomain converts the model to a domain connector configuration
func (m *ConnectorConfigModel) ToDomain() *connector.Config {
	c := &connector.Config{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Name:              m.Name,
		BaseURL:           m.BaseURL,
		Direction:         m.Direction,
		AuthType:          m.AuthType,
		RequestsPerMinute: m.RequestsPerMinute,
		Timeout:           time.Duration(m.TimeoutMs) * time.Millisecond,
		MaxRetries:        m.MaxRetries,
		RetryDelay:        time.Duration(m.RetryDelayMs) * time.Millisecond,
		RequireValidation: m.RequireValidation,
		Active:            m.Active,
		LastPullSync:      m.LastPullSync,
		LastPullStatus:    m.LastPullStatus,
		LastPushSync:      m.LastPushSync,
		LastPushStatus:    m.LastPushStatus,
		LastSyncAt:        m.LastSyncAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	decodeJSON(m.AuthConfig, &c.Auth)
	decodeJSON(m.Headers, &c.Headers)
	decodeJSON(m.PullResources, &c.PullResources)
	decodeJSON(m.PushResources, &c.PushResources)
	decodeJSON(m.PullFieldMapping, &c.PullFieldMapping)
	decodeJSON(m.ValidationRules, &c.ValidationRules)
	c.ApplyDefaults()
	return c
}

// FromDomain populates the model from a domain connector configuration
func (m *ConnectorConfigModel) FromDomain(c *connector.Config) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.Name = c.Name
	m.BaseURL = c.BaseURL
	m.Direction = c.Direction
	m.AuthType = c.AuthType
	m.AuthConfig = encodeJSON(c.Auth)
	m.Headers = encodeJSON(c.Headers)
	m.RequestsPerMinute = c.RequestsPerMinute
	m.TimeoutMs = c.Timeout.Milliseconds()
	m.MaxRetries = c.MaxRetries
	m.RetryDelayMs = c.RetryDelay.Milliseconds()
	m.PullResources = encodeJSON(c.PullResources)
	m.PushResources = encodeJSON(c.PushResources)
	m.PullFieldMapping = encodeJSON(c.PullFieldMapping)
	m.ValidationRules = encodeJSON(c.ValidationRules)
	m.RequireValidation = c.RequireValidation
	m.Active = c.Active
	m.LastPullSync = c.LastPullSync
	m.LastPullStatus = c.LastPullStatus
	m.LastPushSync = c.LastPushSync
	m.LastPushStatus = c.LastPushStatus
	m.LastSyncAt = c.LastSyncAt
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// StagingRecordModel is the persistence model of a staged record
type StagingRecordModel struct {
	ID               uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID                  `gorm:"type:uuid;not null;index"`
	ConnectorID      uuid.UUID                  `gorm:"type:uuid;not null;index:idx_staging_connector_status,priority:1"`
	ResourceID       string                     `gorm:"type:varchar(255);not null"`
	Kind             connector.Kind             `gorm:"type:varchar(40);not null"`
	RawData          datatypes.JSON             `gorm:"not null"`
	TransformedData  datatypes.JSON             `gorm:"not null"`
	ValidationStatus connector.ValidationStatus `gorm:"type:varchar(20);not null"`
	ValidationErrors datatypes.JSON
	Status           connector.StagingStatus `gorm:"type:varchar(20);not null;index:idx_staging_connector_status,priority:2"`
	ValidatedBy      string                  `gorm:"type:varchar(255)"`
	ValidatedAt      *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StagingRecordModel) TableName() string {
	return "api_staging_records"
}

// ToDomain converts the model to a domain staging record
func (m *StagingRecordModel) ToDomain() *connector.StagingRecord {
	s := &connector.StagingRecord{
		ID:               m.ID,
		TenantID:         m.TenantID,
		ConnectorID:      m.ConnectorID,
		ResourceID:       m.ResourceID,
		Kind:             m.Kind,
		ValidationStatus: m.ValidationStatus,
		Status:           m.Status,
		ValidatedBy:      m.ValidatedBy,
		ValidatedAt:      m.ValidatedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	decodeJSON(m.RawData, &s.RawData)
	decodeJSON(m.TransformedData, &s.TransformedData)
	decodeJSON(m.ValidationErrors, &s.ValidationErrors)
	return s
}

// FromDomain populates the model from a domain staging record
func (m *StagingRecordModel) FromDomain(s *connector.StagingRecord) {
	m.ID = s.ID
	m.TenantID = s.TenantID
	m.ConnectorID = s.ConnectorID
	m.ResourceID = s.ResourceID
	m.Kind = s.Kind
	m.RawData = encodeJSON(s.RawData)
	m.TransformedData = encodeJSON(s.TransformedData)
	m.ValidationStatus = s.ValidationStatus
	m.ValidationErrors = encodeJSON(s.ValidationErrors)
	m.Status = s.Status
	m.ValidatedBy = s.ValidatedBy
	m.ValidatedAt = s.ValidatedAt
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// PullLogModel is the persistence model of a pull execution
type PullLogModel struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID           `gorm:"type:uuid;not null"`
	ConnectorID     uuid.UUID           `gorm:"type:uuid;not null;index:idx_pull_logs_connector,priority:1"`
	ResourceID      string              `gorm:"type:varchar(255)"`
	ResourceName    string              `gorm:"type:varchar(255)"`
	Status          connector.RunStatus `gorm:"type:varchar(20);not null"`
	RecordsFound    int                 `gorm:"not null"`
	RecordsImported int                 `gorm:"not null"`
	RecordsFailed   int                 `gorm:"not null"`
	RecordsStaged   int                 `gorm:"not null"`
	Errors          datatypes.JSON
	ErrorMessage    string    `gorm:"type:text"`
	DurationMs      int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;index:idx_pull_logs_connector,priority:2"`
}

// TableName returns the table name for GORM
func (PullLogModel) TableName() string {
	return "api_pull_logs"
}

// ToDomain converts the model to a domain pull log
func (m *PullLogModel) ToDomain() *connector.PullLog {
	l := &connector.PullLog{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ConnectorID:     m.ConnectorID,
		ResourceID:      m.ResourceID,
		ResourceName:    m.ResourceName,
		Status:          m.Status,
		RecordsFound:    m.RecordsFound,
		RecordsImported: m.RecordsImported,
		RecordsFailed:   m.RecordsFailed,
		RecordsStaged:   m.RecordsStaged,
		ErrorMessage:    m.ErrorMessage,
		DurationMs:      m.DurationMs,
		CreatedAt:       m.CreatedAt,
	}
	decodeJSON(m.Errors, &l.Errors)
	return l
}

// FromDomain populates the model from a domain pull log
func (m *PullLogModel) FromDomain(l *connector.PullLog) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.ConnectorID = l.ConnectorID
	m.ResourceID = l.ResourceID
	m.ResourceName = l.ResourceName
	m.Status = l.Status
	m.RecordsFound = l.RecordsFound
	m.RecordsImported = l.RecordsImported
	m.RecordsFailed = l.RecordsFailed
	m.RecordsStaged = l.RecordsStaged
	m.Errors = encodeJSON(l.Errors)
	m.ErrorMessage = l.ErrorMessage
	m.DurationMs = l.DurationMs
	m.CreatedAt = l.CreatedAt
}

// ExportLogModel is the persistence model of an exported record
type ExportLogModel struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID           `gorm:"type:uuid;not null"`
	ConnectorID  uuid.UUID           `gorm:"type:uuid;not null;index:idx_export_logs_connector,priority:1"`
	Kind         connector.Kind      `gorm:"type:varchar(40);not null;index:idx_export_logs_record,priority:1"`
	RecordID     uuid.UUID           `gorm:"type:uuid;not null;index:idx_export_logs_record,priority:2"`
	Status       connector.RunStatus `gorm:"type:varchar(20);not null"`
	ExternalID   string              `gorm:"type:varchar(255)"`
	Request      datatypes.JSON
	Response     datatypes.JSON
	ErrorMessage string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null;index:idx_export_logs_connector,priority:2"`
}

// TableName returns the table name for GORM
func (ExportLogModel) TableName() string {
	return "api_export_logs"
}

// ToDomain converts the model to a domain export log
func (m *ExportLogModel) ToDomain() *connector.ExportLog {
	l := &connector.ExportLog{
		ID:           m.ID,
		TenantID:     m.TenantID,
		ConnectorID:  m.ConnectorID,
		Kind:         m.Kind,
		RecordID:     m.RecordID,
		Status:       m.Status,
		ExternalID:   m.ExternalID,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
	}
	decodeJSON(m.Request, &l.Request)
	decodeJSON(m.Response, &l.Response)
	return l
}

// FromDomain populates the model from a domain export log
func (m *ExportLogModel) FromDomain(l *connector.ExportLog) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.ConnectorID = l.ConnectorID
	m.Kind = l.Kind
	m.RecordID = l.RecordID
	m.Status = l.Status
	m.ExternalID = l.ExternalID
	m.Request = encodeJSON(l.Request)
	m.Response = encodeJSON(l.Response)
	m.ErrorMessage = l.ErrorMessage
	m.CreatedAt = l.CreatedAt
}
