package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"gorm.io/datatypes"
)

// SyncRecordModel is the persistence model of a sync queue record
type SyncRecordModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uq_sync_data_key,priority:1;index:idx_sync_data_tenant_status,priority:1"`
	EntityType   string            `gorm:"type:varchar(100);not null;uniqueIndex:uq_sync_data_key,priority:2"`
	EntityID     string            `gorm:"type:varchar(255);not null;uniqueIndex:uq_sync_data_key,priority:3"`
	ERPType      string            `gorm:"column:erp_type;type:varchar(50);not null;uniqueIndex:uq_sync_data_key,priority:4"`
	Payload      datatypes.JSON    `gorm:"not null"`
	PayloadHash  string            `gorm:"type:varchar(64);not null"`
	Direction    erpsync.Direction `gorm:"type:varchar(10);not null"`
	SourceSystem string            `gorm:"type:varchar(50);not null"`
	SourceUserID string            `gorm:"type:varchar(255)"`
	Status       erpsync.Status    `gorm:"type:varchar(20);not null;index:idx_sync_data_tenant_status,priority:2"`
	ExternalID   string            `gorm:"type:varchar(255)"`
	Version      int               `gorm:"not null"`
	ClaimSeq     int               `gorm:"not null;default:0"`
	RetryCount   int               `gorm:"not null"`
	ErrorMessage string            `gorm:"type:text"`
	SyncedAt     *time.Time
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRecordModel) TableName() string {
	return "sync_data"
}

// ToDomain converts the model to a domain record
func (m *SyncRecordModel) ToDomain() *erpsync.Record {
	r := &erpsync.Record{
		ID:           m.ID,
		TenantID:     m.TenantID,
		EntityType:   m.EntityType,
		EntityID:     m.EntityID,
		ERPType:      m.ERPType,
		Payload:      erpsync.Payload{},
		PayloadHash:  m.PayloadHash,
		Direction:    m.Direction,
		SourceSystem: m.SourceSystem,
		SourceUserID: m.SourceUserID,
		Status:       m.Status,
		ExternalID:   m.ExternalID,
		Version:      m.Version,
		ClaimSeq:     m.ClaimSeq,
		RetryCount:   m.RetryCount,
		ErrorMessage: m.ErrorMessage,
		SyncedAt:     m.SyncedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	decodeJSON(m.Payload, &r.Payload)
	return r
}

// FromDomain populates the model from a domain record
func (m *SyncRecordModel) FromDomain(r *erpsync.Record) {
	m.ID = r.ID
	m.TenantID = r.TenantID
	m.EntityType = r.EntityType
	m.EntityID = r.EntityID
	m.ERPType = r.ERPType
	m.Payload = encodeJSON(r.Payload)
	m.PayloadHash = r.PayloadHash
	m.Direction = r.Direction
	m.SourceSystem = r.SourceSystem
	m.SourceUserID = r.SourceUserID
	m.Status = r.Status
	m.ExternalID = r.ExternalID
	m.Version = r.Version
	m.ClaimSeq = r.ClaimSeq
	m.RetryCount = r.RetryCount
	m.ErrorMessage = r.ErrorMessage
	m.SyncedAt = r.SyncedAt
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// SyncRecordModelFromDomain creates a model from a domain record
func SyncRecordModelFromDomain(r *erpsync.Record) *SyncRecordModel {
	m := &SyncRecordModel{}
	m.FromDomain(r)
	return m
}

// EntityConfigModel is the persistence model of an entity configuration
type EntityConfigModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_sync_entity_config,priority:1"`
	EntityType      string    `gorm:"type:varchar(100);not null;uniqueIndex:uq_sync_entity_config,priority:2"`
	ERPType         string    `gorm:"column:erp_type;type:varchar(50);not null;uniqueIndex:uq_sync_entity_config,priority:3"`
	SourceTable     string    `gorm:"type:varchar(255)"`
	PrimaryKey      string    `gorm:"type:varchar(100)"`
	FieldMapping    datatypes.JSON
	InsertStatement string            `gorm:"type:text"`
	UpdateStatement string            `gorm:"type:text"`
	Direction       erpsync.Direction `gorm:"type:varchar(10);not null"`
	Enabled         bool              `gorm:"not null"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EntityConfigModel) TableName() string {
	return "sync_entity_configs"
}

// ToDomain converts the model to a domain entity configuration
func (m *EntityConfigModel) ToDomain() *erpsync.EntityConfig {
	c := &erpsync.EntityConfig{
		ID:              m.ID,
		TenantID:        m.TenantID,
		EntityType:      m.EntityType,
		ERPType:         m.ERPType,
		SourceTable:     m.SourceTable,
		PrimaryKey:      m.PrimaryKey,
		FieldMapping:    map[string]string{},
		InsertStatement: m.InsertStatement,
		UpdateStatement: m.UpdateStatement,
		Direction:       m.Direction,
		Enabled:         m.Enabled,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	decodeJSON(m.FieldMapping, &c.FieldMapping)
	return c
}

// FromDomain populates the model from a domain entity configuration
func (m *EntityConfigModel) FromDomain(c *erpsync.EntityConfig) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.EntityType = c.EntityType
	m.ERPType = c.ERPType
	m.SourceTable = c.SourceTable
	m.PrimaryKey = c.PrimaryKey
	m.FieldMapping = encodeJSON(c.FieldMapping)
	m.InsertStatement = c.InsertStatement
	m.UpdateStatement = c.UpdateStatement
	m.Direction = c.Direction
	m.Enabled = c.Enabled
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// ConnectionConfigModel is the persistence model of a tenant's ERP endpoint
type ConnectionConfigModel struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID               uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	ERPType                string    `gorm:"column:erp_type;type:varchar(50);not null"`
	Host                   string    `gorm:"type:varchar(255);not null"`
	Port                   int       `gorm:"not null"`
	Database               string    `gorm:"column:database_name;type:varchar(255);not null"`
	Username               string    `gorm:"type:varchar(255);not null"`
	PasswordEncrypted      string    `gorm:"type:text;not null"`
	Encrypt                bool      `gorm:"not null"`
	TrustServerCertificate bool      `gorm:"not null"`
	Active                 bool      `gorm:"not null"`
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConnectionConfigModel) TableName() string {
	return "sync_configurations"
}

// ToDomain converts the model to a domain connection configuration
func (m *ConnectionConfigModel) ToDomain() *erpsync.ConnectionConfig {
	return &erpsync.ConnectionConfig{
		ID:                     m.ID,
		TenantID:               m.TenantID,
		ERPType:                m.ERPType,
		Host:                   m.Host,
		Port:                   m.Port,
		Database:               m.Database,
		Username:               m.Username,
		PasswordEncrypted:      m.PasswordEncrypted,
		Encrypt:                m.Encrypt,
		TrustServerCertificate: m.TrustServerCertificate,
		Active:                 m.Active,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain connection configuration
func (m *ConnectionConfigModel) FromDomain(c *erpsync.ConnectionConfig) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.ERPType = c.ERPType
	m.Host = c.Host
	m.Port = c.Port
	m.Database = c.Database
	m.Username = c.Username
	m.PasswordEncrypted = c.PasswordEncrypted
	m.Encrypt = c.Encrypt
	m.TrustServerCertificate = c.TrustServerCertificate
	m.Active = c.Active
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}
