package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/webhook"
	"gorm.io/datatypes"
)

// WebhookModel is the persistence model of a webhook subscription
type WebhookModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	URL        string    `gorm:"type:varchar(2048);not null"`
	Secret     string    `gorm:"type:varchar(255);not null"`
	Events     datatypes.JSON
	Active     bool `gorm:"not null"`
	LastSentAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookModel) TableName() string {
	return "webhooks"
}

// ToDomain converts the model to a domain webhook
func (m *WebhookModel) ToDomain() *webhook.Webhook {
	w := &webhook.Webhook{
		ID:         m.ID,
		TenantID:   m.TenantID,
		URL:        m.URL,
		Secret:     m.Secret,
		Active:     m.Active,
		LastSentAt: m.LastSentAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	decodeJSON(m.Events, &w.Events)
	return w
}

// FromDomain populates the model from a domain webhook
func (m *WebhookModel) FromDomain(w *webhook.Webhook) {
	m.ID = w.ID
	m.TenantID = w.TenantID
	m.URL = w.URL
	m.Secret = w.Secret
	m.Events = encodeJSON(w.Events)
	m.Active = w.Active
	m.LastSentAt = w.LastSentAt
	m.CreatedAt = w.CreatedAt
	m.UpdatedAt = w.UpdatedAt
}

// WebhookLogModel is the persistence model of one delivery attempt
type WebhookLogModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	WebhookID  uuid.UUID `gorm:"type:uuid;not null;index"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index:idx_webhook_logs_tenant_created,priority:1"`
	EventID    string    `gorm:"type:varchar(64);not null;index"`
	Event      string    `gorm:"type:varchar(100);not null"`
	Payload    datatypes.JSON
	StatusCode int       `gorm:"not null"`
	Response   string    `gorm:"type:text"`
	Error      string    `gorm:"type:text"`
	Attempts   int       `gorm:"not null"`
	Success    bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_webhook_logs_tenant_created,priority:2"`
}

// TableName returns the table name for GORM
func (WebhookLogModel) TableName() string {
	return "webhook_logs"
}

// ToDomain converts the model to a domain log entry
func (m *WebhookLogModel) ToDomain() *webhook.Log {
	l := &webhook.Log{
		ID:         m.ID,
		WebhookID:  m.WebhookID,
		TenantID:   m.TenantID,
		EventID:    m.EventID,
		Event:      m.Event,
		StatusCode: m.StatusCode,
		Response:   m.Response,
		Error:      m.Error,
		Attempts:   m.Attempts,
		Success:    m.Success,
		CreatedAt:  m.CreatedAt,
	}
	decodeJSON(m.Payload, &l.Payload)
	return l
}

// FromDomain populates the model from a domain log entry
func (m *WebhookLogModel) FromDomain(l *webhook.Log) {
	m.ID = l.ID
	m.WebhookID = l.WebhookID
	m.TenantID = l.TenantID
	m.EventID = l.EventID
	m.Event = l.Event
	m.Payload = encodeJSON(l.Payload)
	m.StatusCode = l.StatusCode
	m.Response = l.Response
	m.Error = l.Error
	m.Attempts = l.Attempts
	m.Success = l.Success
	m.CreatedAt = l.CreatedAt
}

// WebhookRetryModel is the persistence model of a scheduled redelivery
type WebhookRetryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	WebhookID     uuid.UUID `gorm:"type:uuid;not null"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null"`
	EventID       string    `gorm:"type:varchar(64);not null"`
	Event         string    `gorm:"type:varchar(100);not null"`
	Payload       datatypes.JSON
	Attempt       int                 `gorm:"not null"`
	NextAttemptAt time.Time           `gorm:"not null;index:idx_webhook_retries_due,priority:2"`
	Status        webhook.RetryStatus `gorm:"type:varchar(20);not null;index:idx_webhook_retries_due,priority:1"`
	LastError     string              `gorm:"type:text"`
	CreatedAt     time.Time           `gorm:"not null"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookRetryModel) TableName() string {
	return "webhook_retries"
}

// ToDomain converts the model to a domain retry
func (m *WebhookRetryModel) ToDomain() *webhook.Retry {
	r := &webhook.Retry{
		ID:            m.ID,
		WebhookID:     m.WebhookID,
		TenantID:      m.TenantID,
		EventID:       m.EventID,
		Event:         m.Event,
		Attempt:       m.Attempt,
		NextAttemptAt: m.NextAttemptAt,
		Status:        m.Status,
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	decodeJSON(m.Payload, &r.Payload)
	return r
}

// FromDomain populates the model from a domain retry
func (m *WebhookRetryModel) FromDomain(r *webhook.Retry) {
	m.ID = r.ID
	m.WebhookID = r.WebhookID
	m.TenantID = r.TenantID
	m.EventID = r.EventID
	m.Event = r.Event
	m.Payload = encodeJSON(r.Payload)
	m.Attempt = r.Attempt
	m.NextAttemptAt = r.NextAttemptAt
	m.Status = r.Status
	m.LastError = r.LastError
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}
