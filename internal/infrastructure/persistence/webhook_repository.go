package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/domain/webhook"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormWebhookRepository implements webhook.Repository using GORM
type GormWebhookRepository struct {
	db *gorm.DB
}

var _ webhook.Repository = (*GormWebhookRepository)(nil)

// NewGormWebhookRepository creates a new GormWebhookRepository
func NewGormWebhookRepository(db *gorm.DB) *GormWebhookRepository {
	return &GormWebhookRepository{db: db}
}

// FindByID finds a webhook by its ID
func (r *GormWebhookRepository) FindByID(ctx context.Context, id uuid.UUID) (*webhook.Webhook, error) {
	var m models.WebhookModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindActiveForEvent returns the tenant's active webhooks subscribed to event.
// Subscriptions are a JSON array, so the membership check runs in Go to
// stay portable across databases.
func (r *GormWebhookRepository) FindActiveForEvent(ctx context.Context, tenantID uuid.UUID, event string) ([]*webhook.Webhook, error) {
	var rows []models.WebhookModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*webhook.Webhook, 0, len(rows))
	for i := range rows {
		w := rows[i].ToDomain()
		if w.Subscribes(event) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Save inserts or updates a webhook
func (r *GormWebhookRepository) Save(ctx context.Context, w *webhook.Webhook) error {
	m := &models.WebhookModel{}
	m.FromDomain(w)
	return r.db.WithContext(ctx).Save(m).Error
}

// TouchLastSent stamps the time of the last delivery attempt
func (r *GormWebhookRepository) TouchLastSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.WebhookModel{}).
		Where("id = ?", id).
		Update("last_sent_at", at).Error
}

// GormWebhookLogRepository implements webhook.LogRepository using GORM
type GormWebhookLogRepository struct {
	db *gorm.DB
}

var _ webhook.LogRepository = (*GormWebhookLogRepository)(nil)

// NewGormWebhookLogRepository creates a new GormWebhookLogRepository
func NewGormWebhookLogRepository(db *gorm.DB) *GormWebhookLogRepository {
	return &GormWebhookLogRepository{db: db}
}

// Create appends a delivery attempt
func (r *GormWebhookLogRepository) Create(ctx context.Context, log *webhook.Log) error {
	m := &models.WebhookLogModel{}
	m.FromDomain(log)
	return r.db.WithContext(ctx).Create(m).Error
}

// List pages through delivery attempts, newest first
func (r *GormWebhookLogRepository) List(ctx context.Context, filter webhook.LogFilter, page, pageSize int) ([]*webhook.Log, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WebhookLogModel{}).Where("tenant_id = ?", filter.TenantID)
	if filter.WebhookID != uuid.Nil {
		query = query.Where("webhook_id = ?", filter.WebhookID)
	}
	if filter.Event != "" {
		query = query.Where("event = ?", filter.Event)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.WebhookLogModel
	if err := paginate(query.Order("created_at DESC"), page, pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*webhook.Log, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

type deliveryCount struct {
	Event   string
	Success bool
	Count   int64
}

// Stats aggregates a tenant's deliveries since a point in time
func (r *GormWebhookLogRepository) Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*webhook.Stats, error) {
	var counts []deliveryCount
	err := r.db.WithContext(ctx).Model(&models.WebhookLogModel{}).
		Select("event, success, COUNT(*) AS count").
		Where("tenant_id = ? AND created_at >= ?", tenantID, since).
		Group("event, success").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	stats := &webhook.Stats{ByEvent: map[string]webhook.EventStats{}}
	for _, c := range counts {
		es := stats.ByEvent[c.Event]
		es.Total += c.Count
		stats.Total += c.Count
		if c.Success {
			es.Successful += c.Count
			stats.Successful += c.Count
		} else {
			es.Failed += c.Count
			stats.Failed += c.Count
		}
		stats.ByEvent[c.Event] = es
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return stats, nil
}

// GormWebhookRetryRepository implements webhook.RetryRepository using GORM
type GormWebhookRetryRepository struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

var _ webhook.RetryRepository = (*GormWebhookRetryRepository)(nil)

// NewGormWebhookRetryRepository creates a new GormWebhookRetryRepository
func NewGormWebhookRetryRepository(db *gorm.DB) *GormWebhookRetryRepository {
	return &GormWebhookRetryRepository{db: db, lease: webhook.DefaultRetryLease, now: time.Now}
}

// WithLease sets how long a PROCESSING retry may go untouched before it is due again
func (r *GormWebhookRetryRepository) WithLease(lease time.Duration) *GormWebhookRetryRepository {
	if lease > 0 {
		r.lease = lease
	}
	return r
}

// Create schedules a retry
func (r *GormWebhookRetryRepository) Create(ctx context.Context, retry *webhook.Retry) error {
	m := &models.WebhookRetryModel{}
	m.FromDomain(retry)
	return r.db.WithContext(ctx).Create(m).Error
}

// FindDue returns pending retries whose time has come plus retries abandoned
// mid-delivery, earliest first
func (r *GormWebhookRetryRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*webhook.Retry, error) {
	query := r.db.WithContext(ctx).
		Where(r.claimable(now)).
		Order("next_attempt_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.WebhookRetryModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*webhook.Retry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Claim moves a due retry to PROCESSING; false means someone else has it
func (r *GormWebhookRetryRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	now := r.now()
	result := r.db.WithContext(ctx).Model(&models.WebhookRetryModel{}).
		Where("id = ?", id).
		Where(r.claimable(now)).
		Updates(map[string]any{"status": webhook.RetryProcessing, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// claimable matches due PENDING rows and PROCESSING rows whose lease ran out
func (r *GormWebhookRetryRepository) claimable(now time.Time) *gorm.DB {
	return r.db.Where("status = ? AND next_attempt_at <= ?", webhook.RetryPending, now).
		Or("status = ? AND updated_at < ?", webhook.RetryProcessing, now.Add(-r.lease))
}

// Finish closes a claimed retry
func (r *GormWebhookRetryRepository) Finish(ctx context.Context, id uuid.UUID, status webhook.RetryStatus, lastError string) error {
	return r.db.WithContext(ctx).Model(&models.WebhookRetryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "last_error": lastError, "updated_at": time.Now()}).Error
}

// DeleteDoneBefore prunes finished retries last touched before the cutoff
func (r *GormWebhookRetryRepository) DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []webhook.RetryStatus{webhook.RetryDone, webhook.RetryDropped}, before).
		Delete(&models.WebhookRetryModel{})
	return result.RowsAffected, result.Error
}
