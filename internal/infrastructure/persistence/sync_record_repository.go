package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncRecordRepository implements erpsync.RecordRepository using GORM
type GormSyncRecordRepository struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

var _ erpsync.RecordRepository = (*GormSyncRecordRepository)(nil)

// NewGormSyncRecordRepository creates a new GormSyncRecordRepository
func NewGormSyncRecordRepository(db *gorm.DB) *GormSyncRecordRepository {
	return &GormSyncRecordRepository{db: db, lease: erpsync.DefaultProcessingLease, now: time.Now}
}

// WithProcessingLease sets how long a claim holds before the record can be
// claimed again
func (r *GormSyncRecordRepository) WithProcessingLease(lease time.Duration) *GormSyncRecordRepository {
	if lease > 0 {
		r.lease = lease
	}
	return r
}

// Create inserts a new record. A concurrent insert of the same key surfaces
// as shared.ErrAlreadyExists.
func (r *GormSyncRecordRepository) Create(ctx context.Context, record *erpsync.Record) error {
	err := r.db.WithContext(ctx).Create(models.SyncRecordModelFromDomain(record)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// Save updates an existing record
func (r *GormSyncRecordRepository) Save(ctx context.Context, record *erpsync.Record) error {
	return r.db.WithContext(ctx).Save(models.SyncRecordModelFromDomain(record)).Error
}

// FindByID finds a record by its ID
func (r *GormSyncRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*erpsync.Record, error) {
	var m models.SyncRecordModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByKey finds the record of one entity in one ERP
func (r *GormSyncRecordRepository) FindByKey(ctx context.Context, key erpsync.Key) (*erpsync.Record, error) {
	var m models.SyncRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ? AND erp_type = ?",
			key.TenantID, key.EntityType, key.EntityID, key.ERPType).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindPending returns deliverable records, oldest first. PROCESSING rows
// whose lease ran out are included so a crashed worker's claims come back.
func (r *GormSyncRecordRepository) FindPending(ctx context.Context, filter erpsync.RecordFilter, limit int) ([]*erpsync.Record, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncRecordModel{}), filter).
		Where("retry_count < ?", erpsync.MaxAttempts).
		Where(r.claimable()).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.SyncRecordModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// Claim moves a record to PROCESSING with a conditional update and reads
// the claimed row back in the same transaction, so only one caller wins and
// the winner sees the payload it claimed. Every claim bumps claim_seq, which
// fences out a delivery whose lease was taken over.
func (r *GormSyncRecordRepository) Claim(ctx context.Context, id uuid.UUID, version int) (*erpsync.Record, error) {
	var claimed *erpsync.Record
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.SyncRecordModel{}).
			Where("id = ?", id).
			Where(r.claimable())
		if version > 0 {
			query = query.Where("version = ?", version)
		}
		result := query.Updates(map[string]any{
			"status":     erpsync.StatusProcessing,
			"claim_seq":  gorm.Expr("claim_seq + 1"),
			"updated_at": r.now(),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return erpsync.ErrAlreadyClaimed
		}

		var m models.SyncRecordModel
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		claimed = m.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Settle stores the outcome of a delivery if the claim still holds
func (r *GormSyncRecordRepository) Settle(ctx context.Context, record *erpsync.Record, claimedVersion int) error {
	result := r.db.WithContext(ctx).Model(&models.SyncRecordModel{}).
		Where("id = ? AND status = ? AND version = ? AND claim_seq = ?",
			record.ID, erpsync.StatusProcessing, claimedVersion, record.ClaimSeq).
		Updates(map[string]any{
			"status":        record.Status,
			"external_id":   record.ExternalID,
			"retry_count":   record.RetryCount,
			"error_message": record.ErrorMessage,
			"synced_at":     record.SyncedAt,
			"updated_at":    record.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return erpsync.ErrClaimLost
	}
	return nil
}

// claimable matches PENDING rows and PROCESSING rows with an expired lease
func (r *GormSyncRecordRepository) claimable() *gorm.DB {
	return r.db.Where("status = ?", erpsync.StatusPending).
		Or("status = ? AND updated_at < ?", erpsync.StatusProcessing, r.now().Add(-r.lease))
}

// ResetFailed puts FAILED records back in the queue with a fresh budget
func (r *GormSyncRecordRepository) ResetFailed(ctx context.Context, tenantID uuid.UUID, entityType string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncRecordModel{}).
		Where("tenant_id = ? AND status = ?", tenantID, erpsync.StatusFailed)
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	result := query.Updates(map[string]any{
		"status":        erpsync.StatusPending,
		"retry_count":   0,
		"error_message": "",
		"updated_at":    time.Now(),
	})
	return result.RowsAffected, result.Error
}

// FindLatestForEntity returns the most recently updated record of an entity.
// An empty erpType matches any ERP.
func (r *GormSyncRecordRepository) FindLatestForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID, erpType string) (*erpsync.Record, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID)
	if erpType != "" {
		query = query.Where("erp_type = ?", erpType)
	}
	var m models.SyncRecordModel
	if err := query.Order("updated_at DESC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindAllForEntity returns the records of an entity across ERPs
func (r *GormSyncRecordRepository) FindAllForEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]*erpsync.Record, error) {
	var rows []models.SyncRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID).
		Order("erp_type ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// CountGrouped counts a tenant's records by entity type, ERP and status
func (r *GormSyncRecordRepository) CountGrouped(ctx context.Context, tenantID uuid.UUID) ([]erpsync.StatusCount, error) {
	var counts []erpsync.StatusCount
	err := r.db.WithContext(ctx).Model(&models.SyncRecordModel{}).
		Select("entity_type, erp_type, status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("entity_type, erp_type, status").
		Order("entity_type, erp_type, status").
		Scan(&counts).Error
	return counts, err
}

// FindHistory pages through records, most recently updated first
func (r *GormSyncRecordRepository) FindHistory(ctx context.Context, filter erpsync.RecordFilter, page, pageSize int) ([]*erpsync.Record, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncRecordModel{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncRecordModel
	if err := paginate(query.Order("updated_at DESC"), page, pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toRecords(rows), total, nil
}

// Delete removes a record
func (r *GormSyncRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SyncRecordModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *GormSyncRecordRepository) applyFilter(query *gorm.DB, filter erpsync.RecordFilter) *gorm.DB {
	if filter.TenantID != uuid.Nil {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.ERPType != "" {
		query = query.Where("erp_type = ?", filter.ERPType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func toRecords(rows []models.SyncRecordModel) []*erpsync.Record {
	out := make([]*erpsync.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}
