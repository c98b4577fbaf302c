package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormEntityConfigRepository implements erpsync.EntityConfigRepository using GORM
type GormEntityConfigRepository struct {
	db *gorm.DB
}

var _ erpsync.EntityConfigRepository = (*GormEntityConfigRepository)(nil)

// NewGormEntityConfigRepository creates a new GormEntityConfigRepository
func NewGormEntityConfigRepository(db *gorm.DB) *GormEntityConfigRepository {
	return &GormEntityConfigRepository{db: db}
}

// FindByID finds a configuration by its ID
func (r *GormEntityConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*erpsync.EntityConfig, error) {
	var m models.EntityConfigModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindEnabled finds the enabled configuration of an entity type in an ERP
func (r *GormEntityConfigRepository) FindEnabled(ctx context.Context, tenantID uuid.UUID, entityType, erpType string) (*erpsync.EntityConfig, error) {
	var m models.EntityConfigModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND erp_type = ? AND enabled = ?", tenantID, entityType, erpType, true).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindAll lists a tenant's configurations
func (r *GormEntityConfigRepository) FindAll(ctx context.Context, tenantID uuid.UUID) ([]*erpsync.EntityConfig, error) {
	var rows []models.EntityConfigModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("entity_type ASC, erp_type ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*erpsync.EntityConfig, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Save inserts or updates a configuration
func (r *GormEntityConfigRepository) Save(ctx context.Context, cfg *erpsync.EntityConfig) error {
	m := &models.EntityConfigModel{}
	m.FromDomain(cfg)
	err := r.db.WithContext(ctx).Save(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError("ALREADY_EXISTS", "a configuration for this entity type and ERP already exists")
	}
	return err
}

// Delete removes a configuration
func (r *GormEntityConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.EntityConfigModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormConnectionConfigRepository implements erpsync.ConnectionConfigRepository using GORM
type GormConnectionConfigRepository struct {
	db *gorm.DB
}

var _ erpsync.ConnectionConfigRepository = (*GormConnectionConfigRepository)(nil)

// NewGormConnectionConfigRepository creates a new GormConnectionConfigRepository
func NewGormConnectionConfigRepository(db *gorm.DB) *GormConnectionConfigRepository {
	return &GormConnectionConfigRepository{db: db}
}

// FindActive finds the tenant's active ERP connection
func (r *GormConnectionConfigRepository) FindActive(ctx context.Context, tenantID uuid.UUID) (*erpsync.ConnectionConfig, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true))
}

// FindByTenant finds the tenant's ERP connection whether active or not
func (r *GormConnectionConfigRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*erpsync.ConnectionConfig, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("tenant_id = ?", tenantID))
}

func (r *GormConnectionConfigRepository) find(_ context.Context, query *gorm.DB) (*erpsync.ConnectionConfig, error) {
	var m models.ConnectionConfigModel
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// Save inserts or updates a connection
func (r *GormConnectionConfigRepository) Save(ctx context.Context, cfg *erpsync.ConnectionConfig) error {
	m := &models.ConnectionConfigModel{}
	m.FromDomain(cfg)
	return r.db.WithContext(ctx).Save(m).Error
}
