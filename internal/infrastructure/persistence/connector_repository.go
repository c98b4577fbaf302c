package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConnectorConfigRepository implements connector.ConfigRepository using GORM
type GormConnectorConfigRepository struct {
	db *gorm.DB
}

var _ connector.ConfigRepository = (*GormConnectorConfigRepository)(nil)

// NewGormConnectorConfigRepository creates a new GormConnectorConfigRepository
func NewGormConnectorConfigRepository(db *gorm.DB) *GormConnectorConfigRepository {
	return &GormConnectorConfigRepository{db: db}
}

// FindByID finds a connector by its ID
func (r *GormConnectorConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.Config, error) {
	var m models.ConnectorConfigModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// Save inserts or updates a connector
func (r *GormConnectorConfigRepository) Save(ctx context.Context, cfg *connector.Config) error {
	m := &models.ConnectorConfigModel{}
	m.FromDomain(cfg)
	return r.db.WithContext(ctx).Save(m).Error
}

// RecordSync stamps the outcome of the last pull or push
func (r *GormConnectorConfigRepository) RecordSync(ctx context.Context, id uuid.UUID, direction connector.Direction, status connector.RunStatus, at time.Time) error {
	updates := map[string]any{
		"last_sync_at": at,
		"updated_at":   at,
	}
	switch direction {
	case connector.DirectionPull:
		updates["last_pull_sync"] = at
		updates["last_pull_status"] = status
	case connector.DirectionPush:
		updates["last_push_sync"] = at
		updates["last_push_status"] = status
	}
	return r.db.WithContext(ctx).Model(&models.ConnectorConfigModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// GormStagingRepository implements connector.StagingRepository using GORM
type GormStagingRepository struct {
	db *gorm.DB
}

var _ connector.StagingRepository = (*GormStagingRepository)(nil)

// NewGormStagingRepository creates a new GormStagingRepository
func NewGormStagingRepository(db *gorm.DB) *GormStagingRepository {
	return &GormStagingRepository{db: db}
}

// Create inserts a staged record
func (r *GormStagingRepository) Create(ctx context.Context, record *connector.StagingRecord) error {
	m := &models.StagingRecordModel{}
	m.FromDomain(record)
	return r.db.WithContext(ctx).Create(m).Error
}

// Save updates a staged record
func (r *GormStagingRepository) Save(ctx context.Context, record *connector.StagingRecord) error {
	m := &models.StagingRecordModel{}
	m.FromDomain(record)
	return r.db.WithContext(ctx).Save(m).Error
}

// FindByID finds a staged record by its ID
func (r *GormStagingRepository) FindByID(ctx context.Context, id uuid.UUID) (*connector.StagingRecord, error) {
	var m models.StagingRecordModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// List pages through a connector's staged records, newest first
func (r *GormStagingRepository) List(ctx context.Context, filter connector.StagingFilter, page, pageSize int) ([]*connector.StagingRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.StagingRecordModel{}).
		Where("connector_id = ?", filter.ConnectorID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ValidationStatus != "" {
		query = query.Where("validation_status = ?", filter.ValidationStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.StagingRecordModel
	if err := paginate(query.Order("created_at DESC"), page, pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*connector.StagingRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// Delete removes a staged record
func (r *GormStagingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StagingRecordModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormPullLogRepository implements connector.PullLogRepository using GORM
type GormPullLogRepository struct {
	db *gorm.DB
}

var _ connector.PullLogRepository = (*GormPullLogRepository)(nil)

// NewGormPullLogRepository creates a new GormPullLogRepository
func NewGormPullLogRepository(db *gorm.DB) *GormPullLogRepository {
	return &GormPullLogRepository{db: db}
}

// Create appends a pull log
func (r *GormPullLogRepository) Create(ctx context.Context, log *connector.PullLog) error {
	m := &models.PullLogModel{}
	m.FromDomain(log)
	return r.db.WithContext(ctx).Create(m).Error
}

// List pages through a connector's pull logs, newest first
func (r *GormPullLogRepository) List(ctx context.Context, connectorID uuid.UUID, page, pageSize int) ([]*connector.PullLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PullLogModel{}).Where("connector_id = ?", connectorID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.PullLogModel
	if err := paginate(query.Order("created_at DESC"), page, pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*connector.PullLog, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// GormExportLogRepository implements connector.ExportLogRepository using GORM
type GormExportLogRepository struct {
	db *gorm.DB
}

var _ connector.ExportLogRepository = (*GormExportLogRepository)(nil)

// NewGormExportLogRepository creates a new GormExportLogRepository
func NewGormExportLogRepository(db *gorm.DB) *GormExportLogRepository {
	return &GormExportLogRepository{db: db}
}

// Create appends an export log
func (r *GormExportLogRepository) Create(ctx context.Context, log *connector.ExportLog) error {
	m := &models.ExportLogModel{}
	m.FromDomain(log)
	return r.db.WithContext(ctx).Create(m).Error
}

// List pages through a connector's export logs, newest first
func (r *GormExportLogRepository) List(ctx context.Context, connectorID uuid.UUID, filter connector.ExportFilter, page, pageSize int) ([]*connector.ExportLog, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.ExportLogModel{}), connectorID, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.ExportLogModel
	if err := paginate(query.Order("created_at DESC"), page, pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toExportLogs(rows), total, nil
}

// FindByRecord returns every export of one Hub row, newest first
func (r *GormExportLogRepository) FindByRecord(ctx context.Context, kind connector.Kind, recordID uuid.UUID) ([]*connector.ExportLog, error) {
	var rows []models.ExportLogModel
	err := r.db.WithContext(ctx).
		Where("kind = ? AND record_id = ?", kind, recordID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toExportLogs(rows), nil
}

type exportCount struct {
	Kind   connector.Kind
	Status connector.RunStatus
	Count  int64
}

// Stats aggregates a connector's exports by kind and outcome
func (r *GormExportLogRepository) Stats(ctx context.Context, connectorID uuid.UUID, filter connector.ExportFilter) (*connector.ExportStats, error) {
	var counts []exportCount
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.ExportLogModel{}), connectorID, filter).
		Select("kind, status, COUNT(*) AS count").
		Group("kind, status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	stats := &connector.ExportStats{ByResourceType: map[connector.Kind]connector.KindStats{}}
	for _, c := range counts {
		ks := stats.ByResourceType[c.Kind]
		ks.Total += c.Count
		stats.Total += c.Count
		if c.Status == connector.RunSuccess {
			ks.Successful += c.Count
			stats.Successful += c.Count
		} else {
			ks.Failed += c.Count
			stats.Failed += c.Count
		}
		stats.ByResourceType[c.Kind] = ks
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (r *GormExportLogRepository) applyFilter(query *gorm.DB, connectorID uuid.UUID, filter connector.ExportFilter) *gorm.DB {
	query = query.Where("connector_id = ?", connectorID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}
	return query
}

func toExportLogs(rows []models.ExportLogModel) []*connector.ExportLog {
	out := make([]*connector.ExportLog, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}
