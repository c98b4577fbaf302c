package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/hub"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// Push filters accepted per table; unknown keys are ignored
var (
	documentFilterColumns = map[string]string{
		"documentType":  "document_type",
		"tipoDocumento": "document_type",
		"supplierTaxId": "supplier_tax_id",
		"rutProveedor":  "supplier_tax_id",
	}
	masterFilterColumns = map[string]string{
		"active": "active",
		"activo": "active",
	}
)

func applyExportQuery(query *gorm.DB, q hub.ExportQuery, columns map[string]string) *gorm.DB {
	switch {
	case len(q.IDs) > 0:
		query = query.Where("id IN ?", q.IDs)
	case !q.ForceAll:
		query = query.Where("last_exported_at IS NULL")
	}
	for key, value := range q.Filters {
		if column, ok := columns[key]; ok {
			query = query.Where(column+" = ?", value)
		}
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

func exportMarkUpdates(mark hub.ExportMark) map[string]any {
	at := time.Now()
	if mark.LastExportedAt != nil {
		at = *mark.LastExportedAt
	}
	return map[string]any{
		"last_exported_at": at,
		"export_config_id": mark.ExportConfigID,
		"external_id":      mark.ExternalID,
		"updated_at":       time.Now(),
	}
}

// GormDocumentRepository implements hub.DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

var _ hub.DocumentRepository = (*GormDocumentRepository)(nil)

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// Create inserts a document with its lines and taxes in one transaction
func (r *GormDocumentRepository) Create(ctx context.Context, doc *hub.Document) error {
	m := &models.DocumentModel{}
	m.FromDomain(doc)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
}

// FindByID finds a tenant's document with its lines and taxes
func (r *GormDocumentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*hub.Document, error) {
	var m models.DocumentModel
	err := r.preload(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// ExistsByExternalID reports whether a document was already imported
func (r *GormDocumentRepository) ExistsByExternalID(ctx context.Context, tenantID uuid.UUID, externalSystemID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND external_system_id = ?", tenantID, externalSystemID).
		Count(&count).Error
	return count > 0, err
}

// FindForExport returns completed documents selected by the query
func (r *GormDocumentRepository) FindForExport(ctx context.Context, q hub.ExportQuery) ([]*hub.Document, error) {
	query := r.preload(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND processing_status = ?", q.TenantID, hub.DocumentCompleted).
		Order("created_at ASC")
	var rows []models.DocumentModel
	if err := applyExportQuery(query, q, documentFilterColumns).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*hub.Document, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// MarkExported stamps export bookkeeping on a document
func (r *GormDocumentRepository) MarkExported(ctx context.Context, id uuid.UUID, mark hub.ExportMark) error {
	return r.db.WithContext(ctx).Model(&models.DocumentModel{}).
		Where("id = ?", id).
		Updates(exportMarkUpdates(mark)).Error
}

func (r *GormDocumentRepository) preload(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("number ASC") }).
		Preload("Taxes")
}

// GormMasterParameterRepository implements hub.MasterParameterRepository using GORM
type GormMasterParameterRepository struct {
	db *gorm.DB
}

var _ hub.MasterParameterRepository = (*GormMasterParameterRepository)(nil)

// NewGormMasterParameterRepository creates a new GormMasterParameterRepository
func NewGormMasterParameterRepository(db *gorm.DB) *GormMasterParameterRepository {
	return &GormMasterParameterRepository{db: db}
}

// Create inserts a master parameter. A duplicate code surfaces as
// shared.ErrAlreadyExists.
func (r *GormMasterParameterRepository) Create(ctx context.Context, p *hub.MasterParameter) error {
	m := &models.MasterParameterModel{}
	m.FromDomain(p)
	err := r.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}

// ExistsByCode reports whether a code is taken for a kind
func (r *GormMasterParameterRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, kind hub.MasterKind, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MasterParameterModel{}).
		Where("tenant_id = ? AND kind = ? AND code = ?", tenantID, kind, code).
		Count(&count).Error
	return count > 0, err
}

// FindForExport returns master parameters of a kind selected by the query
func (r *GormMasterParameterRepository) FindForExport(ctx context.Context, kind hub.MasterKind, q hub.ExportQuery) ([]*hub.MasterParameter, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND kind = ?", q.TenantID, kind).
		Order("code ASC")
	var rows []models.MasterParameterModel
	if err := applyExportQuery(query, q, masterFilterColumns).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*hub.MasterParameter, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// MarkExported stamps export bookkeeping on a master parameter
func (r *GormMasterParameterRepository) MarkExported(ctx context.Context, id uuid.UUID, mark hub.ExportMark) error {
	return r.db.WithContext(ctx).Model(&models.MasterParameterModel{}).
		Where("id = ?", id).
		Updates(exportMarkUpdates(mark)).Error
}
