package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/synchub/backend/internal/domain/hub"
)

// ExportMarkColumns is the export bookkeeping shared by exportable rows
type ExportMarkColumns struct {
	LastExportedAt *time.Time
	ExportConfigID *uuid.UUID `gorm:"type:uuid"`
	ExternalID     string     `gorm:"type:varchar(255)"`
}

func (c ExportMarkColumns) toDomain() hub.ExportMark {
	return hub.ExportMark{
		LastExportedAt: c.LastExportedAt,
		ExportConfigID: c.ExportConfigID,
		ExternalID:     c.ExternalID,
	}
}

func exportMarkColumns(m hub.ExportMark) ExportMarkColumns {
	return ExportMarkColumns{
		LastExportedAt: m.LastExportedAt,
		ExportConfigID: m.ExportConfigID,
		ExternalID:     m.ExternalID,
	}
}

// DocumentModel is the persistence model of a processed document
type DocumentModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null;index:idx_documents_tenant_status,priority:1;index:idx_documents_external,priority:1"`
	ExternalSystemID string    `gorm:"type:varchar(255);index:idx_documents_external,priority:2"`
	FileName         string    `gorm:"type:varchar(500)"`
	FilePath         string    `gorm:"type:varchar(1024)"`
	ProcessingStatus string    `gorm:"type:varchar(30);not null;index:idx_documents_tenant_status,priority:2"`
	DocumentType     string    `gorm:"type:varchar(50)"`
	Number           string    `gorm:"type:varchar(100)"`
	IssueDate        *time.Time
	SupplierTaxID    string              `gorm:"type:varchar(50)"`
	SupplierName     string              `gorm:"type:varchar(255)"`
	Total            decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	ExportMarkColumns
	Lines     []DocumentLineModel `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	Taxes     []DocumentTaxModel  `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time           `gorm:"not null"`
	UpdatedAt time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

// DocumentLineModel is the persistence model of a document line
type DocumentLineModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	DocumentID    uuid.UUID           `gorm:"type:uuid;not null;index"`
	Number        int                 `gorm:"not null"`
	Description   string              `gorm:"type:text"`
	Quantity      decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	UnitPrice     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Subtotal      decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	LineTotal     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	LedgerAccount string              `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (DocumentLineModel) TableName() string {
	return "document_lines"
}

// DocumentTaxModel is the persistence model of a document tax
type DocumentTaxModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	DocumentID    uuid.UUID           `gorm:"type:uuid;not null;index"`
	TaxType       string              `gorm:"type:varchar(50)"`
	TaxableBase   decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Rate          decimal.NullDecimal `gorm:"type:decimal(9,4)"`
	Amount        decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	LedgerAccount string              `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (DocumentTaxModel) TableName() string {
	return "document_taxes"
}

// ToDomain converts the model and its loaded children to a domain document
func (m *DocumentModel) ToDomain() *hub.Document {
	d := &hub.Document{
		ID:               m.ID,
		TenantID:         m.TenantID,
		ExternalSystemID: m.ExternalSystemID,
		FileName:         m.FileName,
		FilePath:         m.FilePath,
		ProcessingStatus: m.ProcessingStatus,
		DocumentType:     m.DocumentType,
		Number:           m.Number,
		IssueDate:        m.IssueDate,
		SupplierTaxID:    m.SupplierTaxID,
		SupplierName:     m.SupplierName,
		Total:            m.Total,
		ExportMark:       m.ExportMarkColumns.toDomain(),
		Lines:            make([]hub.DocumentLine, 0, len(m.Lines)),
		Taxes:            make([]hub.DocumentTax, 0, len(m.Taxes)),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	for _, l := range m.Lines {
		d.Lines = append(d.Lines, hub.DocumentLine{
			ID:            l.ID,
			DocumentID:    l.DocumentID,
			Number:        l.Number,
			Description:   l.Description,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			Subtotal:      l.Subtotal,
			LineTotal:     l.LineTotal,
			LedgerAccount: l.LedgerAccount,
		})
	}
	for _, t := range m.Taxes {
		d.Taxes = append(d.Taxes, hub.DocumentTax{
			ID:            t.ID,
			DocumentID:    t.DocumentID,
			TaxType:       t.TaxType,
			TaxableBase:   t.TaxableBase,
			Rate:          t.Rate,
			Amount:        t.Amount,
			LedgerAccount: t.LedgerAccount,
		})
	}
	return d
}

// FromDomain populates the model and its children from a domain document.
// Children without an id get one.
func (m *DocumentModel) FromDomain(d *hub.Document) {
	m.ID = d.ID
	m.TenantID = d.TenantID
	m.ExternalSystemID = d.ExternalSystemID
	m.FileName = d.FileName
	m.FilePath = d.FilePath
	m.ProcessingStatus = d.ProcessingStatus
	m.DocumentType = d.DocumentType
	m.Number = d.Number
	m.IssueDate = d.IssueDate
	m.SupplierTaxID = d.SupplierTaxID
	m.SupplierName = d.SupplierName
	m.Total = d.Total
	m.ExportMarkColumns = exportMarkColumns(d.ExportMark)
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt

	m.Lines = make([]DocumentLineModel, 0, len(d.Lines))
	for _, l := range d.Lines {
		id := l.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		m.Lines = append(m.Lines, DocumentLineModel{
			ID:            id,
			DocumentID:    d.ID,
			Number:        l.Number,
			Description:   l.Description,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			Subtotal:      l.Subtotal,
			LineTotal:     l.LineTotal,
			LedgerAccount: l.LedgerAccount,
		})
	}
	m.Taxes = make([]DocumentTaxModel, 0, len(d.Taxes))
	for _, t := range d.Taxes {
		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		m.Taxes = append(m.Taxes, DocumentTaxModel{
			ID:            id,
			DocumentID:    d.ID,
			TaxType:       t.TaxType,
			TaxableBase:   t.TaxableBase,
			Rate:          t.Rate,
			Amount:        t.Amount,
			LedgerAccount: t.LedgerAccount,
		})
	}
}

// MasterParameterModel is the persistence model of a master parameter
type MasterParameterModel struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uq_master_parameters_code,priority:1"`
	Kind        hub.MasterKind `gorm:"type:varchar(40);not null;uniqueIndex:uq_master_parameters_code,priority:2"`
	Code        string         `gorm:"type:varchar(100);not null;uniqueIndex:uq_master_parameters_code,priority:3"`
	Name        string         `gorm:"type:varchar(255);not null"`
	Description string         `gorm:"type:text"`
	Active      bool           `gorm:"not null"`
	ExportMarkColumns
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MasterParameterModel) TableName() string {
	return "master_parameters"
}

// ToDomain converts the model to a domain master parameter
func (m *MasterParameterModel) ToDomain() *hub.MasterParameter {
	return &hub.MasterParameter{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Kind:        m.Kind,
		Code:        m.Code,
		Name:        m.Name,
		Description: m.Description,
		Active:      m.Active,
		ExportMark:  m.ExportMarkColumns.toDomain(),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain master parameter
func (m *MasterParameterModel) FromDomain(p *hub.MasterParameter) {
	m.ID = p.ID
	m.TenantID = p.TenantID
	m.Kind = p.Kind
	m.Code = p.Code
	m.Name = p.Name
	m.Description = p.Description
	m.Active = p.Active
	m.ExportMarkColumns = exportMarkColumns(p.ExportMark)
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}
