// Package hub models the slice of the Hub datastore that integrations read
// from and write to.
package hub

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Processing states of a document
const (
	DocumentProcessed = "procesado"
	DocumentCompleted = "completado"
)

// ExportMark is the bookkeeping stamped on an exported row
type ExportMark struct {
	LastExportedAt *time.Time
	ExportConfigID *uuid.UUID
	ExternalID     string
}

// Document is a processed fiscal document
type Document struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ExternalSystemID string
	FileName         string
	FilePath         string
	ProcessingStatus string
	DocumentType     string
	Number           string
	IssueDate        *time.Time
	SupplierTaxID    string
	SupplierName     string
	Total            decimal.NullDecimal
	Lines            []DocumentLine
	Taxes            []DocumentTax
	ExportMark
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentLine is one line item
type DocumentLine struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	Number        int
	Description   string
	Quantity      decimal.NullDecimal
	UnitPrice     decimal.NullDecimal
	Subtotal      decimal.NullDecimal
	LineTotal     decimal.NullDecimal
	LedgerAccount string
}

// DocumentTax is one tax entry
type DocumentTax struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	TaxType       string
	TaxableBase   decimal.NullDecimal
	Rate          decimal.NullDecimal
	Amount        decimal.NullDecimal
	LedgerAccount string
}

// MasterKind classifies master parameters
type MasterKind string

const (
	MasterSupplier      MasterKind = "proveedor"
	MasterProduct       MasterKind = "producto"
	MasterLedgerAccount MasterKind = "cuenta_contable"
	MasterCostCenter    MasterKind = "centro_costo"
)

// MasterParameter is a coded reference value, unique per (tenant, kind, code)
type MasterParameter struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Kind        MasterKind
	Code        string
	Name        string
	Description string
	Active      bool
	ExportMark
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExportQuery selects rows for a push
type ExportQuery struct {
	TenantID uuid.UUID
	IDs      []uuid.UUID
	ForceAll bool
	Limit    int
	Filters  map[string]any
}

// DocumentRepository persists documents with their lines and taxes
type DocumentRepository interface {
	// Create inserts the document together with its lines and taxes
	Create(ctx context.Context, doc *Document) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)
	ExistsByExternalID(ctx context.Context, tenantID uuid.UUID, externalSystemID string) (bool, error)
	// FindForExport returns completed documents matching the query
	FindForExport(ctx context.Context, q ExportQuery) ([]*Document, error)
	MarkExported(ctx context.Context, id uuid.UUID, mark ExportMark) error
}

// MasterParameterRepository persists master parameters
type MasterParameterRepository interface {
	Create(ctx context.Context, p *MasterParameter) error
	ExistsByCode(ctx context.Context, tenantID uuid.UUID, kind MasterKind, code string) (bool, error)
	FindForExport(ctx context.Context, kind MasterKind, q ExportQuery) ([]*MasterParameter, error)
	MarkExported(ctx context.Context, id uuid.UUID, mark ExportMark) error
}
