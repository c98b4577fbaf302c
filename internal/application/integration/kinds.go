package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/hub"
	"github.com/synchub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrUnsupportedKind is returned for a resource kind with no registered handler
var ErrUnsupportedKind = shared.NewDomainError("UNSUPPORTED_KIND", "resource kind is not supported")

// ImportOutcome tells whether an import wrote anything
type ImportOutcome string

const (
	ImportCreated ImportOutcome = "CREATED"
	ImportSkipped ImportOutcome = "SKIPPED"
)

// ImportScope identifies who an import is performed for
type ImportScope struct {
	TenantID    uuid.UUID
	ConnectorID uuid.UUID
}

// Importer writes one mapped record of its kind into the Hub
type Importer interface {
	Import(ctx context.Context, scope ImportScope, data map[string]any) (ImportOutcome, error)
}

// ExportRecord is a Hub row flattened for field mapping
type ExportRecord struct {
	ID   uuid.UUID
	Data map[string]any
}

// Exporter reads Hub rows of its kind and stamps them once exported
type Exporter interface {
	FindForExport(ctx context.Context, q hub.ExportQuery) ([]ExportRecord, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (ExportRecord, error)
	MarkExported(ctx context.Context, id uuid.UUID, mark hub.ExportMark) error
}

// KindRegistry maps resource kinds to their import and export handlers
type KindRegistry struct {
	importers map[connector.Kind]Importer
	exporters map[connector.Kind]Exporter
}

// NewKindRegistry creates an empty registry
func NewKindRegistry() *KindRegistry {
	return &KindRegistry{
		importers: make(map[connector.Kind]Importer),
		exporters: make(map[connector.Kind]Exporter),
	}
}

// RegisterImporter sets the importer of kind
func (r *KindRegistry) RegisterImporter(kind connector.Kind, imp Importer) {
	r.importers[kind] = imp
}

// RegisterExporter sets the exporter of kind
func (r *KindRegistry) RegisterExporter(kind connector.Kind, exp Exporter) {
	r.exporters[kind] = exp
}

// Importer returns the importer of kind
func (r *KindRegistry) Importer(kind connector.Kind) (Importer, error) {
	imp, ok := r.importers[kind]
	if !ok {
		return nil, unsupported(kind)
	}
	return imp, nil
}

// Exporter returns the exporter of kind
func (r *KindRegistry) Exporter(kind connector.Kind) (Exporter, error) {
	exp, ok := r.exporters[kind]
	if !ok {
		return nil, unsupported(kind)
	}
	return exp, nil
}

func unsupported(kind connector.Kind) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

var masterKinds = map[connector.Kind]hub.MasterKind{
	connector.KindSupplier:      hub.MasterSupplier,
	connector.KindProduct:       hub.MasterProduct,
	connector.KindLedgerAccount: hub.MasterLedgerAccount,
	connector.KindCostCenter:    hub.MasterCostCenter,
}

// DefaultKindRegistry wires documents and the four master parameter kinds.
// attachments may be nil, in which case archivoUrl is stored as the file path.
func DefaultKindRegistry(docs hub.DocumentRepository, masters hub.MasterParameterRepository, attachments *AttachmentFetcher, logger *zap.Logger) *KindRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := NewKindRegistry()
	documents := &documentHandler{docs: docs, attachments: attachments, logger: logger}
	r.RegisterImporter(connector.KindDocument, documents)
	r.RegisterExporter(connector.KindDocument, documents)
	for kind, masterKind := range masterKinds {
		h := &masterHandler{kind: masterKind, masters: masters, logger: logger}
		r.RegisterImporter(kind, h)
		r.RegisterExporter(kind, h)
	}
	return r
}

type documentHandler struct {
	docs        hub.DocumentRepository
	attachments *AttachmentFetcher
	logger      *zap.Logger
}

func (h *documentHandler) Import(ctx context.Context, scope ImportScope, data map[string]any) (ImportOutcome, error) {
	externalID := stringField(data, "externalSystemId")
	if externalID != "" {
		exists, err := h.docs.ExistsByExternalID(ctx, scope.TenantID, externalID)
		if err != nil {
			return "", err
		}
		if exists {
			h.logger.Debug("duplicate document skipped", zap.String("external_system_id", externalID))
			return ImportSkipped, nil
		}
	}

	now := time.Now()
	connectorID := scope.ConnectorID
	doc := &hub.Document{
		ID:               uuid.New(),
		TenantID:         scope.TenantID,
		ExternalSystemID: externalID,
		FileName:         fmt.Sprintf("import_%d.pdf", now.UnixMilli()),
		FilePath:         stringField(data, "archivoUrl"),
		ProcessingStatus: stringField(data, "estadoProcesamiento"),
		DocumentType:     stringField(data, "tipoDocumento"),
		Number:           stringField(data, "numeroComprobante"),
		IssueDate:        timeField(data, "fechaEmision"),
		SupplierTaxID:    stringField(data, "cuitProveedor"),
		SupplierName:     stringField(data, "razonSocialProveedor"),
		Total:            decimalField(data, "importeTotal"),
		ExportMark:       hub.ExportMark{ExportConfigID: &connectorID},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = hub.DocumentProcessed
	}

	for i, raw := range sliceField(data, "lineas") {
		line, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		number := i + 1
		if n, ok := intField(line, "numero"); ok {
			number = n
		}
		doc.Lines = append(doc.Lines, hub.DocumentLine{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			Number:        number,
			Description:   stringField(line, "descripcion"),
			Quantity:      decimalField(line, "cantidad"),
			UnitPrice:     decimalField(line, "precioUnitario"),
			Subtotal:      decimalField(line, "subtotal"),
			LineTotal:     decimalField(line, "totalLinea"),
			LedgerAccount: stringField(line, "cuentaContable"),
		})
	}
	for _, raw := range sliceField(data, "impuestos") {
		tax, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		doc.Taxes = append(doc.Taxes, hub.DocumentTax{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			TaxType:       stringField(tax, "tipoImpuesto"),
			TaxableBase:   decimalField(tax, "baseImponible"),
			Rate:          decimalField(tax, "alicuota"),
			Amount:        decimalField(tax, "importe"),
			LedgerAccount: stringField(tax, "cuentaContable"),
		})
	}

	if doc.FilePath != "" && h.attachments != nil {
		stored, err := h.attachments.Fetch(ctx, scope.TenantID, doc.ID, doc.FilePath)
		if err != nil {
			h.logger.Warn("document attachment not fetched, keeping source url",
				zap.String("document_id", doc.ID.String()),
				zap.String("url", doc.FilePath),
				zap.Error(err))
		} else {
			doc.FileName = stored.FileName
			doc.FilePath = stored.Key
		}
	}

	if err := h.docs.Create(ctx, doc); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	h.logger.Info("document imported",
		zap.String("document_id", doc.ID.String()),
		zap.Int("lines", len(doc.Lines)),
		zap.Int("taxes", len(doc.Taxes)))
	return ImportCreated, nil
}

func (h *documentHandler) FindForExport(ctx context.Context, q hub.ExportQuery) ([]ExportRecord, error) {
	docs, err := h.docs.FindForExport(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]ExportRecord, len(docs))
	for i, d := range docs {
		out[i] = h.exportRecord(ctx, d)
	}
	return out, nil
}

func (h *documentHandler) FindByID(ctx context.Context, tenantID, id uuid.UUID) (ExportRecord, error) {
	d, err := h.docs.FindByID(ctx, tenantID, id)
	if err != nil {
		return ExportRecord{}, err
	}
	return h.exportRecord(ctx, d), nil
}

// exportRecord adds archivoUrl, a presigned link, when the document's file
// was copied into the file store
func (h *documentHandler) exportRecord(ctx context.Context, d *hub.Document) ExportRecord {
	data := DocumentRecord(d)
	if h.attachments != nil {
		if link, ok := h.attachments.Link(ctx, d.FilePath); ok {
			data["archivoUrl"] = link
		}
	}
	return ExportRecord{ID: d.ID, Data: data}
}

func (h *documentHandler) MarkExported(ctx context.Context, id uuid.UUID, mark hub.ExportMark) error {
	return h.docs.MarkExported(ctx, id, mark)
}

type masterHandler struct {
	kind    hub.MasterKind
	masters hub.MasterParameterRepository
	logger  *zap.Logger
}

func (h *masterHandler) Import(ctx context.Context, scope ImportScope, data map[string]any) (ImportOutcome, error) {
	code := stringField(data, "codigo")
	if code == "" {
		return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("%s without codigo", h.kind))
	}
	exists, err := h.masters.ExistsByCode(ctx, scope.TenantID, h.kind, code)
	if err != nil {
		return "", err
	}
	if exists {
		h.logger.Debug("duplicate master parameter skipped", zap.String("kind", string(h.kind)), zap.String("code", code))
		return ImportSkipped, nil
	}

	description := stringField(data, "descripcion")
	if description == "" && h.kind == hub.MasterSupplier {
		description = stringField(data, "cuit")
	}
	now := time.Now()
	p := &hub.MasterParameter{
		ID:          uuid.New(),
		TenantID:    scope.TenantID,
		Kind:        h.kind,
		Code:        code,
		Name:        stringField(data, "nombre"),
		Description: description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.masters.Create(ctx, p); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return ImportSkipped, nil
		}
		return "", fmt.Errorf("create %s: %w", h.kind, err)
	}
	return ImportCreated, nil
}

func (h *masterHandler) FindForExport(ctx context.Context, q hub.ExportQuery) ([]ExportRecord, error) {
	params, err := h.masters.FindForExport(ctx, h.kind, q)
	if err != nil {
		return nil, err
	}
	out := make([]ExportRecord, len(params))
	for i, p := range params {
		out[i] = ExportRecord{ID: p.ID, Data: MasterRecord(p)}
	}
	return out, nil
}

func (h *masterHandler) FindByID(ctx context.Context, tenantID, id uuid.UUID) (ExportRecord, error) {
	params, err := h.masters.FindForExport(ctx, h.kind, hub.ExportQuery{TenantID: tenantID, IDs: []uuid.UUID{id}})
	if err != nil {
		return ExportRecord{}, err
	}
	if len(params) == 0 {
		return ExportRecord{}, shared.ErrNotFound
	}
	return ExportRecord{ID: params[0].ID, Data: MasterRecord(params[0])}, nil
}

func (h *masterHandler) MarkExported(ctx context.Context, id uuid.UUID, mark hub.ExportMark) error {
	return h.masters.MarkExported(ctx, id, mark)
}

// DocumentRecord flattens a document into the field names push mappings
// refer to. They match the names accepted on import.
func DocumentRecord(d *hub.Document) map[string]any {
	lines := make([]any, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = map[string]any{
			"numero":         l.Number,
			"descripcion":    l.Description,
			"cantidad":       decimalValue(l.Quantity),
			"precioUnitario": decimalValue(l.UnitPrice),
			"subtotal":       decimalValue(l.Subtotal),
			"totalLinea":     decimalValue(l.LineTotal),
			"cuentaContable": l.LedgerAccount,
		}
	}
	taxes := make([]any, len(d.Taxes))
	for i, t := range d.Taxes {
		taxes[i] = map[string]any{
			"tipoImpuesto":   t.TaxType,
			"baseImponible":  decimalValue(t.TaxableBase),
			"alicuota":       decimalValue(t.Rate),
			"importe":        decimalValue(t.Amount),
			"cuentaContable": t.LedgerAccount,
		}
	}
	var issued any
	if d.IssueDate != nil {
		issued = d.IssueDate.Format("2006-01-02")
	}
	return map[string]any{
		"id":                   d.ID.String(),
		"externalSystemId":     d.ExternalSystemID,
		"nombreArchivo":        d.FileName,
		"estadoProcesamiento":  d.ProcessingStatus,
		"tipoDocumento":        d.DocumentType,
		"numeroComprobante":    d.Number,
		"fechaEmision":         issued,
		"cuitProveedor":        d.SupplierTaxID,
		"razonSocialProveedor": d.SupplierName,
		"importeTotal":         decimalValue(d.Total),
		"proveedor": map[string]any{
			"cuit":        d.SupplierTaxID,
			"razonSocial": d.SupplierName,
		},
		"lineas":    lines,
		"impuestos": taxes,
	}
}

// MasterRecord flattens a master parameter
func MasterRecord(p *hub.MasterParameter) map[string]any {
	return map[string]any{
		"id":          p.ID.String(),
		"tipoCampo":   string(p.Kind),
		"codigo":      p.Code,
		"nombre":      p.Name,
		"descripcion": p.Description,
		"activo":      p.Active,
	}
}

func decimalValue(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func intField(data map[string]any, key string) (int, bool) {
	switch v := data[key].(type) {
	case float64:
		return int(v), v != 0
	case int:
		return v, v != 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil && n != 0
	}
	return 0, false
}

func decimalField(data map[string]any, key string) decimal.NullDecimal {
	switch v := data[key].(type) {
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006"}

func timeField(data map[string]any, key string) *time.Time {
	s := stringField(data, key)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func sliceField(data map[string]any, key string) []any {
	v, _ := data[key].([]any)
	return v
}
