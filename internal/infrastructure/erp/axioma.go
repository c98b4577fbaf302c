package erp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/synchub/backend/internal/domain/erpsync"
	"go.uber.org/zap"
)

const (
	axiomaInsertOrder = `INSERT INTO dbo.OrdenesCom (NumeroOC, FechaOC, ProveedorCUIT, ProveedorNombre, Total, Estado, FechaImportacion) ` +
		`OUTPUT INSERTED.ID VALUES (@numero, @fecha, @proveedorCuit, @proveedorNombre, @total, 'PENDIENTE', GETDATE())`
	axiomaInsertItem = `INSERT INTO dbo.OrdenesComItems (OrdenComID, NumeroItem, Descripcion, CodigoProducto, Cantidad, PrecioUnitario, Subtotal) ` +
		`VALUES (@ordenComId, @numero, @descripcion, @codigoProducto, @cantidad, @precioUnitario, @subtotal)`
)

// AxiomaPurchaseOrderHandler writes purchase orders into Axioma's
// OrdenesCom table and their items into OrdenesComItems.
type AxiomaPurchaseOrderHandler struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewAxiomaPurchaseOrderHandler creates the handler
func NewAxiomaPurchaseOrderHandler(timeout time.Duration, logger *zap.Logger) *AxiomaPurchaseOrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AxiomaPurchaseOrderHandler{timeout: timeout, logger: logger}
}

// Handle inserts the order header and then each item. Item failures are
// logged and skipped.
func (h *AxiomaPurchaseOrderHandler) Handle(ctx context.Context, db *sql.DB, record *erpsync.Record, _ *erpsync.EntityConfig) (string, error) {
	payload := map[string]any(record.Payload)
	supplier, _ := payload["proveedor"].(map[string]any)

	fecha, err := parseDate(payload["fecha"])
	if err != nil {
		return "", fmt.Errorf("purchase order %s: %w", record.EntityID, err)
	}

	qctx, cancel := withStatementTimeout(ctx, h.timeout)
	defer cancel()

	var orderID int64
	err = db.QueryRowContext(qctx, axiomaInsertOrder,
		sql.Named("numero", stringValue(payload["numero"])),
		sql.Named("fecha", fecha),
		sql.Named("proveedorCuit", stringValue(supplier["cuit"])),
		sql.Named("proveedorNombre", stringValue(supplier["razonSocial"])),
		sql.Named("total", decimalValue(payload["total"]).String()),
	).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert purchase order %s: no id returned", record.EntityID)
	}
	if err != nil {
		return "", fmt.Errorf("insert purchase order %s: %w", record.EntityID, err)
	}

	items, _ := payload["items"].([]any)
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		number := i + 1
		if n, ok := item["numero"]; ok && n != nil {
			if parsed, err := strconv.Atoi(stringValue(n)); err == nil {
				number = parsed
			}
		}
		ictx, icancel := withStatementTimeout(ctx, h.timeout)
		_, err := db.ExecContext(ictx, axiomaInsertItem,
			sql.Named("ordenComId", orderID),
			sql.Named("numero", int64(number)),
			sql.Named("descripcion", stringValue(item["descripcion"])),
			sql.Named("codigoProducto", stringValue(item["codigoProducto"])),
			sql.Named("cantidad", decimalValue(item["cantidad"]).String()),
			sql.Named("precioUnitario", decimalValue(item["precioUnitario"]).String()),
			sql.Named("subtotal", decimalValue(item["subtotal"]).String()),
		)
		icancel()
		if err != nil {
			h.logger.Warn("purchase order item insert failed",
				zap.String("entity_id", record.EntityID),
				zap.Int("item", number),
				zap.Error(err))
		}
	}

	return strconv.FormatInt(orderID, 10), nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006"}

func parseDate(v any) (any, error) {
	s := stringValue(v)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", s)
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func decimalValue(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case string:
		if d, err := decimal.NewFromString(t); err == nil {
			return d
		}
	}
	return decimal.Zero
}
