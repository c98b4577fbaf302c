package erp

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newPurchaseOrder(t *testing.T, erpType string, payload erpsync.Payload) *erpsync.Record {
	t.Helper()
	rec, err := erpsync.NewRecord(erpsync.Key{
		TenantID:   uuid.New(),
		EntityType: erpsync.EntityPurchaseOrder,
		EntityID:   "OC-1",
		ERPType:    erpType,
	}, payload, "", "", "")
	require.NoError(t, err)
	return rec
}

func TestHandlerRegistry_Resolve(t *testing.T) {
	registry := DefaultRegistry(time.Second, nil)

	t.Run("configured statement wins", func(t *testing.T) {
		rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{})
		cfg := erpsync.NewEntityConfig(rec.TenantID, rec.EntityType, rec.ERPType)
		cfg.InsertStatement = "INSERT INTO X VALUES (@a)"

		h, err := registry.Resolve(rec, cfg)
		require.NoError(t, err)
		assert.IsType(t, &ConfiguredHandler{}, h)
	})

	t.Run("built-in axioma purchase order", func(t *testing.T) {
		rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{})
		h, err := registry.Resolve(rec, nil)
		require.NoError(t, err)
		assert.IsType(t, &AxiomaPurchaseOrderHandler{}, h)
	})

	t.Run("softland is registered but not implemented", func(t *testing.T) {
		rec := newPurchaseOrder(t, erpsync.ERPSoftland, erpsync.Payload{})
		h, err := registry.Resolve(rec, nil)
		require.NoError(t, err)
		_, err = h.Handle(context.Background(), nil, rec, nil)
		assert.True(t, errors.Is(err, ErrNotImplemented))
	})

	t.Run("unknown pair", func(t *testing.T) {
		rec := newPurchaseOrder(t, "SAP", erpsync.Payload{})
		_, err := registry.Resolve(rec, nil)
		assert.True(t, errors.Is(err, ErrNoHandler))
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Contains(t, de.Message, "SAP")
	})
}

func TestAxiomaPurchaseOrderHandler(t *testing.T) {
	db, mock := newMockDB(t)
	rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{
		"numero": "OC-1",
		"fecha":  "2024-03-15",
		"total":  1500.5,
		"proveedor": map[string]any{
			"cuit":        "30-12345678-9",
			"razonSocial": "ACME SA",
		},
		"items": []any{
			map[string]any{"descripcion": "Tornillos", "codigoProducto": "T-1", "cantidad": 10.0, "precioUnitario": 100.0, "subtotal": 1000.0},
			map[string]any{"numero": 7.0, "descripcion": "Tuercas", "cantidad": 5.0, "precioUnitario": 100.1, "subtotal": 500.5},
		},
	})

	mock.ExpectQuery(axiomaInsertOrder).
		WithArgs(
			sql.Named("numero", "OC-1"),
			sqlmock.AnyArg(),
			sql.Named("proveedorCuit", "30-12345678-9"),
			sql.Named("proveedorNombre", "ACME SA"),
			sql.Named("total", "1500.5"),
		).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}).AddRow(int64(42)))
	mock.ExpectExec(axiomaInsertItem).
		WithArgs(
			sql.Named("ordenComId", int64(42)),
			sql.Named("numero", int64(1)),
			sql.Named("descripcion", "Tornillos"),
			sql.Named("codigoProducto", "T-1"),
			sql.Named("cantidad", "10"),
			sql.Named("precioUnitario", "100"),
			sql.Named("subtotal", "1000"),
		).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectExec(axiomaInsertItem).
		WithArgs(
			sql.Named("ordenComId", int64(42)),
			sql.Named("numero", int64(7)),
			sql.Named("descripcion", "Tuercas"),
			sql.Named("codigoProducto", ""),
			sql.Named("cantidad", "5"),
			sql.Named("precioUnitario", "100.1"),
			sql.Named("subtotal", "500.5"),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := NewAxiomaPurchaseOrderHandler(time.Second, nil).Handle(context.Background(), db, rec, nil)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAxiomaPurchaseOrderHandler_HeaderFailure(t *testing.T) {
	db, mock := newMockDB(t)
	rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{"numero": "OC-2"})

	mock.ExpectQuery(axiomaInsertOrder).WillReturnError(errors.New("login failed"))

	_, err := NewAxiomaPurchaseOrderHandler(time.Second, nil).Handle(context.Background(), db, rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAxiomaPurchaseOrderHandler_NoIDReturned(t *testing.T) {
	db, mock := newMockDB(t)
	rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{"numero": "OC-3"})

	mock.ExpectQuery(axiomaInsertOrder).WillReturnRows(sqlmock.NewRows([]string{"ID"}))

	id, err := NewAxiomaPurchaseOrderHandler(time.Second, nil).Handle(context.Background(), db, rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id returned")
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAxiomaPurchaseOrderHandler_BadDate(t *testing.T) {
	db, _ := newMockDB(t)
	rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{"fecha": "yesterday"})

	_, err := NewAxiomaPurchaseOrderHandler(time.Second, nil).Handle(context.Background(), db, rec, nil)
	assert.Error(t, err)
}

func TestConfiguredHandler(t *testing.T) {
	const insert = "INSERT INTO dbo.Proveedores (Codigo, Nombre) OUTPUT INSERTED.ID VALUES (@codigo, @nombre)"
	const update = "UPDATE dbo.Proveedores SET Nombre = @nombre WHERE ID = @externalId"

	rec := newPurchaseOrder(t, erpsync.ERPAxioma, erpsync.Payload{
		"codigo":    "P-1",
		"proveedor": map[string]any{"nombre": "ACME"},
	})
	cfg := erpsync.NewEntityConfig(rec.TenantID, rec.EntityType, rec.ERPType)
	cfg.InsertStatement = insert
	cfg.UpdateStatement = update
	cfg.FieldMapping = map[string]string{"codigo": "@codigo", "proveedor.nombre": "nombre"}

	t.Run("insert returns the generated id", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(insert).
			WithArgs(sql.Named("codigo", "P-1"), sql.Named("nombre", "ACME")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("X-9"))

		id, err := NewConfiguredHandler(time.Second, nil).Handle(context.Background(), db, rec, cfg)
		require.NoError(t, err)
		assert.Equal(t, "X-9", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("known external id uses the update statement", func(t *testing.T) {
		db, mock := newMockDB(t)
		updated := *rec
		updated.ExternalID = "X-9"
		mock.ExpectQuery(update).
			WithArgs(sql.Named("codigo", "P-1"), sql.Named("nombre", "ACME"), sql.Named("externalId", "X-9")).
			WillReturnRows(sqlmock.NewRows([]string{}))

		id, err := NewConfiguredHandler(time.Second, nil).Handle(context.Background(), db, &updated, cfg)
		require.NoError(t, err)
		assert.Empty(t, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("statement error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(insert).WillReturnError(errors.New("invalid object name"))

		_, err := NewConfiguredHandler(time.Second, nil).Handle(context.Background(), db, rec, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid object name")
	})
}

func TestBindParameters(t *testing.T) {
	args := BindParameters(erpsync.Payload{
		"a":     1.5,
		"items": []any{map[string]any{"x": 1.0}},
	}, map[string]string{"a": "@b", "items": "a", "missing": "c"})

	require.Len(t, args, 3)
	assert.Equal(t, sql.Named("a", `[{"x":1}]`), args[0])
	assert.Equal(t, sql.Named("b", 1.5), args[1])
	assert.Equal(t, sql.Named("c", nil), args[2])
}
