package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/hub"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/persistencetest"
)

func newDocument(tenantID uuid.UUID, externalID, status string) *hub.Document {
	return &hub.Document{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ExternalSystemID: externalID,
		ProcessingStatus: status,
		DocumentType:     "33",
		Number:           externalID,
		SupplierTaxID:    "76.123.456-7",
		Total:            decimal.NewNullDecimal(decimal.RequireFromString("1190")),
		Lines: []hub.DocumentLine{
			{Number: 2, Description: "second", Quantity: decimal.NewNullDecimal(decimal.NewFromInt(1))},
			{Number: 1, Description: "first", Quantity: decimal.NewNullDecimal(decimal.NewFromInt(3))},
		},
		Taxes: []hub.DocumentTax{
			{TaxType: "IVA", Rate: decimal.NewNullDecimal(decimal.NewFromInt(19)), Amount: decimal.NewNullDecimal(decimal.NewFromInt(190))},
		},
	}
}

func TestGormDocumentRepository(t *testing.T) {
	repo := NewGormDocumentRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()
	tenantID := uuid.New()

	completed := newDocument(tenantID, "F-1", hub.DocumentCompleted)
	processed := newDocument(tenantID, "F-2", hub.DocumentProcessed)
	require.NoError(t, repo.Create(ctx, completed))
	require.NoError(t, repo.Create(ctx, processed))

	t.Run("loads lines in order with taxes", func(t *testing.T) {
		got, err := repo.FindByID(ctx, tenantID, completed.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 2)
		assert.Equal(t, "first", got.Lines[0].Description)
		require.Len(t, got.Taxes, 1)
		assert.True(t, got.Total.Decimal.Equal(decimal.NewFromInt(1190)))

		_, err = repo.FindByID(ctx, uuid.New(), completed.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("exists by external id", func(t *testing.T) {
		ok, err := repo.ExistsByExternalID(ctx, tenantID, "F-2")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.ExistsByExternalID(ctx, tenantID, "F-9")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("export selects completed and not yet exported", func(t *testing.T) {
		docs, err := repo.FindForExport(ctx, hub.ExportQuery{TenantID: tenantID})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, completed.ID, docs[0].ID)

		configID := uuid.New()
		require.NoError(t, repo.MarkExported(ctx, completed.ID, hub.ExportMark{ExportConfigID: &configID, ExternalID: "ERP-77"}))

		docs, err = repo.FindForExport(ctx, hub.ExportQuery{TenantID: tenantID})
		require.NoError(t, err)
		assert.Empty(t, docs)

		docs, err = repo.FindForExport(ctx, hub.ExportQuery{TenantID: tenantID, ForceAll: true})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "ERP-77", docs[0].ExternalID)
		assert.NotNil(t, docs[0].LastExportedAt)
	})

	t.Run("explicit ids bypass the export mark", func(t *testing.T) {
		docs, err := repo.FindForExport(ctx, hub.ExportQuery{TenantID: tenantID, IDs: []uuid.UUID{completed.ID}})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("unknown filters are ignored", func(t *testing.T) {
		docs, err := repo.FindForExport(ctx, hub.ExportQuery{
			TenantID: tenantID,
			ForceAll: true,
			Filters:  map[string]any{"tipoDocumento": "33", "DROP TABLE": "x"},
		})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})
}

func TestGormMasterParameterRepository(t *testing.T) {
	repo := NewGormMasterParameterRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()
	tenantID := uuid.New()

	p := &hub.MasterParameter{
		ID:       uuid.New(),
		TenantID: tenantID,
		Kind:     hub.MasterSupplier,
		Code:     "76123456-7",
		Name:     "Proveedor Uno",
		Active:   true,
	}
	require.NoError(t, repo.Create(ctx, p))

	dup := *p
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(ctx, &dup), shared.ErrAlreadyExists)

	ok, err := repo.ExistsByCode(ctx, tenantID, hub.MasterSupplier, p.Code)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ExistsByCode(ctx, tenantID, hub.MasterProduct, p.Code)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := repo.FindForExport(ctx, hub.MasterSupplier, hub.ExportQuery{TenantID: tenantID})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	at := time.Now().Add(-time.Minute)
	require.NoError(t, repo.MarkExported(ctx, p.ID, hub.ExportMark{LastExportedAt: &at}))
	rows, err = repo.FindForExport(ctx, hub.MasterSupplier, hub.ExportQuery{TenantID: tenantID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
