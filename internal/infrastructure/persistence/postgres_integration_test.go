//go:build integration

package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/hub"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/persistencetest"
)

// These tests run against PostgreSQL with the production migrations:
//
//	go test -tags integration ./internal/infrastructure/persistence/...

func TestPostgres_SyncRecordClaimIsExclusive(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	rec := newRecord(t, uuid.New(), "OC-1")
	require.NoError(t, repo.Create(ctx, rec))

	const workers = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Claim(ctx, rec.ID, 0)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, erpsync.ErrAlreadyClaimed)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, erpsync.StatusProcessing, got.Status)
}

func TestPostgres_SyncRecordKeyIsUnique(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, repo.Create(ctx, newRecord(t, tenantID, "OC-1")))
	err := repo.Create(ctx, newRecord(t, tenantID, "OC-1"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	require.NoError(t, repo.Create(ctx, newRecord(t, uuid.New(), "OC-1")), "keys are per tenant")
}

func TestPostgres_SyncRecordStatusConstraint(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	rec := newRecord(t, uuid.New(), "OC-1")
	rec.Status = erpsync.Status("LOST")
	assert.Error(t, repo.Create(ctx, rec))
}

func TestPostgres_SyncRecordQueueQueries(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	var ids []uuid.UUID
	for _, entityID := range []string{"OC-1", "OC-2", "OC-3"} {
		rec := newRecord(t, tenantID, entityID)
		require.NoError(t, repo.Create(ctx, rec))
		ids = append(ids, rec.ID)
	}

	failed, err := repo.FindByID(ctx, ids[0])
	require.NoError(t, err)
	exhaust(t, failed)
	require.NoError(t, repo.Save(ctx, failed))

	pending, err := repo.FindPending(ctx, erpsync.RecordFilter{TenantID: tenantID}, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	counts, err := repo.CountGrouped(ctx, tenantID)
	require.NoError(t, err)
	byStatus := map[erpsync.Status]int64{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	assert.Equal(t, int64(2), byStatus[erpsync.StatusPending])
	assert.Equal(t, int64(1), byStatus[erpsync.StatusFailed])

	reset, err := repo.ResetFailed(ctx, tenantID, erpsync.EntityPurchaseOrder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	history, total, err := repo.FindHistory(ctx, erpsync.RecordFilter{TenantID: tenantID}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, history, 2)
}

func TestPostgres_ConnectorAndHubRoundTrip(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()

	configs := NewGormConnectorConfigRepository(db)
	cfg := &connector.Config{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Name:              "ERP Cloud",
		BaseURL:           "https://erp.example.com/api",
		Direction:         connector.DirectionBidirectional,
		AuthType:          connector.AuthNone,
		RequestsPerMinute: 60,
		Timeout:           30 * time.Second,
		Active:            true,
		PullResources: []connector.PullResource{
			{ID: "suppliers", Name: "Suppliers", Endpoint: "/suppliers", Kind: connector.KindSupplier},
		},
	}
	require.NoError(t, configs.Save(ctx, cfg))
	require.NoError(t, configs.RecordSync(ctx, cfg.ID, connector.DirectionPull, connector.RunSuccess, time.Now()))

	got, err := configs.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, got.PullResources, 1)
	assert.Equal(t, "/suppliers", got.PullResources[0].Endpoint)
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.Equal(t, connector.RunSuccess, got.LastPullStatus)

	docs := NewGormDocumentRepository(db)
	now := time.Now()
	doc := &hub.Document{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ProcessingStatus: hub.DocumentCompleted,
		DocumentType:     "FACTURA_A",
		Number:           "0001-00000001",
		Total:            decimal.NewNullDecimal(decimal.RequireFromString("1210.5")),
		Lines: []hub.DocumentLine{
			{Number: 1, Description: "Servicio", LineTotal: decimal.NewNullDecimal(decimal.RequireFromString("1000"))},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, docs.MarkExported(ctx, doc.ID, hub.ExportMark{LastExportedAt: &now, ExportConfigID: &cfg.ID, ExternalID: "7"}))

	stored, err := docs.FindByID(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Decimal.Equal(decimal.RequireFromString("1210.5")))
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "7", stored.ExternalID)
}
