package persistence

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/persistence/persistencetest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newRecord(t *testing.T, tenantID uuid.UUID, entityID string) *erpsync.Record {
	t.Helper()
	r, err := erpsync.NewRecord(erpsync.Key{
		TenantID:   tenantID,
		EntityType: erpsync.EntityPurchaseOrder,
		EntityID:   entityID,
		ERPType:    erpsync.ERPAxioma,
	}, erpsync.Payload{"numero": entityID, "total": 1500.5}, "", "", "user-1")
	require.NoError(t, err)
	return r
}

// exhaust runs a record through MaxAttempts failed deliveries
func exhaust(t *testing.T, rec *erpsync.Record) {
	t.Helper()
	for i := 0; i < erpsync.MaxAttempts; i++ {
		require.NoError(t, rec.MarkProcessing())
		require.NoError(t, rec.Fail("boom"))
	}
}

func TestGormSyncRecordRepository_CreateAndFind(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()
	tenantID := uuid.New()

	rec := newRecord(t, tenantID, "OC-1")
	require.NoError(t, repo.Create(ctx, rec))

	t.Run("by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.PayloadHash, got.PayloadHash)
		assert.Equal(t, "OC-1", got.Payload["numero"])
		assert.Equal(t, erpsync.StatusPending, got.Status)
		assert.Equal(t, erpsync.DirectionOut, got.Direction)
		assert.Equal(t, 1, got.Version)
	})

	t.Run("by key", func(t *testing.T) {
		got, err := repo.FindByKey(ctx, rec.Key())
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate key", func(t *testing.T) {
		dup := newRecord(t, tenantID, "OC-1")
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)
	})
}

func TestGormSyncRecordRepository_FindPending(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()
	tenantID := uuid.New()

	older := newRecord(t, tenantID, "OC-1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newRecord(t, tenantID, "OC-2")
	failed := newRecord(t, tenantID, "OC-3")
	exhaust(t, failed)
	other := newRecord(t, uuid.New(), "OC-4")
	for _, r := range []*erpsync.Record{newer, older, failed, other} {
		require.NoError(t, repo.Create(ctx, r))
	}

	pending, err := repo.FindPending(ctx, erpsync.RecordFilter{TenantID: tenantID}, 100)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)

	limited, err := repo.FindPending(ctx, erpsync.RecordFilter{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGormSyncRecordRepository_Claim(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()

	rec := newRecord(t, uuid.New(), "OC-1")
	require.NoError(t, repo.Create(ctx, rec))

	claimed, err := repo.Claim(ctx, rec.ID, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, erpsync.StatusProcessing, claimed.Status)
	assert.Equal(t, rec.Payload["numero"], claimed.Payload["numero"])

	_, err = repo.Claim(ctx, rec.ID, 0)
	assert.ErrorIs(t, err, erpsync.ErrAlreadyClaimed, "a processing record cannot be claimed twice")

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, erpsync.StatusProcessing, got.Status)

	t.Run("stale version", func(t *testing.T) {
		other := newRecord(t, uuid.New(), "OC-2")
		require.NoError(t, repo.Create(ctx, other))

		_, err := repo.Claim(ctx, other.ID, other.Version+1)
		assert.ErrorIs(t, err, erpsync.ErrAlreadyClaimed)
	})
}

func TestGormSyncRecordRepository_Settle(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()

	rec := newRecord(t, uuid.New(), "OC-1")
	require.NoError(t, repo.Create(ctx, rec))

	t.Run("claim still held", func(t *testing.T) {
		claimed, err := repo.Claim(ctx, rec.ID, 0)
		require.NoError(t, err)
		require.NoError(t, claimed.Complete("77"))
		require.NoError(t, repo.Settle(ctx, claimed, 1))

		got, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, erpsync.StatusCompleted, got.Status)
		assert.Equal(t, "77", got.ExternalID)
		assert.NotNil(t, got.SyncedAt)
	})

	t.Run("revised after the claim", func(t *testing.T) {
		revised, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		_, err = revised.Revise(erpsync.Payload{"numero": "OC-1", "total": 99.0}, "")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, revised))

		claimed, err := repo.Claim(ctx, rec.ID, 0)
		require.NoError(t, err)
		require.Equal(t, 2, claimed.Version)

		// the payload changes again while version 2 is being delivered
		current, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		_, err = current.Revise(erpsync.Payload{"numero": "OC-1", "total": 250.0}, "")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, current))

		require.NoError(t, claimed.Complete("78"))
		assert.ErrorIs(t, repo.Settle(ctx, claimed, 2), erpsync.ErrClaimLost)

		got, err := repo.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, erpsync.StatusPending, got.Status)
		assert.Equal(t, 3, got.Version)
		assert.Equal(t, 250.0, got.Payload["total"])
		assert.Equal(t, "77", got.ExternalID)
	})
}

func TestGormSyncRecordRepository_ExpiredClaimIsReclaimed(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t)).WithProcessingLease(time.Minute)
	ctx := context.Background()
	tenantID := uuid.New()

	rec := newRecord(t, tenantID, "OC-1")
	require.NoError(t, repo.Create(ctx, rec))
	_, err := repo.Claim(ctx, rec.ID, 0)
	require.NoError(t, err)

	pending, err := repo.FindPending(ctx, erpsync.RecordFilter{TenantID: tenantID}, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a live claim hides the record")

	// the worker holding the claim never came back
	repo.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	pending, err = repo.FindPending(ctx, erpsync.RecordFilter{TenantID: tenantID}, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, erpsync.StatusProcessing, pending[0].Status)

	reclaimed, err := repo.Claim(ctx, rec.ID, pending[0].Version)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, reclaimed.ID)

	_, err = repo.Claim(ctx, rec.ID, 0)
	assert.ErrorIs(t, err, erpsync.ErrAlreadyClaimed, "the renewed claim holds a fresh lease")
}

func TestGormSyncRecordRepository_ReclaimFencesTheEarlierDelivery(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t)).WithProcessingLease(time.Minute)
	ctx := context.Background()

	rec := newRecord(t, uuid.New(), "OC-1")
	require.NoError(t, repo.Create(ctx, rec))
	first, err := repo.Claim(ctx, rec.ID, 0)
	require.NoError(t, err)

	repo.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	second, err := repo.Claim(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Equal(t, first.Version, second.Version, "a reclaim keeps the payload version")
	require.Greater(t, second.ClaimSeq, first.ClaimSeq)

	// the slow first delivery finishes after the takeover
	require.NoError(t, first.Complete("stale"))
	assert.ErrorIs(t, repo.Settle(ctx, first, first.Version), erpsync.ErrClaimLost)

	require.NoError(t, second.Complete("77"))
	require.NoError(t, repo.Settle(ctx, second, second.Version))

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, erpsync.StatusCompleted, got.Status)
	assert.Equal(t, "77", got.ExternalID)
}

func TestGormSyncRecordRepository_ResetFailed(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()
	tenantID := uuid.New()

	failed := newRecord(t, tenantID, "OC-1")
	exhaust(t, failed)
	require.NoError(t, repo.Create(ctx, failed))
	require.NoError(t, repo.Create(ctx, newRecord(t, tenantID, "OC-2")))

	n, err := repo.ResetFailed(ctx, tenantID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, erpsync.StatusPending, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.ErrorMessage)

	n, err = repo.ResetFailed(ctx, tenantID, "RECEPTION")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGormSyncRecordRepository_Queries(t *testing.T) {
	repo := NewGormSyncRecordRepository(persistencetest.NewSQLite(t))
	ctx := context.Background()
	tenantID := uuid.New()

	a := newRecord(t, tenantID, "OC-1")
	b := newRecord(t, tenantID, "OC-2")
	require.NoError(t, b.MarkProcessing())
	require.NoError(t, b.Complete("991"))
	c := newRecord(t, tenantID, "OC-1")
	c.ERPType = erpsync.ERPSoftland
	c.UpdatedAt = time.Now().Add(time.Minute)
	for _, r := range []*erpsync.Record{a, b, c} {
		require.NoError(t, repo.Create(ctx, r))
	}

	t.Run("latest for entity", func(t *testing.T) {
		got, err := repo.FindLatestForEntity(ctx, tenantID, erpsync.EntityPurchaseOrder, "OC-1", "")
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)

		got, err = repo.FindLatestForEntity(ctx, tenantID, erpsync.EntityPurchaseOrder, "OC-1", erpsync.ERPAxioma)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
	})

	t.Run("all for entity", func(t *testing.T) {
		all, err := repo.FindAllForEntity(ctx, tenantID, erpsync.EntityPurchaseOrder, "OC-1")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("grouped counts", func(t *testing.T) {
		counts, err := repo.CountGrouped(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, counts, 3)
		var total int64
		for _, c := range counts {
			total += c.Count
		}
		assert.Equal(t, int64(3), total)
	})

	t.Run("history with total", func(t *testing.T) {
		page, total, err := repo.FindHistory(ctx, erpsync.RecordFilter{TenantID: tenantID}, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, page, 2)

		completed, total, err := repo.FindHistory(ctx, erpsync.RecordFilter{TenantID: tenantID, Status: erpsync.StatusCompleted}, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "991", completed[0].ExternalID)
		assert.NotNil(t, completed[0].SyncedAt)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, a.ID))
		assert.ErrorIs(t, repo.Delete(ctx, a.ID), shared.ErrNotFound)
	})
}

func newMockSyncRecordRepository(t *testing.T) (*GormSyncRecordRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewGormSyncRecordRepository(gormDB), mock, mockDB
}

func TestGormSyncRecordRepository_ClaimIsConditionalUpdate(t *testing.T) {
	repo, mock, mockDB := newMockSyncRecordRepository(t)
	defer mockDB.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "sync_data" SET "claim_seq"=claim_seq \+ 1,"status"=\$1,"updated_at"=\$2 WHERE id = \$3 AND \(status = \$4 OR \(?status = \$5 AND updated_at < \$6\)?\) AND version = \$7`).
		WithArgs("PROCESSING", sqlmock.AnyArg(), id.String(), "PENDING", "PROCESSING", sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Claim(context.Background(), id, 3)
	assert.ErrorIs(t, err, erpsync.ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncRecordRepository_SettleIsConditionalUpdate(t *testing.T) {
	repo, mock, mockDB := newMockSyncRecordRepository(t)
	defer mockDB.Close()

	rec := newRecord(t, uuid.New(), "OC-1")
	require.NoError(t, rec.MarkProcessing())
	require.NoError(t, rec.Complete("77"))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "sync_data" SET`)+`.*`+
		regexp.QuoteMeta(`WHERE id = $7 AND status = $8 AND version = $9 AND claim_seq = $10`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			rec.ID.String(), "PROCESSING", 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Settle(context.Background(), rec, 1), erpsync.ErrClaimLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}
