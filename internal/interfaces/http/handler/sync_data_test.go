package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	syncapp "github.com/synchub/backend/internal/application/erpsync"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/infrastructure/persistence"
	"github.com/synchub/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/synchub/backend/internal/interfaces/http/dto"
)

func newSyncDataAPI(t *testing.T) (*testAPI, *syncapp.QueueService) {
	t.Helper()
	queue := syncapp.NewQueueService(persistence.NewGormSyncRecordRepository(persistencetest.NewSQLite(t)), nil)
	return newTestAPI(t, SyncDataRoutes(NewSyncDataHandler(queue, nil))), queue
}

func orderRequest(entityID string, total float64) dto.EnqueueRequest {
	return dto.EnqueueRequest{
		EntityType: erpsync.EntityPurchaseOrder,
		EntityID:   entityID,
		ERPType:    erpsync.ERPAxioma,
		Payload:    erpsync.Payload{"numero": entityID, "total": total},
	}
}

func TestSyncData_Enqueue(t *testing.T) {
	api, _ := newSyncDataAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/sync-data", orderRequest("OC-1", 10))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.EnqueueResponse](t, w)
	assert.Equal(t, erpsync.ActionCreate, created.Data.Action)
	assert.Equal(t, erpsync.StatusPending, created.Data.Record.Status)
	assert.Equal(t, 1, created.Data.Record.Version)
	assert.Equal(t, "OC-1", created.Data.Record.EntityID)

	w = api.do(t, http.MethodPost, "/api/v1/sync-data", orderRequest("OC-1", 20))
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[dto.EnqueueResponse](t, w)
	assert.Equal(t, erpsync.ActionUpdate, updated.Data.Action)
	assert.Equal(t, 2, updated.Data.Record.Version)
	assert.Equal(t, created.Data.Record.ID, updated.Data.Record.ID)
}

func TestSyncData_Enqueue_ValidationAndTenant(t *testing.T) {
	api, _ := newSyncDataAPI(t)

	t.Run("missing fields", func(t *testing.T) {
		w := api.do(t, http.MethodPost, "/api/v1/sync-data", map[string]any{"entityType": "PURCHASE_ORDER"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decode[any](t, w)
		require.NotNil(t, env.Error)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
		assert.NotEmpty(t, env.Error.Details)
	})

	t.Run("unknown ERP", func(t *testing.T) {
		req := orderRequest("OC-2", 1)
		req.ERPType = "SAP"
		w := api.do(t, http.MethodPost, "/api/v1/sync-data", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing tenant", func(t *testing.T) {
		w := api.doAs(t, "", http.MethodPost, "/api/v1/sync-data", orderRequest("OC-3", 1))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed tenant", func(t *testing.T) {
		w := api.doAs(t, "tenant-1", http.MethodGet, "/api/v1/sync-data/stats", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSyncData_Batch(t *testing.T) {
	api, _ := newSyncDataAPI(t)
	api.do(t, http.MethodPost, "/api/v1/sync-data", orderRequest("OC-1", 10))

	w := api.do(t, http.MethodPost, "/api/v1/sync-data/batch", dto.EnqueueBatchRequest{
		Items: []dto.EnqueueRequest{orderRequest("OC-1", 11), orderRequest("OC-2", 5)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[syncapp.BatchResult](t, w).Data
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Items, 2)
	assert.Equal(t, erpsync.ActionUpdate, result.Items[0].Action)
	assert.NotNil(t, result.Items[1].RecordID)

	t.Run("one invalid item rejects the request", func(t *testing.T) {
		bad := orderRequest("OC-3", 1)
		bad.Direction = "SIDEWAYS"
		w := api.do(t, http.MethodPost, "/api/v1/sync-data/batch", dto.EnqueueBatchRequest{
			Items: []dto.EnqueueRequest{orderRequest("OC-4", 1), bad},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w = api.do(t, http.MethodPost, "/api/v1/sync-data/batch", dto.EnqueueBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncData_QueueQueries(t *testing.T) {
	api, queue := newSyncDataAPI(t)
	ctx := context.Background()

	for _, id := range []string{"OC-1", "OC-2", "OC-3"} {
		api.do(t, http.MethodPost, "/api/v1/sync-data", orderRequest(id, 1))
	}
	pending, err := queue.GetPending(ctx, erpsync.RecordFilter{TenantID: api.tenant}, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.NoError(t, queue.MarkProcessing(ctx, pending[0].ID))
	_, err = queue.MarkCompleted(ctx, pending[0].ID, "ERP-1", 0)
	require.NoError(t, err)

	t.Run("pending", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/sync-data/pending?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]dto.SyncRecordResponse](t, w).Data, 2)
	})

	t.Run("stats", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/sync-data/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
		stats := decode[syncapp.QueueStats](t, w).Data
		assert.Equal(t, int64(3), stats.Total)
		assert.Equal(t, int64(2), stats.ByStatus[erpsync.StatusPending])
		assert.Equal(t, int64(1), stats.ByStatus[erpsync.StatusCompleted])
	})

	t.Run("history is paged", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/sync-data/history?page=1&page_size=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		env := decode[[]dto.SyncRecordResponse](t, w)
		assert.Len(t, env.Data, 2)
		require.NotNil(t, env.Meta)
		assert.Equal(t, int64(3), env.Meta.Total)
		assert.Equal(t, 2, env.Meta.TotalPages)
	})

	t.Run("history filtered by status", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/sync-data/history?status=COMPLETED", nil)
		env := decode[[]dto.SyncRecordResponse](t, w)
		require.Len(t, env.Data, 1)
		assert.Equal(t, "ERP-1", env.Data[0].ExternalID)
	})

	t.Run("status of an entity", func(t *testing.T) {
		path := "/api/v1/sync-data/status/" + erpsync.EntityPurchaseOrder + "/" + pending[0].EntityID
		w := api.do(t, http.MethodGet, path+"?erpType=AXIOMA", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, erpsync.StatusCompleted, decode[dto.SyncRecordResponse](t, w).Data.Status)

		w = api.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]dto.SyncRecordResponse](t, w).Data, 1)
	})

	t.Run("other tenants see nothing", func(t *testing.T) {
		w := api.doAs(t, uuid.NewString(), http.MethodGet, "/api/v1/sync-data/"+pending[1].ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSyncData_RecordLifecycle(t *testing.T) {
	api, _ := newSyncDataAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/sync-data", orderRequest("OC-1", 10))
	id := decode[dto.EnqueueResponse](t, w).Data.Record.ID.String()

	w = api.do(t, http.MethodGet, "/api/v1/sync-data/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < erpsync.MaxAttempts; i++ {
		w = api.do(t, http.MethodPost, "/api/v1/sync-data/"+id+"/fail", dto.FailRequest{ErrorMessage: "timeout"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	failed := decode[dto.SyncRecordResponse](t, w).Data
	assert.Equal(t, erpsync.StatusFailed, failed.Status)
	assert.Equal(t, erpsync.MaxAttempts, failed.RetryCount)

	w = api.do(t, http.MethodPost, "/api/v1/sync-data/"+id+"/complete", dto.CompleteRequest{ExternalID: "X"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidTransition, decode[any](t, w).Error.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sync-data/retry-failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, w).Data["retried"])

	w = api.do(t, http.MethodPost, "/api/v1/sync-data/"+id+"/complete", dto.CompleteRequest{ExternalID: "ERP-77"})
	require.Equal(t, http.StatusOK, w.Code)
	done := decode[dto.SyncRecordResponse](t, w).Data
	assert.Equal(t, erpsync.StatusCompleted, done.Status)
	assert.Equal(t, "ERP-77", done.ExternalID)
	assert.NotNil(t, done.SyncedAt)

	w = api.do(t, http.MethodDelete, "/api/v1/sync-data/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/sync-data/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncData_BadIDAndMissingProcessor(t *testing.T) {
	api, _ := newSyncDataAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/sync-data/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sync-data/"+uuid.NewString()+"/fail", dto.FailRequest{ErrorMessage: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sync-data/process", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
