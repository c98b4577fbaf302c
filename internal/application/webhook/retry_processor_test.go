package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/webhook"
	"github.com/synchub/backend/internal/infrastructure/cache"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
)

// flakyServer fails the first failures requests with 500 and records every event id
func flakyServer(t *testing.T, failures int) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var envelope Envelope
		_ = json.Unmarshal(body, &envelope)

		mu.Lock()
		ids = append(ids, envelope.ID)
		n := len(ids)
		mu.Unlock()

		if n <= failures {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ids...)
	}
}

func (f *fixture) retryRows(t *testing.T) []models.WebhookRetryModel {
	t.Helper()
	var rows []models.WebhookRetryModel
	require.NoError(t, f.db.Order("attempt ASC").Find(&rows).Error)
	return rows
}

// backdate makes scheduled retries due immediately
func (f *fixture) backdate() {
	f.dispatcher.now = func() time.Time { return time.Now().Add(-time.Hour) }
}

func TestRetryProcessor_RedeliversWithSameEventID(t *testing.T) {
	f := newFixture(t)
	f.backdate()
	srv, ids := flakyServer(t, 1)
	tenantID := uuid.New()
	hook := f.addWebhook(t, tenantID, srv.URL, webhook.EventSyncCompleted)
	ctx := context.Background()

	first, err := f.dispatcher.SendWebhook(ctx, hook.ID, webhook.EventSyncCompleted, map[string]any{"entityId": "PO-1"}, 0)
	require.NoError(t, err)
	require.True(t, first.RetryScheduled)

	processor := NewRetryProcessor(f.dispatcher, f.webhooks, f.retries, cache.NewInMemoryDeliveryGuard(), RetryProcessorConfig{}, nil)
	sent, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got := ids()
	require.Len(t, got, 2)
	assert.Equal(t, first.EventID, got[0])
	assert.Equal(t, first.EventID, got[1])

	rows := f.retryRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, webhook.RetryDone, rows[0].Status)
	assert.Empty(t, rows[0].LastError)

	logs := f.allLogs(t, tenantID)
	require.Len(t, logs, 2)
	attempts := map[int]bool{}
	for _, l := range logs {
		attempts[l.Attempts] = l.Success
		assert.Equal(t, first.EventID, l.EventID)
	}
	assert.Equal(t, map[int]bool{1: false, 2: true}, attempts)

	sent, err = processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestRetryProcessor_ExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	f.backdate()
	srv, ids := flakyServer(t, 100)
	tenantID := uuid.New()
	hook := f.addWebhook(t, tenantID, srv.URL, webhook.EventSyncFailed)
	ctx := context.Background()

	_, err := f.dispatcher.SendWebhook(ctx, hook.ID, webhook.EventSyncFailed, map[string]any{}, 0)
	require.NoError(t, err)

	processor := NewRetryProcessor(f.dispatcher, f.webhooks, f.retries, nil, RetryProcessorConfig{}, nil)
	for i := 0; i < webhook.MaxRetries+2; i++ {
		_, err := processor.ProcessDue(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, ids(), webhook.MaxRetries+1)
	rows := f.retryRows(t)
	require.Len(t, rows, webhook.MaxRetries)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Attempt)
		assert.Equal(t, webhook.RetryDone, row.Status)
		assert.Equal(t, "HTTP 500", row.LastError)
	}
	assert.Empty(t, f.pendingRetries(t))
}

func TestRetryProcessor_DropsDuplicatesAndDeadWebhooks(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate delivery is suppressed", func(t *testing.T) {
		f := newFixture(t)
		f.backdate()
		srv, ids := flakyServer(t, 1)
		hook := f.addWebhook(t, uuid.New(), srv.URL, webhook.EventSyncCompleted)

		first, err := f.dispatcher.SendWebhook(ctx, hook.ID, webhook.EventSyncCompleted, map[string]any{}, 0)
		require.NoError(t, err)

		guard := cache.NewInMemoryDeliveryGuard()
		defer guard.Close()
		fresh, err := guard.MarkProcessed(ctx, first.EventID+":"+hook.ID.String()+":1", time.Hour)
		require.NoError(t, err)
		require.True(t, fresh)

		processor := NewRetryProcessor(f.dispatcher, f.webhooks, f.retries, guard, RetryProcessorConfig{}, nil)
		sent, err := processor.ProcessDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
		assert.Len(t, ids(), 1)

		rows := f.retryRows(t)
		require.Len(t, rows, 1)
		assert.Equal(t, webhook.RetryDropped, rows[0].Status)
		assert.Equal(t, "duplicate delivery suppressed", rows[0].LastError)
	})

	t.Run("inactive webhook drops the retry", func(t *testing.T) {
		f := newFixture(t)
		f.backdate()
		srv, ids := flakyServer(t, 1)
		hook := f.addWebhook(t, uuid.New(), srv.URL, webhook.EventSyncCompleted)

		_, err := f.dispatcher.SendWebhook(ctx, hook.ID, webhook.EventSyncCompleted, map[string]any{}, 0)
		require.NoError(t, err)

		hook.Active = false
		require.NoError(t, f.webhooks.Save(ctx, hook))

		processor := NewRetryProcessor(f.dispatcher, f.webhooks, f.retries, nil, RetryProcessorConfig{}, nil)
		sent, err := processor.ProcessDue(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
		assert.Len(t, ids(), 1)

		rows := f.retryRows(t)
		require.Len(t, rows, 1)
		assert.Equal(t, webhook.RetryDropped, rows[0].Status)
	})
}

func TestRetryProcessor_ReclaimsAbandonedRetry(t *testing.T) {
	f := newFixture(t)
	f.backdate()
	srv, ids := flakyServer(t, 1)
	hook := f.addWebhook(t, uuid.New(), srv.URL, webhook.EventSyncCompleted)
	ctx := context.Background()

	first, err := f.dispatcher.SendWebhook(ctx, hook.ID, webhook.EventSyncCompleted, map[string]any{"entityId": "PO-9"}, 0)
	require.NoError(t, err)
	require.True(t, first.RetryScheduled)

	// a worker claimed the retry, set the guard key and died before finishing
	guard := cache.NewInMemoryDeliveryGuard()
	defer guard.Close()
	_, err = guard.MarkProcessed(ctx, first.EventID+":"+hook.ID.String()+":1", time.Hour)
	require.NoError(t, err)
	rows := f.retryRows(t)
	require.Len(t, rows, 1)
	require.NoError(t, f.db.Model(&models.WebhookRetryModel{}).Where("id = ?", rows[0].ID).
		UpdateColumns(map[string]any{"status": webhook.RetryProcessing, "updated_at": time.Now()}).Error)

	processor := NewRetryProcessor(f.dispatcher, f.webhooks, f.retries, guard, RetryProcessorConfig{}, nil)

	sent, err := processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "a live claim is left alone")

	require.NoError(t, f.db.Model(&models.WebhookRetryModel{}).Where("id = ?", rows[0].ID).
		UpdateColumn("updated_at", time.Now().Add(-2*webhook.DefaultRetryLease)).Error)

	sent, err = processor.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got := ids()
	require.Len(t, got, 2)
	assert.Equal(t, first.EventID, got[1])

	rows = f.retryRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, webhook.RetryDone, rows[0].Status)
}

func TestRetryProcessor_StartStop(t *testing.T) {
	f := newFixture(t)
	f.backdate()
	srv, ids := flakyServer(t, 1)
	hook := f.addWebhook(t, uuid.New(), srv.URL, webhook.EventSyncCompleted)

	_, err := f.dispatcher.SendWebhook(context.Background(), hook.ID, webhook.EventSyncCompleted, map[string]any{}, 0)
	require.NoError(t, err)

	processor := NewRetryProcessor(f.dispatcher, f.webhooks, f.retries, nil, RetryProcessorConfig{PollInterval: 20 * time.Millisecond}, nil)
	require.NoError(t, processor.Start(context.Background()))

	assert.Eventually(t, func() bool { return len(ids()) == 2 }, 2*time.Second, 20*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))
}
