package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/hub"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/domain/webhook"
	connectorinfra "github.com/synchub/backend/internal/infrastructure/connector"
	"github.com/synchub/backend/internal/infrastructure/persistence"
	"github.com/synchub/backend/internal/infrastructure/persistence/persistencetest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type notification struct {
	tenantID uuid.UUID
	event    string
	data     map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) TriggerWebhooks(_ context.Context, tenantID uuid.UUID, event string, data map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{tenantID: tenantID, event: event, data: data})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

type fixture struct {
	db         *gorm.DB
	tenantID   uuid.UUID
	configs    *persistence.GormConnectorConfigRepository
	staging    *persistence.GormStagingRepository
	pullLogs   *persistence.GormPullLogRepository
	exportLogs *persistence.GormExportLogRepository
	docs       *persistence.GormDocumentRepository
	masters    *persistence.GormMasterParameterRepository
	notifier   *recordingNotifier
	clients    *ClientFactory
	pull       *PullService
	push       *PushService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := persistencetest.NewSQLite(t)
	f := &fixture{
		db:         db,
		tenantID:   uuid.New(),
		configs:    persistence.NewGormConnectorConfigRepository(db),
		staging:    persistence.NewGormStagingRepository(db),
		pullLogs:   persistence.NewGormPullLogRepository(db),
		exportLogs: persistence.NewGormExportLogRepository(db),
		docs:       persistence.NewGormDocumentRepository(db),
		masters:    persistence.NewGormMasterParameterRepository(db),
		notifier:   &recordingNotifier{},
	}
	f.clients = NewClientFactory(connectorinfra.ClientOptions{Logger: zap.NewNop()})
	registry := DefaultKindRegistry(f.docs, f.masters, nil, zap.NewNop())
	f.pull = NewPullService(f.configs, f.staging, f.pullLogs, registry, f.clients, f.notifier, zap.NewNop())
	f.push = NewPushService(f.configs, f.exportLogs, registry, f.clients, f.notifier, zap.NewNop())
	return f
}

// addConnector saves an active bidirectional connector without auth
func (f *fixture) addConnector(t *testing.T, baseURL string, mutate func(*connector.Config)) *connector.Config {
	t.Helper()
	cfg := &connector.Config{
		ID:                uuid.New(),
		TenantID:          f.tenantID,
		Name:              "ERP Cloud",
		BaseURL:           baseURL,
		Direction:         connector.DirectionBidirectional,
		AuthType:          connector.AuthNone,
		RequestsPerMinute: 6000,
		MaxRetries:        1,
		RetryDelay:        10 * time.Millisecond,
		Timeout:           5 * time.Second,
		Active:            true,
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, f.configs.Save(context.Background(), cfg))
	return cfg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func supplierServer(t *testing.T, suppliers ...map[string]any) *httptest.Server {
	t.Helper()
	records := make([]any, len(suppliers))
	for i, s := range suppliers {
		records[i] = s
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/suppliers" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such resource"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": records})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var supplierMapping = []connector.FieldMapping{
	{SourceField: "rut", TargetField: "codigo"},
	{SourceField: "name", TargetField: "nombre"},
}

func supplierResource(id string) connector.PullResource {
	return connector.PullResource{ID: id, Name: "Suppliers", Endpoint: "/suppliers", Kind: connector.KindSupplier, DataPath: "data"}
}

func TestExecutePull_ImportsDirectly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := supplierServer(t,
		map[string]any{"rut": "76-1", "name": "Acme"},
		map[string]any{"rut": "76-2", "name": "Globex"},
		map[string]any{"name": "No Code"},
	)
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{supplierResource("suppliers")}
		c.PullFieldMapping = supplierMapping
		c.ValidationRules = []connector.ValidationRule{{Field: "codigo", Type: connector.RuleRequired}}
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)

	assert.Equal(t, connector.RunSuccess, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, 2, result.ImportedRecords)
	assert.Equal(t, 1, result.FailedRecords)
	require.Len(t, result.Resources, 1)
	require.Len(t, result.Resources[0].Errors, 1)
	assert.Contains(t, result.Resources[0].Errors[0].Error, "validation failed for field codigo")

	exists, err := f.masters.ExistsByCode(ctx, f.tenantID, hub.MasterSupplier, "76-2")
	require.NoError(t, err)
	assert.True(t, exists)

	logs, total, err := f.pull.ListPullLogs(ctx, f.tenantID, cfg.ID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, connector.RunPartial, logs[0].Status)
	assert.Equal(t, 3, logs[0].RecordsFound)
	assert.Equal(t, 2, logs[0].RecordsImported)

	saved, err := f.configs.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, connector.RunSuccess, saved.LastPullStatus)
	assert.NotNil(t, saved.LastPullSync)

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, webhook.EventSyncCompleted, events[0].event)
	assert.Equal(t, 2, events[0].data["success"])
	assert.Equal(t, 1, events[0].data["failed"])
	assert.Equal(t, cfg.ID.String(), events[0].data["connectorId"])
}

func TestExecutePull_SkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := supplierServer(t, map[string]any{"rut": "76-1", "name": "Acme"})
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{supplierResource("suppliers")}
		c.PullFieldMapping = supplierMapping
	})

	first, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ImportedRecords)

	second, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, connector.RunSuccess, second.Status)
	assert.Equal(t, 0, second.ImportedRecords)
	assert.Equal(t, 1, second.SkippedRecords)
	assert.Equal(t, 0, second.FailedRecords)
}

func TestExecutePull_FailedResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := supplierServer(t, map[string]any{"rut": "76-1"})
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{
			{ID: "missing", Name: "Missing", Endpoint: "/missing", Kind: connector.KindSupplier},
		}
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, connector.RunFailed, result.Status)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Missing", result.Errors[0].Resource)
	assert.Contains(t, result.Errors[0].Error, "HTTP 404")

	logs, _, err := f.pull.ListPullLogs(ctx, f.tenantID, cfg.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, connector.RunFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "HTTP 404")

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, webhook.EventSyncFailed, events[0].event)
	assert.Contains(t, events[0].data["error"], "Missing: HTTP 404")
}

func TestExecutePull_PartialWhenOneResourceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := supplierServer(t, map[string]any{"rut": "76-1", "name": "Acme"})
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{
			supplierResource("suppliers"),
			{ID: "missing", Name: "Missing", Endpoint: "/missing", Kind: connector.KindSupplier},
		}
		c.PullFieldMapping = supplierMapping
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, connector.RunPartial, result.Status)
	assert.Equal(t, 1, result.ImportedRecords)
	assert.Len(t, result.Errors, 1)
}

func TestExecutePull_SingleResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := supplierServer(t, map[string]any{"rut": "76-1"})
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{
			supplierResource("suppliers"),
			{ID: "missing", Name: "Missing", Endpoint: "/missing", Kind: connector.KindSupplier},
		}
		c.PullFieldMapping = supplierMapping
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "suppliers")
	require.NoError(t, err)
	assert.Equal(t, connector.RunSuccess, result.Status)
	require.Len(t, result.Resources, 1)
	assert.Equal(t, "suppliers", result.Resources[0].ResourceID)

	_, err = f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "nope")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestExecutePull_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := f.addConnector(t, "https://api.example.com", func(c *connector.Config) {
		c.Active = false
		c.PullResources = []connector.PullResource{supplierResource("suppliers")}
	})
	_, err := f.pull.ExecutePull(ctx, f.tenantID, inactive.ID, "")
	assert.ErrorIs(t, err, ErrConnectorInactive)

	pushOnly := f.addConnector(t, "https://api.example.com", func(c *connector.Config) {
		c.Direction = connector.DirectionPush
	})
	_, err = f.pull.ExecutePull(ctx, f.tenantID, pushOnly.ID, "")
	assert.ErrorIs(t, err, ErrDirectionMismatch)

	empty := f.addConnector(t, "https://api.example.com", nil)
	_, err = f.pull.ExecutePull(ctx, f.tenantID, empty.ID, "")
	assert.ErrorIs(t, err, ErrNoResources)

	_, err = f.pull.ExecutePull(ctx, uuid.New(), empty.ID, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.pull.ExecutePull(ctx, f.tenantID, uuid.New(), "")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.Empty(t, f.notifier.all())
}

func TestExecutePull_PageNumberPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	all := []map[string]any{
		{"rut": "1"}, {"rut": "2"}, {"rut": "3"}, {"rut": "4"}, {"rut": "5"},
	}
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		start := (page - 1) * size
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		items := []any{}
		for _, rec := range all[start:end] {
			items = append(items, rec)
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}))
	defer srv.Close()

	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{{
			ID:         "suppliers",
			Name:       "Suppliers",
			Endpoint:   "/suppliers",
			Kind:       connector.KindSupplier,
			DataPath:   "items",
			Pagination: &connector.Pagination{Enabled: true, Type: connector.PaginationPageNumber, PageSize: 2},
		}}
		c.PullFieldMapping = []connector.FieldMapping{{SourceField: "rut", TargetField: "codigo"}}
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalRecords)
	assert.Equal(t, 5, result.ImportedRecords)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestExecutePull_StagesWhenValidationRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := supplierServer(t,
		map[string]any{"rut": "76-1", "name": "Acme"},
		map[string]any{"name": "No Code"},
	)
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{supplierResource("suppliers")}
		c.PullFieldMapping = supplierMapping
		c.ValidationRules = []connector.ValidationRule{{Field: "codigo", Type: connector.RuleRequired, ErrorMessage: "codigo is required"}}
		c.RequireValidation = true
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.StagedRecords)
	assert.Equal(t, 0, result.ImportedRecords)

	exists, err := f.masters.ExistsByCode(ctx, f.tenantID, hub.MasterSupplier, "76-1")
	require.NoError(t, err)
	assert.False(t, exists, "staged records wait for approval")

	valid, total, err := f.pull.ListStaging(ctx, f.tenantID, connector.StagingFilter{ConnectorID: cfg.ID, ValidationStatus: connector.ValidationValid}, 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	invalid, _, err := f.pull.ListStaging(ctx, f.tenantID, connector.StagingFilter{ConnectorID: cfg.ID, ValidationStatus: connector.ValidationInvalid}, 1, 20)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, "codigo is required", invalid[0].ValidationErrors[0].Message)

	batch, err := f.pull.ProcessStagingBatch(ctx, f.tenantID, cfg.ID, []uuid.UUID{valid[0].ID, invalid[0].ID, uuid.New()}, "approver@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Success)
	assert.Equal(t, 2, batch.Failed)
	require.Len(t, batch.Errors, 2)
	assert.Equal(t, invalid[0].ID, batch.Errors[0].StagingID)
	assert.Contains(t, batch.Errors[1].Error, "staging record not found")

	exists, err = f.masters.ExistsByCode(ctx, f.tenantID, hub.MasterSupplier, "76-1")
	require.NoError(t, err)
	assert.True(t, exists)

	approved, err := f.staging.FindByID(ctx, valid[0].ID)
	require.NoError(t, err)
	assert.Equal(t, connector.StagingImported, approved.Status)
	assert.Equal(t, "approver@example.com", approved.ValidatedBy)
	assert.NotNil(t, approved.ValidatedAt)

	again, err := f.pull.ProcessStagingBatch(ctx, f.tenantID, cfg.ID, []uuid.UUID{valid[0].ID}, "approver@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Failed)
	assert.Contains(t, again.Errors[0].Error, "already imported")
}

func TestProcessStagingBatch_ResourceRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.addConnector(t, "https://api.example.com", func(c *connector.Config) {
		c.PullResources = []connector.PullResource{supplierResource("suppliers")}
	})
	orphan := connector.NewStagingRecord(cfg, supplierResource("retired"), map[string]any{}, map[string]any{"codigo": "9"}, nil)
	require.NoError(t, f.staging.Create(ctx, orphan))

	batch, err := f.pull.ProcessStagingBatch(ctx, f.tenantID, cfg.ID, []uuid.UUID{orphan.ID}, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Failed)
	assert.Contains(t, batch.Errors[0].Error, "retired")
}

func TestDeleteStaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.addConnector(t, "https://api.example.com", nil)
	other := f.addConnector(t, "https://api.example.com", nil)
	record := connector.NewStagingRecord(cfg, supplierResource("suppliers"), map[string]any{}, map[string]any{}, nil)
	require.NoError(t, f.staging.Create(ctx, record))

	assert.ErrorIs(t, f.pull.DeleteStaging(ctx, f.tenantID, other.ID, record.ID), ErrStagingNotFound)
	require.NoError(t, f.pull.DeleteStaging(ctx, f.tenantID, cfg.ID, record.ID))
	assert.ErrorIs(t, f.pull.DeleteStaging(ctx, f.tenantID, cfg.ID, record.ID), ErrStagingNotFound)
}

func TestExecutePull_ImportsDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{map[string]any{
			"uuid":   "ext-1",
			"type":   "FACTURA_A",
			"number": "0001-00000042",
			"date":   "2026-03-15",
			"total":  "1210.50",
			"lines": []any{
				map[string]any{"descripcion": "Widget", "cantidad": 2, "precioUnitario": 500, "totalLinea": 1000},
			},
		}})
	}))
	defer srv.Close()
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) {
		c.PullResources = []connector.PullResource{{ID: "docs", Name: "Docs", Endpoint: "/documents", Kind: connector.KindDocument}}
		c.PullFieldMapping = []connector.FieldMapping{
			{SourceField: "uuid", TargetField: "externalSystemId"},
			{SourceField: "type", TargetField: "tipoDocumento"},
			{SourceField: "number", TargetField: "numeroComprobante"},
			{SourceField: "date", TargetField: "fechaEmision"},
			{SourceField: "total", TargetField: "importeTotal"},
			{SourceField: "lines", TargetField: "lineas"},
		}
	})

	result, err := f.pull.ExecutePull(ctx, f.tenantID, cfg.ID, "")
	require.NoError(t, err)
	require.Equal(t, 1, result.ImportedRecords)

	exists, err := f.docs.ExistsByExternalID(ctx, f.tenantID, "ext-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestConnectorService_TestConnection(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "denied"})
	}))
	defer srv.Close()
	cfg := f.addConnector(t, srv.URL, func(c *connector.Config) { c.Active = false })
	svc := NewConnectorService(f.configs, f.clients, nil)

	ok, err := svc.TestConnection(context.Background(), f.tenantID, cfg.ID, "/health")
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	denied, err := svc.TestConnection(context.Background(), f.tenantID, cfg.ID, "/private")
	require.NoError(t, err)
	assert.False(t, denied.Success)

	_, err = svc.TestConnection(context.Background(), uuid.New(), cfg.ID, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordLabel(t *testing.T) {
	assert.Equal(t, "42", recordLabel(map[string]any{"id": float64(42), "name": "x"}))
	assert.Equal(t, `{"name":"x"}`, recordLabel(map[string]any{"name": "x"}))
	assert.Len(t, recordLabel(map[string]any{"description": "a very long description that overflows the label"}), 50)
	assert.Equal(t, "7", recordLabel(7))
}
