package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/hub"
	"github.com/synchub/backend/internal/domain/webhook"
	connectorinfra "github.com/synchub/backend/internal/infrastructure/connector"
	"go.uber.org/zap"
)

// DefaultExportLimit caps the records sent per resource in one push
const DefaultExportLimit = 100

// PushOptions narrows a push
type PushOptions struct {
	// ForceAll resends records that were already exported
	ForceAll    bool
	DocumentIDs []uuid.UUID
	Limit       int
}

// ExportedRecord is the outcome of sending one record
type ExportedRecord struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	ExternalID string    `json:"externalId,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ResourceExportResult summarizes one push resource
type ResourceExportResult struct {
	Kind    connector.Kind   `json:"resourceType"`
	Success int              `json:"success"`
	Failed  int              `json:"failed"`
	Skipped int              `json:"skipped"`
	Records []ExportedRecord `json:"records"`
}

// PushResult aggregates a push over every push resource
type PushResult struct {
	Status    connector.RunStatus     `json:"status"`
	Success   int                     `json:"success"`
	Failed    int                     `json:"failed"`
	Skipped   int                     `json:"skipped"`
	Errors    []ResourceError         `json:"errors"`
	Resources []*ResourceExportResult `json:"exportedResources"`
}

// DocumentExportResult is the outcome of exporting a single document
type DocumentExportResult struct {
	Success    bool      `json:"success"`
	DocumentID uuid.UUID `json:"documentId"`
	ExternalID string    `json:"externalId"`
}

// PendingExport lists records of one kind still waiting to be sent
type PendingExport struct {
	Kind    connector.Kind   `json:"resourceType"`
	Total   int              `json:"total"`
	Records []map[string]any `json:"records"`
}

// PushService sends Hub records to connector push resources and keeps the
// export history.
type PushService struct {
	connectors
	exportLogs connector.ExportLogRepository
	registry   *KindRegistry
	now        func() time.Time
}

// NewPushService creates the service. notifier may be nil.
func NewPushService(
	configs connector.ConfigRepository,
	exportLogs connector.ExportLogRepository,
	registry *KindRegistry,
	clients *ClientFactory,
	notifier Notifier,
	logger *zap.Logger,
) *PushService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushService{
		connectors: connectors{
			configs:  configs,
			clients:  clients,
			notifier: notifier,
			metrics:  clients.Metrics(),
			logger:   logger,
		},
		exportLogs: exportLogs,
		registry:   registry,
		now:        time.Now,
	}
}

// ExecutePush sends pending records of every push resource
func (s *PushService) ExecutePush(ctx context.Context, tenantID, connectorID uuid.UUID, opts PushOptions) (*PushResult, error) {
	cfg, err := s.load(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	if !cfg.Direction.CanPush() {
		return nil, fmt.Errorf("%w: %s is %s", ErrDirectionMismatch, cfg.Name, cfg.Direction)
	}
	if len(cfg.PushResources) == 0 {
		return nil, fmt.Errorf("%w: no push resources on %s", ErrNoResources, cfg.Name)
	}
	client, err := s.clients.Client(cfg)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("connector_id", cfg.ID.String()))
	logger.Info("push started", zap.Int("resources", len(cfg.PushResources)), zap.Bool("force_all", opts.ForceAll))

	result := &PushResult{Errors: []ResourceError{}, Resources: []*ResourceExportResult{}}
	for _, resource := range cfg.PushResources {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ResourceError{Resource: string(resource.Kind), Error: ctx.Err().Error()})
			break
		}
		rr, err := s.ExportResource(ctx, client, resource, opts)
		if err != nil {
			logger.Warn("resource push failed", zap.String("kind", string(resource.Kind)), zap.Error(err))
			result.Failed++
			result.Errors = append(result.Errors, ResourceError{Resource: string(resource.Kind), Error: err.Error()})
			continue
		}
		result.Resources = append(result.Resources, rr)
		result.Success += rr.Success
		result.Failed += rr.Failed
		result.Skipped += rr.Skipped
	}

	switch {
	case result.Failed == 0:
		result.Status = connector.RunSuccess
	case result.Success > 0:
		result.Status = connector.RunPartial
	default:
		result.Status = connector.RunFailed
	}
	s.recordSync(ctx, cfg, connector.DirectionPush, result.Status)

	logger.Info("push finished",
		zap.String("status", string(result.Status)),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))

	timestamp := s.now().UTC().Format(time.RFC3339)
	switch {
	case result.Failed > 0:
		message := joinResourceErrors(result.Errors)
		if message == "" {
			message = fmt.Sprintf("%d exports failed", result.Failed)
		}
		s.notify(ctx, cfg.TenantID, webhook.EventExportFailed, map[string]any{
			"connectorId": cfg.ID.String(),
			"error":       message,
			"timestamp":   timestamp,
		})
	case result.Success > 0:
		s.notify(ctx, cfg.TenantID, webhook.EventExportCompleted, map[string]any{
			"connectorId": cfg.ID.String(),
			"success":     result.Success,
			"failed":      result.Failed,
			"skipped":     result.Skipped,
			"timestamp":   timestamp,
		})
	}
	return result, nil
}

// ExportResource sends the candidate records of one push resource. Records
// whose mapped payload is empty are skipped. Record failures are logged and
// counted; only a failure to select candidates is returned.
func (s *PushService) ExportResource(ctx context.Context, client *connectorinfra.Client, resource connector.PushResource, opts PushOptions) (*ResourceExportResult, error) {
	cfg := client.Config()
	exporter, err := s.registry.Exporter(resource.Kind)
	if err != nil {
		return nil, err
	}

	q := hub.ExportQuery{
		TenantID: cfg.TenantID,
		IDs:      opts.DocumentIDs,
		ForceAll: opts.ForceAll,
		Filters:  resource.Filters,
	}
	if len(q.IDs) == 0 {
		q.Limit = opts.Limit
		if q.Limit <= 0 {
			q.Limit = DefaultExportLimit
		}
	}
	records, err := exporter.FindForExport(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select %s for export: %w", resource.Kind, err)
	}

	rr := &ResourceExportResult{Kind: resource.Kind, Records: []ExportedRecord{}}
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		payload := client.Mapper().ApplyPush(record.Data, resource.FieldMapping)
		if len(payload) == 0 {
			rr.Skipped++
			rr.Records = append(rr.Records, ExportedRecord{ID: record.ID, Status: "skipped"})
			continue
		}
		externalID, err := s.send(ctx, client, exporter, resource, record, payload)
		if err != nil {
			rr.Failed++
			rr.Records = append(rr.Records, ExportedRecord{ID: record.ID, Status: "failed", Error: err.Error()})
			continue
		}
		rr.Success++
		rr.Records = append(rr.Records, ExportedRecord{ID: record.ID, Status: "success", ExternalID: externalID})
	}
	return rr, nil
}

// send pushes one record, stamps it as exported and writes its export log
func (s *PushService) send(ctx context.Context, client *connectorinfra.Client, exporter Exporter, resource connector.PushResource, record ExportRecord, payload map[string]any) (string, error) {
	cfg := client.Config()
	log := &connector.ExportLog{
		ID:          uuid.New(),
		TenantID:    cfg.TenantID,
		ConnectorID: cfg.ID,
		Kind:        resource.Kind,
		RecordID:    record.ID,
		Request:     payload,
	}

	resp, err := client.Do(ctx, connectorinfra.Request{
		Method:   resource.HTTPMethod(),
		Endpoint: resource.Endpoint,
		Body:     payload,
	})
	if err == nil {
		log.Response = responseMap(resp)
		log.ExternalID = responseID(resp, "id", "externalId")
		now := s.now()
		connectorID := cfg.ID
		err = exporter.MarkExported(ctx, record.ID, hub.ExportMark{
			LastExportedAt: &now,
			ExportConfigID: &connectorID,
			ExternalID:     log.ExternalID,
		})
	}

	log.Status = connector.RunSuccess
	if err != nil {
		log.Status = connector.RunFailed
		log.ErrorMessage = err.Error()
	}
	s.writeExportLog(ctx, log)
	s.metrics.RecordExport(ctx, string(resource.Kind), err == nil)
	if err != nil {
		s.logger.Warn("record export failed",
			zap.String("connector_id", cfg.ID.String()),
			zap.String("kind", string(resource.Kind)),
			zap.String("record_id", record.ID.String()),
			zap.Error(err))
		return "", err
	}
	return log.ExternalID, nil
}

func (s *PushService) writeExportLog(ctx context.Context, log *connector.ExportLog) {
	log.CreatedAt = s.now()
	if err := s.exportLogs.Create(ctx, log); err != nil {
		s.logger.Error("failed to write export log",
			zap.String("connector_id", log.ConnectorID.String()),
			zap.String("record_id", log.RecordID.String()),
			zap.Error(err))
	}
}

// ExportDocument sends one document through the connector's DOCUMENTO
// resource, whether or not it was exported before.
func (s *PushService) ExportDocument(ctx context.Context, tenantID, connectorID, documentID uuid.UUID) (*DocumentExportResult, error) {
	cfg, err := s.load(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	resource, ok := cfg.FindPushResource(connector.KindDocument)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s push resource", ErrResourceNotFound, cfg.Name, connector.KindDocument)
	}
	exporter, err := s.registry.Exporter(connector.KindDocument)
	if err != nil {
		return nil, err
	}
	record, err := exporter.FindByID(ctx, cfg.TenantID, documentID)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.Client(cfg)
	if err != nil {
		return nil, err
	}

	payload := client.Mapper().ApplyPush(record.Data, resource.FieldMapping)
	externalID, err := s.send(ctx, client, exporter, resource, record, payload)
	if err != nil {
		return nil, err
	}
	if externalID == "" {
		externalID = "unknown"
	}

	s.notify(ctx, cfg.TenantID, webhook.EventDocumentExported, map[string]any{
		"documentoId": documentID.String(),
		"tipo":        record.Data["tipoDocumento"],
		"numero":      record.Data["numeroComprobante"],
		"total":       record.Data["importeTotal"],
		"externalId":  externalID,
		"exportedAt":  s.now().UTC().Format(time.RFC3339),
	})
	return &DocumentExportResult{Success: true, DocumentID: documentID, ExternalID: externalID}, nil
}

// GetDocumentExportHistory returns every export attempt of a document,
// newest first.
func (s *PushService) GetDocumentExportHistory(ctx context.Context, tenantID, documentID uuid.UUID) ([]*connector.ExportLog, error) {
	logs, err := s.exportLogs.FindByRecord(ctx, connector.KindDocument, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]*connector.ExportLog, 0, len(logs))
	for _, l := range logs {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetExportStats aggregates a connector's export history
func (s *PushService) GetExportStats(ctx context.Context, tenantID, connectorID uuid.UUID, filter connector.ExportFilter) (*connector.ExportStats, error) {
	if _, err := s.find(ctx, tenantID, connectorID); err != nil {
		return nil, err
	}
	return s.exportLogs.Stats(ctx, connectorID, filter)
}

// ListExportLogs pages a connector's export history, newest first
func (s *PushService) ListExportLogs(ctx context.Context, tenantID, connectorID uuid.UUID, filter connector.ExportFilter, page, pageSize int) ([]*connector.ExportLog, int64, error) {
	if _, err := s.find(ctx, tenantID, connectorID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.exportLogs.List(ctx, connectorID, filter, page, pageSize)
}

// ListPendingExports previews, per push resource, the records a push would
// send, after field mapping.
func (s *PushService) ListPendingExports(ctx context.Context, tenantID, connectorID uuid.UUID, limit int) ([]PendingExport, error) {
	cfg, err := s.find(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultExportLimit
	}
	out := make([]PendingExport, 0, len(cfg.PushResources))
	for _, resource := range cfg.PushResources {
		exporter, err := s.registry.Exporter(resource.Kind)
		if err != nil {
			return nil, err
		}
		records, err := exporter.FindForExport(ctx, hub.ExportQuery{
			TenantID: cfg.TenantID,
			Limit:    limit,
			Filters:  resource.Filters,
		})
		if err != nil {
			return nil, err
		}
		pending := PendingExport{Kind: resource.Kind, Total: len(records), Records: make([]map[string]any, len(records))}
		for i, r := range records {
			pending.Records[i] = s.clients.Mapper().ApplyPush(r.Data, resource.FieldMapping)
		}
		out = append(out, pending)
	}
	return out, nil
}

// responseMap keeps an object response as is and wraps anything else
func responseMap(resp any) map[string]any {
	switch v := resp.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		return map[string]any{"data": v}
	}
}

// responseID reads the first present key of an object response as a string
func responseID(resp any, keys ...string) string {
	m, ok := resp.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range keys {
		if id := strings.TrimSpace(stringField(m, k)); id != "" {
			return id
		}
	}
	return ""
}
