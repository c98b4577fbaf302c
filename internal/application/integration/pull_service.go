package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/webhook"
	connectorinfra "github.com/synchub/backend/internal/infrastructure/connector"
	"go.uber.org/zap"
)

// ResourceError is the failure of a whole resource within a run
type ResourceError struct {
	Resource string `json:"resource"`
	Error    string `json:"error"`
}

// ResourceResult summarizes one pulled resource
type ResourceResult struct {
	ResourceID      string                  `json:"resourceId"`
	ResourceName    string                  `json:"resourceName"`
	RecordsFound    int                     `json:"recordsFound"`
	RecordsImported int                     `json:"recordsImported"`
	RecordsSkipped  int                     `json:"recordsSkipped"`
	RecordsFailed   int                     `json:"recordsFailed"`
	RecordsStaged   int                     `json:"recordsStaged"`
	Errors          []connector.RecordError `json:"errors,omitempty"`
}

// PullResult aggregates a pull over the selected resources
type PullResult struct {
	Success         bool                `json:"success"`
	Status          connector.RunStatus `json:"status"`
	TotalRecords    int                 `json:"totalRecords"`
	ImportedRecords int                 `json:"importedRecords"`
	SkippedRecords  int                 `json:"skippedRecords"`
	FailedRecords   int                 `json:"failedRecords"`
	StagedRecords   int                 `json:"stagedRecords"`
	Errors          []ResourceError     `json:"errors"`
	Resources       []*ResourceResult   `json:"resources"`
	DurationMs      int64               `json:"durationMs"`
}

// StagingError is one staged record that could not be imported
type StagingError struct {
	StagingID uuid.UUID `json:"stagingId"`
	Error     string    `json:"error"`
}

// StagingBatchResult summarizes an approval batch
type StagingBatchResult struct {
	Success int            `json:"success"`
	Failed  int            `json:"failed"`
	Errors  []StagingError `json:"errors"`
}

// PullService imports records from connector resources into the Hub,
// directly or through staging.
type PullService struct {
	connectors
	staging  connector.StagingRepository
	pullLogs connector.PullLogRepository
	registry *KindRegistry
	now      func() time.Time
}

// NewPullService creates the service. notifier may be nil.
func NewPullService(
	configs connector.ConfigRepository,
	staging connector.StagingRepository,
	pullLogs connector.PullLogRepository,
	registry *KindRegistry,
	clients *ClientFactory,
	notifier Notifier,
	logger *zap.Logger,
) *PullService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PullService{
		connectors: connectors{
			configs:  configs,
			clients:  clients,
			notifier: notifier,
			metrics:  clients.Metrics(),
			logger:   logger,
		},
		staging:  staging,
		pullLogs: pullLogs,
		registry: registry,
		now:      time.Now,
	}
}

// ExecutePull pulls every active resource of the connector, or only
// resourceID when it is not empty.
func (s *PullService) ExecutePull(ctx context.Context, tenantID, connectorID uuid.UUID, resourceID string) (*PullResult, error) {
	cfg, err := s.load(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	if !cfg.Direction.CanPull() {
		return nil, fmt.Errorf("%w: %s is %s", ErrDirectionMismatch, cfg.Name, cfg.Direction)
	}
	if len(cfg.PullResources) == 0 {
		return nil, fmt.Errorf("%w: no pull resources on %s", ErrNoResources, cfg.Name)
	}
	resources := cfg.SelectPullResources(resourceID)
	if len(resources) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}
	client, err := s.clients.Client(cfg)
	if err != nil {
		return nil, err
	}

	start := s.now()
	result := &PullResult{Errors: []ResourceError{}, Resources: []*ResourceResult{}}
	logger := s.logger.With(zap.String("connector_id", cfg.ID.String()))
	logger.Info("pull started", zap.Int("resources", len(resources)))

	for _, resource := range resources {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ResourceError{Resource: resource.Name, Error: ctx.Err().Error()})
			break
		}
		rr, err := s.SyncResource(ctx, client, resource)
		if err != nil {
			logger.Warn("resource pull failed", zap.String("resource_id", resource.ID), zap.Error(err))
			result.Errors = append(result.Errors, ResourceError{Resource: resource.Name, Error: err.Error()})
			continue
		}
		result.Resources = append(result.Resources, rr)
		result.TotalRecords += rr.RecordsFound
		result.ImportedRecords += rr.RecordsImported
		result.SkippedRecords += rr.RecordsSkipped
		result.FailedRecords += rr.RecordsFailed
		result.StagedRecords += rr.RecordsStaged
	}

	switch {
	case len(result.Errors) == 0:
		result.Status = connector.RunSuccess
	case result.ImportedRecords > 0:
		result.Status = connector.RunPartial
	default:
		result.Status = connector.RunFailed
	}
	result.Success = result.Status != connector.RunFailed
	result.DurationMs = s.now().Sub(start).Milliseconds()
	s.recordSync(ctx, cfg, connector.DirectionPull, result.Status)

	logger.Info("pull finished",
		zap.String("status", string(result.Status)),
		zap.Int("found", result.TotalRecords),
		zap.Int("imported", result.ImportedRecords),
		zap.Int("failed", result.FailedRecords),
		zap.Int("staged", result.StagedRecords),
		zap.Int64("duration_ms", result.DurationMs))

	timestamp := s.now().UTC().Format(time.RFC3339)
	if result.Success {
		s.notify(ctx, cfg.TenantID, webhook.EventSyncCompleted, map[string]any{
			"connectorId": cfg.ID.String(),
			"success":     result.ImportedRecords,
			"failed":      result.FailedRecords,
			"staged":      result.StagedRecords,
			"timestamp":   timestamp,
		})
	} else {
		s.notify(ctx, cfg.TenantID, webhook.EventSyncFailed, map[string]any{
			"connectorId": cfg.ID.String(),
			"error":       joinResourceErrors(result.Errors),
			"timestamp":   timestamp,
		})
	}
	return result, nil
}

// SyncResource fetches one resource and imports or stages each record. A
// fetch failure is returned after writing a FAILED pull log; record
// failures are counted and the resource carries on.
func (s *PullService) SyncResource(ctx context.Context, client *connectorinfra.Client, resource connector.PullResource) (*ResourceResult, error) {
	cfg := client.Config()
	start := s.now()
	rr := &ResourceResult{ResourceID: resource.ID, ResourceName: resource.Name}

	records, err := client.FetchResource(ctx, resource)
	if err != nil {
		s.writePullLog(ctx, cfg, rr, connector.RunFailed, err.Error(), start)
		return nil, err
	}
	rr.RecordsFound = len(records)

	scope := ImportScope{TenantID: cfg.TenantID, ConnectorID: cfg.ID}
	for _, raw := range records {
		if ctx.Err() != nil {
			break
		}
		record, ok := raw.(map[string]any)
		if !ok {
			rr.RecordsFailed++
			rr.Errors = append(rr.Errors, connector.RecordError{Record: recordLabel(raw), Error: "record is not an object"})
			continue
		}
		transformed := s.clients.Mapper().Apply(record, cfg.PullFieldMapping)

		if cfg.RequireValidation {
			errs := s.clients.Validator().Validate(transformed, cfg.ValidationRules)
			staged := connector.NewStagingRecord(cfg, resource, record, transformed, errs)
			if err := s.staging.Create(ctx, staged); err != nil {
				rr.RecordsFailed++
				rr.Errors = append(rr.Errors, connector.RecordError{Record: recordLabel(raw), Error: err.Error()})
				continue
			}
			rr.RecordsStaged++
			continue
		}

		outcome, err := s.importRecord(ctx, cfg, scope, resource.Kind, transformed)
		if err != nil {
			rr.RecordsFailed++
			rr.Errors = append(rr.Errors, connector.RecordError{Record: recordLabel(raw), Error: err.Error()})
			continue
		}
		if outcome == ImportSkipped {
			rr.RecordsSkipped++
			continue
		}
		rr.RecordsImported++
	}

	status := connector.RunSuccess
	if rr.RecordsFailed > 0 {
		status = connector.RunPartial
	}
	s.writePullLog(ctx, cfg, rr, status, "", start)
	s.metrics.RecordPull(ctx, string(resource.Kind), rr.RecordsImported, rr.RecordsFailed, rr.RecordsStaged)
	return rr, nil
}

func (s *PullService) importRecord(ctx context.Context, cfg *connector.Config, scope ImportScope, kind connector.Kind, data map[string]any) (ImportOutcome, error) {
	if errs := s.clients.Validator().Validate(data, cfg.ValidationRules); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.Message
		}
		return "", fmt.Errorf("%w: %s", ErrValidationRejected, strings.Join(messages, ", "))
	}
	importer, err := s.registry.Importer(kind)
	if err != nil {
		return "", err
	}
	return importer.Import(ctx, scope, data)
}

func (s *PullService) writePullLog(ctx context.Context, cfg *connector.Config, rr *ResourceResult, status connector.RunStatus, message string, start time.Time) {
	log := &connector.PullLog{
		ID:              uuid.New(),
		TenantID:        cfg.TenantID,
		ConnectorID:     cfg.ID,
		ResourceID:      rr.ResourceID,
		ResourceName:    rr.ResourceName,
		Status:          status,
		RecordsFound:    rr.RecordsFound,
		RecordsImported: rr.RecordsImported,
		RecordsFailed:   rr.RecordsFailed,
		RecordsStaged:   rr.RecordsStaged,
		Errors:          rr.Errors,
		ErrorMessage:    message,
		DurationMs:      s.now().Sub(start).Milliseconds(),
		CreatedAt:       s.now(),
	}
	if err := s.pullLogs.Create(ctx, log); err != nil {
		s.logger.Error("failed to write pull log",
			zap.String("connector_id", cfg.ID.String()),
			zap.String("resource_id", rr.ResourceID),
			zap.Error(err))
	}
}

// ProcessStagingBatch imports the given VALID staged records of a
// connector and stamps validatedBy on each.
func (s *PullService) ProcessStagingBatch(ctx context.Context, tenantID, connectorID uuid.UUID, ids []uuid.UUID, validatedBy string) (*StagingBatchResult, error) {
	cfg, err := s.load(ctx, tenantID, connectorID)
	if err != nil {
		return nil, err
	}
	scope := ImportScope{TenantID: cfg.TenantID, ConnectorID: cfg.ID}
	result := &StagingBatchResult{Errors: []StagingError{}}

	for _, id := range ids {
		if err := s.approve(ctx, cfg, scope, id, validatedBy); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, StagingError{StagingID: id, Error: err.Error()})
			continue
		}
		result.Success++
	}

	s.logger.Info("staging batch processed",
		zap.String("connector_id", cfg.ID.String()),
		zap.String("validated_by", validatedBy),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *PullService) approve(ctx context.Context, cfg *connector.Config, scope ImportScope, id uuid.UUID, validatedBy string) error {
	record, err := s.staging.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return ErrStagingNotFound
		}
		return err
	}
	if record.ConnectorID != cfg.ID {
		return ErrStagingNotFound
	}
	if err := record.CanImport(); err != nil {
		return err
	}
	resource, ok := cfg.FindPullResource(record.ResourceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, record.ResourceID)
	}
	if _, err := s.importRecord(ctx, cfg, scope, resource.Kind, record.TransformedData); err != nil {
		return err
	}
	if err := record.MarkImported(validatedBy); err != nil {
		return err
	}
	return s.staging.Save(ctx, record)
}

// ListStaging pages a connector's staged records
func (s *PullService) ListStaging(ctx context.Context, tenantID uuid.UUID, filter connector.StagingFilter, page, pageSize int) ([]*connector.StagingRecord, int64, error) {
	if _, err := s.find(ctx, tenantID, filter.ConnectorID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.staging.List(ctx, filter, page, pageSize)
}

// DeleteStaging discards a staged record
func (s *PullService) DeleteStaging(ctx context.Context, tenantID, connectorID, stagingID uuid.UUID) error {
	if _, err := s.find(ctx, tenantID, connectorID); err != nil {
		return err
	}
	record, err := s.staging.FindByID(ctx, stagingID)
	if err != nil {
		if isNotFound(err) {
			return ErrStagingNotFound
		}
		return err
	}
	if record.ConnectorID != connectorID {
		return ErrStagingNotFound
	}
	return s.staging.Delete(ctx, stagingID)
}

// ListPullLogs pages a connector's pull history, newest first
func (s *PullService) ListPullLogs(ctx context.Context, tenantID, connectorID uuid.UUID, page, pageSize int) ([]*connector.PullLog, int64, error) {
	if _, err := s.find(ctx, tenantID, connectorID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.pullLogs.List(ctx, connectorID, page, pageSize)
}

func joinResourceErrors(errs []ResourceError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Resource + ": " + e.Error
	}
	return strings.Join(parts, "; ")
}

// recordLabel names a record in error lists: its id when it has one,
// otherwise the start of its JSON.
func recordLabel(raw any) string {
	if m, ok := raw.(map[string]any); ok {
		if id := stringField(m, "id"); id != "" {
			return id
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	if len(b) > 50 {
		b = b[:50]
	}
	return string(b)
}
