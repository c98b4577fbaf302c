package erpsync

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/domain/webhook"
	"github.com/synchub/backend/internal/infrastructure/erp"
	"github.com/synchub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultProcessLimit is the batch size of one ProcessPending call
const DefaultProcessLimit = 10

// ConnectionProvider hands out a live ERP handle for a tenant
type ConnectionProvider interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*sql.DB, error)
}

// HandlerResolver picks the handler that writes a record
type HandlerResolver interface {
	Resolve(record *erpsync.Record, cfg *erpsync.EntityConfig) (erp.Handler, error)
}

// Notifier fans an event out to the tenant's webhooks without blocking
type Notifier interface {
	TriggerWebhooks(ctx context.Context, tenantID uuid.UUID, event string, data map[string]any)
}

// ProcessResult summarizes one ProcessPending run
type ProcessResult struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// Superseded counts deliveries whose record was revised or reclaimed
	// before the outcome could be stored
	Superseded int `json:"superseded"`
}

// DispatchProcessor delivers pending queue records to tenants' ERPs
type DispatchProcessor struct {
	queue    *QueueService
	configs  erpsync.EntityConfigRepository
	conns    ConnectionProvider
	handlers HandlerResolver
	notifier Notifier
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewDispatchProcessor creates a processor. notifier and metrics may be nil.
func NewDispatchProcessor(
	queue *QueueService,
	configs erpsync.EntityConfigRepository,
	conns ConnectionProvider,
	handlers HandlerResolver,
	notifier Notifier,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *DispatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchProcessor{
		queue:    queue,
		configs:  configs,
		conns:    conns,
		handlers: handlers,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// ProcessPending claims up to limit pending records and delivers each one.
// A failing record never aborts the batch; cancelling ctx stops before the
// next record.
func (p *DispatchProcessor) ProcessPending(ctx context.Context, filter erpsync.RecordFilter, limit int) (*ProcessResult, error) {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}
	pending, err := p.queue.GetPending(ctx, filter, limit)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	for _, snapshot := range pending {
		if ctx.Err() != nil {
			break
		}
		record, err := p.queue.Claim(ctx, snapshot.ID, snapshot.Version)
		if err != nil {
			if errors.Is(err, erpsync.ErrAlreadyClaimed) {
				result.Skipped++
				continue
			}
			p.logger.Error("failed to claim sync record", zap.String("id", snapshot.ID.String()), zap.Error(err))
			continue
		}
		result.Processed++

		externalID, err := p.dispatch(ctx, record)
		p.metrics.RecordDispatch(ctx, record.EntityType, record.ERPType, err == nil)

		var settled bool
		if err != nil {
			settled = p.fail(ctx, record, err)
		} else {
			settled = p.complete(ctx, record, externalID)
		}
		switch {
		case !settled:
			result.Superseded++
		case err != nil:
			result.Failed++
		default:
			result.Success++
		}
	}

	if result.Processed > 0 || result.Skipped > 0 {
		p.logger.Info("sync batch processed",
			zap.Int("processed", result.Processed),
			zap.Int("success", result.Success),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
			zap.Int("superseded", result.Superseded))
	}
	return result, nil
}

func (p *DispatchProcessor) dispatch(ctx context.Context, record *erpsync.Record) (string, error) {
	cfg, err := p.configs.FindEnabled(ctx, record.TenantID, record.EntityType, record.ERPType)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return "", err
		}
		cfg = nil
	}

	handler, err := p.handlers.Resolve(record, cfg)
	if err != nil {
		return "", err
	}
	db, err := p.conns.Get(ctx, record.TenantID)
	if err != nil {
		return "", err
	}
	return handler.Handle(ctx, db, record, cfg)
}

func (p *DispatchProcessor) complete(ctx context.Context, record *erpsync.Record, externalID string) bool {
	id := record.ID.String()
	updated, err := p.queue.Complete(ctx, record, externalID)
	if err != nil {
		p.logSettleError(id, "completed", err)
		return false
	}
	p.logger.Info("sync record delivered",
		zap.String("tenant_id", updated.TenantID.String()),
		zap.String("entity_type", updated.EntityType),
		zap.String("entity_id", updated.EntityID),
		zap.String("erp_type", updated.ERPType),
		zap.String("external_id", updated.ExternalID))

	p.notify(ctx, updated, webhook.EventSyncCompleted, map[string]any{
		"syncDataId": updated.ID.String(),
		"entityType": updated.EntityType,
		"entityId":   updated.EntityID,
		"erpType":    updated.ERPType,
		"externalId": updated.ExternalID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	return true
}

func (p *DispatchProcessor) fail(ctx context.Context, record *erpsync.Record, cause error) bool {
	p.logger.Warn("sync record delivery failed",
		zap.String("id", record.ID.String()),
		zap.String("entity_type", record.EntityType),
		zap.String("entity_id", record.EntityID),
		zap.Error(cause))

	id := record.ID.String()
	updated, err := p.queue.Fail(ctx, record, cause.Error())
	if err != nil {
		p.logSettleError(id, "failed", err)
		return false
	}
	if updated.Status != erpsync.StatusFailed {
		return true
	}
	p.notify(ctx, updated, webhook.EventSyncFailed, map[string]any{
		"syncDataId": updated.ID.String(),
		"entityType": updated.EntityType,
		"entityId":   updated.EntityID,
		"erpType":    updated.ERPType,
		"error":      updated.ErrorMessage,
		"retryCount": updated.RetryCount,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	return true
}

// logSettleError reports an outcome that could not be stored. A lost claim
// leaves the newer version queued; anything else leaves the record
// PROCESSING until its lease expires.
func (p *DispatchProcessor) logSettleError(id, outcome string, err error) {
	if errors.Is(err, erpsync.ErrClaimLost) {
		p.logger.Warn("sync record changed during delivery, outcome discarded",
			zap.String("id", id),
			zap.String("outcome", outcome))
		return
	}
	p.logger.Error("failed to store sync outcome",
		zap.String("id", id),
		zap.String("outcome", outcome),
		zap.Error(err))
}

func (p *DispatchProcessor) notify(ctx context.Context, record *erpsync.Record, event string, data map[string]any) {
	if p.notifier == nil {
		return
	}
	p.notifier.TriggerWebhooks(ctx, record.TenantID, event, data)
}
