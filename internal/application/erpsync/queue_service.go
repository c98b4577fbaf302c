// Package erpsync holds the use cases around the ERP sync queue: enqueueing
// Hub changes, inspecting the queue and dispatching records to ERPs.
package erpsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Default page and batch sizes
const (
	DefaultPendingLimit = 100
	DefaultPageSize     = 20
	MaxPageSize         = 100
)

// EnqueueInput describes one entity change
type EnqueueInput struct {
	TenantID     uuid.UUID
	EntityType   string
	EntityID     string
	ERPType      string
	Payload      erpsync.Payload
	Direction    erpsync.Direction
	SourceSystem string
	SourceUserID string
}

// EnqueueResult reports what an enqueue did
type EnqueueResult struct {
	Action erpsync.EnqueueAction
	Record *erpsync.Record
}

// BatchItemResult is the outcome of one item of a batch enqueue
type BatchItemResult struct {
	Index    int                   `json:"index"`
	EntityID string                `json:"entityId"`
	Action   erpsync.EnqueueAction `json:"action,omitempty"`
	RecordID *uuid.UUID            `json:"recordId,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// BatchResult aggregates a batch enqueue
type BatchResult struct {
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Skipped int               `json:"skipped"`
	Failed  int               `json:"failed"`
	Items   []BatchItemResult `json:"items"`
}

// QueueStats summarizes a tenant's queue
type QueueStats struct {
	Total    int64                    `json:"total"`
	ByStatus map[erpsync.Status]int64 `json:"byStatus"`
	Groups   []erpsync.StatusCount    `json:"groups"`
}

// HistoryResult is one page of queue history
type HistoryResult struct {
	Records  []*erpsync.Record
	Total    int64
	Page     int
	PageSize int
}

// QueueService manages the sync queue
type QueueService struct {
	records erpsync.RecordRepository
	logger  *zap.Logger
}

// NewQueueService creates a new queue service
func NewQueueService(records erpsync.RecordRepository, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{records: records, logger: logger}
}

// Enqueue creates or revises the record for an entity. A completed record
// whose payload did not change is left alone.
func (s *QueueService) Enqueue(ctx context.Context, in EnqueueInput) (*EnqueueResult, error) {
	key := erpsync.Key{TenantID: in.TenantID, EntityType: in.EntityType, EntityID: in.EntityID, ERPType: in.ERPType}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.records.FindByKey(ctx, key)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		record, err := erpsync.NewRecord(key, in.Payload, in.Direction, in.SourceSystem, in.SourceUserID)
		if err != nil {
			return nil, err
		}
		if err := s.records.Create(ctx, record); err != nil {
			if !errors.Is(err, shared.ErrAlreadyExists) {
				return nil, fmt.Errorf("create sync record: %w", err)
			}
			// a concurrent enqueue created the row first
			existing, err = s.records.FindByKey(ctx, key)
			if err != nil {
				return nil, err
			}
			return s.revise(ctx, existing, in)
		}
		s.logger.Debug("sync record created",
			zap.String("tenant_id", key.TenantID.String()),
			zap.String("entity_type", key.EntityType),
			zap.String("entity_id", key.EntityID),
			zap.String("erp_type", key.ERPType))
		return &EnqueueResult{Action: erpsync.ActionCreate, Record: record}, nil
	case err != nil:
		return nil, err
	}
	return s.revise(ctx, existing, in)
}

func (s *QueueService) revise(ctx context.Context, record *erpsync.Record, in EnqueueInput) (*EnqueueResult, error) {
	action, err := record.Revise(in.Payload, in.SourceUserID)
	if err != nil {
		return nil, err
	}
	if action == erpsync.ActionSkip {
		return &EnqueueResult{Action: action, Record: record}, nil
	}
	if err := s.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save sync record: %w", err)
	}
	return &EnqueueResult{Action: action, Record: record}, nil
}

// EnqueueBatch enqueues every item for the tenant. A failing item does not
// stop the rest.
func (s *QueueService) EnqueueBatch(ctx context.Context, tenantID uuid.UUID, items []EnqueueInput) *BatchResult {
	result := &BatchResult{Items: make([]BatchItemResult, 0, len(items))}
	for i, item := range items {
		item.TenantID = tenantID
		entry := BatchItemResult{Index: i, EntityID: item.EntityID}

		res, err := s.Enqueue(ctx, item)
		if err != nil {
			entry.Error = err.Error()
			result.Failed++
			result.Items = append(result.Items, entry)
			continue
		}
		id := res.Record.ID
		entry.Action = res.Action
		entry.RecordID = &id
		switch res.Action {
		case erpsync.ActionCreate:
			result.Created++
		case erpsync.ActionUpdate:
			result.Updated++
		case erpsync.ActionSkip:
			result.Skipped++
		}
		result.Items = append(result.Items, entry)
	}
	return result
}

// GetPending returns deliverable records oldest first
func (s *QueueService) GetPending(ctx context.Context, filter erpsync.RecordFilter, limit int) ([]*erpsync.Record, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return s.records.FindPending(ctx, filter, limit)
}

// MarkProcessing claims a pending record. It returns
// erpsync.ErrAlreadyClaimed when the record is no longer PENDING.
func (s *QueueService) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := s.Claim(ctx, id, 0)
	return err
}

// Claim moves a record to PROCESSING and returns the row as claimed. A
// version above zero must match the stored one, so a revision that landed
// after the caller read the record makes the claim fail.
func (s *QueueService) Claim(ctx context.Context, id uuid.UUID, version int) (*erpsync.Record, error) {
	return s.records.Claim(ctx, id, version)
}

// Complete settles a claimed record as delivered. It returns
// erpsync.ErrClaimLost when the record was revised or reclaimed since the
// claim, leaving the newer state untouched.
func (s *QueueService) Complete(ctx context.Context, claimed *erpsync.Record, externalID string) (*erpsync.Record, error) {
	version := claimed.Version
	if err := claimed.Complete(externalID); err != nil {
		return nil, err
	}
	if err := s.records.Settle(ctx, claimed, version); err != nil {
		return nil, fmt.Errorf("settle sync record: %w", err)
	}
	return claimed, nil
}

// Fail settles a claimed record as failed, with the same claim check as Complete
func (s *QueueService) Fail(ctx context.Context, claimed *erpsync.Record, message string) (*erpsync.Record, error) {
	version := claimed.Version
	if err := claimed.Fail(message); err != nil {
		return nil, err
	}
	if err := s.records.Settle(ctx, claimed, version); err != nil {
		return nil, fmt.Errorf("settle sync record: %w", err)
	}
	if claimed.Status == erpsync.StatusFailed {
		s.logger.Warn("sync record exhausted its attempts",
			zap.String("id", claimed.ID.String()),
			zap.String("entity_type", claimed.EntityType),
			zap.String("entity_id", claimed.EntityID),
			zap.String("error", message))
	}
	return claimed, nil
}

// MarkCompleted records a delivery performed outside the engine. A PENDING
// record is claimed first; version, when above zero, is the payload version
// the caller delivered. An empty externalID keeps the id the ERP assigned
// earlier.
func (s *QueueService) MarkCompleted(ctx context.Context, id uuid.UUID, externalID string, version int) (*erpsync.Record, error) {
	record, err := s.claimForOutcome(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if externalID == "" {
		externalID = record.ExternalID
	}
	return s.Complete(ctx, record, externalID)
}

// MarkFailed records a failed delivery performed outside the engine
func (s *QueueService) MarkFailed(ctx context.Context, id uuid.UUID, message string, version int) (*erpsync.Record, error) {
	record, err := s.claimForOutcome(ctx, id, version)
	if err != nil {
		return nil, err
	}
	return s.Fail(ctx, record, message)
}

func (s *QueueService) claimForOutcome(ctx context.Context, id uuid.UUID, version int) (*erpsync.Record, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if version > 0 && record.Version != version {
		return nil, erpsync.ErrClaimLost
	}
	if record.Status != erpsync.StatusPending {
		// PROCESSING settles as is; terminal states fail the transition
		return record, nil
	}
	claimed, err := s.records.Claim(ctx, id, record.Version)
	if errors.Is(err, erpsync.ErrAlreadyClaimed) {
		return nil, erpsync.ErrClaimLost
	}
	return claimed, err
}

// RetryFailed puts the tenant's FAILED records back in the queue
func (s *QueueService) RetryFailed(ctx context.Context, tenantID uuid.UUID, entityType string) (int64, error) {
	n, err := s.records.ResetFailed(ctx, tenantID, entityType)
	if err != nil {
		return 0, err
	}
	s.logger.Info("failed sync records reset",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entity_type", entityType),
		zap.Int64("count", n))
	return n, nil
}

// GetStatus returns the latest record for an entity, optionally for one ERP
func (s *QueueService) GetStatus(ctx context.Context, tenantID uuid.UUID, entityType, entityID, erpType string) (*erpsync.Record, error) {
	return s.records.FindLatestForEntity(ctx, tenantID, entityType, entityID, erpType)
}

// GetAllStatuses returns one record per ERP for an entity
func (s *QueueService) GetAllStatuses(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]*erpsync.Record, error) {
	return s.records.FindAllForEntity(ctx, tenantID, entityType, entityID)
}

// GetStats counts the tenant's records by entity type, ERP and status
func (s *QueueService) GetStats(ctx context.Context, tenantID uuid.UUID) (*QueueStats, error) {
	groups, err := s.records.CountGrouped(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{ByStatus: make(map[erpsync.Status]int64), Groups: groups}
	for _, st := range erpsync.AllStatuses() {
		stats.ByStatus[st] = 0
	}
	for _, g := range groups {
		stats.ByStatus[g.Status] += g.Count
		stats.Total += g.Count
	}
	return stats, nil
}

// GetHistory pages through the tenant's records, newest first
func (s *QueueService) GetHistory(ctx context.Context, filter erpsync.RecordFilter, page, pageSize int) (*HistoryResult, error) {
	page, pageSize = normalizePage(page, pageSize)
	records, total, err := s.records.FindHistory(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Records: records, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetByID returns a tenant's record
func (s *QueueService) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*erpsync.Record, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return record, nil
}

// Delete removes a tenant's record
func (s *QueueService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if _, err := s.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	return s.records.Delete(ctx, id)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
