package erpsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

const (
	// MaxAttempts bounds how many failed deliveries a record absorbs before
	// it is parked as FAILED.
	MaxAttempts = 3

	DefaultSourceSystem = "HUB"
)

// EnqueueAction describes what an enqueue did to the queue
type EnqueueAction string

const (
	ActionCreate EnqueueAction = "CREATE"
	ActionUpdate EnqueueAction = "UPDATE"
	ActionSkip   EnqueueAction = "SKIP"
)

// Payload is the opaque entity snapshot carried by a record
type Payload map[string]any

// Hash returns the hex SHA-256 of the payload's JSON encoding.
// encoding/json sorts map keys, so equal payloads hash equally.
func (p Payload) Hash() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Record is an outbox entry describing one Hub entity awaiting delivery
// to an external ERP.
type Record struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	EntityType   string
	EntityID     string
	ERPType      string
	Payload      Payload
	PayloadHash  string
	Direction    Direction
	SourceSystem string
	SourceUserID string
	Status       Status
	ExternalID   string
	Version      int
	// ClaimSeq counts claims; a delivery only settles while it still holds
	// the claim it started with
	ClaimSeq     int
	RetryCount   int
	ErrorMessage string
	SyncedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key identifies a record within a tenant
type Key struct {
	TenantID   uuid.UUID
	EntityType string
	EntityID   string
	ERPType    string
}

// Validate checks the identifying fields
func (k Key) Validate() error {
	if k.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "tenant id is required")
	}
	if k.EntityType == "" || k.EntityID == "" || k.ERPType == "" {
		return shared.NewDomainError("INVALID_INPUT", "entityType, entityId and erpType are required")
	}
	return nil
}

// NewRecord creates a PENDING record at version 1
func NewRecord(key Key, payload Payload, direction Direction, sourceSystem, sourceUserID string) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	hash, err := payload.Hash()
	if err != nil {
		return nil, err
	}
	if direction == "" {
		direction = DirectionOut
	}
	if !direction.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid direction %q", direction))
	}
	if sourceSystem == "" {
		sourceSystem = DefaultSourceSystem
	}
	now := time.Now()
	return &Record{
		ID:           uuid.New(),
		TenantID:     key.TenantID,
		EntityType:   key.EntityType,
		EntityID:     key.EntityID,
		ERPType:      key.ERPType,
		Payload:      payload,
		PayloadHash:  hash,
		Direction:    direction,
		SourceSystem: sourceSystem,
		SourceUserID: sourceUserID,
		Status:       StatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Key returns the record's identifying tuple
func (r *Record) Key() Key {
	return Key{TenantID: r.TenantID, EntityType: r.EntityType, EntityID: r.EntityID, ERPType: r.ERPType}
}

// Revise replaces the payload of an existing record. Unchanged payloads of
// a completed record are skipped; everything else bumps the version and
// puts the record back in the queue.
func (r *Record) Revise(payload Payload, sourceUserID string) (EnqueueAction, error) {
	hash, err := payload.Hash()
	if err != nil {
		return "", err
	}
	if hash == r.PayloadHash && r.Status == StatusCompleted {
		return ActionSkip, nil
	}
	r.Payload = payload
	r.PayloadHash = hash
	r.Version++
	r.Status = StatusPending
	r.RetryCount = 0
	r.ErrorMessage = ""
	if sourceUserID != "" {
		r.SourceUserID = sourceUserID
	}
	r.UpdatedAt = time.Now()
	return ActionUpdate, nil
}

func (r *Record) transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("sync record %s cannot move from %s to %s", r.ID, r.Status, next))
	}
	r.Status = next
	r.UpdatedAt = time.Now()
	return nil
}

// MarkProcessing moves a pending record into processing
func (r *Record) MarkProcessing() error {
	if r.Status != StatusPending {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("sync record %s is %s, not PENDING", r.ID, r.Status))
	}
	return r.transition(StatusProcessing)
}

// Complete records a successful delivery
func (r *Record) Complete(externalID string) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	now := r.UpdatedAt
	r.ExternalID = externalID
	r.ErrorMessage = ""
	r.SyncedAt = &now
	return nil
}

// Fail records a failed delivery. The record returns to PENDING for the
// next poll until MaxAttempts failures have accumulated.
func (r *Record) Fail(message string) error {
	next := StatusPending
	if r.RetryCount+1 >= MaxAttempts {
		next = StatusFailed
	}
	if err := r.transition(next); err != nil {
		return err
	}
	r.RetryCount++
	r.ErrorMessage = message
	return nil
}

// ResetForRetry puts a FAILED record back in the queue with a fresh budget
func (r *Record) ResetForRetry() error {
	if r.Status != StatusFailed {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("sync record %s is %s, only FAILED records can be retried", r.ID, r.Status))
	}
	r.Status = StatusPending
	r.RetryCount = 0
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now()
	return nil
}

// IsDeliverable reports whether the processor may pick the record up
func (r *Record) IsDeliverable() bool {
	return r.Status == StatusPending && r.RetryCount < MaxAttempts
}
