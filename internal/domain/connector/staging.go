package connector

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// ValidationStatus is the outcome of validating a staged record
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "VALID"
	ValidationInvalid ValidationStatus = "INVALID"
)

// StagingStatus tracks a staged record through approval
type StagingStatus string

const (
	StagingPending  StagingStatus = "PENDING"
	StagingImported StagingStatus = "IMPORTED"
)

// StagingRecord holds a pulled record until someone approves it
type StagingRecord struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ConnectorID      uuid.UUID
	ResourceID       string
	Kind             Kind
	RawData          map[string]any
	TransformedData  map[string]any
	ValidationStatus ValidationStatus
	ValidationErrors []ValidationError
	Status           StagingStatus
	ValidatedBy      string
	ValidatedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewStagingRecord stages a record with the result of validating it
func NewStagingRecord(cfg *Config, resource PullResource, raw, transformed map[string]any, errs []ValidationError) *StagingRecord {
	status := ValidationValid
	if len(errs) > 0 {
		status = ValidationInvalid
	}
	now := time.Now()
	return &StagingRecord{
		ID:               uuid.New(),
		TenantID:         cfg.TenantID,
		ConnectorID:      cfg.ID,
		ResourceID:       resource.ID,
		Kind:             resource.Kind,
		RawData:          raw,
		TransformedData:  transformed,
		ValidationStatus: status,
		ValidationErrors: errs,
		Status:           StagingPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// CanImport reports whether the record may be approved
func (s *StagingRecord) CanImport() error {
	if s.Status != StagingPending {
		return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("staging record %s was already imported", s.ID))
	}
	if s.ValidationStatus != ValidationValid {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("staging record %s is not valid", s.ID))
	}
	return nil
}

// MarkImported stamps the approver
func (s *StagingRecord) MarkImported(validatedBy string) error {
	if err := s.CanImport(); err != nil {
		return err
	}
	now := time.Now()
	s.Status = StagingImported
	s.ValidatedBy = validatedBy
	s.ValidatedAt = &now
	s.UpdatedAt = now
	return nil
}
