package erpsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/crypto"
	"go.uber.org/zap"
)

// EntityConfigInput carries the editable fields of an entity configuration
type EntityConfigInput struct {
	EntityType      string
	ERPType         string
	SourceTable     string
	PrimaryKey      string
	FieldMapping    map[string]string
	InsertStatement string
	UpdateStatement string
	Direction       erpsync.Direction
	Enabled         *bool
}

// SeedResult is the outcome of seeding one configuration
type SeedResult struct {
	EntityType string     `json:"entityType"`
	Action     string     `json:"action"`
	ID         *uuid.UUID `json:"id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// EntityConfigService manages per-tenant entity configurations
type EntityConfigService struct {
	configs erpsync.EntityConfigRepository
	logger  *zap.Logger
}

// NewEntityConfigService creates the service
func NewEntityConfigService(configs erpsync.EntityConfigRepository, logger *zap.Logger) *EntityConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityConfigService{configs: configs, logger: logger}
}

// List returns every configuration of the tenant
func (s *EntityConfigService) List(ctx context.Context, tenantID uuid.UUID) ([]*erpsync.EntityConfig, error) {
	return s.configs.FindAll(ctx, tenantID)
}

// Get returns one of the tenant's configurations
func (s *EntityConfigService) Get(ctx context.Context, tenantID, id uuid.UUID) (*erpsync.EntityConfig, error) {
	cfg, err := s.configs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return cfg, nil
}

// Create stores a new configuration
func (s *EntityConfigService) Create(ctx context.Context, tenantID uuid.UUID, in EntityConfigInput) (*erpsync.EntityConfig, error) {
	cfg := erpsync.NewEntityConfig(tenantID, in.EntityType, in.ERPType)
	applyEntityConfigInput(cfg, in)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Update replaces the editable fields of a configuration
func (s *EntityConfigService) Update(ctx context.Context, tenantID, id uuid.UUID, in EntityConfigInput) (*erpsync.EntityConfig, error) {
	cfg, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if in.EntityType != "" {
		cfg.EntityType = in.EntityType
	}
	if in.ERPType != "" {
		cfg.ERPType = in.ERPType
	}
	applyEntityConfigInput(cfg, in)
	cfg.UpdatedAt = time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Delete removes a configuration
func (s *EntityConfigService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.configs.Delete(ctx, id)
}

func applyEntityConfigInput(cfg *erpsync.EntityConfig, in EntityConfigInput) {
	cfg.SourceTable = in.SourceTable
	cfg.PrimaryKey = in.PrimaryKey
	if in.FieldMapping != nil {
		cfg.FieldMapping = in.FieldMapping
	}
	cfg.InsertStatement = strings.TrimSpace(in.InsertStatement)
	cfg.UpdateStatement = strings.TrimSpace(in.UpdateStatement)
	if in.Direction != "" {
		cfg.Direction = in.Direction
	}
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
}

// AxiomaDefaults returns the stock Axioma configurations
func AxiomaDefaults() []EntityConfigInput {
	return []EntityConfigInput{
		{
			EntityType:  erpsync.EntityPurchaseOrder,
			ERPType:     erpsync.ERPAxioma,
			SourceTable: "dbo.OrdenesCom",
			PrimaryKey:  "ID",
			Direction:   erpsync.DirectionOut,
			InsertStatement: `INSERT INTO dbo.OrdenesCom (NumeroOC, FechaOC, ProveedorCUIT, ProveedorNombre, Subtotal, Impuestos, Total, Estado, FechaImportacion)
OUTPUT INSERTED.ID VALUES (@numero, @fecha, @proveedorCuit, @proveedorNombre, @subtotal, @impuestos, @total, 'PENDIENTE', GETDATE())`,
			UpdateStatement: `UPDATE dbo.OrdenesCom SET ProveedorCUIT = @proveedorCuit, ProveedorNombre = @proveedorNombre,
Subtotal = @subtotal, Impuestos = @impuestos, Total = @total, Estado = @estado WHERE NumeroOC = @numero`,
			FieldMapping: map[string]string{
				"numero":                "numero",
				"fecha":                 "fecha",
				"proveedor.cuit":        "proveedorCuit",
				"proveedor.razonSocial": "proveedorNombre",
				"subtotal":              "subtotal",
				"impuestos":             "impuestos",
				"total":                 "total",
				"estado":                "estado",
			},
		},
		{
			EntityType:  erpsync.EntityReception,
			ERPType:     erpsync.ERPAxioma,
			SourceTable: "dbo.Recepciones",
			PrimaryKey:  "ID",
			Direction:   erpsync.DirectionOut,
			InsertStatement: `INSERT INTO dbo.Recepciones (NumeroRecepcion, OrdenCompraID, FechaRecepcion, Estado, FechaImportacion)
OUTPUT INSERTED.ID VALUES (@numero, @ordenCompraId, @fecha, 'RECIBIDO', GETDATE())`,
			FieldMapping: map[string]string{
				"numero":        "numero",
				"ordenCompraId": "ordenCompraId",
				"fecha":         "fecha",
			},
		},
	}
}

// SeedAxioma creates or overwrites the stock Axioma configurations
func (s *EntityConfigService) SeedAxioma(ctx context.Context, tenantID uuid.UUID) ([]SeedResult, error) {
	existing, err := s.configs.FindAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*erpsync.EntityConfig, len(existing))
	for _, cfg := range existing {
		byKey[cfg.EntityType+"/"+cfg.ERPType] = cfg
	}

	enabled := true
	var results []SeedResult
	for _, in := range AxiomaDefaults() {
		in.Enabled = &enabled
		cfg, ok := byKey[in.EntityType+"/"+in.ERPType]
		if !ok {
			cfg = erpsync.NewEntityConfig(tenantID, in.EntityType, in.ERPType)
		}
		applyEntityConfigInput(cfg, in)
		cfg.UpdatedAt = time.Now()

		result := SeedResult{EntityType: in.EntityType, Action: "OK"}
		if err := s.configs.Save(ctx, cfg); err != nil {
			result.Action = "ERROR"
			result.Error = err.Error()
		} else {
			id := cfg.ID
			result.ID = &id
		}
		results = append(results, result)
	}
	s.logger.Info("axioma configurations seeded", zap.String("tenant_id", tenantID.String()))
	return results, nil
}

// ConnectionInput carries the editable fields of an ERP connection. An
// empty Password keeps the stored one.
type ConnectionInput struct {
	ERPType                string
	Host                   string
	Port                   int
	Database               string
	Username               string
	Password               string
	Encrypt                bool
	TrustServerCertificate bool
	Active                 bool
}

// ConnectionEvictor drops cached handles after the settings change
type ConnectionEvictor interface {
	Evict(tenantID uuid.UUID)
}

// ConnectionService manages a tenant's ERP connection settings
type ConnectionService struct {
	connections erpsync.ConnectionConfigRepository
	cipher      *crypto.CredentialCipher
	evictor     ConnectionEvictor
	logger      *zap.Logger
}

// NewConnectionService creates the service. cipher may be nil when no
// password key is configured, in which case Save fails. evictor may be nil.
func NewConnectionService(
	connections erpsync.ConnectionConfigRepository,
	cipher *crypto.CredentialCipher,
	evictor ConnectionEvictor,
	logger *zap.Logger,
) *ConnectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionService{connections: connections, cipher: cipher, evictor: evictor, logger: logger}
}

// Get returns the tenant's connection
func (s *ConnectionService) Get(ctx context.Context, tenantID uuid.UUID) (*erpsync.ConnectionConfig, error) {
	return s.connections.FindByTenant(ctx, tenantID)
}

// Save creates or replaces the tenant's connection, encrypting the password
func (s *ConnectionService) Save(ctx context.Context, tenantID uuid.UUID, in ConnectionInput) (*erpsync.ConnectionConfig, error) {
	if s.cipher == nil {
		return nil, shared.NewDomainError(shared.ErrConfiguration.Code, "SYNC_PASSWORD_KEY is not configured")
	}

	cfg, err := s.connections.FindByTenant(ctx, tenantID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		if in.Password == "" {
			return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "password is required")
		}
		cfg = &erpsync.ConnectionConfig{ID: uuid.New(), TenantID: tenantID, CreatedAt: time.Now()}
	case err != nil:
		return nil, err
	}

	cfg.ERPType = in.ERPType
	if cfg.ERPType == "" {
		cfg.ERPType = erpsync.ERPAxioma
	}
	cfg.Host = in.Host
	cfg.Port = in.Port
	cfg.Database = in.Database
	cfg.Username = in.Username
	cfg.Encrypt = in.Encrypt
	cfg.TrustServerCertificate = in.TrustServerCertificate
	cfg.Active = in.Active
	cfg.UpdatedAt = time.Now()
	if in.Password != "" {
		encrypted, err := s.cipher.Encrypt(in.Password)
		if err != nil {
			return nil, fmt.Errorf("encrypt ERP password: %w", err)
		}
		cfg.PasswordEncrypted = encrypted
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.connections.Save(ctx, cfg); err != nil {
		return nil, err
	}
	if s.evictor != nil {
		s.evictor.Evict(tenantID)
	}
	s.logger.Info("ERP connection saved",
		zap.String("tenant_id", tenantID.String()),
		zap.String("erp_type", cfg.ERPType),
		zap.String("host", cfg.Host))
	return cfg, nil
}
