package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/domain/shared"
	connectorinfra "github.com/synchub/backend/internal/infrastructure/connector"
	"github.com/synchub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Paging limits shared by the list operations
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Errors raised before any request is made
var (
	ErrConnectorInactive  = shared.NewDomainError("CONNECTOR_INACTIVE", "connector is disabled")
	ErrDirectionMismatch  = shared.NewDomainError("DIRECTION_MISMATCH", "connector does not allow this direction")
	ErrNoResources        = shared.NewDomainError("NO_RESOURCES", "connector has no resources configured")
	ErrResourceNotFound   = shared.NewDomainError("RESOURCE_NOT_FOUND", "resource not found or inactive")
	ErrStagingNotFound    = shared.NewDomainError("STAGING_NOT_FOUND", "staging record not found")
	ErrValidationRejected = shared.NewDomainError("VALIDATION_FAILED", "record failed validation")
)

// Notifier fans an event out to the tenant's webhooks without blocking
type Notifier interface {
	TriggerWebhooks(ctx context.Context, tenantID uuid.UUID, event string, data map[string]any)
}

// ClientFactory builds connector clients that share one limiter registry,
// mapper and metrics set.
type ClientFactory struct {
	opts      connectorinfra.ClientOptions
	validator *connectorinfra.Validator
}

// NewClientFactory fills missing collaborators with defaults
func NewClientFactory(opts connectorinfra.ClientOptions) *ClientFactory {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Limiters == nil {
		opts.Limiters = connectorinfra.NewLimiterRegistry()
	}
	if opts.Mapper == nil {
		opts.Mapper = connectorinfra.NewMapper(connectorinfra.NewExpressionEngine(false), opts.Logger)
	}
	return &ClientFactory{
		opts:      opts,
		validator: connectorinfra.NewValidator(opts.Mapper.Expressions(), opts.Logger),
	}
}

// Client returns a client for cfg
func (f *ClientFactory) Client(cfg *connector.Config) (*connectorinfra.Client, error) {
	return connectorinfra.NewClient(cfg, f.opts)
}

// Mapper returns the shared field mapper
func (f *ClientFactory) Mapper() *connectorinfra.Mapper { return f.opts.Mapper }

// Validator returns the shared rule validator
func (f *ClientFactory) Validator() *connectorinfra.Validator { return f.validator }

// Metrics returns the shared instruments, possibly nil
func (f *ClientFactory) Metrics() *telemetry.Metrics { return f.opts.Metrics }

// connectors holds what pull, push and the connector service share
type connectors struct {
	configs  connector.ConfigRepository
	clients  *ClientFactory
	notifier Notifier
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// find loads a connector of the tenant, active or not
func (c *connectors) find(ctx context.Context, tenantID, id uuid.UUID) (*connector.Config, error) {
	cfg, err := c.configs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenantID != uuid.Nil && cfg.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return cfg, nil
}

// load loads an active connector of the tenant
func (c *connectors) load(ctx context.Context, tenantID, id uuid.UUID) (*connector.Config, error) {
	cfg, err := c.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, fmt.Errorf("%w: %s", ErrConnectorInactive, cfg.Name)
	}
	return cfg, nil
}

func (c *connectors) recordSync(ctx context.Context, cfg *connector.Config, direction connector.Direction, status connector.RunStatus) {
	if err := c.configs.RecordSync(ctx, cfg.ID, direction, status, time.Now()); err != nil {
		c.logger.Error("failed to record connector sync",
			zap.String("connector_id", cfg.ID.String()),
			zap.String("direction", string(direction)),
			zap.Error(err))
	}
}

func (c *connectors) notify(ctx context.Context, tenantID uuid.UUID, event string, data map[string]any) {
	if c.notifier == nil {
		return
	}
	c.notifier.TriggerWebhooks(ctx, tenantID, event, data)
}

// ConnectorService answers questions about a connector that move no data
type ConnectorService struct {
	connectors
}

// NewConnectorService creates the service
func NewConnectorService(configs connector.ConfigRepository, clients *ClientFactory, logger *zap.Logger) *ConnectorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorService{connectors{configs: configs, clients: clients, metrics: clients.Metrics(), logger: logger}}
}

// Get returns the tenant's connector
func (s *ConnectorService) Get(ctx context.Context, tenantID, id uuid.UUID) (*connector.Config, error) {
	return s.find(ctx, tenantID, id)
}

// TestConnection requests endpoint (the base URL when empty) once
func (s *ConnectorService) TestConnection(ctx context.Context, tenantID, id uuid.UUID, endpoint string) (*connectorinfra.ConnectionTestResult, error) {
	cfg, err := s.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.Client(cfg)
	if err != nil {
		return nil, err
	}
	result := client.TestConnection(ctx, endpoint)
	s.logger.Info("connector connection tested",
		zap.String("connector_id", cfg.ID.String()),
		zap.Bool("success", result.Success),
		zap.Int("status", result.StatusCode),
		zap.Int64("latency_ms", result.LatencyMs))
	return &result, nil
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

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
