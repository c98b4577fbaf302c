package erp

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Errors returned while resolving a handler
var (
	ErrNoHandler      = shared.NewDomainError("NO_HANDLER", "no ERP handler for entity type")
	ErrNotImplemented = shared.NewDomainError("NOT_IMPLEMENTED", "ERP handler not implemented")
)

// Handler writes one sync record into an ERP and returns the id the ERP
// assigned, or "" when the statement does not produce one.
type Handler interface {
	Handle(ctx context.Context, db *sql.DB, record *erpsync.Record, cfg *erpsync.EntityConfig) (string, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, db *sql.DB, record *erpsync.Record, cfg *erpsync.EntityConfig) (string, error)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, db *sql.DB, record *erpsync.Record, cfg *erpsync.EntityConfig) (string, error) {
	return f(ctx, db, record, cfg)
}

type handlerKey struct {
	entityType string
	erpType    string
}

// HandlerRegistry resolves the handler for a record. A configuration with
// a statement always wins over the built-in handlers.
type HandlerRegistry struct {
	mu         sync.RWMutex
	handlers   map[handlerKey]Handler
	configured Handler
}

// NewHandlerRegistry creates a registry whose configured-statement path is
// handled by configured.
func NewHandlerRegistry(configured Handler) *HandlerRegistry {
	return &HandlerRegistry{
		handlers:   make(map[handlerKey]Handler),
		configured: configured,
	}
}

// Register binds a handler to (entityType, erpType)
func (r *HandlerRegistry) Register(entityType, erpType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerKey{entityType, erpType}] = h
}

// Resolve picks the handler for record
func (r *HandlerRegistry) Resolve(record *erpsync.Record, cfg *erpsync.EntityConfig) (Handler, error) {
	if cfg.HasStatement() && r.configured != nil {
		return r.configured, nil
	}
	r.mu.RLock()
	h, ok := r.handlers[handlerKey{record.EntityType, record.ERPType}]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.NewDomainError(ErrNoHandler.Code,
			fmt.Sprintf("no handler for %s on %s", record.EntityType, record.ERPType))
	}
	return h, nil
}

// NotImplemented returns a handler that always fails with ErrNotImplemented
func NotImplemented(entityType, erpType string) Handler {
	return HandlerFunc(func(context.Context, *sql.DB, *erpsync.Record, *erpsync.EntityConfig) (string, error) {
		return "", shared.NewDomainError(ErrNotImplemented.Code,
			fmt.Sprintf("%s handler for %s is not implemented", entityType, erpType))
	})
}

// DefaultRegistry wires the built-in handlers
func DefaultRegistry(statementTimeout time.Duration, logger *zap.Logger) *HandlerRegistry {
	r := NewHandlerRegistry(NewConfiguredHandler(statementTimeout, logger))
	r.Register(erpsync.EntityPurchaseOrder, erpsync.ERPAxioma, NewAxiomaPurchaseOrderHandler(statementTimeout, logger))
	r.Register(erpsync.EntityPurchaseOrder, erpsync.ERPSoftland, NotImplemented(erpsync.EntityPurchaseOrder, erpsync.ERPSoftland))
	r.Register(erpsync.EntityReception, erpsync.ERPAxioma, NotImplemented(erpsync.EntityReception, erpsync.ERPAxioma))
	r.Register(erpsync.EntityReception, erpsync.ERPSoftland, NotImplemented(erpsync.EntityReception, erpsync.ERPSoftland))
	return r
}

func withStatementTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
