// Package erp writes sync records into tenants' ERP databases over SQL
// Server.
package erp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // registers the "sqlserver" driver
	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/crypto"
	"go.uber.org/zap"
)

// Opener opens a database handle; tests substitute it
type Opener func(driverName, dsn string) (*sql.DB, error)

// PoolOptions configures a ConnectionPool
type PoolOptions struct {
	ConnectTimeout time.Duration
	Opener         Opener
	Logger         *zap.Logger
}

// ConnectionPool lazily opens one SQL Server handle per tenant from the
// tenant's active connection configuration and keeps it until Close.
type ConnectionPool struct {
	configs        erpsync.ConnectionConfigRepository
	cipher         *crypto.CredentialCipher
	connectTimeout time.Duration
	open           Opener
	logger         *zap.Logger

	// mu guards the maps only; dialing happens under the tenant's own lock
	mu      sync.Mutex
	conns   map[uuid.UUID]*sql.DB
	tenants map[uuid.UUID]*sync.Mutex
}

// NewConnectionPool creates an empty pool
func NewConnectionPool(configs erpsync.ConnectionConfigRepository, cipher *crypto.CredentialCipher, opts PoolOptions) *ConnectionPool {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Opener == nil {
		opts.Opener = sql.Open
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ConnectionPool{
		configs:        configs,
		cipher:         cipher,
		connectTimeout: opts.ConnectTimeout,
		open:           opts.Opener,
		logger:         opts.Logger,
		conns:          make(map[uuid.UUID]*sql.DB),
		tenants:        make(map[uuid.UUID]*sync.Mutex),
	}
}

// Get returns a live handle for the tenant. Cached handles are pinged and
// re-opened when the ping fails. Callers for the same tenant share one dial;
// a slow ERP only holds up its own tenant.
func (p *ConnectionPool) Get(ctx context.Context, tenantID uuid.UUID) (*sql.DB, error) {
	lock := p.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if db := p.cached(tenantID); db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		p.logger.Warn("cached ERP connection is dead, reconnecting",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		p.drop(tenantID, db)
	}

	cfg, err := p.configs.FindActive(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.WrapDomainError(shared.ErrConfiguration.Code,
				fmt.Sprintf("no active sync configuration for tenant %s", tenantID), err)
		}
		return nil, err
	}
	dsn, err := p.dsn(cfg)
	if err != nil {
		return nil, err
	}

	db, err := p.open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ERP connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to ERP %s/%s: %w", cfg.Host, cfg.Database, err)
	}

	p.mu.Lock()
	p.conns[tenantID] = db
	p.mu.Unlock()
	p.logger.Info("ERP connection established",
		zap.String("tenant_id", tenantID.String()),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))
	return db, nil
}

func (p *ConnectionPool) tenantLock(tenantID uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		p.tenants[tenantID] = lock
	}
	return lock
}

func (p *ConnectionPool) cached(tenantID uuid.UUID) *sql.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[tenantID]
}

// drop closes db and forgets it if it is still the tenant's handle
func (p *ConnectionPool) drop(tenantID uuid.UUID, db *sql.DB) {
	p.mu.Lock()
	if p.conns[tenantID] == db {
		delete(p.conns, tenantID)
	}
	p.mu.Unlock()
	_ = db.Close()
}

func (p *ConnectionPool) dsn(cfg *erpsync.ConnectionConfig) (string, error) {
	if p.cipher == nil {
		return "", shared.NewDomainError(shared.ErrConfiguration.Code, "SYNC_PASSWORD_KEY is not configured")
	}
	password, err := p.cipher.Decrypt(cfg.PasswordEncrypted)
	if err != nil {
		return "", shared.WrapDomainError(shared.ErrConfiguration.Code, "stored ERP password cannot be decrypted", err)
	}

	encrypt := "disable"
	if cfg.Encrypt {
		encrypt = "true"
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("encrypt", encrypt)
	q.Set("TrustServerCertificate", strconv.FormatBool(cfg.TrustServerCertificate))
	q.Set("connection timeout", strconv.Itoa(int(p.connectTimeout.Seconds())))
	q.Set("dial timeout", strconv.Itoa(int(p.connectTimeout.Seconds())))

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.EffectivePort()),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// Evict closes and forgets the tenant's handle so the next Get reads the
// configuration again. It waits for a dial already in flight for the tenant.
func (p *ConnectionPool) Evict(tenantID uuid.UUID) {
	lock := p.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()
	if db := p.cached(tenantID); db != nil {
		p.drop(tenantID, db)
	}
}

// Len returns the number of open handles
func (p *ConnectionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close releases every handle
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for tenantID, db := range p.conns {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ERP connection for tenant %s: %w", tenantID, err))
		}
		delete(p.conns, tenantID)
	}
	return errors.Join(errs...)
}
