package erpsync

import (
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// DefaultERPPort is the SQL Server listener port
const DefaultERPPort = 1433

// ConnectionConfig holds the relational endpoint of a tenant's ERP.
// PasswordEncrypted is only decrypted when a connection is opened.
type ConnectionConfig struct {
	ID                     uuid.UUID
	TenantID               uuid.UUID
	ERPType                string
	Host                   string
	Port                   int
	Database               string
	Username               string
	PasswordEncrypted      string
	Encrypt                bool
	TrustServerCertificate bool
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Validate checks the endpoint fields
func (c *ConnectionConfig) Validate() error {
	if c.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "tenant id is required")
	}
	if c.Host == "" || c.Database == "" || c.Username == "" {
		return shared.NewDomainError("INVALID_INPUT", "host, database and username are required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return shared.NewDomainError("INVALID_INPUT", "port out of range")
	}
	return nil
}

// EffectivePort returns the configured port or the SQL Server default
func (c *ConnectionConfig) EffectivePort() int {
	if c.Port == 0 {
		return DefaultERPPort
	}
	return c.Port
}
