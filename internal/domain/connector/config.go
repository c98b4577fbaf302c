package connector

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// Direction states which way a connector moves data
type Direction string

const (
	DirectionPull          Direction = "PULL"
	DirectionPush          Direction = "PUSH"
	DirectionBidirectional Direction = "BIDIRECTIONAL"
)

// CanPull reports whether inbound pulls are allowed
func (d Direction) CanPull() bool {
	return d == DirectionPull || d == DirectionBidirectional
}

// CanPush reports whether outbound pushes are allowed
func (d Direction) CanPush() bool {
	return d == DirectionPush || d == DirectionBidirectional
}

// AuthType selects how requests authenticate against the external API
type AuthType string

const (
	AuthAPIKey                  AuthType = "API_KEY"
	AuthBearerToken             AuthType = "BEARER_TOKEN"
	AuthOAuth2ClientCredentials AuthType = "OAUTH2_CLIENT_CREDENTIALS"
	AuthBasic                   AuthType = "BASIC_AUTH"
	AuthCustomHeaders           AuthType = "CUSTOM_HEADERS"
	AuthNone                    AuthType = "NONE"
)

// API key placement
const (
	KeyLocationHeader = "header"
	KeyLocationQuery  = "query"
)

// AuthConfig carries the credentials of every strategy; each strategy
// reads only its own fields.
type AuthConfig struct {
	APIKey     string `json:"apiKey,omitempty"`
	Location   string `json:"location,omitempty"`
	HeaderName string `json:"headerName,omitempty"`
	ParamName  string `json:"paramName,omitempty"`

	Token string `json:"token,omitempty"`

	TokenURL     string `json:"tokenUrl,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	Headers map[string]string `json:"headers,omitempty"`
}

// Connector defaults
const (
	DefaultRequestsPerMinute = 10
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = time.Second
)

// RunStatus is the outcome of a pull, push or resource execution
type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunFailed  RunStatus = "FAILED"
)

// Config is a tenant's configured external HTTP API
type Config struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Name              string
	BaseURL           string
	Direction         Direction
	AuthType          AuthType
	Auth              AuthConfig
	Headers           map[string]string
	RequestsPerMinute int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	PullResources     []PullResource
	PushResources     []PushResource
	PullFieldMapping  []FieldMapping
	ValidationRules   []ValidationRule
	RequireValidation bool
	Active            bool
	LastPullSync      *time.Time
	LastPullStatus    RunStatus
	LastPushSync      *time.Time
	LastPushStatus    RunStatus
	LastSyncAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RequestDefaults are the settings a connector inherits when it leaves them unset
type RequestDefaults struct {
	RequestsPerMinute int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
}

// ApplyDefaults fills zero-valued request settings
func (c *Config) ApplyDefaults() {
	c.ApplyDefaultsFrom(RequestDefaults{})
}

// ApplyDefaultsFrom fills zero-valued request settings from d, falling back
// to the package defaults for anything d leaves unset.
func (c *Config) ApplyDefaultsFrom(d RequestDefaults) {
	if d.RequestsPerMinute <= 0 {
		d.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = DefaultRetryDelay
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.AuthType == "" {
		c.AuthType = AuthNone
	}
}

// Validate checks the parts of the configuration the engine depends on
func (c *Config) Validate() error {
	if c.TenantID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "tenant id is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid base URL %q", c.BaseURL))
	}
	switch c.Direction {
	case DirectionPull, DirectionPush, DirectionBidirectional:
	default:
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid direction %q", c.Direction))
	}
	for i := range c.PullResources {
		if err := c.PullResources[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.PushResources {
		if err := c.PushResources[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SelectPullResources returns the resource with the given id, or every
// active resource when resourceID is empty.
func (c *Config) SelectPullResources(resourceID string) []PullResource {
	selected := make([]PullResource, 0, len(c.PullResources))
	for _, r := range c.PullResources {
		if resourceID != "" {
			if r.ID == resourceID {
				selected = append(selected, r)
			}
			continue
		}
		if r.IsActive() {
			selected = append(selected, r)
		}
	}
	return selected
}

// FindPullResource looks a pull resource up by id
func (c *Config) FindPullResource(resourceID string) (PullResource, bool) {
	for _, r := range c.PullResources {
		if r.ID == resourceID {
			return r, true
		}
	}
	return PullResource{}, false
}

// FindPushResource returns the first push resource of a kind
func (c *Config) FindPushResource(kind Kind) (PushResource, bool) {
	for _, r := range c.PushResources {
		if r.Kind == kind {
			return r, true
		}
	}
	return PushResource{}, false
}

// RecordSync stamps the last pull or push outcome
func (c *Config) RecordSync(direction Direction, status RunStatus, at time.Time) {
	switch direction {
	case DirectionPull:
		c.LastPullSync = &at
		c.LastPullStatus = status
	case DirectionPush:
		c.LastPushSync = &at
		c.LastPushStatus = status
	}
	c.LastSyncAt = &at
	c.UpdatedAt = at
}

// Kind identifies the Hub entity a resource reads or writes
type Kind string

const (
	KindDocument      Kind = "DOCUMENTO"
	KindSupplier      Kind = "PROVEEDOR"
	KindProduct       Kind = "PRODUCTO"
	KindLedgerAccount Kind = "CUENTA_CONTABLE"
	KindCostCenter    Kind = "CENTRO_COSTO"
)

// PullResource describes one inbound endpoint
type PullResource struct {
	ID          string            `json:"id"`
	Name        string            `json:"nombre"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method,omitempty"`
	Kind        Kind              `json:"tipoRecurso"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
	Pagination  *Pagination       `json:"paginationConfig,omitempty"`
	DataPath    string            `json:"dataPath,omitempty"`
	Active      *bool             `json:"activo,omitempty"`
}

// IsActive treats an unset flag as active
func (r PullResource) IsActive() bool {
	return r.Active == nil || *r.Active
}

// HTTPMethod returns the configured method, GET by default
func (r PullResource) HTTPMethod() string {
	if r.Method == "" {
		return "GET"
	}
	return strings.ToUpper(r.Method)
}

// Validate checks the descriptor
func (r PullResource) Validate() error {
	if r.ID == "" || r.Endpoint == "" || r.Kind == "" {
		return shared.NewDomainError("INVALID_INPUT", "pull resources need id, endpoint and kind")
	}
	if r.Pagination != nil && r.Pagination.Enabled {
		return r.Pagination.Validate()
	}
	return nil
}

// PushResource describes one outbound endpoint
type PushResource struct {
	Kind         Kind              `json:"resourceType"`
	Endpoint     string            `json:"endpoint"`
	Method       string            `json:"method,omitempty"`
	FieldMapping map[string]string `json:"fieldMapping,omitempty"` // target path -> Hub path
	Filters      map[string]any    `json:"filters,omitempty"`
}

// HTTPMethod returns the configured method, POST by default
func (r PushResource) HTTPMethod() string {
	if r.Method == "" {
		return "POST"
	}
	return strings.ToUpper(r.Method)
}

// Validate checks the descriptor
func (r PushResource) Validate() error {
	if r.Kind == "" || r.Endpoint == "" {
		return shared.NewDomainError("INVALID_INPUT", "push resources need kind and endpoint")
	}
	return nil
}
