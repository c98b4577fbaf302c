package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names delivered to subscribers
const (
	EventDocumentProcessed = "document.processed"
	EventDocumentFailed    = "document.failed"
	EventDocumentExported  = "document.exported"
	EventSyncCompleted     = "sync.completed"
	EventSyncFailed        = "sync.failed"
	EventExportCompleted   = "export.completed"
	EventExportFailed      = "export.failed"
)

// EventInfo documents one event for the catalogue endpoint
type EventInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AvailableEvents lists every event a webhook may subscribe to
func AvailableEvents() []EventInfo {
	return []EventInfo{
		{Name: EventDocumentProcessed, Description: "A document finished processing"},
		{Name: EventDocumentFailed, Description: "A document failed processing"},
		{Name: EventDocumentExported, Description: "A document was exported to an external system"},
		{Name: EventSyncCompleted, Description: "A synchronization finished successfully"},
		{Name: EventSyncFailed, Description: "A synchronization failed"},
		{Name: EventExportCompleted, Description: "A batch export finished successfully"},
		{Name: EventExportFailed, Description: "A batch export had failures"},
	}
}

// MaxRetries bounds redeliveries of one event to one webhook after the
// first attempt.
const MaxRetries = 3

// Webhook is a tenant-registered notification endpoint
type Webhook struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	URL        string
	Secret     string
	Events     []string
	Active     bool
	LastSentAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Subscribes reports whether the webhook wants event
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Log is one delivery attempt. Logs are never updated.
type Log struct {
	ID         uuid.UUID
	WebhookID  uuid.UUID
	TenantID   uuid.UUID
	EventID    string
	Event      string
	Payload    map[string]any
	StatusCode int
	Response   string
	Error      string
	Attempts   int
	Success    bool
	CreatedAt  time.Time
}

// Log field limits
const (
	MaxResponseLength = 5000
	MaxErrorLength    = 1000
)

// RetryStatus tracks a scheduled redelivery
type RetryStatus string

const (
	RetryPending    RetryStatus = "PENDING"
	RetryProcessing RetryStatus = "PROCESSING"
	RetryDone       RetryStatus = "DONE"
	RetryDropped    RetryStatus = "DROPPED"
)

// Retry is a persisted redelivery of a failed attempt
type Retry struct {
	ID            uuid.UUID
	WebhookID     uuid.UUID
	TenantID      uuid.UUID
	EventID       string
	Event         string
	Payload       map[string]any
	Attempt       int
	NextAttemptAt time.Time
	Status        RetryStatus
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BackoffFor returns the wait before retry number n: 1s, 2s, 4s
func BackoffFor(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(1<<uint(n-1)) * time.Second
}

// LogFilter narrows log queries
type LogFilter struct {
	TenantID  uuid.UUID
	WebhookID uuid.UUID
	Event     string
	Success   *bool
}

// EventStats counts deliveries of one event
type EventStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// Stats summarizes deliveries over a window
type Stats struct {
	Days        int                   `json:"days"`
	Total       int64                 `json:"total"`
	Successful  int64                 `json:"successful"`
	Failed      int64                 `json:"failed"`
	SuccessRate float64               `json:"successRate"`
	ByEvent     map[string]EventStats `json:"byEvent"`
}

// Repository persists webhooks
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Webhook, error)
	FindActiveForEvent(ctx context.Context, tenantID uuid.UUID, event string) ([]*Webhook, error)
	Save(ctx context.Context, w *Webhook) error
	TouchLastSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// LogRepository appends delivery attempts
type LogRepository interface {
	Create(ctx context.Context, log *Log) error
	List(ctx context.Context, filter LogFilter, page, pageSize int) ([]*Log, int64, error)
	Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*Stats, error)
}

// DefaultRetryLease bounds how long a claimed retry may stay PROCESSING
const DefaultRetryLease = 2 * time.Minute

// RetryRepository persists the redelivery schedule
type RetryRepository interface {
	Create(ctx context.Context, retry *Retry) error
	// FindDue returns pending retries whose time has come, oldest first.
	// PROCESSING retries untouched for longer than the lease are due again.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Retry, error)
	// Claim atomically moves a due retry to PROCESSING
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	// Finish moves a claimed retry to DONE or DROPPED, recording the last error if any
	Finish(ctx context.Context, id uuid.UUID, status RetryStatus, lastError string) error
	// DeleteDoneBefore prunes finished retries
	DeleteDoneBefore(ctx context.Context, before time.Time) (int64, error)
}
