// Package webhook signs and delivers event notifications to tenant
// endpoints and keeps the delivery log.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/domain/webhook"
	"github.com/synchub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Request headers set on every delivery
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"

	DefaultUserAgent = "SyncHub-Webhook/1.0"
	DefaultTimeout   = 30 * time.Second

	maxResponseRead = 64 << 10
)

// Envelope is the JSON body posted to subscribers
type Envelope struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Created string         `json:"created"`
	Data    map[string]any `json:"data"`
}

// DeliveryResult reports one attempt
type DeliveryResult struct {
	EventID        string `json:"eventId"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Success        bool   `json:"success"`
	RetryScheduled bool   `json:"retryScheduled"`
	Error          string `json:"error,omitempty"`
}

// DispatcherConfig configures deliveries
type DispatcherConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// Dispatcher delivers webhook events
type Dispatcher struct {
	webhooks  webhook.Repository
	logs      webhook.LogRepository
	retries   webhook.RetryRepository
	client    *http.Client
	userAgent string
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(
	webhooks webhook.Repository,
	logs webhook.LogRepository,
	retries webhook.RetryRepository,
	cfg DispatcherConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		webhooks:  webhooks,
		logs:      logs,
		retries:   retries,
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body
func VerifySignature(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewEventID returns evt_<unix millis>_<random base36 suffix>
func NewEventID(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			suffix[i] = idAlphabet[i]
			continue
		}
		suffix[i] = idAlphabet[n.Int64()]
	}
	return fmt.Sprintf("evt_%d_%s", now.UnixMilli(), suffix)
}

// SendWebhook delivers event to one webhook. Missing, inactive or
// unsubscribed webhooks are skipped and return a nil result.
func (d *Dispatcher) SendWebhook(ctx context.Context, webhookID uuid.UUID, event string, data map[string]any, attempt int) (*DeliveryResult, error) {
	hook, err := d.webhooks.FindByID(ctx, webhookID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			d.logger.Debug("webhook not found, skipping", zap.String("webhook_id", webhookID.String()))
			return nil, nil
		}
		return nil, err
	}
	if !hook.Active || !hook.Subscribes(event) {
		d.logger.Debug("webhook inactive or not subscribed, skipping",
			zap.String("webhook_id", webhookID.String()),
			zap.String("event", event))
		return nil, nil
	}
	return d.deliver(ctx, hook, NewEventID(d.now()), event, data, attempt)
}

// Redeliver re-sends a scheduled retry, keeping its event id
func (d *Dispatcher) Redeliver(ctx context.Context, hook *webhook.Webhook, retry *webhook.Retry) (*DeliveryResult, error) {
	return d.deliver(ctx, hook, retry.EventID, retry.Event, retry.Payload, retry.Attempt)
}

func (d *Dispatcher) deliver(ctx context.Context, hook *webhook.Webhook, eventID, event string, data map[string]any, attempt int) (*DeliveryResult, error) {
	envelope := Envelope{
		ID:      eventID,
		Event:   event,
		Created: d.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Data:    data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode webhook envelope: %w", err)
	}

	result := &DeliveryResult{EventID: eventID}
	entry := &webhook.Log{
		ID:        uuid.New(),
		WebhookID: hook.ID,
		TenantID:  hook.TenantID,
		EventID:   eventID,
		Event:     event,
		Payload:   envelopeMap(envelope),
		Attempts:  attempt + 1,
		CreatedAt: d.now(),
	}

	retryable := false
	status, respBody, sendErr := d.post(ctx, hook, event, body)
	if sendErr != nil {
		entry.Error = truncate(sendErr.Error(), webhook.MaxErrorLength)
		retryable = true
	} else {
		entry.StatusCode = status
		entry.Response = truncate(respBody, webhook.MaxResponseLength)
		entry.Success = status >= 200 && status < 300
		if !entry.Success {
			entry.Error = fmt.Sprintf("HTTP %d", status)
		}
		retryable = status >= 500
		if err := d.webhooks.TouchLastSent(ctx, hook.ID, d.now()); err != nil {
			d.logger.Warn("failed to update webhook last sent", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
		}
	}
	result.StatusCode = entry.StatusCode
	result.Success = entry.Success
	result.Error = entry.Error

	if err := d.logs.Create(ctx, entry); err != nil {
		d.logger.Error("failed to write webhook log", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
	}
	d.metrics.RecordWebhookDelivery(ctx, event, entry.Success)

	if retryable && attempt < webhook.MaxRetries {
		next := attempt + 1
		retry := &webhook.Retry{
			ID:            uuid.New(),
			WebhookID:     hook.ID,
			TenantID:      hook.TenantID,
			EventID:       eventID,
			Event:         event,
			Payload:       data,
			Attempt:       next,
			NextAttemptAt: d.now().Add(webhook.BackoffFor(next)),
			Status:        webhook.RetryPending,
			LastError:     entry.Error,
			CreatedAt:     d.now(),
			UpdatedAt:     d.now(),
		}
		if err := d.retries.Create(ctx, retry); err != nil {
			d.logger.Error("failed to schedule webhook retry", zap.String("event_id", eventID), zap.Error(err))
		} else {
			result.RetryScheduled = true
		}
	}

	fields := []zap.Field{
		zap.String("webhook_id", hook.ID.String()),
		zap.String("event", event),
		zap.String("event_id", eventID),
		zap.Int("attempt", attempt+1),
		zap.Int("status", entry.StatusCode),
	}
	if entry.Success {
		d.logger.Info("webhook delivered", fields...)
	} else {
		d.logger.Warn("webhook delivery failed", append(fields, zap.String("error", entry.Error), zap.Bool("retry_scheduled", result.RetryScheduled))...)
	}
	return result, nil
}

func (d *Dispatcher) post(ctx context.Context, hook *webhook.Webhook, event string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(hook.Secret, body))
	req.Header.Set(HeaderEvent, event)
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseRead))
	if err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, string(raw), nil
}

// TriggerWebhooks delivers event to every active webhook of the tenant
// subscribed to it. It returns immediately; deliveries run detached from
// ctx's cancellation and are drained by Wait.
func (d *Dispatcher) TriggerWebhooks(ctx context.Context, tenantID uuid.UUID, event string, data map[string]any) {
	detached := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		hooks, err := d.webhooks.FindActiveForEvent(detached, tenantID, event)
		if err != nil {
			d.logger.Error("failed to load webhooks", zap.String("tenant_id", tenantID.String()), zap.String("event", event), zap.Error(err))
			return
		}
		if len(hooks) == 0 {
			d.logger.Debug("no webhooks subscribed", zap.String("tenant_id", tenantID.String()), zap.String("event", event))
			return
		}
		for _, hook := range hooks {
			d.inflight.Add(1)
			go func(hook *webhook.Webhook) {
				defer d.inflight.Done()
				if _, err := d.deliver(detached, hook, NewEventID(d.now()), event, data, 0); err != nil {
					d.logger.Error("webhook delivery error", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
				}
			}(hook)
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx ends
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats summarizes the tenant's deliveries over the last days (default 7)
func (d *Dispatcher) GetStats(ctx context.Context, tenantID uuid.UUID, days int) (*webhook.Stats, error) {
	if days <= 0 {
		days = 7
	}
	stats, err := d.logs.Stats(ctx, tenantID, d.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	stats.Days = days
	return stats, nil
}

// ListLogs pages through the delivery log, newest first
func (d *Dispatcher) ListLogs(ctx context.Context, filter webhook.LogFilter, page, pageSize int) ([]*webhook.Log, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return d.logs.List(ctx, filter, page, pageSize)
}

// AvailableEvents lists the subscribable events
func (d *Dispatcher) AvailableEvents() []webhook.EventInfo {
	return webhook.AvailableEvents()
}

func envelopeMap(e Envelope) map[string]any {
	return map[string]any{
		"id":      e.ID,
		"event":   e.Event,
		"created": e.Created,
		"data":    e.Data,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
