package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/domain/webhook"
	"go.uber.org/zap"
)

// RetryProcessorConfig configures the retry poller
type RetryProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	GuardTTL         time.Duration
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultRetryProcessorConfig returns the default settings
func DefaultRetryProcessorConfig() RetryProcessorConfig {
	return RetryProcessorConfig{
		PollInterval:     time.Second,
		BatchSize:        50,
		GuardTTL:         24 * time.Hour,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// RetryProcessor redelivers scheduled webhook retries when they fall due
type RetryProcessor struct {
	dispatcher *Dispatcher
	webhooks   webhook.Repository
	retries    webhook.RetryRepository
	guard      shared.IdempotencyStore
	config     RetryProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetryProcessor creates the processor. guard may be nil.
func NewRetryProcessor(
	dispatcher *Dispatcher,
	webhooks webhook.Repository,
	retries webhook.RetryRepository,
	guard shared.IdempotencyStore,
	config RetryProcessorConfig,
	logger *zap.Logger,
) *RetryProcessor {
	defaults := DefaultRetryProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.GuardTTL <= 0 {
		config.GuardTTL = defaults.GuardTTL
	}
	if config.CleanupRetention <= 0 {
		config.CleanupRetention = defaults.CleanupRetention
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryProcessor{
		dispatcher: dispatcher,
		webhooks:   webhooks,
		retries:    retries,
		guard:      guard,
		config:     config,
		logger:     logger,
	}
}

// Start launches the poll and cleanup loops
func (p *RetryProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(2)
	go p.pollLoop(ctx)
	go p.cleanupLoop(ctx)

	p.logger.Info("webhook retry processor started",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("batch_size", p.config.BatchSize))
	return nil
}

// Stop cancels the loops and waits for them to exit
func (p *RetryProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("webhook retry processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RetryProcessor) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessDue(ctx); err != nil {
				p.logger.Error("failed to process webhook retries", zap.Error(err))
			}
		}
	}
}

func (p *RetryProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.retries.DeleteDoneBefore(ctx, time.Now().Add(-p.config.CleanupRetention))
			if err != nil {
				p.logger.Error("failed to prune webhook retries", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Info("pruned webhook retries", zap.Int64("deleted", n))
			}
		}
	}
}

// ProcessDue redelivers every due retry this instance manages to claim and
// returns how many were sent.
func (p *RetryProcessor) ProcessDue(ctx context.Context) (int, error) {
	due, err := p.retries.FindDue(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, retry := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := p.retries.Claim(ctx, retry.ID)
		if err != nil {
			p.logger.Error("failed to claim webhook retry", zap.String("retry_id", retry.ID.String()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if p.redeliver(ctx, retry) {
			sent++
		}
	}
	return sent, nil
}

func (p *RetryProcessor) redeliver(ctx context.Context, retry *webhook.Retry) bool {
	// A retry found in PROCESSING was abandoned by a worker that already set
	// the guard key, so the guard would suppress it forever.
	if retry.Status == webhook.RetryProcessing {
		p.logger.Warn("reclaiming abandoned webhook retry",
			zap.String("retry_id", retry.ID.String()),
			zap.String("event_id", retry.EventID),
			zap.Int("attempt", retry.Attempt))
	} else if p.guard != nil {
		key := fmt.Sprintf("%s:%s:%d", retry.EventID, retry.WebhookID, retry.Attempt)
		fresh, err := p.guard.MarkProcessed(ctx, key, p.config.GuardTTL)
		if err != nil {
			p.logger.Warn("delivery guard unavailable, sending anyway", zap.String("retry_id", retry.ID.String()), zap.Error(err))
		} else if !fresh {
			p.finish(ctx, retry, webhook.RetryDropped, "duplicate delivery suppressed")
			return false
		}
	}

	hook, err := p.webhooks.FindByID(ctx, retry.WebhookID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			p.finish(ctx, retry, webhook.RetryDropped, "webhook deleted")
			return false
		}
		p.finish(ctx, retry, webhook.RetryDropped, err.Error())
		return false
	}
	if !hook.Active || !hook.Subscribes(retry.Event) {
		p.finish(ctx, retry, webhook.RetryDropped, "webhook inactive or unsubscribed")
		return false
	}

	result, err := p.dispatcher.Redeliver(ctx, hook, retry)
	if err != nil {
		p.finish(ctx, retry, webhook.RetryDropped, err.Error())
		return false
	}
	p.finish(ctx, retry, webhook.RetryDone, result.Error)
	return true
}

func (p *RetryProcessor) finish(ctx context.Context, retry *webhook.Retry, status webhook.RetryStatus, lastError string) {
	if err := p.retries.Finish(ctx, retry.ID, status, lastError); err != nil {
		p.logger.Error("failed to finish webhook retry",
			zap.String("retry_id", retry.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
