package erpsync

import (
	"context"
	"sync"
	"time"

	"github.com/synchub/backend/internal/domain/erpsync"
	"go.uber.org/zap"
)

// WorkerConfig configures the background dispatch worker
type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultWorkerConfig returns the default polling settings
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:  30 * time.Second,
		BatchSize: DefaultProcessLimit,
	}
}

// Worker polls the queue and dispatches pending records across all tenants
type Worker struct {
	processor *DispatchProcessor
	config    WorkerConfig
	logger    *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker creates a worker
func NewWorker(processor *DispatchProcessor, config WorkerConfig, logger *zap.Logger) *Worker {
	if config.Interval <= 0 {
		config.Interval = DefaultWorkerConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProcessLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{processor: processor, config: config, logger: logger}
}

// Start launches the polling loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("sync worker started",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize))
	return nil
}

// Stop cancels the loop and waits for the current batch to finish
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.running = false
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("sync worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce processes one batch. Failed records return to PENDING and are
// picked up again on the next tick.
func (w *Worker) runOnce(ctx context.Context) {
	if _, err := w.processor.ProcessPending(ctx, erpsync.RecordFilter{}, w.config.BatchSize); err != nil {
		w.logger.Error("sync worker batch failed", zap.Error(err))
	}
}
