package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig holds the OTLP log export settings
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
}

// LogProvider owns the SDK logger provider that zap records are bridged into.
// provider is nil when log export is disabled.
type LogProvider struct {
	provider    *sdklog.LoggerProvider
	serviceName string
	logger      *zap.Logger
}

// NewLogProvider exports log records to the collector over OTLP gRPC and
// installs the provider globally.
func NewLogProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LogProvider, error) {
	if !cfg.Enabled {
		logger.Info("OTEL log export disabled")
		return &LogProvider{serviceName: cfg.ServiceName, logger: logger}, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	lp, err := newLogProvider(cfg.ServiceName, sdklog.NewBatchProcessor(exporter), logger)
	if err != nil {
		return nil, err
	}
	global.SetLoggerProvider(lp.provider)

	logger.Info("OTEL log export initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.String("service_name", cfg.ServiceName),
	)
	return lp, nil
}

func newLogProvider(serviceName string, processor sdklog.Processor, logger *zap.Logger) (*LogProvider, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}
	return &LogProvider{
		provider: sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(processor),
		),
		serviceName: serviceName,
		logger:      logger,
	}, nil
}

// Enabled reports whether records leave the process
func (lp *LogProvider) Enabled() bool {
	return lp != nil && lp.provider != nil
}

// Bridge returns a logger writing to base's outputs and to the collector.
// Entries below level are kept local. With export disabled base is
// returned as is.
func (lp *LogProvider) Bridge(base *zap.Logger, level zapcore.Level) *zap.Logger {
	if !lp.Enabled() {
		return base
	}
	otelCore := &levelFilterCore{
		Core:     otelzap.NewCore(lp.serviceName, otelzap.WithLoggerProvider(lp.provider)),
		minLevel: level,
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelCore)
	}))
}

// ForceFlush exports everything still buffered in the batch processor
func (lp *LogProvider) ForceFlush(ctx context.Context) error {
	if !lp.Enabled() {
		return nil
	}
	return lp.provider.ForceFlush(ctx)
}

// Shutdown flushes pending records and stops the provider
func (lp *LogProvider) Shutdown(ctx context.Context) error {
	if !lp.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := lp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown logger provider: %w", err)
	}
	return nil
}

// levelFilterCore adds a minimum level to the otelzap core, which has none.
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), minLevel: c.minLevel}
}
