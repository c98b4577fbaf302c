package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	syncapp "github.com/synchub/backend/internal/application/erpsync"
	"github.com/synchub/backend/internal/application/integration"
	webhookapp "github.com/synchub/backend/internal/application/webhook"
	"github.com/synchub/backend/internal/domain/connector"
	"github.com/synchub/backend/internal/infrastructure/cache"
	"github.com/synchub/backend/internal/infrastructure/config"
	connectorinfra "github.com/synchub/backend/internal/infrastructure/connector"
	"github.com/synchub/backend/internal/infrastructure/crypto"
	"github.com/synchub/backend/internal/infrastructure/erp"
	"github.com/synchub/backend/internal/infrastructure/logger"
	"github.com/synchub/backend/internal/infrastructure/persistence"
	"github.com/synchub/backend/internal/infrastructure/storage"
	"github.com/synchub/backend/internal/infrastructure/telemetry"
	"github.com/synchub/backend/internal/interfaces/http/handler"
	"github.com/synchub/backend/internal/interfaces/http/middleware"
	"github.com/synchub/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Telemetry first so every later component sees the global providers
	tp, err := telemetry.Setup(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}, logger.Component(log, "telemetry"))
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	logs, err := telemetry.NewLogProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, logger.Component(log, "telemetry"))
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer func() {
		if err := logs.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down log export", zap.Error(err))
		}
	}()
	log = logs.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatal("Failed to create metrics", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbSystem := "postgresql"
		if cfg.Database.Driver == "sqlite" {
			dbSystem = "sqlite"
		}
		if err := telemetry.RegisterDBTracing(db.DB, dbSystem, log); err != nil {
			log.Warn("Failed to enable database tracing", zap.Error(err))
		}
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}

	var cipher *crypto.CredentialCipher
	if cfg.Encryption.PasswordKey != "" {
		cipher, err = crypto.NewCredentialCipher(cfg.Encryption.PasswordKey)
		if err != nil {
			log.Fatal("Invalid credential key", zap.Error(err))
		}
	} else {
		log.Warn("SYNC_PASSWORD_KEY not set; ERP connection passwords cannot be stored or decrypted")
	}

	// Repositories
	syncRecordRepo := persistence.NewGormSyncRecordRepository(db.DB).WithProcessingLease(cfg.Sync.ProcessingLease)
	entityConfigRepo := persistence.NewGormEntityConfigRepository(db.DB)
	connectionRepo := persistence.NewGormConnectionConfigRepository(db.DB)
	connectorRepo := persistence.NewGormConnectorConfigRepository(db.DB)
	stagingRepo := persistence.NewGormStagingRepository(db.DB)
	pullLogRepo := persistence.NewGormPullLogRepository(db.DB)
	exportLogRepo := persistence.NewGormExportLogRepository(db.DB)
	documentRepo := persistence.NewGormDocumentRepository(db.DB)
	masterRepo := persistence.NewGormMasterParameterRepository(db.DB)
	webhookRepo := persistence.NewGormWebhookRepository(db.DB)
	webhookLogRepo := persistence.NewGormWebhookLogRepository(db.DB)
	webhookRetryRepo := persistence.NewGormWebhookRetryRepository(db.DB).WithLease(cfg.Webhook.RetryLease)

	// Webhooks
	dispatcher := webhookapp.NewDispatcher(webhookRepo, webhookLogRepo, webhookRetryRepo, webhookapp.DispatcherConfig{
		Timeout:   cfg.Webhook.Timeout,
		UserAgent: cfg.Webhook.UserAgent,
	}, metrics, logger.Component(log, "webhook"))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Wait(ctx); err != nil {
			log.Warn("Webhook deliveries still in flight at shutdown", zap.Error(err))
		}
	}()

	if cfg.Webhook.RetryEnabled {
		guard, err := cache.NewDeliveryGuard(cfg.Redis, false, log)
		if err != nil {
			log.Fatal("Failed to create webhook delivery guard", zap.Error(err))
		}
		defer guard.Close()

		retryProcessor := webhookapp.NewRetryProcessor(dispatcher, webhookRepo, webhookRetryRepo, guard, webhookapp.RetryProcessorConfig{
			PollInterval:     cfg.Webhook.RetryPollInterval,
			BatchSize:        cfg.Webhook.RetryBatchSize,
			GuardTTL:         cfg.Webhook.DeliveryGuardTTL,
			CleanupRetention: cfg.Webhook.RetryRetention,
		}, logger.Component(log, "webhook-retry"))
		if err := retryProcessor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start webhook retry processor", zap.Error(err))
		}
		defer func() {
			if err := retryProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping webhook retry processor", zap.Error(err))
			}
		}()
	}

	// ERP dispatch
	pool := erp.NewConnectionPool(connectionRepo, cipher, erp.PoolOptions{
		ConnectTimeout: cfg.Sync.ConnectTimeout,
		Logger:         logger.Component(log, "erp-pool"),
	})
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error("Error closing ERP connections", zap.Error(err))
		}
	}()
	erpHandlers := erp.DefaultRegistry(cfg.Sync.StatementTimeout, logger.Component(log, "erp"))

	queueService := syncapp.NewQueueService(syncRecordRepo, logger.Component(log, "sync-queue"))
	entityConfigService := syncapp.NewEntityConfigService(entityConfigRepo, log)
	connectionService := syncapp.NewConnectionService(connectionRepo, cipher, pool, log)
	processor := syncapp.NewDispatchProcessor(
		queueService, entityConfigRepo, pool, erpHandlers, dispatcher, metrics, logger.Component(log, "dispatch"),
	)

	if cfg.Sync.ProcessorEnabled {
		worker := syncapp.NewWorker(processor, syncapp.WorkerConfig{
			Interval:  cfg.Sync.PollInterval,
			BatchSize: cfg.Sync.BatchSize,
		}, logger.Component(log, "dispatch-worker"))
		if err := worker.Start(context.Background()); err != nil {
			log.Fatal("Failed to start dispatch worker", zap.Error(err))
		}
		defer func() {
			if err := worker.Stop(context.Background()); err != nil {
				log.Error("Error stopping dispatch worker", zap.Error(err))
			}
		}()
	}

	// API connectors
	var fileStore integration.FileStore
	switch cfg.Storage.Type {
	case "s3":
		s3Store, err := storage.NewS3DocumentStore(cfg.Storage, logger.Component(log, "storage"))
		if err != nil {
			log.Fatal("Failed to create object storage", zap.Error(err))
		}
		fileStore = s3Store
	default:
		fileStore = storage.NewMemoryDocumentStore()
	}
	attachments := integration.NewAttachmentFetcher(fileStore, nil, cfg.Storage.MaxFileSize, logger.Component(log, "attachments"))

	limiters := connectorinfra.NewLimiterRegistry()
	defer limiters.Close()
	connectorLog := logger.Component(log, "connector")
	clients := integration.NewClientFactory(connectorinfra.ClientOptions{
		Limiters:  limiters,
		Mapper:    connectorinfra.NewMapper(connectorinfra.NewExpressionEngine(cfg.Connector.AllowCustomExpressions), connectorLog),
		Metrics:   metrics,
		Logger:    connectorLog,
		PageDelay: cfg.Connector.PageDelay,
		Defaults: connector.RequestDefaults{
			RequestsPerMinute: cfg.Connector.RequestsPerMinute,
			Timeout:           cfg.Connector.Timeout,
			MaxRetries:        cfg.Connector.MaxRetries,
			RetryDelay:        cfg.Connector.RetryDelay,
		},
	})
	kinds := integration.DefaultKindRegistry(documentRepo, masterRepo, attachments, log)

	connectorService := integration.NewConnectorService(connectorRepo, clients, connectorLog)
	pullService := integration.NewPullService(connectorRepo, stagingRepo, pullLogRepo, kinds, clients, dispatcher, connectorLog)
	pushService := integration.NewPushService(connectorRepo, exportLogRepo, kinds, clients, dispatcher, connectorLog)

	// HTTP handlers
	healthHandler := handler.NewHealthHandler(cfg.App.Name, version, sqlDB)
	syncDataHandler := handler.NewSyncDataHandler(queueService, processor).WithOperationTimeout(cfg.HTTP.OperationTimeout)
	syncConfigHandler := handler.NewSyncConfigHandler(entityConfigService, connectionService)
	connectorHandler := handler.NewConnectorHandler(connectorService, pullService, pushService).WithOperationTimeout(cfg.HTTP.OperationTimeout)
	webhookHandler := handler.NewWebhookHandler(dispatcher)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// 1. Tracing - root span for the request
	// 2. RequestID - generate/propagate request ID
	// 3. Recovery - catch panics
	// 4. Logger - log requests
	// 5. Metrics - per-route request counters
	// 6. Security headers, CORS and body limit
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(metrics))
	engine.Use(middleware.APIHeaders())
	engine.Use(middleware.CORS(middleware.CORSConfig{
		Origins: cfg.HTTP.CORSAllowOrigins,
		Methods: cfg.HTTP.CORSAllowMethods,
		Headers: cfg.HTTP.CORSAllowHeaders,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Root health check for load balancers
	engine.GET("/health", healthHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.TenantMiddleware(), middleware.TracingAttributeInjector(), middleware.SpanErrorMarker())
	r.Register(handler.HealthRoutes(healthHandler)).
		Register(handler.SyncDataRoutes(syncDataHandler)).
		Register(handler.EntityConfigRoutes(syncConfigHandler)).
		Register(handler.ConnectionRoutes(syncConfigHandler)).
		Register(handler.ConnectorRoutes(connectorHandler)).
		Register(handler.WebhookRoutes(webhookHandler))
	r.Setup()

	for _, route := range r.Routes() {
		log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
