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
	partnerapp "github.com/retail/ledger/internal/application/partner"
	salesapp "github.com/retail/ledger/internal/application/sales"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/auth"
	"github.com/retail/ledger/internal/infrastructure/cache"
	"github.com/retail/ledger/internal/infrastructure/config"
	"github.com/retail/ledger/internal/infrastructure/event"
	"github.com/retail/ledger/internal/infrastructure/logger"
	"github.com/retail/ledger/internal/infrastructure/notification"
	"github.com/retail/ledger/internal/infrastructure/persistence"
	"github.com/retail/ledger/internal/infrastructure/scheduler"
	"github.com/retail/ledger/internal/infrastructure/storage"
	"github.com/retail/ledger/internal/infrastructure/telemetry"
	"github.com/retail/ledger/internal/interfaces/http/handler"
	"github.com/retail/ledger/internal/interfaces/http/middleware"
	"github.com/retail/ledger/internal/interfaces/http/router"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meterProvider.Meter("ledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              cfg.Telemetry.ProfilingEnabled,
		ServerAddress:        cfg.Telemetry.ProfilingServerAddress,
		ApplicationName:      cfg.Telemetry.ServiceName,
		Environment:          cfg.App.Env,
		MutexProfileFraction: 5,
		BlockProfileRate:     5,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Error("Failed to link spans to profiles", zap.Error(err))
		}
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.DBTraceEnabled
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	dbTracing.DBName = cfg.Database.DBName
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	catalog := persistence.NewGormProductCatalog(db.DB)

	// Application services
	retry := shared.RetryPolicy{MaxRetries: cfg.Ledger.MaxRetries, Backoff: cfg.Ledger.RetryBackoff}
	gate := partner.NewSalesAuthorizationGate(cfg.Credit.MinLimit())

	invoiceService := salesapp.NewInvoiceService(invoiceRepo, customerRepo, catalog, gate, log,
		salesapp.WithConfig(salesapp.InvoiceServiceConfig{
			OverpaymentPolicy: sales.OverpaymentPolicy(cfg.Ledger.OverpaymentPolicy),
			MinorUnitScale:    cfg.Ledger.MinorUnitScale,
			Retry:             retry,
			SweepBatch:        cfg.Ledger.OverdueSweepBatch,
		}),
	)
	invoiceService.SetLedgerMetrics(ledgerMetrics)
	customerService := partnerapp.NewCustomerService(customerRepo, gate, log, partnerapp.WithRetryPolicy(retry))

	// Event bus: invoice events feed the credit engine and customer notifications
	eventBus := event.NewInMemoryEventBus(log)
	customerService.SetEventPublisher(eventBus)

	// Invoice events are written to the outbox with the invoice and redelivered
	// until every consumer took them
	var outboxProcessor *event.OutboxProcessor
	if cfg.Event.OutboxEnabled {
		serializer := event.NewLedgerEventSerializer()
		invoiceRepo.SetOutboxEventSaver(event.NewOutboxPublisher(serializer))

		outboxCfg := event.DefaultOutboxProcessorConfig()
		outboxCfg.BatchSize = cfg.Event.OutboxBatchSize
		outboxCfg.PollInterval = cfg.Event.OutboxPollInterval
		outboxCfg.PendingGrace = cfg.Event.OutboxPendingGrace
		outboxCfg.RetryBackoff = cfg.Event.OutboxRetryBackoff
		outboxCfg.CleanupRetention = cfg.Event.OutboxRetention
		outboxProcessor, err = event.NewOutboxProcessor(persistence.NewGormOutboxRepository(db.DB), eventBus, serializer, outboxCfg, log)
		if err != nil {
			log.Fatal("Invalid outbox configuration", zap.Error(err))
		}
		invoiceService.SetEventPublisher(outboxProcessor)
	} else {
		invoiceService.SetEventPublisher(eventBus)
	}

	idempotencyStore, err := cache.NewIdempotencyStore(ctx, cfg.Event, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()
	idempotency := shared.IdempotencyConfig{Enabled: cfg.Event.IdempotencyEnabled, TTL: cfg.Event.IdempotencyTTL}

	paymentHandler := partnerapp.NewPaymentRecordedHandler(customerRepo, log)
	paymentHandler.SetEventPublisher(eventBus)
	paymentHandler.SetLedgerMetrics(ledgerMetrics)
	paymentHandler.SetRetryPolicy(retry)
	createdHandler := partnerapp.NewInvoiceCreatedHandler(customerRepo, log)
	createdHandler.SetEventPublisher(eventBus)
	createdHandler.SetRetryPolicy(retry)
	cancelledHandler := partnerapp.NewInvoiceCancelledHandler(customerRepo, log)
	cancelledHandler.SetEventPublisher(eventBus)
	cancelledHandler.SetRetryPolicy(retry)

	eventBus.Subscribe(event.NewIdempotentHandler("customer-credit", paymentHandler, idempotencyStore, idempotency, log))
	eventBus.Subscribe(event.NewIdempotentHandler("customer-purchases", createdHandler, idempotencyStore, idempotency, log))
	eventBus.Subscribe(event.NewIdempotentHandler("customer-cancellations", cancelledHandler, idempotencyStore, idempotency, log))

	dispatcher, err := notification.NewDispatcher(cfg.Kafka, log)
	if err != nil {
		log.Fatal("Failed to initialize notification dispatcher", zap.Error(err))
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.Error("Error closing notification dispatcher", zap.Error(err))
		}
	}()
	eventBus.Subscribe(event.NewIdempotentHandler("customer-notifications",
		salesapp.NewNotificationHandler(dispatcher, log), idempotencyStore, idempotency, log))

	// Receipt archive
	if cfg.Storage.Enabled {
		receipts, err := storage.NewS3ReceiptStore(cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Invalid receipt storage configuration", zap.Error(err))
		}
		if err := receipts.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare receipt bucket", zap.Error(err))
		}
		eventBus.Subscribe(event.NewIdempotentHandler("invoice-receipts",
			salesapp.NewReceiptArchiveHandler(invoiceRepo, receipts, cfg.Storage.Prefix, log), idempotencyStore, idempotency, log))
		log.Info("Receipt archive enabled", zap.String("bucket", receipts.Bucket()))
	}

	// Consumers are subscribed, so redelivery can start
	if outboxProcessor != nil {
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}

	// Overdue sweep
	var sweeper *scheduler.OverdueSweeper
	if cfg.Ledger.OverdueSweepEnabled {
		sweepCfg := scheduler.DefaultOverdueSweeperConfig()
		sweepCfg.Interval = cfg.Ledger.OverdueSweepInterval
		sweeper, err = scheduler.NewOverdueSweeper(sweepCfg, invoiceService, log)
		if err != nil {
			log.Fatal("Invalid overdue sweep configuration", zap.Error(err))
		}
		if err := sweeper.Start(ctx); err != nil {
			log.Fatal("Failed to start overdue sweeper", zap.Error(err))
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	routerCfg := router.DefaultConfig()
	routerCfg.ServiceName = cfg.Telemetry.ServiceName
	routerCfg.TrustedProxies = cfg.HTTP.TrustedProxies
	routerCfg.CORS.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		routerCfg.CORS.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		routerCfg.CORS.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	routerCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	routerCfg.RateLimitRPS = cfg.HTTP.RateLimitRPS
	routerCfg.RateLimitBurst = cfg.HTTP.RateLimitBurst
	routerCfg.TracingEnabled = tracerProvider.IsEnabled()
	routerCfg.TracerProvider = otel.GetTracerProvider()
	if cfg.Auth.JWTSecret != "" {
		routerCfg.Tenant.Tokens = auth.NewTokenVerifier(cfg.Auth)
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, db)
	engine, err := router.NewRouter(routerCfg, log,
		router.WithHealth(systemHandler.Health),
		router.WithMetrics(middleware.NewHTTPMetrics()),
	).
		Register(handler.NewInvoiceHandler(invoiceService)).
		Register(handler.NewCustomerHandler(customerService)).
		Setup()
	if err != nil {
		log.Fatal("Failed to set up router", zap.Error(err))
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error("Overdue sweeper did not stop cleanly", zap.Error(err))
		}
	}
	if outboxProcessor != nil {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			log.Error("Outbox processor did not stop cleanly", zap.Error(err))
		}
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
