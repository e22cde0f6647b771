package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/clinic/backend/internal/application/billing"
	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/currency"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/clinic/backend/internal/infrastructure/audit"
	"github.com/clinic/backend/internal/infrastructure/auth"
	"github.com/clinic/backend/internal/infrastructure/cache"
	"github.com/clinic/backend/internal/infrastructure/config"
	"github.com/clinic/backend/internal/infrastructure/event"
	"github.com/clinic/backend/internal/infrastructure/gateway"
	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/clinic/backend/internal/infrastructure/persistence"
	"github.com/clinic/backend/internal/infrastructure/rates"
	"github.com/clinic/backend/internal/infrastructure/scheduler"
	"github.com/clinic/backend/internal/infrastructure/telemetry"
	"github.com/clinic/backend/internal/interfaces/http/handler"
	"github.com/clinic/backend/internal/interfaces/http/middleware"
	"github.com/clinic/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Clinic Billing Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize OpenTelemetry. Disabled providers wrap the no-op globals,
	// so the rest of the wiring stays unconditional.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Continuous profiling. Must be running before span profiles are enabled.
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Profiler.Enabled,
		ServerAddress:       cfg.Profiler.ServerAddress,
		ApplicationName:     cfg.Profiler.AppName,
		Environment:         cfg.App.Env,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Error("Failed to enable span profiles", zap.Error(err))
		}
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Database query tracing and metrics ride on the same providers
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:       cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:         "postgresql",
		WithoutVariables: !cfg.Telemetry.DBLogFullSQL,
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.Enabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Initialize repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	accountRepo := persistence.NewGormPatientAccountRepository(db.DB)
	creditTxnRepo := persistence.NewGormCreditTransactionRepository(db.DB)
	auditRecordRepo := persistence.NewGormAuditRecordRepository(db.DB)
	uow := persistence.NewGormBillingUnitOfWork(db.DB)

	// Idempotency store: Redis when reachable, in-memory otherwise
	storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
	idempotencyStore, err := storeFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Currency converter seeded with fallback rates; the refresher replaces
	// them as soon as the provider answers.
	converter := currency.NewConverter(currency.RateTable{
		valueobject.USD: decimal.NewFromFloat(cfg.Rates.FallbackUSD),
		valueobject.EUR: decimal.NewFromFloat(cfg.Rates.FallbackEUR),
	})

	var rateSource currency.RateSource
	if cfg.Rates.ProviderURL != "" {
		rateSource, err = rates.NewHTTPSource(cfg.Rates.ProviderURL, cfg.Rates.APIKey, cfg.Rates.Timeout)
		if err != nil {
			log.Fatal("Failed to create rate source", zap.Error(err))
		}
	} else {
		log.Warn("No rate provider configured, serving static fallback rates")
		rateSource = rates.NewStaticSource(cfg.Rates.FallbackUSD, cfg.Rates.FallbackEUR)
	}

	refresher := rates.NewRefresher(converter, rateSource, rates.RefresherConfig{
		RefreshInterval: cfg.Rates.RefreshInterval,
		StaleThreshold:  cfg.Rates.StaleThreshold,
	}, log)
	if err := refresher.Start(ctx); err != nil {
		log.Fatal("Failed to start rate refresher", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := refresher.Stop(stopCtx); err != nil {
			log.Error("Error stopping rate refresher", zap.Error(err))
		}
	}()

	// Audit recorder buffers writes off the request path
	recorder := audit.NewAsyncRecorder(auditRecordRepo, audit.RecorderConfig{
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, log)
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Error("Error closing audit recorder", zap.Error(err))
		}
	}()
	alerts := audit.NewLogAlertNotifier(log)

	// Payment gateway for card and mobile money reversals
	var paymentGateway billing.PaymentGateway
	if cfg.Gateway.Enabled {
		adapter, err := gateway.NewHTTPAdapter(&gateway.Config{
			BaseURL:    cfg.Gateway.BaseURL,
			APIKey:     cfg.Gateway.APIKey,
			MerchantID: cfg.Gateway.MerchantID,
			Timeout:    cfg.Gateway.Timeout,
		})
		if err != nil {
			log.Fatal("Failed to create payment gateway adapter", zap.Error(err))
		}
		paymentGateway = adapter
		log.Info("Payment gateway enabled", zap.String("base_url", cfg.Gateway.BaseURL))
	} else {
		paymentGateway = gateway.NewDisabled()
		log.Info("Payment gateway disabled, gateway refunds will be rejected")
	}

	// Initialize event bus and subscribe the activity feed
	eventBus := event.NewInMemoryEventBus(log)
	activityLogger := event.NewIdempotentHandler(billingapp.NewInvoiceActivityLogger(log), idempotencyStore, log)
	eventBus.Subscribe(activityLogger, activityLogger.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eventBus.Stop(stopCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Business metrics with periodic outstanding-invoice collection
	businessMetrics, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:           meterProvider.Meter("clinic-billing"),
		Logger:          log,
		BillingProvider: telemetry.NewGormBillingMetricsProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize business metrics", zap.Error(err))
	}
	clinicProvider := telemetry.NewGormClinicProvider(db.DB)
	businessMetrics.StartPeriodicCollection(ctx, clinicProvider, 5*time.Minute)
	defer businessMetrics.Stop()

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT)
	invoiceService := billingapp.NewInvoiceService(invoiceRepo, recorder, eventBus, log)
	paymentService := billingapp.NewPaymentService(invoiceRepo, accountRepo, uow, converter, idempotencyStore, recorder, eventBus, businessMetrics)
	creditService := billingapp.NewCreditService(invoiceRepo, accountRepo, creditTxnRepo, uow, idempotencyStore, recorder, businessMetrics)
	refundService := billingapp.NewRefundService(invoiceRepo, paymentGateway, recorder, alerts, eventBus, businessMetrics, log)

	// Nightly overdue sweep
	if cfg.Scheduler.Enabled {
		cronHour, cronMinute, err := scheduler.ParseCronSchedule(cfg.Scheduler.OverdueCronSchedule)
		if err != nil {
			log.Warn("Invalid overdue cron schedule, using default",
				zap.String("schedule", cfg.Scheduler.OverdueCronSchedule),
				zap.Error(err),
			)
		}
		sweepScheduler := scheduler.NewOverdueCronScheduler(scheduler.OverdueCronSchedulerConfig{
			Enabled:           true,
			CronHour:          cronHour,
			CronMinute:        cronMinute,
			DailyCronSchedule: cfg.Scheduler.OverdueCronSchedule,
			JobTimeout:        cfg.Scheduler.JobTimeout,
		}, invoiceService, clinicProvider, scheduler.NewSweepJobRepository(db.DB), log)
		if err := sweepScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start overdue sweep scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sweepScheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping overdue sweep scheduler", zap.Error(err))
			}
		}()
	} else {
		log.Info("Overdue sweep scheduler disabled")
	}

	// Initialize handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	refundHandler := handler.NewRefundHandler(refundService)
	creditHandler := handler.NewCreditHandler(creditService)
	currencyHandler := handler.NewCurrencyHandler(converter)
	systemHandler := handler.NewSystemHandler()

	// Set gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Register custom validators
	middleware.SetupValidator()

	// Create gin engine
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Failed to set trusted proxies", zap.Error(err))
	}

	// Global middleware
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: cfg.HTTP.CORSAllowMethods,
		AllowHeaders: cfg.HTTP.CORSAllowHeaders,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Observability middleware
	engine.Use(middleware.HTTPMetricsWithMeter(meterProvider.Meter("http"), cfg.Telemetry.Enabled))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.Profiling())

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Resolve the clinic for every authenticated request
	r.Use(middleware.ClinicMiddleware())

	// Billing domain (invoices, payments, refunds, credits)
	billingRoutes := router.NewDomainGroup("billing", "/billing")
	// Invoice routes
	billingRoutes.POST("/invoices", invoiceHandler.Create)
	billingRoutes.GET("/invoices", invoiceHandler.List)
	billingRoutes.GET("/invoices/:id", invoiceHandler.GetByID)
	billingRoutes.POST("/invoices/:id/discounts", invoiceHandler.ApplyDiscount)
	billingRoutes.POST("/invoices/:id/write-offs", invoiceHandler.ApplyWriteOff)
	billingRoutes.POST("/invoices/:id/cancel", invoiceHandler.Cancel)
	billingRoutes.POST("/invoices/overdue/sweep", invoiceHandler.MarkOverdue)
	// Refund routes. Money-out endpoints carry their own stricter limiter.
	refundHandlers := []gin.HandlerFunc{refundHandler.Process}
	if cfg.HTTP.RefundRateLimitEnabled {
		refundLimiter := middleware.NewRateLimiter(cfg.HTTP.RefundRateLimitRequests, cfg.HTTP.RefundRateLimitWindow)
		refundHandlers = append([]gin.HandlerFunc{middleware.RefundRateLimit(refundLimiter)}, refundHandlers...)
		log.Info("Refund rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RefundRateLimitRequests),
			zap.Duration("window", cfg.HTTP.RefundRateLimitWindow),
		)
	}
	billingRoutes.POST("/invoices/:id/refunds", refundHandlers...)
	billingRoutes.POST("/invoices/:id/refunds/preview", refundHandler.Preview)
	// Payment routes
	billingRoutes.POST("/payments", paymentHandler.Allocate)
	billingRoutes.POST("/payments/preview", paymentHandler.Suggest)
	// Patient account routes
	billingRoutes.GET("/patients/:patient_id/invoices/outstanding", paymentHandler.ListOutstanding)
	billingRoutes.POST("/patients/:patient_id/credits", creditHandler.Grant)
	billingRoutes.GET("/patients/:patient_id/credits", creditHandler.ListTransactions)
	billingRoutes.POST("/patients/:patient_id/credits/apply", creditHandler.Apply)
	billingRoutes.GET("/patients/:patient_id/credits/balance", creditHandler.GetBalance)

	// Currency domain (conversion, change, cash parsing)
	currencyRoutes := router.NewDomainGroup("currency", "/currency")
	currencyRoutes.POST("/convert", currencyHandler.Convert)
	currencyRoutes.POST("/total", currencyHandler.Total)
	currencyRoutes.POST("/change", currencyHandler.Change)
	currencyRoutes.POST("/parse", currencyHandler.Parse)
	currencyRoutes.GET("/rates", currencyHandler.Rates)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(billingRoutes).
		Register(currencyRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
