package main

// @title Invoice Follow-up API
// @version 1.0
// @description Runs payment reminder sequences inside Gulf business hours.
// @BasePath /api/v1

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/invoicefollowup/config"
	"github.com/jordanlanch/invoicefollowup/pkg/api/handlers"
	"github.com/jordanlanch/invoicefollowup/pkg/billing"
	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/cache"
	"github.com/jordanlanch/invoicefollowup/pkg/clock"
	"github.com/jordanlanch/invoicefollowup/pkg/compliance"
	"github.com/jordanlanch/invoicefollowup/pkg/database"
	"github.com/jordanlanch/invoicefollowup/pkg/email"
	"github.com/jordanlanch/invoicefollowup/pkg/followup"
	"github.com/jordanlanch/invoicefollowup/pkg/jobs"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/metrics"
	custommiddleware "github.com/jordanlanch/invoicefollowup/pkg/middleware"
	"github.com/jordanlanch/invoicefollowup/pkg/store"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	log := logger.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	if err := run(cfg, log); err != nil {
		log.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			Release:          "invoicefollowup@" + version,
			AttachStacktrace: true,
			BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
				// recipient addresses never leave the service
				event.User.Email = ""
				return event
			},
		})
		if err != nil {
			log.Warn("failed to initialize Sentry", "error", err)
		} else {
			log.Info("Sentry initialized", "environment", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Info("Sentry disabled (no DSN configured)")
	}

	ctx := context.Background()
	m := metrics.New()

	// Database
	dbCfg := database.Config{
		Driver: cfg.DBDriver,
		URL:    cfg.DatabaseURL,
		Pool: database.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLife,
			ConnMaxIdleTime: cfg.DBConnMaxIdle,
		},
	}
	if cfg.DBSSLMode != "" {
		dbCfg.SSL = &database.SSLConfig{
			Mode:         cfg.DBSSLMode,
			CertPath:     cfg.DBSSLCert,
			KeyPath:      cfg.DBSSLKey,
			RootCertPath: cfg.DBSSLRootCert,
		}
	}
	db, err := database.Open(ctx, dbCfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	st := store.New(db, log, m)

	// Redis is optional; without it locks are process-local and reports are not cached
	var (
		locker      followup.Locker = followup.NewLocalLocker(cfg.LockWait)
		reportCache handlers.ReportCache
		cachePinger handlers.Pinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewClient(cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()

		locker = cache.NewRedisLocker(redisClient, cache.LockConfig{TTL: cfg.LockTTL, Wait: cfg.LockWait}, log, m)
		reportCache = redisClient
		cachePinger = redisClient
	} else {
		log.Warn("REDIS_URL not set; using in-process execution locks")
	}

	// Calendar
	cal := businesstime.DefaultCalendar()
	if cfg.CalendarFile != "" {
		if cal, err = businesstime.LoadCalendarFile(cfg.CalendarFile); err != nil {
			return fmt.Errorf("failed to load calendar: %w", err)
		}
		log.Info("calendar loaded", "path", cfg.CalendarFile)
	}
	scheduler, err := businesstime.NewScheduler(cal)
	if err != nil {
		return err
	}

	// Executor
	dispatcher := email.NewDispatcher(email.Config{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}, log)
	pool := followup.NewDispatchPool(dispatcher, followup.PoolConfig{
		Workers:       cfg.DispatchWorkers,
		RatePerSecond: cfg.DispatchRatePerSecond,
		Burst:         cfg.DispatchBurst,
		Timeout:       cfg.DispatchTimeout,
	}, m)
	validator := compliance.NewValidator(nil)
	clk := clock.Real{}
	executor := followup.NewExecutor(st, pool, scheduler,
		followup.WithLogger(log),
		followup.WithMetrics(m),
		followup.WithClock(clk),
		followup.WithLocker(locker),
		followup.WithValidator(validator),
		followup.WithRetryPolicy(followup.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
			Multiplier:     2,
		}),
		followup.WithSweepLimits(cfg.SweepBatchSize, cfg.SweepConcurrency),
	)

	// Sweeper
	sweeper := jobs.NewSweeper(executor, jobs.SweeperConfig{
		Schedule: cfg.SweepSchedule,
		Timeout:  cfg.SweepTimeout,
	}, log, m, nil)
	if cfg.SweepEnabled {
		if err := sweeper.SetupJobs(); err != nil {
			return err
		}
		sweeper.Start()
	} else {
		log.Info("periodic sweep disabled; use POST /api/v1/sweeps")
	}

	// Webhooks
	payments := billing.NewService(&billing.StripeConfig{WebhookSecret: cfg.StripeWebhookSecret}, st, executor, log)
	var verifier *email.Verifier
	if cfg.SendGridWebhookPublicKey != "" {
		if verifier, err = email.NewVerifier(cfg.SendGridWebhookPublicKey); err != nil {
			return err
		}
	} else {
		log.Warn("SendGrid event webhook signature verification disabled")
	}

	e := newServer(cfg, log, m)
	rateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	rateLimiter.Skipper = func(c echo.Context) bool {
		path := c.Request().URL.Path
		return strings.HasPrefix(path, "/webhooks/") || path == "/health" || path == "/metrics"
	}
	defer rateLimiter.Stop()
	e.Use(rateLimiter.RateLimitMiddleware())

	healthHandler := handlers.NewHealthHandler(db, cachePinger, version)
	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	webhookHandler := handlers.NewWebhookHandler(payments, executor, verifier, log)
	e.POST("/webhooks/stripe", webhookHandler.HandleStripe)
	e.POST("/webhooks/sendgrid", webhookHandler.HandleSendGrid)

	v1 := e.Group("/api/v1")

	executionHandler := handlers.NewExecutionHandler(executor, log)
	v1.POST("/executions", executionHandler.Start)
	v1.POST("/executions/:id/continue", executionHandler.Continue)
	v1.POST("/executions/:id/stop", executionHandler.Stop)
	v1.POST("/executions/:id/resume", executionHandler.Resume)

	responseHandler := handlers.NewResponseHandler(executor, log)
	v1.POST("/responses", responseHandler.RecordResponse)

	sweepHandler := handlers.NewSweepHandler(sweeper, log)
	v1.POST("/sweeps", sweepHandler.RunSweep)

	analyticsHandler := handlers.NewAnalyticsHandler(executor, reportCache, cfg.AnalyticsCacheTTL, scheduler.Location(), log)
	v1.GET("/sequences/:id/analytics", analyticsHandler.GetSequenceAnalytics)

	scheduleHandler := handlers.NewScheduleHandler(scheduler, st, clk, log)
	v1.GET("/schedule/next-send-time", scheduleHandler.GetNextSendTime)
	v1.PUT("/organizations/:id/hours", scheduleHandler.SetOrganizationHours)

	complianceHandler := handlers.NewComplianceHandler(validator, log)
	v1.POST("/compliance/validate", complianceHandler.ValidateTone)

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Info("invoice follow-up API starting",
		"address", address,
		"rate_limit_rpm", cfg.RateLimitRequestsPerMinute,
		"sweep_schedule", cfg.SweepSchedule)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// in-flight sweeps finish before the database closes
	sweeper.Stop(shutdownCtx)

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}

func newServer(cfg *config.Config, log logger.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String())
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(m.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(custommiddleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit("2M"))

	return e
}
