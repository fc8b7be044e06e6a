package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	_ "github.com/lib/pq" // PostgreSQL driver

	"rulegov/internal/approval"
	"rulegov/internal/audit"
	"rulegov/internal/auth"
	"rulegov/internal/catalog"
	"rulegov/internal/config"
	"rulegov/internal/constants"
	"rulegov/internal/database"
	"rulegov/internal/events"
	"rulegov/internal/logger"
	"rulegov/internal/ruleset"
	"rulegov/pkg/circuitbreaker"
	"rulegov/pkg/health"
	"rulegov/pkg/metrics"
	"rulegov/pkg/middleware"
	"rulegov/pkg/ratelimit"
	"rulegov/pkg/retry"
	"rulegov/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	db             *sql.DB
	redisClient    *redis.Client
	producer       events.Producer
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "governance-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	connector := database.NewConnector(a.config.Database.Postgres, a.logger)
	db, err := connector.Open(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		dir := a.config.Database.MigrationsDir
		if dir == "" {
			dir = "migrations"
		}
		if err := database.RunMigrations(db, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.logger.InfowCtx(ctx, "Database migrations applied", "dir", dir)
	}

	if a.config.Auth.CapabilityCache {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", a.config.Database.Redis.Host, a.config.Database.Redis.Port),
			Password: a.config.Database.Redis.Password,
			DB:       a.config.Database.Redis.DB,
		})
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("governance-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			RPS:             a.config.RateLimit.RPS,
			Burst:           a.config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.Middleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	auditor := audit.NewRecorder()
	catalogRepo := catalog.NewRepository(a.db)
	rulesetRepo := ruleset.NewRepository(a.db)
	approvalRepo := approval.NewRepository(a.db)
	auditRepo := audit.NewRepository(a.db)

	stores := map[approval.EntityType]approval.EntityStore{
		approval.EntityRuleVersion:    catalog.NewVersionStore(catalogRepo),
		approval.EntityRuleSetVersion: ruleset.NewVersionStore(rulesetRepo),
	}

	approvalOpts := []approval.ServiceOption{}
	if a.config.Events.Enabled {
		producer := events.NewKafkaProducer(a.config.Events.Kafka)
		a.producer = producer

		breaker := circuitbreaker.NewWrapper(a.breakerConfig("lifecycle-events"))
		notifier := events.NewNotifier(producer, breaker, a.retryPolicy(), a.logger)
		approvalOpts = append(approvalOpts, approval.WithNotifier(notifier))
		a.logger.InfowCtx(context.Background(), "Lifecycle event publishing enabled",
			"topic", a.config.Events.Kafka.LifecycleTopic)
	}

	catalogSvc := catalog.NewService(a.db, catalogRepo, auditor, a.logger)
	rulesetSvc := ruleset.NewService(a.db, rulesetRepo, auditor, a.logger)
	approvalSvc := approval.NewService(a.db, approvalRepo, auditor, stores, a.logger, approvalOpts...)
	auditSvc := audit.NewService(auditRepo)

	verifier := auth.NewVerifier(a.config.Auth.JWTSecret)
	capCache := auth.NewCapabilityCache(a.redisClient, a.logger)

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(verifier, capCache, a.logger))

	catalog.NewHandler(catalogSvc, a.logger).RegisterRoutes(api)
	ruleset.NewHandler(rulesetSvc, a.logger).RegisterRoutes(api)
	approval.NewHandler(approvalSvc, a.logger).RegisterRoutes(api)
	audit.NewHandler(auditSvc, a.logger).RegisterRoutes(api)

	metrics.RegisterGovernanceMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	if a.config.Events.Enabled {
		metrics.RegisterEventMetrics()
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.config.Events.Enabled {
		healthRegistry.Register(health.NewKafkaChecker(a.config.Events.Kafka.Brokers))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) breakerConfig(name string) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	cb := a.config.CircuitBreaker
	if !cb.Enabled {
		return cfg
	}
	if cb.MaxRequests > 0 {
		cfg.MaxRequests = cb.MaxRequests
	}
	if cb.Interval > 0 {
		cfg.Interval = cb.Interval
	}
	if cb.Timeout > 0 {
		cfg.Timeout = cb.Timeout
	}
	if cb.FailureRatio > 0 && cb.MinRequests > 0 {
		minRequests := cb.MinRequests
		failureRatio := cb.FailureRatio
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		}
	}
	return cfg
}

func (a *App) retryPolicy() retry.Policy {
	policy := retry.PublishPolicy()
	rc := a.config.Events.Retry
	if rc.MaxAttempts > 0 {
		policy.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialInterval > 0 {
		policy.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		policy.MaxInterval = rc.MaxInterval
	}
	if rc.Multiplier > 0 {
		policy.Multiplier = rc.Multiplier
	}
	return policy
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
