package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"keyhive/internal/bus"
	"keyhive/internal/config"
	"keyhive/internal/constants"
	"keyhive/internal/license"
	"keyhive/internal/logger"
	"keyhive/internal/permissions"
	"keyhive/internal/registry"
	"keyhive/internal/secretevents"
	"keyhive/internal/stream"
	"keyhive/pkg/health"
	"keyhive/pkg/metrics"
	"keyhive/pkg/middleware"
	"keyhive/pkg/ratelimit"
	"keyhive/pkg/tracing"
)

type App struct {
	config *config.Config
	logger logger.Logger

	redisClient    *redis.Client
	eventBus       *bus.Bus
	channel        *secretevents.Channel
	service        *stream.Service
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("events-service")
	}
	return &App{
		config: cfg,
		logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterEventMetrics()
	metrics.RegisterStreamMetrics()
	if a.config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}
	if a.config.RateLimit.Enabled {
		metrics.RegisterRateLimitMetrics()
	}

	tracerProvider, err := tracing.Init(a.config.Tracing, "events-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tracerProvider

	if err := a.initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := a.initBus(ctx); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize streaming service: %w", err)
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(a.config.Redis.Host, strconv.Itoa(a.config.Redis.Port)),
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	a.redisClient = client
	return nil
}

func (a *App) initBus(ctx context.Context) error {
	transport, err := bus.NewTransport(a.config.Transport, a.config.Redis, a.logger)
	if err != nil {
		return err
	}

	a.eventBus = bus.NewBus(transport, a.logger)
	a.channel = secretevents.NewChannel(a.eventBus, a.logger)

	a.logger.InfowCtx(ctx, "Event bus created",
		"transport", a.config.Transport.Type,
		"topic", a.config.Transport.Topic,
		"origin_id", a.eventBus.OriginID(),
	)
	return nil
}

func (a *App) initService(ctx context.Context) error {
	var reg registry.Registry = registry.NewRedisRegistry(a.redisClient)
	if a.config.CircuitBreaker.Enabled {
		reg = registry.NewCircuitBreakerRegistry(reg, a.config.CircuitBreaker)
	}

	oracle, err := a.buildOracle()
	if err != nil {
		return err
	}

	plans := license.NewStaticChecker(a.config.License.EventSubscriptions)

	a.service = stream.NewService(a.config.Stream, a.channel, reg, oracle, plans, a.logger)
	return nil
}

func (a *App) buildOracle() (permissions.Oracle, error) {
	if a.config.Permissions.PolicyFile != "" {
		return permissions.NewStaticOracleFromFile(a.config.Permissions.PolicyFile)
	}
	return permissions.NewStaticOracle(permissions.AllowAllEvaluator{}), nil
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("events-service"))
	}

	if a.config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.RateLimit.RPS,
			Burst:           a.config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewRedisChecker("redis", a.redisClient))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := stream.NewHandler(a.service, a.logger)
	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:     router,
		ReadTimeout: a.config.Server.ReadTimeoutSeconds * time.Second,
		// No write timeout: streaming responses stay open indefinitely.
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	if err := a.eventBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	a.service.Start(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "HTTP server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down events service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	if a.service != nil {
		a.service.Close(shutdownCtx)
	}

	var errs []error
	if a.eventBus != nil {
		if err := a.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus close error: %w", err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.Info("Application exited successfully")
	return nil
}
