package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apiguard/internal/config"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/handler"
	"github.com/makkenzo/apiguard/internal/handler/middleware"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/service"
	"github.com/makkenzo/apiguard/internal/storage/memstorage"
	"github.com/makkenzo/apiguard/internal/storage/postgres"
	redisstore "github.com/makkenzo/apiguard/internal/storage/redis"
	"github.com/makkenzo/apiguard/internal/worker"
	"github.com/makkenzo/apiguard/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting apiguard...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := redisstore.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	apiKeyRepo := postgres.NewAPIKeyRepository(dbPool, appLogger)
	principalRepo := postgres.NewPrincipalRepository(dbPool, appLogger)
	usageRepo := postgres.NewUsageRepository(dbPool, appLogger)
	brandRepo := postgres.NewBrandRepository(dbPool, appLogger)
	userRepoMock := memstorage.NewUserRepositoryMock()

	keyCache := redisstore.NewKeyCache(redisClient, cfg.Gate.KeyCacheTTL, appLogger)
	rateLimitStore := redisstore.NewRateLimitStore(redisClient, appLogger)

	rateLimitService := service.NewRateLimitService(rateLimitStore, appLogger)
	restrictionValidator := service.NewRestrictionValidator(appLogger)
	quotaAccountant := service.NewQuotaAccountant(usageRepo, principalRepo, cfg.Quota.GraceFactor, appLogger)
	usageResetService := service.NewUsageResetService(usageRepo, principalRepo, cfg.Quota.GraceFactor, cfg.Scheduler.BatchSize, appLogger)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, keyCache, appLogger)
	authService := service.NewAuthService(userRepoMock, &cfg.Auth, appLogger)
	brandService := service.NewBrandService(brandRepo, appLogger)

	healthHandler := handler.NewHealthHandler(dbPool, redisClient, appLogger)
	authHandler := handler.NewAuthHandler(authService, appLogger)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, appLogger)
	usageHandler := handler.NewUsageHandler(quotaAccountant, usageResetService, appLogger)
	brandHandler := handler.NewBrandHandler(brandService, appLogger)

	gate := middleware.NewGate(apiKeyRepo, keyCache, restrictionValidator, rateLimitService, quotaAccountant, cfg.Gate.StoreTimeout, appLogger)
	authMiddleware := middleware.AuthMiddleware(authService, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRoutes := router.Group("/api/v1/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
	}

	apiV1 := router.Group("/api/v1")
	{
		brandRoutes := apiV1.Group("/brands")
		brandRoutes.Use(gate.Middleware())
		{
			readBrands := middleware.RequireScopes([]apikey.Scope{apikey.ScopeReadBrands}, false, appLogger)
			brandRoutes.GET("", readBrands, brandHandler.List)
			brandRoutes.GET("/:id", readBrands, brandHandler.GetByID)
		}

		apiKeyRoutes := apiV1.Group("/apikeys")
		apiKeyRoutes.Use(authMiddleware)
		{
			apiKeyRoutes.POST("", apiKeyHandler.Create)
			apiKeyRoutes.GET("", apiKeyHandler.List)
			apiKeyRoutes.PATCH("/:id", apiKeyHandler.Update)
			apiKeyRoutes.DELETE("/:id", apiKeyHandler.Revoke)
			apiKeyRoutes.DELETE("/:id/purge", apiKeyHandler.Delete)
		}

		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(authMiddleware)
		{
			adminRoutes.GET("/usage/keys/:id", usageHandler.GetMonthlyUsage)
			adminRoutes.POST("/usage/reset", usageHandler.TriggerReset)
		}
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.RunWorkers(groupCtx, cfg, usageResetService, appLogger); err != nil {
			sugarLogger.Error("Asynq worker failed", zap.Error(err))
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else if errors.Is(waitErr, http.ErrServerClosed) {
			sugarLogger.Info("Shutdown reason: HTTP server closed normally.")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
