package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusops/nodues-api/api/swagger"
	"github.com/campusops/nodues-api/internal/handler"
	"github.com/campusops/nodues-api/internal/middleware"
	"github.com/campusops/nodues-api/internal/models"
	"github.com/campusops/nodues-api/internal/repository"
	"github.com/campusops/nodues-api/internal/service"
	"github.com/campusops/nodues-api/pkg/cache"
	"github.com/campusops/nodues-api/pkg/config"
	"github.com/campusops/nodues-api/pkg/database"
	"github.com/campusops/nodues-api/pkg/jobs"
	"github.com/campusops/nodues-api/pkg/logger"
	"github.com/campusops/nodues-api/pkg/mailer"
	corsmiddleware "github.com/campusops/nodues-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/nodues-api/pkg/middleware/requestid"
	"github.com/campusops/nodues-api/pkg/storage"
)

// @title No Dues API
// @version 1.0.0
// @description Multi-department clearance workflow for graduating students
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, status cache disabled", "error", err)
			redisClient = nil
		}
	}

	formRepo := repository.NewFormRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	reapplyRepo := repository.NewReapplicationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	certStorage, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	smtp := mailer.New(cfg.SMTP)

	metricsSvc := service.NewMetricsService()

	notificationSvc := service.NewNotificationService(smtp, userRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Workers.NotificationConcurrency,
		MaxRetries: cfg.Workers.NotificationRetries,
		RetryDelay: cfg.Workers.RetryDelay,
	})

	certificateSvc := service.NewCertificateService(formRepo, statusRepo, certStorage, signer, cacheRepo,
		auditRepo, notificationSvc, metricsSvc, logr, cfg.Certificates, cfg.BaseURL+cfg.APIPrefix,
		jobs.QueueConfig{
			Workers:    cfg.Workers.CertificateConcurrency,
			MaxRetries: cfg.Workers.CertificateRetries,
			RetryDelay: cfg.Workers.RetryDelay,
		})

	authSvc := service.NewAuthService(userRepo, auditRepo, nil, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})

	clearanceSvc := service.NewClearanceService(formRepo, statusRepo, reapplyRepo, cacheRepo,
		auditRepo, notificationSvc, metricsSvc, logr, cfg.Clearance, cfg.StatusCache.TTL)
	workflowSvc := service.NewWorkflowService(statusRepo, auditRepo, cacheRepo,
		notificationSvc, certificateSvc, metricsSvc, logr)
	reapplySvc := service.NewReapplicationService(reapplyRepo, cacheRepo, auditRepo,
		notificationSvc, metricsSvc, logr, cfg.Clearance)

	queueCtx, stopQueues := context.WithCancel(context.Background())
	defer stopQueues()
	notificationSvc.Start(queueCtx)
	certificateSvc.Start(queueCtx)

	// Forms that became fully approved right before a crash still need their
	// certificate, so requeue them on every boot.
	if err := certificateSvc.RequeuePending(queueCtx); err != nil {
		logr.Sugar().Warnw("failed to requeue pending certificates", "error", err)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	clearanceHandler := handler.NewClearanceHandler(clearanceSvc, workflowSvc, reapplySvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		api.POST("/clearance", clearanceHandler.Submit)
		api.GET("/clearance/lookup", clearanceHandler.StatusByRegistration)
		api.GET("/clearance/:id/status", clearanceHandler.Status)
		api.POST("/clearance/:id/reapply", clearanceHandler.Reapply)

		api.GET("/certificates/verify", certificateHandler.Verify)
		api.GET("/certificates/download",
			middleware.Audit(auditRepo, "CERTIFICATE_DOWNLOAD", "certificate"),
			certificateHandler.Download)

		protected := api.Group("")
		protected.Use(middleware.JWT(authSvc))
		{
			protected.POST("/clearance/:id/action",
				middleware.RequireRoles(models.RoleAdmin, models.RoleDepartment),
				clearanceHandler.Act)
			protected.GET("/clearance",
				middleware.RequireRoles(models.RoleAdmin),
				clearanceHandler.List)
			protected.GET("/clearance/:id/history",
				middleware.RequireRoles(models.RoleAdmin, models.RoleDepartment),
				clearanceHandler.History)
			protected.GET("/departments/:department/pending",
				middleware.RequireRoles(models.RoleAdmin, models.RoleDepartment),
				clearanceHandler.Pending)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}

	stopQueues()
	certificateSvc.Stop()
	notificationSvc.Stop()
}
