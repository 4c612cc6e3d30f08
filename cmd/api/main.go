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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/Kenyoli98/iep-peruano-chino-full-sub001/api/swagger"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/handler"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/middleware"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/models"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/repository"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/cache"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/config"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/database"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/jobs"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/logger"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/mailer"
	corsmiddleware "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/middleware/requestid"
	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/pkg/storage"
)

// @title IEP Peruano Chino - Registros API
// @version 1.0.0
// @description Pre-registration and student account activation service
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	preregRepo := repository.NewPreRegistrationRepository(db)
	userRepo := repository.NewUserRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	sender := mailer.NewSMTP(cfg.SMTP)

	archive, err := storage.NewExportArchive(cfg.Export.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export archive", zap.Error(err))
	}

	validationSvc := service.NewValidationService(preregRepo, logr)
	codesSvc := service.NewVerificationCodeService(preregRepo, sender, metrics, logr, service.VerificationConfig{
		CodigoTTL:        cfg.Registro.CodigoTTL,
		ReenvioCooldown:  cfg.Registro.ReenvioCooldown,
		ReenvioMaxDiario: cfg.Registro.ReenvioMaxDiario,
	})
	registrationSvc := service.NewRegistrationService(validationSvc, codesSvc, preregRepo, validate, metrics, logr)
	preregSvc := service.NewPreRegistrationService(preregRepo, userRepo, cacheSvc, archive, validate, metrics, logr, cfg.Registro.DiasVigencia)
	importSvc := service.NewImportService(preregRepo, userRepo, metrics, logr, service.ImportConfig{
		DiasVigencia: cfg.Registro.DiasVigencia,
		MaxFilas:     cfg.Registro.ImportMaxFilas,
	})
	lifecycleSvc := service.NewLifecycleService(preregRepo, userRepo, cacheSvc, logr, cfg.Registro.DiasExtension)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})

	registrationHandler := handler.NewRegistrationHandler(validationSvc, registrationSvc)
	preregHandler := handler.NewPreRegistrationHandler(preregSvc, importSvc, lifecycleSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db.Ping)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	registro := api.Group("/registro")
	{
		registro.POST("/validar", registrationHandler.Validate)
		registro.POST("/iniciar", registrationHandler.Start)
		registro.POST("/confirmar", registrationHandler.Confirm)
		registro.POST("/reenviar", registrationHandler.Resend)
	}

	api.POST("/auth/login", authHandler.Login)

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/preregistros", preregHandler.List)
		admin.POST("/preregistros", preregHandler.Create)
		admin.GET("/preregistros/stats", preregHandler.Stats)
		admin.POST("/preregistros/importar", preregHandler.Import)
		admin.GET("/preregistros/exportar", preregHandler.Export)
		admin.GET("/preregistros/:id", preregHandler.Get)
		admin.PATCH("/preregistros/:id/estado", preregHandler.UpdateEstado)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := jobs.NewScheduler(logr)
	scheduler.Add(jobs.Task{
		Name:     "export-archive-cleanup",
		Interval: time.Hour,
		Run: func(context.Context) error {
			deleted, err := archive.CleanupOlderThan(cfg.Export.Retencion)
			if err != nil {
				return err
			}
			if len(deleted) > 0 {
				logr.Info("pruned archived exports", zap.Int("count", len(deleted)))
			}
			return nil
		},
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
