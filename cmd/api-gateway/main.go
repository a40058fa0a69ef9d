package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/dapoteju/beamer-mono-sub001/api/swagger"
	"github.com/dapoteju/beamer-mono-sub001/internal/handler"
	"github.com/dapoteju/beamer-mono-sub001/internal/middleware"
	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/repository"
	"github.com/dapoteju/beamer-mono-sub001/internal/service"
	"github.com/dapoteju/beamer-mono-sub001/pkg/cache"
	"github.com/dapoteju/beamer-mono-sub001/pkg/config"
	"github.com/dapoteju/beamer-mono-sub001/pkg/database"
	"github.com/dapoteju/beamer-mono-sub001/pkg/logger"
	corsmiddleware "github.com/dapoteju/beamer-mono-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/dapoteju/beamer-mono-sub001/pkg/middleware/requestid"
)

// @title Beamer Screen Groups API
// @version 1.0.0
// @description Screen group membership, CSV reconciliation, targeting preview and group health.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, health cache disabled", zap.Error(err))
		redisClient = nil
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	screenRepo := repository.NewScreenRepository(db)
	groupRepo := repository.NewScreenGroupRepository(db)
	flightRepo := repository.NewFlightRepository(db)

	var healthCache *service.CacheService
	readiness := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		healthCache = service.NewCacheService(cacheRepo, metricsSvc, cfg.ScreenGroups.HealthCacheTTL, logr, cfg.ScreenGroups.HealthCacheEnabled)
		readiness["redis"] = handler.PingFunc(cacheRepo.Ping)
	}

	healthSvc := service.NewHealthService(groupRepo, groupRepo, healthCache, logr, service.HealthServiceConfig{
		OfflineThreshold: cfg.Targeting.OfflineThreshold,
		CacheTTL:         cfg.ScreenGroups.HealthCacheTTL,
	})
	groupSvc := service.NewScreenGroupService(groupRepo, screenRepo, healthSvc, validate, logr, service.ScreenGroupServiceConfig{
		OfflineThreshold: cfg.Targeting.OfflineThreshold,
	})
	membershipSvc := service.NewMembershipService(groupRepo, screenRepo, healthSvc, metricsSvc, validate, logr, service.MembershipServiceConfig{
		AllowArchivedAdd: cfg.ScreenGroups.AllowArchivedAdd,
		OfflineThreshold: cfg.Targeting.OfflineThreshold,
	})
	targetingSvc := service.NewTargetingService(groupRepo, metricsSvc, validate, logr, service.TargetingServiceConfig{
		OfflineThreshold: cfg.Targeting.OfflineThreshold,
		LowScreenFloor:   cfg.Targeting.LowScreenFloor,
		OfflineRatio:     cfg.Targeting.OfflineRatio,
	})
	flightSvc := service.NewFlightService(groupRepo, flightRepo, logr)
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, logr)

	groupHandler := handler.NewScreenGroupHandler(groupSvc)
	membershipHandler := handler.NewMembershipHandler(membershipSvc, cfg.ScreenGroups.CSVMaxBytes)
	targetingHandler := handler.NewTargetingHandler(targetingSvc, healthSvc, flightSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, cfg.Metrics.Path, "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	managers := middleware.RequireGroupManager()

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc), middleware.WithResponseMeta())
	api.GET("/metrics/summary", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), metricsHandler.Summary)

	groups := api.Group("/screen-groups")
	groups.GET("", groupHandler.List)
	groups.POST("", managers, groupHandler.Create)
	groups.POST("/targeting-preview", targetingHandler.Preview)
	groups.GET("/:id", groupHandler.Get)
	groups.PATCH("/:id", managers, groupHandler.Update)
	groups.DELETE("/:id", managers, groupHandler.Delete)
	groups.POST("/:id/archive", managers, groupHandler.Archive)
	groups.POST("/:id/unarchive", managers, groupHandler.Unarchive)
	groups.GET("/:id/members", membershipHandler.List)
	groups.POST("/:id/members", managers, membershipHandler.Add)
	groups.DELETE("/:id/members", managers, membershipHandler.Remove)
	groups.POST("/:id/members/csv", managers, membershipHandler.UploadCSV)
	groups.GET("/:id/members/export", membershipHandler.Export)
	groups.GET("/:id/health", targetingHandler.Health)
	groups.GET("/:id/flights", targetingHandler.Flights)

	screens := api.Group("/screens")
	screens.GET("/:id/screen-groups", groupHandler.ListForScreen)
	screens.GET("/:id/available-screen-groups", managers, groupHandler.ListAvailableForScreen)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env), zap.Bool("health_cache", healthCache.Enabled()))
	if err := r.Run(addr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}
