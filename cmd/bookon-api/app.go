package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/handler"
	"github.com/bookon/bookon-api/internal/middleware"
	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/repository"
	"github.com/bookon/bookon-api/internal/service"
	"github.com/bookon/bookon-api/pkg/config"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/jobs"
	"github.com/bookon/bookon-api/pkg/logger"
	corsmiddleware "github.com/bookon/bookon-api/pkg/middleware/cors"
	reqidmiddleware "github.com/bookon/bookon-api/pkg/middleware/requestid"
)

type app struct {
	router     *gin.Engine
	queue      *jobs.Queue
	broadcasts *service.BroadcastService
}

func buildApp(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, rdb *redis.Client) *app {
	validate := forms.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	templates := repository.NewTemplateRepository(db)
	courses := repository.NewCourseRepository(db)
	venues := repository.NewVenueRepository(db)
	registers := repository.NewRegisterRepository(db)
	broadcasts := repository.NewBroadcastRepository(db)
	notifications := repository.NewNotificationRepository(db)
	audience := repository.NewAudienceRepository(db)

	listCache := service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.Lists.CacheTTL, logr, cfg.Lists.CacheEnabled)

	authSvc := service.NewAuthService(users, validate.Engine(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	templateSvc := service.NewTemplateService(templates, validate, listCache, metrics, logr)
	courseSvc := service.NewCourseService(courses, venues, templates, validate, listCache, metrics, logr)
	venueSvc := service.NewVenueService(venues, validate, listCache, logr)
	registerSvc := service.NewRegisterService(registers, courses, venues, validate, listCache, metrics, logr)
	notificationSvc := service.NewNotificationService(notifications, metrics, logr)
	userSvc := service.NewUserService(users, logr)
	filterSvc := service.NewFilterService(filterStores(rdb, cfg.Filters.TTL), cfg.Filters.PersistenceEnabled, logr)
	broadcastSvc := service.NewBroadcastService(broadcasts, audience, notifications, templates, senders(cfg, logr), validate, listCache, metrics, logr, service.BroadcastConfig{
		BatchSize: cfg.Broadcasts.BatchSize,
		Location:  cfg.Location(),
	})
	queue := jobs.NewQueue("broadcasts", broadcastSvc.Deliver, queueConfig(cfg.Broadcasts, broadcastSvc, logr))
	broadcastSvc.UseQueue(queue)

	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
		"postgres": db,
		"redis":    redisPinger(rdb),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authHandler := handler.NewAuthHandler(authSvc)
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleBusiness)

	templateHandler := handler.NewTemplateHandler(templateSvc)
	tpl := secured.Group("/templates", staff, middleware.Audit(users, "templates", logr))
	tpl.GET("", templateHandler.List)
	tpl.GET("/:id", templateHandler.Get)
	tpl.POST("", templateHandler.Create)
	tpl.PUT("/:id", templateHandler.Update)
	tpl.POST("/:id/duplicate", templateHandler.Duplicate)
	tpl.PATCH("/:id/:action", templateHandler.Transition)
	tpl.DELETE("/:id", templateHandler.Delete)

	courseHandler := handler.NewCourseHandler(courseSvc)
	crs := secured.Group("/courses", staff, middleware.Audit(users, "courses", logr))
	crs.GET("", courseHandler.List)
	crs.GET("/:id", courseHandler.Get)
	crs.POST("", courseHandler.Create)
	crs.PUT("/:id", courseHandler.Update)
	crs.PATCH("/:id/:action", courseHandler.Transition)
	crs.DELETE("/:id", courseHandler.Delete)

	broadcastHandler := handler.NewBroadcastHandler(broadcastSvc)
	bc := secured.Group("/broadcasts", staff, middleware.Audit(users, "broadcasts", logr))
	bc.GET("", broadcastHandler.List)
	bc.GET("/:id", broadcastHandler.Get)
	bc.POST("", broadcastHandler.Create)
	bc.POST("/audience/preview", broadcastHandler.PreviewAudience)
	bc.PUT("/:id", broadcastHandler.Update)
	bc.PATCH("/:id/:action", broadcastHandler.Transition)
	bc.DELETE("/:id", broadcastHandler.Delete)

	registerHandler := handler.NewRegisterHandler(registerSvc)
	reg := secured.Group("/registers", staff, middleware.Audit(users, "registers", logr))
	reg.GET("", registerHandler.List)
	reg.GET("/:id", registerHandler.Get)
	reg.GET("/:id/export", registerHandler.Export)
	reg.POST("", registerHandler.Create)
	reg.PUT("/:id", registerHandler.Update)
	reg.PUT("/:id/attendance", registerHandler.MarkAttendance)
	reg.PATCH("/:id/:action", registerHandler.Transition)
	reg.DELETE("/:id", registerHandler.Delete)

	venueHandler := handler.NewVenueHandler(venueSvc)
	ven := secured.Group("/venues", staff, middleware.Audit(users, "venues", logr))
	ven.GET("", venueHandler.List)
	ven.GET("/:id", venueHandler.Get)
	ven.POST("", venueHandler.Create)
	ven.PUT("/:id", venueHandler.Update)
	ven.DELETE("/:id", venueHandler.Delete)

	userHandler := handler.NewUserHandler(userSvc)
	secured.GET("/users", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
	secured.GET("/users/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)

	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	secured.GET("/notifications", notificationHandler.List)
	secured.PATCH("/notifications/:id/:action", notificationHandler.Transition)

	filterHandler := handler.NewFilterHandler(filterSvc)
	secured.GET("/filters/:page", filterHandler.Get)
	secured.PUT("/filters/:page", filterHandler.Put)

	return &app{router: r, queue: queue, broadcasts: broadcastSvc}
}
