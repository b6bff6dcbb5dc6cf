package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/internal/handler"
	"github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-enrollment-api/pkg/response"
)

type routeHandlers struct {
	enrollments *handler.EnrollmentHandler
	seats       *handler.SeatHandler
	metrics     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, tokens middleware.TokenValidator, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedHeaders))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))
	r.Use(response.Diagnostics(cfg.Diagnostics.Enabled))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	faculty := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleTeacher)
	enrollers := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleStudent)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(logr, action, resource)
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))

	enrollments := api.Group("/enrollments")
	enrollments.GET("", h.enrollments.List)
	enrollments.POST("", enrollers, audit("enroll", "enrollment"), h.enrollments.Create)
	enrollments.POST("/validate", enrollers, h.enrollments.Validate)
	enrollments.GET("/:id", h.enrollments.Get)
	enrollments.POST("/:id/cancel", enrollers, audit("cancel", "enrollment"), h.enrollments.Cancel)
	enrollments.POST("/:id/payment", staff, audit("mark_paid", "enrollment"), h.enrollments.MarkPaid)
	enrollments.POST("/:id/complete", faculty, audit("complete", "enrollment"), h.enrollments.Complete)

	courses := api.Group("/courses/:id")
	courses.GET("/seats", h.seats.Get)
	courses.POST("/seats/reserve", staff, audit("reserve_seats", "course"), h.seats.Reserve)
	courses.POST("/seats/release", staff, audit("release_seats", "course"), h.seats.Release)
	courses.POST("/seats/reconcile", staff, audit("reconcile_seats", "course"), h.seats.Reconcile)
	courses.GET("/roster", faculty, h.seats.Roster)

	return r
}
