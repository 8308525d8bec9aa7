package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/tophand/backend/internal/config"
	"github.com/tophand/backend/internal/http/handlers"
	"github.com/tophand/backend/internal/http/middleware"

	_ "github.com/tophand/backend/docs"
)

func Router(cfg config.Config, h *handlers.Handler, gatherer prometheus.Gatherer, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id", middleware.TenantHeader, middleware.ActorHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(middleware.Tenant())
	{
		api.POST("/day-plans", h.CreateDayPlan)
		api.GET("/day-plans/:id", h.GetDayPlan)
		api.POST("/day-plans/:id/events", h.ScheduleEvent)
		api.DELETE("/day-plans/:id/events/:eventId", h.RemoveEvent)
		api.POST("/schedule-events/:id/crew", h.AssignCrew)
		api.POST("/kits/:id/verifications", h.VerifyKit)
		api.POST("/kit-overrides", h.CreateOverride)
		api.POST("/kit-overrides/voice", h.CreateVoiceOverride)
		api.GET("/kit-overrides/:id", h.GetOverride)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/kits/:id/override-analytics", h.OverrideAnalytics)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
