package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/secops-portal/backend/internal/config"
	"github.com/secops-portal/backend/internal/http/handlers"
	"github.com/secops-portal/backend/internal/http/middleware"
	"github.com/secops-portal/backend/internal/metrics"
	"github.com/secops-portal/backend/internal/service"

	_ "github.com/secops-portal/backend/docs"
)

func Router(cfg config.Config, store handlers.Store, tasks *service.TaskService, rules *service.RoutingService, rec *metrics.Recorder, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	if rec != nil {
		r.Use(middleware.Metrics(rec))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.RequestIDHeader},
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

	h := &handlers.Handler{
		Store:     store,
		Tasks:     tasks,
		Rules:     rules,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/security-services")
	{
		api.GET("/tasks/available/:userId", h.AvailableTasks)
		api.GET("/tasks/assigned/:userId", h.AssignedTasks)
		api.GET("/tasks/submitted/:userId", h.SubmittedTasks)
		api.GET("/tasks/sent-back/:userId", h.SentBackTasks)
		api.GET("/tasks/queues/:userId", h.TaskQueues)

		api.POST("/requests", h.CreateRequest)
		api.GET("/requests/:id", h.GetRequest)
		api.PATCH("/requests/:id", h.EditRequest)
		api.GET("/requests/:id/history", h.RequestHistory)
		api.POST("/requests/:id/claim", h.ClaimRequest)
		api.POST("/requests/:id/auto-assign", h.AutoAssignRequest)
		api.PUT("/requests/:id/status", h.UpdateStatus)
		api.POST("/requests/:id/comments", h.AddComment)
		api.POST("/requests/:id/submit", h.SubmitResponse)
		api.POST("/requests/:id/send-back", h.SendBack)
		api.POST("/requests/:id/auto-return", h.AutoReturn)

		api.GET("/routing-rules", h.RoutingRulesList)
		api.GET("/routing-rules/:serviceType", h.RoutingRuleGet)
		api.GET("/routing-rules/:serviceType/next-agent", h.NextAgent)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/routing-rules", h.RoutingRuleSave)
		admin.DELETE("/routing-rules/:serviceType", h.RoutingRuleDelete)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
