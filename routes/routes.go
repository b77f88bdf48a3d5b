// routes/routes.go
package routes

import (
	"trailsafe/config"
	"trailsafe/controllers"
	"trailsafe/middleware"
	"trailsafe/repositories"
	"trailsafe/services"
	"trailsafe/utils"
	"trailsafe/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

const apiVersion = "1.0.0"

// SetupRoutes wires middleware, controllers and endpoints around the already
// constructed core services.
func SetupRoutes(
	cfg *config.Config,
	db *mongo.Database,
	redisClient *redis.Client,
	monitor *services.SafetyMonitor,
	broadcaster *services.AlertBroadcaster,
	hub *websocket.Hub,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	validator := utils.NewValidationService()

	var alertRepo *repositories.AlertRepository
	if db != nil {
		alertRepo = repositories.NewAlertRepository(db)
	}

	locationController := controllers.NewLocationController(monitor, validator)
	emergencyController := controllers.NewEmergencyController(broadcaster, monitor, hub, alertRepo, validator)
	websocketController := controllers.NewWebSocketController(hub)
	healthController := controllers.NewHealthController(db, apiVersion)

	errorHandler := middleware.NewErrorHandler(cfg.Environment, logrus.StandardLogger())

	router.Use(middleware.DefaultLogger())
	router.Use(errorHandler.Handle())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	rateLimit := middleware.DefaultRateLimitConfig(redisClient)
	rateLimit.Requests = cfg.RateLimitRequests
	rateLimit.Window = cfg.RateLimitWindow

	router.GET("/health", healthController.Health)
	router.GET("/track/:token", emergencyController.TrackIncident)
	router.GET("/ws", websocketController.HandleConnection)

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimit))
	{
		api.POST("/locations", locationController.IngestLocation)
		api.GET("/entities/:entityId", locationController.GetEntityState)
		api.GET("/entities/:entityId/alerts", emergencyController.GetEntityAlerts)
		api.GET("/stats", locationController.GetMonitorStats)

		api.POST("/sos", emergencyController.TriggerSOS)
		api.POST("/incidents/:id/resolve", emergencyController.ResolveIncident)
		api.POST("/alerts/:id/acknowledge", emergencyController.AcknowledgeAlert)
	}

	return router
}
