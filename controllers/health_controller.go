package controllers

import (
	"context"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type HealthController struct {
	db        *mongo.Database
	version   string
	startedAt time.Time
}

func NewHealthController(db *mongo.Database, version string) *HealthController {
	return &HealthController{
		db:        db,
		version:   version,
		startedAt: time.Now(),
	}
}

// Health reports process liveness and dependency status.
func (hc *HealthController) Health(c *gin.Context) {
	services := make(map[string]string)
	status := "healthy"

	if hc.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hc.db.Client().Ping(ctx, readpref.Primary()); err != nil {
			services["mongodb"] = "unreachable"
			status = "degraded"
		} else {
			services["mongodb"] = "ok"
		}
	} else {
		services["mongodb"] = "not configured"
	}

	utils.SuccessResponse(c, "Health check", models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   hc.version,
		Uptime:    utils.FormatDuration(time.Since(hc.startedAt)),
	})
}
