package controllers

import (
	"trailsafe/models"
	"trailsafe/services"
	"trailsafe/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type LocationController struct {
	monitor   *services.SafetyMonitor
	validator *utils.ValidationService
}

func NewLocationController(monitor *services.SafetyMonitor, validator *utils.ValidationService) *LocationController {
	return &LocationController{
		monitor:   monitor,
		validator: validator,
	}
}

// IngestLocation processes one location sample and returns the resulting
// assessment plus any alerts it triggered.
func (lc *LocationController) IngestLocation(c *gin.Context) {
	var req models.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid location payload")
		return
	}

	if validationErrors := lc.validator.ValidateStruct(&req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	assessment, alerts, err := lc.monitor.ProcessLocationUpdate(c.Request.Context(), &req)
	if err != nil {
		logrus.Errorf("Location ingest failed for %s: %v", req.EntityID, err)
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Location processed", gin.H{
		"assessment":      assessment,
		"alertsTriggered": alerts,
	})
}

// GetEntityState returns the tracked state for one entity.
func (lc *LocationController) GetEntityState(c *gin.Context) {
	entityID := c.Param("entityId")

	state := lc.monitor.GetState(entityID)
	if state == nil {
		utils.NotFoundResponse(c, "Entity")
		return
	}

	utils.SuccessResponse(c, "Entity state retrieved", state)
}

// GetMonitorStats returns the aggregate monitoring counters.
func (lc *LocationController) GetMonitorStats(c *gin.Context) {
	utils.SuccessResponse(c, "Monitor stats retrieved", lc.monitor.Stats())
}
