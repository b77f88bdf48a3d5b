package controllers

import (
	"trailsafe/models"
	"trailsafe/repositories"
	"trailsafe/services"
	"trailsafe/utils"
	"trailsafe/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type EmergencyController struct {
	broadcaster *services.AlertBroadcaster
	monitor     *services.SafetyMonitor
	hub         *websocket.Hub
	alertRepo   *repositories.AlertRepository
	validator   *utils.ValidationService
}

func NewEmergencyController(
	broadcaster *services.AlertBroadcaster,
	monitor *services.SafetyMonitor,
	hub *websocket.Hub,
	alertRepo *repositories.AlertRepository,
	validator *utils.ValidationService,
) *EmergencyController {
	return &EmergencyController{
		broadcaster: broadcaster,
		monitor:     monitor,
		hub:         hub,
		alertRepo:   alertRepo,
		validator:   validator,
	}
}

type resolveRequest struct {
	EntityID string `json:"entityId" validate:"required"`
}

// TriggerSOS starts the emergency cascade for an entity and returns the
// aggregated broadcast result.
func (ec *EmergencyController) TriggerSOS(c *gin.Context) {
	var req models.SOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid SOS payload")
		return
	}

	if validationErrors := ec.validator.ValidateStruct(&req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	incidentID := utils.GenerateUUID()
	location := models.GeoPoint{Latitude: req.Latitude, Longitude: req.Longitude}

	logrus.WithFields(logrus.Fields{
		"incident": incidentID,
		"entity":   req.EntityID,
	}).Warn("SOS triggered over HTTP")

	if ec.hub != nil {
		ec.hub.PublishEmergency(incidentID, req.EntityID, req.Message, &location)
	}

	result, err := ec.broadcaster.BroadcastSOS(c.Request.Context(), incidentID, req.EntityID, location)
	if err != nil {
		logrus.Errorf("SOS cascade failed for incident %s: %v", incidentID, err)
		utils.InternalServerErrorResponse(c, "Failed to broadcast SOS")
		return
	}

	utils.CreatedResponse(c, "SOS broadcast", result)
}

// ResolveIncident notifies the cascade that the emergency is over and
// invalidates the incident's tracking links.
func (ec *EmergencyController) ResolveIncident(c *gin.Context) {
	incidentID := c.Param("id")

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid resolve payload")
		return
	}
	if validationErrors := ec.validator.ValidateStruct(&req); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	if err := ec.broadcaster.NotifyResolved(c.Request.Context(), incidentID, req.EntityID); err != nil {
		logrus.Errorf("Failed to resolve incident %s: %v", incidentID, err)
		utils.InternalServerErrorResponse(c, "Failed to resolve incident")
		return
	}

	utils.SuccessResponse(c, "Incident resolved", gin.H{"incidentId": incidentID})
}

// TrackIncident serves a contact following a tracking link: validates the
// token and returns the entity's live position.
func (ec *EmergencyController) TrackIncident(c *gin.Context) {
	token := c.Param("token")

	link, err := ec.broadcaster.ValidateTrackingToken(c.Request.Context(), token)
	if err != nil {
		logrus.Errorf("Tracking token lookup failed: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to validate tracking link")
		return
	}
	if link == nil {
		utils.NotFoundResponse(c, "Tracking link")
		return
	}

	response := gin.H{
		"incidentId": link.IncidentID,
		"expiresAt":  link.ExpiresAt,
	}
	if state := ec.monitor.GetState(link.EntityID); state != nil {
		response["displayName"] = state.DisplayName
		response["lastPoint"] = state.LastPoint
		response["batteryLevel"] = state.BatteryLevel
		response["lastUpdate"] = state.UpdatedAt
	}

	utils.SuccessResponse(c, "Tracking link valid", response)
}

// AcknowledgeAlert marks a persisted alert as seen by an operator.
func (ec *EmergencyController) AcknowledgeAlert(c *gin.Context) {
	if ec.alertRepo == nil {
		utils.InternalServerErrorResponse(c, "Alert persistence is not configured")
		return
	}

	alertID := c.Param("id")
	operatorID := c.Query("operatorId")

	if err := ec.alertRepo.Acknowledge(c.Request.Context(), alertID, operatorID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Alert acknowledged", gin.H{"alertId": alertID})
}

// GetEntityAlerts lists the most recent alerts for an entity.
func (ec *EmergencyController) GetEntityAlerts(c *gin.Context) {
	if ec.alertRepo == nil {
		utils.InternalServerErrorResponse(c, "Alert persistence is not configured")
		return
	}

	entityID := c.Param("entityId")

	alerts, err := ec.alertRepo.GetRecentByEntity(c.Request.Context(), entityID, 50)
	if err != nil {
		logrus.Errorf("Failed to load alerts for %s: %v", entityID, err)
		utils.InternalServerErrorResponse(c, "Failed to load alerts")
		return
	}

	utils.SuccessResponse(c, "Alerts retrieved", alerts)
}
