package controllers

import (
	"trailsafe/models"
	"trailsafe/utils"
	"trailsafe/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub *websocket.Hub
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{hub: hub}
}

// HandleConnection upgrades the request and binds the connection to an
// entity identity carried in the query string.
func (wc *WebSocketController) HandleConnection(c *gin.Context) {
	entityID := c.Query("entityId")
	if entityID == "" {
		utils.BadRequestResponse(c, "entityId is required")
		return
	}

	role := c.Query("role")
	switch role {
	case models.RoleGuide, models.RoleTourist, models.RoleAdmin:
	case "":
		role = models.RoleTourist
	default:
		utils.BadRequestResponse(c, "role must be guide, tourist or admin")
		return
	}

	conn, err := websocket.DefaultUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("WebSocket upgrade failed for %s: %v", entityID, err)
		return
	}

	client := websocket.NewClient(conn, wc.hub, entityID, role, c.Query("tourId"), c.Query("agencyId"), c.Request)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
