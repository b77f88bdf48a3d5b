package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for client send channel
	sendBufferSize = 256
)

type Client struct {
	// WebSocket connection
	conn *websocket.Conn

	// Identity, bound at upgrade time
	entityID string
	role     string
	tourID   string
	agencyID string

	// Connection metadata
	connectionID string
	connectedAt  time.Time
	lastActivity time.Time
	ipAddress    string
	userAgent    string

	// Buffered channel of outbound frames
	send chan models.WSMessage

	hub *Hub

	rateLimiter *utils.RateLimiter

	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(conn *websocket.Conn, hub *Hub, entityID, role, tourID, agencyID string, r *http.Request) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		conn:         conn,
		hub:          hub,
		entityID:     entityID,
		role:         role,
		tourID:       tourID,
		agencyID:     agencyID,
		send:         make(chan models.WSMessage, sendBufferSize),
		connectionID: utils.GenerateUUID(),
		connectedAt:  time.Now(),
		lastActivity: time.Now(),
		ipAddress:    getClientIP(r),
		userAgent:    r.UserAgent(),
		rateLimiter:  utils.NewRateLimiter(100, time.Minute),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Register hands the client to the hub's run loop.
func (c *Client) Register() {
	c.hub.register <- c
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, messageData, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Errorf("WebSocket error for %s: %v", c.entityID, err)
				}
				return
			}

			c.lastActivity = time.Now()

			if !c.rateLimiter.Allow() {
				c.sendError("RATE_LIMIT", "Too many messages, slow down")
				continue
			}

			c.handleMessage(messageData)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logrus.Errorf("Write error for %s: %v", c.entityID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(messageData []byte) {
	var frame models.WSMessage
	if err := json.Unmarshal(messageData, &frame); err != nil {
		c.sendError("INVALID_MESSAGE", "Invalid message format")
		return
	}

	switch frame.Type {
	case models.WSCmdRequestLocation:
		c.handleRequestLocation(frame)
	case models.WSCmdSendMessage:
		c.handleSendMessage(frame)
	case models.WSCmdActivateSOS:
		c.handleActivateSOS(frame)
	case models.WSCmdSendAlert:
		c.handleSendAlert(frame)
	case models.WSCmdGetStats:
		c.handleGetStats(frame)
	default:
		c.sendError("INVALID_MESSAGE", "Unknown command type")
	}
}

func (c *Client) handleRequestLocation(frame models.WSMessage) {
	if c.role != models.RoleAdmin && c.role != models.RoleGuide {
		c.sendError("FORBIDDEN", "Only guides and admins can poll locations")
		return
	}
	if frame.Command == nil || frame.Command.TargetEntityID == "" {
		c.sendError("INVALID_MESSAGE", "targetEntityId is required")
		return
	}

	if !c.hub.RequestLocation(frame.Command.TargetEntityID) {
		c.sendError("NOT_CONNECTED", "Target entity has no live connection")
	}
}

func (c *Client) handleSendMessage(frame models.WSMessage) {
	if frame.Command == nil || frame.Command.Text == "" {
		c.sendError("INVALID_MESSAGE", "text is required")
		return
	}

	tourID := c.tourID
	if c.role == models.RoleAdmin && frame.Command.TourID != "" {
		tourID = frame.Command.TourID
	}
	if tourID == "" {
		c.sendError("INVALID_MESSAGE", "no tour to send to")
		return
	}

	c.hub.enqueue(broadcastFrame{
		tourID: tourID,
		message: models.WSMessage{
			Type:      models.WSCmdSendMessage,
			RequestID: frame.RequestID,
			Timestamp: time.Now(),
			Command: &models.WSCommand{
				TourID: tourID,
				Text:   utils.SanitizeInput(frame.Command.Text),
			},
		},
	})
}

func (c *Client) handleActivateSOS(frame models.WSMessage) {
	var location *models.GeoPoint
	if frame.Command != nil && frame.Command.Location != nil {
		location = frame.Command.Location
	} else if state := c.hub.monitor.GetState(c.entityID); state != nil {
		location = state.LastPoint
	}
	if location == nil {
		c.sendError("INVALID_MESSAGE", "no location available for SOS")
		return
	}

	incidentID := utils.GenerateUUID()
	point := *location

	logrus.WithFields(logrus.Fields{
		"incident": incidentID,
		"entity":   c.entityID,
	}).Warn("SOS activated over realtime connection")

	c.hub.PublishEmergency(incidentID, c.entityID, "SOS activated", &point)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.hub.broadcaster.BroadcastSOS(ctx, incidentID, c.entityID, point); err != nil {
			logrus.Errorf("SOS cascade failed for incident %s: %v", incidentID, err)
		}
	}()
}

func (c *Client) handleSendAlert(frame models.WSMessage) {
	if c.role != models.RoleAdmin {
		c.sendError("FORBIDDEN", "Only admins can send manual alerts")
		return
	}
	if frame.Command == nil || frame.Command.TargetEntityID == "" || frame.Command.Text == "" {
		c.sendError("INVALID_MESSAGE", "targetEntityId and text are required")
		return
	}

	severity := frame.Command.Severity
	if severity == "" {
		severity = models.SeverityWarning
	}

	c.hub.PublishAlert(&models.Alert{
		AlertID:   utils.GenerateUUID(),
		EntityID:  frame.Command.TargetEntityID,
		Cause:     "manual",
		Severity:  severity,
		Message:   utils.SanitizeInput(frame.Command.Text),
		CreatedAt: time.Now(),
	})
}

func (c *Client) handleGetStats(frame models.WSMessage) {
	if c.role != models.RoleAdmin {
		c.sendError("FORBIDDEN", "Only admins can read hub stats")
		return
	}

	stats := c.hub.Stats()
	c.trySend(models.WSMessage{
		Type:      models.WSTypeStats,
		RequestID: frame.RequestID,
		Timestamp: time.Now(),
		Stats:     &stats,
	})
}

// trySend queues a frame without blocking. False means the buffer is full or
// the connection is closing and the hub should prune the client.
func (c *Client) trySend(message models.WSMessage) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(code, message string) {
	c.trySend(models.WSMessage{
		Type:      models.WSTypeError,
		Timestamp: time.Now(),
		Error:     &models.WSError{Code: code, Message: message},
	})
}

// close signals both pumps to exit. The send channel is never closed so
// concurrent trySend calls stay safe; they fail via the cancelled context.
func (c *Client) close() {
	c.closeOnce.Do(c.cancel)
}
