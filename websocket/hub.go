package websocket

import (
	"context"
	"sync"
	"time"

	"trailsafe/models"
	"trailsafe/services"
	"trailsafe/utils"

	"github.com/sirupsen/logrus"
)

const (
	// Movement filter: suppress rebroadcast for displacements under this
	// threshold, unless battery is low enough to matter on its own.
	movementThresholdM  = 5.0
	lowBatteryBypassPct = 20
)

type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Tour rooms for guide/tourist scoped broadcast
	rooms map[string]*Room

	// Entity to client mapping for direct commands
	entityClients map[string]*Client

	// Admin dashboards receive everything
	admins map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound frames fanned to rooms and admins
	broadcast chan broadcastFrame

	// Service dependencies
	monitor     *services.SafetyMonitor
	broadcaster *services.AlertBroadcaster

	// Last point actually broadcast per entity, for the movement filter
	lastSent map[string]models.GeoPoint

	stats HubStats

	mutex sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// broadcastFrame targets a frame at a tour room, the admin set, or both.
type broadcastFrame struct {
	tourID   string
	toAdmins bool
	message  models.WSMessage
}

type HubStats struct {
	TotalConnections  int64
	ActiveConnections int
	ConnectionsByRole map[string]int
	MessagesSent      int64
	MessagesDropped   int64
	StartTime         time.Time

	mutex sync.RWMutex
}

func NewHub(monitor *services.SafetyMonitor, broadcaster *services.AlertBroadcaster) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:       make(map[*Client]bool),
		rooms:         make(map[string]*Room),
		entityClients: make(map[string]*Client),
		admins:        make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan broadcastFrame, 256),
		monitor:       monitor,
		broadcaster:   broadcaster,
		lastSent:      make(map[string]models.GeoPoint),
		stats: HubStats{
			ConnectionsByRole: make(map[string]int),
			StartTime:         time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Hub) Run() {
	logrus.Info("Realtime hub starting...")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case frame := <-h.broadcast:
			h.dispatch(frame)

		case <-h.ctx.Done():
			logrus.Info("Realtime hub shutting down...")
			h.closeAll()
			return
		}
	}
}

func (h *Hub) Shutdown() {
	h.cancel()
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()

	h.clients[client] = true
	h.entityClients[client.entityID] = client
	if client.role == models.RoleAdmin {
		h.admins[client] = true
	}
	if client.tourID != "" {
		room := h.getOrCreateRoom(client.tourID)
		room.AddClient(client)
	}

	h.stats.mutex.Lock()
	h.stats.ActiveConnections++
	h.stats.TotalConnections++
	h.stats.ConnectionsByRole[client.role]++
	active := h.stats.ActiveConnections
	h.stats.mutex.Unlock()

	h.mutex.Unlock()

	// New dashboards get a full snapshot before any incremental frame.
	if client.role == models.RoleAdmin {
		h.sendInitialState(client)
	}

	logrus.Infof("Client registered: %s as %s (total: %d)", client.entityID, client.role, active)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeClientLocked(client)
}

// removeClientLocked prunes the client from every registry. Callers hold
// h.mutex.
func (h *Hub) removeClientLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	delete(h.admins, client)
	if h.entityClients[client.entityID] == client {
		delete(h.entityClients, client.entityID)
		if client.role != models.RoleAdmin {
			delete(h.lastSent, client.entityID)
			if h.monitor != nil {
				h.monitor.EndSession(client.entityID)
			}
		}
	}
	if client.tourID != "" {
		if room, exists := h.rooms[client.tourID]; exists {
			room.RemoveClient(client)
			if room.IsEmpty() {
				delete(h.rooms, client.tourID)
			}
		}
	}

	h.stats.mutex.Lock()
	h.stats.ActiveConnections--
	h.stats.ConnectionsByRole[client.role]--
	h.stats.mutex.Unlock()

	client.close()

	logrus.Infof("Client unregistered: %s", client.entityID)
}

func (h *Hub) dispatch(frame broadcastFrame) {
	h.mutex.RLock()
	var room *Room
	if frame.tourID != "" {
		room = h.rooms[frame.tourID]
	}
	admins := make([]*Client, 0, len(h.admins))
	if frame.toAdmins {
		for admin := range h.admins {
			admins = append(admins, admin)
		}
	}
	h.mutex.RUnlock()

	var dead []*Client
	if room != nil {
		dead = append(dead, room.Broadcast(frame.message)...)
	}
	for _, admin := range admins {
		if room != nil && room.HasClient(admin) {
			continue // already delivered through the room
		}
		if !admin.trySend(frame.message) {
			dead = append(dead, admin)
			continue
		}
		h.incrementSent()
	}

	if len(dead) > 0 {
		h.mutex.Lock()
		for _, client := range dead {
			logrus.Warnf("Dropping dead connection for %s", client.entityID)
			h.removeClientLocked(client)
		}
		h.mutex.Unlock()
	}
}

func (h *Hub) getOrCreateRoom(tourID string) *Room {
	if room, exists := h.rooms[tourID]; exists {
		return room
	}
	room := NewRoom(tourID)
	h.rooms[tourID] = room
	return room
}

// PublishLocation fans a location frame to the entity's tour room and every
// admin, subject to the movement filter.
func (h *Hub) PublishLocation(state *models.TrackedEntityState, point models.GeoPoint) {
	if !h.passesMovementFilter(state.EntityID, point, state.BatteryLevel) {
		h.incrementDropped()
		return
	}

	update := &models.WSLocationUpdate{
		EntityID:     state.EntityID,
		DisplayName:  state.DisplayName,
		Role:         state.Role,
		TourID:       state.TourID,
		Point:        point,
		BatteryLevel: state.BatteryLevel,
	}
	if state.LastAssessment != nil {
		update.RiskLevel = state.LastAssessment.Level
	}

	h.enqueue(broadcastFrame{
		tourID:   state.TourID,
		toAdmins: true,
		message: models.WSMessage{
			Type:      models.WSTypeLocationUpdate,
			Timestamp: time.Now(),
			Location:  update,
		},
	})
}

// PublishAlert fans an alert frame to the entity's tour room and every admin.
// Alerts never pass through the movement filter.
func (h *Hub) PublishAlert(alert *models.Alert) {
	tourID := ""
	if state := h.monitor.GetState(alert.EntityID); state != nil {
		tourID = state.TourID
	}

	h.enqueue(broadcastFrame{
		tourID:   tourID,
		toAdmins: true,
		message: models.WSMessage{
			Type:      models.WSTypeAlert,
			Timestamp: time.Now(),
			Alert: &models.WSAlert{
				AlertID:         alert.AlertID,
				EntityID:        alert.EntityID,
				Cause:           alert.Cause,
				Severity:        alert.Severity,
				RiskScore:       alert.RiskScore,
				Message:         alert.Message,
				Recommendations: alert.Recommendations,
				Location:        alert.Location,
			},
		},
	})
}

// PublishEmergency pushes an EMERGENCY frame to every admin and the entity's
// tour room, bypassing all filtering.
func (h *Hub) PublishEmergency(incidentID, entityID, message string, location *models.GeoPoint) {
	displayName := h.monitor.DisplayName(entityID)
	tourID := ""
	if state := h.monitor.GetState(entityID); state != nil {
		tourID = state.TourID
	}

	h.enqueue(broadcastFrame{
		tourID:   tourID,
		toAdmins: true,
		message: models.WSMessage{
			Type:      models.WSTypeEmergency,
			Timestamp: time.Now(),
			Emergency: &models.WSEmergency{
				IncidentID:  incidentID,
				EntityID:    entityID,
				DisplayName: displayName,
				TourID:      tourID,
				Location:    location,
				Message:     message,
			},
		},
	})
}

func (h *Hub) enqueue(frame broadcastFrame) {
	select {
	case h.broadcast <- frame:
	default:
		h.incrementDropped()
		logrus.Warn("Broadcast channel full, dropping frame")
	}
}

// passesMovementFilter decides whether a location update is worth
// rebroadcasting: moved at least the threshold, or battery low enough that
// every sample matters, or first sample for the entity.
func (h *Hub) passesMovementFilter(entityID string, point models.GeoPoint, batteryLevel int) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	last, seen := h.lastSent[entityID]
	if !seen || batteryLevel < lowBatteryBypassPct || utils.CalculateDistance(last, point) >= movementThresholdM {
		h.lastSent[entityID] = point
		return true
	}
	return false
}

func (h *Hub) sendInitialState(client *Client) {
	snapshots := h.monitor.Snapshot()
	stats := h.monitor.Stats()

	message := models.WSMessage{
		Type:      models.WSTypeInitialState,
		Timestamp: time.Now(),
		InitialState: &models.WSInitialState{
			ActiveEntities: len(snapshots),
			ActiveAlerts:   stats.ActiveAlerts,
			Entities:       snapshots,
		},
	}

	if client.trySend(message) {
		h.incrementSent()
	}
}

// Stats merges connection counters with monitor aggregates.
func (h *Hub) Stats() models.WSStats {
	h.stats.mutex.RLock()
	defer h.stats.mutex.RUnlock()

	byRole := make(map[string]int, len(h.stats.ConnectionsByRole))
	for role, n := range h.stats.ConnectionsByRole {
		byRole[role] = n
	}

	return models.WSStats{
		ActiveConnections: h.stats.ActiveConnections,
		TrackedEntities:   h.monitor.Stats().TrackedEntities,
		ConnectionsByRole: byRole,
		MessagesSent:      h.stats.MessagesSent,
		MessagesDropped:   h.stats.MessagesDropped,
		Uptime:            time.Since(h.stats.StartTime),
	}
}

// RequestLocation forwards a location poll to a connected entity. Returns
// false when the entity has no live connection.
func (h *Hub) RequestLocation(targetEntityID string) bool {
	h.mutex.RLock()
	client := h.entityClients[targetEntityID]
	h.mutex.RUnlock()

	if client == nil {
		return false
	}
	return client.trySend(models.WSMessage{
		Type:      models.WSCmdRequestLocation,
		Timestamp: time.Now(),
	})
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]bool)
	h.admins = make(map[*Client]bool)
	h.entityClients = make(map[string]*Client)
	h.rooms = make(map[string]*Room)
}

func (h *Hub) incrementSent() {
	h.stats.mutex.Lock()
	h.stats.MessagesSent++
	h.stats.mutex.Unlock()
}

func (h *Hub) incrementDropped() {
	h.stats.mutex.Lock()
	h.stats.MessagesDropped++
	h.stats.mutex.Unlock()
}
