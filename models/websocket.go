// models/websocket.go
package models

import (
	"time"
)

// Outbound event types pushed to dashboards.
const (
	WSTypeLocationUpdate = "LOCATION_UPDATE"
	WSTypeAlert          = "ALERT"
	WSTypeEmergency      = "EMERGENCY"
	WSTypeInitialState   = "INITIAL_STATE"
	WSTypeStats          = "STATS"
	WSTypeError          = "ERROR"
)

// Inbound command types accepted from connected clients.
const (
	WSCmdRequestLocation = "REQUEST_LOCATION"
	WSCmdSendMessage     = "SEND_MESSAGE"
	WSCmdActivateSOS     = "ACTIVATE_SOS"
	WSCmdSendAlert       = "SEND_ALERT"
	WSCmdGetStats        = "GET_STATS"
)

// WSMessage is the envelope for every frame on the realtime surface. Type is
// the discriminant; exactly one payload field is set per kind.
type WSMessage struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Location     *WSLocationUpdate `json:"location,omitempty"`
	Alert        *WSAlert          `json:"alert,omitempty"`
	Emergency    *WSEmergency      `json:"emergency,omitempty"`
	InitialState *WSInitialState   `json:"initialState,omitempty"`
	Stats        *WSStats          `json:"stats,omitempty"`
	Command      *WSCommand        `json:"command,omitempty"`
	Error        *WSError          `json:"error,omitempty"`
}

type WSLocationUpdate struct {
	EntityID     string   `json:"entityId"`
	DisplayName  string   `json:"displayName,omitempty"`
	Role         string   `json:"role"`
	TourID       string   `json:"tourId,omitempty"`
	Point        GeoPoint `json:"point"`
	BatteryLevel int      `json:"batteryLevel"`
	RiskLevel    string   `json:"riskLevel,omitempty"`
}

type WSAlert struct {
	AlertID         string    `json:"alertId"`
	EntityID        string    `json:"entityId"`
	Cause           string    `json:"cause"`
	Severity        string    `json:"severity"`
	RiskScore       int       `json:"riskScore"`
	Message         string    `json:"message"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Location        *GeoPoint `json:"location,omitempty"`
}

type WSEmergency struct {
	IncidentID  string    `json:"incidentId"`
	EntityID    string    `json:"entityId"`
	DisplayName string    `json:"displayName,omitempty"`
	TourID      string    `json:"tourId,omitempty"`
	Location    *GeoPoint `json:"location,omitempty"`
	Message     string    `json:"message,omitempty"`
}

type WSInitialState struct {
	ActiveEntities int              `json:"activeEntities"`
	ActiveAlerts   int              `json:"activeAlerts"`
	Entities       []EntitySnapshot `json:"entities"`
}

type WSStats struct {
	ActiveConnections int            `json:"activeConnections"`
	TrackedEntities   int            `json:"trackedEntities"`
	ConnectionsByRole map[string]int `json:"connectionsByRole"`
	MessagesSent      int64          `json:"messagesSent"`
	MessagesDropped   int64          `json:"messagesDropped"`
	Uptime            time.Duration  `json:"uptime"`
}

// WSCommand carries the inbound command payloads; which fields matter depends
// on the command type in the envelope.
type WSCommand struct {
	TargetEntityID string    `json:"targetEntityId,omitempty"` // REQUEST_LOCATION, SEND_ALERT
	TourID         string    `json:"tourId,omitempty"`         // SEND_MESSAGE
	Text           string    `json:"text,omitempty"`           // SEND_MESSAGE, SEND_ALERT
	Severity       string    `json:"severity,omitempty"`       // SEND_ALERT
	Location       *GeoPoint `json:"location,omitempty"`       // ACTIVATE_SOS
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LocationUpdateRequest is the HTTP/WS ingest payload.
type LocationUpdateRequest struct {
	EntityID     string  `json:"entityId" validate:"required"`
	DisplayName  string  `json:"displayName"`
	Role         string  `json:"role" validate:"omitempty,oneof=guide tourist"`
	TourID       string  `json:"tourId"`
	AgencyID     string  `json:"agencyId"`
	Latitude     float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Altitude     float64 `json:"altitude"`
	Accuracy     float64 `json:"accuracy"`
	BatteryLevel int     `json:"batteryLevel" validate:"gte=0,lte=100"`
}

// SOSRequest triggers an emergency cascade.
type SOSRequest struct {
	EntityID  string  `json:"entityId" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Message   string  `json:"message"`
}
