// models/alert.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert cause types. Predictive alerts ride the per-cause cooldown; the
// *_critical causes fire once per tracking session.
const (
	AlertCausePredictive      = "predictive"
	AlertCauseDangerZone      = "danger_zone"
	AlertCauseLowBattery      = "low_battery"
	AlertCauseBatteryCritical = "battery_critical"
	AlertCauseProlongedStop   = "prolonged_stop"
	AlertCauseAbnormalSpeed   = "abnormal_speed"
	AlertCauseOffRoute        = "off_route"
	AlertCauseSOS             = "sos"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a single safety alert emitted for a tracked entity.
type Alert struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AlertID         string             `json:"alertId" bson:"alertId"`
	EntityID        string             `json:"entityId" bson:"entityId"`
	Cause           string             `json:"cause" bson:"cause"`
	Severity        string             `json:"severity" bson:"severity"`
	RiskScore       int                `json:"riskScore" bson:"riskScore"`
	Message         string             `json:"message" bson:"message"`
	Recommendations []string           `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
	Location        *GeoPoint          `json:"location,omitempty" bson:"location,omitempty"`
	Acknowledged    bool               `json:"acknowledged" bson:"acknowledged"`
	AcknowledgedBy  string             `json:"acknowledgedBy,omitempty" bson:"acknowledgedBy,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
}

// EmergencyContact is one prioritized recipient resolved from the directory.
type EmergencyContact struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EntityID         string             `json:"entityId" bson:"entityId"`
	Name             string             `json:"name" bson:"name"`
	Phone            string             `json:"phone" bson:"phone"`
	PreferredChannel string             `json:"preferredChannel" bson:"preferredChannel"` // sms, voice, whatsapp, push
	PushToken        string             `json:"pushToken,omitempty" bson:"pushToken,omitempty"`
	Language         string             `json:"language,omitempty" bson:"language,omitempty"`
	Priority         int                `json:"priority" bson:"priority"` // 1 = first
	Active           bool               `json:"active" bson:"active"`
}

// TrackingLink is a time-limited credential letting a contact follow an
// incident's live location.
type TrackingLink struct {
	Token      string    `json:"token"`
	URL        string    `json:"url"`
	IncidentID string    `json:"incidentId"`
	EntityID   string    `json:"entityId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reports whether the link is past its TTL.
func (l TrackingLink) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// BroadcastResult aggregates the outcome of one SOS cascade.
type BroadcastResult struct {
	IncidentID    string         `json:"incidentId"`
	TotalContacts int            `json:"totalContacts"`
	ByChannel     map[string]int `json:"byChannel"` // successes per channel
	Failed        int            `json:"failed"`
	TrackingLink  *TrackingLink  `json:"trackingLink,omitempty"`
	Elapsed       time.Duration  `json:"elapsedMs"`
}

// AuditRecord is the immutable who/when/how-many trail of one broadcast.
type AuditRecord struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	IncidentID string             `json:"incidentId" bson:"incidentId"`
	EntityID   string             `json:"entityId" bson:"entityId"`
	Event      string             `json:"event" bson:"event"` // sos_broadcast, resolved_notice
	Contacts   int                `json:"contacts" bson:"contacts"`
	Failed     int                `json:"failed" bson:"failed"`
	ByChannel  map[string]int     `json:"byChannel,omitempty" bson:"byChannel,omitempty"`
	ElapsedMs  int64              `json:"elapsedMs" bson:"elapsedMs"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}
