// models/tracking.go
package models

import (
	"time"
)

// Entity roles on a tour.
const (
	RoleGuide   = "guide"
	RoleTourist = "tourist"
	RoleAdmin   = "admin"
)

// Risk levels derived from the merged 0-100 score.
const (
	RiskLevelLow      = "low"      // [0, 30)
	RiskLevelMedium   = "medium"   // [30, 60)
	RiskLevelHigh     = "high"     // [60, 80)
	RiskLevelCritical = "critical" // [80, 100]
)

// RiskLevelForScore maps a merged score onto its level band.
func RiskLevelForScore(score int) string {
	switch {
	case score >= 80:
		return RiskLevelCritical
	case score >= 60:
		return RiskLevelHigh
	case score >= 30:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// RiskAssessment is the outcome of one prediction pass for one entity.
type RiskAssessment struct {
	Score           int       `json:"score" bson:"score"` // 0-100
	Level           string    `json:"level" bson:"level"`
	Confidence      float64   `json:"confidence" bson:"confidence"` // 0.0-1.0
	Factors         []string  `json:"factors" bson:"factors"`
	Recommendations []string  `json:"recommendations" bson:"recommendations"`
	ImmediateAction bool      `json:"immediateAction" bson:"immediateAction"`
	AssessedAt      time.Time `json:"assessedAt" bson:"assessedAt"`
}

// DangerPrediction is one probability-ranked danger from the predictor.
type DangerPrediction struct {
	Type        string  `json:"type"`
	Probability float64 `json:"probability"` // 0.0-1.0
	Action      string  `json:"action"`
	Basis       string  `json:"basis"` // short human explanation of the formula used
}

// TrackedEntityState is the per-entity mutable state owned by the safety
// monitor's keyed store. History is a FIFO ring bounded at HistoryCapacity.
type TrackedEntityState struct {
	EntityID    string `json:"entityId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	TourID      string `json:"tourId,omitempty"`
	AgencyID    string `json:"agencyId,omitempty"`

	History      []GeoPoint `json:"history"`
	LastPoint    *GeoPoint  `json:"lastPoint,omitempty"`
	BatteryLevel int        `json:"batteryLevel"`

	LastAssessment *RiskAssessment `json:"lastAssessment,omitempty"`
	LastAssessedAt time.Time       `json:"lastAssessedAt,omitempty"`

	AlertCount  int       `json:"alertCount"`
	LastAlertAt time.Time `json:"lastAlertAt,omitempty"`

	// lastCauseAlert enforces the per-cause cooldown; firedOnce tracks
	// one-time-per-session causes such as battery_critical.
	LastCauseAlert map[string]time.Time `json:"-"`
	FiredOnce      map[string]bool      `json:"-"`

	FirstSeenAt time.Time `json:"firstSeenAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AppendPoint pushes a point onto the bounded history, evicting the oldest
// sample when capacity is reached.
func (s *TrackedEntityState) AppendPoint(p GeoPoint, capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	if len(s.History) >= capacity {
		copy(s.History, s.History[len(s.History)-capacity+1:])
		s.History = s.History[:capacity-1]
	}
	s.History = append(s.History, p)
	s.LastPoint = &p
	s.UpdatedAt = time.Now()
}

// EntitySnapshot is what the realtime hub hands new admin connections.
type EntitySnapshot struct {
	EntityID       string    `json:"entityId"`
	DisplayName    string    `json:"displayName"`
	Role           string    `json:"role"`
	TourID         string    `json:"tourId,omitempty"`
	LastPoint      *GeoPoint `json:"lastPoint,omitempty"`
	BatteryLevel   int       `json:"batteryLevel"`
	RiskLevel      string    `json:"riskLevel,omitempty"`
	LastUpdateTime time.Time `json:"lastUpdateTime"`
}
