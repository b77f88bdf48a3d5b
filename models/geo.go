// models/geo.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GeoPoint is a single GPS sample. Immutable once built.
type GeoPoint struct {
	Latitude  float64   `json:"latitude" bson:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64   `json:"longitude" bson:"longitude" validate:"required,gte=-180,lte=180"`
	Altitude  float64   `json:"altitude,omitempty" bson:"altitude,omitempty"` // meters, 0 when unknown
	Accuracy  float64   `json:"accuracy,omitempty" bson:"accuracy,omitempty"` // GPS accuracy in meters
	Timestamp time.Time `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// HasAltitude reports whether the sample carries a usable altitude reading.
func (p GeoPoint) HasAltitude() bool {
	return p.Altitude > 0
}

// DangerZone is static reference data: a circular area with a 1-10 danger level.
type DangerZone struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Type        string             `json:"type" bson:"type"` // cliff, river, landslide, restricted
	Center      GeoPoint           `json:"center" bson:"center"`
	RadiusM     float64            `json:"radiusMeters" bson:"radiusMeters"`
	DangerLevel int                `json:"dangerLevel" bson:"dangerLevel"` // 1-10
}

// ZoneProximity is one zone the entity is near, with a severity-scaled recommendation.
type ZoneProximity struct {
	Zone           DangerZone `json:"zone"`
	DistanceM      float64    `json:"distanceMeters"`
	Inside         bool       `json:"inside"`
	Recommendation string     `json:"recommendation"`
}

// SpeedReading is a computed speed together with its plausibility flag.
type SpeedReading struct {
	SpeedKmh float64 `json:"speedKmh"`
	Abnormal bool    `json:"abnormal"` // non-positive elapsed time or > 150 km/h
}

// RouteDeviation reports how far a point strays from a planned route.
type RouteDeviation struct {
	DistanceM float64 `json:"distanceMeters"`
	OffRoute  bool    `json:"offRoute"` // beyond 500 m
}

// AltitudeRisk maps an altitude to a 0-100 risk score.
type AltitudeRisk struct {
	Score       int    `json:"score"`
	Description string `json:"description"`
}

// Movement pattern classifications produced by utils.AnalyzeMovement.
const (
	MovementNormal           = "normal"
	MovementProlongedStop    = "prolonged_stop"
	MovementErratic          = "erratic"
	MovementImpossibleSpeed  = "impossible_speed"
	MovementInsufficientData = "insufficient_data"
)

// MovementPattern summarizes a window of location history.
type MovementPattern struct {
	Pattern         string        `json:"pattern"`
	TotalDistanceM  float64       `json:"totalDistanceMeters"`
	TotalDuration   time.Duration `json:"totalDuration"`
	MaxSpeedKmh     float64       `json:"maxSpeedKmh"`
	StoppedDuration time.Duration `json:"stoppedDuration"`
	AbnormalSpeeds  int           `json:"abnormalSpeeds"`
}
