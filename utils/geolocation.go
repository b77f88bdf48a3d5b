package utils

import (
	"fmt"
	"math"
	"time"

	"trailsafe/models"
)

const (
	EarthRadiusKm = 6371.0
	EarthRadiusM  = 6371000.0
	DegToRad      = math.Pi / 180.0
	RadToDeg      = 180.0 / math.Pi

	// AbnormalSpeedKmh is the plausibility ceiling for ground travel.
	AbnormalSpeedKmh = 150.0

	// OffRouteThresholdM flags a point as off-route beyond this deviation.
	OffRouteThresholdM = 500.0

	// StoppedSpeedKmh is the threshold below which the entity counts as stopped.
	StoppedSpeedKmh = 0.5

	// ProlongedStopDuration classifies a stop as prolonged.
	ProlongedStopDuration = 30 * time.Minute
)

// CalculateDistance calculates the distance in meters between two points
// using the Haversine formula.
func CalculateDistance(a, b models.GeoPoint) float64 {
	lat1Rad := a.Latitude * DegToRad
	lon1Rad := a.Longitude * DegToRad
	lat2Rad := b.Latitude * DegToRad
	lon2Rad := b.Longitude * DegToRad

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad

	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusM * c
}

// CalculateBearing calculates the initial bearing in degrees [0, 360) from a to b.
func CalculateBearing(a, b models.GeoPoint) float64 {
	lat1Rad := a.Latitude * DegToRad
	lon1Rad := a.Longitude * DegToRad
	lat2Rad := b.Latitude * DegToRad
	lon2Rad := b.Longitude * DegToRad

	dlon := lon2Rad - lon1Rad

	y := math.Sin(dlon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dlon)

	bearing := math.Atan2(y, x) * RadToDeg
	return math.Mod(bearing+360, 360)
}

// CalculateSpeed derives speed in km/h from two timestamped points. The
// reading is flagged abnormal when the elapsed time is non-positive or the
// speed exceeds the plausibility ceiling.
func CalculateSpeed(a, b models.GeoPoint) models.SpeedReading {
	elapsed := b.Timestamp.Sub(a.Timestamp)
	if elapsed <= 0 {
		return models.SpeedReading{SpeedKmh: 0, Abnormal: true}
	}

	distanceKm := CalculateDistance(a, b) / 1000.0
	speedKmh := distanceKm / elapsed.Hours()

	return models.SpeedReading{
		SpeedKmh: speedKmh,
		Abnormal: speedKmh > AbnormalSpeedKmh,
	}
}

// CalculateRouteDeviation returns the minimum distance from point to the
// planned route. Segment distance is approximated as the minimum of the
// distances to both endpoints and the segment midpoint.
func CalculateRouteDeviation(point models.GeoPoint, route []models.GeoPoint) models.RouteDeviation {
	if len(route) == 0 {
		return models.RouteDeviation{DistanceM: 0, OffRoute: false}
	}

	minDist := math.MaxFloat64
	for _, rp := range route {
		if d := CalculateDistance(point, rp); d < minDist {
			minDist = d
		}
	}

	for i := 0; i < len(route)-1; i++ {
		mid := models.GeoPoint{
			Latitude:  (route[i].Latitude + route[i+1].Latitude) / 2,
			Longitude: (route[i].Longitude + route[i+1].Longitude) / 2,
		}
		if d := CalculateDistance(point, mid); d < minDist {
			minDist = d
		}
	}

	return models.RouteDeviation{
		DistanceM: minDist,
		OffRoute:  minDist > OffRouteThresholdM,
	}
}

// CheckDangerZones returns every zone whose center is within twice its radius
// of the point, each with a severity-scaled recommendation.
func CheckDangerZones(point models.GeoPoint, zones []models.DangerZone) []models.ZoneProximity {
	var near []models.ZoneProximity

	for _, zone := range zones {
		dist := CalculateDistance(point, zone.Center)
		if dist > zone.RadiusM*2 {
			continue
		}

		inside := dist < zone.RadiusM
		var recommendation string
		if inside {
			recommendation = fmt.Sprintf("You are INSIDE %s (danger level %d/10). Leave the area immediately.", zone.Name, zone.DangerLevel)
		} else {
			recommendation = fmt.Sprintf("Approaching %s (danger level %d/10), %.0fm away. Keep your distance.", zone.Name, zone.DangerLevel, dist)
		}

		near = append(near, models.ZoneProximity{
			Zone:           zone,
			DistanceM:      dist,
			Inside:         inside,
			Recommendation: recommendation,
		})
	}

	return near
}

// ClassifyTerrain buckets a point into a coarse terrain class from its
// longitude band. Tuned for the Andean corridor the tours operate in: coastal
// strip west of -78.5, highlands to -76, jungle lowlands east of that.
func ClassifyTerrain(point models.GeoPoint) string {
	switch {
	case point.Longitude < -78.5:
		return "coast"
	case point.Longitude < -76.0:
		return "highland"
	default:
		return "jungle"
	}
}

// CalculateAltitudeRisk maps altitude in meters onto a four-tier risk table.
func CalculateAltitudeRisk(altitudeM float64) models.AltitudeRisk {
	switch {
	case altitudeM <= 0:
		return models.AltitudeRisk{Score: 0, Description: "unknown altitude"}
	case altitudeM < 2500:
		return models.AltitudeRisk{Score: 0, Description: "safe altitude"}
	case altitudeM < 3500:
		return models.AltitudeRisk{Score: 30, Description: "moderate altitude, acclimatization recommended"}
	case altitudeM < 5000:
		return models.AltitudeRisk{Score: 60, Description: "high altitude, risk of altitude sickness"}
	default:
		return models.AltitudeRisk{Score: 90, Description: "extreme altitude, specialized equipment required"}
	}
}

// AnalyzeMovement summarizes a point sequence: total distance and time, max
// speed, time spent stopped, abnormal-speed transitions, and a pattern class.
func AnalyzeMovement(history []models.GeoPoint) models.MovementPattern {
	if len(history) < 2 {
		return models.MovementPattern{Pattern: models.MovementInsufficientData}
	}

	var (
		totalDistance float64
		totalDuration time.Duration
		maxSpeed      float64
		stoppedTime   time.Duration
		abnormalCount int
	)

	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		elapsed := curr.Timestamp.Sub(prev.Timestamp)

		totalDistance += CalculateDistance(prev, curr)
		if elapsed > 0 {
			totalDuration += elapsed
		}

		reading := CalculateSpeed(prev, curr)
		if reading.Abnormal {
			abnormalCount++
		}
		if reading.SpeedKmh > maxSpeed {
			maxSpeed = reading.SpeedKmh
		}
		if reading.SpeedKmh < StoppedSpeedKmh && elapsed > 0 {
			stoppedTime += elapsed
		}
	}

	pattern := models.MovementNormal
	switch {
	case stoppedTime > ProlongedStopDuration:
		pattern = models.MovementProlongedStop
	case abnormalCount > 3:
		pattern = models.MovementErratic
	case maxSpeed > AbnormalSpeedKmh:
		pattern = models.MovementImpossibleSpeed
	}

	return models.MovementPattern{
		Pattern:         pattern,
		TotalDistanceM:  totalDistance,
		TotalDuration:   totalDuration,
		MaxSpeedKmh:     maxSpeed,
		StoppedDuration: stoppedTime,
		AbnormalSpeeds:  abnormalCount,
	}
}

// sunsetHourByMonth is a coarse month-bucketed local sunset hour for the
// southern tropics.
var sunsetHourByMonth = map[time.Month]float64{
	time.January: 18.5, time.February: 18.5, time.March: 18.25,
	time.April: 18.0, time.May: 17.75, time.June: 17.5,
	time.July: 17.5, time.August: 17.75, time.September: 18.0,
	time.October: 18.0, time.November: 18.25, time.December: 18.5,
}

// MinutesToSunset estimates minutes until sunset for the given time. Negative
// once the sun is down.
func MinutesToSunset(point models.GeoPoint, at time.Time) float64 {
	sunsetHour := sunsetHourByMonth[at.Month()]
	currentHour := float64(at.Hour()) + float64(at.Minute())/60.0
	return (sunsetHour - currentHour) * 60.0
}

// IsValidCoordinate checks if latitude and longitude values are valid
func IsValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
