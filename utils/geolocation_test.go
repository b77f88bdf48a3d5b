// utils/geolocation_test.go
package utils

import (
	"testing"
	"time"

	"trailsafe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lima  = models.GeoPoint{Latitude: -12.0464, Longitude: -77.0428}
	cusco = models.GeoPoint{Latitude: -13.5320, Longitude: -71.9675}
)

func TestDistanceIsSymmetric(t *testing.T) {
	assert.InDelta(t, CalculateDistance(lima, cusco), CalculateDistance(cusco, lima), 1e-6)
}

func TestDistanceToSelfIsZero(t *testing.T) {
	assert.Zero(t, CalculateDistance(lima, lima))
}

func TestDistanceKnownPair(t *testing.T) {
	// Lima to Cusco is roughly 570 km great-circle.
	d := CalculateDistance(lima, cusco)
	assert.InDelta(t, 570_000, d, 20_000)
}

func TestBearingCardinalDirections(t *testing.T) {
	origin := models.GeoPoint{Latitude: 0, Longitude: 0}

	north := models.GeoPoint{Latitude: 1, Longitude: 0}
	assert.InDelta(t, 0, CalculateBearing(origin, north), 0.5)

	east := models.GeoPoint{Latitude: 0, Longitude: 1}
	assert.InDelta(t, 90, CalculateBearing(origin, east), 0.5)
}

func TestSpeedNonPositiveElapsedIsAbnormal(t *testing.T) {
	now := time.Now()

	a := models.GeoPoint{Latitude: -12.0, Longitude: -77.0, Timestamp: now}
	same := models.GeoPoint{Latitude: -12.1, Longitude: -77.0, Timestamp: now}
	assert.True(t, CalculateSpeed(a, same).Abnormal, "zero elapsed time")

	backwards := models.GeoPoint{Latitude: -12.1, Longitude: -77.0, Timestamp: now.Add(-time.Minute)}
	assert.True(t, CalculateSpeed(a, backwards).Abnormal, "negative elapsed time")
}

func TestSpeedWalkingPaceIsNormal(t *testing.T) {
	now := time.Now()
	a := models.GeoPoint{Latitude: -12.0000, Longitude: -77.0, Timestamp: now}
	b := models.GeoPoint{Latitude: -12.0009, Longitude: -77.0, Timestamp: now.Add(time.Minute)}

	reading := CalculateSpeed(a, b)
	assert.False(t, reading.Abnormal)
	assert.InDelta(t, 6.0, reading.SpeedKmh, 1.0) // ~100 m/min
}

func TestSpeedAboveThresholdIsAbnormal(t *testing.T) {
	now := time.Now()
	a := models.GeoPoint{Latitude: -12.0, Longitude: -77.0, Timestamp: now}
	b := models.GeoPoint{Latitude: -12.1, Longitude: -77.0, Timestamp: now.Add(time.Minute)} // ~11 km/min

	assert.True(t, CalculateSpeed(a, b).Abnormal)
}

func TestRouteDeviation(t *testing.T) {
	route := []models.GeoPoint{
		{Latitude: -12.00, Longitude: -77.00},
		{Latitude: -12.01, Longitude: -77.00},
		{Latitude: -12.02, Longitude: -77.00},
	}

	onRoute := CalculateRouteDeviation(models.GeoPoint{Latitude: -12.005, Longitude: -77.00}, route)
	assert.False(t, onRoute.OffRoute)

	far := CalculateRouteDeviation(models.GeoPoint{Latitude: -12.01, Longitude: -77.02}, route)
	assert.True(t, far.OffRoute, "~2 km east of the planned route")
	assert.Greater(t, far.DistanceM, float64(OffRouteThresholdM))

	empty := CalculateRouteDeviation(models.GeoPoint{Latitude: -12, Longitude: -77}, nil)
	assert.False(t, empty.OffRoute)
}

func TestCheckDangerZonesProximityBands(t *testing.T) {
	zone := models.DangerZone{
		Name:        "River crossing",
		Type:        "river",
		Center:      models.GeoPoint{Latitude: -12.00, Longitude: -77.00},
		RadiusM:     200,
		DangerLevel: 8,
	}

	inside := CheckDangerZones(models.GeoPoint{Latitude: -12.0005, Longitude: -77.00}, []models.DangerZone{zone})
	require.Len(t, inside, 1)
	assert.True(t, inside[0].Inside)
	assert.NotEmpty(t, inside[0].Recommendation)

	// Within twice the radius: approaching, not inside.
	approaching := CheckDangerZones(models.GeoPoint{Latitude: -12.003, Longitude: -77.00}, []models.DangerZone{zone})
	require.Len(t, approaching, 1)
	assert.False(t, approaching[0].Inside)

	clear := CheckDangerZones(models.GeoPoint{Latitude: -12.05, Longitude: -77.00}, []models.DangerZone{zone})
	assert.Empty(t, clear)
}

func TestAltitudeRiskBands(t *testing.T) {
	assert.Equal(t, 0, CalculateAltitudeRisk(0).Score)
	assert.Equal(t, 0, CalculateAltitudeRisk(1800).Score)
	assert.Equal(t, 30, CalculateAltitudeRisk(3000).Score)
	assert.Equal(t, 60, CalculateAltitudeRisk(4200).Score)
	assert.Equal(t, 90, CalculateAltitudeRisk(5500).Score)
}

func TestAnalyzeMovementInsufficientData(t *testing.T) {
	pattern := AnalyzeMovement([]models.GeoPoint{{Latitude: -12, Longitude: -77}})
	assert.Equal(t, models.MovementInsufficientData, pattern.Pattern)
}

func TestAnalyzeMovementProlongedStop(t *testing.T) {
	now := time.Now()
	var history []models.GeoPoint
	for i := 0; i < 5; i++ {
		history = append(history, models.GeoPoint{
			Latitude:  -12.0,
			Longitude: -77.0,
			Timestamp: now.Add(time.Duration(i) * 10 * time.Minute),
		})
	}

	pattern := AnalyzeMovement(history)
	assert.Equal(t, models.MovementProlongedStop, pattern.Pattern)
	assert.GreaterOrEqual(t, pattern.StoppedDuration, 30*time.Minute)
}

func TestAnalyzeMovementImpossibleSpeed(t *testing.T) {
	now := time.Now()
	history := []models.GeoPoint{
		{Latitude: -12.0, Longitude: -77.0, Timestamp: now},
		{Latitude: -12.1, Longitude: -77.0, Timestamp: now.Add(time.Minute)},
	}

	pattern := AnalyzeMovement(history)
	assert.Equal(t, models.MovementImpossibleSpeed, pattern.Pattern)
}

func TestClassifyTerrain(t *testing.T) {
	assert.Equal(t, "coast", ClassifyTerrain(models.GeoPoint{Latitude: -12, Longitude: -79.0}))
	assert.Equal(t, "highland", ClassifyTerrain(models.GeoPoint{Latitude: -13, Longitude: -77.0}))
	assert.Equal(t, "jungle", ClassifyTerrain(models.GeoPoint{Latitude: -12, Longitude: -74.0}))
}

func TestIsValidCoordinate(t *testing.T) {
	assert.True(t, IsValidCoordinate(-12.05, -77.04))
	assert.True(t, IsValidCoordinate(90, 180))
	assert.False(t, IsValidCoordinate(90.1, 0))
	assert.False(t, IsValidCoordinate(0, -180.5))
}
