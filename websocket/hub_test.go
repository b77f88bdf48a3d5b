package websocket

import (
	"testing"

	"trailsafe/models"

	"github.com/stretchr/testify/assert"
)

func filterPoint(lat, lon float64) models.GeoPoint {
	return models.GeoPoint{Latitude: lat, Longitude: lon}
}

func TestMovementFilterFirstSampleAlwaysPasses(t *testing.T) {
	hub := NewHub(nil, nil)
	assert.True(t, hub.passesMovementFilter("tourist-1", filterPoint(-12.0, -77.0), 90))
}

func TestMovementFilterSuppressesSmallDisplacement(t *testing.T) {
	hub := NewHub(nil, nil)
	origin := filterPoint(-12.0, -77.0)
	assert.True(t, hub.passesMovementFilter("tourist-1", origin, 90))

	// ~1 m north of the origin.
	nearby := filterPoint(-12.0+0.00001, -77.0)
	assert.False(t, hub.passesMovementFilter("tourist-1", nearby, 90))

	// Suppressed samples must not advance the reference point.
	assert.False(t, hub.passesMovementFilter("tourist-1", nearby, 90))
}

func TestMovementFilterPassesRealMovement(t *testing.T) {
	hub := NewHub(nil, nil)
	assert.True(t, hub.passesMovementFilter("tourist-1", filterPoint(-12.0, -77.0), 90))

	// ~110 m north.
	far := filterPoint(-12.0+0.001, -77.0)
	assert.True(t, hub.passesMovementFilter("tourist-1", far, 90))
}

func TestMovementFilterLowBatteryBypass(t *testing.T) {
	hub := NewHub(nil, nil)
	origin := filterPoint(-12.0, -77.0)
	assert.True(t, hub.passesMovementFilter("tourist-1", origin, 90))

	// Same spot, but a dying battery makes every sample matter.
	assert.True(t, hub.passesMovementFilter("tourist-1", origin, 15))
}

func TestMovementFilterIsPerEntity(t *testing.T) {
	hub := NewHub(nil, nil)
	origin := filterPoint(-12.0, -77.0)
	assert.True(t, hub.passesMovementFilter("tourist-1", origin, 90))
	assert.True(t, hub.passesMovementFilter("tourist-2", origin, 90))
}
