// services/zone_provider.go
package services

import (
	"context"
	"time"

	"trailsafe/cache"
	"trailsafe/models"

	"github.com/sirupsen/logrus"
)

const zoneCacheKey = "danger_zones:all"

// ZoneSource is the persistent danger-zone catalog. Implemented by
// repositories.ZoneRepository.
type ZoneSource interface {
	GetAll(ctx context.Context) ([]models.DangerZone, error)
}

// ZoneProvider hands the monitor the current danger-zone set.
type ZoneProvider interface {
	Zones(ctx context.Context) []models.DangerZone
}

// CachedZoneProvider memoizes the zone catalog in the bounded cache so the
// hot ingestion path never waits on the database.
type CachedZoneProvider struct {
	source ZoneSource
	cache  *cache.BoundedCache
	ttl    time.Duration
}

func NewCachedZoneProvider(source ZoneSource, c *cache.BoundedCache, ttl time.Duration) *CachedZoneProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedZoneProvider{source: source, cache: c, ttl: ttl}
}

// Zones returns the cached catalog, refreshing from the source on a miss.
// A source failure degrades to an empty set rather than failing ingestion.
func (zp *CachedZoneProvider) Zones(ctx context.Context) []models.DangerZone {
	if cached, ok := zp.cache.Get(zoneCacheKey); ok {
		if zones, ok := cached.([]models.DangerZone); ok {
			return zones
		}
	}

	zones, err := zp.source.GetAll(ctx)
	if err != nil {
		logrus.Errorf("Failed to load danger zones: %v", err)
		return nil
	}

	zp.cache.SetWithTTL(zoneCacheKey, zones, cache.PriorityHigh, zp.ttl)
	return zones
}

// StaticZoneProvider serves a fixed zone set. Used when no database is
// configured and in tests.
type StaticZoneProvider struct {
	zones []models.DangerZone
}

func NewStaticZoneProvider(zones []models.DangerZone) *StaticZoneProvider {
	return &StaticZoneProvider{zones: zones}
}

func (zp *StaticZoneProvider) Zones(ctx context.Context) []models.DangerZone {
	return zp.zones
}
