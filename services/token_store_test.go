// services/token_store_test.go
package services

import (
	"context"
	"testing"
	"time"

	"trailsafe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinkStore() (*MemoryLinkStore, *time.Time) {
	store := NewMemoryLinkStore()
	current := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	return store, &current
}

func testLink(token, incidentID string, expiresAt time.Time) models.TrackingLink {
	return models.TrackingLink{
		Token:      token,
		IncidentID: incidentID,
		URL:        "https://trailsafe.app/track/" + token,
		ExpiresAt:  expiresAt,
	}
}

func TestMemoryLinkStoreRoundTrip(t *testing.T) {
	store, current := newTestLinkStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLink("tok-1", "inc-1", current.Add(24*time.Hour))))

	link, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "inc-1", link.IncidentID)

	unknown, err := store.Get(ctx, "tok-missing")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestMemoryLinkStoreExpiredTokenIsGone(t *testing.T) {
	store, current := newTestLinkStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLink("tok-1", "inc-1", current.Add(time.Hour))))

	*current = current.Add(2 * time.Hour)
	link, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, link, "expired token must not validate")

	// Expiry on access also removes the entry, so a later sweep finds nothing.
	assert.Equal(t, 0, store.SweepExpired())
}

func TestMemoryLinkStoreDeleteByIncident(t *testing.T) {
	store, current := newTestLinkStore()
	ctx := context.Background()
	expiry := current.Add(24 * time.Hour)

	require.NoError(t, store.Save(ctx, testLink("tok-1", "inc-1", expiry)))
	require.NoError(t, store.Save(ctx, testLink("tok-2", "inc-1", expiry)))
	require.NoError(t, store.Save(ctx, testLink("tok-3", "inc-2", expiry)))

	removed, err := store.DeleteByIncident(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, token := range []string{"tok-1", "tok-2"} {
		link, err := store.Get(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, link)
	}

	survivor, err := store.Get(ctx, "tok-3")
	require.NoError(t, err)
	assert.NotNil(t, survivor)
}

func TestMemoryLinkStoreSweepRemovesOnlyExpired(t *testing.T) {
	store, current := newTestLinkStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testLink("tok-short", "inc-1", current.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, testLink("tok-long", "inc-1", current.Add(48*time.Hour))))

	*current = current.Add(3 * time.Hour)
	assert.Equal(t, 1, store.SweepExpired())

	link, err := store.Get(ctx, "tok-long")
	require.NoError(t, err)
	assert.NotNil(t, link)
}
