// services/alert_broadcaster_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trailsafe/models"
	"trailsafe/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	contacts []models.EmergencyContact
	err      error
}

func (d *stubDirectory) GetActiveContacts(ctx context.Context, entityID string) ([]models.EmergencyContact, error) {
	return d.contacts, d.err
}

type stubAudit struct {
	mu      sync.Mutex
	records []*models.AuditRecord
}

func (a *stubAudit) Record(ctx context.Context, record *models.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
	return nil
}

type stubNames struct{}

func (stubNames) DisplayName(entityID string) string { return "Maria Lopez" }

type stubChannel struct {
	name string
	fail func(contact models.EmergencyContact) error

	mu    sync.Mutex
	sends []string // contact names, in dispatch order
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error {
	c.mu.Lock()
	c.sends = append(c.sends, contact.Name)
	c.mu.Unlock()
	if c.fail != nil {
		return c.fail(contact)
	}
	return nil
}

func testCascadeContacts() []models.EmergencyContact {
	return []models.EmergencyContact{
		{EntityID: "tourist-1", Name: "Juan", Phone: "+51911111111", PreferredChannel: ChannelSMS, Priority: 1, Active: true},
		{EntityID: "tourist-1", Name: "Rosa", Phone: "+51922222222", PreferredChannel: ChannelVoice, Priority: 2, Active: true},
		{EntityID: "tourist-1", Name: "Ana", Phone: "+51933333333", PreferredChannel: ChannelWhatsApp, Priority: 3, Active: true},
	}
}

// noRetry keeps failure-path tests fast; retry semantics are covered in the
// resilience package.
func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond}
}

func newTestBroadcaster(directory ContactDirectory, audit AuditSink, channels ...NotificationChannel) (*AlertBroadcaster, *MemoryLinkStore) {
	links := NewMemoryLinkStore()
	config := DefaultBroadcasterConfig("https://track.example.com")
	config.Retry = noRetry()
	return NewAlertBroadcaster(config, directory, audit, stubNames{}, links, channels), links
}

func TestBroadcastSOSEmptyContactsReturnsZeroCounts(t *testing.T) {
	audit := &stubAudit{}
	broadcaster, _ := newTestBroadcaster(&stubDirectory{}, audit, &stubChannel{name: ChannelSMS})

	result, err := broadcaster.BroadcastSOS(context.Background(), "incident-1", "tourist-1", models.GeoPoint{Latitude: -12, Longitude: -75})
	require.NoError(t, err, "an empty cascade is not an error")
	assert.Equal(t, 0, result.TotalContacts)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.ByChannel)
}

func TestBroadcastSOSPartialChannelFailure(t *testing.T) {
	sms := &stubChannel{
		name: ChannelSMS,
		fail: func(contact models.EmergencyContact) error {
			return errors.New("carrier rejected")
		},
	}
	voice := &stubChannel{name: ChannelVoice}
	whatsapp := &stubChannel{name: ChannelWhatsApp}

	audit := &stubAudit{}
	broadcaster, _ := newTestBroadcaster(&stubDirectory{contacts: testCascadeContacts()}, audit, sms, voice, whatsapp)

	result, err := broadcaster.BroadcastSOS(context.Background(), "incident-1", "tourist-1", models.GeoPoint{Latitude: -12, Longitude: -75})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalContacts)
	assert.Equal(t, 1, result.Failed, "only the SMS dispatch fails")
	assert.Equal(t, 1, result.ByChannel[ChannelVoice])
	assert.Equal(t, 1, result.ByChannel[ChannelWhatsApp])
	assert.Zero(t, result.ByChannel[ChannelSMS])

	require.Len(t, audit.records, 1)
	assert.Equal(t, "sos_broadcast", audit.records[0].Event)
	assert.Equal(t, 3, audit.records[0].Contacts)
	assert.Equal(t, 1, audit.records[0].Failed)
}

func TestBroadcastSOSIssuesValidTrackingLink(t *testing.T) {
	broadcaster, _ := newTestBroadcaster(&stubDirectory{contacts: testCascadeContacts()}, &stubAudit{},
		&stubChannel{name: ChannelSMS}, &stubChannel{name: ChannelVoice}, &stubChannel{name: ChannelWhatsApp})

	result, err := broadcaster.BroadcastSOS(context.Background(), "incident-1", "tourist-1", models.GeoPoint{Latitude: -12, Longitude: -75})
	require.NoError(t, err)
	require.NotNil(t, result.TrackingLink)
	assert.Contains(t, result.TrackingLink.URL, result.TrackingLink.Token)

	ttl := time.Until(result.TrackingLink.ExpiresAt)
	assert.InDelta(t, (24 * time.Hour).Seconds(), ttl.Seconds(), 60, "default link TTL is 24 hours")

	link, err := broadcaster.ValidateTrackingToken(context.Background(), result.TrackingLink.Token)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "incident-1", link.IncidentID)

	unknown, err := broadcaster.ValidateTrackingToken(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestSOSMessageFitsSingleSMSSegment(t *testing.T) {
	sms := &stubChannel{name: ChannelSMS}
	captured := make(chan ChannelMessage, 1)
	capturing := &capturingChannel{inner: sms, out: captured}

	broadcaster, _ := newTestBroadcaster(&stubDirectory{contacts: testCascadeContacts()[:1]}, &stubAudit{}, capturing)

	_, err := broadcaster.BroadcastSOS(context.Background(), "incident-1", "tourist-1", models.GeoPoint{Latitude: -12, Longitude: -75})
	require.NoError(t, err)

	msg := <-captured
	assert.LessOrEqual(t, len(msg.Text), 160)
	assert.Contains(t, msg.Text, "Maria Lopez")
}

type capturingChannel struct {
	inner *stubChannel
	out   chan ChannelMessage
}

func (c *capturingChannel) Name() string { return c.inner.Name() }

func (c *capturingChannel) Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error {
	select {
	case c.out <- msg:
	default:
	}
	return c.inner.Notify(ctx, contact, msg)
}

func TestNotifyResolvedInvalidatesTokens(t *testing.T) {
	broadcaster, links := newTestBroadcaster(&stubDirectory{contacts: testCascadeContacts()}, &stubAudit{},
		&stubChannel{name: ChannelSMS}, &stubChannel{name: ChannelVoice}, &stubChannel{name: ChannelWhatsApp})

	result, err := broadcaster.BroadcastSOS(context.Background(), "incident-1", "tourist-1", models.GeoPoint{Latitude: -12, Longitude: -75})
	require.NoError(t, err)
	require.NotNil(t, result.TrackingLink)

	require.NoError(t, broadcaster.NotifyResolved(context.Background(), "incident-1", "tourist-1"))

	link, err := links.Get(context.Background(), result.TrackingLink.Token)
	require.NoError(t, err)
	assert.Nil(t, link, "resolution sweeps every token for the incident")
}

func TestBroadcastSkipsUnconfiguredPreferredChannel(t *testing.T) {
	contacts := []models.EmergencyContact{
		{EntityID: "tourist-1", Name: "Juan", PreferredChannel: ChannelSMS, Priority: 1, Active: true},
		{EntityID: "tourist-1", Name: "Rosa", PreferredChannel: ChannelVoice, Priority: 2, Active: true},
	}
	sms := &stubChannel{name: ChannelSMS}
	broadcaster, _ := newTestBroadcaster(&stubDirectory{contacts: contacts}, &stubAudit{}, sms)

	result, err := broadcaster.BroadcastSOS(context.Background(), "incident-1", "tourist-1", models.GeoPoint{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalContacts)
	assert.Equal(t, 1, result.ByChannel[ChannelSMS])
	assert.Equal(t, 0, result.Failed, "a missing channel is skipped, not failed")
}
