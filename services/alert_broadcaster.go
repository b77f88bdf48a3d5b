// services/alert_broadcaster.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trailsafe/models"
	"trailsafe/resilience"
	"trailsafe/utils"

	"github.com/sirupsen/logrus"
)

// ContactDirectory resolves an entity's prioritized emergency contacts.
// Implemented by repositories.ContactRepository.
type ContactDirectory interface {
	GetActiveContacts(ctx context.Context, entityID string) ([]models.EmergencyContact, error)
}

// AuditSink is the append-only audit trail. Implemented by
// repositories.AuditRepository.
type AuditSink interface {
	Record(ctx context.Context, record *models.AuditRecord) error
}

// EntityNameResolver maps an entity id to its display name for outbound
// messages. Implemented by the safety monitor.
type EntityNameResolver interface {
	DisplayName(entityID string) string
}

// BroadcasterConfig tunes the emergency cascade.
type BroadcasterConfig struct {
	PublicBaseURL  string
	LinkTTL        time.Duration // default 24h
	ChannelTimeout time.Duration // per-send bound, keeps the fan-out fast
	Retry          resilience.RetryConfig
}

func DefaultBroadcasterConfig(baseURL string) BroadcasterConfig {
	return BroadcasterConfig{
		PublicBaseURL:  baseURL,
		LinkTTL:        24 * time.Hour,
		ChannelTimeout: 5 * time.Second,
		Retry:          resilience.DefaultRetryConfig(),
	}
}

// AlertBroadcaster cascades an SOS to an entity's contacts across every
// configured channel, isolating per-(contact,channel) failures.
type AlertBroadcaster struct {
	config   BroadcasterConfig
	contacts ContactDirectory
	audit    AuditSink
	names    EntityNameResolver
	links    TrackingLinkStore
	channels map[string]NotificationChannel
	breakers map[string]*resilience.CircuitBreaker
}

func NewAlertBroadcaster(
	config BroadcasterConfig,
	contacts ContactDirectory,
	audit AuditSink,
	names EntityNameResolver,
	links TrackingLinkStore,
	channels []NotificationChannel,
) *AlertBroadcaster {
	channelMap := make(map[string]NotificationChannel, len(channels))
	breakers := make(map[string]*resilience.CircuitBreaker, len(channels))
	for _, ch := range channels {
		channelMap[ch.Name()] = ch
		breakers[ch.Name()] = resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig(ch.Name()))
	}

	if config.LinkTTL <= 0 {
		config.LinkTTL = 24 * time.Hour
	}
	if config.ChannelTimeout <= 0 {
		config.ChannelTimeout = 5 * time.Second
	}

	return &AlertBroadcaster{
		config:   config,
		contacts: contacts,
		audit:    audit,
		names:    names,
		links:    links,
		channels: channelMap,
		breakers: breakers,
	}
}

// dispatch is one (contact, channel) notification task.
type dispatch struct {
	contact models.EmergencyContact
	channel NotificationChannel
}

// BroadcastSOS resolves the contact cascade, issues a tracking link, and
// fans the notification out concurrently. It always returns a result, even
// under total external failure.
func (ab *AlertBroadcaster) BroadcastSOS(ctx context.Context, incidentID, entityID string, location models.GeoPoint) (*models.BroadcastResult, error) {
	started := time.Now()

	contacts, err := ab.contacts.GetActiveContacts(ctx, entityID)
	if err != nil {
		logrus.Errorf("Failed to resolve contacts for %s: %v", entityID, err)
		contacts = nil
	}

	result := &models.BroadcastResult{
		IncidentID:    incidentID,
		TotalContacts: len(contacts),
		ByChannel:     make(map[string]int),
	}

	if len(contacts) == 0 {
		logrus.Warnf("SOS %s for %s has no active contacts", incidentID, entityID)
		result.Elapsed = time.Since(started)
		return result, nil
	}

	link, err := ab.issueTrackingLink(ctx, incidentID, entityID)
	if err != nil {
		// The cascade still goes out without a link.
		logrus.Errorf("Failed to issue tracking link for incident %s: %v", incidentID, err)
	}
	result.TrackingLink = link

	displayName := ab.names.DisplayName(entityID)
	msg := ab.buildSOSMessage(displayName, location, link)

	tasks := ab.resolveDispatches(contacts)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task dispatch) {
			defer wg.Done()

			send := resilience.Wrap(func(ctx context.Context) error {
				return task.channel.Notify(ctx, task.contact, msg)
			}, ab.breakers[task.channel.Name()], ab.config.Retry, ab.config.ChannelTimeout)

			err := send(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logrus.Warnf("Notification to %s via %s failed: %v", task.contact.Name, task.channel.Name(), err)
				return
			}
			result.ByChannel[task.channel.Name()]++
		}(task)
	}
	wg.Wait()

	result.Elapsed = time.Since(started)

	ab.recordAudit(ctx, "sos_broadcast", incidentID, entityID, result)

	logrus.Infof("SOS %s broadcast: %d contacts, %d failed, %s elapsed",
		incidentID, result.TotalContacts, result.Failed, result.Elapsed.Round(time.Millisecond))

	return result, nil
}

// NotifyResolved informs the cascade that the incident is over, then
// invalidates every tracking token bound to it.
func (ab *AlertBroadcaster) NotifyResolved(ctx context.Context, incidentID, entityID string) error {
	contacts, err := ab.contacts.GetActiveContacts(ctx, entityID)
	if err != nil {
		return fmt.Errorf("failed to resolve contacts: %w", err)
	}

	displayName := ab.names.DisplayName(entityID)
	msg := ChannelMessage{
		Text:         utils.TruncateString(fmt.Sprintf("%s is safe. The emergency has been resolved. Thank you.", displayName), 160),
		TTSText:      fmt.Sprintf("Good news. %s is safe and the emergency has been resolved.", displayName),
		Title:        "Emergency resolved",
		Body:         fmt.Sprintf("%s is safe.", displayName),
		TemplateName: "incident_resolved",
		TemplateVars: map[string]string{"1": displayName},
	}

	result := &models.BroadcastResult{
		IncidentID:    incidentID,
		TotalContacts: len(contacts),
		ByChannel:     make(map[string]int),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, task := range ab.resolveDispatches(contacts) {
		wg.Add(1)
		go func(task dispatch) {
			defer wg.Done()

			send := resilience.Wrap(func(ctx context.Context) error {
				return task.channel.Notify(ctx, task.contact, msg)
			}, ab.breakers[task.channel.Name()], ab.config.Retry, ab.config.ChannelTimeout)

			err := send(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				return
			}
			result.ByChannel[task.channel.Name()]++
		}(task)
	}
	wg.Wait()

	removed, err := ab.links.DeleteByIncident(ctx, incidentID)
	if err != nil {
		logrus.Errorf("Failed to invalidate tracking tokens for %s: %v", incidentID, err)
	} else if removed > 0 {
		logrus.Infof("Invalidated %d tracking tokens for resolved incident %s", removed, incidentID)
	}

	ab.recordAudit(ctx, "resolved_notice", incidentID, entityID, result)
	return nil
}

// ValidateTrackingToken resolves a token to its live link, or nil when the
// token is unknown or expired.
func (ab *AlertBroadcaster) ValidateTrackingToken(ctx context.Context, token string) (*models.TrackingLink, error) {
	return ab.links.Get(ctx, token)
}

func (ab *AlertBroadcaster) issueTrackingLink(ctx context.Context, incidentID, entityID string) (*models.TrackingLink, error) {
	token, err := utils.GenerateSecureToken(24)
	if err != nil {
		return nil, err
	}

	link := models.TrackingLink{
		Token:      token,
		URL:        fmt.Sprintf("%s/track/%s", ab.config.PublicBaseURL, token),
		IncidentID: incidentID,
		EntityID:   entityID,
		ExpiresAt:  time.Now().Add(ab.config.LinkTTL),
		CreatedAt:  time.Now(),
	}

	if err := ab.links.Save(ctx, link); err != nil {
		return nil, err
	}
	return &link, nil
}

// buildSOSMessage renders the channel-agnostic emergency content. The SMS
// text is re-templated to stay within the 160-character single-segment limit.
func (ab *AlertBroadcaster) buildSOSMessage(displayName string, location models.GeoPoint, link *models.TrackingLink) ChannelMessage {
	url := ""
	if link != nil {
		url = link.URL
	}

	text := fmt.Sprintf("EMERGENCY: %s needs help. Live location: %s", displayName, url)
	if len(text) > 160 {
		text = fmt.Sprintf("SOS %s: %s", utils.TruncateString(displayName, 20), url)
	}

	return ChannelMessage{
		Text:    text,
		TTSText: fmt.Sprintf("This is an emergency alert. %s has triggered an S O S and may need help. A tracking link has been sent to you by text message.", displayName),
		Title:   "EMERGENCY SOS",
		Body:    fmt.Sprintf("%s needs help. Tap to view live location.", displayName),
		Data: map[string]string{
			"type":      "sos",
			"latitude":  fmt.Sprintf("%.6f", location.Latitude),
			"longitude": fmt.Sprintf("%.6f", location.Longitude),
			"url":       url,
		},
		TemplateName: "sos_alert",
		TemplateVars: map[string]string{"1": displayName, "2": url},
	}
}

// resolveDispatches expands contacts (already priority-ordered) into
// (contact, channel) tasks: the preferred channel, plus push whenever a
// device token is registered.
func (ab *AlertBroadcaster) resolveDispatches(contacts []models.EmergencyContact) []dispatch {
	var tasks []dispatch
	for _, contact := range contacts {
		if ch, ok := ab.channels[contact.PreferredChannel]; ok {
			tasks = append(tasks, dispatch{contact: contact, channel: ch})
		} else if contact.PreferredChannel != "" {
			logrus.Warnf("Contact %s prefers unconfigured channel %s, skipping", contact.Name, contact.PreferredChannel)
		}

		if contact.PushToken != "" && contact.PreferredChannel != ChannelPush {
			if push, ok := ab.channels[ChannelPush]; ok {
				tasks = append(tasks, dispatch{contact: contact, channel: push})
			}
		}
	}
	return tasks
}

func (ab *AlertBroadcaster) recordAudit(ctx context.Context, event, incidentID, entityID string, result *models.BroadcastResult) {
	record := &models.AuditRecord{
		IncidentID: incidentID,
		EntityID:   entityID,
		Event:      event,
		Contacts:   result.TotalContacts,
		Failed:     result.Failed,
		ByChannel:  result.ByChannel,
		ElapsedMs:  result.Elapsed.Milliseconds(),
	}
	if err := ab.audit.Record(ctx, record); err != nil {
		logrus.Errorf("Failed to write audit record for %s: %v", incidentID, err)
	}
}
