// services/channels.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"trailsafe/models"
	"trailsafe/utils"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"google.golang.org/api/option"
)

// Channel names used in broadcast results and contact preferences.
const (
	ChannelSMS      = "sms"
	ChannelVoice    = "voice"
	ChannelWhatsApp = "whatsapp"
	ChannelPush     = "push"
)

// ChannelMessage is the channel-agnostic outbound content; each channel
// renders the part it needs.
type ChannelMessage struct {
	Text         string            // SMS body, fits 160 chars
	TTSText      string            // spoken text for voice calls
	Title        string            // push title
	Body         string            // push body
	Data         map[string]string // push data payload
	TemplateName string            // WhatsApp content template
	TemplateVars map[string]string // WhatsApp template parameters
}

// NotificationChannel is one delivery channel in the cascade. A send error
// is tallied by the broadcaster and never aborts the fan-out.
type NotificationChannel interface {
	Name() string
	Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error
}

// ---------- Twilio SMS ----------

type TwilioSMSChannel struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioSMSChannel(client *twilio.RestClient, fromNumber string) *TwilioSMSChannel {
	return &TwilioSMSChannel{client: client, fromNumber: fromNumber}
}

func (c *TwilioSMSChannel) Name() string { return ChannelSMS }

func (c *TwilioSMSChannel) Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error {
	if c.client == nil {
		return utils.NewConfigurationError("sms channel")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.fromNumber)
	params.SetTo(contact.Phone)
	params.SetBody(msg.Text)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		return utils.NewTransientError("failed to send SMS", err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		return utils.NewTransientError(fmt.Sprintf("SMS rejected with code %d", *resp.ErrorCode), nil)
	}

	logrus.Debugf("SMS sent to %s", utils.NormalizePhoneNumber(contact.Phone))
	return nil
}

// ---------- Twilio Voice ----------

type TwilioVoiceChannel struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioVoiceChannel(client *twilio.RestClient, fromNumber string) *TwilioVoiceChannel {
	return &TwilioVoiceChannel{client: client, fromNumber: fromNumber}
}

func (c *TwilioVoiceChannel) Name() string { return ChannelVoice }

func (c *TwilioVoiceChannel) Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error {
	if c.client == nil {
		return utils.NewConfigurationError("voice channel")
	}

	twiml := fmt.Sprintf("<Response><Say loop=\"2\">%s</Say></Response>", msg.TTSText)

	params := &twilioApi.CreateCallParams{}
	params.SetFrom(c.fromNumber)
	params.SetTo(contact.Phone)
	params.SetTwiml(twiml)

	if _, err := c.client.Api.CreateCall(params); err != nil {
		return utils.NewTransientError("failed to place voice call", err)
	}

	logrus.Debugf("Voice call placed to %s", utils.NormalizePhoneNumber(contact.Phone))
	return nil
}

// ---------- Twilio WhatsApp (content templates) ----------

type TwilioWhatsAppChannel struct {
	client     *twilio.RestClient
	fromNumber string
	templates  map[string]string // template name -> content SID
}

func NewTwilioWhatsAppChannel(client *twilio.RestClient, fromNumber string, templates map[string]string) *TwilioWhatsAppChannel {
	return &TwilioWhatsAppChannel{client: client, fromNumber: fromNumber, templates: templates}
}

func (c *TwilioWhatsAppChannel) Name() string { return ChannelWhatsApp }

func (c *TwilioWhatsAppChannel) Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error {
	if c.client == nil {
		return utils.NewConfigurationError("whatsapp channel")
	}

	contentSid, ok := c.templates[msg.TemplateName]
	if !ok {
		return utils.NewConfigurationError(fmt.Sprintf("whatsapp template %q", msg.TemplateName))
	}

	vars, err := json.Marshal(msg.TemplateVars)
	if err != nil {
		return fmt.Errorf("failed to marshal template variables: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom("whatsapp:" + c.fromNumber)
	params.SetTo("whatsapp:" + contact.Phone)
	params.SetContentSid(contentSid)
	params.SetContentVariables(string(vars))

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return utils.NewTransientError("failed to send WhatsApp message", err)
	}

	logrus.Debugf("WhatsApp template %s sent to %s", msg.TemplateName, utils.NormalizePhoneNumber(contact.Phone))
	return nil
}

// ---------- Firebase push ----------

type FCMPushChannel struct {
	fcmClient *messaging.Client
}

// NewFCMPushChannel initializes FCM from a credentials file. Returns a
// configuration error when no credentials are set.
func NewFCMPushChannel(ctx context.Context, credentialsFile string) (*FCMPushChannel, error) {
	if credentialsFile == "" {
		return nil, utils.NewConfigurationError("push channel")
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}

	fcmClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %w", err)
	}

	return &FCMPushChannel{fcmClient: fcmClient}, nil
}

func (c *FCMPushChannel) Name() string { return ChannelPush }

func (c *FCMPushChannel) Notify(ctx context.Context, contact models.EmergencyContact, msg ChannelMessage) error {
	if c.fcmClient == nil {
		return utils.NewConfigurationError("push channel")
	}
	if contact.PushToken == "" {
		return utils.NewConfigurationError("push token for contact")
	}

	message := &messaging.Message{
		Token: contact.PushToken,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "emergency",
				Icon:  "ic_alert",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Sound: "emergency.caf",
				},
			},
		},
	}

	if _, err := c.fcmClient.Send(ctx, message); err != nil {
		return utils.NewTransientError("failed to send push notification", err)
	}

	return nil
}

// NewTwilioClient builds the shared Twilio REST client, or nil when the
// account is not configured.
func NewTwilioClient(accountSID, authToken string) *twilio.RestClient {
	if accountSID == "" || authToken == "" {
		logrus.Warn("Twilio not configured, SMS/voice/WhatsApp channels disabled")
		return nil
	}
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
}
