// services/risk_oracle.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OracleContext is the snapshot handed to the external risk model.
type OracleContext struct {
	EntityID        string                 `json:"entityId"`
	Role            string                 `json:"role"`
	Point           models.GeoPoint        `json:"point"`
	BatteryLevel    int                    `json:"batteryLevel"`
	Terrain         string                 `json:"terrain"`
	AltitudeRisk    models.AltitudeRisk    `json:"altitudeRisk"`
	Movement        models.MovementPattern `json:"movement"`
	NearbyZones     []models.ZoneProximity `json:"nearbyZones,omitempty"`
	MinutesToSunset float64                `json:"minutesToSunset"`
	RuleBasedScore  int                    `json:"ruleBasedScore"`
}

// OracleAssessment is the model's verdict.
type OracleAssessment struct {
	Score           int      `json:"score"` // 0-100
	Confidence      float64  `json:"confidence"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
	ImmediateAction bool     `json:"immediateAction"`
}

// RiskOracle is the pluggable external risk model. May be absent; the
// predictor degrades to rule-based scoring when Assess fails.
type RiskOracle interface {
	Assess(ctx context.Context, oc OracleContext) (*OracleAssessment, error)
}

const oracleSystemPrompt = `You are a mountain-tour safety analyst. Given a JSON snapshot of a tracked tour participant (position, terrain, altitude, movement pattern, battery, nearby danger zones, minutes to sunset, and a rule-based risk score), respond ONLY with a JSON object: {"score": 0-100, "confidence": 0.0-1.0, "risks": [..], "recommendations": [..], "immediateAction": bool}.`

// OpenAIRiskOracle asks a chat model for a structured risk verdict.
type OpenAIRiskOracle struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIRiskOracle returns a configuration error when no API key is set,
// so callers can fall back to rule-based assessment.
func NewOpenAIRiskOracle(apiKey, model string, timeout time.Duration) (*OpenAIRiskOracle, error) {
	if apiKey == "" {
		return nil, utils.NewConfigurationError("risk oracle")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OpenAIRiskOracle{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}, nil
}

func (o *OpenAIRiskOracle) Assess(ctx context.Context, oc OracleContext) (*OracleAssessment, error) {
	payload, err := json.Marshal(oc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oracle context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: oracleSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, utils.NewTransientError("risk oracle request failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, utils.NewTransientError("risk oracle returned no choices", nil)
	}

	var assessment OracleAssessment
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &assessment); err != nil {
		logrus.Warnf("Failed to parse oracle response: %v", err)
		return nil, utils.NewTransientError("risk oracle returned malformed JSON", err)
	}

	assessment.Score = utils.ClampInt(assessment.Score, 0, 100)
	assessment.Confidence = utils.ClampFloat64(assessment.Confidence, 0, 1)

	return &assessment, nil
}
