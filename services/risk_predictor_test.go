// services/risk_predictor_test.go
package services

import (
	"context"
	"math"
	"testing"
	"time"

	"trailsafe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnomalyZScoreFlagsImpossibleSpeed(t *testing.T) {
	history := []float64{4.0, 4.5, 5.0, 4.8, 5.2} // walking speeds, km/h

	z, anomaly, ok := AnomalyZScore(40.0, history)
	require.True(t, ok)
	assert.True(t, anomaly, "vehicle speed against walking history is anomalous")
	assert.Greater(t, math.Abs(z), 2.0)
}

func TestAnomalyZScoreRequiresThreeSamples(t *testing.T) {
	_, _, ok := AnomalyZScore(40.0, []float64{4.0, 4.5})
	assert.False(t, ok)
}

func TestAnomalyZScoreZeroVariance(t *testing.T) {
	z, anomaly, ok := AnomalyZScore(5.0, []float64{5.0, 5.0, 5.0})
	require.True(t, ok)
	assert.False(t, anomaly)
	assert.Zero(t, z)
}

func TestFatigueProbabilityStaysInUnitInterval(t *testing.T) {
	assert.GreaterOrEqual(t, FatigueProbability(0, 0, 0, 0), 0.0)
	assert.LessOrEqual(t, FatigueProbability(24, 100, 6000, 600), 1.0)

	rested := FatigueProbability(1, 2, 1000, 30)
	exhausted := FatigueProbability(10, 25, 4500, 500)
	assert.Greater(t, exhausted, rested)
}

func TestBayesianUpdate(t *testing.T) {
	// P(danger) = 0.1, sensitivity 0.9, false positive rate 0.1:
	// posterior = 0.09 / (0.09 + 0.09) = 0.5
	posterior := BayesianUpdate(0.1, 0.9, 0.1)
	assert.InDelta(t, 0.5, posterior, 0.001)

	// A degenerate signal leaves the prior untouched.
	assert.InDelta(t, 0.3, BayesianUpdate(0.3, 0, 0), 0.001)
}

func TestWeightedRiskScoreBounds(t *testing.T) {
	assert.Equal(t, 0, WeightedRiskScore(nil, nil))
	assert.Equal(t, 0, WeightedRiskScore(map[string]float64{}, nil))

	allMax := map[string]float64{
		"fatigue": 1, "altitude": 1, "speedAnomaly": 1, "deviation": 1,
		"battery": 1, "nightTravel": 1, "weather": 1, "zoneDanger": 1,
	}
	assert.Equal(t, 100, WeightedRiskScore(allMax, nil))

	// Out-of-range factor values are clamped, never overflow the scale.
	assert.Equal(t, 100, WeightedRiskScore(map[string]float64{"fatigue": 7.5}, nil))
	assert.Equal(t, 0, WeightedRiskScore(map[string]float64{"fatigue": -3}, nil))
}

func TestTimeToDanger(t *testing.T) {
	over := TimeToDanger(85, 5, 70)
	require.NotNil(t, over)
	assert.Equal(t, time.Duration(0), *over)

	assert.Nil(t, TimeToDanger(50, 0, 70), "flat or falling risk never crosses")
	assert.Nil(t, TimeToDanger(50, -10, 70))

	eta := TimeToDanger(50, 10, 70)
	require.NotNil(t, eta)
	assert.InDelta(t, (2 * time.Hour).Seconds(), eta.Seconds(), 1)
}

func TestPredictPosition(t *testing.T) {
	origin := models.GeoPoint{Latitude: 0, Longitude: 0, Timestamp: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)}

	still := PredictPosition(origin, 0, 0, 30, 0)
	assert.InDelta(t, origin.Latitude, still.Latitude, 1e-9)
	assert.InDelta(t, origin.Longitude, still.Longitude, 1e-9)

	// 10 km/h due north for an hour is ~0.0898 degrees of latitude.
	north := PredictPosition(origin, 10, 0, 60, 0)
	assert.InDelta(t, 10.0/111.32, north.Latitude, 1e-4)
	assert.InDelta(t, 0, north.Longitude, 1e-4)
	assert.Equal(t, origin.Timestamp.Add(time.Hour), north.Timestamp)
}

func TestAssessBlendsRuleAndOracleScores(t *testing.T) {
	oracle := &stubOracle{verdict: OracleAssessment{Score: 50, Confidence: 0.9}}
	predictor := NewRiskPredictor(oracle)
	state := &models.TrackedEntityState{EntityID: "tourist-1"}

	assessment := predictor.Assess(context.Background(), state,
		map[string]float64{"battery": 1.0}, []string{"battery depleted"}, nil, OracleContext{})

	// Rule score 100 blended 0.4/0.6 with the oracle's 50.
	assert.Equal(t, 70, assessment.Score)
	assert.Equal(t, models.RiskLevelHigh, assessment.Level)
	assert.GreaterOrEqual(t, assessment.Confidence, 0.85)
	assert.False(t, assessment.ImmediateAction)
}

func TestAssessOracleImmediateActionFlagCarries(t *testing.T) {
	oracle := &stubOracle{verdict: OracleAssessment{Score: 10, Confidence: 0.9, ImmediateAction: true}}
	predictor := NewRiskPredictor(oracle)
	state := &models.TrackedEntityState{EntityID: "tourist-1"}

	assessment := predictor.Assess(context.Background(), state, map[string]float64{"fatigue": 0.1}, nil, nil, OracleContext{})
	assert.Less(t, assessment.Score, 80)
	assert.True(t, assessment.ImmediateAction, "the oracle's explicit flag overrides the score band")
}

func TestAssessScoreAlwaysWithinBounds(t *testing.T) {
	oracle := &stubOracle{verdict: OracleAssessment{Score: 100, Confidence: 1}}
	predictor := NewRiskPredictor(oracle)
	state := &models.TrackedEntityState{EntityID: "tourist-1"}

	factorSets := []map[string]float64{
		{"fatigue": 1, "altitude": 1, "zoneDanger": 1},
		{"fatigue": 0},
		{"speedAnomaly": 0.5, "battery": 0.25},
	}
	for _, factors := range factorSets {
		assessment := predictor.Assess(context.Background(), state, factors, nil, nil, OracleContext{})
		assert.GreaterOrEqual(t, assessment.Score, 0)
		assert.LessOrEqual(t, assessment.Score, 100)
	}
}

func TestPredictDangersSortedByProbability(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	state := &models.TrackedEntityState{EntityID: "tourist-1"}
	state.AppendPoint(models.GeoPoint{Latitude: -12.0, Longitude: -75.2, Timestamp: now}, 50)
	state.AppendPoint(models.GeoPoint{Latitude: -12.1, Longitude: -75.2, Timestamp: now.Add(time.Minute)}, 50)

	predictor := NewRiskPredictor(nil)
	speedHistory := []float64{4.0, 4.5, 5.0, 4.8, 5.2}
	riskHistory := []float64{50, 65}

	predictions := predictor.PredictDangers(state, speedHistory, riskHistory)
	require.NotEmpty(t, predictions)
	for i := 1; i < len(predictions); i++ {
		assert.GreaterOrEqual(t, predictions[i-1].Probability, predictions[i].Probability)
	}

	types := make(map[string]bool)
	for _, p := range predictions {
		types[p.Type] = true
	}
	assert.True(t, types["speed_anomaly"], "11km in one minute against walking history")
}
