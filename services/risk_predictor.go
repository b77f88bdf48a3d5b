// services/risk_predictor.go
package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Default factor weights for the blended rule-based score.
var defaultRiskWeights = map[string]float64{
	"fatigue":      0.20,
	"altitude":     0.15,
	"speedAnomaly": 0.15,
	"deviation":    0.15,
	"battery":      0.10,
	"nightTravel":  0.10,
	"weather":      0.10,
	"zoneDanger":   0.05,
}

const (
	// Blend weights when the external oracle is available.
	ruleBlendWeight  = 0.4
	modelBlendWeight = 0.6

	anomalyZThreshold = 2.0
	dangerThreshold   = 70.0
)

// RiskPredictor turns kinematic facts into probability-ranked dangers and a
// blended 0-100 risk score. Stateless; the oracle is optional.
type RiskPredictor struct {
	oracle RiskOracle
}

func NewRiskPredictor(oracle RiskOracle) *RiskPredictor {
	return &RiskPredictor{oracle: oracle}
}

// PredictPosition projects a position forward with first-order kinematics:
// displacement = v*t + a*t^2/2, converted to a lat/lon delta along the bearing.
func PredictPosition(point models.GeoPoint, speedKmh, bearingDeg, minutes, accelKmhPerH float64) models.GeoPoint {
	tHours := minutes / 60.0
	displacementKm := speedKmh*tHours + 0.5*accelKmhPerH*tHours*tHours

	bearingRad := bearingDeg * utils.DegToRad
	dLat := displacementKm * math.Cos(bearingRad) / 111.32
	dLon := displacementKm * math.Sin(bearingRad) / (111.32 * math.Cos(point.Latitude*utils.DegToRad))

	return models.GeoPoint{
		Latitude:  point.Latitude + dLat,
		Longitude: point.Longitude + dLon,
		Altitude:  point.Altitude,
		Timestamp: point.Timestamp.Add(time.Duration(minutes * float64(time.Minute))),
	}
}

// FatigueProbability blends time, distance, altitude and rest-recovery
// factors into a [0,1] fatigue probability.
func FatigueProbability(hoursTraveling, distanceKm, altitudeM, minutesSinceRest float64) float64 {
	timeFactor := 1 - math.Exp(-0.15*hoursTraveling)
	distanceFactor := math.Min(1, distanceKm/20)

	var altitudeFactor float64
	if altitudeM > 3500 {
		altitudeFactor = 1 - math.Exp(-0.001*(altitudeM-3500))
	}

	restFactor := math.Max(0, 1-minutesSinceRest/240)

	p := 0.40*timeFactor + 0.25*distanceFactor + 0.25*altitudeFactor + 0.10*restFactor
	return utils.ClampFloat64(p, 0, 1)
}

// AnomalyZScore computes the standard Z-score of current against the
// historical samples. Requires at least 3 samples; anomaly when |z| > 2.
func AnomalyZScore(current float64, historical []float64) (z float64, anomaly bool, ok bool) {
	if len(historical) < 3 {
		return 0, false, false
	}

	mean := stat.Mean(historical, nil)
	stddev := stat.StdDev(historical, nil)
	if stddev == 0 {
		return 0, false, true
	}

	z = (current - mean) / stddev
	return z, math.Abs(z) > anomalyZThreshold, true
}

// BayesianUpdate computes the posterior probability of danger given a
// positive signal with the given sensitivity and false-positive rate.
func BayesianUpdate(prior, sensitivity, falsePositiveRate float64) float64 {
	denominator := sensitivity*prior + falsePositiveRate*(1-prior)
	if denominator == 0 {
		return prior
	}
	return (sensitivity * prior) / denominator
}

// WeightedRiskScore combines named [0,1] factors into a 0-100 score using the
// given weights (defaults applied for missing weights). The result is
// normalized by the total weight actually present.
func WeightedRiskScore(factors map[string]float64, weights map[string]float64) int {
	if len(factors) == 0 {
		return 0
	}
	if weights == nil {
		weights = defaultRiskWeights
	}

	var weightedSum, totalWeight float64
	for name, value := range factors {
		w, ok := weights[name]
		if !ok {
			w = defaultRiskWeights[name]
		}
		if w == 0 {
			continue
		}
		weightedSum += utils.ClampFloat64(value, 0, 1) * w
		totalWeight += w
	}

	if totalWeight == 0 {
		return 0
	}
	return utils.ClampInt(int(math.Round(weightedSum/totalWeight*100)), 0, 100)
}

// TimeToDanger linearly extrapolates when the risk score will cross the
// threshold. Returns nil when the rate is non-positive, zero when already over.
func TimeToDanger(currentRisk, changeRatePerHour float64, threshold float64) *time.Duration {
	if threshold <= 0 {
		threshold = dangerThreshold
	}
	if currentRisk >= threshold {
		d := time.Duration(0)
		return &d
	}
	if changeRatePerHour <= 0 {
		return nil
	}

	hours := (threshold - currentRisk) / changeRatePerHour
	d := time.Duration(hours * float64(time.Hour))
	return &d
}

// PredictDangers runs the probabilistic models against the entity snapshot
// and returns predictions sorted by probability descending.
func (rp *RiskPredictor) PredictDangers(state *models.TrackedEntityState, speedHistory, riskHistory []float64) []models.DangerPrediction {
	var predictions []models.DangerPrediction

	movement := utils.AnalyzeMovement(state.History)

	if movement.Pattern != models.MovementInsufficientData {
		hours := movement.TotalDuration.Hours()
		distanceKm := movement.TotalDistanceM / 1000
		var altitude float64
		if state.LastPoint != nil {
			altitude = state.LastPoint.Altitude
		}
		minutesSinceRest := (movement.TotalDuration - movement.StoppedDuration).Minutes()

		fatigue := FatigueProbability(hours, distanceKm, altitude, minutesSinceRest)
		if fatigue > 0.3 {
			predictions = append(predictions, models.DangerPrediction{
				Type:        "fatigue",
				Probability: fatigue,
				Action:      "Schedule a rest stop within the next 30 minutes",
				Basis:       fmt.Sprintf("weighted blend of %.1fh travel, %.1fkm distance, %.0fm altitude", hours, distanceKm, altitude),
			})
		}
	}

	if len(speedHistory) >= 3 && len(state.History) >= 2 {
		current := utils.CalculateSpeed(state.History[len(state.History)-2], state.History[len(state.History)-1])
		if z, anomaly, ok := AnomalyZScore(current.SpeedKmh, speedHistory); ok && anomaly {
			predictions = append(predictions, models.DangerPrediction{
				Type:        "speed_anomaly",
				Probability: utils.ClampFloat64(math.Abs(z)/4, 0, 1),
				Action:      "Verify the participant's transport mode and position",
				Basis:       fmt.Sprintf("Z-score %.1f against %d historical speed samples", z, len(speedHistory)),
			})
		}
	}

	if len(riskHistory) >= 2 {
		latest := riskHistory[len(riskHistory)-1]
		rate := latest - riskHistory[len(riskHistory)-2]
		if eta := TimeToDanger(latest, rate, dangerThreshold); eta != nil && *eta < 2*time.Hour {
			predictions = append(predictions, models.DangerPrediction{
				Type:        "risk_escalation",
				Probability: utils.ClampFloat64(1-eta.Hours()/2, 0.3, 0.95),
				Action:      "Contact the guide before conditions deteriorate",
				Basis:       fmt.Sprintf("linear extrapolation: threshold %d reached in %s", int(dangerThreshold), utils.FormatDuration(*eta)),
			})
		}
	}

	if state.LastPoint != nil {
		sunset := utils.MinutesToSunset(*state.LastPoint, time.Now())
		if sunset < 60 && sunset > -180 {
			p := utils.ClampFloat64(1-sunset/60, 0.4, 1)
			predictions = append(predictions, models.DangerPrediction{
				Type:        "night_travel",
				Probability: p,
				Action:      "Reach shelter or switch on headlamps before dark",
				Basis:       fmt.Sprintf("%.0f minutes to estimated sunset", sunset),
			})
		}
	}

	sort.Slice(predictions, func(i, j int) bool {
		return predictions[i].Probability > predictions[j].Probability
	})

	return predictions
}

// Assess produces the full risk assessment: rule-based score from the named
// factors, optionally blended 0.4/0.6 with the external oracle's score. Oracle
// failures degrade silently to the rule-based result with lower confidence.
func (rp *RiskPredictor) Assess(ctx context.Context, state *models.TrackedEntityState, factors map[string]float64, ruleFactors, ruleRecommendations []string, oc OracleContext) models.RiskAssessment {
	ruleScore := WeightedRiskScore(factors, nil)
	oc.RuleBasedScore = ruleScore

	assessment := models.RiskAssessment{
		Score:           ruleScore,
		Confidence:      0.6,
		Factors:         ruleFactors,
		Recommendations: ruleRecommendations,
		AssessedAt:      time.Now(),
	}

	if rp.oracle != nil {
		if verdict, err := rp.oracle.Assess(ctx, oc); err == nil {
			merged := ruleBlendWeight*float64(ruleScore) + modelBlendWeight*float64(verdict.Score)
			assessment.Score = utils.ClampInt(int(math.Round(merged)), 0, 100)
			assessment.Confidence = math.Max(0.85, verdict.Confidence)
			assessment.Factors = append(assessment.Factors, verdict.Risks...)
			assessment.Recommendations = append(assessment.Recommendations, verdict.Recommendations...)
			assessment.ImmediateAction = verdict.ImmediateAction
		} else {
			logrus.Debugf("Risk oracle unavailable for %s, using rule-based score: %v", state.EntityID, err)
		}
	}

	if assessment.Score >= 80 {
		assessment.ImmediateAction = true
	}
	assessment.Level = models.RiskLevelForScore(assessment.Score)

	return assessment
}
