// services/safety_monitor.go
package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	"github.com/sirupsen/logrus"
)

// MonitorConfig tunes ingestion throttling and alerting.
type MonitorConfig struct {
	HistoryCapacity          int           // bounded per-entity location history
	FullAnalysisInterval     time.Duration // min gap between full predictions
	ConcernAnalysisInterval  time.Duration // min gap when rule checks raise concern
	AlertCooldown            time.Duration // per-entity, per-cause
	AlertScoreThreshold      int           // merged score that forces an alert
	LowBatteryThreshold      int           // percent, contributes to concern
	CriticalBatteryThreshold int           // percent, fires once per session
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		HistoryCapacity:          50,
		FullAnalysisInterval:     2 * time.Minute,
		ConcernAnalysisInterval:  30 * time.Second,
		AlertCooldown:            5 * time.Minute,
		AlertScoreThreshold:      70,
		LowBatteryThreshold:      15,
		CriticalBatteryThreshold: 10,
	}
}

// AlertStore persists emitted alerts. Implemented by
// repositories.AlertRepository; may be nil when persistence is not configured.
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
}

// RealtimePublisher pushes monitor output to live dashboard connections.
// Implemented by the websocket hub.
type RealtimePublisher interface {
	PublishLocation(state *models.TrackedEntityState, point models.GeoPoint)
	PublishAlert(alert *models.Alert)
}

// entityRecord pairs an entity's state with its own lock so slow analysis of
// one entity never blocks ingestion for another. The outer map lock is held
// only for fetch-or-create.
type entityRecord struct {
	mu    sync.Mutex
	state *models.TrackedEntityState
}

// SafetyMonitor owns per-entity tracking state and orchestrates the
// rule-check / prediction / alert pipeline for every location update.
type SafetyMonitor struct {
	config    MonitorConfig
	predictor *RiskPredictor
	zones     ZoneProvider
	alerts    AlertStore
	hub       RealtimePublisher

	mu       sync.RWMutex
	entities map[string]*entityRecord

	alertsEmitted  int64
	assessmentsRun int64

	now func() time.Time
}

func NewSafetyMonitor(config MonitorConfig, predictor *RiskPredictor, zones ZoneProvider, alerts AlertStore) *SafetyMonitor {
	return &SafetyMonitor{
		config:    config,
		predictor: predictor,
		zones:     zones,
		alerts:    alerts,
		entities:  make(map[string]*entityRecord),
		now:       time.Now,
	}
}

// SetPublisher attaches the realtime hub. Wired after construction because
// the hub also reads monitor snapshots.
func (sm *SafetyMonitor) SetPublisher(hub RealtimePublisher) {
	sm.hub = hub
}

// ProcessLocationUpdate ingests one location sample and returns the current
// assessment plus any alerts it triggered. Invalid coordinates are rejected
// before any state is touched.
func (sm *SafetyMonitor) ProcessLocationUpdate(ctx context.Context, req *models.LocationUpdateRequest) (*models.RiskAssessment, []*models.Alert, error) {
	if !utils.IsValidCoordinate(req.Latitude, req.Longitude) {
		return nil, nil, utils.NewValidationError(fmt.Sprintf("coordinates out of range: %.6f, %.6f", req.Latitude, req.Longitude))
	}

	now := sm.now()
	point := models.GeoPoint{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Altitude:  req.Altitude,
		Accuracy:  req.Accuracy,
		Timestamp: now,
	}

	record := sm.fetchOrCreate(req, now)

	record.mu.Lock()
	defer record.mu.Unlock()

	state := record.state
	state.AppendPoint(point, sm.config.HistoryCapacity)
	state.BatteryLevel = req.BatteryLevel
	if req.DisplayName != "" {
		state.DisplayName = req.DisplayName
	}

	checks := sm.runRuleChecks(ctx, state, point, now)

	if sm.shouldRunPrediction(state, checks.concern, now) {
		assessment := sm.predictor.Assess(ctx, state, checks.factors, checks.reasons, checks.recommendations, sm.buildOracleContext(state, point, checks, now))
		state.LastAssessment = &assessment
		state.LastAssessedAt = now
		atomic.AddInt64(&sm.assessmentsRun, 1)
	}

	var triggered []*models.Alert

	if a := state.LastAssessment; a != nil {
		if a.ImmediateAction || a.Score >= sm.config.AlertScoreThreshold ||
			a.Level == models.RiskLevelHigh || a.Level == models.RiskLevelCritical {
			cause := sm.dominantCause(checks)
			if alert := sm.emitAlert(ctx, state, cause, a.Score, alertSeverityForLevel(a.Level), alertMessage(state, cause, a.Score), a.Recommendations, &point, now); alert != nil {
				triggered = append(triggered, alert)
			}
		}
	}

	// Deterministic one-shot conditions bypass prediction throttling.
	triggered = append(triggered, sm.checkOneShotConditions(ctx, state, &point, now)...)

	if sm.hub != nil {
		sm.hub.PublishLocation(state, point)
	}

	return state.LastAssessment, triggered, nil
}

// ruleCheckResult carries the cheap-check verdict into prediction and
// alert-cause selection.
type ruleCheckResult struct {
	concern         bool
	factors         map[string]float64
	reasons         []string
	recommendations []string

	insideZone    bool
	nearZones     []models.ZoneProximity
	speed         models.SpeedReading
	movement      models.MovementPattern
	terrain       string
	altitudeRisk  models.AltitudeRisk
	minutesToDark float64
}

func (sm *SafetyMonitor) runRuleChecks(ctx context.Context, state *models.TrackedEntityState, point models.GeoPoint, now time.Time) ruleCheckResult {
	result := ruleCheckResult{
		factors:       make(map[string]float64),
		terrain:       utils.ClassifyTerrain(point),
		altitudeRisk:  utils.CalculateAltitudeRisk(point.Altitude),
		movement:      utils.AnalyzeMovement(state.History),
		minutesToDark: utils.MinutesToSunset(point, now),
	}

	result.nearZones = utils.CheckDangerZones(point, sm.zones.Zones(ctx))
	if len(result.nearZones) > 0 {
		highest := 0.0
		for _, zone := range result.nearZones {
			if zone.Inside {
				result.insideZone = true
			}
			level := float64(zone.Zone.DangerLevel) / 10.0
			if zone.Inside {
				level = 1.0
			}
			if level > highest {
				highest = level
			}
			result.reasons = append(result.reasons, fmt.Sprintf("near danger zone %q (%.0fm)", zone.Zone.Name, zone.DistanceM))
			result.recommendations = append(result.recommendations, zone.Recommendation)
		}
		result.factors["zoneDanger"] = highest
		result.concern = true
	}

	if result.altitudeRisk.Score > 30 {
		result.factors["altitude"] = float64(result.altitudeRisk.Score) / 100.0
		result.reasons = append(result.reasons, result.altitudeRisk.Description)
		result.concern = true
	}

	if state.BatteryLevel < sm.config.LowBatteryThreshold {
		result.factors["battery"] = 1.0 - float64(state.BatteryLevel)/100.0
		result.reasons = append(result.reasons, fmt.Sprintf("battery at %d%%", state.BatteryLevel))
		result.recommendations = append(result.recommendations, "Enable battery saver and reduce screen use")
		result.concern = true
	}

	if len(state.History) >= 2 {
		prev := state.History[len(state.History)-2]
		result.speed = utils.CalculateSpeed(prev, point)
		if result.speed.Abnormal {
			result.factors["speedAnomaly"] = 1.0
			result.reasons = append(result.reasons, fmt.Sprintf("abnormal speed %.0f km/h", result.speed.SpeedKmh))
			result.concern = true
		}
	}

	switch result.movement.Pattern {
	case models.MovementProlongedStop:
		result.reasons = append(result.reasons, fmt.Sprintf("stopped for %s", utils.FormatDuration(result.movement.StoppedDuration)))
		result.recommendations = append(result.recommendations, "Check in with the entity; prolonged stop detected")
		result.concern = true
	case models.MovementErratic, models.MovementImpossibleSpeed:
		result.reasons = append(result.reasons, fmt.Sprintf("movement pattern %s", result.movement.Pattern))
		result.concern = true
	}

	if result.minutesToDark >= 0 && result.minutesToDark < 60 {
		result.factors["nightTravel"] = 1.0 - result.minutesToDark/60.0
		result.reasons = append(result.reasons, fmt.Sprintf("%.0f minutes to sunset", result.minutesToDark))
	}

	hoursTraveling := now.Sub(state.FirstSeenAt).Hours()
	result.factors["fatigue"] = FatigueProbability(
		hoursTraveling,
		result.movement.TotalDistanceM/1000.0,
		point.Altitude,
		now.Sub(state.FirstSeenAt).Minutes()-result.movement.StoppedDuration.Minutes(),
	)

	return result
}

func (sm *SafetyMonitor) shouldRunPrediction(state *models.TrackedEntityState, concern bool, now time.Time) bool {
	if state.LastAssessment == nil {
		return true
	}
	since := now.Sub(state.LastAssessedAt)
	if since >= sm.config.FullAnalysisInterval {
		return true
	}
	return concern && since >= sm.config.ConcernAnalysisInterval
}

func (sm *SafetyMonitor) buildOracleContext(state *models.TrackedEntityState, point models.GeoPoint, checks ruleCheckResult, now time.Time) OracleContext {
	return OracleContext{
		EntityID:        state.EntityID,
		Role:            state.Role,
		Point:           point,
		BatteryLevel:    state.BatteryLevel,
		Terrain:         checks.terrain,
		AltitudeRisk:    checks.altitudeRisk,
		Movement:        checks.movement,
		NearbyZones:     checks.nearZones,
		MinutesToSunset: checks.minutesToDark,
	}
}

// dominantCause picks the most specific alert cause the rule checks support,
// falling back to the generic predictive cause.
func (sm *SafetyMonitor) dominantCause(checks ruleCheckResult) string {
	switch {
	case checks.insideZone:
		return models.AlertCauseDangerZone
	case checks.movement.Pattern == models.MovementProlongedStop:
		return models.AlertCauseProlongedStop
	case checks.speed.Abnormal:
		return models.AlertCauseAbnormalSpeed
	default:
		return models.AlertCausePredictive
	}
}

// checkOneShotConditions fires session-scoped alerts tracked by a flag
// instead of the cooldown timer.
func (sm *SafetyMonitor) checkOneShotConditions(ctx context.Context, state *models.TrackedEntityState, point *models.GeoPoint, now time.Time) []*models.Alert {
	var triggered []*models.Alert

	if state.BatteryLevel < sm.config.CriticalBatteryThreshold && !state.FiredOnce[models.AlertCauseBatteryCritical] {
		state.FiredOnce[models.AlertCauseBatteryCritical] = true
		alert := sm.buildAlert(state, models.AlertCauseBatteryCritical, 0, models.SeverityCritical,
			fmt.Sprintf("%s's device battery is critically low (%d%%); location updates may stop", displayOrID(state), state.BatteryLevel),
			[]string{"Contact the entity before their device dies"}, point, now)
		sm.persistAndPublish(ctx, state, alert, now)
		triggered = append(triggered, alert)
	}

	return triggered
}

// emitAlert applies the per-cause cooldown, then persists and publishes.
// Returns nil when the cooldown suppresses the alert.
func (sm *SafetyMonitor) emitAlert(ctx context.Context, state *models.TrackedEntityState, cause string, score int, severity, message string, recommendations []string, point *models.GeoPoint, now time.Time) *models.Alert {
	if last, ok := state.LastCauseAlert[cause]; ok && now.Sub(last) < sm.config.AlertCooldown {
		logrus.Debugf("Alert %s for %s suppressed by cooldown (%s remaining)",
			cause, state.EntityID, (sm.config.AlertCooldown - now.Sub(last)).Round(time.Second))
		return nil
	}

	alert := sm.buildAlert(state, cause, score, severity, message, recommendations, point, now)
	sm.persistAndPublish(ctx, state, alert, now)
	return alert
}

func (sm *SafetyMonitor) buildAlert(state *models.TrackedEntityState, cause string, score int, severity, message string, recommendations []string, point *models.GeoPoint, now time.Time) *models.Alert {
	return &models.Alert{
		AlertID:         utils.GenerateUUID(),
		EntityID:        state.EntityID,
		Cause:           cause,
		Severity:        severity,
		RiskScore:       score,
		Message:         message,
		Recommendations: recommendations,
		Location:        point,
		CreatedAt:       now,
	}
}

func (sm *SafetyMonitor) persistAndPublish(ctx context.Context, state *models.TrackedEntityState, alert *models.Alert, now time.Time) {
	state.LastCauseAlert[alert.Cause] = now
	state.AlertCount++
	state.LastAlertAt = now
	atomic.AddInt64(&sm.alertsEmitted, 1)

	if sm.alerts != nil {
		if err := sm.alerts.Create(ctx, alert); err != nil {
			logrus.Errorf("Failed to persist alert %s: %v", alert.AlertID, err)
		}
	}
	if sm.hub != nil {
		sm.hub.PublishAlert(alert)
	}

	logrus.WithFields(logrus.Fields{
		"entity":   alert.EntityID,
		"cause":    alert.Cause,
		"severity": alert.Severity,
		"score":    alert.RiskScore,
	}).Warn("Safety alert emitted")
}

func (sm *SafetyMonitor) fetchOrCreate(req *models.LocationUpdateRequest, now time.Time) *entityRecord {
	sm.mu.RLock()
	record, ok := sm.entities[req.EntityID]
	sm.mu.RUnlock()
	if ok {
		return record
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if record, ok := sm.entities[req.EntityID]; ok {
		return record
	}

	role := req.Role
	if role == "" {
		role = models.RoleTourist
	}
	record = &entityRecord{
		state: &models.TrackedEntityState{
			EntityID:       req.EntityID,
			DisplayName:    req.DisplayName,
			Role:           role,
			TourID:         req.TourID,
			AgencyID:       req.AgencyID,
			LastCauseAlert: make(map[string]time.Time),
			FiredOnce:      make(map[string]bool),
			FirstSeenAt:    now,
			UpdatedAt:      now,
		},
	}
	sm.entities[req.EntityID] = record
	logrus.Infof("Now tracking entity %s (%s)", req.EntityID, role)
	return record
}

// DisplayName resolves an entity's name for outbound messages. Falls back to
// the raw id for entities the monitor has never seen.
func (sm *SafetyMonitor) DisplayName(entityID string) string {
	sm.mu.RLock()
	record, ok := sm.entities[entityID]
	sm.mu.RUnlock()
	if !ok {
		return entityID
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	return displayOrID(record.state)
}

// GetState returns a copy of an entity's tracked state, or nil when unknown.
func (sm *SafetyMonitor) GetState(entityID string) *models.TrackedEntityState {
	sm.mu.RLock()
	record, ok := sm.entities[entityID]
	sm.mu.RUnlock()
	if !ok {
		return nil
	}
	record.mu.Lock()
	defer record.mu.Unlock()
	clone := *record.state
	return &clone
}

// EndSession drops an entity's tracked state. Called when the entity's
// session ends; the next location update starts a fresh history and resets
// one-shot alert flags.
func (sm *SafetyMonitor) EndSession(entityID string) {
	sm.mu.Lock()
	_, ok := sm.entities[entityID]
	if ok {
		delete(sm.entities, entityID)
	}
	sm.mu.Unlock()
	if ok {
		logrus.Infof("Tracking session ended for entity %s", entityID)
	}
}

// Snapshot lists every tracked entity for the hub's initial-state push.
func (sm *SafetyMonitor) Snapshot() []models.EntitySnapshot {
	sm.mu.RLock()
	records := make([]*entityRecord, 0, len(sm.entities))
	for _, record := range sm.entities {
		records = append(records, record)
	}
	sm.mu.RUnlock()

	snapshots := make([]models.EntitySnapshot, 0, len(records))
	for _, record := range records {
		record.mu.Lock()
		state := record.state
		snapshot := models.EntitySnapshot{
			EntityID:       state.EntityID,
			DisplayName:    state.DisplayName,
			Role:           state.Role,
			TourID:         state.TourID,
			LastPoint:      state.LastPoint,
			BatteryLevel:   state.BatteryLevel,
			LastUpdateTime: state.UpdatedAt,
		}
		if state.LastAssessment != nil {
			snapshot.RiskLevel = state.LastAssessment.Level
		}
		record.mu.Unlock()
		snapshots = append(snapshots, snapshot)
	}
	return snapshots
}

// Stats aggregates monitor counters for the GET_STATS command.
func (sm *SafetyMonitor) Stats() models.MonitorStats {
	sm.mu.RLock()
	records := make([]*entityRecord, 0, len(sm.entities))
	for _, record := range sm.entities {
		records = append(records, record)
	}
	sm.mu.RUnlock()

	stats := models.MonitorStats{
		TrackedEntities: len(records),
		AlertsEmitted:   atomic.LoadInt64(&sm.alertsEmitted),
		AssessmentsRun:  atomic.LoadInt64(&sm.assessmentsRun),
	}

	var scoreSum float64
	var assessed int
	for _, record := range records {
		record.mu.Lock()
		if a := record.state.LastAssessment; a != nil {
			scoreSum += float64(a.Score)
			assessed++
			if a.Level == models.RiskLevelHigh || a.Level == models.RiskLevelCritical {
				stats.HighRiskEntities++
			}
		}
		record.mu.Unlock()
	}
	if assessed > 0 {
		stats.AvgRiskScore = utils.RoundToDecimalPlaces(scoreSum/float64(assessed), 1)
	}
	return stats
}

func alertSeverityForLevel(level string) string {
	switch level {
	case models.RiskLevelCritical:
		return models.SeverityCritical
	case models.RiskLevelHigh:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

func alertMessage(state *models.TrackedEntityState, cause string, score int) string {
	name := displayOrID(state)
	switch cause {
	case models.AlertCauseDangerZone:
		return fmt.Sprintf("%s has entered a danger zone (risk %d)", name, score)
	case models.AlertCauseProlongedStop:
		return fmt.Sprintf("%s has been stopped for an extended period (risk %d)", name, score)
	case models.AlertCauseAbnormalSpeed:
		return fmt.Sprintf("%s is moving at an implausible speed (risk %d)", name, score)
	default:
		return fmt.Sprintf("Elevated risk detected for %s (risk %d)", name, score)
	}
}

func displayOrID(state *models.TrackedEntityState) string {
	if state.DisplayName != "" {
		return state.DisplayName
	}
	return state.EntityID
}
