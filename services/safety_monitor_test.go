// services/safety_monitor_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trailsafe/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	mu      sync.Mutex
	calls   int
	verdict OracleAssessment
	err     error
}

func (o *stubOracle) Assess(ctx context.Context, oc OracleContext) (*OracleAssessment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	verdict := o.verdict
	return &verdict, nil
}

func (o *stubOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type recordingHub struct {
	mu        sync.Mutex
	locations int
	alerts    []*models.Alert
}

func (h *recordingHub) PublishLocation(state *models.TrackedEntityState, point models.GeoPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locations++
}

func (h *recordingHub) PublishAlert(alert *models.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, alert)
}

func newTestMonitor(oracle RiskOracle, zones []models.DangerZone) (*SafetyMonitor, *time.Time) {
	current := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	monitor := NewSafetyMonitor(DefaultMonitorConfig(), NewRiskPredictor(oracle), NewStaticZoneProvider(zones), nil)
	monitor.now = func() time.Time { return current }
	return monitor, &current
}

func benignUpdate(entityID string) *models.LocationUpdateRequest {
	return &models.LocationUpdateRequest{
		EntityID:     entityID,
		DisplayName:  "Maria Lopez",
		Role:         models.RoleTourist,
		Latitude:     -12.045,
		Longitude:    -75.2,
		Altitude:     1200,
		BatteryLevel: 85,
	}
}

func TestProcessLocationUpdateRejectsInvalidCoordinates(t *testing.T) {
	monitor, _ := newTestMonitor(nil, nil)

	req := benignUpdate("tourist-1")
	req.Latitude = 95.0

	_, _, err := monitor.ProcessLocationUpdate(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, monitor.GetState("tourist-1"), "rejected update must not create state")
}

func TestBenignUpdateProducesLowRiskNoAlerts(t *testing.T) {
	monitor, _ := newTestMonitor(nil, nil)
	hub := &recordingHub{}
	monitor.SetPublisher(hub)

	assessment, alerts, err := monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	require.NotNil(t, assessment, "first update always runs the full prediction")
	assert.Equal(t, models.RiskLevelLow, assessment.Level)
	assert.False(t, assessment.ImmediateAction)
	assert.Empty(t, alerts)
	assert.Equal(t, 1, hub.locations)

	state := monitor.GetState("tourist-1")
	require.NotNil(t, state)
	assert.Equal(t, "Maria Lopez", state.DisplayName)
	assert.Len(t, state.History, 1)
}

func TestHistoryStaysBounded(t *testing.T) {
	monitor, current := newTestMonitor(nil, nil)
	monitor.config.HistoryCapacity = 5

	for i := 0; i < 12; i++ {
		req := benignUpdate("tourist-1")
		req.Latitude += float64(i) * 0.0001
		_, _, err := monitor.ProcessLocationUpdate(context.Background(), req)
		require.NoError(t, err)
		*current = current.Add(10 * time.Second)
	}

	state := monitor.GetState("tourist-1")
	require.NotNil(t, state)
	assert.Len(t, state.History, 5)
}

func TestDangerZoneAlertRespectsCooldown(t *testing.T) {
	zone := models.DangerZone{
		Name:        "Cliff edge",
		Center:      models.GeoPoint{Latitude: -12.045, Longitude: -75.2},
		RadiusM:     300,
		DangerLevel: 9,
	}
	oracle := &stubOracle{verdict: OracleAssessment{Score: 92, Confidence: 0.9, ImmediateAction: true}}
	monitor, current := newTestMonitor(oracle, []models.DangerZone{zone})

	_, alerts, err := monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCauseDangerZone, alerts[0].Cause)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)

	// Repeated triggering input inside the cooldown window stays silent.
	for i := 0; i < 4; i++ {
		*current = current.Add(time.Minute)
		_, alerts, err = monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
		require.NoError(t, err)
		assert.Empty(t, alerts, "no same-cause alert within the cooldown window")
	}

	// Past the cooldown the cause may fire again.
	*current = current.Add(2 * time.Minute)
	_, alerts, err = monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCauseDangerZone, alerts[0].Cause)

	state := monitor.GetState("tourist-1")
	require.NotNil(t, state)
	assert.Equal(t, 2, state.AlertCount)
}

func TestBatteryCriticalFiresOncePerSession(t *testing.T) {
	monitor, current := newTestMonitor(nil, nil)

	req := benignUpdate("tourist-1")
	req.BatteryLevel = 5

	_, alerts, err := monitor.ProcessLocationUpdate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCauseBatteryCritical, alerts[0].Cause)

	// Still critical well past the cooldown window; the session flag holds.
	for i := 0; i < 3; i++ {
		*current = current.Add(10 * time.Minute)
		_, alerts, err = monitor.ProcessLocationUpdate(context.Background(), req)
		require.NoError(t, err)
		for _, alert := range alerts {
			assert.NotEqual(t, models.AlertCauseBatteryCritical, alert.Cause)
		}
	}
}

func TestEndSessionResetsOneShotFlags(t *testing.T) {
	monitor, current := newTestMonitor(nil, nil)

	req := benignUpdate("tourist-1")
	req.BatteryLevel = 5

	_, alerts, err := monitor.ProcessLocationUpdate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	monitor.EndSession("tourist-1")
	assert.Nil(t, monitor.GetState("tourist-1"))

	// A fresh session starts a new history and may fire the one-shot again.
	*current = current.Add(time.Minute)
	_, alerts, err = monitor.ProcessLocationUpdate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCauseBatteryCritical, alerts[0].Cause)
}

func TestPredictionThrottling(t *testing.T) {
	oracle := &stubOracle{verdict: OracleAssessment{Score: 10, Confidence: 0.9}}
	monitor, current := newTestMonitor(oracle, nil)

	_, _, err := monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.callCount(), "first update always analyzes")

	// No concern and under two minutes: throttled.
	*current = current.Add(30 * time.Second)
	_, _, err = monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.callCount())

	// Past the full interval: analyzes again.
	*current = current.Add(2 * time.Minute)
	_, _, err = monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, oracle.callCount())

	// Concern (critical altitude) shortens the interval to thirty seconds.
	risky := benignUpdate("tourist-1")
	risky.Altitude = 5200
	*current = current.Add(45 * time.Second)
	_, _, err = monitor.ProcessLocationUpdate(context.Background(), risky)
	require.NoError(t, err)
	assert.Equal(t, 3, oracle.callCount())
}

func TestOracleFailureFallsBackSilently(t *testing.T) {
	oracle := &stubOracle{err: errors.New("model timeout")}
	monitor, _ := newTestMonitor(oracle, nil)

	assessment, _, err := monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err, "oracle failure must never fail ingestion")
	require.NotNil(t, assessment)
	assert.InDelta(t, 0.6, assessment.Confidence, 0.001, "rule-based-only confidence")
}

func TestStatsAggregation(t *testing.T) {
	monitor, _ := newTestMonitor(nil, nil)

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := monitor.ProcessLocationUpdate(context.Background(), benignUpdate(id))
		require.NoError(t, err)
	}

	stats := monitor.Stats()
	assert.Equal(t, 3, stats.TrackedEntities)
	assert.Equal(t, int64(3), stats.AssessmentsRun)

	snapshots := monitor.Snapshot()
	assert.Len(t, snapshots, 3)
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	monitor, _ := newTestMonitor(nil, nil)
	assert.Equal(t, "ghost-1", monitor.DisplayName("ghost-1"))

	_, _, err := monitor.ProcessLocationUpdate(context.Background(), benignUpdate("tourist-1"))
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", monitor.DisplayName("tourist-1"))
}
