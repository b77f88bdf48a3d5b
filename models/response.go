package models

import "time"

// Standard API Response wrapper
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// Health Check Response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// MonitorStats is the aggregate reported through the GET_STATS command and
// memoized briefly in the bounded cache.
type MonitorStats struct {
	TrackedEntities  int     `json:"trackedEntities"`
	ActiveAlerts     int     `json:"activeAlerts"`
	AlertsEmitted    int64   `json:"alertsEmitted"`
	AssessmentsRun   int64   `json:"assessmentsRun"`
	AvgRiskScore     float64 `json:"avgRiskScore"`
	HighRiskEntities int     `json:"highRiskEntities"`
}
