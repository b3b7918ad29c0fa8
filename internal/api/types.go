package api

import (
	"github.com/bc-dunia/agentmon/internal/monitor"
	"github.com/bc-dunia/agentmon/internal/sysstats"
)

// ErrorResponse is the error envelope of every failed request.
type ErrorResponse struct {
	ErrorType    string         `json:"error_type"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	Retryable    bool           `json:"retryable"`
	Details      map[string]any `json:"details,omitempty"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
}

// PlatformResponse is the response body for GET /api/v1/status.
type PlatformResponse struct {
	Platform monitor.PlatformStatus `json:"platform"`
	Host     sysstats.HostStats     `json:"host"`
}

// AgentsResponse is the response body for GET /api/v1/agents.
type AgentsResponse struct {
	Agents []string `json:"agents"`
}

// AlertsResponse is the response body for GET .../alerts.
type AlertsResponse struct {
	State      string                  `json:"state"`
	Alerts     []monitor.Alert         `json:"alerts"`
	Statistics monitor.AlertStatistics `json:"statistics"`
}

// TriggerAlertRequest is the body of POST .../alerts.
type TriggerAlertRequest struct {
	AlertType monitor.AlertType     `json:"alert_type"`
	Severity  monitor.AlertSeverity `json:"severity"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	Metrics   map[string]any        `json:"metrics,omitempty"`
}

// MonitoringRequest is the body of PUT .../alerts/monitoring.
type MonitoringRequest struct {
	Active *bool `json:"active"`
}

// MonitoringResponse reports the alert gate after a toggle.
type MonitoringResponse struct {
	Agent  string `json:"agent"`
	Active bool   `json:"active"`
}

// Alert list filters for the state query parameter.
const (
	StateActive = "active"
	StateAll    = "all"
)

// ErrorType values.
const (
	ErrorTypeInvalidArgument = "invalid_argument"
	ErrorTypeNotFound        = "not_found"
	ErrorTypeConflict        = "conflict"
	ErrorTypeRateLimited     = "rate_limited"
	ErrorTypeInternal        = "internal"
)

// ErrorCode values not derived from a coded error.
const (
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeNotFound          = "ENDPOINT_NOT_FOUND"
	ErrorCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
