package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bc-dunia/agentmon/internal/monitor"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Agents: len(s.registry.Agents())})
}

func (s *Server) handlePlatformStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PlatformResponse{
		Platform: s.registry.Status(s.nowFunc()),
		Host:     s.hostStats(r.Context()),
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AgentsResponse{Agents: s.registry.Agents()})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Status())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Usage.Summary())
}

func (s *Server) handleUsageEndpoints(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Usage.EndpointStats())
}

func (s *Server) handleLatency(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Latency.CurrentPerformance())
}

func (s *Server) handleLatencyOperations(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Latency.OperationStats())
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}

	state := r.URL.Query().Get("state")
	var alerts []monitor.Alert
	switch state {
	case "", StateActive:
		state = StateActive
		alerts = f.Alerts.ActiveAlerts()
	case StateAll:
		alerts = f.Alerts.Alerts()
	default:
		writeError(w, http.StatusBadRequest, &ErrorResponse{
			ErrorType:    ErrorTypeInvalidArgument,
			ErrorCode:    ErrorCodeInvalidRequest,
			ErrorMessage: "state must be active or all",
			Details:      map[string]any{"state": state},
		})
		return
	}
	if alerts == nil {
		alerts = []monitor.Alert{}
	}

	writeJSON(w, http.StatusOK, AlertsResponse{
		State:      state,
		Alerts:     alerts,
		Statistics: f.Alerts.Statistics(),
	})
}

func (s *Server) handleTriggerAlert(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}

	var req TriggerAlertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, &ErrorResponse{
			ErrorType:    ErrorTypeInvalidArgument,
			ErrorCode:    ErrorCodeInvalidRequest,
			ErrorMessage: "title is required",
		})
		return
	}

	alert, err := f.Alerts.Trigger(r.Context(), req.AlertType, req.Severity, req.Title, req.Message, req.Metrics)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	alert, err := f.Alerts.Get(chi.URLParam(r, "alertID"))
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}
	alert, err := f.Alerts.Resolve(chi.URLParam(r, "alertID"))
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleSetMonitoring(w http.ResponseWriter, r *http.Request) {
	f, ok := s.facade(w, r)
	if !ok {
		return
	}

	var req MonitoringRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, &ErrorResponse{
			ErrorType:    ErrorTypeInvalidArgument,
			ErrorCode:    ErrorCodeInvalidRequest,
			ErrorMessage: "active is required",
		})
		return
	}

	f.Alerts.SetMonitoringActive(*req.Active)
	writeJSON(w, http.StatusOK, MonitoringResponse{Agent: f.Agent(), Active: f.Alerts.MonitoringActive()})
}

func (s *Server) facade(w http.ResponseWriter, r *http.Request) (*monitor.Facade, bool) {
	f, err := s.registry.Get(chi.URLParam(r, "agent"))
	if err != nil {
		writeCodedError(w, err)
		return nil, false
	}
	return f, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, &ErrorResponse{
			ErrorType:    ErrorTypeInvalidArgument,
			ErrorCode:    ErrorCodeInvalidRequest,
			ErrorMessage: msg,
			Details:      map[string]any{"error": err.Error()},
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errResp *ErrorResponse) {
	writeJSON(w, status, errResp)
}

// writeCodedError maps an agentmon error code onto an HTTP status.
func writeCodedError(w http.ResponseWriter, err error) {
	status, errType := http.StatusInternalServerError, ErrorTypeInternal
	switch {
	case amerr.IsNotFound(err):
		status, errType = http.StatusNotFound, ErrorTypeNotFound
	case amerr.IsInvalidInput(err):
		status, errType = http.StatusBadRequest, ErrorTypeInvalidArgument
	case amerr.IsConflict(err), amerr.IsSuppressed(err):
		status, errType = http.StatusConflict, ErrorTypeConflict
	}

	code := string(amerr.CodeOf(err))
	if code == "" {
		code = ErrorCodeInternal
	}
	writeError(w, status, &ErrorResponse{
		ErrorType:    errType,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
		Details:      amerr.FieldsOf(err),
	})
}
