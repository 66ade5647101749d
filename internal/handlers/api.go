package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"aktis-analyzer-freshservice/internal/common"
	"aktis-analyzer-freshservice/internal/interfaces"
	"aktis-analyzer-freshservice/internal/models"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// APIHandlers contains all API endpoint handlers
type APIHandlers struct {
	config    *common.Config
	sessions  interfaces.SessionProvider
	fetcher   interfaces.TicketFetcher
	analyzer  interfaces.TicketAnalyzer
	storage   interfaces.Storage
	logger    arbor.ILogger
	wsHub     *WebSocketHub
	startTime time.Time
	now       func() time.Time
}

// StatusResponse is the GET / payload.
type StatusResponse struct {
	Service               string            `json:"service"`
	Status                string            `json:"status"`
	Version               string            `json:"version"`
	Build                 string            `json:"build"`
	UptimeSeconds         float64           `json:"uptime_seconds"`
	Mode                  string            `json:"mode"`
	APIKeyConfigured      bool              `json:"api_key_configured"`
	CredentialsConfigured bool              `json:"credentials_configured"`
	Session               *SessionStatus    `json:"session,omitempty"`
	LastAnalysis          *LastAnalysisInfo `json:"last_analysis,omitempty"`
	Connection            *ConnectionStatus `json:"connection,omitempty"`
}

// SessionStatus describes the cached session, when one exists.
type SessionStatus struct {
	Kind       string    `json:"kind"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LastAnalysisInfo summarizes the persisted analysis snapshot.
type LastAnalysisInfo struct {
	Timestamp    string `json:"timestamp"`
	TotalTickets int    `json:"total_tickets"`
}

// ConnectionStatus reports the optional live session probe.
type ConnectionStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime_seconds"`
	Services  struct {
		Database bool `json:"database"`
		Helpdesk bool `json:"helpdesk"`
	} `json:"services"`
}

// VersionResponse represents version information
type VersionResponse struct {
	Version string `json:"version"`
	Build   string `json:"build"`
	Commit  string `json:"commit"`
}

// LoginResponse is the POST /api/login payload.
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SetCookiesRequest is the POST /api/set-cookies body.
type SetCookiesRequest struct {
	Cookies string `json:"cookies"`
}

// SetCookiesResponse is the POST /api/set-cookies payload.
type SetCookiesResponse struct {
	Success       bool   `json:"success"`
	CookiesLength int    `json:"cookies_length,omitempty"`
	Error         string `json:"error,omitempty"`
}

// FreshTicketsResponse is the GET /api/tickets/fresh payload.
type FreshTicketsResponse struct {
	AnalysisTimestamp string                  `json:"analysis_timestamp"`
	TotalFresh        int                     `json:"total_fresh"`
	Tickets           []models.AnalyzedTicket `json:"tickets"`
}

// SummaryResponse is the GET /api/tickets/summary payload.
type SummaryResponse struct {
	AnalysisTimestamp string               `json:"analysis_timestamp"`
	TotalTickets      int                  `json:"total_tickets"`
	Summary           models.TicketSummary `json:"summary"`
}

// ErrorResponse carries an upstream failure to the caller.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(config *common.Config, sessions interfaces.SessionProvider, fetcher interfaces.TicketFetcher, analyzer interfaces.TicketAnalyzer, storage interfaces.Storage, logger arbor.ILogger, wsHub *WebSocketHub) *APIHandlers {
	return &APIHandlers{
		config:    config,
		sessions:  sessions,
		fetcher:   fetcher,
		analyzer:  analyzer,
		storage:   storage,
		logger:    logger,
		wsHub:     wsHub,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// StatusHandler returns service status including credential configuration
// and, with ?check=true, a live session probe.
func (h *APIHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := StatusResponse{
		Service:               h.config.Analyzer.Name,
		Status:                "ok",
		Version:               common.GetVersion(),
		Build:                 common.GetBuild(),
		UptimeSeconds:         time.Since(h.startTime).Seconds(),
		Mode:                  h.sessions.Mode(),
		APIKeyConfigured:      h.config.Helpdesk.APIKey != "",
		CredentialsConfigured: h.config.Helpdesk.HasCredentials(),
	}

	if session := h.sessions.Current(); session != nil {
		status.Session = &SessionStatus{
			Kind:       string(session.Kind),
			AcquiredAt: session.AcquiredAt,
		}
	}

	if h.storage != nil {
		if last, err := h.storage.LoadLastAnalysis(); err == nil && last != nil {
			status.LastAnalysis = &LastAnalysisInfo{
				Timestamp:    last.AnalysisTimestamp,
				TotalTickets: last.TotalTickets,
			}
		}
	}

	if r.URL.Query().Get("check") == "true" {
		connection := &ConnectionStatus{OK: true}
		if _, err := h.sessions.EnsureValidSession(r.Context()); err != nil {
			connection.OK = false
			connection.Error = err.Error()
			status.Status = "degraded"
		}
		status.Connection = connection
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode status response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// HealthHandler returns system health status
func (h *APIHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   common.GetVersion(),
		Uptime:    time.Since(h.startTime).Seconds(),
	}

	health.Services.Database = h.testDatabaseConnection()
	health.Services.Helpdesk = h.config.Helpdesk.APIKey != "" ||
		h.config.Helpdesk.HasCredentials() || h.sessions.Current() != nil

	if !health.Services.Database {
		health.Status = "degraded"
	}

	if err := json.NewEncoder(w).Encode(health); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode health response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// VersionHandler returns version information
func (h *APIHandlers) VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	versionResp := VersionResponse{
		Version: common.GetVersion(),
		Build:   common.GetBuild(),
		Commit:  common.GetGitCommit(),
	}

	if err := json.NewEncoder(w).Encode(versionResp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode version response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// LoginHandler forces a fresh browser login (cookie mode only).
func (h *APIHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.sessions.Mode() != "cookie" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(LoginResponse{
			Success: false,
			Error:   "interactive login is only available in cookie mode",
		})
		return
	}

	if _, err := h.sessions.Login(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Login request failed")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(LoginResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(LoginResponse{
		Success: true,
		Message: "login successful",
	})
}

// SetCookiesHandler installs a manually supplied cookie session.
func (h *APIHandlers) SetCookiesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload SetCookiesRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Cookies) == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(SetCookiesResponse{
			Success: false,
			Error:   "cookies value is required",
		})
		return
	}

	session, err := h.sessions.SetCookies(payload.Cookies)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(SetCookiesResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(SetCookiesResponse{
		Success:       true,
		CookiesLength: len(session.Cookies),
	})
}

// TicketsHandler returns the full analysis for the requested window.
func (h *APIHandlers) TicketsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	windowMinutes, err := h.windowMinutes(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	result, err := h.runAnalysis(r, windowMinutes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(result)
}

// FreshTicketsHandler returns only the tickets still waiting for a reply.
func (h *APIHandlers) FreshTicketsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	windowMinutes, err := h.windowMinutes(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	result, err := h.runAnalysis(r, windowMinutes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	fresh := make([]models.AnalyzedTicket, 0)
	for _, ticket := range result.Tickets {
		if ticket.AttendanceStatus == models.AttendanceFresh {
			fresh = append(fresh, ticket)
		}
	}

	json.NewEncoder(w).Encode(FreshTicketsResponse{
		AnalysisTimestamp: result.AnalysisTimestamp,
		TotalFresh:        len(fresh),
		Tickets:           fresh,
	})
}

// SummaryHandler returns only the aggregate counters.
func (h *APIHandlers) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	windowMinutes, err := h.windowMinutes(r)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	result, err := h.runAnalysis(r, windowMinutes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(SummaryResponse{
		AnalysisTimestamp: result.AnalysisTimestamp,
		TotalTickets:      result.TotalTickets,
		Summary:           result.Summary,
	})
}

// runAnalysis executes the acquisition-and-analysis workflow for one request.
func (h *APIHandlers) runAnalysis(r *http.Request, windowMinutes int) (*models.AnalysisResult, error) {
	runID := uuid.NewString()

	if h.wsHub != nil {
		h.wsHub.SendAnalysisEvent("analysis_started", map[string]interface{}{
			"run_id":         runID,
			"window_minutes": windowMinutes,
		})
	}

	filter := interfaces.TicketFilter{
		WindowMinutes: windowMinutes,
		GroupID:       h.config.Helpdesk.GroupID,
		WorkspaceID:   h.config.Helpdesk.WorkspaceID,
	}

	tickets, err := h.fetcher.FetchTickets(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Ticket fetch failed")
		if h.wsHub != nil {
			h.wsHub.SendAnalysisEvent("analysis_failed", map[string]interface{}{
				"run_id": runID,
				"error":  err.Error(),
			})
		}
		return nil, err
	}

	result := h.analyzer.Analyze(tickets)

	if h.storage != nil {
		if err := h.storage.SaveLastAnalysis(result); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to persist analysis snapshot")
		}
	}

	h.logger.Info().
		Str("run_id", runID).
		Int("window_minutes", windowMinutes).
		Int("total", result.TotalTickets).
		Int("fresh", result.Summary.FreshTickets).
		Msg("Analysis completed")

	if h.wsHub != nil {
		h.wsHub.SendAnalysisEvent("analysis_completed", map[string]interface{}{
			"run_id":        runID,
			"total_tickets": result.TotalTickets,
			"fresh_tickets": result.Summary.FreshTickets,
		})
	}

	return result, nil
}

// windowMinutes resolves the time window for a request: filter=today wins
// over minutes, and the configured default applies when neither is given.
func (h *APIHandlers) windowMinutes(r *http.Request) (int, error) {
	if r.URL.Query().Get("filter") == "today" {
		now := h.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		minutes := int(now.Sub(midnight).Minutes())
		if minutes < 1 {
			minutes = 1
		}
		return minutes, nil
	}

	raw := r.URL.Query().Get("minutes")
	if raw == "" {
		return h.config.Analyzer.DefaultWindowMinutes, nil
	}

	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0, common.NewValidationError("invalid_minutes",
			"minutes must be a positive integer")
	}
	return minutes, nil
}

func (h *APIHandlers) writeValidationError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

// writeError maps an upstream failure to a 500 response, attaching an
// actionable hint for credential problems.
func (h *APIHandlers) writeError(w http.ResponseWriter, err error) {
	response := ErrorResponse{Error: err.Error()}

	var analyzerErr *common.AnalyzerError
	if errors.As(err, &analyzerErr) {
		switch analyzerErr.Type {
		case common.ErrorTypeConfiguration, common.ErrorTypeAuth, common.ErrorTypeAuthExpired:
			response.Hint = "Verify the helpdesk credentials or API key configuration, then retry or POST /api/login."
		}
	} else if msg := strings.ToLower(err.Error()); strings.Contains(msg, "login") ||
		strings.Contains(msg, "credential") || strings.Contains(msg, "session") {
		response.Hint = "Verify the helpdesk credentials or API key configuration, then retry or POST /api/login."
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(response)
}

func (h *APIHandlers) testDatabaseConnection() bool {
	if h.storage == nil {
		return false
	}
	_, err := h.storage.LoadLastAnalysis()
	return err == nil
}
