package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"
	"hubadapters/internal/hub"

	"go.uber.org/zap"
)

// Server provides the HTTP API of the hub
type Server struct {
	hub     *hub.Hub
	metrics http.Handler
	logger  *zap.Logger
	server  *http.Server
	mux     *http.ServeMux
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(h *hub.Hub, metrics http.Handler, logger *zap.Logger, port int) *Server {
	s := &Server{
		hub:     h,
		metrics: metrics,
		logger:  logger.Named("api"),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.handleSitemap)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/entities", s.handleGetEntities)
	s.mux.HandleFunc("GET /api/entries", s.handleGetEntries)
	s.mux.HandleFunc("DELETE /api/entries/{id}", s.handleDeleteEntry)
	s.mux.HandleFunc("POST /api/entries/{id}/options", s.handleStartOptions)
	s.mux.HandleFunc("GET /api/flows", s.handleGetFlows)
	s.mux.HandleFunc("POST /api/flows", s.handleStartFlow)
	s.mux.HandleFunc("POST /api/flows/{id}", s.handleConfigureFlow)
	s.mux.HandleFunc("DELETE /api/flows/{id}", s.handleAbortFlow)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StartFlowRequest starts a config flow
type StartFlowRequest struct {
	Handler string         `json:"handler"`
	Source  entry.Source   `json:"source,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, flow.ErrUnknownFlow), errors.Is(err, entry.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flow.ErrUnknownHandler):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// decodeInput reads an optional JSON object body. An empty body is nil input.
func decodeInput(r *http.Request) (flow.Input, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	var input flow.Input
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	normalizeNumbers(input)
	return input, nil
}

// normalizeNumbers turns json.Number values into int64 or float64 so flow
// handlers see plain Go numbers.
func normalizeNumbers(input flow.Input) {
	for k, v := range input {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			input[k] = i
		} else if f, err := n.Float64(); err == nil {
			input[k] = f
		}
	}
}

// handleGetEntities returns every entity snapshot
func (s *Server) handleGetEntities(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Entities().Snapshots())
}

// handleGetEntries returns the config entries with their state, optionally
// filtered by ?domain=
func (s *Server) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Status(r.URL.Query().Get("domain")))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Entries().Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartOptions(w http.ResponseWriter, r *http.Request) {
	result, err := s.hub.Flows().InitOptions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetFlows(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Flows().InProgress(r.URL.Query().Get("domain")))
}

func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	var req StartFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Handler == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "handler is required"})
		return
	}

	var data flow.Input
	if req.Data != nil {
		data = flow.Input(req.Data)
	}

	result, err := s.hub.Flows().Init(r.Context(), req.Handler, flow.Context{Source: req.Source}, data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Debug("Flow started",
		zap.String("handler", req.Handler),
		zap.String("flow_id", result.FlowID),
		zap.String("remote_addr", r.RemoteAddr))
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfigureFlow(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := s.hub.Flows().Configure(r.Context(), r.PathValue("id"), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAbortFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Flows().Abort(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"integrations": s.hub.Domains(),
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap"},
	{Path: "/health", Method: "GET", Description: "Health check, lists loaded integrations"},
	{Path: "/metrics", Method: "GET", Description: "Prometheus metrics"},
	{Path: "/api/entities", Method: "GET", Description: "Current state of every entity"},
	{Path: "/api/entries", Method: "GET", Description: "Config entries and their state (?domain=)"},
	{Path: "/api/entries/{id}", Method: "DELETE", Description: "Remove a config entry"},
	{Path: "/api/entries/{id}/options", Method: "POST", Description: "Start the options flow of an entry"},
	{Path: "/api/flows", Method: "GET", Description: "Config flows waiting for input (?domain=)"},
	{Path: "/api/flows", Method: "POST", Description: "Start a config flow: {\"handler\": \"fritz\"}"},
	{Path: "/api/flows/{id}", Method: "POST", Description: "Submit input to the step a flow waits on"},
	{Path: "/api/flows/{id}", Method: "DELETE", Description: "Abort a flow"},
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		s.writeJSON(w, http.StatusOK, endpoints)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hub API\n")
	fmt.Fprintf(w, "=======\n\n")
	fmt.Fprintf(w, "Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-8s %-28s %s\n", ep.Method, ep.Path, ep.Description)
	}
	fmt.Fprintf(w, "\nExamples:\n\n")
	fmt.Fprintf(w, "  Start a FRITZ!Box setup:\n")
	fmt.Fprintf(w, "    curl -X POST -d '{\"handler\": \"fritz\"}' http://localhost:8080/api/flows\n\n")
	fmt.Fprintf(w, "  Pretty print entities:\n")
	fmt.Fprintf(w, "    curl http://localhost:8080/api/entities | jq\n\n")

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
