// Package api exposes the healing engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snow-ghost/healer/core"
	"github.com/snow-ghost/healer/decision"
	"github.com/snow-ghost/healer/engine"
)

// Server represents the HTTP server.
type Server struct {
	port   string
	logger *slog.Logger
	router *http.ServeMux
	engine *engine.Engine
	scorer *decision.Scorer
	errors core.ErrorStore
}

// NewServer creates a new HTTP server.
func NewServer(port string, logger *slog.Logger, eng *engine.Engine,
	scorer *decision.Scorer, errorStore core.ErrorStore) *Server {
	s := &Server{
		port:   port,
		logger: logger,
		router: http.NewServeMux(),
		engine: eng,
		scorer: scorer,
		errors: errorStore,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	v1 := http.NewServeMux()
	v1.HandleFunc("/cycle", s.handleCycle)
	v1.HandleFunc("/decide", s.handleDecide)
	v1.HandleFunc("/outcome", s.handleOutcome)
	v1.HandleFunc("/errors", s.handleErrors)

	s.router.Handle("/v1/", http.StripPrefix("/v1", v1))
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "port", s.port)
	return http.ListenAndServe(":"+s.port, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"healerd","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// cycleRequest triggers one healing cycle.
type cycleRequest struct {
	TargetCategories []string `json:"target_categories,omitempty"`
	MaxErrors        int      `json:"max_errors,omitempty"`
	AutoApply        *bool    `json:"auto_apply,omitempty"`
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cycleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, "Invalid JSON", "INVALID_JSON", http.StatusBadRequest)
			return
		}
	}

	opts := engine.CycleOptions{
		MaxErrors: req.MaxErrors,
		AutoApply: true,
	}
	if req.AutoApply != nil {
		opts.AutoApply = *req.AutoApply
	}
	for _, raw := range req.TargetCategories {
		category, err := core.ParseCategory(raw)
		if err != nil {
			s.writeError(w, err.Error(), "INVALID_CATEGORY", http.StatusBadRequest)
			return
		}
		opts.TargetCategories = append(opts.TargetCategories, category)
	}

	report := s.engine.RunCycle(r.Context(), opts)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// decideRequest scores a set of options against a context.
type decideRequest struct {
	Options []core.DecisionOption `json:"options"`
	Context core.DecisionContext  `json:"context"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid JSON", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	if len(req.Options) == 0 {
		s.writeError(w, "at least one option is required", "NO_OPTIONS", http.StatusBadRequest)
		return
	}
	if req.Context.ScenarioCategory == "" {
		s.writeError(w, "scenario_category is required", "NO_SCENARIO", http.StatusBadRequest)
		return
	}

	dec, err := s.scorer.Score(r.Context(), req.Options, req.Context)
	if err != nil {
		s.logger.Error("decision scoring failed", "error", err)
		s.writeError(w, "scoring failed", "SCORING_FAILED", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dec)
}

// outcomeRequest closes the loop on a prior decision.
type outcomeRequest struct {
	DecisionID string `json:"decision_id"`
	ChosenID   string `json:"chosen_id"`
	Successful bool   `json:"successful"`
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid JSON", "INVALID_JSON", http.StatusBadRequest)
		return
	}
	if req.DecisionID == "" {
		s.writeError(w, "decision_id is required", "NO_DECISION_ID", http.StatusBadRequest)
		return
	}

	err := s.scorer.RecordChoice(r.Context(), req.DecisionID, req.ChosenID, req.Successful)
	switch {
	case errors.Is(err, core.ErrNotFound):
		s.writeError(w, "decision not found", "NOT_FOUND", http.StatusNotFound)
		return
	case errors.Is(err, core.ErrAlreadyFinal):
		s.writeError(w, "decision outcome already recorded", "ALREADY_RECORDED", http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("failed to record outcome", "error", err)
		s.writeError(w, "failed to record outcome", "RECORD_FAILED", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"recorded"}`)
}

// handleErrors ingests new error records and lists existing ones.
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var rec core.ErrorRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			s.writeError(w, "Invalid JSON", "INVALID_JSON", http.StatusBadRequest)
			return
		}
		stored, err := s.errors.Insert(r.Context(), rec)
		if err != nil {
			s.writeError(w, err.Error(), "INSERT_FAILED", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(stored)

	case http.MethodGet:
		filter := core.ErrorFilter{}
		if raw := r.URL.Query().Get("category"); raw != "" {
			category, err := core.ParseCategory(raw)
			if err != nil {
				s.writeError(w, err.Error(), "INVALID_CATEGORY", http.StatusBadRequest)
				return
			}
			filter.Category = &category
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := core.Status(raw)
			filter.Status = &status
		}
		filter.Keyword = r.URL.Query().Get("keyword")

		records, err := s.errors.Query(r.Context(), filter)
		if err != nil {
			s.logger.Error("error query failed", "error", err)
			s.writeError(w, "query failed", "QUERY_FAILED", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"errors": records, "count": len(records)})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
