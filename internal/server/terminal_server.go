package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"asistencia/checador-terminal/internal/store"
	"asistencia/checador-terminal/internal/terminal"

	"go.uber.org/zap"
)

// CardSubmitRequest is the request body from the PIN pad hardware
type CardSubmitRequest struct {
	Card int64 `json:"tarjeta"`
}

// TerminalServer handles HTTP requests from the PIN pad hardware and the
// display front-end
type TerminalServer struct {
	service *terminal.Service
	store   *store.Store
	logger  *zap.Logger
}

// NewTerminalServer creates a new terminal server
func NewTerminalServer(service *terminal.Service, st *store.Store, logger *zap.Logger) *TerminalServer {
	return &TerminalServer{
		service: service,
		store:   st,
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler
func (s *TerminalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/api/v1/card":
		if r.Method == http.MethodPost {
			s.handleCardSubmit(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/state":
		if r.Method == http.MethodGet {
			s.handleState(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/health":
		if r.Method == http.MethodGet {
			s.handleHealth(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

// setCORSHeaders sets CORS headers for the display front-end
func (s *TerminalServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleCardSubmit runs a PIN pad swipe through the check-in pipeline. A
// structured backend rejection is still a 200 here: the normalized event
// carries the outcome. Only transport failures map to 502.
func (s *TerminalServer) handleCardSubmit(w http.ResponseWriter, r *http.Request) {
	var req CardSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Failed to decode card request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Card <= 0 {
		http.Error(w, "Missing card number", http.StatusBadRequest)
		return
	}

	event, err := s.service.SubmitCard(r.Context(), req.Card)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Card submission failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "backend unreachable, swipe queued",
		})
		return
	}

	s.logger.Info("Card processed",
		zap.Bool("identified", event.Identified),
		zap.String("code", event.StatusCode),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(event)
}

// handleState serves the reconciled terminal state to the display
func (s *TerminalServer) handleState(w http.ResponseWriter, r *http.Request) {
	type stateResponse struct {
		store.StateView
		Terminal map[string]interface{} `json:"terminal"`
	}

	resp := stateResponse{
		StateView: s.store.View(),
		Terminal:  s.service.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleHealth provides a health check endpoint
func (s *TerminalServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"ready":     s.service.Ready(),
		"timestamp": time.Now().Unix(),
	})
}
