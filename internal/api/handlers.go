package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecsf-gov/sage/internal/flow"
	"github.com/ecsf-gov/sage/internal/models"
)

const healthCheckTimeout = 5 * time.Second

type startRequest struct {
	ConversationID string `json:"conversationId"`
}

type messageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type choiceRequest struct {
	ConversationID string `json:"conversationId"`
	Choice         string `json:"choice"`
}

type actionRequest struct {
	ConversationID string `json:"conversationId"`
	ActionID       string `json:"actionId"`
	Confirmed      bool   `json:"confirmed"`
}

type resetRequest struct {
	ConversationID string `json:"conversationId"`
}

// startHandler opens a new conversation and returns the greeting.
func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
			return
		}
	}
	resp, err := s.engine.StartConversation(r.Context(), req.ConversationID)
	if err != nil {
		s.writeEngineError(w, "startHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// messageHandler processes a free-text message event.
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	resp, err := s.engine.ProcessMessage(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		s.writeEngineError(w, "messageHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// choiceHandler processes a choice selection event.
func (s *Server) choiceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	resp, err := s.engine.ProcessChoice(r.Context(), req.ConversationID, req.Choice)
	if err != nil {
		s.writeEngineError(w, "choiceHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// actionHandler processes an action card confirmation or cancellation.
func (s *Server) actionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	resp, err := s.engine.ProcessAction(r.Context(), req.ConversationID, req.ActionID, req.Confirmed)
	if err != nil {
		s.writeEngineError(w, "actionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// resetHandler deletes the conversation state and starts a fresh one.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON body"))
		return
	}
	resp, err := s.engine.Reset(r.Context(), req.ConversationID)
	if err != nil {
		s.writeEngineError(w, "resetHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// healthHandler reports store and gateway availability.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := map[string]interface{}{"status": "ok"}
	if _, err := s.store.GetContext("health_check"); err != nil {
		slog.Error("Server.healthHandler: store check failed", "error", err)
		health["status"] = "degraded"
		health["store"] = "unavailable"
	} else {
		health["store"] = "ok"
	}
	if s.gateway != nil {
		if err := s.gateway.Ping(ctx); err != nil {
			slog.Warn("Server.healthHandler: gateway unreachable", "error", err)
			health["gateway"] = "unavailable"
		} else {
			health["gateway"] = "ok"
		}
	} else {
		health["gateway"] = "disabled"
	}

	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, models.Success(health))
}

// writeEngineError maps engine errors onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, handler string, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyConversationID),
		errors.Is(err, models.ErrEmptyMessage),
		errors.Is(err, models.ErrEmptyChoice),
		errors.Is(err, models.ErrEmptyActionID):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.Is(err, flow.ErrConversationNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	default:
		slog.Error("Server."+handler+": engine error", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
