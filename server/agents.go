// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"io"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

type listAgentsResponse struct {
	Agents []string `json:"agents"`
}

type registerAgentRequest struct {
	ID   string         `json:"id"`
	Card jsontext.Value `json:"card"`
}

type registerAgentResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// handleListAgents lists the IDs of all registered agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, listAgentsResponse{Agents: s.agents.List()})
}

// handleGetAgent returns the card of one agent verbatim.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	card, ok := s.agents.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "Agent not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(card); err != nil {
		s.logger.DebugContext(r.Context(), "failed to write agent card", "error", err)
	}
}

// handleRegisterAgent registers the card posted as {"id": ..., "card": {...}}.
func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req registerAgentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ID == "" || len(req.Card) == 0 || req.Card.Kind() == 'n' {
		s.writeError(w, r, http.StatusBadRequest, "Agent ID and card required")
		return
	}

	if err := s.agents.Register(req.ID, req.Card); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, r, http.StatusOK, registerAgentResponse{Status: "success", ID: req.ID})
}
