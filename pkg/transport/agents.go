package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/store"
)

type createAgentRequest struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	PromptTemplate string         `json:"prompt_template"`
	VoiceSettings  map[string]any `json:"voice_settings"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p, err := s.store.CreateAgentProfile(r.Context(), call.AgentProfile{
		Name:           req.Name,
		Description:    req.Description,
		PromptTemplate: req.PromptTemplate,
		VoiceSettings:  req.VoiceSettings,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListAgentProfiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": profiles})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetAgentProfile(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var upd call.AgentProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := s.store.UpdateAgentProfile(r.Context(), chi.URLParam(r, "agentID"), upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAgentProfile(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
