package transport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/dialog"
	"github.com/harunnryd/convoy/pkg/errorsx"
	"github.com/harunnryd/convoy/pkg/store"
	"github.com/harunnryd/convoy/pkg/telephony"
)

type startCallRequest struct {
	DriverName     string `json:"driver_name"`
	PhoneNumber    string `json:"phone_number"`
	LoadNumber     string `json:"load_number"`
	AgentProfileID string `json:"agent_profile_id"`
}

// handleStartCall creates the call record and asks the provider to dial. A
// dial failure marks the record failed and surfaces as 502: the record is
// kept for the audit trail.
func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req startCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.DriverName) == "" || strings.TrimSpace(req.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "driver_name and phone_number are required")
		return
	}
	if req.AgentProfileID != "" {
		if _, err := s.store.GetAgentProfile(r.Context(), req.AgentProfileID); err != nil {
			writeError(w, http.StatusBadRequest, "unknown agent profile")
			return
		}
	}

	c, err := s.store.CreateCall(r.Context(), call.NewCall{
		DriverName:     req.DriverName,
		PhoneNumber:    req.PhoneNumber,
		LoadNumber:     req.LoadNumber,
		AgentProfileID: req.AgentProfileID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}

	result, err := s.telephony.InitiateCall(r.Context(), telephony.DialRequest{
		CallID:     c.ID,
		ToNumber:   req.PhoneNumber,
		AgentID:    req.AgentProfileID,
		WebhookURL: s.webhookURL(),
		Metadata:   map[string]string{"load_number": req.LoadNumber},
	})
	if err != nil {
		s.logger.Error("dial failed", "call_id", c.ID,
			"reason_code", string(errorsx.ReasonTelephonyDial), "error", err.Error())
		_ = s.store.UpdateCallStatus(r.Context(), c.ID, call.StatusFailed)
		writeError(w, http.StatusBadGateway, "dial failed")
		return
	}
	if result.ProviderCallID != "" {
		if err := s.store.SetProviderCallID(r.Context(), c.ID, result.ProviderCallID); err != nil {
			s.logger.Warn("provider call id not saved", "call_id", c.ID, "error", err.Error())
		}
	}

	c, err = s.store.GetCall(r.Context(), c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusAccepted, c)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := call.ListFilter{
		Status:     call.Status(q.Get("status")),
		DriverName: q.Get("driver"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil {
		f.PageSize = size
	}
	calls, err := s.store.ListCalls(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCall(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleProcessCall re-runs summarization over the stored transcript and
// marks the record processed. Safe to call repeatedly.
func (s *Server) handleProcessCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if _, err := s.store.GetCall(r.Context(), callID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if err := s.summarizer.Process(r.Context(), callID, dialog.SummarizeOptions{}); err != nil {
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	if err := s.store.UpdateCallStatus(r.Context(), callID, call.StatusProcessed); err != nil {
		s.logger.Warn("processed status not saved", "call_id", callID, "error", err.Error())
	}
	c, err := s.store.GetCall(r.Context(), callID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) webhookURL() string {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	if base == "" {
		return ""
	}
	return base + "/webhook"
}
