package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/harunnryd/convoy/pkg/dialog"
	"github.com/harunnryd/convoy/pkg/errorsx"
	"github.com/harunnryd/convoy/pkg/store"
)

const signatureHeader = "X-Signature"

// handleWebhook is the per-turn HTTP channel: one POST per provider event
// (or batch), one decision in the response. Speaking the reply back through
// the provider is part of the turn here, so a speak failure is a 502.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		s.logger.Warn("webhook signature rejected", "reason_code", string(errorsx.ReasonTransportInvalidSignature))
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	events, err := ParseEvents(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusOK, dialog.Response{Outcome: dialog.OutcomeIgnored})
		return
	}

	// Batches run in order; the caller acts on the last decision.
	var last dialog.Response
	for _, ev := range events {
		ev.CallID = s.resolveCallID(r, ev.CallID)
		if ev.CallID == "" {
			writeError(w, http.StatusNotFound, "unknown call")
			return
		}
		resp, err := s.engine.HandleTurn(r.Context(), ev)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "turn failed")
			return
		}
		last = resp

		if resp.AgentText != "" {
			if err := s.telephony.Speak(r.Context(), ev.CallID, resp.AgentText); err != nil {
				s.logger.Error("speak failed", "call_id", ev.CallID,
					"reason_code", string(errorsx.ReasonTelephonySpeak), "error", err.Error())
				writeError(w, http.StatusBadGateway, "speak failed")
				return
			}
		}
		if resp.EndCall {
			if err := s.telephony.EndCall(r.Context(), ev.CallID); err != nil {
				s.logger.Warn("end call failed", "call_id", ev.CallID,
					"reason_code", string(errorsx.ReasonTelephonyEndCall), "error", err.Error())
			}
		}
	}
	writeJSON(w, http.StatusOK, last)
}

// resolveCallID maps a provider-side call identifier to the internal one
// when the event does not carry our ID.
func (s *Server) resolveCallID(r *http.Request, id string) string {
	if id == "" {
		return ""
	}
	if _, err := s.store.GetCall(r.Context(), id); err == nil {
		return id
	}
	c, err := s.store.GetCallByProviderID(r.Context(), id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("call lookup failed", "provider_call_id", id, "error", err.Error())
		}
		return ""
	}
	return c.ID
}

func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.cfg.WebhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
