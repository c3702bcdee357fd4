package transport

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/harunnryd/convoy/pkg/dialog"
	"github.com/harunnryd/convoy/pkg/errorsx"
)

// rawEvent accepts the field aliases observed across provider payload
// revisions. A body may also be a batch under "events".
type rawEvent struct {
	Event     string `json:"event"`
	EventType string `json:"event_type"`
	Type      string `json:"type"`

	CallID    string `json:"call_id"`
	CallIDAlt string `json:"callId"`
	Call      *struct {
		ID     string `json:"id"`
		CallID string `json:"call_id"`
	} `json:"call"`

	TurnID     string `json:"turn_id"`
	ResponseID string `json:"response_id"`

	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Utterance  string `json:"utterance"`

	Speaker    string   `json:"speaker"`
	Role       string   `json:"role"`
	Confidence *float64 `json:"confidence"`
	Timestamp  string   `json:"timestamp"`

	// Older provider revisions nest the utterance under payload/data.
	Payload *rawPayload `json:"payload"`
	Data    *rawPayload `json:"data"`

	Events []json.RawMessage `json:"events"`
}

type rawPayload struct {
	SpeechText string   `json:"speech_text"`
	Text       string   `json:"text"`
	Transcript string   `json:"transcript"`
	Speaker    string   `json:"speaker"`
	Confidence *float64 `json:"confidence"`
}

// ParseEvents normalizes a webhook or websocket body into engine events.
// Batched bodies yield the events in order.
func ParseEvents(body []byte) ([]dialog.Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTransportMalformedEvent)
	}
	if len(raw.Events) > 0 {
		out := make([]dialog.Event, 0, len(raw.Events))
		for _, item := range raw.Events {
			evs, err := ParseEvents(item)
			if err != nil {
				return nil, err
			}
			out = append(out, evs...)
		}
		return out, nil
	}
	ev, ok := raw.toEvent()
	if !ok {
		return nil, nil
	}
	return []dialog.Event{ev}, nil
}

func (r rawEvent) toEvent() (dialog.Event, bool) {
	kind, ok := normalizeKind(firstNonEmpty(r.Event, r.EventType, r.Type), r.text() != "")
	if !ok {
		return dialog.Event{}, false
	}
	ev := dialog.Event{
		Kind:       kind,
		CallID:     r.callID(),
		TurnID:     firstNonEmpty(r.TurnID, r.ResponseID),
		Text:       r.text(),
		Speaker:    normalizeSpeaker(r.speaker()),
		Confidence: 1,
	}
	if c := r.confidence(); c != nil {
		ev.Confidence = *c
	}
	if ts, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
		ev.Timestamp = ts
	}
	return ev, true
}

func (r rawEvent) callID() string {
	if r.Call != nil {
		if id := firstNonEmpty(r.Call.ID, r.Call.CallID); id != "" {
			return id
		}
	}
	return firstNonEmpty(r.CallID, r.CallIDAlt)
}

func (r rawEvent) text() string {
	out := firstNonEmpty(r.Text, r.Transcript, r.Utterance)
	if p := r.payload(); out == "" && p != nil {
		out = firstNonEmpty(p.SpeechText, p.Text, p.Transcript)
	}
	return out
}

func (r rawEvent) speaker() string {
	out := firstNonEmpty(r.Speaker, r.Role)
	if p := r.payload(); out == "" && p != nil {
		out = p.Speaker
	}
	return out
}

func (r rawEvent) confidence() *float64 {
	if r.Confidence != nil {
		return r.Confidence
	}
	if p := r.payload(); p != nil {
		return p.Confidence
	}
	return nil
}

func (r rawEvent) payload() *rawPayload {
	if r.Payload != nil {
		return r.Payload
	}
	return r.Data
}

// normalizeKind maps the provider's event vocabulary onto the engine's.
// Unknown kinds without text are dropped; unknown kinds with text are
// treated as speech so a driver utterance is never silently lost.
func normalizeKind(kind string, hasText bool) (dialog.EventKind, bool) {
	k := strings.ToLower(strings.TrimSpace(kind))
	k = strings.ReplaceAll(k, "-", "_")
	switch k {
	case "call_started", "call.started", "started", "start":
		return dialog.EventCallStarted, true
	case "speech", "transcript", "utterance", "user_speech", "response_required":
		return dialog.EventSpeech, true
	// Only update_only is silent; transcript updates still get a spoken
	// response from the engine.
	case "update_only":
		return dialog.EventUpdateOnly, true
	case "transcript_update", "update":
		return dialog.EventTranscriptUpdate, true
	case "call_ended", "call.ended", "ended", "stop", "hangup":
		return dialog.EventCallEnded, true
	case "ping_pong", "ping", "keepalive":
		return dialog.EventKeepalive, true
	case "":
		if hasText {
			return dialog.EventSpeech, true
		}
		return "", false
	default:
		if hasText {
			return dialog.EventSpeech, true
		}
		return "", false
	}
}

func normalizeSpeaker(speaker string) string {
	switch strings.ToLower(strings.TrimSpace(speaker)) {
	case "agent", "assistant", "bot":
		return "agent"
	case "", "driver", "user", "human", "caller":
		return "driver"
	default:
		return "driver"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
