package dialog

import "time"

// EventKind classifies inbound channel events. The same set is recognized
// on the webhook and duplex paths.
type EventKind string

const (
	EventCallStarted      EventKind = "call.started"
	EventSpeech           EventKind = "speech"
	EventTranscriptUpdate EventKind = "transcript_update"
	EventUpdateOnly       EventKind = "update_only"
	EventCallEnded        EventKind = "call.ended"
	EventKeepalive        EventKind = "ping_pong"
)

// Event is one inbound turn delivered by a transport channel.
type Event struct {
	Kind       EventKind
	CallID     string
	TurnID     string
	Text       string
	Speaker    string
	Confidence float64
	Timestamp  time.Time
}

// Outcome is the transport-facing result of a turn.
type Outcome string

const (
	OutcomeContinued Outcome = "continued"
	OutcomeFollowup  Outcome = "followup"
	OutcomeUpdated   Outcome = "updated"
	OutcomeEnded     Outcome = "ended"
	OutcomeEscalated Outcome = "escalated"
	OutcomeIgnored   Outcome = "ignored"
)

// Response is what the engine wants spoken and done after a turn.
type Response struct {
	AgentText string  `json:"agent_text,omitempty"`
	Outcome   Outcome `json:"outcome"`
	EndCall   bool    `json:"end_call,omitempty"`
	Escalated bool    `json:"escalated,omitempty"`
	// Duplicate marks a replayed turn identifier; nothing was mutated and
	// nothing should be spoken.
	Duplicate bool `json:"duplicate,omitempty"`
}
