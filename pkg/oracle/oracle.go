// Package oracle is the text-generation collaborator: it authors agent
// utterances the deterministic slot logic cannot, runs the emergency
// protocol, and produces post-call structured summaries.
package oracle

import (
	"context"
	"encoding/json"

	"github.com/harunnryd/convoy/pkg/call"
)

// Action is what the dialogue engine should do after speaking.
type Action string

const (
	ActionContinue    Action = "continue"
	ActionAskFollowup Action = "ask_followup"
	ActionEndCall     Action = "end_call"
	ActionEscalate    Action = "escalate"
)

// Decision is one oracle-authored turn.
type Decision struct {
	AgentText           string             `json:"agent_text"`
	Action              Action             `json:"action"`
	FollowupQuestion    string             `json:"followup_question,omitempty"`
	NotesForLogging     string             `json:"notes_for_logging,omitempty"`
	StructuredEmergency *EmergencyDetails  `json:"structured_emergency,omitempty"`
}

// EmergencyDetails is the structured output of the emergency protocol.
type EmergencyDetails struct {
	EmergencyType     string `json:"emergency_type"`
	EmergencyLocation string `json:"emergency_location"`
	Injuries          string `json:"injuries"`
	Notes             string `json:"notes"`
}

// Oracle is the external language-model collaborator. Implementations must
// tolerate transient failure; callers retry with backoff and degrade to
// deterministic text when every attempt fails.
type Oracle interface {
	DecideNextAction(ctx context.Context, callCtx call.Context, lastUtterance string) (Decision, error)
	EmergencyProtocol(ctx context.Context) (Decision, error)
	Summarize(ctx context.Context, transcriptText string) (call.StructuredSummary, error)
}

// decodeDecision parses a model reply. Non-JSON content becomes plain agent
// text with a continue action rather than an error.
func decodeDecision(content string) Decision {
	var d Decision
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return Decision{AgentText: content, Action: ActionContinue}
	}
	if d.Action == "" {
		d.Action = ActionContinue
	}
	return d
}
