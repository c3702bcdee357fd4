package oracle

import (
	"context"
	"strings"

	"github.com/harunnryd/convoy/pkg/call"
)

// Simulated is a deterministic offline oracle for development and tests.
// Replies follow simple keyword rules so dialogue flows are reproducible.
type Simulated struct{}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) DecideNextAction(_ context.Context, _ call.Context, lastUtterance string) (Decision, error) {
	if strings.Contains(strings.ToLower(lastUtterance), "arrived") {
		return Decision{AgentText: "Thanks for the update. Ending the call.", Action: ActionEndCall}, nil
	}
	return Decision{AgentText: "Got it. Any delays or ETA?", Action: ActionAskFollowup}, nil
}

func (s *Simulated) EmergencyProtocol(_ context.Context) (Decision, error) {
	return Decision{
		AgentText: "Emergency noted. A human dispatcher will call you back immediately.",
		Action:    ActionEscalate,
		StructuredEmergency: &EmergencyDetails{
			EmergencyType: "Breakdown",
			Injuries:      "unknown",
			Notes:         "Simulated emergency",
		},
	}, nil
}

func (s *Simulated) Summarize(_ context.Context, transcriptText string) (call.StructuredSummary, error) {
	text := strings.ToLower(transcriptText)
	switch {
	case strings.Contains(text, "blowout") || strings.Contains(text, "accident"):
		summary := call.StructuredSummary{
			CallOutcome:      call.OutcomeEmergency,
			EmergencyType:    "Breakdown",
			EscalationStatus: call.EscalationFlagged,
			ExtractionNotes:  "Driver reported blowout and pulled over, no injuries.",
		}
		if strings.Contains(text, "123") {
			summary.EmergencyLocation = "I-15 North, Mile Marker 123"
		}
		return summary, nil
	case strings.Contains(text, "indio") || strings.Contains(text, "i-10"):
		return call.StructuredSummary{
			CallOutcome:     call.OutcomeInTransit,
			DriverStatus:    "Driving",
			CurrentLocation: "I-10 near Indio, CA",
			ETA:             "Tomorrow, 8:00 AM",
			ExtractionNotes: "Clear in-transit update.",
		}, nil
	}
	return call.StructuredSummary{
		CallOutcome:     call.OutcomeUnknown,
		ExtractionNotes: "Simulated summarizer could not determine.",
	}, nil
}
