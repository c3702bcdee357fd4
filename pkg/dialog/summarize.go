package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/errorsx"
	"github.com/harunnryd/convoy/pkg/oracle"
	"github.com/harunnryd/convoy/pkg/store"
)

// SummarizeOptions select the canned summary for degenerate endings and
// carry emergency details captured during the call.
type SummarizeOptions struct {
	Noisy      bool
	NoResponse bool
	Emergency  *oracle.EmergencyDetails
}

// Summarizer turns a finished call's transcript into a structured summary
// and persists it. Safe to run repeatedly; each run saves a new version.
type Summarizer struct {
	store  store.Store
	oracle oracle.Oracle
	logger *slog.Logger
}

func NewSummarizer(st store.Store, or oracle.Oracle, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{store: st, oracle: or, logger: logger}
}

// Process builds and saves the summary for a call. The last slot memory
// always wins over what the oracle extracted from the transcript.
func (s *Summarizer) Process(ctx context.Context, callID string, opts SummarizeOptions) error {
	c, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStorageRead)
	}

	var summary call.StructuredSummary
	switch {
	case opts.Noisy:
		summary = call.StructuredSummary{
			CallOutcome:     call.OutcomeUnknown,
			ExtractionNotes: "Noisy - transcript low confidence",
		}
	case opts.NoResponse:
		summary = call.StructuredSummary{
			CallOutcome:     call.OutcomeNoResponse,
			ExtractionNotes: "Driver did not provide substantive responses",
		}
	default:
		summary, err = s.oracle.Summarize(ctx, transcriptText(c.Transcript))
		if err != nil {
			s.logger.Warn("summarization fell back to empty summary", "call_id", callID, "error", err.Error())
			summary = call.StructuredSummary{
				CallOutcome:     call.OutcomeUnknown,
				ExtractionNotes: "Summarization unavailable",
			}
		}
		if opts.Emergency != nil {
			summary.CallOutcome = call.OutcomeEmergency
			summary.EscalationStatus = call.EscalationFlagged
			if opts.Emergency.EmergencyType != "" {
				summary.EmergencyType = opts.Emergency.EmergencyType
			}
			if opts.Emergency.EmergencyLocation != "" {
				summary.EmergencyLocation = opts.Emergency.EmergencyLocation
			}
		}
	}

	if slotSet, err := s.store.GetSlots(ctx, callID); err == nil {
		if slotSet.DriverStatus != "" {
			summary.DriverStatus = slotSet.DriverStatus
		}
		if slotSet.CurrentLocation != "" {
			summary.CurrentLocation = slotSet.CurrentLocation
		}
		if slotSet.ETA != "" {
			summary.ETA = slotSet.ETA
		}
		if slotSet.EmergencyType != "" {
			summary.EmergencyType = slotSet.EmergencyType
		}
		if slotSet.EmergencyLocation != "" {
			summary.EmergencyLocation = slotSet.EmergencyLocation
		}
	}

	if err := s.store.SaveSummary(ctx, callID, summary); err != nil {
		return err
	}
	return nil
}

func transcriptText(segments []call.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s: %s", seg.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), seg.Speaker, seg.Text)
	}
	return b.String()
}
