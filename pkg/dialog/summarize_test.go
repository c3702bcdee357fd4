package dialog

import (
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/oracle"
	"github.com/harunnryd/convoy/pkg/slots"
	"github.com/harunnryd/convoy/pkg/store"
)

func newSummarizerFixture(t *testing.T, or oracle.Oracle) (*Summarizer, *store.Memory, string) {
	t.Helper()
	mem := store.NewMemory()
	c, err := mem.CreateCall(context.Background(), call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return NewSummarizer(mem, or, nil), mem, c.ID
}

func TestSummarizeUsesOracleAndTranscript(t *testing.T) {
	or := &stubOracle{summary: call.StructuredSummary{
		CallOutcome:     call.OutcomeInTransit,
		DriverStatus:    "Driving",
		CurrentLocation: "I-10 near Indio, CA",
		ETA:             "5pm",
	}}
	sum, mem, id := newSummarizerFixture(t, or)
	ctx := context.Background()
	_ = mem.AppendTranscript(ctx, id, call.Segment{Text: "Hi Mike, quick check-in.", Speaker: call.SpeakerAgent})
	_ = mem.AppendTranscript(ctx, id, call.Segment{Text: "Driving on I-10, be there by 5.", Speaker: call.SpeakerDriver})

	if err := sum.Process(ctx, id, SummarizeOptions{}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if or.summarizeCalls != 1 {
		t.Fatalf("expected one summarize call, got %d", or.summarizeCalls)
	}
	if !strings.Contains(or.lastTranscript, "Driving on I-10") || !strings.Contains(or.lastTranscript, call.SpeakerAgent) {
		t.Fatalf("transcript not passed through: %q", or.lastTranscript)
	}
	c, _ := mem.GetCall(ctx, id)
	if c.Summary == nil || c.Summary.CallOutcome != call.OutcomeInTransit {
		t.Fatalf("summary not saved: %+v", c.Summary)
	}
}

func TestSummarizeNoisyShortCircuitsOracle(t *testing.T) {
	or := &stubOracle{}
	sum, mem, id := newSummarizerFixture(t, or)

	if err := sum.Process(context.Background(), id, SummarizeOptions{Noisy: true}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if or.summarizeCalls != 0 {
		t.Fatalf("noisy summary must not call the oracle")
	}
	c, _ := mem.GetCall(context.Background(), id)
	if c.Summary == nil || c.Summary.CallOutcome != call.OutcomeUnknown || !strings.Contains(c.Summary.ExtractionNotes, "low confidence") {
		t.Fatalf("unexpected noisy summary: %+v", c.Summary)
	}
}

func TestSummarizeNoResponse(t *testing.T) {
	or := &stubOracle{}
	sum, mem, id := newSummarizerFixture(t, or)

	if err := sum.Process(context.Background(), id, SummarizeOptions{NoResponse: true}); err != nil {
		t.Fatalf("process: %v", err)
	}
	c, _ := mem.GetCall(context.Background(), id)
	if c.Summary == nil || c.Summary.CallOutcome != call.OutcomeNoResponse {
		t.Fatalf("unexpected no-response summary: %+v", c.Summary)
	}
}

func TestSummarizeEmergencyOverridesOutcome(t *testing.T) {
	or := &stubOracle{summary: call.StructuredSummary{CallOutcome: call.OutcomeInTransit}}
	sum, mem, id := newSummarizerFixture(t, or)

	opts := SummarizeOptions{Emergency: &oracle.EmergencyDetails{
		EmergencyType:     "Breakdown",
		EmergencyLocation: "mile marker 42",
	}}
	if err := sum.Process(context.Background(), id, opts); err != nil {
		t.Fatalf("process: %v", err)
	}
	c, _ := mem.GetCall(context.Background(), id)
	if c.Summary == nil {
		t.Fatalf("summary missing")
	}
	if c.Summary.CallOutcome != call.OutcomeEmergency || c.Summary.EscalationStatus != call.EscalationFlagged {
		t.Fatalf("emergency did not override outcome: %+v", c.Summary)
	}
	if c.Summary.EmergencyType != "Breakdown" || c.Summary.EmergencyLocation != "mile marker 42" {
		t.Fatalf("emergency details not carried: %+v", c.Summary)
	}
}

func TestSummarizeSlotMemoryWins(t *testing.T) {
	or := &stubOracle{summary: call.StructuredSummary{
		CallOutcome:     call.OutcomeInTransit,
		DriverStatus:    "Unknown",
		CurrentLocation: "somewhere on the interstate",
	}}
	sum, mem, id := newSummarizerFixture(t, or)
	ctx := context.Background()
	_, _ = mem.UpdateSlots(ctx, id, slots.Set{DriverStatus: "Driving", CurrentLocation: "Multan", ETA: "6 pm"})

	if err := sum.Process(ctx, id, SummarizeOptions{}); err != nil {
		t.Fatalf("process: %v", err)
	}
	c, _ := mem.GetCall(ctx, id)
	if c.Summary.DriverStatus != "Driving" || c.Summary.CurrentLocation != "Multan" || c.Summary.ETA != "6 pm" {
		t.Fatalf("slot memory should win over oracle extraction: %+v", c.Summary)
	}
}

func TestSummarizeOracleFailureSavesFallback(t *testing.T) {
	or := &stubOracle{summarizeErr: context.DeadlineExceeded}
	sum, mem, id := newSummarizerFixture(t, or)

	if err := sum.Process(context.Background(), id, SummarizeOptions{}); err != nil {
		t.Fatalf("process should degrade, not fail: %v", err)
	}
	c, _ := mem.GetCall(context.Background(), id)
	if c.Summary == nil || c.Summary.CallOutcome != call.OutcomeUnknown {
		t.Fatalf("expected unknown-outcome fallback, got %+v", c.Summary)
	}
}

func TestSummarizeVersionsAccumulate(t *testing.T) {
	or := &stubOracle{summary: call.StructuredSummary{CallOutcome: call.OutcomeInTransit}}
	sum, mem, id := newSummarizerFixture(t, or)
	ctx := context.Background()

	_ = sum.Process(ctx, id, SummarizeOptions{})
	_ = sum.Process(ctx, id, SummarizeOptions{})
	if got := len(mem.SummaryVersions(id)); got != 2 {
		t.Fatalf("expected two summary versions, got %d", got)
	}
}
