package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/slots"
)

func TestMemoryCallLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c, err := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+15551234567", LoadNumber: "7891-B"})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	if c.Status != call.StatusQueued {
		t.Fatalf("expected queued status, got %s", c.Status)
	}

	if err := m.UpdateCallStatus(ctx, c.ID, call.StatusInProgress); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := m.AppendTranscript(ctx, c.ID, call.Segment{Text: "hello", Speaker: call.SpeakerAgent, Timestamp: time.Now(), Confidence: 1}); err != nil {
		t.Fatalf("append transcript: %v", err)
	}

	got, err := m.GetCall(ctx, c.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Status != call.StatusInProgress || len(got.Transcript) != 1 {
		t.Fatalf("unexpected call state: %+v", got)
	}
}

func TestMemoryGetCallNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetCall(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryProviderCallLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})
	if err := m.SetProviderCallID(ctx, c.ID, "call_abc123"); err != nil {
		t.Fatalf("set provider id: %v", err)
	}
	got, err := m.GetCallByProviderID(ctx, "call_abc123")
	if err != nil {
		t.Fatalf("lookup by provider id: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("expected call %s, got %s", c.ID, got.ID)
	}
}

func TestMemorySlotMergeIsMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})

	after, err := m.UpdateSlots(ctx, c.ID, slots.Set{DriverStatus: "Driving"})
	if err != nil {
		t.Fatalf("update slots: %v", err)
	}
	after, _ = m.UpdateSlots(ctx, c.ID, slots.Set{ETA: "5pm"})
	if after.DriverStatus != "Driving" || after.ETA != "5pm" {
		t.Fatalf("expected merged slots, got %+v", after)
	}

	if err := m.ResetCoreSlots(ctx, c.ID); err != nil {
		t.Fatalf("reset core: %v", err)
	}
	after, _ = m.GetSlots(ctx, c.ID)
	if after.DriverStatus != "" || after.ETA != "" {
		t.Fatalf("expected cleared core slots, got %+v", after)
	}
}

func TestMemoryConversationStateCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})

	st, err := m.GetConversationState(ctx, c.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Phase != call.PhaseCollecting {
		t.Fatalf("expected default collecting phase, got %s", st.Phase)
	}

	st.NoisyCount = 3
	st.ShortUtteranceCount = 1
	if err := m.PutConversationState(ctx, c.ID, st); err != nil {
		t.Fatalf("put state: %v", err)
	}
	st, _ = m.GetConversationState(ctx, c.ID)
	if st.NoisyCount != 3 || st.ShortUtteranceCount != 1 {
		t.Fatalf("counters not persisted: %+v", st)
	}
}

func TestMemoryCallStatusForwardOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})

	_ = m.UpdateCallStatus(ctx, c.ID, call.StatusCompleted)
	if err := m.UpdateCallStatus(ctx, c.ID, call.StatusInProgress); err != nil {
		t.Fatalf("backward move should be ignored, got %v", err)
	}
	got, _ := m.GetCall(ctx, c.ID)
	if got.Status != call.StatusCompleted {
		t.Fatalf("status regressed to %s", got.Status)
	}

	if err := m.UpdateCallStatus(ctx, c.ID, call.StatusProcessed); err != nil {
		t.Fatalf("forward move failed: %v", err)
	}
	got, _ = m.GetCall(ctx, c.ID)
	if got.Status != call.StatusProcessed {
		t.Fatalf("expected processed, got %s", got.Status)
	}
}

func TestMemorySummaryVersions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})

	_ = m.SaveSummary(ctx, c.ID, call.StructuredSummary{CallOutcome: call.OutcomeUnknown})
	_ = m.SaveSummary(ctx, c.ID, call.StructuredSummary{CallOutcome: call.OutcomeInTransit})

	versions := m.SummaryVersions(c.ID)
	if len(versions) != 2 {
		t.Fatalf("expected 2 summary versions, got %d", len(versions))
	}
	got, _ := m.GetCall(ctx, c.ID)
	if got.Summary == nil || got.Summary.CallOutcome != call.OutcomeInTransit {
		t.Fatalf("expected latest summary on call, got %+v", got.Summary)
	}
}

func TestMemoryAgentProfilePartialUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p, err := m.CreateAgentProfile(ctx, call.AgentProfile{Name: "checkin", PromptTemplate: "Hi {driver_name}"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	newName := "checkin-v2"
	updated, err := m.UpdateAgentProfile(ctx, p.ID, call.AgentProfileUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != "checkin-v2" || updated.PromptTemplate != "Hi {driver_name}" {
		t.Fatalf("partial update touched untargeted fields: %+v", updated)
	}

	if err := m.DeleteAgentProfile(ctx, p.ID); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if _, err := m.GetAgentProfile(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryListCallsFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", PhoneNumber: "+1555"})
	b, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Sara", PhoneNumber: "+1666"})
	_ = m.UpdateCallStatus(ctx, a.ID, call.StatusCompleted)
	_ = b

	done, err := m.ListCalls(ctx, call.ListFilter{Status: call.StatusCompleted})
	if err != nil {
		t.Fatalf("list calls: %v", err)
	}
	if len(done) != 1 || done[0].ID != a.ID {
		t.Fatalf("expected only completed call, got %+v", done)
	}

	byName, _ := m.ListCalls(ctx, call.ListFilter{DriverName: "sara"})
	if len(byName) != 1 || byName[0].ID != b.ID {
		t.Fatalf("expected case-insensitive driver filter, got %+v", byName)
	}
}

func TestMemoryCallContext(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p, _ := m.CreateAgentProfile(ctx, call.AgentProfile{Name: "checkin", PromptTemplate: "template text"})
	c, _ := m.CreateCall(ctx, call.NewCall{DriverName: "Mike", LoadNumber: "7891-B", AgentProfileID: p.ID})
	_ = m.AppendTranscript(ctx, c.ID, call.Segment{Text: "hello", Speaker: call.SpeakerAgent})
	_ = m.AppendTranscript(ctx, c.ID, call.Segment{Text: "driving", Speaker: call.SpeakerDriver})

	got, err := m.GetCallContext(ctx, c.ID)
	if err != nil {
		t.Fatalf("call context: %v", err)
	}
	if got.DriverName != "Mike" || got.LoadNumber != "7891-B" {
		t.Fatalf("unexpected context: %+v", got)
	}
	if got.CallHistory != "hello driving" {
		t.Fatalf("unexpected history: %q", got.CallHistory)
	}
	if got.PromptTemplate != "template text" {
		t.Fatalf("unexpected prompt template: %q", got.PromptTemplate)
	}
}
