package dialog

import (
	"errors"
	"testing"

	"github.com/harunnryd/convoy/pkg/call"
)

func TestTransitionValidity(t *testing.T) {
	cases := []struct {
		from, to call.Phase
		ok       bool
	}{
		{call.PhaseCollecting, call.PhaseConfirming, true},
		{call.PhaseCollecting, call.PhaseEscalated, true},
		{call.PhaseCollecting, call.PhaseEnded, true},
		{call.PhaseConfirming, call.PhaseCollecting, true},
		{call.PhaseConfirming, call.PhaseEnded, true},
		{call.PhaseConfirming, call.PhaseEscalated, false},
		{call.PhaseEnded, call.PhaseCollecting, false},
		{call.PhaseEscalated, call.PhaseEnded, false},
		{call.PhaseEnded, call.PhaseEnded, true},
	}
	for _, tc := range cases {
		if got := transitionValid(tc.from, tc.to); got != tc.ok {
			t.Fatalf("transition %s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

type recordingListener struct {
	changes []PhaseChange
}

func (r *recordingListener) OnPhaseChange(ev PhaseChange) {
	r.changes = append(r.changes, ev)
}

func TestPhaseTrackerNotifiesListeners(t *testing.T) {
	tracker := &phaseTracker{}
	listener := &recordingListener{}
	tracker.AddListener(listener)

	state := call.ConversationState{Phase: call.PhaseCollecting}
	if err := tracker.Transition("call-1", &state, call.PhaseConfirming, "core slots filled"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if state.Phase != call.PhaseConfirming {
		t.Fatalf("state not mutated, got %s", state.Phase)
	}
	if len(listener.changes) != 1 {
		t.Fatalf("expected one change, got %d", len(listener.changes))
	}
	ch := listener.changes[0]
	if ch.CallID != "call-1" || ch.FromPhase != call.PhaseCollecting || ch.ToPhase != call.PhaseConfirming || ch.Reason != "core slots filled" {
		t.Fatalf("unexpected change event: %+v", ch)
	}
}

func TestPhaseTrackerRejectsInvalidMove(t *testing.T) {
	tracker := &phaseTracker{}
	listener := &recordingListener{}
	tracker.AddListener(listener)

	state := call.ConversationState{Phase: call.PhaseEnded}
	err := tracker.Transition("call-1", &state, call.PhaseCollecting, "reopen")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if state.Phase != call.PhaseEnded {
		t.Fatalf("state mutated on invalid transition: %s", state.Phase)
	}
	if len(listener.changes) != 0 {
		t.Fatalf("listener fired on invalid transition")
	}
}

func TestSamePhaseTransitionIsSilent(t *testing.T) {
	tracker := &phaseTracker{}
	listener := &recordingListener{}
	tracker.AddListener(listener)

	state := call.ConversationState{Phase: call.PhaseCollecting}
	if err := tracker.Transition("call-1", &state, call.PhaseCollecting, "noop"); err != nil {
		t.Fatalf("same-phase transition should be allowed: %v", err)
	}
	if len(listener.changes) != 0 {
		t.Fatalf("listener fired on same-phase transition")
	}
}

func TestEmptyPhaseDefaultsToCollecting(t *testing.T) {
	tracker := &phaseTracker{}
	state := call.ConversationState{}
	if err := tracker.Transition("call-1", &state, call.PhaseEnded, "provider ended call"); err != nil {
		t.Fatalf("fresh state should transition from collecting: %v", err)
	}
	if state.Phase != call.PhaseEnded {
		t.Fatalf("expected ended, got %s", state.Phase)
	}
}
