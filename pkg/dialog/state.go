// Package dialog is the dialogue state engine: the per-call phase machine,
// emergency detection, the turn decision orchestrator, and post-call
// summarization.
package dialog

import (
	"sync"
	"time"

	"github.com/harunnryd/convoy/pkg/call"
)

// PhaseChange records one phase transition for listeners.
type PhaseChange struct {
	CallID    string
	FromPhase call.Phase
	ToPhase   call.Phase
	Timestamp time.Time
	Reason    string
}

// PhaseListener observes call phase changes.
type PhaseListener interface {
	OnPhaseChange(event PhaseChange)
}

// InvalidTransitionError is returned when a phase move is not allowed.
type InvalidTransitionError struct {
	From call.Phase
	To   call.Phase
}

func (e *InvalidTransitionError) Error() string {
	return "invalid phase transition from " + string(e.From) + " to " + string(e.To)
}

// validTransitions encodes the per-call phase machine. Ended and Escalated
// are terminal.
var validTransitions = map[call.Phase][]call.Phase{
	call.PhaseCollecting: {call.PhaseConfirming, call.PhaseEscalated, call.PhaseEnded},
	call.PhaseConfirming: {call.PhaseCollecting, call.PhaseEnded},
}

func transitionValid(from, to call.Phase) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// phaseTracker validates transitions and fans changes out to listeners.
type phaseTracker struct {
	mu        sync.Mutex
	listeners []PhaseListener
}

func (p *phaseTracker) AddListener(l PhaseListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Transition mutates state.Phase after validation and notifies listeners.
func (p *phaseTracker) Transition(callID string, state *call.ConversationState, to call.Phase, reason string) error {
	from := state.Phase
	if from == "" {
		from = call.PhaseCollecting
	}
	if !transitionValid(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	state.Phase = to
	if from == to {
		return nil
	}
	event := PhaseChange{
		CallID:    callID,
		FromPhase: from,
		ToPhase:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	p.mu.Lock()
	listeners := make([]PhaseListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnPhaseChange(event)
	}
	return nil
}
