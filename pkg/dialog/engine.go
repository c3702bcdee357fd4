package dialog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/errorsx"
	"github.com/harunnryd/convoy/pkg/metrics"
	"github.com/harunnryd/convoy/pkg/oracle"
	"github.com/harunnryd/convoy/pkg/slots"
	"github.com/harunnryd/convoy/pkg/store"
)

// Canned utterances for the degenerate paths. Slot phrasing lives in
// slots.Policy; these are engine-level.
const (
	noisePromptText    = "I didn't catch that, could you please repeat?"
	noiseHandoffText   = "I am having trouble hearing you, please wait for a human dispatcher to call."
	shortPromptText    = "Could you clarify your status or location?"
	shortHandoffText   = "I'll have dispatch follow up shortly. Thank you."
	confirmAffirmText  = "Thanks for confirming. Drive safe — ending the call."
	confirmNegText     = "No problem. What is your current status?"
	confirmRepeatText  = "Please say yes or no to confirm."
	dispatcherCallback = "A human dispatcher will call you back immediately."
	oracleFallbackText = "I understand."
	closeFallbackText  = "Thanks, ending the call."
	openingFallback    = "Hello, this is Dispatch. Can you give me a quick status update?"
)

var affirmWords = []string{"yes", "yeah", "yep", "correct", "right", "confirm", "confirmed"}
var negativeWords = []string{"no", "nope", "incorrect", "not correct", "wrong"}
var farewellWords = []string{"bye", "goodbye", "arrived"}

// Config tunes the engine.
type Config struct {
	// ConfirmBeforeClose inserts a yes/no read-back of the three core
	// slots before the closing line. Off by default: the close itself
	// already reads the values back.
	ConfirmBeforeClose bool
}

// Engine is the turn decision orchestrator. One inbound event produces one
// Response; turns for the same call are strictly serialized.
type Engine struct {
	store      store.Store
	oracle     oracle.Oracle
	extractor  *slots.Extractor
	policy     *slots.Policy
	summarizer *Summarizer
	phases     *phaseTracker
	observer   metrics.Observer
	logger     *slog.Logger
	cfg        Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(st store.Store, or oracle.Oracle, ex *slots.Extractor, pol *slots.Policy, sum *Summarizer, obs metrics.Observer, logger *slog.Logger, cfg Config) *Engine {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      st,
		oracle:     or,
		extractor:  ex,
		policy:     pol,
		summarizer: sum,
		phases:     &phaseTracker{},
		observer:   obs,
		logger:     logger,
		cfg:        cfg,
		locks:      make(map[string]*sync.Mutex),
	}
}

// AddPhaseListener registers an observer for call phase changes.
func (e *Engine) AddPhaseListener(l PhaseListener) {
	e.phases.AddListener(l)
}

// lockFor returns the single-writer lock for a call, creating it on first use.
func (e *Engine) lockFor(callID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[callID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[callID] = l
	}
	return l
}

func (e *Engine) releaseLock(callID string) {
	e.mu.Lock()
	delete(e.locks, callID)
	e.mu.Unlock()
}

// OpeningLine authors the agent's first utterance for a call.
func (e *Engine) OpeningLine(ctx context.Context, callID string) string {
	if d, ok := e.decide(ctx, callID, ""); ok && d.AgentText != "" {
		return d.AgentText
	}
	return openingFallback
}

// HandleTurn processes one inbound event and returns the agent response.
// It never returns an error for engine-internal faults: every failure mode
// degrades to a spoken fallback so the driver is not left unanswered.
func (e *Engine) HandleTurn(ctx context.Context, ev Event) (Response, error) {
	if ev.CallID == "" {
		return Response{Outcome: OutcomeIgnored}, nil
	}
	lock := e.lockFor(ev.CallID)
	lock.Lock()
	defer lock.Unlock()

	switch ev.Kind {
	case EventKeepalive:
		return Response{Outcome: OutcomeIgnored}, nil
	case EventCallStarted:
		errorsx.BestEffort(e.logger, "mark_in_progress", errorsx.ReasonStorageWrite, func() error {
			return e.store.UpdateCallStatus(ctx, ev.CallID, call.StatusInProgress)
		})
		return Response{Outcome: OutcomeUpdated}, nil
	case EventCallEnded:
		state := e.loadState(ctx, ev.CallID)
		if state.Phase != call.PhaseEnded && state.Phase != call.PhaseEscalated {
			e.endCall(ctx, ev.CallID, &state, "provider ended call", SummarizeOptions{})
			e.putState(ctx, ev.CallID, state)
		}
		e.releaseLock(ev.CallID)
		return Response{Outcome: OutcomeEnded}, nil
	}
	return e.handleUtterance(ctx, ev)
}

func (e *Engine) handleUtterance(ctx context.Context, ev Event) (Response, error) {
	state := e.loadState(ctx, ev.CallID)
	if state.Phase == call.PhaseEnded || state.Phase == call.PhaseEscalated {
		return Response{Outcome: OutcomeIgnored}, nil
	}
	if ev.TurnID != "" && ev.TurnID == state.LastTurnID {
		return Response{Outcome: OutcomeIgnored, Duplicate: true}, nil
	}

	speaker := ev.Speaker
	if speaker == "" {
		speaker = call.SpeakerDriver
	}
	if ev.Text != "" {
		e.appendSegment(ctx, ev.CallID, ev.Text, speaker, ev.Confidence)
	}

	isDriver := speaker == call.SpeakerDriver || speaker == "user"
	slotSet := e.mergeExtraction(ctx, ev, isDriver, &state)

	if ev.Kind == EventUpdateOnly {
		state.LastTurnID = ev.TurnID
		e.putState(ctx, ev.CallID, state)
		return Response{Outcome: OutcomeUpdated}, nil
	}

	resp := e.decideTurn(ctx, ev, isDriver, slotSet, &state)

	if resp.AgentText != "" {
		resp.AgentText = e.dedupeAgentText(ctx, ev, resp.AgentText, state.LastAgentMessage)
		e.appendSegment(ctx, ev.CallID, resp.AgentText, call.SpeakerAgent, 1)
		state.LastAgentMessage = resp.AgentText
	}
	state.LastTurnID = ev.TurnID
	e.putState(ctx, ev.CallID, state)

	e.observer.RecordEvent(metrics.Event{
		Name: "turn_decided",
		Time: time.Now(),
		Tags: map[string]string{"call_id": ev.CallID, "outcome": string(resp.Outcome)},
	})
	if resp.EndCall {
		e.releaseLock(ev.CallID)
	}
	return resp, nil
}

// decideTurn runs the priority cascade: confirmation, emergency,
// noise/short counters, farewell, slot questioning, oracle fallback.
func (e *Engine) decideTurn(ctx context.Context, ev Event, isDriver bool, slotSet slots.Set, state *call.ConversationState) Response {
	lower := strings.ToLower(ev.Text)

	if state.AwaitingConfirm {
		if resp, handled := e.handleConfirmation(ctx, ev, lower, slotSet, state); handled {
			return resp
		}
	}

	if isDriver && DetectEmergency(ev.Text) {
		return e.handleEmergency(ctx, ev, state)
	}

	if noisy(ev) {
		state.NoisyCount++
		if state.NoisyCount <= 2 {
			return Response{AgentText: noisePromptText, Outcome: OutcomeContinued}
		}
		e.endCall(ctx, ev.CallID, state, "persistent low confidence", SummarizeOptions{Noisy: true})
		return Response{AgentText: noiseHandoffText, Outcome: OutcomeEnded, EndCall: true}
	}
	state.NoisyCount = 0

	if isDriver && wordCount(ev.Text) < 3 {
		state.ShortUtteranceCount++
		if state.ShortUtteranceCount <= 2 {
			return Response{AgentText: shortPromptText, Outcome: OutcomeFollowup}
		}
		e.endCall(ctx, ev.CallID, state, "uncooperative driver", SummarizeOptions{NoResponse: true})
		return Response{AgentText: shortHandoffText, Outcome: OutcomeEnded, EndCall: true}
	}
	if isDriver {
		state.ShortUtteranceCount = 0
	}

	if isDriver && containsAnyWordy(lower, farewellWords) {
		text := e.closingText(ctx, ev, slotSet)
		e.endCall(ctx, ev.CallID, state, "driver farewell", SummarizeOptions{})
		return Response{AgentText: text, Outcome: OutcomeEnded, EndCall: true}
	}

	missing := slotSet.Missing()
	if len(missing) == 0 || slotSet.CoreFilled() {
		if e.cfg.ConfirmBeforeClose && !state.AwaitingConfirm {
			text := e.policy.ConfirmQuestion(slotSet)
			if text == "" {
				text = e.fallbackText(ctx, ev)
			}
			state.AwaitingConfirm = true
			_ = e.phases.Transition(ev.CallID, state, call.PhaseConfirming, "core slots filled")
			return Response{AgentText: text, Outcome: OutcomeFollowup}
		}
		text := e.closingText(ctx, ev, slotSet)
		e.endCall(ctx, ev.CallID, state, "all slots filled", SummarizeOptions{})
		return Response{AgentText: text, Outcome: OutcomeEnded, EndCall: true}
	}

	return e.askForSlot(ctx, ev, missing, state)
}

// askForSlot produces the follow-up question for the first missing slot,
// rotating to rephrasings when the driver keeps not answering it.
func (e *Engine) askForSlot(ctx context.Context, ev Event, missing []slots.Name, state *call.ConversationState) Response {
	next := missing[0]
	if string(next) == state.LastPromptedSlot {
		state.PromptRetries++
	} else {
		state.LastPromptedSlot = string(next)
		state.PromptRetries = 0
	}

	var text string
	switch {
	case state.PromptRetries == 0:
		text = e.policy.FollowupFor(missing)
	case state.PromptRetries == 1:
		text = e.policy.RephraseFor(next)
	default:
		text = e.policy.GenericNudge()
	}
	if text == "" || text == "Okay." {
		text = e.fallbackText(ctx, ev)
	}
	return Response{AgentText: text, Outcome: OutcomeFollowup}
}

// handleConfirmation resolves a pending yes/no read-back. Unrecognized
// replies repeat the request.
func (e *Engine) handleConfirmation(ctx context.Context, ev Event, lower string, slotSet slots.Set, state *call.ConversationState) (Response, bool) {
	// Negatives first: "not correct" must not be read as "correct".
	if containsAnyWordy(lower, negativeWords) {
		state.AwaitingConfirm = false
		state.LastPromptedSlot = string(slots.DriverStatus)
		state.PromptRetries = 0
		errorsx.BestEffort(e.logger, "reset_core_slots", errorsx.ReasonStorageWrite, func() error {
			return e.store.ResetCoreSlots(ctx, ev.CallID)
		})
		_ = e.phases.Transition(ev.CallID, state, call.PhaseCollecting, "driver rejected read-back")
		return Response{AgentText: confirmNegText, Outcome: OutcomeFollowup}, true
	}
	if containsAnyWordy(lower, affirmWords) {
		state.AwaitingConfirm = false
		e.endCall(ctx, ev.CallID, state, "driver confirmed", SummarizeOptions{})
		return Response{AgentText: confirmAffirmText, Outcome: OutcomeEnded, EndCall: true}, true
	}
	return Response{AgentText: confirmRepeatText, Outcome: OutcomeFollowup}, true
}

// handleEmergency runs the emergency protocol: oracle-authored questions and
// structured extraction, escalation flag, immediate termination. An oracle
// failure still speaks the fixed dispatcher-callback sentence.
func (e *Engine) handleEmergency(ctx context.Context, ev Event, state *call.ConversationState) Response {
	decision, err := e.oracle.EmergencyProtocol(ctx)
	if err != nil {
		e.logger.Warn("emergency protocol oracle failed", "call_id", ev.CallID, "error", err.Error())
		decision = oracle.Decision{AgentText: dispatcherCallback, Action: oracle.ActionEscalate}
	}
	if decision.AgentText == "" {
		decision.AgentText = dispatcherCallback
	}
	if decision.StructuredEmergency != nil {
		errorsx.BestEffort(e.logger, "store_emergency_slots", errorsx.ReasonStorageWrite, func() error {
			_, err := e.store.UpdateSlots(ctx, ev.CallID, slots.Set{
				EmergencyType:     decision.StructuredEmergency.EmergencyType,
				EmergencyLocation: decision.StructuredEmergency.EmergencyLocation,
			})
			return err
		})
	}
	errorsx.BestEffort(e.logger, "flag_escalation", errorsx.ReasonStorageWrite, func() error {
		return e.store.FlagEscalation(ctx, ev.CallID)
	})
	state.EscalationFlag = true
	_ = e.phases.Transition(ev.CallID, state, call.PhaseEscalated, "emergency detected")
	errorsx.BestEffort(e.logger, "mark_completed", errorsx.ReasonStorageWrite, func() error {
		return e.store.UpdateCallStatus(ctx, ev.CallID, call.StatusCompleted)
	})
	errorsx.BestEffort(e.logger, "summarize_call", errorsx.ReasonOracleSummarize, func() error {
		return e.summarizer.Process(ctx, ev.CallID, SummarizeOptions{Emergency: decision.StructuredEmergency})
	})
	e.observer.RecordEvent(metrics.Event{
		Name: "escalation",
		Time: time.Now(),
		Tags: map[string]string{"call_id": ev.CallID},
	})
	return Response{AgentText: decision.AgentText, Outcome: OutcomeEscalated, EndCall: true, Escalated: true}
}

// endCall marks the terminal phase and hands off to summarization. Storage
// failures are logged, not raised: the closing line must still be spoken.
func (e *Engine) endCall(ctx context.Context, callID string, state *call.ConversationState, reason string, opts SummarizeOptions) {
	_ = e.phases.Transition(callID, state, call.PhaseEnded, reason)
	errorsx.BestEffort(e.logger, "mark_completed", errorsx.ReasonStorageWrite, func() error {
		return e.store.UpdateCallStatus(ctx, callID, call.StatusCompleted)
	})
	errorsx.BestEffort(e.logger, "summarize_call", errorsx.ReasonOracleSummarize, func() error {
		return e.summarizer.Process(ctx, callID, opts)
	})
}

// closingText builds the polite close, deferring to the oracle when
// templates are disabled.
func (e *Engine) closingText(ctx context.Context, ev Event, slotSet slots.Set) string {
	if text := e.policy.PoliteClose(slotSet); text != "" {
		return text
	}
	if d, ok := e.decide(ctx, ev.CallID, ev.Text); ok && d.AgentText != "" {
		return d.AgentText
	}
	return closeFallbackText
}

// fallbackText asks the oracle for the next utterance, degrading to a fixed
// safe line when the oracle is unavailable.
func (e *Engine) fallbackText(ctx context.Context, ev Event) string {
	if d, ok := e.decide(ctx, ev.CallID, ev.Text); ok && d.AgentText != "" {
		return d.AgentText
	}
	return oracleFallbackText
}

// dedupeAgentText enforces the non-repetition guarantee: identical
// back-to-back agent lines are replaced with an oracle rephrase when one is
// available.
func (e *Engine) dedupeAgentText(ctx context.Context, ev Event, text, last string) string {
	if strings.TrimSpace(text) != strings.TrimSpace(last) || strings.TrimSpace(text) == "" {
		return text
	}
	if d, ok := e.decide(ctx, ev.CallID, ev.Text); ok {
		alt := strings.TrimSpace(d.AgentText)
		if alt != "" && alt != strings.TrimSpace(text) {
			return d.AgentText
		}
	}
	return text
}

func (e *Engine) decide(ctx context.Context, callID, lastUtterance string) (oracle.Decision, bool) {
	callCtx, err := e.store.GetCallContext(ctx, callID)
	if err != nil {
		callCtx = call.Context{}
	}
	d, err := e.oracle.DecideNextAction(ctx, callCtx, lastUtterance)
	if err != nil {
		e.logger.Warn("oracle decide failed", "call_id", callID, "error", err.Error())
		return oracle.Decision{}, false
	}
	return d, true
}

// mergeExtraction runs the heuristics and merges results into the slot
// store. A storage failure degrades to the extracted values only.
func (e *Engine) mergeExtraction(ctx context.Context, ev Event, isDriver bool, state *call.ConversationState) slots.Set {
	if !isDriver || ev.Text == "" {
		s, err := e.store.GetSlots(ctx, ev.CallID)
		if err != nil {
			e.logger.Warn("slot read failed", "call_id", ev.CallID, "error", err.Error())
			return slots.Set{}
		}
		return s
	}
	updates := e.extractor.Extract(ev.Text)
	merged, err := e.store.UpdateSlots(ctx, ev.CallID, updates)
	if err != nil {
		e.logger.Warn("slot merge failed", "call_id", ev.CallID, "error", err.Error())
		merged = updates
	}
	if state.LastPromptedSlot != "" && updates.Get(slots.Name(state.LastPromptedSlot)) != "" {
		state.PromptRetries = 0
		state.LastPromptedSlot = ""
	}
	return merged
}

func (e *Engine) loadState(ctx context.Context, callID string) call.ConversationState {
	state, err := e.store.GetConversationState(ctx, callID)
	if err != nil {
		e.logger.Warn("state read failed, proceeding with defaults", "call_id", callID, "error", err.Error())
		state = call.ConversationState{}
	}
	if state.Phase == "" {
		state.Phase = call.PhaseCollecting
	}
	return state
}

func (e *Engine) putState(ctx context.Context, callID string, state call.ConversationState) {
	errorsx.BestEffort(e.logger, "persist_state", errorsx.ReasonStorageWrite, func() error {
		return e.store.PutConversationState(ctx, callID, state)
	})
}

func (e *Engine) appendSegment(ctx context.Context, callID, text, speaker string, confidence float64) {
	errorsx.BestEffort(e.logger, "append_transcript", errorsx.ReasonStorageWrite, func() error {
		return e.store.AppendTranscript(ctx, callID, call.Segment{
			Text:       text,
			Speaker:    speaker,
			Timestamp:  time.Now().UTC(),
			Confidence: confidence,
		})
	})
}

func noisy(ev Event) bool {
	return ev.Confidence < 0.5 || strings.Contains(strings.ToLower(ev.Text), "[inaudible]")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// containsAnyWordy matches single-word needles on word boundaries (so
// "alright" does not match "right") and multi-word needles as substrings.
func containsAnyWordy(haystack string, needles []string) bool {
	var words []string
	for _, n := range needles {
		if strings.ContainsRune(n, ' ') {
			if strings.Contains(haystack, n) {
				return true
			}
			continue
		}
		if words == nil {
			for _, w := range strings.Fields(haystack) {
				words = append(words, strings.Trim(w, ".,!?;:"))
			}
		}
		for _, w := range words {
			if w == n {
				return true
			}
		}
	}
	return false
}
