package call

import "time"

// Status is the lifecycle status of a call record. Transitions are
// forward-only except StatusFailed, which is terminal.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusProcessed  Status = "processed"
)

// rank orders statuses for forward-only transitions.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	case StatusProcessed:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() > s.rank()
}

// Call is one dispatch check-in call to a driver.
type Call struct {
	ID             string             `json:"id"`
	DriverName     string             `json:"driver_name"`
	PhoneNumber    string             `json:"phone_number"`
	LoadNumber     string             `json:"load_number,omitempty"`
	AgentProfileID string             `json:"agent_profile_id,omitempty"`
	ProviderCallID string             `json:"provider_call_id,omitempty"`
	Status         Status             `json:"status"`
	Escalated      bool               `json:"escalated,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Transcript     []Segment          `json:"full_transcript,omitempty"`
	Summary        *StructuredSummary `json:"structured_summary,omitempty"`
}

// NewCall carries the fields required to create a call record.
type NewCall struct {
	DriverName     string `json:"driver_name"`
	PhoneNumber    string `json:"phone_number"`
	LoadNumber     string `json:"load_number,omitempty"`
	AgentProfileID string `json:"agent_profile_id,omitempty"`
}

// Segment is one append-only transcript entry. Never mutated after append.
type Segment struct {
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

const (
	SpeakerDriver = "driver"
	SpeakerAgent  = "agent"
)

// StructuredSummary is the post-call extraction result, written once per
// processing pass (reprocessing produces a new version).
type StructuredSummary struct {
	CallOutcome       string `json:"call_outcome"`
	DriverStatus      string `json:"driver_status,omitempty"`
	CurrentLocation   string `json:"current_location,omitempty"`
	ETA               string `json:"eta,omitempty"`
	EmergencyType     string `json:"emergency_type,omitempty"`
	EmergencyLocation string `json:"emergency_location,omitempty"`
	EscalationStatus  string `json:"escalation_status,omitempty"`
	ExtractionNotes   string `json:"extraction_notes,omitempty"`
}

const (
	OutcomeInTransit  = "In-Transit Update"
	OutcomeArrival    = "Arrival Confirmation"
	OutcomeEmergency  = "Emergency Detected"
	OutcomeNoResponse = "No Response"
	OutcomeUnknown    = "Unknown"
	EscalationFlagged = "Escalation Flagged"
)

// Context is what the oracle needs to author a response.
type Context struct {
	DriverName     string `json:"driver_name"`
	LoadNumber     string `json:"load_number"`
	CallHistory    string `json:"call_history"`
	PromptTemplate string `json:"prompt_template"`
}

// ConversationState is the per-call dialogue bookkeeping driving
// repetition-avoidance, noise handling and termination.
type ConversationState struct {
	Phase               Phase  `json:"phase"`
	LastPromptedSlot    string `json:"last_prompted_slot,omitempty"`
	PromptRetries       int    `json:"prompt_retries"`
	LastAgentMessage    string `json:"last_agent_message,omitempty"`
	AwaitingConfirm     bool   `json:"awaiting_confirmation"`
	NoisyCount          int    `json:"noisy_count"`
	ShortUtteranceCount int    `json:"short_utterance_count"`
	EscalationFlag      bool   `json:"escalation_flag"`
	LastTurnID          string `json:"last_turn_id,omitempty"`
}

// Phase is the coarse dialogue phase of a conversation.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseConfirming Phase = "awaiting_confirmation"
	PhaseEscalated  Phase = "escalated"
	PhaseEnded      Phase = "ended"
)

// AgentProfile is the admin-managed configuration an agent runs with.
type AgentProfile struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	PromptTemplate string         `json:"prompt_template"`
	VoiceSettings  map[string]any `json:"voice_settings,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AgentProfileUpdate is a partial update; nil fields are left untouched.
type AgentProfileUpdate struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	PromptTemplate *string         `json:"prompt_template,omitempty"`
	VoiceSettings  *map[string]any `json:"voice_settings,omitempty"`
}

// Apply merges the non-nil fields into the profile.
func (u AgentProfileUpdate) Apply(p *AgentProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.PromptTemplate != nil {
		p.PromptTemplate = *u.PromptTemplate
	}
	if u.VoiceSettings != nil {
		p.VoiceSettings = *u.VoiceSettings
	}
}

// ListFilter narrows call listings.
type ListFilter struct {
	Status     Status
	DriverName string
	Page       int
	PageSize   int
}

// Normalize applies pagination defaults.
func (f ListFilter) Normalize() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	return f
}
