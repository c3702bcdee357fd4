// Package telephony delivers agent speech and call control to the voice
// provider. Delivery is fire-and-forget from the engine's point of view:
// callers decide per path whether a failure is fatal to the turn.
package telephony

import "context"

// DialRequest asks the provider to place an outbound call.
type DialRequest struct {
	CallID     string            `json:"call_id"`
	ToNumber   string            `json:"to_number"`
	FromNumber string            `json:"from_number"`
	AgentID    string            `json:"agent_id,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DialResult carries the provider-side identity of the placed call.
type DialResult struct {
	ProviderCallID string `json:"call_id"`
	Status         string `json:"status"`
}

// Provider is the telephony delivery collaborator.
type Provider interface {
	Speak(ctx context.Context, callID, text string) error
	EndCall(ctx context.Context, callID string) error
	InitiateCall(ctx context.Context, req DialRequest) (DialResult, error)
}
