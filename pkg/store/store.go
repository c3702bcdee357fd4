// Package store persists calls, transcripts, summaries, agent profiles and
// the per-call dialogue state. Two implementations are provided: an
// in-memory store for development and tests, and a Postgres store.
package store

import (
	"context"
	"errors"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/slots"
)

// ErrNotFound is returned when a call or agent profile does not exist.
var ErrNotFound = errors.New("not found")

// Store is the storage collaborator the dialogue engine and transport run
// against. Transcript appends are at-least-once durable per call.
type Store interface {
	CreateCall(ctx context.Context, nc call.NewCall) (call.Call, error)
	GetCall(ctx context.Context, id string) (call.Call, error)
	GetCallByProviderID(ctx context.Context, providerID string) (call.Call, error)
	ListCalls(ctx context.Context, f call.ListFilter) ([]call.Call, error)
	UpdateCallStatus(ctx context.Context, id string, status call.Status) error
	SetProviderCallID(ctx context.Context, id, providerID string) error
	AppendTranscript(ctx context.Context, id string, seg call.Segment) error
	FlagEscalation(ctx context.Context, id string) error
	SaveSummary(ctx context.Context, id string, summary call.StructuredSummary) error
	GetCallContext(ctx context.Context, id string) (call.Context, error)

	GetSlots(ctx context.Context, id string) (slots.Set, error)
	UpdateSlots(ctx context.Context, id string, updates slots.Set) (slots.Set, error)
	ResetCoreSlots(ctx context.Context, id string) error
	GetConversationState(ctx context.Context, id string) (call.ConversationState, error)
	PutConversationState(ctx context.Context, id string, state call.ConversationState) error

	CreateAgentProfile(ctx context.Context, p call.AgentProfile) (call.AgentProfile, error)
	GetAgentProfile(ctx context.Context, id string) (call.AgentProfile, error)
	ListAgentProfiles(ctx context.Context) ([]call.AgentProfile, error)
	UpdateAgentProfile(ctx context.Context, id string, upd call.AgentProfileUpdate) (call.AgentProfile, error)
	DeleteAgentProfile(ctx context.Context, id string) error
}
