package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/slots"
)

// Memory is the in-process store. Safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	calls     map[string]*call.Call
	slotSets  map[string]slots.Set
	states    map[string]call.ConversationState
	profiles  map[string]call.AgentProfile
	summaries map[string][]call.StructuredSummary
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		calls:     make(map[string]*call.Call),
		slotSets:  make(map[string]slots.Set),
		states:    make(map[string]call.ConversationState),
		profiles:  make(map[string]call.AgentProfile),
		summaries: make(map[string][]call.StructuredSummary),
		now:       time.Now,
	}
}

func (m *Memory) CreateCall(_ context.Context, nc call.NewCall) (call.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := call.Call{
		ID:             uuid.NewString(),
		DriverName:     nc.DriverName,
		PhoneNumber:    nc.PhoneNumber,
		LoadNumber:     nc.LoadNumber,
		AgentProfileID: nc.AgentProfileID,
		Status:         call.StatusQueued,
		CreatedAt:      m.now(),
	}
	m.calls[c.ID] = &c
	out := c
	return out, nil
}

func (m *Memory) GetCall(_ context.Context, id string) (call.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return call.Call{}, ErrNotFound
	}
	return cloneCall(c), nil
}

func (m *Memory) GetCallByProviderID(_ context.Context, providerID string) (call.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.ProviderCallID == providerID {
			return cloneCall(c), nil
		}
	}
	return call.Call{}, ErrNotFound
}

func (m *Memory) ListCalls(_ context.Context, f call.ListFilter) ([]call.Call, error) {
	f = f.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []call.Call
	for _, c := range m.calls {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.DriverName != "" && !strings.EqualFold(c.DriverName, f.DriverName) {
			continue
		}
		out = append(out, cloneCall(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	start := (f.Page - 1) * f.PageSize
	if start >= len(out) {
		return nil, nil
	}
	end := start + f.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (m *Memory) UpdateCallStatus(_ context.Context, id string, status call.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return ErrNotFound
	}
	// Forward-only: a replayed call.started must not reopen a completed call.
	if !c.Status.CanTransition(status) {
		return nil
	}
	c.Status = status
	return nil
}

func (m *Memory) SetProviderCallID(_ context.Context, id, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.ProviderCallID = providerID
	return nil
}

func (m *Memory) AppendTranscript(_ context.Context, id string, seg call.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.Transcript = append(c.Transcript, seg)
	return nil
}

func (m *Memory) FlagEscalation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.Escalated = true
	st := m.states[id]
	st.EscalationFlag = true
	m.states[id] = st
	return nil
}

func (m *Memory) SaveSummary(_ context.Context, id string, summary call.StructuredSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return ErrNotFound
	}
	m.summaries[id] = append(m.summaries[id], summary)
	s := summary
	c.Summary = &s
	return nil
}

// SummaryVersions returns every summary saved for the call, oldest first.
func (m *Memory) SummaryVersions(id string) []call.StructuredSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call.StructuredSummary(nil), m.summaries[id]...)
}

func (m *Memory) GetCallContext(_ context.Context, id string) (call.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return call.Context{}, ErrNotFound
	}
	var history []string
	for _, seg := range c.Transcript {
		history = append(history, seg.Text)
	}
	ctx := call.Context{
		DriverName:  c.DriverName,
		LoadNumber:  c.LoadNumber,
		CallHistory: strings.Join(history, " "),
	}
	if p, ok := m.profiles[c.AgentProfileID]; ok {
		ctx.PromptTemplate = p.PromptTemplate
	}
	return ctx, nil
}

func (m *Memory) GetSlots(_ context.Context, id string) (slots.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotSets[id], nil
}

func (m *Memory) UpdateSlots(_ context.Context, id string, updates slots.Set) (slots.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slotSets[id]
	s.Merge(updates)
	m.slotSets[id] = s
	return s, nil
}

func (m *Memory) ResetCoreSlots(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slotSets[id]
	s.ResetCore()
	m.slotSets[id] = s
	return nil
}

func (m *Memory) GetConversationState(_ context.Context, id string) (call.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		st = call.ConversationState{Phase: call.PhaseCollecting}
	}
	return st, nil
}

func (m *Memory) PutConversationState(_ context.Context, id string, state call.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state
	return nil
}

func (m *Memory) CreateAgentProfile(_ context.Context, p call.AgentProfile) (call.AgentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.profiles[p.ID] = p
	return p, nil
}

func (m *Memory) GetAgentProfile(_ context.Context, id string) (call.AgentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return call.AgentProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListAgentProfiles(_ context.Context) ([]call.AgentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call.AgentProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateAgentProfile(_ context.Context, id string, upd call.AgentProfileUpdate) (call.AgentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return call.AgentProfile{}, ErrNotFound
	}
	upd.Apply(&p)
	p.UpdatedAt = m.now()
	m.profiles[id] = p
	return p, nil
}

func (m *Memory) DeleteAgentProfile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(m.profiles, id)
	return nil
}

func cloneCall(c *call.Call) call.Call {
	out := *c
	out.Transcript = append([]call.Segment(nil), c.Transcript...)
	if c.Summary != nil {
		s := *c.Summary
		out.Summary = &s
	}
	return out
}
