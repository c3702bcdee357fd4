package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/errorsx"
	"github.com/harunnryd/convoy/pkg/slots"
)

// Querier is the slice of a pgx pool the store needs. pgxmock satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists calls, transcripts, summaries and agent profiles in
// Postgres. Slot sets and conversation state are kept in process: they only
// live for the duration of a call and are folded into the stored summary at
// termination.
type Postgres struct {
	db Querier

	mu       sync.Mutex
	slotSets map[string]slots.Set
	states   map[string]call.ConversationState

	now func() time.Time
}

// NewPool dials Postgres with pool limits suited to one engine process.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewPostgres(db Querier) *Postgres {
	return &Postgres{
		db:       db,
		slotSets: make(map[string]slots.Set),
		states:   make(map[string]call.ConversationState),
		now:      time.Now,
	}
}

const callColumns = `id, driver_name, phone_number, COALESCE(load_number, ''), COALESCE(agent_profile_id, ''), COALESCE(provider_call_id, ''), status, escalated, created_at`

func (p *Postgres) CreateCall(ctx context.Context, nc call.NewCall) (call.Call, error) {
	c := call.Call{
		ID:             uuid.NewString(),
		DriverName:     nc.DriverName,
		PhoneNumber:    nc.PhoneNumber,
		LoadNumber:     nc.LoadNumber,
		AgentProfileID: nc.AgentProfileID,
		Status:         call.StatusQueued,
		CreatedAt:      p.now(),
	}
	_, err := p.db.Exec(ctx, `
        INSERT INTO calls (id, driver_name, phone_number, load_number, agent_profile_id, status, created_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
    `, c.ID, c.DriverName, c.PhoneNumber, c.LoadNumber, c.AgentProfileID, string(c.Status), c.CreatedAt)
	if err != nil {
		return call.Call{}, errorsx.Wrap(fmt.Errorf("insert call: %w", err), errorsx.ReasonStorageWrite)
	}
	return c, nil
}

func (p *Postgres) GetCall(ctx context.Context, id string) (call.Call, error) {
	c, err := p.scanCall(p.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id))
	if err != nil {
		return call.Call{}, err
	}
	if c.Transcript, err = p.fetchTranscript(ctx, id); err != nil {
		return call.Call{}, err
	}
	if c.Summary, err = p.latestSummary(ctx, id); err != nil {
		return call.Call{}, err
	}
	return c, nil
}

func (p *Postgres) GetCallByProviderID(ctx context.Context, providerID string) (call.Call, error) {
	return p.scanCall(p.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE provider_call_id = $1`, providerID))
}

func (p *Postgres) ListCalls(ctx context.Context, f call.ListFilter) ([]call.Call, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.DriverName != "" {
		args = append(args, f.DriverName)
		where = append(where, fmt.Sprintf("LOWER(driver_name) = LOWER($%d)", len(args)))
	}
	q := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("list calls: %w", err), errorsx.ReasonStorageRead)
	}
	defer rows.Close()
	var out []call.Call
	for rows.Next() {
		c, err := p.scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateCallStatus(ctx context.Context, id string, status call.Status) error {
	var current string
	err := p.db.QueryRow(ctx, `SELECT status FROM calls WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("read call status: %w", err), errorsx.ReasonStorageRead)
	}
	// Forward-only: a replayed call.started must not reopen a completed call.
	if !call.Status(current).CanTransition(status) {
		return nil
	}
	_, err = p.db.Exec(ctx, `UPDATE calls SET status = $2 WHERE id = $1 AND status = $3`, id, string(status), current)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("update call status: %w", err), errorsx.ReasonStorageWrite)
	}
	return nil
}

func (p *Postgres) SetProviderCallID(ctx context.Context, id, providerID string) error {
	tag, err := p.db.Exec(ctx, `UPDATE calls SET provider_call_id = $2 WHERE id = $1`, id, providerID)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("set provider call id: %w", err), errorsx.ReasonStorageWrite)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendTranscript(ctx context.Context, id string, seg call.Segment) error {
	_, err := p.db.Exec(ctx, `
        INSERT INTO transcript_segments (call_id, text, speaker, ts, confidence)
        VALUES ($1, $2, $3, $4, $5)
    `, id, seg.Text, seg.Speaker, seg.Timestamp, seg.Confidence)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("append transcript: %w", err), errorsx.ReasonStorageWrite)
	}
	return nil
}

func (p *Postgres) FlagEscalation(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `UPDATE calls SET escalated = TRUE WHERE id = $1`, id); err != nil {
		return errorsx.Wrap(fmt.Errorf("flag escalation: %w", err), errorsx.ReasonStorageWrite)
	}
	p.mu.Lock()
	st := p.states[id]
	st.EscalationFlag = true
	p.states[id] = st
	p.mu.Unlock()
	return nil
}

func (p *Postgres) SaveSummary(ctx context.Context, id string, summary call.StructuredSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStorageWrite)
	}
	_, err = p.db.Exec(ctx, `
        INSERT INTO call_summaries (id, call_id, version, payload, created_at)
        VALUES ($1, $2, (SELECT COALESCE(MAX(version), 0) + 1 FROM call_summaries WHERE call_id = $2), $3, $4)
    `, uuid.NewString(), id, payload, p.now())
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("save summary: %w", err), errorsx.ReasonStorageWrite)
	}
	return nil
}

func (p *Postgres) GetCallContext(ctx context.Context, id string) (call.Context, error) {
	var (
		out       call.Context
		profileID string
	)
	err := p.db.QueryRow(ctx, `
        SELECT driver_name, COALESCE(load_number, ''), COALESCE(agent_profile_id, '')
        FROM calls WHERE id = $1
    `, id).Scan(&out.DriverName, &out.LoadNumber, &profileID)
	if errors.Is(err, pgx.ErrNoRows) {
		return call.Context{}, ErrNotFound
	}
	if err != nil {
		return call.Context{}, errorsx.Wrap(fmt.Errorf("call context: %w", err), errorsx.ReasonStorageRead)
	}
	err = p.db.QueryRow(ctx, `
        SELECT COALESCE(string_agg(text, ' ' ORDER BY id), '') FROM transcript_segments WHERE call_id = $1
    `, id).Scan(&out.CallHistory)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return call.Context{}, errorsx.Wrap(fmt.Errorf("call history: %w", err), errorsx.ReasonStorageRead)
	}
	if profileID != "" {
		err = p.db.QueryRow(ctx, `SELECT prompt_template FROM agent_profiles WHERE id = $1`, profileID).Scan(&out.PromptTemplate)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return call.Context{}, errorsx.Wrap(fmt.Errorf("profile prompt: %w", err), errorsx.ReasonStorageRead)
		}
	}
	return out, nil
}

func (p *Postgres) GetSlots(_ context.Context, id string) (slots.Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotSets[id], nil
}

func (p *Postgres) UpdateSlots(_ context.Context, id string, updates slots.Set) (slots.Set, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slotSets[id]
	s.Merge(updates)
	p.slotSets[id] = s
	return s, nil
}

func (p *Postgres) ResetCoreSlots(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slotSets[id]
	s.ResetCore()
	p.slotSets[id] = s
	return nil
}

func (p *Postgres) GetConversationState(_ context.Context, id string) (call.ConversationState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[id]
	if !ok {
		st = call.ConversationState{Phase: call.PhaseCollecting}
	}
	return st, nil
}

func (p *Postgres) PutConversationState(_ context.Context, id string, state call.ConversationState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[id] = state
	return nil
}

func (p *Postgres) CreateAgentProfile(ctx context.Context, prof call.AgentProfile) (call.AgentProfile, error) {
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	prof.CreatedAt = p.now()
	prof.UpdatedAt = prof.CreatedAt
	settings, err := json.Marshal(prof.VoiceSettings)
	if err != nil {
		return call.AgentProfile{}, errorsx.Wrap(err, errorsx.ReasonStorageWrite)
	}
	_, err = p.db.Exec(ctx, `
        INSERT INTO agent_profiles (id, name, description, prompt_template, voice_settings, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, prof.ID, prof.Name, prof.Description, prof.PromptTemplate, settings, prof.CreatedAt, prof.UpdatedAt)
	if err != nil {
		return call.AgentProfile{}, errorsx.Wrap(fmt.Errorf("insert agent profile: %w", err), errorsx.ReasonStorageWrite)
	}
	return prof, nil
}

func (p *Postgres) GetAgentProfile(ctx context.Context, id string) (call.AgentProfile, error) {
	return p.scanProfile(p.db.QueryRow(ctx, `
        SELECT id, name, COALESCE(description, ''), prompt_template, voice_settings, created_at, updated_at
        FROM agent_profiles WHERE id = $1
    `, id))
}

func (p *Postgres) ListAgentProfiles(ctx context.Context) ([]call.AgentProfile, error) {
	rows, err := p.db.Query(ctx, `
        SELECT id, name, COALESCE(description, ''), prompt_template, voice_settings, created_at, updated_at
        FROM agent_profiles ORDER BY created_at
    `)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("list agent profiles: %w", err), errorsx.ReasonStorageRead)
	}
	defer rows.Close()
	var out []call.AgentProfile
	for rows.Next() {
		prof, err := p.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prof)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateAgentProfile(ctx context.Context, id string, upd call.AgentProfileUpdate) (call.AgentProfile, error) {
	prof, err := p.GetAgentProfile(ctx, id)
	if err != nil {
		return call.AgentProfile{}, err
	}
	upd.Apply(&prof)
	prof.UpdatedAt = p.now()
	settings, err := json.Marshal(prof.VoiceSettings)
	if err != nil {
		return call.AgentProfile{}, errorsx.Wrap(err, errorsx.ReasonStorageWrite)
	}
	_, err = p.db.Exec(ctx, `
        UPDATE agent_profiles
        SET name = $2, description = $3, prompt_template = $4, voice_settings = $5, updated_at = $6
        WHERE id = $1
    `, id, prof.Name, prof.Description, prof.PromptTemplate, settings, prof.UpdatedAt)
	if err != nil {
		return call.AgentProfile{}, errorsx.Wrap(fmt.Errorf("update agent profile: %w", err), errorsx.ReasonStorageWrite)
	}
	return prof, nil
}

func (p *Postgres) DeleteAgentProfile(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM agent_profiles WHERE id = $1`, id)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("delete agent profile: %w", err), errorsx.ReasonStorageWrite)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanCall(row pgx.Row) (call.Call, error) {
	var (
		c      call.Call
		status string
	)
	err := row.Scan(&c.ID, &c.DriverName, &c.PhoneNumber, &c.LoadNumber, &c.AgentProfileID,
		&c.ProviderCallID, &status, &c.Escalated, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return call.Call{}, ErrNotFound
	}
	if err != nil {
		return call.Call{}, errorsx.Wrap(fmt.Errorf("scan call: %w", err), errorsx.ReasonStorageRead)
	}
	c.Status = call.Status(status)
	return c, nil
}

func (p *Postgres) fetchTranscript(ctx context.Context, id string) ([]call.Segment, error) {
	rows, err := p.db.Query(ctx, `
        SELECT text, speaker, ts, confidence FROM transcript_segments WHERE call_id = $1 ORDER BY id
    `, id)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("fetch transcript: %w", err), errorsx.ReasonStorageRead)
	}
	defer rows.Close()
	var out []call.Segment
	for rows.Next() {
		var seg call.Segment
		if err := rows.Scan(&seg.Text, &seg.Speaker, &seg.Timestamp, &seg.Confidence); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStorageRead)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (p *Postgres) latestSummary(ctx context.Context, id string) (*call.StructuredSummary, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, `
        SELECT payload FROM call_summaries WHERE call_id = $1 ORDER BY version DESC LIMIT 1
    `, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("latest summary: %w", err), errorsx.ReasonStorageRead)
	}
	var summary call.StructuredSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStorageRead)
	}
	return &summary, nil
}

func (p *Postgres) scanProfile(row pgx.Row) (call.AgentProfile, error) {
	var (
		prof     call.AgentProfile
		settings []byte
	)
	err := row.Scan(&prof.ID, &prof.Name, &prof.Description, &prof.PromptTemplate, &settings, &prof.CreatedAt, &prof.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return call.AgentProfile{}, ErrNotFound
	}
	if err != nil {
		return call.AgentProfile{}, errorsx.Wrap(fmt.Errorf("scan agent profile: %w", err), errorsx.ReasonStorageRead)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &prof.VoiceSettings); err != nil {
			return call.AgentProfile{}, errorsx.Wrap(err, errorsx.ReasonStorageRead)
		}
	}
	return prof, nil
}
