package transport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/convoy/pkg/call"
	"github.com/harunnryd/convoy/pkg/dialog"
	"github.com/harunnryd/convoy/pkg/metrics"
	"github.com/harunnryd/convoy/pkg/oracle"
	"github.com/harunnryd/convoy/pkg/slots"
	"github.com/harunnryd/convoy/pkg/store"
	"github.com/harunnryd/convoy/pkg/telephony"
)

func newTestServer(t *testing.T, cfg Config, tel telephony.Provider) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	or := oracle.NewSimulated()
	sum := dialog.NewSummarizer(mem, or, nil)
	eng := dialog.NewEngine(mem, or, slots.NewExtractor(true), slots.NewPolicy(true), sum, metrics.NoopObserver{}, nil, dialog.Config{})
	return NewServer(mem, eng, sum, tel, nil, cfg), mem
}

func seedCall(t *testing.T, mem *store.Memory) call.Call {
	t.Helper()
	c, err := mem.CreateCall(context.Background(), call.NewCall{DriverName: "Mike", PhoneNumber: "+15551234567", LoadNumber: "7891-B"})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return c
}

type failingProvider struct {
	speakErr error
	dialErr  error
}

func (f *failingProvider) Speak(context.Context, string, string) error {
	return f.speakErr
}

func (f *failingProvider) EndCall(context.Context, string) error { return nil }

func (f *failingProvider) InitiateCall(context.Context, telephony.DialRequest) (telephony.DialResult, error) {
	if f.dialErr != nil {
		return telephony.DialResult{}, f.dialErr
	}
	return telephony.DialResult{ProviderCallID: "prov-1", Status: "queued"}, nil
}

func postWebhook(t *testing.T, srv *Server, body string, sign func([]byte) string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(body)))
	if sign != nil {
		req.Header.Set(signatureHeader, sign([]byte(body)))
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestWebhookNestedPayloadSpeech(t *testing.T) {
	tel := telephony.NewSimulated(nil)
	srv, mem := newTestServer(t, Config{}, tel)
	c := seedCall(t, mem)

	body := `{"event_type":"speech","call_id":"` + c.ID + `","payload":{"speech_text":"I am driving right now","speaker":"driver","confidence":0.9}}`
	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp dialog.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AgentText == "" || resp.EndCall {
		t.Fatalf("expected a follow-up question, got %+v", resp)
	}
	got, _ := mem.GetCall(context.Background(), c.ID)
	if len(got.Transcript) == 0 || got.Transcript[0].Text != "I am driving right now" {
		t.Fatalf("nested utterance missing from transcript: %+v", got.Transcript)
	}
}

func TestWebhookTranscriptUpdateIsAnswered(t *testing.T) {
	tel := telephony.NewSimulated(nil)
	srv, mem := newTestServer(t, Config{}, tel)
	c := seedCall(t, mem)

	body := `{"event_type":"transcript_update","call_id":"` + c.ID + `","text":"there was an accident on I-80"}`
	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp dialog.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Escalated || resp.AgentText == "" {
		t.Fatalf("transcript_update with an emergency must be answered and escalated, got %+v", resp)
	}
	if len(tel.Spoken(c.ID)) != 1 {
		t.Fatalf("expected the response delivered, spoke %v", tel.Spoken(c.ID))
	}
}

func TestWebhookTurnRoundTrip(t *testing.T) {
	tel := telephony.NewSimulated(nil)
	srv, mem := newTestServer(t, Config{}, tel)
	c := seedCall(t, mem)

	body := `{"event":"speech","call_id":"` + c.ID + `","text":"I'm at I-10 near Indio, CA, arriving at 5pm, status driving"}`
	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp dialog.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.EndCall || !strings.Contains(resp.AgentText, "I-10 near Indio") {
		t.Fatalf("unexpected decision: %+v", resp)
	}
	spoken := tel.Spoken(c.ID)
	if len(spoken) != 1 || spoken[0] != resp.AgentText {
		t.Fatalf("close line not delivered: %v", spoken)
	}
	if !tel.Ended(c.ID) {
		t.Fatalf("provider end-call not requested")
	}
}

func TestWebhookSignature(t *testing.T) {
	tel := telephony.NewSimulated(nil)
	srv, mem := newTestServer(t, Config{WebhookSecret: "topsecret"}, tel)
	c := seedCall(t, mem)
	body := `{"event":"speech","call_id":"` + c.ID + `","text":"just checking in with you"}`

	if rec := postWebhook(t, srv, body, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("missing signature should be rejected, got %d", rec.Code)
	}
	badSign := func([]byte) string { return "deadbeef" }
	if rec := postWebhook(t, srv, body, badSign); rec.Code != http.StatusForbidden {
		t.Fatalf("bad signature should be rejected, got %d", rec.Code)
	}
	goodSign := func(b []byte) string {
		mac := hmac.New(sha256.New, []byte("topsecret"))
		mac.Write(b)
		return hex.EncodeToString(mac.Sum(nil))
	}
	if rec := postWebhook(t, srv, body, goodSign); rec.Code != http.StatusOK {
		t.Fatalf("valid signature rejected: %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookResolvesProviderCallID(t *testing.T) {
	tel := telephony.NewSimulated(nil)
	srv, mem := newTestServer(t, Config{}, tel)
	c := seedCall(t, mem)
	if err := mem.SetProviderCallID(context.Background(), c.ID, "prov-77"); err != nil {
		t.Fatalf("set provider id: %v", err)
	}

	body := `{"event":"speech","call_id":"prov-77","text":"I am driving right now"}`
	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := mem.GetSlots(context.Background(), c.ID)
	if got.DriverStatus != "Driving" {
		t.Fatalf("turn not applied to internal call: %+v", got)
	}
}

func TestWebhookUnknownCall(t *testing.T) {
	srv, _ := newTestServer(t, Config{}, telephony.NewSimulated(nil))
	rec := postWebhook(t, srv, `{"event":"speech","call_id":"nope","text":"hello out there"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown call, got %d", rec.Code)
	}
}

func TestWebhookSpeakFailureIsBadGateway(t *testing.T) {
	tel := &failingProvider{speakErr: errors.New("provider down")}
	srv, mem := newTestServer(t, Config{}, tel)
	c := seedCall(t, mem)

	rec := postWebhook(t, srv, `{"event":"speech","call_id":"`+c.ID+`","text":"I am driving right now"}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("speak failure should be fatal on the webhook path, got %d", rec.Code)
	}
}

func TestWebhookBatchActsOnLastDecision(t *testing.T) {
	tel := telephony.NewSimulated(nil)
	srv, mem := newTestServer(t, Config{}, tel)
	c := seedCall(t, mem)

	body := `{"events":[
		{"event":"call_started","call_id":"` + c.ID + `"},
		{"event":"speech","call_id":"` + c.ID + `","text":"I am driving right now"}
	]}`
	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp dialog.Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Outcome != dialog.OutcomeFollowup || resp.AgentText == "" {
		t.Fatalf("expected the speech decision, got %+v", resp)
	}
	got, _ := mem.GetCall(context.Background(), c.ID)
	if got.Status != call.StatusInProgress {
		t.Fatalf("call_started not applied first: %s", got.Status)
	}
}
