package telephony

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/convoy/pkg/errorsx"
)

type callAPI interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// TwilioConfig carries the account credentials and defaults for outbound
// calls placed through Twilio.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	VoiceURL   string
}

// Twilio places and controls calls through the Twilio REST API. Speak is
// implemented as an in-call TwiML update; EndCall sets the call status to
// completed.
type Twilio struct {
	cfg    TwilioConfig
	client callAPI
}

func NewTwilio(cfg TwilioConfig) *Twilio {
	return &Twilio{cfg: cfg}
}

func (t *Twilio) api() callAPI {
	if t.client != nil {
		return t.client
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: t.cfg.AccountSID,
		Password: t.cfg.AuthToken,
	})
	t.client = rest.Api
	return t.client
}

func (t *Twilio) Speak(_ context.Context, callID, text string) error {
	params := &api.UpdateCallParams{}
	params.SetTwiml(sayTwiml(text))
	if _, err := t.api().UpdateCall(callID, params); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelephonySpeak)
	}
	return nil
}

func (t *Twilio) EndCall(_ context.Context, callID string) error {
	params := &api.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := t.api().UpdateCall(callID, params); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelephonyEndCall)
	}
	return nil
}

func (t *Twilio) InitiateCall(_ context.Context, req DialRequest) (DialResult, error) {
	from := req.FromNumber
	if from == "" {
		from = t.cfg.FromNumber
	}
	if req.ToNumber == "" || from == "" {
		return DialResult{}, errorsx.Wrap(errors.New("to/from required"), errorsx.ReasonTelephonyDial)
	}
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return DialResult{}, errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonTelephonyDial)
	}
	url := req.WebhookURL
	if url == "" {
		url = t.cfg.VoiceURL
	}
	params := &api.CreateCallParams{}
	params.SetTo(req.ToNumber)
	params.SetFrom(from)
	params.SetUrl(url)
	resp, err := t.api().CreateCall(params)
	if err != nil {
		return DialResult{}, errorsx.Wrap(err, errorsx.ReasonTelephonyDial)
	}
	if resp == nil || resp.Sid == nil {
		return DialResult{}, errorsx.Wrap(fmt.Errorf("missing call sid"), errorsx.ReasonTelephonyDial)
	}
	out := DialResult{ProviderCallID: *resp.Sid}
	if resp.Status != nil {
		out.Status = *resp.Status
	}
	return out, nil
}

func sayTwiml(text string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(text))
	return "<Response><Say>" + buf.String() + "</Say></Response>"
}
