package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/harunnryd/convoy/pkg/errorsx"
)

// RESTConfig points the REST provider at an HTTP voice-provider API.
type RESTConfig struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	WebhookURL string
	Timeout    time.Duration
}

// REST talks to a bearer-authenticated voice-provider HTTP API: speak,
// end-call, and outbound call creation.
type REST struct {
	client *resty.Client
	cfg    RESTConfig
	logger *slog.Logger
}

func NewREST(cfg RESTConfig, logger *slog.Logger) *REST {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout)
	return &REST{client: client, cfg: cfg, logger: logger}
}

func (r *REST) Speak(ctx context.Context, callID, text string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"call_id": callID, "text": text}).
		Post("/v2/speak")
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelephonySpeak)
	}
	if resp.IsError() {
		return errorsx.Wrap(fmt.Errorf("speak returned %s: %s", resp.Status(), resp.String()), errorsx.ReasonTelephonySpeak)
	}
	return nil
}

func (r *REST) EndCall(ctx context.Context, callID string) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"call_id": callID}).
		Post("/v2/end-call")
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelephonyEndCall)
	}
	if resp.IsError() {
		return errorsx.Wrap(fmt.Errorf("end-call returned %s: %s", resp.Status(), resp.String()), errorsx.ReasonTelephonyEndCall)
	}
	return nil
}

func (r *REST) InitiateCall(ctx context.Context, req DialRequest) (DialResult, error) {
	if req.FromNumber == "" {
		req.FromNumber = r.cfg.FromNumber
	}
	if req.FromNumber == "" {
		return DialResult{}, errorsx.Wrap(fmt.Errorf("from number not configured"), errorsx.ReasonTelephonyDial)
	}
	if req.WebhookURL == "" {
		req.WebhookURL = r.cfg.WebhookURL
	}
	var out DialResult
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/v2/create-phone-call")
	if err != nil {
		return DialResult{}, errorsx.Wrap(err, errorsx.ReasonTelephonyDial)
	}
	if resp.IsError() {
		return DialResult{}, errorsx.Wrap(fmt.Errorf("create-phone-call returned %s: %s", resp.Status(), resp.String()), errorsx.ReasonTelephonyDial)
	}
	r.logger.Info("outbound call placed", "call_id", req.CallID, "provider_call_id", out.ProviderCallID)
	return out, nil
}
