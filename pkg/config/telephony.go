package config

import (
	"fmt"
	"strings"

	"github.com/harunnryd/convoy/pkg/configutil"
)

// RESTTelephonySettings configure the HTTP voice-agent provider.
type RESTTelephonySettings struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	FromNumber string `mapstructure:"from_number"`
	TimeoutMS  int    `mapstructure:"timeout_ms"`
}

// TwilioTelephonySettings configure the Twilio provider.
type TwilioTelephonySettings struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

var restSchema = configutil.Schema{
	Required: []string{"base_url", "api_key"},
	Optional: []string{"from_number", "timeout_ms"},
}

var twilioSchema = configutil.Schema{
	Required: []string{"account_sid", "auth_token", "from_number"},
}

// RESTSettings validates and decodes the settings map for the rest provider.
func (t TelephonyConfig) RESTSettings() (RESTTelephonySettings, error) {
	var out RESTTelephonySettings
	if err := configutil.ValidateSettings(t.Settings, restSchema); err != nil {
		return out, fmt.Errorf("telephony.settings: %w", err)
	}
	if err := configutil.DecodeSettings(t.Settings, &out); err != nil {
		return out, fmt.Errorf("telephony.settings: %w", err)
	}
	return out, nil
}

// TwilioSettings validates and decodes the settings map for the twilio
// provider.
func (t TelephonyConfig) TwilioSettings() (TwilioTelephonySettings, error) {
	var out TwilioTelephonySettings
	if err := configutil.ValidateSettings(t.Settings, twilioSchema); err != nil {
		return out, fmt.Errorf("telephony.settings: %w", err)
	}
	if err := configutil.DecodeSettings(t.Settings, &out); err != nil {
		return out, fmt.Errorf("telephony.settings: %w", err)
	}
	return out, nil
}

// IsSimulated reports whether the provider name selects the in-process fake.
func (t TelephonyConfig) IsSimulated() bool {
	return strings.EqualFold(strings.TrimSpace(t.Provider), "simulated") || t.Provider == ""
}
