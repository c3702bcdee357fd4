// Package redact scrubs contact details from log output. Driver utterances
// and dial targets routinely contain phone numbers; transcripts stay intact
// in storage, only log lines are scrubbed.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles redaction process-wide.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled reports whether redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text scrubs emails and phone numbers from an utterance when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Number masks a dialed number down to its last two digits when enabled.
func Number(in string) string {
	if !enabled.Load() {
		return in
	}
	digits := 0
	for _, r := range in {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 2 {
		return in
	}
	var b strings.Builder
	seen := 0
	for _, r := range in {
		if r >= '0' && r <= '9' {
			seen++
			if seen <= digits-2 {
				b.WriteRune('*')
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
