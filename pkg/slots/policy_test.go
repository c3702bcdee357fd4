package slots

import (
	"strings"
	"testing"
)

func TestFollowupForFirstMissing(t *testing.T) {
	p := NewPolicy(true)
	cases := []struct {
		missing []Name
		want    string
	}{
		{[]Name{DriverStatus, CurrentLocation, ETA}, "Got it. What's your current status?"},
		{[]Name{CurrentLocation, ETA}, "Thanks. Where are you right now?"},
		{[]Name{ETA}, "Noted. What's your ETA?"},
		{[]Name{EmergencyType, EmergencyLocation}, "Understood. What type of emergency is it?"},
		{[]Name{EmergencyLocation}, "Where exactly is the emergency?"},
		{nil, "Thanks. Anything else you want to add?"},
	}
	for _, tc := range cases {
		if got := p.FollowupFor(tc.missing); got != tc.want {
			t.Fatalf("FollowupFor(%v) = %q, want %q", tc.missing, got, tc.want)
		}
	}
}

func TestPoliteCloseEmbedsCoreValues(t *testing.T) {
	p := NewPolicy(true)
	s := Set{DriverStatus: "Driving", CurrentLocation: "I-10 near Indio, CA", ETA: "5pm"}
	got := p.PoliteClose(s)
	for _, v := range []string{"Driving", "I-10 near Indio, CA", "5pm"} {
		if !strings.Contains(got, v) {
			t.Fatalf("close %q missing value %q", got, v)
		}
	}
}

func TestPoliteCloseEmergency(t *testing.T) {
	p := NewPolicy(true)
	s := Set{EmergencyType: "Accident", EmergencyLocation: "Barstow"}
	got := p.PoliteClose(s)
	if !strings.Contains(got, "Accident") || !strings.Contains(got, "Barstow") {
		t.Fatalf("emergency close missing details: %q", got)
	}
	if !strings.Contains(got, "dispatcher") {
		t.Fatalf("emergency close missing dispatcher callback: %q", got)
	}
}

func TestPoliteCloseGenericFallback(t *testing.T) {
	p := NewPolicy(true)
	if got := p.PoliteClose(Set{DriverStatus: "Driving"}); got != "Thanks for the details. We'll follow up if needed." {
		t.Fatalf("unexpected generic close: %q", got)
	}
}

func TestTemplatesDisabledReturnEmpty(t *testing.T) {
	p := NewPolicy(false)
	s := Set{DriverStatus: "Driving", CurrentLocation: "Multan", ETA: "5pm"}
	if p.FollowupFor([]Name{DriverStatus}) != "" {
		t.Fatalf("expected empty followup with templates disabled")
	}
	if p.PoliteClose(s) != "" {
		t.Fatalf("expected empty close with templates disabled")
	}
	if p.RephraseFor(ETA) != "" || p.GenericNudge() != "" || p.ConfirmQuestion(s) != "" {
		t.Fatalf("expected empty retry phrasing with templates disabled")
	}
}

func TestRephraseVariantsDifferFromFirstAsk(t *testing.T) {
	p := NewPolicy(true)
	for _, n := range []Name{DriverStatus, CurrentLocation, ETA} {
		first := p.FollowupFor([]Name{n})
		retry := p.RephraseFor(n)
		if retry == "" || retry == first {
			t.Fatalf("rephrase for %s should differ from first ask: %q vs %q", n, retry, first)
		}
	}
}
